package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stalks-service/internal/controls"
	"stalks-service/internal/core"
	"stalks-service/internal/device"
	"stalks-service/internal/logger"
	"stalks-service/internal/messaging"
	"stalks-service/internal/stalk"
	"stalks-service/internal/telemetry"
	"stalks-service/internal/types"
)

const (
	// The simulator may start after us; retry mapping its segments.
	shmRetryInterval = 5 * time.Second

	statusInterval = 15 * time.Second
)

func main() {
	var (
		serviceLogLevel int
		productName     string
		redisAddr       string
		telemetryPath   string
		controlsPath    string
		readTimeout     time.Duration
		reconnectDelay  time.Duration
		maxReadErrors   int
		cooldown        time.Duration
		blinks          int
	)
	flag.IntVar(&serviceLogLevel, "log", 3, "Service log level (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG)")
	flag.StringVar(&productName, "device", device.DefaultProductName, "HID product name to bridge")
	flag.StringVar(&redisAddr, "redis", "", "Redis address for state mirroring, e.g. 127.0.0.1:6379 (empty disables)")
	flag.StringVar(&telemetryPath, "telemetry", telemetry.ShmPath, "Telemetry shared memory path")
	flag.StringVar(&controlsPath, "controls", controls.ShmPath, "Controls shared memory path")
	flag.DurationVar(&readTimeout, "read-timeout", device.DefaultReadTimeout, "HID report read timeout")
	flag.DurationVar(&reconnectDelay, "reconnect-delay", device.DefaultReconnectDelay, "Wait between device discovery attempts")
	flag.IntVar(&maxReadErrors, "max-read-errors", device.DefaultMaxReadErrors, "Consecutive read errors before forcing a reconnect")
	flag.DurationVar(&cooldown, "cooldown", stalk.DefaultCooldown, "Window after a stalk self-return during which direction presses are deferred")
	flag.IntVar(&blinks, "auto-cancel-blinks", stalk.DefaultAutodisableBlinks, "Observed blinks before a tapped indicator auto-cancels")
	flag.Parse()

	// Create standard logger with appropriate format
	var stdLogger *log.Logger
	if os.Getenv("INVOCATION_ID") != "" {
		// Running under systemd, use minimal format
		stdLogger = log.New(os.Stdout, "", 0)
	} else {
		// Running interactively, use timestamps
		stdLogger = log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds|log.Lmsgprefix)
	}

	l := logger.NewLogger(stdLogger, logger.LogLevel(serviceLogLevel))

	l.Infof("Starting stalks service...")

	transport, err := device.NewHidapiTransport()
	if err != nil {
		l.Fatalf("Failed to initialize HID transport: %v", err)
	}
	defer transport.Shutdown()

	supervisor := device.NewSupervisor(transport, device.Config{
		ProductName:    productName,
		ReadTimeout:    readTimeout,
		ReconnectDelay: reconnectDelay,
		MaxReadErrors:  maxReadErrors,
	}, l)
	source := telemetry.NewSharedMemorySource(telemetryPath, l)
	sink := controls.NewSharedMemorySink(controlsPath, l)
	defer source.Close()
	defer sink.Close()

	automation := stalk.New(stalk.Config{
		Cooldown:          cooldown,
		AutodisableBlinks: blinks,
	}, l)
	if err := automation.Start(context.Background()); err != nil {
		l.Fatalf("Failed to start stalk automation: %v", err)
	}

	var msg core.MessagingClient
	if redisAddr != "" {
		redisClient := messaging.NewRedisClient(redisAddr, l, messaging.Callbacks{
			BlinkerCallback: automation.RequestIndicator,
			WipersCallback: func(state types.WiperState) error {
				automation.RequestWipers(state)
				return nil
			},
		})
		if err := redisClient.Connect(); err != nil {
			l.Warnf("Continuing without Redis: %v", err)
		} else {
			if err := redisClient.StartListening(); err != nil {
				l.Warnf("Failed to start Redis listeners: %v", err)
			}
			defer redisClient.Close()
			msg = redisClient
		}
	}

	mapCtx, stopMapping := context.WithCancel(context.Background())
	defer stopMapping()
	go mapSharedMemory(mapCtx, l, source, sink)

	monitor := core.NewMonitor(supervisor, source, automation,
		controls.NewReconciler(sink, l), msg, core.Config{}, l)
	monitor.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigChan:
			l.Infof("Received signal %v, shutting down...", sig)
			monitor.Stop()
			l.Infof("Shutdown complete")
			return
		case <-ticker.C:
			st := monitor.Status()
			if st.Device.State == types.Disconnected {
				l.Infof("Waiting for %q to appear", productName)
			} else {
				l.Debugf("Bridging %q: indicator=%s lights=%s wipers=%s",
					st.Device.Device, st.Desired.Indicator, st.Desired.Lights, st.Desired.Wipers)
			}
		}
	}
}

// mapSharedMemory maps the simulator's telemetry and control segments,
// retrying until both are available or the context is cancelled.
func mapSharedMemory(ctx context.Context, l *logger.Logger, source *telemetry.SharedMemorySource, sink *controls.SharedMemorySink) {
	for {
		srcErr := source.Init()
		sinkErr := sink.Init()
		if srcErr == nil && sinkErr == nil {
			return
		}
		if srcErr != nil {
			l.Debugf("Telemetry not mapped yet: %v", srcErr)
		}
		if sinkErr != nil {
			l.Debugf("Controls not mapped yet: %v", sinkErr)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(shmRetryInterval):
		}
	}
}
