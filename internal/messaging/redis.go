package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stalks-service/internal/logger"
	"stalks-service/internal/types"

	"github.com/redis/go-redis/v9"
)

// Callbacks are invoked for commands pushed by other services. Nil callbacks
// disable the corresponding listener's handling.
type Callbacks struct {
	BlinkerCallback func(types.IndicatorState) error // "off", "left", "right"
	WipersCallback  func(types.WiperState) error     // "off", "intermittent", "low", "high", "manual"
}

// RedisClient mirrors the stalk state into a Redis hash and accepts remote
// commands via LPUSH lists. The service runs fine without it.
type RedisClient struct {
	client    *redis.Client
	callbacks Callbacks
	logger    *logger.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewRedisClient(addr string, l *logger.Logger, callbacks Callbacks) *RedisClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisClient{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   0,
		}),
		callbacks: callbacks,
		logger:    l,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (r *RedisClient) Connect() error {
	r.logger.Infof("Attempting to connect to Redis at %s", r.client.Options().Addr)
	if err := r.client.Ping(r.ctx).Err(); err != nil {
		return fmt.Errorf("Redis connection failed: %w", err)
	}
	r.logger.Infof("Successfully connected to Redis")
	return nil
}

// StartListening starts the command list listeners.
func (r *RedisClient) StartListening() error {
	r.logger.Infof("Starting Redis listeners")

	r.wg.Add(2)
	go r.listCommandListener("stalks:blinker", r.handleBlinkerCommand)
	go r.listCommandListener("stalks:wipers", r.handleWipersCommand)

	return nil
}

func (r *RedisClient) listCommandListener(key string, handler func(string) error) {
	defer r.wg.Done()
	r.logger.Infof("Starting list command listener for %s", key)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Infof("Context cancelled, exiting %s listener", key)
			return
		default:
			// BRPOP with a short timeout so context cancellation is noticed.
			result, err := r.client.BRPop(r.ctx, 5*time.Second, key).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if err == context.Canceled {
					r.logger.Infof("Context cancelled, exiting %s listener", key)
					return
				}
				r.logger.Infof("Error reading from %s list: %v", key, err)
				continue
			}

			if len(result) >= 2 { // BRPOP returns [key, value]
				value := result[1]
				r.logger.Debugf("Received command from %s: %s", key, value)
				if err := handler(value); err != nil {
					r.logger.Warnf("Error handling %s command: %v", key, err)
				}
			}
		}
	}
}

func (r *RedisClient) handleBlinkerCommand(value string) error {
	if r.callbacks.BlinkerCallback == nil {
		return nil
	}
	switch value {
	case "off", "left", "right":
		return r.callbacks.BlinkerCallback(types.IndicatorState(value))
	default:
		r.logger.Infof("Invalid blinker command value: %s", value)
		return fmt.Errorf("invalid blinker command: %s", value)
	}
}

func (r *RedisClient) handleWipersCommand(value string) error {
	if r.callbacks.WipersCallback == nil {
		return nil
	}
	var state types.WiperState
	switch value {
	case "manual":
		state = types.WipersManual
	case "off":
		state = types.WipersOff
	case "intermittent":
		state = types.WipersIntermittent
	case "low":
		state = types.WipersLow
	case "high":
		state = types.WipersHigh
	default:
		r.logger.Infof("Invalid wipers command value: %s", value)
		return fmt.Errorf("invalid wipers command: %s", value)
	}
	return r.callbacks.WipersCallback(state)
}

// publishHashSet atomically updates a hash field and publishes a notification
func (r *RedisClient) publishHashSet(hash, field string, value interface{}, channel, payload string) error {
	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, hash, field, value)
	pipe.Publish(r.ctx, channel, payload)
	_, err := pipe.Exec(r.ctx)
	return err
}

func (r *RedisClient) SetIndicatorState(state types.IndicatorState) error {
	r.logger.Debugf("Setting indicator state: %s", state)
	if err := r.publishHashSet("stalks", "blinker", string(state), "stalks", "blinker"); err != nil {
		r.logger.Warnf("Failed to set indicator state: %v", err)
		return err
	}
	return nil
}

func (r *RedisClient) SetLightState(state types.LightState) error {
	r.logger.Debugf("Setting light state: %s", state)
	if err := r.publishHashSet("stalks", "lights", state.String(), "stalks", "lights"); err != nil {
		r.logger.Warnf("Failed to set light state: %v", err)
		return err
	}
	return nil
}

func (r *RedisClient) SetWiperState(state types.WiperState) error {
	r.logger.Debugf("Setting wiper state: %s", state)
	if err := r.publishHashSet("stalks", "wipers", state.String(), "stalks", "wipers"); err != nil {
		r.logger.Warnf("Failed to set wiper state: %v", err)
		return err
	}
	return nil
}

// SetConnectionState publishes the stalk device link state together with the
// device product name ("" while disconnected).
func (r *RedisClient) SetConnectionState(state types.ConnectionState, device string) error {
	r.logger.Debugf("Setting connection state: %s", state)
	timestamp := time.Now().Format(time.RFC3339)

	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, "stalks", "connection", string(state))
	pipe.HSet(r.ctx, "stalks", "device", device)
	pipe.HSet(r.ctx, "stalks", "connection:timestamp", timestamp)
	pipe.Publish(r.ctx, "stalks", "connection")
	if _, err := pipe.Exec(r.ctx); err != nil {
		r.logger.Warnf("Failed to set connection state: %v", err)
		return err
	}
	return nil
}

func (r *RedisClient) Close() error {
	r.logger.Infof("Closing Redis client")
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Infof("All Redis goroutines finished")
	case <-time.After(5 * time.Second):
		r.logger.Infof("Timeout waiting for Redis goroutines to finish")
	}

	return r.client.Close()
}
