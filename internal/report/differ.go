// Package report turns polled HID byte reports into discrete button events.
package report

// Edge is the direction of a button transition.
type Edge int

const (
	Pressed Edge = iota
	Released
)

func (e Edge) String() string {
	if e == Pressed {
		return "pressed"
	}
	return "released"
}

// ButtonEvent is a single button transition decoded from a report pair.
// ButtonID is byteIndex*8 + bitIndex within the report.
type ButtonEvent struct {
	ButtonID int
	Edge     Edge
}

// Differ compares successive device reports bit for bit. The first report
// after Reset establishes the baseline and yields no events, so buttons
// that were already held when the device attached do not produce spurious
// presses.
type Differ struct {
	prev []byte
}

func NewDiffer() *Differ {
	return &Differ{}
}

// Reset drops the baseline. Call after every (re)connect.
func (d *Differ) Reset() {
	d.prev = nil
}

// Diff compares current against the stored baseline and returns the button
// transitions in ascending byte index then ascending bit index order.
// current becomes the new baseline.
func (d *Differ) Diff(current []byte) []ButtonEvent {
	prev := d.prev
	d.prev = append([]byte(nil), current...)

	if prev == nil {
		return nil
	}

	var events []ButtonEvent
	n := len(prev)
	if len(current) < n {
		n = len(current)
	}
	for i := 0; i < n; i++ {
		if prev[i] == current[i] {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			oldBit := (prev[i] >> bit) & 1
			newBit := (current[i] >> bit) & 1
			if oldBit == newBit {
				continue
			}
			ev := ButtonEvent{ButtonID: i*8 + bit, Edge: Released}
			if newBit == 1 {
				ev.Edge = Pressed
			}
			events = append(events, ev)
		}
	}
	return events
}
