// Package device is the boundary between the sequencer and MIDI outputs.
//
// A Gateway talks to one platform API (rtmidi through gomidi, PortMidi, or
// the built-in synth). A Registry holds the device selection state on top
// of a Gateway: the enumerated outputs, which one is selected, whether
// access was granted and the last device error.
package device

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrUnsupported means the platform has no usable MIDI API.
	ErrUnsupported = errors.New("MIDI is not supported on this system")
	// ErrAccessDenied means the MIDI API refused access.
	ErrAccessDenied = errors.New("MIDI access denied")
	// ErrNoOutput means no output is selected or access was not granted.
	ErrNoOutput = errors.New("no MIDI output selected")
	// ErrUnknownOutput means an output id is not in the enumerated list.
	ErrUnknownOutput = errors.New("unknown MIDI output")
)

// DefaultPollInterval is how often gateways without native notifications
// re-enumerate their ports.
const DefaultPollInterval = time.Second

// Output identifies one MIDI output. ID is stable across enumerations.
type Output struct {
	ID   string
	Name string
}

func (o Output) String() string { return o.Name }

// Gateway is a platform MIDI API.
type Gateway interface {
	// RequestAccess initializes the platform API. It returns an error
	// wrapping ErrUnsupported or ErrAccessDenied on failure.
	RequestAccess(ctx context.Context) error
	// Outputs enumerates the available outputs in a stable order.
	Outputs(ctx context.Context) ([]Output, error)
	// Send transmits one raw MIDI message without waiting for delivery.
	Send(out Output, msg []byte) error
	// Changes signals whenever the set of outputs changes. The channel is
	// closed when ctx is done. Gateways whose outputs never change may
	// return a channel that only closes.
	Changes(ctx context.Context) <-chan struct{}
	// Close releases every open port.
	Close() error
}

// Poll re-enumerates every interval and signals when the output set differs
// from the previous scan. Failed scans are skipped. Gateways without native
// hot-plug notifications implement Changes with it.
func Poll(ctx context.Context, interval time.Duration, list func(context.Context) ([]Output, error)) <-chan struct{} {
	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		prev, _ := list(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cur, err := list(ctx)
				if err != nil {
					continue
				}
				if !sameOutputs(prev, cur) {
					prev = cur
					select {
					case ch <- struct{}{}:
					default:
					}
				}
			}
		}
	}()
	return ch
}

func sameOutputs(a, b []Output) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// UniqueOutputs builds outputs from port names. Outputs sharing a name get
// ids suffixed with "#2", "#3"...
func UniqueOutputs(names []string) []Output {
	seen := make(map[string]int, len(names))
	out := make([]Output, 0, len(names))
	for _, name := range names {
		seen[name]++
		id := name
		if n := seen[name]; n > 1 {
			id = name + "#" + strconv.Itoa(n)
		}
		out = append(out, Output{ID: id, Name: name})
	}
	return out
}
