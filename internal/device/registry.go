package device

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/icco/stepseq/internal/logging"
	"github.com/pkg/errors"
)

// Selection is a read-only snapshot of the device selection state.
type Selection struct {
	Outputs       []Output
	Selected      Output
	HasSelected   bool
	AccessGranted bool

	// Err is the last device error, nil once access succeeds again.
	Err error
}

// Ready reports whether notes can be sent.
func (s Selection) Ready() bool {
	return s.AccessGranted && s.HasSelected
}

// Unsupported reports whether the platform has no MIDI support at all.
// Playback stays disabled for the lifetime of the process in that case.
func (s Selection) Unsupported() bool {
	return errors.Is(s.Err, ErrUnsupported)
}

// Registry owns the device selection state. All methods are safe for
// concurrent use; mutations are serialized by one mutex.
type Registry struct {
	gw       Gateway
	log      *log.Logger
	onChange func()

	mu       sync.RWMutex
	outputs  []Output
	selected string
	granted  bool
	err      error
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for device errors.
func WithLogger(l *log.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// WithOnChange registers a callback invoked after every state change.
// It must not call back into the Registry synchronously with a write.
func WithOnChange(fn func()) Option {
	return func(r *Registry) { r.onChange = fn }
}

// NewRegistry wraps a gateway. No access is requested until RequestAccess.
func NewRegistry(gw Gateway, opts ...Option) *Registry {
	r := &Registry{
		gw:       gw,
		log:      logging.Discard(),
		onChange: func() {},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Gateway returns the underlying gateway.
func (r *Registry) Gateway() Gateway { return r.gw }

// RequestAccess initializes the gateway and loads its outputs. The first
// output is selected when nothing is selected yet.
func (r *Registry) RequestAccess(ctx context.Context) error {
	if err := r.gw.RequestAccess(ctx); err != nil {
		r.log.Error("MIDI access failed", "err", err)
		r.update(func() {
			r.granted = false
			r.err = err
		})
		return err
	}

	outs, err := r.gw.Outputs(ctx)
	if err != nil {
		err = errors.Wrap(err, "listing outputs")
		r.log.Error("MIDI access failed", "err", err)
		r.update(func() {
			r.granted = false
			r.err = err
		})
		return err
	}

	r.update(func() {
		r.granted = true
		r.err = nil
		r.outputs = outs
		if !r.contains(r.selected) {
			r.selected = ""
			if len(outs) > 0 {
				r.selected = outs[0].ID
			}
		}
	})
	r.log.Info("MIDI access granted", "outputs", len(outs))
	return nil
}

// Refresh re-enumerates outputs. If the selected output disappeared the
// first remaining output is selected, or none when the list is empty.
// Without access Refresh does nothing.
func (r *Registry) Refresh(ctx context.Context) error {
	r.mu.RLock()
	granted := r.granted
	r.mu.RUnlock()
	if !granted {
		return nil
	}

	outs, err := r.gw.Outputs(ctx)
	if err != nil {
		err = errors.Wrap(err, "refreshing outputs")
		r.log.Error("device refresh failed", "err", err)
		r.update(func() { r.err = err })
		return err
	}

	r.update(func() {
		r.outputs = outs
		if r.selected != "" && !r.contains(r.selected) {
			prev := r.selected
			r.selected = ""
			if len(outs) > 0 {
				r.selected = outs[0].ID
			}
			r.log.Warn("selected output disappeared", "was", prev, "now", r.selected)
		}
	})
	return nil
}

// Select makes the output with the given id current. An empty id clears the
// selection.
func (r *Registry) Select(id string) error {
	r.mu.Lock()
	if id != "" && !r.contains(id) {
		r.mu.Unlock()
		return errors.Wrapf(ErrUnknownOutput, "%q", id)
	}
	r.selected = id
	r.mu.Unlock()
	r.onChange()
	return nil
}

// Selected returns the current output.
func (r *Registry) Selected() (Output, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selectedLocked()
}

// Ready reports whether Send can reach an output.
func (r *Registry) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.selectedLocked()
	return r.granted && ok
}

// Send transmits msg to the selected output.
func (r *Registry) Send(msg []byte) error {
	out, ok := r.Selected()
	if !ok {
		return ErrNoOutput
	}
	return r.SendTo(out, msg)
}

// SendTo transmits msg to out whether or not it is still selected, so a
// Note Off reaches the output that got the Note On. Gateway failures are
// recorded in the selection state and returned.
func (r *Registry) SendTo(out Output, msg []byte) error {
	r.mu.RLock()
	granted := r.granted
	r.mu.RUnlock()

	if !granted {
		return ErrNoOutput
	}
	if err := r.gw.Send(out, msg); err != nil {
		err = errors.Wrapf(err, "sending to %s", out.Name)
		r.log.Error("MIDI send failed", "output", out.ID, "err", err)
		r.update(func() { r.err = err })
		return err
	}
	return nil
}

// Snapshot returns the current selection state.
func (r *Registry) Snapshot() Selection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	outs := make([]Output, len(r.outputs))
	copy(outs, r.outputs)
	sel, ok := r.selectedLocked()
	return Selection{
		Outputs:       outs,
		Selected:      sel,
		HasSelected:   ok,
		AccessGranted: r.granted,
		Err:           r.err,
	}
}

// Close releases the gateway.
func (r *Registry) Close() error {
	return r.gw.Close()
}

func (r *Registry) update(fn func()) {
	r.mu.Lock()
	fn()
	r.mu.Unlock()
	r.onChange()
}

func (r *Registry) contains(id string) bool {
	for _, o := range r.outputs {
		if o.ID == id {
			return true
		}
	}
	return false
}

func (r *Registry) selectedLocked() (Output, bool) {
	if r.selected == "" {
		return Output{}, false
	}
	for _, o := range r.outputs {
		if o.ID == r.selected {
			return o, true
		}
	}
	return Output{}, false
}
