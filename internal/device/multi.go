package device

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Multi presents several gateways as one. Output ids are prefixed with the
// gateway name, e.g. "rtmidi:IAC Driver Bus 1".
type Multi struct {
	names []string
	gws   map[string]Gateway

	mu      sync.Mutex
	granted map[string]bool
}

// NewMulti returns a gateway over the named gateways, listed in order.
func NewMulti() *Multi {
	return &Multi{
		gws:     make(map[string]Gateway),
		granted: make(map[string]bool),
	}
}

// Add registers a gateway under name.
func (m *Multi) Add(name string, gw Gateway) *Multi {
	m.names = append(m.names, name)
	m.gws[name] = gw
	return m
}

// RequestAccess succeeds if at least one gateway grants access.
func (m *Multi) RequestAccess(ctx context.Context) error {
	var msgs []string
	var first error
	for _, name := range m.names {
		err := m.gws[name].RequestAccess(ctx)
		m.mu.Lock()
		m.granted[name] = err == nil
		m.mu.Unlock()
		if err != nil {
			msgs = append(msgs, name+": "+err.Error())
			if first == nil {
				first = err
			}
		}
	}
	if len(msgs) < len(m.names) {
		return nil
	}
	if first == nil {
		return errors.Wrap(ErrUnsupported, "no gateways configured")
	}
	return errors.Wrap(first, strings.Join(msgs, "; "))
}

func (m *Multi) Outputs(ctx context.Context) ([]Output, error) {
	var out []Output
	for _, name := range m.names {
		if !m.isGranted(name) {
			continue
		}
		outs, err := m.gws[name].Outputs(ctx)
		if err != nil {
			return nil, errors.Wrap(err, name)
		}
		for _, o := range outs {
			out = append(out, Output{ID: name + ":" + o.ID, Name: o.Name})
		}
	}
	return out, nil
}

func (m *Multi) Send(out Output, msg []byte) error {
	name, id, ok := strings.Cut(out.ID, ":")
	gw, known := m.gws[name]
	if !ok || !known {
		return errors.Wrapf(ErrUnknownOutput, "%q", out.ID)
	}
	return gw.Send(Output{ID: id, Name: out.Name}, msg)
}

// Changes merges the change notifications of all gateways.
func (m *Multi) Changes(ctx context.Context) <-chan struct{} {
	out := make(chan struct{}, 1)
	var wg sync.WaitGroup
	for _, name := range m.names {
		ch := m.gws[name].Changes(ctx)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range ch {
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

func (m *Multi) Close() error {
	var first error
	for _, name := range m.names {
		if err := m.gws[name].Close(); err != nil && first == nil {
			first = errors.Wrap(err, name)
		}
	}
	return first
}

func (m *Multi) isGranted(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.granted[name]
}
