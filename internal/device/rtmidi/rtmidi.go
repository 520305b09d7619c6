// Package rtmidi is a device gateway over the system MIDI ports.
package rtmidi

import (
	"context"
	"sync"
	"time"

	"github.com/icco/stepseq/internal/device"
	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
)

var _ device.Gateway = (*Gateway)(nil)

// Gateway reaches the system MIDI ports through gomidi and rtmidi.
type Gateway struct {
	pollRate time.Duration

	mu   sync.Mutex
	open map[string]drivers.Out // output id -> opened port
}

// New returns a gateway over the registered gomidi driver.
func New() *Gateway {
	return &Gateway{
		pollRate: device.DefaultPollInterval,
		open:     make(map[string]drivers.Out),
	}
}

func (m *Gateway) RequestAccess(ctx context.Context) error {
	if drivers.Get() == nil {
		return errors.Wrap(device.ErrUnsupported, "no gomidi driver registered")
	}
	return ctx.Err()
}

func (m *Gateway) Outputs(ctx context.Context) ([]device.Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ports := midi.GetOutPorts()
	names := make([]string, 0, len(ports))
	for _, p := range ports {
		names = append(names, p.String())
	}
	return device.UniqueOutputs(names), nil
}

func (m *Gateway) Send(out device.Output, msg []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	port, ok := m.open[out.ID]
	if !ok {
		var err error
		port, err = m.openLocked(out)
		if err != nil {
			return err
		}
	}
	if err := port.Send(msg); err != nil {
		// Drop the port so the next send reopens it after a replug.
		_ = port.Close()
		delete(m.open, out.ID)
		return errors.Wrap(err, "writing to port")
	}
	return nil
}

func (m *Gateway) openLocked(out device.Output) (drivers.Out, error) {
	ports := midi.GetOutPorts()
	names := make([]string, 0, len(ports))
	for _, p := range ports {
		names = append(names, p.String())
	}
	for i, o := range device.UniqueOutputs(names) {
		if o.ID != out.ID {
			continue
		}
		port := ports[i]
		if err := port.Open(); err != nil {
			return nil, errors.Wrapf(err, "opening port %s", out.Name)
		}
		m.open[out.ID] = port
		return port, nil
	}
	return nil, errors.Wrapf(device.ErrUnknownOutput, "%q", out.ID)
}

func (m *Gateway) Changes(ctx context.Context) <-chan struct{} {
	return device.Poll(ctx, m.pollRate, m.Outputs)
}

func (m *Gateway) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var first error
	for id, port := range m.open {
		if err := port.Close(); err != nil && first == nil {
			first = errors.Wrapf(err, "closing port %s", id)
		}
		delete(m.open, id)
	}
	midi.CloseDriver()
	return first
}
