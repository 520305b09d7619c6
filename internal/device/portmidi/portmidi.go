// Package portmidi is a device gateway over the PortMidi library.
package portmidi

import (
	"context"
	"sync"
	"time"

	"github.com/icco/stepseq/internal/device"
	"github.com/pkg/errors"
	pm "github.com/rakyll/portmidi"
)

// bufferSize is the event buffer size of an output stream.
const bufferSize = 1024

var _ device.Gateway = (*Gateway)(nil)

// Gateway reaches MIDI outputs through PortMidi.
type Gateway struct {
	pollRate time.Duration

	mu          sync.Mutex
	initialized bool
	streams     map[string]*pm.Stream
}

// New returns a PortMidi gateway. PortMidi is initialized by RequestAccess.
func New() *Gateway {
	return &Gateway{
		pollRate: device.DefaultPollInterval,
		streams:  make(map[string]*pm.Stream),
	}
}

func (p *Gateway) RequestAccess(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		return nil
	}
	if err := pm.Initialize(); err != nil {
		return errors.Wrapf(device.ErrUnsupported, "initializing portmidi: %v", err)
	}
	p.initialized = true
	return ctx.Err()
}

func (p *Gateway) Outputs(ctx context.Context) ([]device.Output, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	outs, _ := p.outputsLocked()
	return outs, ctx.Err()
}

// outputsLocked also returns the PortMidi device id of every output.
func (p *Gateway) outputsLocked() ([]device.Output, []pm.DeviceID) {
	if !p.initialized {
		return nil, nil
	}
	var (
		names []string
		ids   []pm.DeviceID
	)
	for i := 0; i < pm.CountDevices(); i++ {
		id := pm.DeviceID(i)
		info := pm.Info(id)
		if info == nil || !info.IsOutputAvailable {
			continue
		}
		names = append(names, info.Name)
		ids = append(ids, id)
	}
	return device.UniqueOutputs(names), ids
}

func (p *Gateway) Send(out device.Output, msg []byte) error {
	if len(msg) == 0 || len(msg) > 3 {
		return errors.Errorf("portmidi: cannot send %d byte message", len(msg))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.streams[out.ID]
	if !ok {
		outs, ids := p.outputsLocked()
		for i, o := range outs {
			if o.ID != out.ID {
				continue
			}
			var err error
			s, err = pm.NewOutputStream(ids[i], bufferSize, 0)
			if err != nil {
				return errors.Wrapf(err, "opening %s", out.Name)
			}
			p.streams[out.ID] = s
			break
		}
		if s == nil {
			return errors.Wrapf(device.ErrUnknownOutput, "%q", out.ID)
		}
	}

	var data [3]int64
	for i, b := range msg {
		data[i] = int64(b)
	}
	if err := s.WriteShort(data[0], data[1], data[2]); err != nil {
		_ = s.Close()
		delete(p.streams, out.ID)
		return errors.Wrap(err, "writing to portmidi stream")
	}
	return nil
}

// Changes polls the device list. PortMidi only sees devices present at
// Initialize, so changes show up after a restart of the gateway.
func (p *Gateway) Changes(ctx context.Context) <-chan struct{} {
	return device.Poll(ctx, p.pollRate, p.Outputs)
}

func (p *Gateway) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first error
	for id, s := range p.streams {
		if err := s.Close(); err != nil && first == nil {
			first = errors.Wrapf(err, "closing %s", id)
		}
		delete(p.streams, id)
	}
	if p.initialized {
		p.initialized = false
		if err := pm.Terminate(); err != nil && first == nil {
			first = errors.Wrap(err, "terminating portmidi")
		}
	}
	return first
}
