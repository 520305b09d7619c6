package device

import (
	"context"
	"testing"

	"github.com/pkg/errors"
)

func TestMultiGateway(t *testing.T) {
	hw := newFakeGateway("Port 1")
	broken := newFakeGateway("Never")
	broken.accessErr = errors.Wrap(ErrUnsupported, "no driver")
	m := NewMulti().Add("rtmidi", hw).Add("portmidi", broken)
	ctx := context.Background()

	if err := m.RequestAccess(ctx); err != nil {
		t.Fatalf("Expected access through one gateway, got %v", err)
	}
	outs, err := m.Outputs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(outs) != 1 || outs[0].ID != "rtmidi:Port 1" || outs[0].Name != "Port 1" {
		t.Fatalf("Expected only the rtmidi port, got %v", outs)
	}

	if err := m.Send(outs[0], []byte{0x90, 60, 100}); err != nil {
		t.Fatal(err)
	}
	if len(hw.sent) != 1 || hw.sent[0].out.ID != "Port 1" {
		t.Errorf("Expected message routed to Port 1, got %+v", hw.sent)
	}
	if err := m.Send(Output{ID: "nope:x"}, nil); !errors.Is(err, ErrUnknownOutput) {
		t.Errorf("Expected ErrUnknownOutput, got %v", err)
	}

	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if !hw.closed || !broken.closed {
		t.Error("Expected every gateway to be closed")
	}
}

func TestMultiGatewayAllFail(t *testing.T) {
	a := newFakeGateway()
	a.accessErr = errors.Wrap(ErrUnsupported, "a")
	b := newFakeGateway()
	b.accessErr = ErrAccessDenied
	m := NewMulti().Add("a", a).Add("b", b)

	if err := m.RequestAccess(context.Background()); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Expected the first error to be kept, got %v", err)
	}
	if err := NewMulti().RequestAccess(context.Background()); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported with no gateways, got %v", err)
	}
}

func TestMultiChangesMerge(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := newFakeGateway()
	b := newFakeGateway()
	m := NewMulti().Add("a", a).Add("b", b)

	ch := m.Changes(ctx)
	b.changes <- struct{}{}
	if _, ok := <-ch; !ok {
		t.Fatal("Expected a merged change notification")
	}

	cancel()
	close(a.changes)
	close(b.changes)
	for range ch {
	}
}
