package device

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
)

// fakeGateway records sent messages and serves a mutable output list.
type fakeGateway struct {
	mu        sync.Mutex
	accessErr error
	listErr   error
	sendErr   error
	outputs   []Output
	sent      []sent
	changes   chan struct{}
	closed    bool
}

type sent struct {
	out Output
	msg []byte
}

func newFakeGateway(names ...string) *fakeGateway {
	return &fakeGateway{outputs: UniqueOutputs(names), changes: make(chan struct{}, 1)}
}

func (f *fakeGateway) RequestAccess(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accessErr
}

func (f *fakeGateway) Outputs(context.Context) ([]Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]Output, len(f.outputs))
	copy(out, f.outputs)
	return out, nil
}

func (f *fakeGateway) Send(out Output, msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sent{out: out, msg: append([]byte(nil), msg...)})
	return nil
}

func (f *fakeGateway) Changes(context.Context) <-chan struct{} { return f.changes }

func (f *fakeGateway) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeGateway) setOutputs(names ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs = UniqueOutputs(names)
}

func TestRegistryRequestAccessSelectsFirst(t *testing.T) {
	gw := newFakeGateway("Synth A", "Synth B")
	changes := 0
	r := NewRegistry(gw, WithOnChange(func() { changes++ }))

	if r.Ready() {
		t.Fatal("Expected registry not to be ready before access")
	}
	if err := r.RequestAccess(context.Background()); err != nil {
		t.Fatalf("RequestAccess returned error: %v", err)
	}

	sel := r.Snapshot()
	if !sel.AccessGranted || !sel.HasSelected || sel.Selected.ID != "Synth A" {
		t.Errorf("Expected Synth A selected with access, got %+v", sel)
	}
	if len(sel.Outputs) != 2 {
		t.Errorf("Expected 2 outputs, got %d", len(sel.Outputs))
	}
	if !r.Ready() || !sel.Ready() {
		t.Error("Expected registry to be ready")
	}
	if changes == 0 {
		t.Error("Expected a change notification")
	}
}

func TestRegistryRequestAccessErrors(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		unsupported bool
	}{
		{"denied", ErrAccessDenied, false},
		{"unsupported", errors.Wrap(ErrUnsupported, "no driver"), true},
	}

	for _, tt := range tests {
		gw := newFakeGateway("Synth A")
		gw.accessErr = tt.err
		r := NewRegistry(gw)

		err := r.RequestAccess(context.Background())
		if !errors.Is(err, errors.Cause(tt.err)) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.err, err)
		}
		sel := r.Snapshot()
		if sel.AccessGranted || sel.Err == nil {
			t.Errorf("%s: expected the error to be recorded, got %+v", tt.name, sel)
		}
		if sel.Unsupported() != tt.unsupported {
			t.Errorf("%s: expected Unsupported() = %v", tt.name, tt.unsupported)
		}
		if err := r.Send([]byte{0x90, 60, 100}); !errors.Is(err, ErrNoOutput) {
			t.Errorf("%s: expected ErrNoOutput from Send, got %v", tt.name, err)
		}
	}
}

func TestRegistryRefresh(t *testing.T) {
	gw := newFakeGateway("A", "B", "C")
	r := NewRegistry(gw)
	if err := r.RequestAccess(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := r.Select("B"); err != nil {
		t.Fatal(err)
	}

	// Selected output still present: keep it.
	gw.setOutputs("C", "B")
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if out, _ := r.Selected(); out.ID != "B" {
		t.Errorf("Expected B to stay selected, got %q", out.ID)
	}

	// Selected output unplugged: fall back to the first one.
	gw.setOutputs("C", "D")
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if out, _ := r.Selected(); out.ID != "C" {
		t.Errorf("Expected C after B disappeared, got %q", out.ID)
	}

	// Nothing left: no selection.
	gw.setOutputs()
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Selected(); ok {
		t.Error("Expected no selection with an empty output list")
	}

	gw.listErr = errors.New("driver hung")
	if err := r.Refresh(context.Background()); err == nil {
		t.Error("Expected refresh error")
	}
	if r.Snapshot().Err == nil {
		t.Error("Expected refresh error to be recorded")
	}
}

func TestRegistryRefreshWithoutAccess(t *testing.T) {
	gw := newFakeGateway("A")
	r := NewRegistry(gw)
	if err := r.Refresh(context.Background()); err != nil {
		t.Errorf("Expected refresh without access to be a no-op, got %v", err)
	}
	if len(r.Snapshot().Outputs) != 0 {
		t.Error("Expected no outputs without access")
	}
}

func TestRegistrySelect(t *testing.T) {
	gw := newFakeGateway("A", "B")
	r := NewRegistry(gw)
	if err := r.RequestAccess(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := r.Select("Z"); !errors.Is(err, ErrUnknownOutput) {
		t.Errorf("Expected ErrUnknownOutput, got %v", err)
	}
	if out, _ := r.Selected(); out.ID != "A" {
		t.Errorf("Expected failed select to keep A, got %q", out.ID)
	}
	if err := r.Select(""); err != nil {
		t.Fatal(err)
	}
	if r.Ready() {
		t.Error("Expected registry not ready after clearing the selection")
	}
}

func TestRegistrySend(t *testing.T) {
	gw := newFakeGateway("A", "B")
	r := NewRegistry(gw)
	if err := r.RequestAccess(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := r.Select("B"); err != nil {
		t.Fatal(err)
	}

	if err := r.Send([]byte{0x90, 60, 100}); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if len(gw.sent) != 1 || gw.sent[0].out.ID != "B" {
		t.Fatalf("Expected one message to B, got %+v", gw.sent)
	}

	gw.sendErr = errors.New("port gone")
	if err := r.Send([]byte{0x80, 60, 0}); err == nil {
		t.Error("Expected send error")
	}
	if r.Snapshot().Err == nil {
		t.Error("Expected send error to be recorded")
	}
}

func TestRegistrySendToDeselectedOutput(t *testing.T) {
	gw := newFakeGateway("A", "B")
	r := NewRegistry(gw)
	if err := r.SendTo(gw.outputs[0], []byte{0x80, 60, 0}); !errors.Is(err, ErrNoOutput) {
		t.Errorf("Expected ErrNoOutput before access, got %v", err)
	}
	if err := r.RequestAccess(context.Background()); err != nil {
		t.Fatal(err)
	}
	a, _ := r.Selected()
	if err := r.Select("B"); err != nil {
		t.Fatal(err)
	}

	if err := r.SendTo(a, []byte{0x80, 60, 0}); err != nil {
		t.Fatalf("SendTo returned error: %v", err)
	}
	if err := r.Select(""); err != nil {
		t.Fatal(err)
	}
	if err := r.SendTo(a, []byte{0xB0, 123, 0}); err != nil {
		t.Fatalf("SendTo with nothing selected returned error: %v", err)
	}
	if len(gw.sent) != 2 || gw.sent[0].out.ID != "A" || gw.sent[1].out.ID != "A" {
		t.Errorf("Expected both messages on A, got %+v", gw.sent)
	}
}

func TestUniqueIDs(t *testing.T) {
	outs := UniqueOutputs([]string{"Port", "Other", "Port", "Port"})
	want := []string{"Port", "Other", "Port#2", "Port#3"}
	for i, o := range outs {
		if o.ID != want[i] {
			t.Errorf("Expected id %q, got %q", want[i], o.ID)
		}
		if o.Name != "Port" && o.Name != "Other" {
			t.Errorf("Unexpected name %q", o.Name)
		}
	}
}

func TestPollSignalsChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw := newFakeGateway("A")
	ch := Poll(ctx, time.Millisecond, gw.Outputs)

	// Give the initial scan time to run before changing the list.
	time.Sleep(10 * time.Millisecond)
	gw.setOutputs("A", "B")

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for change notification")
	}

	cancel()
	for range ch {
	}
}
