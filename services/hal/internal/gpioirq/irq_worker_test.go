// services/hal/internal/gpioirq/irq_worker_test.go

package gpioirq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"flamering-go/services/hal/internal/halcore"
)

// fakeIRQPin implements halcore.IRQPin with minimal behaviour for tests.
type fakeIRQPin struct {
	mu      sync.Mutex
	level   bool
	handler func()
	number  int
	cleared bool
}

func (p *fakeIRQPin) ConfigureInput(_ halcore.Pull) error { return nil }
func (p *fakeIRQPin) ConfigureOutput(initial bool) error  { p.level = initial; return nil }
func (p *fakeIRQPin) Set(b bool)                          { p.mu.Lock(); p.level = b; p.mu.Unlock() }
func (p *fakeIRQPin) Get() bool                           { p.mu.Lock(); defer p.mu.Unlock(); return p.level }
func (p *fakeIRQPin) Number() int                         { return p.number }
func (p *fakeIRQPin) SetIRQ(_ halcore.Edge, h func()) error {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
	return nil
}
func (p *fakeIRQPin) ClearIRQ() error {
	p.mu.Lock()
	p.handler, p.cleared = nil, true
	p.mu.Unlock()
	return nil
}
func (p *fakeIRQPin) fire(level bool) {
	p.Set(level)
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		h()
	}
}

func TestIRQWorkerDebounceAndEdges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := New(8, 8)
	w.Start(ctx)

	pin := &fakeIRQPin{number: 5}
	st, err := w.RegisterInput("dev1", pin, halcore.EdgeBoth, 10 /*ms*/, false /*invert*/)
	if err != nil {
		t.Fatalf("RegisterInput: %v", err)
	}
	defer st.Close()

	// Initial level is false due to zero value.

	pin.fire(true) // rising
	select {
	case ev := <-st.Events():
		if ev.DevID != "dev1" || ev.Level != 1 || ev.Edge != halcore.EdgeRising {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for rising event")
	}

	// Within debounce window, should be suppressed.
	pin.fire(false)
	select {
	case <-st.Events():
		t.Fatal("unexpected event during debounce")
	case <-time.After(5 * time.Millisecond):
	}

	time.Sleep(12 * time.Millisecond) // exceed debounce

	pin.fire(false) // falling after debounce
	wctx, wcancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer wcancel()
	if err := st.WaitFallingEdge(wctx); err != nil {
		t.Fatalf("WaitFallingEdge: %v", err)
	}
}

func TestIRQWorkerInvert(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := New(8, 8)
	w.Start(ctx)

	pin := &fakeIRQPin{number: 7}
	st, err := w.RegisterInput("devX", pin, halcore.EdgeBoth, 0, true /*invert*/)
	if err != nil {
		t.Fatalf("RegisterInput: %v", err)
	}
	defer st.Close()

	pin.fire(true) // physical high -> logical low due to invert
	select {
	case ev := <-st.Events():
		if ev.Level != 0 || ev.Edge != halcore.EdgeFalling {
			t.Fatalf("expected inverted falling edge, got %+v", ev)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for inverted event")
	}
}

func TestStreamsAreIndependent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := New(8, 8)
	w.Start(ctx)

	a, b := &fakeIRQPin{number: 1, level: true}, &fakeIRQPin{number: 2, level: true}
	sa, _ := w.RegisterInput("a", a, halcore.EdgeFalling, 0, false)
	sb, _ := w.RegisterInput("b", b, halcore.EdgeFalling, 0, false)

	b.fire(false)
	wctx, wcancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer wcancel()
	if err := sb.WaitFallingEdge(wctx); err != nil {
		t.Fatalf("b: %v", err)
	}
	select {
	case ev := <-sa.Events():
		t.Fatalf("a received %+v", ev)
	case <-time.After(5 * time.Millisecond):
	}
}

func TestStreamClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := New(8, 8)
	w.Start(ctx)

	pin := &fakeIRQPin{number: 3}
	st, err := w.RegisterInput("btn", pin, halcore.EdgeFalling, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.RegisterInput("btn", pin, halcore.EdgeFalling, 0, false); err == nil {
		t.Fatal("duplicate registration accepted")
	}
	st.Close()
	st.Close()
	if !pin.cleared {
		t.Fatal("IRQ not cleared on close")
	}
	if err := st.WaitFallingEdge(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("got %v", err)
	}
	pin.fire(false) // no handler any more; must not panic
}
