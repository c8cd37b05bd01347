// services/hal/internal/gpioirq/irq_worker.go
package gpioirq

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"flamering-go/services/hal/internal/halcore"
	"flamering-go/services/hal/internal/util"
)

// ErrClosed is returned by a stream after it has been unregistered.
var ErrClosed = errors.New("gpioirq: stream closed")

// GPIOEvent is delivered from the worker to a registered stream.
type GPIOEvent struct {
	DevID string
	Level int // 0/1 after inversion applied
	Edge  halcore.Edge
	TS    time.Time
}

type Worker struct {
	// Written by ISR; MUST NOT block the ISR:
	isrQ    chan isrEvent
	outBuf  int
	stopped chan struct{}

	mu     sync.RWMutex
	inputs map[string]*watch // devID -> watch

	drops uint32 // ISR drop counter
}

type isrEvent struct {
	devID string
	level bool // captured in ISR
}

type watch struct {
	devID     string
	pin       halcore.IRQPin
	edge      halcore.Edge
	debounce  time.Duration
	invert    bool
	lastLevel bool
	lastEvent time.Time
	stream    *Stream
}

// Stream carries the edges of one registered input.
type Stream struct {
	id    string
	ch    chan GPIOEvent
	drops uint32
	close func()
}

func (s *Stream) ID() string                { return s.id }
func (s *Stream) Events() <-chan GPIOEvent { return s.ch }

// Drops counts edges discarded because the stream was full.
func (s *Stream) Drops() uint32 { return atomic.LoadUint32(&s.drops) }

// WaitFallingEdge blocks until the next falling edge. Other edges are skipped.
func (s *Stream) WaitFallingEdge(ctx context.Context) error {
	for {
		select {
		case ev, ok := <-s.ch:
			if !ok {
				return ErrClosed
			}
			if ev.Edge == halcore.EdgeFalling {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close unregisters the input and ends the stream.
func (s *Stream) Close() { s.close() }

func New(isrBuf, outBuf int) *Worker {
	if isrBuf <= 0 {
		isrBuf = 64
	}
	if outBuf <= 0 {
		outBuf = 8
	}
	return &Worker{
		isrQ:    make(chan isrEvent, isrBuf),
		outBuf:  outBuf,
		stopped: make(chan struct{}),
		inputs:  map[string]*watch{},
	}
}

func (w *Worker) Start(ctx context.Context) {
	go func() {
		defer close(w.stopped)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-w.isrQ:
				w.handleISR(ev)
			}
		}
	}()
}

// Stopped is closed once the worker goroutine has exited.
func (w *Worker) Stopped() <-chan struct{} { return w.stopped }

func (w *Worker) RegisterInput(devID string, pin halcore.IRQPin, edge halcore.Edge, debounceMS int, invert bool) (*Stream, error) {
	deb := time.Duration(debounceMS) * time.Millisecond

	// Take the initial *logical* level snapshot (after inversion),
	// so that subsequent edge detection compares like-for-like.
	init := pin.Get()
	if invert {
		init = !init
	}
	st := &Stream{id: devID, ch: make(chan GPIOEvent, w.outBuf)}
	wh := &watch{
		devID:     devID,
		pin:       pin,
		edge:      edge,
		debounce:  deb,
		invert:    invert,
		lastLevel: init, // initial logical snapshot
		stream:    st,
	}
	var once sync.Once
	st.close = func() { once.Do(func() { w.unregister(devID, wh) }) }

	w.mu.Lock()
	if _, dup := w.inputs[devID]; dup {
		w.mu.Unlock()
		return nil, errors.New("gpioirq: duplicate input " + devID)
	}
	w.inputs[devID] = wh
	w.mu.Unlock()

	if edge == halcore.EdgeNone {
		return st, nil
	}

	// ISR handler: fast register read + non-blocking channel send.
	handler := func() {
		l := pin.Get()
		select {
		case w.isrQ <- isrEvent{devID: devID, level: l}:
		default:
			atomic.AddUint32(&w.drops, 1) // protect ISR path
		}
	}
	if err := pin.SetIRQ(edge, handler); err != nil {
		w.unregister(devID, wh)
		return nil, err
	}
	return st, nil
}

func (w *Worker) unregister(devID string, wh *watch) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cur, ok := w.inputs[devID]; !ok || cur != wh {
		return
	}
	if wh.edge != halcore.EdgeNone {
		_ = wh.pin.ClearIRQ()
	}
	delete(w.inputs, devID)
	close(wh.stream.ch)
}

// handleISR holds the read lock across the send so unregister cannot close
// the stream underneath it.
func (w *Worker) handleISR(ev isrEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	wh := w.inputs[ev.devID]
	if wh == nil {
		return
	}
	raw := ev.level
	if wh.invert {
		raw = !raw
	}
	now := time.Now()

	// Debounce
	if !wh.lastEvent.IsZero() && now.Sub(wh.lastEvent) < wh.debounce {
		return
	}

	// Edge detection
	var e halcore.Edge
	if wh.edge == halcore.EdgeBoth {
		switch {
		case !wh.lastLevel && raw:
			e = halcore.EdgeRising
		case wh.lastLevel && !raw:
			e = halcore.EdgeFalling
		}
	} else {
		// We only get called when the configured edge fired;
		// trust the configuration for direction on first observation.
		e = wh.edge
	}

	// Emit if requested edge; drop if none (e == EdgeNone)
	if e != halcore.EdgeNone {
		select {
		case wh.stream.ch <- GPIOEvent{DevID: ev.devID, Level: util.BoolToInt(raw), Edge: e, TS: now}:
		default:
			// drop to protect system if consumer is slow
			atomic.AddUint32(&wh.stream.drops, 1)
		}
	}

	// Always update snapshots
	wh.lastLevel = raw
	wh.lastEvent = now
}

func (w *Worker) ISRDrops() uint32 { return atomic.LoadUint32(&w.drops) }
