package bus

import "context"

// Mailbox is a bounded FIFO with a single consumer. Unlike topic subscriptions
// it never drops: Publish blocks while the mailbox is full.
type Mailbox[T any] struct {
	ch chan T
}

// NewMailbox creates a mailbox holding up to capacity values (minimum 1).
func NewMailbox[T any](capacity int) *Mailbox[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Mailbox[T]{ch: make(chan T, capacity)}
}

// Publish enqueues v, waiting for a free slot. It returns ctx.Err() if the
// context ends first, in which case v was not enqueued.
func (m *Mailbox[T]) Publish(ctx context.Context, v T) error {
	select {
	case m.ch <- v:
		return nil
	default:
	}
	select {
	case m.ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryTake returns the oldest pending value, or ok == false when empty.
func (m *Mailbox[T]) TryTake() (v T, ok bool) {
	select {
	case v = <-m.ch:
		return v, true
	default:
		return v, false
	}
}

// Take waits for the oldest pending value.
func (m *Mailbox[T]) Take(ctx context.Context) (T, error) {
	select {
	case v := <-m.ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (m *Mailbox[T]) Len() int { return len(m.ch) }
func (m *Mailbox[T]) Cap() int { return cap(m.ch) }
