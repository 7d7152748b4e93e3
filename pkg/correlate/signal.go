package correlate

import (
	"context"
	"errors"
	"sync"
)

var ErrCancelled = errors.New("signal cancelled")

// Signal is a single-resolution handle. The first Resolve, Fail or Cancel
// wins; later calls are ignored. Waiters never re-arm it.
type Signal[T any] struct {
	once   sync.Once
	done   chan struct{}
	value  T
	err    error
	cancel func()
}

// NewSignal returns an unresolved signal. onCancel, if set, runs once when the
// signal is cancelled.
func NewSignal[T any](onCancel func()) *Signal[T] {
	return &Signal[T]{
		done:   make(chan struct{}),
		cancel: onCancel,
	}
}

// Resolve settles the signal with v. It reports whether this call won.
func (s *Signal[T]) Resolve(v T) bool {
	return s.settle(v, nil)
}

// Fail settles the signal with err. It reports whether this call won.
func (s *Signal[T]) Fail(err error) bool {
	var zero T
	return s.settle(zero, err)
}

// Cancel fails the signal with ErrCancelled and releases whatever feeds it.
func (s *Signal[T]) Cancel() {
	if s.Fail(ErrCancelled) && s.cancel != nil {
		s.cancel()
	}
}

func (s *Signal[T]) settle(v T, err error) bool {
	won := false
	s.once.Do(func() {
		s.value, s.err = v, err
		won = true
		close(s.done)
	})
	return won
}

// Done is closed once the signal is settled.
func (s *Signal[T]) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the signal settles or ctx is done. A done ctx does not
// settle the signal; it can be waited on again.
func (s *Signal[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-s.done:
		return s.value, s.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
