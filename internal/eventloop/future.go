package eventloop

import (
	"context"
	"sync"
)

// Future is the eventual result of a function run on a loop
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) complete(val T, err error) {
	f.once.Do(func() {
		f.val = val
		f.err = err
		close(f.done)
	})
}

// Go runs fn on loop and returns a future for its result. A panic in fn
// fails the future instead of reaching the loop's unhandled callback.
func Go[T any](loop *Loop, fn func() (T, error)) *Future[T] {
	f := newFuture[T]()
	ok := loop.Post(func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				f.complete(zero, &PanicError{Value: r})
			}
		}()
		f.complete(fn())
	})
	if !ok {
		var zero T
		f.complete(zero, ErrShutdown)
	}
	return f
}

// Wait blocks until the result is available or ctx is done
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Ready reports whether the result is available
func (f *Future[T]) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Done is closed when the result is available
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}
