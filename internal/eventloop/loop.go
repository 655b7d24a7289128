// Package eventloop provides the single-consumer task queue that serializes
// all window, display and desktop bookkeeping.
package eventloop

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/bryanchriswhite/winman/internal/logger"
)

// ErrShutdown is reported by futures whose task was dropped because the loop
// had already begun shutting down
var ErrShutdown = errors.New("event loop is shut down")

// Task is a unit of work executed on the loop goroutine
type Task func() error

// PanicError wraps a value recovered from a panicking task
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Unwrap exposes the panic value when it is itself an error
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Loop is a FIFO task queue with an unbounded input. Any goroutine may
// Schedule; exactly one goroutine runs Run.
type Loop struct {
	name string

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Task
	closed bool

	handlerMu   sync.RWMutex
	onUnhandled func(error)

	done chan struct{}
}

// New creates an idle loop. Call Run on a dedicated goroutine to start it.
func New(name string) *Loop {
	l := &Loop{
		name: name,
		done: make(chan struct{}),
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Name returns the loop name used in log fields
func (l *Loop) Name() string {
	return l.name
}

// OnUnhandled installs the callback receiving task errors and recovered
// panics. The callback runs on the loop goroutine; a panic inside it is not
// recovered.
func (l *Loop) OnUnhandled(fn func(error)) {
	l.handlerMu.Lock()
	l.onUnhandled = fn
	l.handlerMu.Unlock()
}

// Schedule enqueues task without blocking. It reports false and drops the
// task once Shutdown has been called.
func (l *Loop) Schedule(task Task) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.queue = append(l.queue, task)
	l.cond.Signal()
	return true
}

// Post schedules a task that cannot fail
func (l *Loop) Post(fn func()) bool {
	return l.Schedule(func() error {
		fn()
		return nil
	})
}

// Run consumes tasks until the loop is shut down and the queue is drained
func (l *Loop) Run() {
	defer close(l.done)

	log := logger.WithComponent("eventloop")
	log.Debug().Str("loop", l.name).Msg("Event loop started")

	for {
		task, ok := l.next()
		if !ok {
			log.Debug().Str("loop", l.name).Msg("Event loop drained")
			return
		}
		if err := l.execute(task); err != nil {
			l.unhandled(err)
		}
	}
}

func (l *Loop) next() (Task, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for len(l.queue) == 0 {
		if l.closed {
			return nil, false
		}
		l.cond.Wait()
	}
	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return task, true
}

func (l *Loop) execute(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return task()
}

func (l *Loop) unhandled(err error) {
	l.handlerMu.RLock()
	fn := l.onUnhandled
	l.handlerMu.RUnlock()

	if fn == nil {
		logger.WithComponent("eventloop").Error().
			Err(err).
			Str("loop", l.name).
			Msg("Unhandled task error")
		return
	}
	fn(err)
}

// Shutdown stops admitting tasks. Tasks already queued still run, after
// which Run returns.
func (l *Loop) Shutdown() {
	l.mu.Lock()
	l.closed = true
	l.cond.Broadcast()
	l.mu.Unlock()
}

// Done is closed when Run returns
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Len returns the number of queued tasks
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Sync returns a channel closed once every task queued before the call has
// run. After shutdown the returned channel is already closed.
func (l *Loop) Sync() <-chan struct{} {
	ch := make(chan struct{})
	if !l.Post(func() { close(ch) }) {
		close(ch)
	}
	return ch
}
