package eventloop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func startLoop(t *testing.T) *Loop {
	t.Helper()
	l := New("test")
	go l.Run()
	t.Cleanup(func() {
		l.Shutdown()
		<-l.Done()
	})
	return l
}

func TestLoopRunsTasksInOrder(t *testing.T) {
	l := startLoop(t)

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	<-l.Sync()

	want := make([]int, 100)
	for i := range want {
		want[i] = i
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestLoopConcurrentProducers(t *testing.T) {
	l := startLoop(t)

	var mu sync.Mutex
	count := 0
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				l.Post(func() {
					mu.Lock()
					count++
					mu.Unlock()
				})
			}
		}()
	}
	wg.Wait()
	<-l.Sync()

	if count != 2000 {
		t.Fatalf("count = %d, want 2000", count)
	}
}

func TestLoopRoutesErrorsAndPanics(t *testing.T) {
	l := New("test")
	var errs []error
	l.OnUnhandled(func(err error) { errs = append(errs, err) })
	go l.Run()
	defer func() {
		l.Shutdown()
		<-l.Done()
	}()

	boom := errors.New("boom")
	l.Schedule(func() error { return boom })
	l.Post(func() { panic("kaboom") })
	ran := false
	l.Post(func() { ran = true })
	<-l.Sync()

	if !ran {
		t.Fatal("loop stopped after a failing task")
	}
	if len(errs) != 2 {
		t.Fatalf("got %d errors, want 2", len(errs))
	}
	if !errors.Is(errs[0], boom) {
		t.Errorf("first error = %v, want boom", errs[0])
	}
	var pe *PanicError
	if !errors.As(errs[1], &pe) || pe.Value != "kaboom" {
		t.Errorf("second error = %v, want recovered panic", errs[1])
	}
}

func TestShutdownDrainsAndDrops(t *testing.T) {
	l := New("test")
	release := make(chan struct{})
	var ran []string
	l.Post(func() {
		<-release
		ran = append(ran, "first")
	})
	l.Post(func() { ran = append(ran, "second") })

	go l.Run()
	l.Shutdown()

	if l.Schedule(func() error { ran = append(ran, "late"); return nil }) {
		t.Error("Schedule accepted a task after Shutdown")
	}
	close(release)

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("Run did not return after drain")
	}
	if diff := cmp.Diff([]string{"first", "second"}, ran); diff != "" {
		t.Fatalf("ran (-want +got):\n%s", diff)
	}

	select {
	case <-l.Sync():
	default:
		t.Fatal("Sync after shutdown should be closed")
	}
}

func TestFuture(t *testing.T) {
	l := startLoop(t)

	f := Go(l, func() (string, error) { return "title", nil })
	got, err := f.Wait(context.Background())
	if err != nil || got != "title" {
		t.Fatalf("Wait = %q, %v", got, err)
	}
	if !f.Ready() {
		t.Fatal("future not ready after Wait")
	}

	p := Go(l, func() (int, error) { panic("nope") })
	if _, err := p.Wait(context.Background()); err == nil {
		t.Fatal("expected panic to fail the future")
	}
}

func TestFutureAfterShutdown(t *testing.T) {
	l := New("test")
	l.Shutdown()
	f := Go(l, func() (int, error) { return 1, nil })
	if _, err := f.Wait(context.Background()); !errors.Is(err, ErrShutdown) {
		t.Fatalf("err = %v, want ErrShutdown", err)
	}
}

func TestFutureWaitHonorsContext(t *testing.T) {
	l := startLoop(t)
	block := make(chan struct{})
	defer close(block)
	l.Post(func() { <-block })

	f := Go(l, func() (int, error) { return 1, nil })
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}
