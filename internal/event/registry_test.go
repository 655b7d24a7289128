package event

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRegistryFiresInOrder(t *testing.T) {
	var r Registry[int]
	var got []string
	r.Subscribe(func(v int) { got = append(got, "a") })
	r.Subscribe(func(v int) { got = append(got, "b") })

	r.Fire(1)

	if diff := cmp.Diff([]string{"a", "b"}, got); diff != "" {
		t.Errorf("fire order mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistryUnsubscribe(t *testing.T) {
	var r Registry[string]
	count := 0
	unsub := r.Subscribe(func(string) { count++ })

	r.Fire("x")
	unsub()
	unsub()
	r.Fire("y")

	if count != 1 {
		t.Errorf("listener called %d times, want 1", count)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistryUnsubscribeDuringFire(t *testing.T) {
	var r Registry[int]
	var got []int
	var unsubA func()
	unsubA = r.Subscribe(func(v int) {
		got = append(got, v)
		unsubA()
	})
	r.Subscribe(func(v int) { got = append(got, v*10) })

	r.Fire(1)
	r.Fire(2)

	if diff := cmp.Diff([]int{1, 10, 20}, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistryClear(t *testing.T) {
	var r Registry[int]
	called := false
	r.Subscribe(func(int) { called = true })
	r.Clear()
	r.Fire(1)

	if called {
		t.Error("listener fired after Clear")
	}
}
