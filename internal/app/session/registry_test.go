package session

import (
	"sync"
	"testing"

	"attendance_tracker_bot/internal/domain/transport/transporttest"
)

func TestRegistry_SetGetRemove(t *testing.T) {
	r := NewRegistry()
	c := transporttest.NewClient("91")

	if _, ok := r.Get("91"); ok {
		t.Fatal("empty registry returned a client")
	}
	r.Set("91", c)
	if got, ok := r.Get("91"); !ok || got != c {
		t.Fatalf("Get() = %v, %v", got, ok)
	}
	r.Remove("91")
	if _, ok := r.Get("91"); ok {
		t.Fatal("client still registered after Remove")
	}
}

func TestRegistry_RemoveIfKeepsReplacement(t *testing.T) {
	r := NewRegistry()
	old, replacement := transporttest.NewClient("91"), transporttest.NewClient("91")
	r.Set("91", old)
	r.Set("91", replacement)

	if r.RemoveIf("91", old) {
		t.Error("RemoveIf removed a session it does not own")
	}
	if got, _ := r.Get("91"); got != replacement {
		t.Error("replacement session was lost")
	}
	if !r.RemoveIf("91", replacement) {
		t.Error("RemoveIf did not remove its own session")
	}
}

func TestRegistry_ConcurrentCoordinators(t *testing.T) {
	r := NewRegistry()
	ids := []string{"91", "92", "93", "94"}
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r.Set(id, transporttest.NewClient(id))
				r.Get(id)
			}
		}(id)
	}
	wg.Wait()
	if got := r.IDs(); len(got) != len(ids) {
		t.Errorf("IDs() = %v", got)
	}
}
