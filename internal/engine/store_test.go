package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/ZehenForever/sto-log-parser/internal/model"
)

func buildTwo(t *testing.T) []*Combat {
	t.Helper()
	combats, err := BuildSessions([]model.CombatEvent{
		hit(at(0), alice, 10),
		hit(at(1), cube, 5),
		hit(at(100), alice, 20),
	}, 20*time.Second)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(combats) != 2 {
		t.Fatalf("combats=%d want=2", len(combats))
	}
	return combats
}

func TestStore_ReplaceAndGet(t *testing.T) {
	combats := buildTwo(t)
	s := NewStore()
	s.Replace(combats)

	if s.Len() != 2 || s.Version() != 1 {
		t.Fatalf("len=%d version=%d", s.Len(), s.Version())
	}
	got, ok := s.Get(combats[1].ID)
	if !ok || got != combats[1] {
		t.Fatalf("get=%v ok=%v", got, ok)
	}
	if _, ok := s.Get("missing"); ok {
		t.Fatalf("unexpected hit")
	}

	list := s.List()
	list[0] = nil
	if s.List()[0] == nil {
		t.Fatalf("List must return a copy")
	}
}

// Subscribers may read the store from inside the callback; that would
// deadlock if notify ran under the write lock.
func TestStore_NotifiesOutsideLock(t *testing.T) {
	combats := buildTwo(t)
	s := NewStore()

	var seen []int
	unsub := s.Subscribe(func(u StoreUpdate) {
		seen = append(seen, s.Len())
	})

	done := make(chan struct{})
	go func() {
		s.Replace(combats)
		s.Replace(combats)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("store deadlocked while notifying")
	}

	if len(seen) != 2 || seen[0] != 2 || seen[1] != 2 {
		t.Fatalf("seen=%v want=[2 2]", seen)
	}

	unsub()
	unsub()
	s.Replace(nil)
	if len(seen) != 2 {
		t.Fatalf("notified after unsubscribe: %v", seen)
	}
}

func TestStore_ConcurrentReaders(t *testing.T) {
	combats := buildTwo(t)
	s := NewStore()
	s.Replace(combats)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = s.List()
				_, _ = s.Get(combats[0].ID)
			}
		}()
	}
	for j := 0; j < 50; j++ {
		s.Replace(combats)
	}
	wg.Wait()
	if s.Len() != 2 {
		t.Fatalf("len=%d want=2", s.Len())
	}
}
