package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/i474232898/weerlive/internal/weerlive"
)

func TestMemoryStoreEmpty(t *testing.T) {
	s := NewMemoryStore()

	if _, err := s.Latest(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreSaveReplaces(t *testing.T) {
	s := NewMemoryStore()

	first := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.Save(weerlive.Snapshot{Fields: map[string]any{"temp": "10.0"}, UpdatedAt: first})
	s.Save(weerlive.Snapshot{Fields: map[string]any{"temp": "11.5"}, UpdatedAt: first.Add(5 * time.Minute)})

	got, err := s.Latest()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Fields["temp"] != "11.5" {
		t.Fatalf("expected latest temp 11.5, got %v", got.Fields["temp"])
	}
	if !got.UpdatedAt.Equal(first.Add(5 * time.Minute)) {
		t.Fatalf("unexpected timestamp %v", got.UpdatedAt)
	}
}

// Readers running alongside the writer must always see a matching
// field/timestamp pair.
func TestMemoryStoreConcurrentReaders(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap, err := s.Latest()
				if err != nil {
					continue
				}
				n := snap.Fields["n"].(int)
				if !snap.UpdatedAt.Equal(base.Add(time.Duration(n) * time.Second)) {
					t.Errorf("torn snapshot: n=%d updated=%v", n, snap.UpdatedAt)
					return
				}
			}
		}()
	}

	for i := 0; i < 1000; i++ {
		s.Save(weerlive.Snapshot{
			Fields:    map[string]any{"n": i},
			UpdatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}
	close(stop)
	wg.Wait()
}
