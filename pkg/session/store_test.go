package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestSessionMonotonicFlags(t *testing.T) {
	s := New("s1")

	s.MarkScam(true, 0.6)
	if !s.ScamDetected || s.Confidence != 0.6 {
		t.Fatalf("after MarkScam(true, 0.6): detected=%v conf=%.2f", s.ScamDetected, s.Confidence)
	}

	// A later clean message neither un-detects nor lowers confidence.
	s.MarkScam(false, 0.1)
	if !s.ScamDetected {
		t.Error("scam flag must latch")
	}
	if s.Confidence != 0.6 {
		t.Errorf("confidence dropped to %.2f, must only ratchet up", s.Confidence)
	}

	s.MarkScam(true, 0.9)
	if s.Confidence != 0.9 {
		t.Errorf("confidence = %.2f, want 0.9", s.Confidence)
	}
}

func TestSessionFinalizeOnce(t *testing.T) {
	s := New("s1")

	if s.Finalized {
		t.Fatal("new session must not be finalized")
	}
	if !s.Finalize() {
		t.Error("first Finalize must return true")
	}
	for i := 0; i < 3; i++ {
		if s.Finalize() {
			t.Error("repeat Finalize must return false")
		}
	}
	if !s.Finalized {
		t.Error("finalized flag must stay set")
	}
}

func TestSessionAppendIndices(t *testing.T) {
	s := New("s1")
	for i := 0; i < 4; i++ {
		idx := s.Append(Message{Sender: SenderCounterpart, Text: fmt.Sprintf("m%d", i)})
		if idx != i {
			t.Errorf("Append #%d returned index %d", i, idx)
		}
	}
	if s.MessageCount() != 4 {
		t.Errorf("MessageCount = %d, want 4", s.MessageCount())
	}
	if s.History[2].Timestamp.IsZero() {
		t.Error("Append must stamp messages missing a timestamp")
	}
}

func TestInMemoryStoreLazyCreate(t *testing.T) {
	store := NewInMemoryStore()
	defer func() { _ = store.Close() }()

	if store.Len() != 0 {
		t.Fatalf("fresh store has %d sessions", store.Len())
	}

	err := store.WithLock(context.Background(), "abc", func(s *Session) error {
		if s.ID != "abc" {
			t.Errorf("session ID = %q, want abc", s.ID)
		}
		if s.Artifacts == nil {
			t.Error("lazily created session must have an artifact set")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}

	if store.Len() != 1 {
		t.Errorf("Len = %d after first access, want 1", store.Len())
	}

	// Same ID resolves to the same session.
	_ = store.WithLock(context.Background(), "abc", func(s *Session) error {
		s.Append(Message{Text: "hello"})
		return nil
	})
	_ = store.WithLock(context.Background(), "abc", func(s *Session) error {
		if s.MessageCount() != 1 {
			t.Errorf("MessageCount = %d, want 1", s.MessageCount())
		}
		return nil
	})
}

func TestInMemoryStorePropagatesError(t *testing.T) {
	store := NewInMemoryStore()
	defer func() { _ = store.Close() }()

	want := errors.New("boom")
	if err := store.WithLock(context.Background(), "x", func(*Session) error { return want }); !errors.Is(err, want) {
		t.Errorf("WithLock err = %v, want %v", err, want)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.WithLock(ctx, "x", func(*Session) error { return nil }); err == nil {
		t.Error("cancelled context should fail WithLock")
	}
}

// Hammer one session from many goroutines: every append must survive, which
// fails quickly under the race detector if the lock is broken.
func TestInMemoryStoreSerializesPerSession(t *testing.T) {
	store := NewInMemoryStore()
	defer func() { _ = store.Close() }()

	const goroutines = 16
	const perGoroutine = 25

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				_ = store.WithLock(context.Background(), "hot", func(s *Session) error {
					s.Append(Message{Text: "m"})
					return nil
				})
			}
		}()
	}
	wg.Wait()

	_ = store.WithLock(context.Background(), "hot", func(s *Session) error {
		if got := s.MessageCount(); got != goroutines*perGoroutine {
			t.Errorf("MessageCount = %d, want %d (lost updates)", got, goroutines*perGoroutine)
		}
		return nil
	})
}

// Distinct sessions must not serialize against each other. A session holding
// its lock for a while cannot delay another session's turns.
func TestInMemoryStoreCrossSessionParallelism(t *testing.T) {
	store := NewInMemoryStore()
	defer func() { _ = store.Close() }()

	slowEntered := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = store.WithLock(context.Background(), "slow", func(*Session) error {
			close(slowEntered)
			<-release
			return nil
		})
	}()

	<-slowEntered

	done := make(chan struct{})
	go func() {
		_ = store.WithLock(context.Background(), "fast", func(*Session) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("independent session blocked behind an unrelated lock")
	}
	close(release)
}

func TestInMemoryStoreEviction(t *testing.T) {
	store := NewInMemoryStore(
		WithMaxAge(20*time.Millisecond),
		WithSweepInterval(10*time.Millisecond),
	)
	defer func() { _ = store.Close() }()

	_ = store.WithLock(context.Background(), "old", func(*Session) error { return nil })

	deadline := time.After(2 * time.Second)
	for store.Len() > 0 {
		select {
		case <-deadline:
			t.Fatal("idle session was never evicted")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
