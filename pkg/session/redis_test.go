package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/lurewire/decoy/pkg/intel"
)

func newTestRedisStore(t *testing.T, opts ...RedisOption) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, opts...), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	err := store.WithLock(ctx, "s1", func(s *Session) error {
		s.Append(Message{Sender: SenderCounterpart, Text: "pay abc@upi"})
		s.Artifacts.Add(intel.Artifact{Kind: intel.KindPaymentHandle, Value: "abc@upi"})
		s.MarkScam(true, 0.6)
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}

	// A second lock cycle must see everything the first one wrote.
	err = store.WithLock(ctx, "s1", func(s *Session) error {
		if s.MessageCount() != 1 {
			t.Errorf("MessageCount = %d, want 1", s.MessageCount())
		}
		if !s.Artifacts.Contains(intel.KindPaymentHandle, "abc@upi") {
			t.Error("artifact lost across save/load")
		}
		if !s.ScamDetected || s.Confidence != 0.6 {
			t.Errorf("flags lost: detected=%v conf=%.2f", s.ScamDetected, s.Confidence)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock reload: %v", err)
	}
}

func TestRedisStoreSkipsSaveOnError(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	_ = store.WithLock(ctx, "s1", func(s *Session) error {
		s.Append(Message{Text: "first"})
		return nil
	})

	boom := errors.New("boom")
	err := store.WithLock(ctx, "s1", func(s *Session) error {
		s.Append(Message{Text: "second"})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	// The failed mutation must not have been persisted.
	_ = store.WithLock(ctx, "s1", func(s *Session) error {
		if s.MessageCount() != 1 {
			t.Errorf("MessageCount = %d, want 1 (failed write leaked)", s.MessageCount())
		}
		return nil
	})
}

func TestRedisStoreLockReleased(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.WithLock(ctx, "s1", func(*Session) error { return nil }); err != nil {
		t.Fatalf("WithLock: %v", err)
	}
	if mr.Exists("decoy:lock:s1") {
		t.Error("lock key not released after WithLock returned")
	}

	// Released on the error path too.
	_ = store.WithLock(ctx, "s1", func(*Session) error { return errors.New("x") })
	if mr.Exists("decoy:lock:s1") {
		t.Error("lock key not released after fn error")
	}
}

func TestRedisStoreSerializesPerSession(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	const goroutines = 8
	const perGoroutine = 10

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				_ = store.WithLock(ctx, "hot", func(s *Session) error {
					s.Append(Message{Text: "m"})
					return nil
				})
			}
		}()
	}
	wg.Wait()

	_ = store.WithLock(ctx, "hot", func(s *Session) error {
		if got := s.MessageCount(); got != goroutines*perGoroutine {
			t.Errorf("MessageCount = %d, want %d (lost updates)", got, goroutines*perGoroutine)
		}
		return nil
	})
}

func TestRedisStoreAcquireRespectsContext(t *testing.T) {
	store, mr := newTestRedisStore(t)

	// Simulate another worker holding the lock.
	mr.Set("decoy:lock:s1", "someone-else")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := store.WithLock(ctx, "s1", func(*Session) error { return nil })
	if err == nil {
		t.Fatal("expected lock acquisition to fail while held elsewhere")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("acquisition blocked %v past the context deadline", elapsed)
	}
}

func TestRedisStoreSessionTTL(t *testing.T) {
	store, mr := newTestRedisStore(t, WithSessionTTL(time.Minute))
	ctx := context.Background()

	_ = store.WithLock(ctx, "s1", func(s *Session) error {
		s.Append(Message{Text: "m"})
		return nil
	})

	if ttl := mr.TTL("decoy:session:s1"); ttl <= 0 || ttl > time.Minute {
		t.Errorf("session TTL = %v, want (0, 1m]", ttl)
	}

	// Expiry makes the session vanish; the next access starts fresh.
	mr.FastForward(2 * time.Minute)
	_ = store.WithLock(ctx, "s1", func(s *Session) error {
		if s.MessageCount() != 0 {
			t.Errorf("expired session still has %d messages", s.MessageCount())
		}
		return nil
	})
}
