package redis

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRateLimiterKey(t *testing.T) {
	l := NewRateLimiter(nil, "figmant_dev", 5, time.Minute)
	if got := l.Key("u1"); got != "figmant_dev:ratelimit:dispatch:u1" {
		t.Errorf("Key = %s", got)
	}
}

func TestUnlimited(t *testing.T) {
	ok, err := Unlimited{}.Allow(context.Background(), "u1")
	if !ok || err != nil {
		t.Errorf("Allow = %v, %v", ok, err)
	}
}

// testLimiter connects to TEST_REDIS_URL, skipping when it is not set
func testLimiter(t *testing.T, limit int) (*RateLimiter, func(key string)) {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	rdb, err := NewClient(context.Background(), url)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { rdb.Close() })

	l := NewRateLimiter(rdb, "figmant_test", limit, time.Minute)
	return l, func(key string) { rdb.Del(context.Background(), l.Key(key)) }
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	ctx := context.Background()
	l, cleanup := testLimiter(t, 2)
	clock := time.Now()
	l.now = func() time.Time { return clock }
	user := uuid.NewString()
	defer cleanup(user)

	for i := 0; i < 2; i++ {
		if ok, err := l.Allow(ctx, user); !ok || err != nil {
			t.Fatalf("call %d: Allow = %v, %v", i, ok, err)
		}
	}
	if ok, _ := l.Allow(ctx, user); ok {
		t.Error("third call within window allowed")
	}

	clock = clock.Add(2 * time.Minute)
	if ok, _ := l.Allow(ctx, user); !ok {
		t.Error("call after window refused")
	}
}

func TestRateLimiterConcurrentCallsRespectLimit(t *testing.T) {
	ctx := context.Background()
	l, cleanup := testLimiter(t, 3)
	user := uuid.NewString()
	defer cleanup(user)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.Allow(ctx, user)
			if err != nil {
				t.Error(err)
				return
			}
			if ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 3 {
		t.Errorf("allowed %d concurrent calls, want 3", allowed)
	}
}

func TestRateLimiterRelease(t *testing.T) {
	ctx := context.Background()
	l, cleanup := testLimiter(t, 1)
	user := uuid.NewString()
	defer cleanup(user)

	if ok, err := l.Allow(ctx, user); !ok || err != nil {
		t.Fatalf("first call: Allow = %v, %v", ok, err)
	}
	if ok, _ := l.Allow(ctx, user); ok {
		t.Fatal("second call allowed over the limit")
	}
	if err := l.Release(ctx, user); err != nil {
		t.Fatal(err)
	}
	if ok, err := l.Allow(ctx, user); !ok || err != nil {
		t.Errorf("call after release: Allow = %v, %v", ok, err)
	}
}
