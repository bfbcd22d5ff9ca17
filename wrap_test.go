package tameng

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestCachedFunc(t *testing.T) {
	c := NewCache(WithSweepInterval(0))
	defer c.Close()

	type user struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}

	var calls int64
	lookup := CachedFunc(c,
		func(id int) string { return fmt.Sprintf("user:%d", id) },
		time.Minute,
		func(_ context.Context, id int) (user, error) {
			atomic.AddInt64(&calls, 1)
			return user{ID: id, Name: "alice"}, nil
		})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		got, err := lookup(ctx, 7)
		if err != nil {
			t.Fatalf("lookup returned error: %v", err)
		}
		if got.ID != 7 || got.Name != "alice" {
			t.Errorf("Expected {7 alice}, got %+v", got)
		}
	}

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Errorf("Expected 1 underlying call, got %d", got)
	}
}

func TestCachedFuncDistinctArgs(t *testing.T) {
	c := NewCache(WithSweepInterval(0))
	defer c.Close()

	var calls int64
	double := CachedFunc(c,
		func(n int) string { return fmt.Sprintf("double:%d", n) },
		time.Minute,
		func(_ context.Context, n int) (int, error) {
			atomic.AddInt64(&calls, 1)
			return n * 2, nil
		})

	ctx := context.Background()
	if got, _ := double(ctx, 2); got != 4 {
		t.Errorf("Expected 4, got %d", got)
	}
	if got, _ := double(ctx, 3); got != 6 {
		t.Errorf("Expected 6, got %d", got)
	}
	if got := atomic.LoadInt64(&calls); got != 2 {
		t.Errorf("Expected 2 calls for distinct args, got %d", got)
	}
}

func TestCachedFuncErrorNotCached(t *testing.T) {
	c := NewCache(WithSweepInterval(0))
	defer c.Close()

	var calls int64
	wantErr := errors.New("lookup failed")
	lookup := CachedFunc(c,
		func(id int) string { return fmt.Sprintf("user:%d", id) },
		time.Minute,
		func(_ context.Context, id int) (string, error) {
			if atomic.AddInt64(&calls, 1) == 1 {
				return "", wantErr
			}
			return "recovered", nil
		})

	ctx := context.Background()
	if _, err := lookup(ctx, 1); !errors.Is(err, wantErr) {
		t.Fatalf("Expected lookup error propagated, got %v", err)
	}

	got, err := lookup(ctx, 1)
	if err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	if got != "recovered" {
		t.Errorf("Expected recovered, got %q", got)
	}
	if atomic.LoadInt64(&calls) != 2 {
		t.Errorf("Expected error not cached, got %d calls", calls)
	}
}
