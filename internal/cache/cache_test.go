package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func countingLoader(calls *atomic.Int64, val interface{}, ok bool, err error) Loader {
	return func(context.Context, string) (interface{}, bool, error) {
		calls.Add(1)
		return val, ok, err
	}
}

func TestGetLoadsOnce(t *testing.T) {
	c := New(Options{TTL: time.Minute})
	var calls atomic.Int64
	loader := countingLoader(&calls, "value", true, nil)

	for i := 0; i < 3; i++ {
		val, found, err := c.Get(context.Background(), "k", loader)
		if err != nil || !found {
			t.Fatalf("get %d = (%v, %v, %v)", i, val, found, err)
		}
		if val != "value" {
			t.Fatalf("get %d: val = %v", i, val)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("loader ran %d times, want 1", n)
	}
}

func TestGetReloadsAfterExpiry(t *testing.T) {
	c := New(Options{TTL: 10 * time.Millisecond})
	var calls atomic.Int64
	loader := countingLoader(&calls, "value", true, nil)

	if _, _, err := c.Get(context.Background(), "k", loader); err != nil {
		t.Fatalf("first get: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, _, err := c.Get(context.Background(), "k", loader); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("loader ran %d times, want 2", n)
	}
}

func TestNegativeCaching(t *testing.T) {
	c := New(Options{TTL: time.Minute, NegativeTTL: time.Minute})
	var calls atomic.Int64
	loader := countingLoader(&calls, nil, false, nil)

	for i := 0; i < 3; i++ {
		if _, found, err := c.Get(context.Background(), "missing", loader); found || err != nil {
			t.Fatalf("get %d = (%v, %v)", i, found, err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("negative result not cached, loader ran %d times", n)
	}
}

func TestNegativeNotStoredWithoutTTL(t *testing.T) {
	c := New(Options{TTL: time.Minute})
	var calls atomic.Int64
	loader := countingLoader(&calls, nil, false, nil)

	for i := 0; i < 2; i++ {
		if _, found, _ := c.Get(context.Background(), "missing", loader); found {
			t.Fatalf("get %d: unexpected hit", i)
		}
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("loader ran %d times, want 2", n)
	}
}

func TestLoaderErrorNotCached(t *testing.T) {
	c := New(Options{TTL: time.Minute})
	var calls atomic.Int64
	loader := countingLoader(&calls, nil, false, errors.New("db down"))

	if _, _, err := c.Get(context.Background(), "k", loader); err == nil {
		t.Fatal("expected loader error")
	}
	if _, _, err := c.Get(context.Background(), "k", loader); err == nil {
		t.Fatal("expected loader error on retry")
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("error cached, loader ran %d times", n)
	}
}

func TestDelete(t *testing.T) {
	c := New(Options{TTL: time.Minute})
	var calls atomic.Int64
	loader := countingLoader(&calls, "value", true, nil)

	_, _, _ = c.Get(context.Background(), "k", loader)
	c.Delete("k")
	_, _, _ = c.Get(context.Background(), "k", loader)
	if n := calls.Load(); n != 2 {
		t.Fatalf("loader ran %d times, want 2", n)
	}
}

func TestEviction(t *testing.T) {
	c := New(Options{TTL: time.Minute, MaxEntries: 2})
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Set("c", 3, time.Minute)

	if _, ok := c.Peek("a"); ok {
		t.Fatal("oldest entry not evicted")
	}
	if _, ok := c.Peek("c"); !ok {
		t.Fatal("newest entry missing")
	}
}
