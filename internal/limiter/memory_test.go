package limiter

import (
	"context"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time      { return c.t }
func (c *clock) add(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter() (*Memory, *clock) {
	c := &clock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := NewMemory(15*time.Minute, 3, 10*time.Minute)
	l.SetClock(c.now)
	return l, c
}

func TestMemory_BlocksAfterMaxFails(t *testing.T) {
	ctx := context.Background()
	l, c := newTestLimiter()

	for i := 0; i < 2; i++ {
		blocked, _, err := l.Failure(ctx, "u", nil)
		if err != nil || blocked {
			t.Fatalf("failure %d: blocked=%v err=%v", i, blocked, err)
		}
	}
	blocked, retry, err := l.Failure(ctx, "u", nil)
	if err != nil || !blocked || retry != 10*time.Minute {
		t.Fatalf("3rd failure: blocked=%v retry=%v err=%v", blocked, retry, err)
	}

	ok, retry, _ := l.Allow(ctx, "u", nil)
	if ok || retry != 10*time.Minute {
		t.Fatalf("Allow while blocked: ok=%v retry=%v", ok, retry)
	}
	if ok, _, _ := l.Allow(ctx, "other", nil); !ok {
		t.Fatalf("other user must not be blocked")
	}

	c.add(10*time.Minute + time.Second)
	if ok, _, _ := l.Allow(ctx, "u", nil); !ok {
		t.Fatalf("block must expire")
	}
}

func TestMemory_WindowResetsCount(t *testing.T) {
	ctx := context.Background()
	l, c := newTestLimiter()

	_, _, _ = l.Failure(ctx, "u", nil)
	_, _, _ = l.Failure(ctx, "u", nil)
	c.add(16 * time.Minute)
	if blocked, _, _ := l.Failure(ctx, "u", nil); blocked {
		t.Fatalf("count must restart after the window")
	}
}

func TestMemory_SuccessResets(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter()

	_, _, _ = l.Failure(ctx, "u", nil)
	_, _, _ = l.Failure(ctx, "u", nil)
	if err := l.Success(ctx, "u", nil); err != nil {
		t.Fatalf("Success: %v", err)
	}
	if blocked, _, _ := l.Failure(ctx, "u", nil); blocked {
		t.Fatalf("success must reset the counter")
	}
}

func TestMemory_KeyedByIP(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter()
	a, b := HashIP("10.0.0.1"), HashIP("10.0.0.2")

	for i := 0; i < 3; i++ {
		_, _, _ = l.Failure(ctx, "u", a)
	}
	if ok, _, _ := l.Allow(ctx, "u", a); ok {
		t.Fatalf("ip a must be blocked")
	}
	if ok, _, _ := l.Allow(ctx, "u", b); !ok {
		t.Fatalf("ip b must be allowed")
	}
}

func TestHashIP_Stable(t *testing.T) {
	if string(HashIP("1.2.3.4")) != string(HashIP("1.2.3.4")) {
		t.Fatalf("hash must be stable")
	}
	if len(HashIP("x")) != 32 {
		t.Fatalf("want sha256 length")
	}
}
