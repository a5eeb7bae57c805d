package clock

import (
	"testing"
	"time"
)

func TestVirtualAfterFiresInOrder(t *testing.T) {
	c := NewVirtual(time.Unix(0, 0))

	var fired []string
	c.After(5*time.Second, func() { fired = append(fired, "five") })
	c.After(2*time.Second, func() { fired = append(fired, "two") })

	c.Advance(1 * time.Second)
	if len(fired) != 0 {
		t.Fatalf("expected no callbacks before deadline, got %v", fired)
	}

	c.Advance(10 * time.Second)
	if len(fired) != 2 || fired[0] != "two" || fired[1] != "five" {
		t.Fatalf("expected [two five] in order, got %v", fired)
	}
}

func TestVirtualAfterCancel(t *testing.T) {
	c := NewVirtual(time.Unix(0, 0))

	ran := false
	cancel := c.After(time.Second, func() { ran = true })

	if stopped := cancel(); !stopped {
		t.Fatal("expected first cancel to report stopped")
	}
	if stopped := cancel(); stopped {
		t.Fatal("expected second cancel to be a no-op")
	}

	c.Advance(5 * time.Second)
	if ran {
		t.Fatal("cancelled callback must not run")
	}
}

func TestVirtualEveryReschedules(t *testing.T) {
	c := NewVirtual(time.Unix(0, 0))

	count := 0
	cancel := c.Every(time.Second, func() { count++ })

	c.Advance(3500 * time.Millisecond)
	if count != 3 {
		t.Fatalf("expected 3 ticks, got %d", count)
	}

	cancel()
	c.Advance(10 * time.Second)
	if count != 3 {
		t.Fatalf("expected no ticks after cancel, got %d", count)
	}
}

func TestRealAfterCancelIdempotent(t *testing.T) {
	c := NewReal()

	ran := make(chan struct{}, 1)
	cancel := c.After(50*time.Millisecond, func() { ran <- struct{}{} })

	if stopped := cancel(); !stopped {
		t.Fatal("expected cancel before fire to report stopped")
	}
	// Second cancel must not panic and should report not-stopped.
	if stopped := cancel(); stopped {
		t.Fatal("expected second cancel to report not-stopped")
	}

	select {
	case <-ran:
		t.Fatal("cancelled timer fired")
	case <-time.After(100 * time.Millisecond):
	}
}
