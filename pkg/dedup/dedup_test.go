package dedup

import (
	"context"
	"testing"
	"time"
)

func TestMemorySeen(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	if seen, _ := m.Seen(ctx, "A1"); seen {
		t.Fatalf("first delivery reported as seen")
	}
	if seen, _ := m.Seen(ctx, "A1"); !seen {
		t.Fatalf("redelivery not detected")
	}
	if seen, _ := m.Seen(ctx, "B2"); seen {
		t.Fatalf("other id reported as seen")
	}

	clock = clock.Add(2 * time.Minute)
	if seen, _ := m.Seen(ctx, "A1"); seen {
		t.Fatalf("expired id still reported as seen")
	}
	if _, ok := m.keys["B2"]; ok {
		t.Fatalf("expired key not swept")
	}
}

func TestNewRedisRejectsBadURL(t *testing.T) {
	if _, err := NewRedis(context.Background(), "not-a-url", time.Minute); err == nil {
		t.Fatalf("expected parse error")
	}
}
