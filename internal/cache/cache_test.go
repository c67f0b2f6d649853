package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryGetSetRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	v, ok, err := m.Get(ctx, "k")
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("got v=%q ok=%v err=%v", v, ok, err)
	}
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory()
	fakeNow := time.Now()
	m.now = func() time.Time { return fakeNow }
	ctx := context.Background()
	m.Set(ctx, "k", []byte("v"), time.Second)

	fakeNow = fakeNow.Add(2 * time.Second)
	_, ok, _ := m.Get(ctx, "k")
	if ok {
		t.Fatal("expected expired entry to miss")
	}
}

func TestMemoryMissingKey(t *testing.T) {
	m := NewMemory()
	_, ok, err := m.Get(context.Background(), "nope")
	if err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
}
