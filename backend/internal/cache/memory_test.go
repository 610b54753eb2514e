package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore_GetSet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}

	if err := s.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if string(got) != "v" {
		t.Fatalf("Get = %q, want %q", got, "v")
	}

	if err := s.Del(ctx, "k"); err != nil {
		t.Fatalf("Del error: %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after Del error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Set(ctx, "k", []byte("v"), 20*time.Millisecond); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if _, err := s.Get(ctx, "k"); err != nil {
		t.Fatalf("Get before expiry error: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after expiry error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_SetNX(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ok, err := s.SetNX(ctx, "lock", []byte("1"), 20*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("first SetNX = (%t, %v), want (true, nil)", ok, err)
	}
	ok, err = s.SetNX(ctx, "lock", []byte("1"), 20*time.Millisecond)
	if err != nil || ok {
		t.Fatalf("second SetNX = (%t, %v), want (false, nil)", ok, err)
	}

	// Expired key counts as absent.
	time.Sleep(30 * time.Millisecond)
	ok, err = s.SetNX(ctx, "lock", []byte("1"), 0)
	if err != nil || !ok {
		t.Fatalf("SetNX after expiry = (%t, %v), want (true, nil)", ok, err)
	}
}

func TestMemoryStore_Sets(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.SAdd(ctx, "set", "a", "b"); err != nil {
		t.Fatalf("SAdd error: %v", err)
	}
	if err := s.SAdd(ctx, "set", "b", "c"); err != nil {
		t.Fatalf("SAdd error: %v", err)
	}
	members, err := s.SMembers(ctx, "set")
	if err != nil {
		t.Fatalf("SMembers error: %v", err)
	}
	if len(members) != 3 {
		t.Fatalf("SMembers = %v, want 3 members", members)
	}

	if err := s.SRem(ctx, "set", "a"); err != nil {
		t.Fatalf("SRem error: %v", err)
	}
	members, _ = s.SMembers(ctx, "set")
	if len(members) != 2 {
		t.Fatalf("SMembers after SRem = %v, want 2 members", members)
	}
}

func TestMemoryStore_ListTrim(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := s.RPush(ctx, "list", []byte{byte('a' + i)}); err != nil {
			t.Fatalf("RPush error: %v", err)
		}
	}
	// Keep the last 3, redis-style negative range.
	if err := s.LTrim(ctx, "list", -3, -1); err != nil {
		t.Fatalf("LTrim error: %v", err)
	}
	vals, err := s.LRange(ctx, "list", 0, -1)
	if err != nil {
		t.Fatalf("LRange error: %v", err)
	}
	if len(vals) != 3 {
		t.Fatalf("LRange = %d entries, want 3", len(vals))
	}
	if string(vals[0]) != "c" || string(vals[2]) != "e" {
		t.Fatalf("LRange = %q..%q, want c..e", vals[0], vals[2])
	}
}

func TestMemoryStore_KeysPrefix(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.Set(ctx, "presence:u1", []byte("1"), 0)
	_ = s.Set(ctx, "presence:u2", []byte("2"), 0)
	_ = s.Set(ctx, "cursor:d1:u1", []byte("3"), 0)

	keys, err := s.Keys(ctx, "presence:")
	if err != nil {
		t.Fatalf("Keys error: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("Keys = %v, want 2 presence keys", keys)
	}
}
