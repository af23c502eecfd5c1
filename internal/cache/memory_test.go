package cache

import (
	"fmt"
	"sync"
	"testing"
)

func TestMemoryCache_BasicOperations(t *testing.T) {
	cache := NewMemoryCache(1024)

	key := "kjv/JHN/3/16/narrator"
	value := []byte("pcm-bytes")

	if err := cache.Put(key, value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok := cache.Get(key)
	if !ok {
		t.Fatal("Get failed: key not found")
	}
	if string(got) != string(value) {
		t.Errorf("Get = %q, want %q", got, value)
	}

	if !cache.Contains(key) {
		t.Error("Contains returned false for existing key")
	}
	if s := cache.Stats(); s.Size != int64(len(value)) || s.ItemCount != 1 {
		t.Errorf("Stats = %+v", s)
	}

	cache.Delete(key)
	if cache.Contains(key) {
		t.Error("key still exists after delete")
	}
	if s := cache.Stats(); s.Size != 0 {
		t.Errorf("size not zero after delete: %d", s.Size)
	}
}

func TestMemoryCache_LastWriteWins(t *testing.T) {
	cache := NewMemoryCache(1024)

	_ = cache.Put("k", []byte("first"))
	_ = cache.Put("k", []byte("second, longer"))

	got, _ := cache.Get("k")
	if string(got) != "second, longer" {
		t.Errorf("Get = %q, want last write", got)
	}
	if s := cache.Stats(); s.Size != int64(len("second, longer")) || s.ItemCount != 1 {
		t.Errorf("Stats after overwrite = %+v", s)
	}
}

func TestMemoryCache_CopiesValues(t *testing.T) {
	cache := NewMemoryCache(1024)

	value := []byte("pcm-bytes")
	_ = cache.Put("k", value)
	value[0] = 'X'

	got, _ := cache.Get("k")
	if string(got) != "pcm-bytes" {
		t.Fatalf("Get = %q, caller's write leaked into the cache", got)
	}
	got[0] = 'Y'
	if again, _ := cache.Get("k"); string(again) != "pcm-bytes" {
		t.Errorf("Get = %q, returned slice aliases the entry", again)
	}
}

func TestMemoryCache_LRUEviction(t *testing.T) {
	cache := NewMemoryCache(100)

	for i := 0; i < 5; i++ {
		if err := cache.Put(fmt.Sprintf("key-%d", i), make([]byte, 20)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	// Touch key-0 and key-1 so key-2 and key-3 are the oldest.
	cache.Get("key-0")
	cache.Get("key-1")

	if err := cache.Put("key-new", make([]byte, 30)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	for _, k := range []string{"key-0", "key-1", "key-4", "key-new"} {
		if !cache.Contains(k) {
			t.Errorf("%s should survive eviction", k)
		}
	}
	for _, k := range []string{"key-2", "key-3"} {
		if cache.Contains(k) {
			t.Errorf("%s should have been evicted", k)
		}
	}
	if s := cache.Stats(); s.Evictions != 2 {
		t.Errorf("Evictions = %d, want 2", s.Evictions)
	}
}

func TestMemoryCache_TooLarge(t *testing.T) {
	cache := NewMemoryCache(10)
	if err := cache.Put("big", make([]byte, 11)); err != ErrItemTooLarge {
		t.Errorf("Put err = %v, want ErrItemTooLarge", err)
	}
}

func TestMemoryCache_HitRate(t *testing.T) {
	cache := NewMemoryCache(100)
	_ = cache.Put("a", []byte("x"))

	cache.Get("a")
	cache.Get("a")
	cache.Get("a")
	cache.Get("missing")

	s := cache.Stats()
	if s.Hits != 3 || s.Misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 3/1", s.Hits, s.Misses)
	}
	if s.HitRate != 0.75 {
		t.Errorf("HitRate = %v, want 0.75", s.HitRate)
	}
}

func TestMemoryCache_Concurrent(t *testing.T) {
	cache := NewMemoryCache(10 * 1024)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("key-%d-%d", g, i%10)
				_ = cache.Put(key, make([]byte, 16))
				cache.Get(key)
			}
		}(g)
	}
	wg.Wait()

	if s := cache.Stats(); s.Size > 10*1024 {
		t.Errorf("size %d exceeds capacity", s.Size)
	}
}
