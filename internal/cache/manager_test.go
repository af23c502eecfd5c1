package cache

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func testKey(unit int) Key {
	return Key{TranslationID: "kjv", BookID: "JHN", Chapter: 3, Unit: unit, VoiceID: "narrator"}
}

func newTestManager(t *testing.T, dir string) *Manager {
	t.Helper()
	cfg := Config{
		MemoryCapacity:   4 * 1024,
		DiskCapacity:     64 * 1024,
		Dir:              dir,
		CompressionLevel: 3,
	}
	m, err := NewManager(cfg, nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

// pcm returns compressible audio-like bytes.
func pcm(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i%7)
	}
	return b
}

func TestKey_String(t *testing.T) {
	if got, want := testKey(16).String(), "kjv/JHN/3/16/narrator"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestKey_Validate(t *testing.T) {
	tests := []struct {
		name    string
		key     Key
		wantErr bool
	}{
		{"complete", testKey(1), false},
		{"no translation", Key{BookID: "JHN", Chapter: 1, Unit: 1, VoiceID: "v"}, true},
		{"no voice", Key{TranslationID: "kjv", BookID: "JHN", Chapter: 1, Unit: 1}, true},
		{"zero chapter", Key{TranslationID: "kjv", BookID: "JHN", Unit: 1, VoiceID: "v"}, true},
		{"zero unit", Key{TranslationID: "kjv", BookID: "JHN", Chapter: 1, VoiceID: "v"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.key.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidKey) {
				t.Errorf("error %v does not wrap ErrInvalidKey", err)
			}
		})
	}
}

func TestManager_PutGet(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	defer m.Close()

	data := pcm(2048, 1)
	if err := m.Put(testKey(1), data); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok := m.Get(testKey(1))
	if !ok {
		t.Fatal("Get: key not found")
	}
	if !bytes.Equal(got, data) {
		t.Error("Get returned different bytes")
	}
	if !m.Exists(testKey(1)) {
		t.Error("Exists = false after Put")
	}
	if m.Exists(testKey(2)) {
		t.Error("Exists = true for a key never stored")
	}
}

func TestManager_LastWriteWins(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, dir)

	_ = m.Put(testKey(1), pcm(1500, 1))
	second := pcm(1500, 9)
	if err := m.Put(testKey(1), second); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, _ := m.Get(testKey(1))
	if !bytes.Equal(got, second) {
		t.Error("Get did not return the last write")
	}
	if s := m.Stats(); s.Disk.ItemCount != 1 {
		t.Errorf("disk items = %d, want 1", s.Disk.ItemCount)
	}
	m.Close()

	// and after a restart, from disk
	m = newTestManager(t, dir)
	defer m.Close()
	got, ok := m.Get(testKey(1))
	if !ok || !bytes.Equal(got, second) {
		t.Error("last write not persisted")
	}
}

func TestManager_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	m := newTestManager(t, dir)
	for i := 1; i <= 3; i++ {
		if err := m.Put(testKey(i), pcm(3000, byte(i))); err != nil {
			t.Fatalf("Put %d failed: %v", i, err)
		}
	}
	// no Close: the index is written on every Put

	reopened := newTestManager(t, dir)
	defer reopened.Close()

	for i := 1; i <= 3; i++ {
		got, ok := reopened.Get(testKey(i))
		if !ok {
			t.Fatalf("unit %d missing after restart", i)
		}
		if !bytes.Equal(got, pcm(3000, byte(i))) {
			t.Errorf("unit %d corrupted after restart", i)
		}
	}
	if s := reopened.Stats(); s.DiskHits != 3 || s.Promotions != 3 {
		t.Errorf("disk hits/promotions = %d/%d, want 3/3", s.DiskHits, s.Promotions)
	}

	// the last promoted entry is now served from memory
	reopened.Get(testKey(3))
	if s := reopened.Stats(); s.MemoryHits != 1 {
		t.Errorf("memory hits = %d, want 1", s.MemoryHits)
	}
}

func TestManager_Clear(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, dir)
	defer m.Close()

	for i := 1; i <= 3; i++ {
		_ = m.Put(testKey(i), pcm(100, byte(i)))
	}
	if err := m.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	for i := 1; i <= 3; i++ {
		if m.Exists(testKey(i)) {
			t.Errorf("unit %d still exists after Clear", i)
		}
	}

	files, _ := filepath.Glob(filepath.Join(dir, "*.pcm"))
	if len(files) != 0 {
		t.Errorf("%d audio files left after Clear", len(files))
	}
}

func TestManager_RejectsInvalidInput(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	defer m.Close()

	if err := m.Put(Key{}, []byte("x")); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Put with empty key err = %v", err)
	}
	if err := m.Put(testKey(1), nil); !errors.Is(err, ErrEmptyValue) {
		t.Errorf("Put with empty value err = %v", err)
	}
}

func TestManager_DiskEvictsLRU(t *testing.T) {
	cfg := Config{
		MemoryCapacity: 1024,
		DiskCapacity:   3000,
		Dir:            t.TempDir(),
	}
	m, err := NewManager(cfg, nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer m.Close()

	for i := 1; i <= 3; i++ {
		if err := m.Put(testKey(i), pcm(1000, byte(i))); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	if err := m.Put(testKey(4), pcm(1000, 4)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if m.Exists(testKey(1)) {
		t.Error("oldest unit should have been evicted")
	}
	if !m.Exists(testKey(4)) {
		t.Error("newest unit missing")
	}
	if s := m.Stats(); s.Disk.Evictions != 1 {
		t.Errorf("disk evictions = %d, want 1", s.Disk.Evictions)
	}
}

func TestManager_CorruptFileIsMiss(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, dir)
	defer m.Close()

	if err := m.Put(testKey(1), pcm(4096, 3)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	m.memory.Clear()

	files, _ := filepath.Glob(filepath.Join(dir, "*.pcm"))
	if len(files) != 1 {
		t.Fatalf("expected 1 audio file, got %d", len(files))
	}
	if err := os.WriteFile(files[0], []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, ok := m.Get(testKey(1)); ok {
		t.Error("corrupt entry returned as a hit")
	}
	if m.Exists(testKey(1)) {
		t.Error("corrupt entry still indexed")
	}
}

func TestManager_ConcurrentAccess(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	defer m.Close()

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 1; i <= 20; i++ {
				key := testKey(i)
				if err := m.Put(key, pcm(200, byte(i))); err != nil {
					t.Errorf("goroutine %d: Put failed: %v", g, err)
					return
				}
				if got, ok := m.Get(key); ok && len(got) != 200 {
					t.Errorf("goroutine %d: unexpected length %d", g, len(got))
				}
			}
		}(g)
	}
	wg.Wait()

	for i := 1; i <= 20; i++ {
		got, ok := m.Get(testKey(i))
		if !ok {
			t.Fatalf("unit %d missing", i)
		}
		if !bytes.Equal(got, pcm(200, byte(i))) {
			t.Errorf("unit %d has wrong bytes", i)
		}
	}
	if rate := m.Stats().HitRate(); rate <= 0 || rate > 1 {
		t.Errorf("HitRate = %v, want (0, 1]", rate)
	}
}
