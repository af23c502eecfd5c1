package cache

import (
	"errors"
	"fmt"
	"time"
)

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrEmptyValue is returned when storing zero bytes
	ErrEmptyValue = errors.New("refusing to cache empty audio")

	// ErrInvalidKey is returned when a key is missing components
	ErrInvalidKey = errors.New("invalid cache key")
)

// Key addresses one synthesized unit. Two equal keys always refer to
// byte-identical audio.
type Key struct {
	TranslationID string
	BookID        string
	Chapter       int
	Unit          int
	VoiceID       string
}

// String returns the canonical form of the key.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%d/%d/%s", k.TranslationID, k.BookID, k.Chapter, k.Unit, k.VoiceID)
}

// Validate reports whether every component is set.
func (k Key) Validate() error {
	if k.TranslationID == "" || k.BookID == "" || k.VoiceID == "" || k.Chapter < 1 || k.Unit < 1 {
		return fmt.Errorf("%w: %s", ErrInvalidKey, k)
	}
	return nil
}

// Stats holds cache performance metrics
type Stats struct {
	Capacity  int64 // Maximum capacity in bytes
	Size      int64 // Current size in bytes
	ItemCount int64 // Number of items in cache

	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64 // hits / (hits + misses)

	LastAccess time.Time
	LastEvict  time.Time
}

func (s *Stats) computeHitRate() {
	if s.Hits+s.Misses > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Hits+s.Misses)
	}
}

// Config holds configuration for the cache manager
type Config struct {
	MemoryCapacity   int64  // Bytes
	DiskCapacity     int64  // Bytes
	Dir              string // Directory for cache files
	CompressionLevel int    // Zstd level (1-22); 0 disables compression
}

// DefaultConfig returns default cache configuration. Dir is left empty and
// must be filled in by the caller.
func DefaultConfig() Config {
	return Config{
		MemoryCapacity:   32 * 1024 * 1024,  // 32MB
		DiskCapacity:     512 * 1024 * 1024, // 512MB
		CompressionLevel: 3,
	}
}
