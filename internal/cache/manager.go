package cache

import (
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

// Manager fronts the disk store with a memory LRU. It is safe for
// concurrent use by playback and prefetch.
//
// Writes go to disk synchronously so a unit reported as cached is on disk
// before the caller moves on.
type Manager struct {
	memory *MemoryCache
	disk   *DiskCache
	logger *log.Logger

	mu    sync.Mutex
	stats ManagerStats
}

// ManagerStats aggregates both tiers.
type ManagerStats struct {
	Hits       int64
	Misses     int64
	MemoryHits int64
	DiskHits   int64
	Promotions int64
	Writes     int64

	Memory Stats
	Disk   Stats
}

// HitRate returns hits / (hits + misses).
func (s ManagerStats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// NewManager opens the cache described by cfg.
func NewManager(cfg Config, logger *log.Logger) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, errors.New("cache directory is required")
	}
	if logger == nil {
		logger = log.Default().WithPrefix("cache")
	}

	disk, err := NewDiskCache(cfg.Dir, cfg.DiskCapacity, cfg.CompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create disk cache: %w", err)
	}

	return &Manager{
		memory: NewMemoryCache(cfg.MemoryCapacity),
		disk:   disk,
		logger: logger,
	}, nil
}

// Get returns the audio for key from memory, then disk. Disk hits are
// promoted to memory.
func (m *Manager) Get(key Key) ([]byte, bool) {
	k := key.String()

	if data, ok := m.memory.Get(k); ok {
		m.count(func(s *ManagerStats) { s.Hits++; s.MemoryHits++ })
		return data, true
	}

	if data, ok := m.disk.Get(k); ok {
		if err := m.memory.Put(k, data); err == nil {
			m.count(func(s *ManagerStats) { s.Promotions++ })
		}
		m.count(func(s *ManagerStats) { s.Hits++; s.DiskHits++ })
		return data, true
	}

	m.count(func(s *ManagerStats) { s.Misses++ })
	return nil, false
}

// Put stores audio for key in both tiers. The last write for a key wins.
func (m *Manager) Put(key Key, data []byte) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if len(data) == 0 {
		return ErrEmptyValue
	}
	k := key.String()

	if err := m.disk.Put(k, data); err != nil {
		m.memory.Delete(k)
		return fmt.Errorf("disk cache: %w", err)
	}
	if err := m.memory.Put(k, data); err != nil && !errors.Is(err, ErrItemTooLarge) {
		m.logger.Debug("memory cache put failed", "key", k, "err", err)
	}

	m.count(func(s *ManagerStats) { s.Writes++ })
	return nil
}

// Exists reports whether key is cached without reading it.
func (m *Manager) Exists(key Key) bool {
	k := key.String()
	return m.memory.Contains(k) || m.disk.Contains(k)
}

// Delete removes key from both tiers.
func (m *Manager) Delete(key Key) error {
	k := key.String()
	m.memory.Delete(k)
	return m.disk.Delete(k)
}

// Clear empties both tiers.
func (m *Manager) Clear() error {
	m.memory.Clear()
	if err := m.disk.Clear(); err != nil {
		return fmt.Errorf("disk clear: %w", err)
	}
	m.logger.Info("cache cleared")
	return nil
}

// Stats returns aggregated statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	s := m.stats
	m.mu.Unlock()

	s.Memory = m.memory.Stats()
	s.Disk = m.disk.Stats()
	return s
}

// Close persists the disk index.
func (m *Manager) Close() error {
	m.memory.Clear()
	if err := m.disk.Close(); err != nil {
		return fmt.Errorf("failed to close disk cache: %w", err)
	}
	return nil
}

func (m *Manager) count(f func(*ManagerStats)) {
	m.mu.Lock()
	f(&m.stats)
	m.mu.Unlock()
}
