// Package cache stores synthesized verse audio keyed by translation, book,
// chapter, verse and voice. A memory LRU fronts a persistent zstd-compressed
// disk store; eviction is least recently used within the configured disk
// capacity.
package cache
