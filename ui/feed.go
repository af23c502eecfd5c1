package ui

import "github.com/dgnsrekt/versecast/internal/engine"

// SnapshotFeed hands the latest snapshot to the program. Older unread
// snapshots are dropped.
type SnapshotFeed struct {
	ch chan engine.Snapshot
}

// NewSnapshotFeed creates an empty feed.
func NewSnapshotFeed() *SnapshotFeed {
	return &SnapshotFeed{ch: make(chan engine.Snapshot, 1)}
}

// Publish implements engine.Publisher.
func (f *SnapshotFeed) Publish(s engine.Snapshot) {
	for {
		select {
		case f.ch <- s:
			return
		default:
		}
		select {
		case <-f.ch:
		default:
		}
	}
}

// C returns the receive side.
func (f *SnapshotFeed) C() <-chan engine.Snapshot {
	return f.ch
}

var _ engine.Publisher = (*SnapshotFeed)(nil)
