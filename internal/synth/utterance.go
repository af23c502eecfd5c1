package synth

import (
	"context"
	"sync"
)

// Utterance is the single-shot result of a local synthesis. It resolves
// exactly once: nil when speech finished, ErrCanceled when canceled, or the
// failure.
type Utterance struct {
	done   chan struct{}
	once   sync.Once
	err    error
	cancel context.CancelFunc
}

// NewUtterance returns an unresolved utterance and the function that
// resolves it. cancel is invoked by Cancel and may be nil.
func NewUtterance(cancel context.CancelFunc) (*Utterance, func(error)) {
	u := &Utterance{done: make(chan struct{}), cancel: cancel}
	return u, u.resolve
}

// Done is closed once the utterance resolves.
func (u *Utterance) Done() <-chan struct{} {
	return u.done
}

// Err blocks until the utterance resolves and returns its result.
func (u *Utterance) Err() error {
	<-u.done
	return u.err
}

// Wait blocks until the utterance resolves or ctx ends.
func (u *Utterance) Wait(ctx context.Context) error {
	select {
	case <-u.done:
		return u.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel stops the utterance. The first resolution wins, so canceling a
// finished utterance does nothing.
func (u *Utterance) Cancel() {
	canceled := false
	u.once.Do(func() {
		u.err = ErrCanceled
		close(u.done)
		canceled = true
	})
	if canceled && u.cancel != nil {
		u.cancel()
	}
}

func (u *Utterance) resolve(err error) {
	u.once.Do(func() {
		u.err = err
		close(u.done)
	})
}
