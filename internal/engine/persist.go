package engine

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/versecast/internal/position"
)

const (
	persistTimeout = 5 * time.Second
	persistBacklog = 64
)

type persistOp struct {
	pos   position.Position
	clear bool
	flush bool
	wait  bool
	done  chan error
}

// persister applies position writes in submission order on its own
// goroutine so the control goroutine never waits on the store.
type persister struct {
	store  Positions
	logger *log.Logger
	ops    chan persistOp
}

func newPersister(store Positions, logger *log.Logger) *persister {
	return &persister{
		store:  store,
		logger: logger,
		ops:    make(chan persistOp, persistBacklog),
	}
}

// submit queues op. It is called only from the control goroutine. When
// op.wait is set the returned channel receives the result.
func (p *persister) submit(op persistOp) chan error {
	if op.wait {
		op.done = make(chan error, 1)
	}
	select {
	case p.ops <- op:
	default:
		p.logger.Warn("position write dropped, store is not keeping up")
		if op.done != nil {
			op.done <- context.DeadlineExceeded
		}
	}
	return op.done
}

func (p *persister) run() {
	for op := range p.ops {
		err := p.apply(op)
		if err != nil {
			p.logger.Warn("position write failed", "err", err)
		}
		if op.done != nil {
			op.done <- err
		}
	}
}

func (p *persister) apply(op persistOp) error {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	switch {
	case op.flush:
		return p.store.Flush(ctx)
	case op.clear:
		return p.store.Clear(ctx)
	default:
		return p.store.Save(ctx, op.pos)
	}
}

func (p *persister) close() {
	close(p.ops)
}
