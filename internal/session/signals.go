package session

import (
	"context"
	"os"
	"os/signal"
)

// Signals translates OS signals into lifecycle events until ctx ends.
// The channel is closed after a Terminate event or when ctx ends.
func Signals(ctx context.Context) <-chan Event {
	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, notifySignals...)

	out := make(chan Event, 4)
	go func() {
		defer close(out)
		defer signal.Stop(sigCh)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigCh:
				ev, ok := translate(sig)
				if !ok {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
				if ev.Signal == Terminate {
					return
				}
			}
		}
	}()
	return out
}
