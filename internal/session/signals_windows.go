//go:build windows

package session

import "os"

var notifySignals = []os.Signal{os.Interrupt}

func translate(sig os.Signal) (Event, bool) {
	if sig == os.Interrupt {
		return Event{Signal: Terminate}, true
	}
	return Event{}, false
}
