//go:build !windows

package session

import (
	"os"
	"syscall"
)

var notifySignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGTERM,
	syscall.SIGHUP,
	syscall.SIGUSR1,
	syscall.SIGUSR2,
	syscall.SIGCONT,
}

// translate maps SIGUSR1/SIGUSR2 to an interruption and its end, SIGHUP to
// backgrounding and SIGCONT to becoming active again.
func translate(sig os.Signal) (Event, bool) {
	switch sig {
	case syscall.SIGINT, syscall.SIGTERM:
		return Event{Signal: Terminate}, true
	case syscall.SIGHUP:
		return Event{Signal: EnterBackground}, true
	case syscall.SIGUSR1:
		return Event{Signal: InterruptionBegan}, true
	case syscall.SIGUSR2:
		return Event{Signal: InterruptionEnded, ShouldResume: true}, true
	case syscall.SIGCONT:
		return Event{Signal: BecameActive}, true
	}
	return Event{}, false
}
