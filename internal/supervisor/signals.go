package supervisor

import (
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

// installSignalHandlers wires SIGINT, SIGTERM, and SIGUSR1 to Shutdown, and
// explicitly ignores SIGHUP and SIGUSR2. Shutdown both raises the shutdown
// flag and cancels the run context, so a signal arriving while the
// Dispatcher is blocked in WaitForNotification interrupts it immediately
// rather than waiting for the next notification or reconnect probe. The
// first consumed signal logs "shutting down"; every subsequent one logs
// that shutdown is already in progress. It returns a stop function the
// caller must defer.
func (s *Supervisor) installSignalHandlers() func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGHUP, syscall.SIGUSR2)

	var seen atomic.Bool
	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig, ok := <-sigCh:
				if !ok {
					return
				}
				switch sig {
				case syscall.SIGHUP, syscall.SIGUSR2:
					s.log.Info("ignoring signal", slog.String("signal", sig.String()))
					continue
				}
				if seen.CompareAndSwap(false, true) {
					s.log.Info("shutting down", slog.String("signal", sig.String()))
				} else {
					s.log.Info("shutdown already in progress", slog.String("signal", sig.String()))
				}
				s.Shutdown()
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

// SelfSignalUSR1 is what a worker calls when it loses its database
// connection and observes it is the last live worker. The control
// structures triggering shutdown are all in-process, so this is a direct
// call to Shutdown rather than a real syscall.Kill(self, SIGUSR1): there is
// no other process boundary to cross, and routing through the kernel would
// only add a race between signal delivery and process exit.
func (s *Supervisor) SelfSignalUSR1() {
	s.log.Info("last worker lost its connection, self-signaling shutdown")
	s.Shutdown()
}
