//go:build unix

package irq

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// BindSignals maps two host signal lines onto the async trigger path:
// SIGUSR1 raises MotorFault, SIGUSR2 raises SensorReady. The bridge
// goroutine only calls Raise; Cleanup restores the default dispositions.
func (c *Controller) BindSignals() {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, unix.SIGUSR1, unix.SIGUSR2)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for sig := range ch {
			switch sig {
			case unix.SIGUSR1:
				Raise(MotorFault)
			case unix.SIGUSR2:
				Raise(SensorReady)
			}
		}
	}()
	c.sigStop = func() {
		signal.Reset(unix.SIGUSR1, unix.SIGUSR2)
		close(ch)
		<-done
	}
}
