package main

import (
	"os"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"motorsim.dev/driver"
	"motorsim.dev/shm"
)

var shutdownSignals = []os.Signal{os.Interrupt, unix.SIGTERM}

// newChannel prefers the real shared-memory region so external tools can
// attach; a host without a usable /dev/shm falls back to the in-process
// backend.
func newChannel(log *zap.SugaredLogger) (*shm.Channel, func() error, error) {
	ch, err := shm.CreateShared(shm.DefaultName)
	if err == nil {
		log.Infow("shared region created", "name", shm.DefaultName)
		return ch, ch.Destroy, nil
	}
	log.Warnw("shared region unavailable, using in-process channel", "error", err)
	ch, err = shm.Create(shm.DefaultName)
	if err != nil {
		return nil, nil, err
	}
	return ch, ch.Destroy, nil
}

func bindIRQSignals(h *driver.Host) {
	h.IRQ().BindSignals()
}
