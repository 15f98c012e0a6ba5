//go:build !linux

package main

import (
	"os"

	"go.uber.org/zap"

	"motorsim.dev/driver"
	"motorsim.dev/shm"
)

var shutdownSignals = []os.Signal{os.Interrupt}

func newChannel(log *zap.SugaredLogger) (*shm.Channel, func() error, error) {
	ch, err := shm.Create(shm.DefaultName)
	if err != nil {
		return nil, nil, err
	}
	return ch, ch.Destroy, nil
}

func bindIRQSignals(h *driver.Host) {}
