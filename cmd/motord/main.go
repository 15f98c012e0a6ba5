// command motord is the demo host for the simulated motor driver. It runs
// the 10 ms tick loop, services commands over the shared channel, reacts
// to SIGUSR1/SIGUSR2 as simulated interrupt lines and shuts down cleanly
// on SIGINT/SIGTERM, dumping the flight-recorder trace on the way out.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"motorsim.dev/driver"
	"motorsim.dev/shm"
	"motorsim.dev/trace"
)

const tracePath = "motord-trace.cbor"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "motord: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Sugar()

	ch, cleanup, err := newChannel(log)
	if err != nil {
		return err
	}
	defer cleanup()

	tr := trace.New(1024)
	h, err := driver.New(driver.Config{Channel: ch, Log: log, Trace: tr})
	if err != nil {
		return err
	}
	defer h.Close()
	bindIRQSignals(h)

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer stop()
	go func() {
		<-ctx.Done()
		ch.RequestShutdown()
	}()

	go exercise(log, ch)

	err = h.Run(ctx)
	dumpTrace(log, tr)
	return err
}

// exercise plays the controller role against the running host: spin up,
// sample, report, spin down.
func exercise(log *zap.SugaredLogger, ch *shm.Channel) {
	send := func(kind shm.CommandKind, p1, p2 int32) {
		if err := ch.SendCommand(kind, p1, p2); err != nil {
			log.Debugw("send failed", "kind", kind, "error", err)
			return
		}
		status, data, err := ch.WaitResponse()
		if err != nil {
			log.Debugw("response failed", "kind", kind, "error", err)
			return
		}
		log.Infow("command answered", "kind", kind, "status", status, "data", data)
	}

	time.Sleep(100 * time.Millisecond)
	send(shm.CmdMotorStart, 3000, 0)
	time.Sleep(500 * time.Millisecond)
	send(shm.CmdGetStatus, 0, 0)
	for id := int32(0); id < 4; id++ {
		send(shm.CmdSensorRead, id, 0)
	}
	send(shm.CmdMotorSetSpeed, 6000, 0)
	time.Sleep(500 * time.Millisecond)
	send(shm.CmdMotorStop, 0, 0)

	for !ch.IsShutdownRequested() {
		time.Sleep(time.Second)
		snap := ch.Status()
		log.Infow("status",
			"state", snap.MotorState,
			"speed", snap.MotorSpeed,
			"position", snap.MotorPosition,
			"sensors", snap.Sensors,
		)
	}
}

func dumpTrace(log *zap.SugaredLogger, tr *trace.Log) {
	f, err := os.Create(tracePath)
	if err != nil {
		log.Warnw("trace dump failed", "error", err)
		return
	}
	defer f.Close()
	if err := tr.Dump(f); err != nil {
		log.Warnw("trace dump failed", "error", err)
		return
	}
	log.Infow("trace dumped", "path", tracePath, "events", tr.Len())
}
