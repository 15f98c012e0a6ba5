// package driver ties the device model together: it owns the register
// file, motor, sensor array and interrupt controller, runs the periodic
// tick, publishes the status snapshot and services commands from the
// shared channel. The tick loop never blocks on the channel; it polls
// with TryGetCommand so the update cadence cannot stall.
package driver

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"motorsim.dev/irq"
	"motorsim.dev/motor"
	"motorsim.dev/regfile"
	"motorsim.dev/sensor"
	"motorsim.dev/shm"
	"motorsim.dev/trace"
)

// DefaultTickPeriod is the nominal update cadence.
const DefaultTickPeriod = 10 * time.Millisecond

type Config struct {
	// Channel carries commands in and status out. Required.
	Channel *shm.Channel
	// Log defaults to a nop logger.
	Log *zap.SugaredLogger
	// Clock defaults to the wall clock; tests install a mock.
	Clock      clock.Clock
	TickPeriod time.Duration
	// Trace defaults to a fresh 512-event log.
	Trace *trace.Log
}

// Host is the simulated firmware main loop.
type Host struct {
	log    *zap.SugaredLogger
	clk    clock.Clock
	period time.Duration

	regs    *regfile.File
	motor   *motor.Controller
	sensors *sensor.Array
	irqc    *irq.Controller
	ch      *shm.Channel
	tr      *trace.Log

	tick        uint64
	timerEvents uint64
	lastState   motor.State
}

func New(cfg Config) (*Host, error) {
	if cfg.Channel == nil {
		return nil, errors.New("driver: channel required")
	}
	h := &Host{
		log:    cfg.Log,
		clk:    cfg.Clock,
		period: cfg.TickPeriod,
		ch:     cfg.Channel,
		tr:     cfg.Trace,
	}
	if h.log == nil {
		h.log = zap.NewNop().Sugar()
	}
	if h.clk == nil {
		h.clk = clock.New()
	}
	if h.period == 0 {
		h.period = DefaultTickPeriod
	}
	if h.tr == nil {
		h.tr = trace.New(512)
	}

	h.regs = regfile.New()
	h.motor = motor.New(h.regs)
	h.sensors = sensor.New(h.regs)
	h.irqc = irq.New(h.regs)
	h.sensors.Enable()

	for s := irq.MotorFault; s <= irq.Timer; s++ {
		if err := h.irqc.RegisterHandler(s, h.handleIRQ, nil); err != nil {
			return nil, err
		}
	}
	h.irqc.EnableAll()
	return h, nil
}

func (h *Host) Motor() *motor.Controller { return h.motor }
func (h *Host) Sensors() *sensor.Array   { return h.sensors }
func (h *Host) IRQ() *irq.Controller     { return h.irqc }
func (h *Host) Registers() *regfile.File { return h.regs }
func (h *Host) Trace() *trace.Log        { return h.tr }
func (h *Host) TimerEvents() uint64      { return h.timerEvents }

func (h *Host) handleIRQ(s irq.Source, _ any) {
	switch s {
	case irq.MotorFault:
		h.motor.InjectFault(motor.FaultOvercurrent)
	case irq.MotorStall:
		h.motor.InjectFault(motor.FaultStall)
	case irq.SensorReady:
		h.sensors.Trigger()
	case irq.SensorError:
		h.regs.SetBits(regfile.SensorStatus, regfile.SensorStatusError)
	case irq.Timer:
		h.timerEvents++
	}
	h.tr.Record(trace.Event{Tick: h.tick, Kind: trace.IRQDispatch, A: int32(s)})
	h.log.Debugw("irq dispatched", "source", s.String())
}

// Tick runs one update cycle: motor, sensors, interrupt dispatch, status
// publish, command poll. Strictly in that order.
func (h *Host) Tick() {
	h.tick++
	h.motor.Update()
	if st := h.motor.State(); st != h.lastState {
		h.tr.Record(trace.Event{
			Tick: h.tick,
			Kind: trace.MotorState,
			A:    int32(st),
			B:    int32(h.motor.FaultCode()),
		})
		if st == motor.Fault {
			h.log.Warnw("motor fault", "code", h.motor.FaultCode().String())
		}
		h.lastState = st
	}
	h.sensors.Update()
	h.irqc.ProcessPending()
	h.publishStatus()
	h.serviceCommand()
}

func (h *Host) publishStatus() {
	var vals [sensor.NumSensors]int32
	h.sensors.ReadAll(vals[:])
	h.ch.UpdateStatus(shm.Snapshot{
		MotorState:    uint32(h.motor.State()),
		MotorSpeed:    h.motor.Speed(),
		MotorPosition: h.motor.Position(),
		Sensors:       vals,
		Fault:         uint32(h.motor.FaultCode()),
	})
}

func respFor(err error) shm.RespStatus {
	switch err {
	case nil:
		return shm.RespOk
	case motor.ErrFaulted:
		return shm.RespBusy
	default:
		return shm.RespError
	}
}

func (h *Host) serviceCommand() {
	kind, p1, p2, err := h.ch.TryGetCommand()
	if err != nil {
		return
	}
	var status shm.RespStatus
	var data []int32
	switch kind {
	case shm.CmdMotorStart:
		dir := motor.CW
		if p2 != 0 {
			dir = motor.CCW
		}
		status = respFor(h.motor.Start(p1, dir))
	case shm.CmdMotorStop:
		h.motor.Stop()
		status = shm.RespOk
	case shm.CmdMotorSetSpeed:
		status = respFor(h.motor.SetSpeed(p1))
	case shm.CmdSensorRead:
		if p1 < 0 || p1 >= sensor.NumSensors {
			status = shm.RespInvalidCommand
		} else {
			status = shm.RespOk
			data = []int32{h.sensors.Read(int(p1))}
		}
	case shm.CmdGetStatus:
		var vals [sensor.NumSensors]int32
		h.sensors.ReadAll(vals[:])
		status = shm.RespOk
		data = []int32{
			int32(h.motor.State()),
			h.motor.Speed(),
			h.motor.Position(),
			vals[0], vals[1], vals[2], vals[3],
			int32(h.motor.FaultCode()),
		}
	case shm.CmdReset:
		h.motor.Reset()
		h.sensors.BufClear()
		status = shm.RespOk
	default:
		status = shm.RespInvalidCommand
	}
	h.ch.SendResponse(status, data)
	h.tr.Record(trace.Event{Tick: h.tick, Kind: trace.Command, A: int32(kind), B: int32(status)})
	h.log.Debugw("serviced command", "kind", kind, "status", status)
}

// Run ticks until the context is cancelled or a peer requests shutdown.
func (h *Host) Run(ctx context.Context) error {
	h.log.Infow("driver running", "period", h.period)
	t := h.clk.Ticker(h.period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if h.ch.IsShutdownRequested() {
				h.tr.Record(trace.Event{Tick: h.tick, Kind: trace.Shutdown})
				h.log.Info("shutdown requested")
				return nil
			}
			h.Tick()
		}
	}
}

// Close releases the interrupt controller and detaches from the channel.
// The channel's owner still has to Destroy the region.
func (h *Host) Close() error {
	h.irqc.Cleanup()
	return h.ch.Close()
}
