// package motor implements the motor state machine on top of the register
// block. The controller mirrors its state into the MOTOR_* registers the
// way the firmware it simulates would; a status bit set by another
// subsystem (or a test) is picked up as a hardware fault on the next tick.
package motor

import (
	"github.com/pkg/errors"

	"motorsim.dev/regfile"
)

type State int

const (
	Idle State = iota
	Starting
	Running
	Stopping
	Fault
	Recovery
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Fault:
		return "fault"
	case Recovery:
		return "recovery"
	}
	return "unknown"
}

type FaultCode int

const (
	FaultNone FaultCode = iota
	FaultStall
	FaultOverheat
	FaultOvercurrent
)

func (f FaultCode) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultStall:
		return "stall"
	case FaultOverheat:
		return "overheat"
	case FaultOvercurrent:
		return "overcurrent"
	}
	return "unknown"
}

type Direction int

const (
	CW Direction = iota
	CCW
)

const (
	// MaxSpeed is the speed ceiling in RPM; requests above it are clamped.
	MaxSpeed = 10000
	// rampStep is the speed change per tick.
	rampStep = 500
	// posDivisor converts speed to position ticks per update.
	posDivisor = 100
)

var (
	ErrInvalid    = errors.New("motor: invalid argument")
	ErrFaulted    = errors.New("motor: controller is faulted")
	ErrNotFaulted = errors.New("motor: no fault to clear")
)

// Controller drives the motor state machine. It borrows the register file;
// it does not own it.
type Controller struct {
	regs *regfile.File

	state  State
	fault  FaultCode
	target int32
	speed  int32
	dir    Direction
	pos    int32
}

func New(regs *regfile.File) *Controller {
	c := &Controller{regs: regs}
	regs.Write(regfile.MotorCtrl, 0)
	regs.Write(regfile.MotorStatus, 0)
	regs.Write(regfile.MotorSpeed, 0)
	regs.Write(regfile.MotorPosition, 0)
	return c
}

func (c *Controller) State() State         { return c.state }
func (c *Controller) FaultCode() FaultCode { return c.fault }
func (c *Controller) Speed() int32         { return c.speed }
func (c *Controller) TargetSpeed() int32   { return c.target }
func (c *Controller) Direction() Direction { return c.dir }
func (c *Controller) Position() int32      { return c.pos }

// Start spins the motor up toward speed. A faulted controller rejects the
// request; clear the fault first.
func (c *Controller) Start(speed int32, dir Direction) error {
	if speed < 0 || (dir != CW && dir != CCW) {
		return ErrInvalid
	}
	if c.state == Fault {
		return ErrFaulted
	}
	if speed > MaxSpeed {
		speed = MaxSpeed
	}
	c.target = speed
	c.dir = dir
	c.state = Starting
	c.regs.ClearBits(regfile.MotorCtrl, regfile.MotorCtrlBrake)
	c.regs.SetBits(regfile.MotorCtrl, regfile.MotorCtrlEnable)
	if dir == CW {
		c.regs.SetBits(regfile.MotorCtrl, regfile.MotorCtrlDirCW)
	} else {
		c.regs.ClearBits(regfile.MotorCtrl, regfile.MotorCtrlDirCW)
	}
	return nil
}

// Stop begins a controlled ramp-down. The state machine finishes it.
func (c *Controller) Stop() {
	if c.state == Idle {
		return
	}
	c.state = Stopping
	c.regs.ClearBits(regfile.MotorCtrl, regfile.MotorCtrlEnable)
}

// Brake halts the motor immediately, skipping the ramp. Position is kept.
func (c *Controller) Brake() {
	c.state = Idle
	c.speed = 0
	c.regs.SetBits(regfile.MotorCtrl, regfile.MotorCtrlBrake)
	c.regs.ClearBits(regfile.MotorCtrl, regfile.MotorCtrlEnable)
	c.regs.ClearBits(regfile.MotorStatus, regfile.MotorStatusRunning)
	c.regs.Write(regfile.MotorSpeed, 0)
}

// SetSpeed retargets the ramp without touching the state machine.
func (c *Controller) SetSpeed(speed int32) error {
	if speed < 0 {
		return ErrInvalid
	}
	if c.state == Fault {
		return ErrFaulted
	}
	if speed > MaxSpeed {
		speed = MaxSpeed
	}
	c.target = speed
	return nil
}

// Reset pulses the RESET control bit and returns the controller to a clean
// Idle. The pulse is best-effort; observers are not guaranteed to see it.
// The position accumulator survives a reset.
func (c *Controller) Reset() {
	c.regs.SetBits(regfile.MotorCtrl, regfile.MotorCtrlReset)
	c.regs.Write(regfile.MotorStatus, 0)
	c.regs.Write(regfile.MotorSpeed, 0)
	c.state = Idle
	c.fault = FaultNone
	c.speed = 0
	c.target = 0
	c.regs.ClearBits(regfile.MotorCtrl,
		regfile.MotorCtrlReset|regfile.MotorCtrlEnable|regfile.MotorCtrlBrake)
}

// InjectFault forces the controller into Fault with the given code and
// raises the matching status bit, as a stalled or overheating motor would.
func (c *Controller) InjectFault(fault FaultCode) error {
	switch fault {
	case FaultStall:
		c.regs.SetBits(regfile.MotorStatus, regfile.MotorStatusStall)
	case FaultOverheat:
		c.regs.SetBits(regfile.MotorStatus, regfile.MotorStatusOverheat)
	case FaultOvercurrent:
		c.regs.SetBits(regfile.MotorStatus, regfile.MotorStatusFault)
	default:
		return ErrInvalid
	}
	c.state = Fault
	c.fault = fault
	return nil
}

// ClearFault acknowledges a fault. The controller passes through Recovery
// for one tick before settling in Idle.
func (c *Controller) ClearFault() error {
	if c.state != Fault {
		return ErrNotFaulted
	}
	c.state = Recovery
	c.fault = FaultNone
	c.regs.Write(regfile.MotorStatus, 0)
	return nil
}

// Update advances the state machine by one tick.
func (c *Controller) Update() {
	status := c.regs.Read(regfile.MotorStatus)
	const faultBits = regfile.MotorStatusFault | regfile.MotorStatusStall | regfile.MotorStatusOverheat
	if status&faultBits != 0 && c.state != Fault {
		c.state = Fault
		// Stall wins over overheat wins over the generic fault bit.
		switch {
		case status&regfile.MotorStatusStall != 0:
			c.fault = FaultStall
		case status&regfile.MotorStatusOverheat != 0:
			c.fault = FaultOverheat
		default:
			c.fault = FaultOvercurrent
		}
		return
	}

	switch c.state {
	case Idle, Fault:
	case Starting:
		c.speed += rampStep
		if c.speed >= c.target {
			c.speed = c.target
			c.state = Running
			c.regs.SetBits(regfile.MotorStatus, regfile.MotorStatusRunning)
		}
		c.regs.Write(regfile.MotorSpeed, uint32(c.speed))
	case Running:
		if c.speed < c.target {
			c.speed += rampStep
			if c.speed > c.target {
				c.speed = c.target
			}
		} else if c.speed > c.target {
			c.speed -= rampStep
			if c.speed < c.target {
				c.speed = c.target
			}
		}
		c.regs.Write(regfile.MotorSpeed, uint32(c.speed))
		if c.dir == CW {
			c.pos += c.speed / posDivisor
		} else {
			c.pos -= c.speed / posDivisor
		}
		c.regs.Write(regfile.MotorPosition, uint32(c.pos))
	case Stopping:
		c.speed -= rampStep
		if c.speed <= 0 {
			c.speed = 0
			c.state = Idle
			c.regs.ClearBits(regfile.MotorStatus, regfile.MotorStatusRunning)
		}
		c.regs.Write(regfile.MotorSpeed, uint32(c.speed))
	case Recovery:
		c.state = Idle
	}
}
