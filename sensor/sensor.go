// package sensor implements the four-channel acquisition subsystem. The
// channels share one data/status/control register triple; completed samples
// land in a ring buffer when continuous mode is on.
package sensor

import (
	"github.com/pkg/errors"

	"motorsim.dev/regfile"
)

type Kind int

const (
	Position Kind = iota
	Velocity
	Temperature
	Current
)

// NumSensors is fixed by the hardware model.
const NumSensors = 4

type State int

const (
	Disabled State = iota
	Idle
	Sampling
	Error
)

var (
	ErrInvalid    = errors.New("sensor: invalid argument")
	ErrNotEnabled = errors.New("sensor: array not enabled")
	ErrOverflow   = errors.New("sensor: buffer overflow")
	ErrEmpty      = errors.New("sensor: buffer empty")
)

type channel struct {
	kind    Kind
	state   State
	value   int32
	samples uint32
	min     int32
	max     int32
}

// ranges are the physical value intervals per channel kind.
var ranges = [NumSensors][2]int32{
	Position:    {-10000, 10000},
	Velocity:    {0, 10000},
	Temperature: {-40, 125},
	Current:     {0, 5000},
}

// Array is the acquisition context. Like the motor controller it borrows
// the register file.
type Array struct {
	regs       *regfile.File
	chans      [NumSensors]channel
	continuous bool
	buf        ring
}

func New(regs *regfile.File) *Array {
	a := &Array{regs: regs}
	for i := range a.chans {
		a.chans[i] = channel{
			kind:  Kind(i),
			state: Disabled,
			min:   ranges[i][0],
			max:   ranges[i][1],
		}
	}
	regs.Write(regfile.SensorCtrl, 0)
	regs.Write(regfile.SensorData, 0)
	regs.Write(regfile.SensorStatus, 0)
	return a
}

// Enable brings every channel out of Disabled and marks the array ready.
func (a *Array) Enable() {
	for i := range a.chans {
		a.chans[i].state = Idle
	}
	a.regs.SetBits(regfile.SensorCtrl, regfile.SensorCtrlEnable)
	a.regs.SetBits(regfile.SensorStatus, regfile.SensorStatusReady)
}

func (a *Array) Disable() {
	for i := range a.chans {
		a.chans[i].state = Disabled
	}
	a.regs.ClearBits(regfile.SensorCtrl, regfile.SensorCtrlEnable)
	a.regs.ClearBits(regfile.SensorStatus, regfile.SensorStatusReady)
}

// Trigger starts a conversion on every idle channel.
func (a *Array) Trigger() error {
	if a.regs.Read(regfile.SensorCtrl)&regfile.SensorCtrlEnable == 0 {
		return ErrNotEnabled
	}
	a.regs.SetBits(regfile.SensorCtrl, regfile.SensorCtrlTrigger)
	for i := range a.chans {
		if a.chans[i].state == Idle {
			a.chans[i].state = Sampling
			a.chans[i].samples++
		}
	}
	return nil
}

func (a *Array) SetContinuous(on bool) {
	a.continuous = on
	if on {
		a.regs.SetBits(regfile.SensorCtrl, regfile.SensorCtrlContinuous)
	} else {
		a.regs.ClearBits(regfile.SensorCtrl, regfile.SensorCtrlContinuous)
	}
}

// Read returns the channel's current value, or 0 for an invalid id.
func (a *Array) Read(id int) int32 {
	if id < 0 || id >= NumSensors {
		return 0
	}
	return a.chans[id].value
}

// ReadAll copies up to len(buf) channel values and reports how many.
func (a *Array) ReadAll(buf []int32) int {
	n := min(len(buf), NumSensors)
	for i := 0; i < n; i++ {
		buf[i] = a.chans[i].value
	}
	return n
}

// SampleCount reports how many conversions the channel has started.
func (a *Array) SampleCount(id int) uint32 {
	if id < 0 || id >= NumSensors {
		return 0
	}
	return a.chans[id].samples
}

// SetSimulatedValue writes the raw, pre-clamp value a conversion will
// observe. The next Update clamps it into the channel's range.
func (a *Array) SetSimulatedValue(id int, v int32) error {
	if id < 0 || id >= NumSensors {
		return ErrInvalid
	}
	a.chans[id].value = v
	return nil
}

// Update completes all in-flight conversions: values are clamped to the
// channel range, the most recent sample is mirrored into SENSOR_DATA, and
// in continuous mode the result is pushed to the ring buffer. The trigger
// bit is cleared; continuous mode re-arms immediately while the array is
// ready.
func (a *Array) Update() {
	for i := range a.chans {
		c := &a.chans[i]
		if c.state != Sampling {
			continue
		}
		if c.value < c.min {
			c.value = c.min
		} else if c.value > c.max {
			c.value = c.max
		}
		c.state = Idle
		a.regs.Write(regfile.SensorData, uint32(c.value))
		if a.continuous {
			if err := a.buf.push(c.value); err != nil {
				a.regs.SetBits(regfile.SensorStatus, regfile.SensorStatusOverflow)
			}
		}
	}
	a.regs.ClearBits(regfile.SensorCtrl, regfile.SensorCtrlTrigger)
	if a.continuous && a.regs.Read(regfile.SensorStatus)&regfile.SensorStatusReady != 0 {
		a.Trigger()
	}
}

// Push appends a value to the ring buffer. Overflow drops the value and
// latches the OVERFLOW status bit until BufClear.
func (a *Array) Push(v int32) error {
	if err := a.buf.push(v); err != nil {
		a.regs.SetBits(regfile.SensorStatus, regfile.SensorStatusOverflow)
		return err
	}
	return nil
}

func (a *Array) Pop() (int32, error) {
	return a.buf.pop()
}

func (a *Array) BufCount() int {
	return a.buf.count()
}

func (a *Array) BufClear() {
	a.buf.clear()
	a.regs.ClearBits(regfile.SensorStatus, regfile.SensorStatusOverflow)
}
