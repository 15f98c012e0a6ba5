// package irq implements the vectored interrupt controller. Sources pend
// into an atomic bitmask mirrored in the IRQ status register; dispatch to
// registered handlers is deferred to ProcessPending on the tick loop.
//
// The asynchronous trigger path (Raise, and the host signal bridge) goes
// through a process-wide handle and touches only atomic fields, never the
// register file and never a lock.
package irq

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"motorsim.dev/regfile"
)

type Source int

const (
	MotorFault Source = iota
	MotorStall
	SensorReady
	SensorError
	Timer

	numSources
)

func (s Source) String() string {
	switch s {
	case MotorFault:
		return "motor-fault"
	case MotorStall:
		return "motor-stall"
	case SensorReady:
		return "sensor-ready"
	case SensorError:
		return "sensor-error"
	case Timer:
		return "timer"
	}
	return "unknown"
}

// sourceMask covers every defined source bit.
const sourceMask = 1<<numSources - 1

var ErrInvalid = errors.New("irq: invalid source")

// Handler services one interrupt source. ctx is the opaque value supplied
// at registration; it must outlive any possible dispatch.
type Handler func(s Source, ctx any)

type binding struct {
	fn  Handler
	ctx any
}

// current is the process-wide controller handle the async trigger path
// reads. Installed by New, cleared by Cleanup.
var current atomic.Pointer[Controller]

// Controller owns the enabled and pending masks. All methods except the
// atomic introspection ones are tick-loop only.
type Controller struct {
	regs     *regfile.File
	enabled  atomic.Uint32
	pending  atomic.Uint32
	latch    atomic.Bool
	bindings [numSources]binding

	sigStop func()
}

func New(regs *regfile.File) *Controller {
	c := &Controller{regs: regs}
	regs.Write(regfile.IRQStatus, 0)
	regs.Write(regfile.IRQEnable, 0)
	current.Store(c)
	return c
}

func valid(s Source) bool {
	return s >= 0 && s < numSources
}

func (c *Controller) RegisterHandler(s Source, fn Handler, ctx any) error {
	if !valid(s) {
		return ErrInvalid
	}
	c.bindings[s] = binding{fn, ctx}
	return nil
}

func (c *Controller) UnregisterHandler(s Source) error {
	if !valid(s) {
		return ErrInvalid
	}
	c.bindings[s] = binding{}
	return nil
}

func (c *Controller) Enable(s Source) error {
	if !valid(s) {
		return ErrInvalid
	}
	c.enabled.Or(1 << s)
	c.regs.SetBits(regfile.IRQEnable, 1<<s)
	return nil
}

func (c *Controller) Disable(s Source) error {
	if !valid(s) {
		return ErrInvalid
	}
	c.enabled.And(^uint32(1 << s))
	c.regs.ClearBits(regfile.IRQEnable, 1<<s)
	return nil
}

func (c *Controller) EnableAll() {
	c.enabled.Or(sourceMask)
	c.regs.SetBits(regfile.IRQEnable, sourceMask)
}

func (c *Controller) DisableAll() {
	c.enabled.And(^uint32(sourceMask))
	c.regs.ClearBits(regfile.IRQEnable, sourceMask)
}

// Trigger pends the source if it is enabled; a masked source is dropped.
// Idempotent while the source is already pending.
func (c *Controller) Trigger(s Source) error {
	if !valid(s) {
		return ErrInvalid
	}
	if c.enabled.Load()&(1<<s) == 0 {
		return nil
	}
	c.pending.Or(1 << s)
	c.regs.SetBits(regfile.IRQStatus, 1<<s)
	return nil
}

func (c *Controller) IsPending(s Source) bool {
	return valid(s) && c.pending.Load()&(1<<s) != 0
}

func (c *Controller) Pending() uint32 {
	return c.pending.Load()
}

// Clear acknowledges a single source without dispatching it.
func (c *Controller) Clear(s Source) error {
	if !valid(s) {
		return ErrInvalid
	}
	c.pending.And(^uint32(1 << s))
	c.regs.ClearBits(regfile.IRQStatus, 1<<s)
	return nil
}

// ProcessPending drains the async latch, dispatches every pending source
// with a registered handler in ascending source order, then clears the
// pending mask and status register. Pending sources without a handler are
// acknowledged silently.
func (c *Controller) ProcessPending() {
	if c.latch.Swap(false) {
		c.Trigger(Timer)
	}
	// Sync the status register with bits pended on the async path.
	mask := c.pending.Load()
	c.regs.SetBits(regfile.IRQStatus, mask&sourceMask)
	for s := Source(0); s < numSources; s++ {
		if mask&(1<<s) == 0 {
			continue
		}
		if b := c.bindings[s]; b.fn != nil {
			b.fn(s, b.ctx)
		}
	}
	c.pending.Store(0)
	c.regs.ClearBits(regfile.IRQStatus, sourceMask)
}

// Cleanup masks every source, stops the signal bridge if one is bound, and
// releases the process-wide handle.
func (c *Controller) Cleanup() {
	c.DisableAll()
	if c.sigStop != nil {
		c.sigStop()
		c.sigStop = nil
	}
	current.CompareAndSwap(c, nil)
}

// Raise pends a source on the current controller from asynchronous
// context and sets the latch; a masked source is not pended, but the latch
// is still set. It is safe to call from any goroutine and
// takes no locks; dispatch happens on the next ProcessPending. Without an
// installed controller the event is dropped.
func Raise(s Source) {
	c := current.Load()
	if c == nil || !valid(s) {
		return
	}
	if c.enabled.Load()&(1<<s) != 0 {
		c.pending.Or(1 << s)
	}
	c.latch.Store(true)
}
