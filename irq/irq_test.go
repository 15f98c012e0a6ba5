package irq

import (
	"testing"

	"go.viam.com/test"

	"motorsim.dev/regfile"
)

func newController() (*Controller, *regfile.File) {
	regs := regfile.New()
	return New(regs), regs
}

func TestEnableTriggerPend(t *testing.T) {
	c, regs := newController()
	defer c.Cleanup()

	test.That(t, c.Enable(MotorFault), test.ShouldBeNil)
	test.That(t, regs.Read(regfile.IRQEnable), test.ShouldEqual, uint32(1)<<MotorFault)
	test.That(t, c.Trigger(MotorFault), test.ShouldBeNil)
	test.That(t, c.IsPending(MotorFault), test.ShouldBeTrue)
	test.That(t, regs.Read(regfile.IRQStatus), test.ShouldEqual, uint32(1)<<MotorFault)

	// Triggering again while pending changes nothing.
	test.That(t, c.Trigger(MotorFault), test.ShouldBeNil)
	test.That(t, c.Pending(), test.ShouldEqual, uint32(1)<<MotorFault)
}

func TestMaskedTriggerDropped(t *testing.T) {
	c, _ := newController()
	defer c.Cleanup()

	test.That(t, c.Trigger(SensorReady), test.ShouldBeNil)
	test.That(t, c.IsPending(SensorReady), test.ShouldBeFalse)

	test.That(t, c.Enable(SensorReady), test.ShouldBeNil)
	test.That(t, c.Disable(SensorReady), test.ShouldBeNil)
	test.That(t, c.Trigger(SensorReady), test.ShouldBeNil)
	test.That(t, c.IsPending(SensorReady), test.ShouldBeFalse)
}

func TestDispatchOncePerSource(t *testing.T) {
	c, regs := newController()
	defer c.Cleanup()

	counts := map[Source]int{}
	handler := func(s Source, ctx any) {
		counts[s]++
		test.That(t, ctx, test.ShouldEqual, "ctx")
	}
	c.EnableAll()
	for s := Source(0); s < numSources; s++ {
		test.That(t, c.RegisterHandler(s, handler, "ctx"), test.ShouldBeNil)
	}
	test.That(t, c.Trigger(MotorFault), test.ShouldBeNil)
	test.That(t, c.Trigger(Timer), test.ShouldBeNil)

	c.ProcessPending()
	test.That(t, counts[MotorFault], test.ShouldEqual, 1)
	test.That(t, counts[Timer], test.ShouldEqual, 1)
	test.That(t, counts[SensorReady], test.ShouldEqual, 0)
	test.That(t, c.Pending(), test.ShouldEqual, uint32(0))
	test.That(t, regs.Read(regfile.IRQStatus), test.ShouldEqual, uint32(0))

	// Nothing pending, nothing dispatched.
	c.ProcessPending()
	test.That(t, counts[MotorFault], test.ShouldEqual, 1)
}

func TestDispatchOrderAscending(t *testing.T) {
	c, _ := newController()
	defer c.Cleanup()

	var order []Source
	handler := func(s Source, _ any) {
		order = append(order, s)
	}
	c.EnableAll()
	for s := Source(0); s < numSources; s++ {
		test.That(t, c.RegisterHandler(s, handler, nil), test.ShouldBeNil)
	}
	// Trigger out of order; dispatch is by index anyway.
	test.That(t, c.Trigger(Timer), test.ShouldBeNil)
	test.That(t, c.Trigger(MotorStall), test.ShouldBeNil)
	test.That(t, c.Trigger(SensorError), test.ShouldBeNil)
	c.ProcessPending()
	test.That(t, order, test.ShouldResemble, []Source{MotorStall, SensorError, Timer})
}

func TestPendingWithoutHandlerAcknowledged(t *testing.T) {
	c, _ := newController()
	defer c.Cleanup()

	c.EnableAll()
	test.That(t, c.Trigger(SensorError), test.ShouldBeNil)
	c.ProcessPending()
	test.That(t, c.Pending(), test.ShouldEqual, uint32(0))
}

func TestClear(t *testing.T) {
	c, regs := newController()
	defer c.Cleanup()

	c.EnableAll()
	test.That(t, c.Trigger(MotorStall), test.ShouldBeNil)
	test.That(t, c.Clear(MotorStall), test.ShouldBeNil)
	test.That(t, c.IsPending(MotorStall), test.ShouldBeFalse)
	test.That(t, regs.Read(regfile.IRQStatus), test.ShouldEqual, uint32(0))
}

func TestInvalidSource(t *testing.T) {
	c, _ := newController()
	defer c.Cleanup()

	test.That(t, c.Enable(Source(-1)), test.ShouldEqual, ErrInvalid)
	test.That(t, c.Trigger(numSources), test.ShouldEqual, ErrInvalid)
	test.That(t, c.RegisterHandler(numSources, nil, nil), test.ShouldEqual, ErrInvalid)
	test.That(t, c.IsPending(numSources), test.ShouldBeFalse)
}

func TestRaiseLatchFiresTimer(t *testing.T) {
	c, _ := newController()
	defer c.Cleanup()

	fired := map[Source]int{}
	handler := func(s Source, _ any) { fired[s]++ }
	c.EnableAll()
	test.That(t, c.RegisterHandler(MotorFault, handler, nil), test.ShouldBeNil)
	test.That(t, c.RegisterHandler(Timer, handler, nil), test.ShouldBeNil)

	// Simulated signal: pends the source and sets the latch.
	Raise(MotorFault)
	test.That(t, c.IsPending(MotorFault), test.ShouldBeTrue)

	c.ProcessPending()
	test.That(t, fired[MotorFault], test.ShouldEqual, 1)
	test.That(t, fired[Timer], test.ShouldEqual, 1)
	test.That(t, c.Pending(), test.ShouldEqual, uint32(0))
}

func TestRaiseMaskedSourceStillLatches(t *testing.T) {
	c, _ := newController()
	defer c.Cleanup()

	fired := 0
	test.That(t, c.Enable(Timer), test.ShouldBeNil)
	test.That(t, c.RegisterHandler(Timer, func(Source, any) { fired++ }, nil), test.ShouldBeNil)

	Raise(MotorFault) // masked: no pend, but the latch is set
	test.That(t, c.IsPending(MotorFault), test.ShouldBeFalse)
	c.ProcessPending()
	test.That(t, fired, test.ShouldEqual, 1)
}

func TestRaiseWithoutController(t *testing.T) {
	c, _ := newController()
	c.Cleanup()
	Raise(MotorFault) // dropped, must not crash
}
