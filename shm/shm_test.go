package shm

import (
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.viam.com/test"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestCreateOpenDestroy(t *testing.T) {
	owner, err := Create("t-create")
	test.That(t, err, test.ShouldBeNil)

	_, err = Create("t-create")
	test.That(t, err, test.ShouldNotBeNil)

	peer, err := OpenExisting("t-create")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, peer.Close(), test.ShouldBeNil)
	test.That(t, owner.Destroy(), test.ShouldBeNil)

	_, err = OpenExisting("t-create")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCommandRoundTrip(t *testing.T) {
	owner, err := Create("t-roundtrip")
	test.That(t, err, test.ShouldBeNil)
	defer owner.Destroy()
	worker, err := OpenExisting("t-roundtrip")
	test.That(t, err, test.ShouldBeNil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		kind, p1, p2, err := worker.GetCommand()
		test.That(t, err, test.ShouldBeNil)
		test.That(t, kind, test.ShouldEqual, CmdMotorStart)
		test.That(t, p1, test.ShouldEqual, int32(3000))
		test.That(t, p2, test.ShouldEqual, int32(0))
		test.That(t, worker.SendResponse(RespOk, []int32{1, 2, 3, 4}), test.ShouldBeNil)
	}()

	test.That(t, owner.SendCommand(CmdMotorStart, 3000, 0), test.ShouldBeNil)
	status, data, err := owner.WaitResponse()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, status, test.ShouldEqual, RespOk)
	test.That(t, data, test.ShouldResemble, []int32{1, 2, 3, 4})
	<-done
}

func TestPayloadTruncation(t *testing.T) {
	owner, err := Create("t-truncate")
	test.That(t, err, test.ShouldBeNil)
	defer owner.Destroy()

	long := make([]int32, 20)
	for i := range long {
		long[i] = int32(i)
	}
	test.That(t, owner.SendCommand(CmdGetStatus, 0, 0), test.ShouldBeNil)
	test.That(t, owner.SendResponse(RespOk, long), test.ShouldBeNil)
	_, data, err := owner.WaitResponse()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(data), test.ShouldEqual, MaxPayload)
	test.That(t, data, test.ShouldResemble, long[:MaxPayload])
}

func TestStrictPairing(t *testing.T) {
	owner, err := Create("t-pairing")
	test.That(t, err, test.ShouldBeNil)
	defer owner.Destroy()
	worker, err := OpenExisting("t-pairing")
	test.That(t, err, test.ShouldBeNil)

	test.That(t, owner.SendCommand(CmdMotorStop, 0, 0), test.ShouldBeNil)

	// A second send blocks until the worker answers the first.
	sent := make(chan struct{})
	go func() {
		defer close(sent)
		test.That(t, owner.SendCommand(CmdReset, 0, 0), test.ShouldBeNil)
	}()
	select {
	case <-sent:
		t.Fatal("second command queued before first was answered")
	case <-time.After(50 * time.Millisecond):
	}

	kind, _, _, err := worker.GetCommand()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, kind, test.ShouldEqual, CmdMotorStop)
	test.That(t, worker.SendResponse(RespOk, nil), test.ShouldBeNil)
	<-sent

	kind, _, _, err = worker.GetCommand()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, kind, test.ShouldEqual, CmdReset)
	test.That(t, worker.SendResponse(RespOk, nil), test.ShouldBeNil)
}

func TestTryGetCommand(t *testing.T) {
	owner, err := Create("t-tryget")
	test.That(t, err, test.ShouldBeNil)
	defer owner.Destroy()

	_, _, _, err = owner.TryGetCommand()
	test.That(t, err, test.ShouldEqual, ErrNoCommand)

	test.That(t, owner.SendCommand(CmdSensorRead, 2, 0), test.ShouldBeNil)
	kind, p1, _, err := owner.TryGetCommand()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, kind, test.ShouldEqual, CmdSensorRead)
	test.That(t, p1, test.ShouldEqual, int32(2))
}

func TestShutdownWakesBlockedWorker(t *testing.T) {
	owner, err := Create("t-shutdown")
	test.That(t, err, test.ShouldBeNil)
	defer owner.Destroy()
	worker, err := OpenExisting("t-shutdown")
	test.That(t, err, test.ShouldBeNil)

	got := make(chan error, 1)
	go func() {
		_, _, _, err := worker.GetCommand()
		got <- err
	}()

	// Give the worker a moment to block.
	time.Sleep(20 * time.Millisecond)
	test.That(t, owner.IsShutdownRequested(), test.ShouldBeFalse)
	owner.RequestShutdown()
	test.That(t, <-got, test.ShouldEqual, ErrShutdown)
	test.That(t, worker.IsShutdownRequested(), test.ShouldBeTrue)

	// Once set, the flag stays set and every call observes it.
	_, _, _, err = worker.TryGetCommand()
	test.That(t, err, test.ShouldEqual, ErrShutdown)
	test.That(t, owner.SendCommand(CmdMotorStart, 1, 0), test.ShouldEqual, ErrShutdown)
	_, _, err = owner.WaitResponse()
	test.That(t, err, test.ShouldEqual, ErrShutdown)
}

func TestStatusSnapshot(t *testing.T) {
	owner, err := Create("t-status")
	test.That(t, err, test.ShouldBeNil)
	defer owner.Destroy()
	peer, err := OpenExisting("t-status")
	test.That(t, err, test.ShouldBeNil)

	want := Snapshot{
		MotorState:    2,
		MotorSpeed:    5000,
		MotorPosition: -120,
		Sensors:       [4]int32{1, 2, 3, 4},
		Fault:         0,
	}
	test.That(t, owner.UpdateStatus(want), test.ShouldBeNil)
	test.That(t, peer.Status(), test.ShouldResemble, want)
}

func TestNilChannel(t *testing.T) {
	var ch *Channel
	test.That(t, ch.IsShutdownRequested(), test.ShouldBeTrue)
	test.That(t, ch.SendCommand(CmdMotorStart, 0, 0), test.ShouldEqual, ErrClosed)
	_, _, _, err := ch.GetCommand()
	test.That(t, err, test.ShouldEqual, ErrClosed)
	test.That(t, ch.SendResponse(RespOk, nil), test.ShouldEqual, ErrClosed)
	_, _, err = ch.WaitResponse()
	test.That(t, err, test.ShouldEqual, ErrClosed)
	test.That(t, ch.UpdateStatus(Snapshot{}), test.ShouldEqual, ErrClosed)
}
