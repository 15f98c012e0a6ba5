// package shm implements the cross-process command/status channel: a
// single-slot command mailbox paired one-to-one with a response mailbox,
// plus a status snapshot, all guarded by one mutex and two condition
// variables. Two backends provide the region: an in-process one for
// single-process hosts and tests, and a mapped file under /dev/shm with
// futex-based process-shared primitives (linux).
package shm

import (
	"github.com/pkg/errors"
)

// DefaultName is the conventional name of the shared region.
const DefaultName = "motor_driver_shm"

// MaxPayload is the response payload capacity in words.
const MaxPayload = 8

type CommandKind uint32

const (
	CmdNone CommandKind = iota
	CmdMotorStart
	CmdMotorStop
	CmdMotorSetSpeed
	CmdSensorRead
	CmdGetStatus
	CmdReset
)

type RespStatus uint32

const (
	RespOk RespStatus = iota
	RespError
	RespBusy
	RespInvalidCommand
)

var (
	ErrClosed    = errors.New("shm: nil or closed channel")
	ErrShutdown  = errors.New("shm: shutdown requested")
	ErrNoCommand = errors.New("shm: no command pending")
)

// Snapshot is the most-recent device state published for observers.
type Snapshot struct {
	MotorState    uint32
	MotorSpeed    int32
	MotorPosition int32
	Sensors       [4]int32
	Fault         uint32
}

// record is the wire layout of the shared region. Every field is one
// 32-bit word so the mapped representation is identical on both sides.
// The three leading words are the futex mutex and the two condition
// variable sequence counters; the in-process backend leaves them unused.
type record struct {
	lock    uint32
	cmdSeq  uint32
	respSeq uint32

	cmdKind    uint32
	cmdP1      int32
	cmdP2      int32
	cmdPending uint32

	respStatus uint32
	respCount  uint32
	respData   [MaxPayload]int32
	respFlag   uint32

	motorState uint32
	motorSpeed int32
	motorPos   int32
	sensors    [4]int32
	fault      uint32

	shutdown uint32
}

type cond interface {
	Wait()
	Signal()
	Broadcast()
}

type locker interface {
	Lock()
	Unlock()
}

// Channel is one peer's attachment to the region. The same protocol runs
// over either backend.
type Channel struct {
	rec      *record
	mu       locker
	cmdCond  cond
	respCond cond
	detach   func() error
	remove   func() error
}

// SendCommand queues a command, blocking while a prior one is still
// unanswered. Returns ErrShutdown if shutdown is requested while waiting.
func (ch *Channel) SendCommand(kind CommandKind, p1, p2 int32) error {
	if ch == nil {
		return ErrClosed
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	for ch.rec.cmdPending != 0 && ch.rec.shutdown == 0 {
		ch.respCond.Wait()
	}
	if ch.rec.shutdown != 0 {
		return ErrShutdown
	}
	ch.rec.cmdKind = uint32(kind)
	ch.rec.cmdP1 = p1
	ch.rec.cmdP2 = p2
	ch.rec.cmdPending = 1
	ch.rec.respFlag = 0
	ch.cmdCond.Signal()
	return nil
}

// GetCommand blocks until a command is pending or shutdown is requested.
func (ch *Channel) GetCommand() (CommandKind, int32, int32, error) {
	if ch == nil {
		return CmdNone, 0, 0, ErrClosed
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	for ch.rec.cmdPending == 0 && ch.rec.shutdown == 0 {
		ch.cmdCond.Wait()
	}
	if ch.rec.shutdown != 0 {
		return CmdNone, 0, 0, ErrShutdown
	}
	return CommandKind(ch.rec.cmdKind), ch.rec.cmdP1, ch.rec.cmdP2, nil
}

// TryGetCommand is the non-blocking receive the tick loop polls with.
func (ch *Channel) TryGetCommand() (CommandKind, int32, int32, error) {
	if ch == nil {
		return CmdNone, 0, 0, ErrClosed
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.rec.shutdown != 0 {
		return CmdNone, 0, 0, ErrShutdown
	}
	if ch.rec.cmdPending == 0 {
		return CmdNone, 0, 0, ErrNoCommand
	}
	return CommandKind(ch.rec.cmdKind), ch.rec.cmdP1, ch.rec.cmdP2, nil
}

// SendResponse answers the pending command. Payloads longer than
// MaxPayload words are truncated.
func (ch *Channel) SendResponse(status RespStatus, data []int32) error {
	if ch == nil {
		return ErrClosed
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	n := min(len(data), MaxPayload)
	copy(ch.rec.respData[:n], data[:n])
	ch.rec.respCount = uint32(n)
	ch.rec.respStatus = uint32(status)
	ch.rec.cmdPending = 0
	ch.rec.respFlag = 1
	ch.respCond.Broadcast()
	return nil
}

// WaitResponse blocks until a response is ready, consumes it, and releases
// any follow-up sender.
func (ch *Channel) WaitResponse() (RespStatus, []int32, error) {
	if ch == nil {
		return RespError, nil, ErrClosed
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	for ch.rec.respFlag == 0 && ch.rec.shutdown == 0 {
		ch.respCond.Wait()
	}
	if ch.rec.shutdown != 0 {
		return RespError, nil, ErrShutdown
	}
	status := RespStatus(ch.rec.respStatus)
	data := make([]int32, ch.rec.respCount)
	copy(data, ch.rec.respData[:ch.rec.respCount])
	ch.rec.respFlag = 0
	ch.respCond.Signal()
	return status, data, nil
}

// UpdateStatus publishes the snapshot atomically with respect to readers.
func (ch *Channel) UpdateStatus(s Snapshot) error {
	if ch == nil {
		return ErrClosed
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.rec.motorState = s.MotorState
	ch.rec.motorSpeed = s.MotorSpeed
	ch.rec.motorPos = s.MotorPosition
	ch.rec.sensors = s.Sensors
	ch.rec.fault = s.Fault
	return nil
}

// Status reads the last published snapshot.
func (ch *Channel) Status() Snapshot {
	if ch == nil {
		return Snapshot{}
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return Snapshot{
		MotorState:    ch.rec.motorState,
		MotorSpeed:    ch.rec.motorSpeed,
		MotorPosition: ch.rec.motorPos,
		Sensors:       ch.rec.sensors,
		Fault:         ch.rec.fault,
	}
}

// RequestShutdown sets the shutdown flag and wakes every blocked peer.
// The flag only ever transitions false to true.
func (ch *Channel) RequestShutdown() {
	if ch == nil {
		return
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.rec.shutdown = 1
	ch.cmdCond.Broadcast()
	ch.respCond.Broadcast()
}

// IsShutdownRequested reports the shutdown flag. A nil channel reads as
// shut down, which fails safe for callers that lost the region.
func (ch *Channel) IsShutdownRequested() bool {
	if ch == nil {
		return true
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.rec.shutdown != 0
}

// Close detaches from the region without releasing it.
func (ch *Channel) Close() error {
	if ch == nil {
		return ErrClosed
	}
	if ch.detach != nil {
		return ch.detach()
	}
	return nil
}

// Destroy releases the underlying region. Owner only.
func (ch *Channel) Destroy() error {
	if ch == nil {
		return ErrClosed
	}
	if ch.remove != nil {
		return ch.remove()
	}
	return nil
}
