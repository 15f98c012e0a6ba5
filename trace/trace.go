// package trace is a bounded flight recorder for the driver: state
// transitions, faults, interrupt dispatches and serviced commands land in
// a fixed-size log that can be dumped CBOR-encoded for post-mortem.
package trace

import (
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

type Kind int

const (
	MotorState Kind = iota
	MotorFault
	IRQDispatch
	Command
	Shutdown
)

func (k Kind) String() string {
	switch k {
	case MotorState:
		return "motor-state"
	case MotorFault:
		return "motor-fault"
	case IRQDispatch:
		return "irq-dispatch"
	case Command:
		return "command"
	case Shutdown:
		return "shutdown"
	}
	return "unknown"
}

// Event is one recorded occurrence. A and B are kind-specific operands
// (new state, fault code, IRQ source, command kind and status).
type Event struct {
	Tick uint64 `cbor:"tick"`
	Kind Kind   `cbor:"kind"`
	A    int32  `cbor:"a"`
	B    int32  `cbor:"b"`
}

// Log holds the most recent events up to a fixed capacity; older entries
// are dropped and counted.
type Log struct {
	mu      sync.Mutex
	events  []Event
	cap     int
	dropped uint64
}

func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = 256
	}
	return &Log{cap: capacity}
}

func (l *Log) Record(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) == l.cap {
		copy(l.events, l.events[1:])
		l.events = l.events[:l.cap-1]
		l.dropped++
	}
	l.events = append(l.events, ev)
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// dump is the on-wire shape of a trace dump.
type dump struct {
	Events  []Event `cbor:"events"`
	Dropped uint64  `cbor:"dropped"`
}

// Dump writes the log CBOR-encoded to w.
func (l *Log) Dump(w io.Writer) error {
	l.mu.Lock()
	events := make([]Event, len(l.events))
	copy(events, l.events)
	dropped := l.dropped
	l.mu.Unlock()
	return cbor.NewEncoder(w).Encode(dump{Events: events, Dropped: dropped})
}
