package shm

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// golang.org/x/sys/unix does not export these futex(2) operation codes;
// the values are part of the stable Linux kernel ABI (linux/futex.h).
const (
	futexWaitOp = 0
	futexWakeOp = 1
)

// Process-shared primitives over mapped memory. The futex words live in
// the region itself so both processes contend on the same kernel queue.
// No FUTEX_PRIVATE_FLAG: the wait queues must be visible across processes.

// futexMutex is the three-state mutex: 0 unlocked, 1 locked, 2 locked
// with waiters.
type futexMutex struct {
	w *uint32
}

func (m *futexMutex) Lock() {
	if atomic.CompareAndSwapUint32(m.w, 0, 1) {
		return
	}
	for {
		if atomic.LoadUint32(m.w) == 2 || atomic.CompareAndSwapUint32(m.w, 1, 2) {
			futexWait(m.w, 2)
		}
		if atomic.CompareAndSwapUint32(m.w, 0, 2) {
			return
		}
	}
}

func (m *futexMutex) Unlock() {
	if atomic.AddUint32(m.w, ^uint32(0)) != 0 {
		atomic.StoreUint32(m.w, 0)
		futexWake(m.w, 1)
	}
}

// futexCond pairs a sequence counter with the region mutex. Waiters
// snapshot the counter, drop the mutex and sleep until the counter moves.
// Spurious wakeups are allowed; all waits sit in predicate loops.
type futexCond struct {
	seq *uint32
	mu  *futexMutex
}

func (c *futexCond) Wait() {
	s := atomic.LoadUint32(c.seq)
	c.mu.Unlock()
	futexWait(c.seq, s)
	c.mu.Lock()
}

func (c *futexCond) Signal() {
	atomic.AddUint32(c.seq, 1)
	futexWake(c.seq, 1)
}

func (c *futexCond) Broadcast() {
	atomic.AddUint32(c.seq, 1)
	futexWake(c.seq, 1<<30)
}

func futexWait(addr *uint32, val uint32) {
	for {
		_, _, errno := unix.Syscall6(unix.SYS_FUTEX,
			uintptr(unsafe.Pointer(addr)), futexWaitOp, uintptr(val), 0, 0, 0)
		if errno != unix.EINTR {
			return
		}
	}
}

func futexWake(addr *uint32, n int) {
	unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)), futexWakeOp, uintptr(n), 0, 0, 0)
}
