package regfile

import (
	"testing"

	"go.viam.com/test"
)

func TestOutOfRange(t *testing.T) {
	f := New()
	f.Write(MotorSpeed, 1234)

	for _, off := range []uint32{Size, Size + 4, 0x1000, 0xFFFFFFFC} {
		test.That(t, f.Read(off), test.ShouldEqual, uint32(Invalid))
		f.Write(off, 0xDEADBEEF)
		f.SetBits(off, 0xFF)
		f.ClearBits(off, 0xFF)
	}
	// Valid offsets are unaffected by the invalid accesses.
	test.That(t, f.Read(MotorSpeed), test.ShouldEqual, uint32(1234))
}

func TestUnaligned(t *testing.T) {
	f := New()
	f.Write(MotorCtrl, 0xA5)
	test.That(t, f.Read(0x01), test.ShouldEqual, uint32(Invalid))
	test.That(t, f.Read(0x02), test.ShouldEqual, uint32(Invalid))
	f.Write(0x03, 0xFFFF)
	test.That(t, f.Read(MotorCtrl), test.ShouldEqual, uint32(0xA5))
}

func TestSetClearRoundTrip(t *testing.T) {
	f := New()
	for _, prior := range []uint32{0, 0x5, 0xF0F0F0F0, 0xFFFFFFFF} {
		for _, mask := range []uint32{0, 0x1, 0x80, 0xA5A5, 0xFFFFFFFF} {
			f.Write(IRQStatus, prior)
			f.SetBits(IRQStatus, mask)
			test.That(t, f.Read(IRQStatus), test.ShouldEqual, prior|mask)
			f.ClearBits(IRQStatus, mask)
			test.That(t, f.Read(IRQStatus), test.ShouldEqual, prior&^mask)
		}
	}
}

func TestZeroInitialized(t *testing.T) {
	f := New()
	for off := uint32(0); off < Size; off += 4 {
		test.That(t, f.Read(off), test.ShouldEqual, uint32(0))
	}
}
