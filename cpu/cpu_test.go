package cpu

import (
	"testing"

	"github.com/hexvm/svm/arch"
	"github.com/hexvm/svm/bus"
	"github.com/hexvm/svm/mmu"
)

// harness is a minimal Context implementation for exercising Tick in
// isolation, without a full Machine.
type harness struct {
	mem   mmu.Memory
	buses [16]*bus.Bus
}

func (h *harness) Memory() *mmu.Memory { return &h.mem }
func (h *harness) Bus(id byte) *bus.Bus {
	if id >= 16 {
		return nil
	}
	return h.buses[id]
}

func newHarness() *harness {
	return &harness{}
}

// run ticks c against ctx until PcBreak or a maximum step budget is hit.
func run(t *testing.T, c *CPU, ctx Context, maxSteps int) {
	t.Helper()
	for i := 0; i < maxSteps; i++ {
		err := c.Tick(ctx)
		if err == nil {
			continue
		}
		if unwrapped, ok := err.(*Error); ok && unwrapped.Err == ErrPcBreak {
			return
		}
		t.Fatalf("tick %d: unexpected error: %v", i, err)
	}
	t.Fatalf("program did not halt within %d steps", maxSteps)
}

func TestLitAddByte(t *testing.T) {
	h := newHarness()
	prog := []byte{arch.LIT, 0x03, arch.LIT, 0x05, arch.ADD, arch.BRK}
	h.mem.Load(0x0100, prog)

	c := New(nil)
	c.PC = 0x0100
	run(t, c, h, 100)

	v, err := c.Param.Pop8()
	if err != nil {
		t.Fatalf("Pop8: %v", err)
	}
	if v != 0x08 {
		t.Fatalf("want 0x08, have %#x", v)
	}
	if c.PC != 0 {
		t.Fatalf("want PC=0, have %#x", c.PC)
	}
}

func TestLit16Add16(t *testing.T) {
	h := newHarness()
	prog := []byte{
		arch.LIT | arch.FlagShort, 0x01, 0x00,
		arch.LIT | arch.FlagShort, 0x00, 0xff,
		arch.ADD | arch.FlagShort,
		arch.BRK,
	}
	h.mem.Load(0x0100, prog)

	c := New(nil)
	c.PC = 0x0100
	run(t, c, h, 100)

	v, err := c.Param.Pop16()
	if err != nil {
		t.Fatalf("Pop16: %v", err)
	}
	if v != 0x01ff {
		t.Fatalf("want 0x01ff, have %#x", v)
	}
}

func TestWrappingSub(t *testing.T) {
	h := newHarness()
	prog := []byte{arch.LIT, 0x00, arch.LIT, 0x01, arch.SUB, arch.BRK}
	h.mem.Load(0x0100, prog)

	c := New(nil)
	c.PC = 0x0100
	run(t, c, h, 100)

	v, _ := c.Param.Pop8()
	if v != 0xff {
		t.Fatalf("want 0xff, have %#x", v)
	}
}

func TestCopyDupViaFlag(t *testing.T) {
	h := newHarness()
	prog := []byte{arch.LIT, 0x07, arch.DUP | arch.FlagCopy, arch.BRK}
	h.mem.Load(0x0100, prog)

	c := New(nil)
	c.PC = 0x0100
	run(t, c, h, 100)

	if c.Param.Len() != 3 {
		t.Fatalf("want 3 bytes on stack, have %d", c.Param.Len())
	}
	for i := 0; i < 3; i++ {
		v, err := c.Param.Pop8()
		if err != nil || v != 0x07 {
			t.Fatalf("want 0x07 at depth %d, have %#x (%v)", i, v, err)
		}
	}
}

func TestJsrJumpsAndPushesReturnAddress(t *testing.T) {
	h := newHarness()
	// LIT 0x02; JSR; NOP; LIT 0xAA; BRK
	prog := []byte{
		arch.LIT, 0x02,
		arch.JSR,
		arch.NOP,
		arch.LIT, 0xaa,
		arch.BRK,
	}
	h.mem.Load(0x0100, prog)

	c := New(nil)
	c.PC = 0x0100
	run(t, c, h, 100)

	v, err := c.Param.Pop8()
	if err != nil {
		t.Fatalf("Pop8: %v", err)
	}
	if v != 0xaa {
		t.Fatalf("want 0xaa, have %#x", v)
	}

	ret, err := c.Return.Pop16()
	if err != nil {
		t.Fatalf("Pop16: %v", err)
	}
	if ret != 0x0103 {
		t.Fatalf("want return address 0x0103 on the return stack, have %#x", ret)
	}
}

func TestBusWrite(t *testing.T) {
	h := newHarness()

	var gotPort byte
	var gotVal byte
	var writes int
	h.buses[1] = bus.New(1, func(b *bus.Bus, port byte, dir bus.Direction) {
		if dir == bus.Write {
			writes++
			gotPort = port
			gotVal = b.Buffer()[port]
		}
	})

	prog := []byte{arch.LIT, 0x42, arch.LIT, 0x11, arch.BSO, arch.BRK}
	h.mem.Load(0x0100, prog)

	c := New(nil)
	c.PC = 0x0100
	run(t, c, h, 100)

	if writes != 1 {
		t.Fatalf("want exactly one write callback, have %d", writes)
	}
	if gotPort != 1 || gotVal != 0x42 {
		t.Fatalf("want port 1 value 0x42, have port %d value %#x", gotPort, gotVal)
	}
}

func TestBusiUnregisteredIsNoop(t *testing.T) {
	h := newHarness()
	prog := []byte{arch.LIT, 0x50, arch.BSI, arch.BRK}
	h.mem.Load(0x0100, prog)

	c := New(nil)
	c.PC = 0x0100
	run(t, c, h, 100)

	if c.Param.Len() != 0 {
		t.Fatalf("expected no push from an unregistered bus, have depth %d", c.Param.Len())
	}
}

func TestSignedOffsetJumps(t *testing.T) {
	cases := []struct {
		off  byte
		want int
	}{
		{0xff, -1},
		{0x7f, 127},
		{0x80, -128},
	}

	for _, tc := range cases {
		h := newHarness()
		prog := []byte{arch.LIT, tc.off, arch.JMP, arch.BRK}
		h.mem.Load(0x0100, prog)

		c := New(nil)
		c.PC = 0x0100
		c.Tick(h) // LIT
		startPC := c.PC
		c.Tick(h) // JMP

		want := uint16(int32(startPC) + int32(tc.want))
		if c.PC != want {
			t.Fatalf("off=%#x: want PC=%#x, have %#x", tc.off, want, c.PC)
		}
	}
}

func TestComparisonPushesOneByteRegardlessOfWidth(t *testing.T) {
	for _, short := range []bool{false, true} {
		h := newHarness()
		var prog []byte
		if short {
			prog = []byte{
				arch.LIT | arch.FlagShort, 0x00, 0x01,
				arch.LIT | arch.FlagShort, 0x00, 0x01,
				arch.EQU | arch.FlagShort,
				arch.BRK,
			}
		} else {
			prog = []byte{arch.LIT, 0x01, arch.LIT, 0x01, arch.EQU, arch.BRK}
		}
		h.mem.Load(0x0100, prog)

		c := New(nil)
		c.PC = 0x0100
		run(t, c, h, 100)

		if c.Param.Len() != 1 {
			t.Fatalf("short=%v: want 1 byte on stack, have %d", short, c.Param.Len())
		}
		v, _ := c.Param.Pop8()
		if v != 1 {
			t.Fatalf("short=%v: want boolean true (1), have %d", short, v)
		}
	}
}

func TestInterruptDelivery(t *testing.T) {
	h := newHarness()
	h.buses[2] = bus.New(2, nil)
	h.buses[2].Write16(0, 0x0200) // handler vector

	prog := []byte{arch.NOP, arch.NOP, arch.BRK}
	h.mem.Load(0x0100, prog)

	handler := []byte{arch.BRK}
	h.mem.Load(0x0200, handler)

	h.mem.Write(mmu.MasterEnableAddr, 1)

	c := New(nil)
	c.PC = 0x0100

	if !c.Interrupt(&h.mem, 2) {
		t.Fatalf("expected Interrupt to succeed while enabled")
	}
	if h.mem.Read(mmu.MasterEnableAddr) != 0 {
		t.Fatalf("expected master-enable cleared after signaling")
	}

	if err := c.Tick(h); err != nil {
		t.Fatalf("unexpected error servicing interrupt: %v", err)
	}
	if c.PC != 0x0200 {
		t.Fatalf("expected PC at handler vector 0x0200, have %#x", c.PC)
	}

	ret, err := c.Return.Pop16()
	if err != nil {
		t.Fatalf("Pop16: %v", err)
	}
	if ret != 0x0100 {
		t.Fatalf("expected saved PC 0x0100, have %#x", ret)
	}
}

func TestInterruptMaskedWhileEnabled(t *testing.T) {
	h := newHarness()
	h.mem.Write(mmu.MasterEnableAddr, 1)

	c := New(nil)
	if c.Interrupt(&h.mem, 0) == false {
		t.Fatalf("interrupt should be accepted while enable=1")
	}
	// A second signal must be rejected: enable is now 0.
	if c.Interrupt(&h.mem, 0) {
		t.Fatalf("interrupt should be rejected once masked")
	}
}

func TestPcBreakOnZero(t *testing.T) {
	h := newHarness()
	c := New(nil)
	c.PC = 0

	err := c.Tick(h)
	wrapped, ok := err.(*Error)
	if !ok || wrapped.Err != ErrPcBreak {
		t.Fatalf("want ErrPcBreak, have %v", err)
	}
}

func TestUnknownOpcode(t *testing.T) {
	h := newHarness()
	prog := []byte{0x1e} // reserved slot 30
	h.mem.Load(0x0100, prog)

	c := New(nil)
	c.PC = 0x0100

	err := c.Tick(h)
	wrapped, ok := err.(*Error)
	if !ok || wrapped.Err != ErrUnknownOpcode {
		t.Fatalf("want ErrUnknownOpcode, have %v", err)
	}
}
