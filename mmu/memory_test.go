package mmu

import "testing"

func TestReadWriteRoundTrip(t *testing.T) {
	var m Memory
	for _, v := range []uint16{0, 1, 0x00ff, 0x0100, 0x1234, 0xffff} {
		addr := uint16(0x2000)
		m.Write16(addr, v)

		if have := m.Read16(addr); have != v {
			t.Fatalf("Read16(%#x): want %#x, have %#x", addr, v, have)
		}
		if have := m.Read(addr); have != byte(v>>8) {
			t.Fatalf("Read(%#x): want hi byte %#x, have %#x", addr, byte(v>>8), have)
		}
		if have := m.Read(addr + 1); have != byte(v) {
			t.Fatalf("Read(%#x): want lo byte %#x, have %#x", addr+1, byte(v), have)
		}
	}
}

func TestAddressWraps(t *testing.T) {
	var m Memory
	m.Write16(0xffff, 0xabcd)

	if have := m.Read(0xffff); have != 0xab {
		t.Fatalf("high byte: want %#x, have %#x", 0xab, have)
	}
	if have := m.Read(0x0000); have != 0xcd {
		t.Fatalf("low byte should wrap to address 0: want %#x, have %#x", 0xcd, have)
	}
}

func TestLoadOverflow(t *testing.T) {
	var m Memory
	if m.Load(Size-1, []byte{1, 2}) {
		t.Fatalf("expected Load to reject an image overflowing memory")
	}
	if !m.Load(Size-2, []byte{1, 2}) {
		t.Fatalf("expected Load to accept an image that exactly fits")
	}
}

func TestClear(t *testing.T) {
	var m Memory
	m.Write(0x1234, 0xff)
	m.Clear()
	if m.Read(0x1234) != 0 {
		t.Fatalf("expected memory to be cleared")
	}
}
