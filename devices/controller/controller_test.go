package controller

import (
	"testing"

	"github.com/hexvm/svm/bus"
)

func TestStateBitmaskReflectsPressedButtons(t *testing.T) {
	d := New(0)
	b := bus.New(4, d.HandlePortAccess)

	d.state[ButtonA].pressed = true
	d.state[ButtonStart].pressed = true

	got := b.Read16(PortState)
	want := uint16(1<<ButtonA | 1<<ButtonStart)
	if got != want {
		t.Fatalf("want state bitmask %016b, have %016b", want, got)
	}
}

func TestJustPressedClearsAfterRead(t *testing.T) {
	d := New(0)
	b := bus.New(4, d.HandlePortAccess)

	d.state[ButtonB].justPressed = true

	if got := b.Read16(PortJustPressed); got != 1<<ButtonB {
		t.Fatalf("want just-pressed bit set, have %016b", got)
	}
	if got := b.Read16(PortJustPressed); got != 0 {
		t.Fatalf("want just-pressed latch cleared after read, have %016b", got)
	}
}

func TestJustReleasedClearsAfterRead(t *testing.T) {
	d := New(0)
	b := bus.New(4, d.HandlePortAccess)

	d.state[ButtonX].justReleased = true

	if got := b.Read16(PortJustReleased); got != 1<<ButtonX {
		t.Fatalf("want just-released bit set, have %016b", got)
	}
	if got := b.Read16(PortJustReleased); got != 0 {
		t.Fatalf("want just-released latch cleared after read, have %016b", got)
	}
}

func TestUpdateIgnoredWhenNotInitialized(t *testing.T) {
	d := New(1)
	d.Update() // no joystick bound; must not panic on a nil GetGamepadState call path
}

func TestSecondSlotHasDistinctID(t *testing.T) {
	a := New(0)
	b := New(1)
	if a.ID() == b.ID() {
		t.Fatalf("want distinct ids per player slot, both were %v", a.ID())
	}
}
