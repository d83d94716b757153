package mouse

import (
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/hexvm/svm/bus"
)

func TestPositionReadBack(t *testing.T) {
	d := New(nil)
	b := bus.New(6, d.HandlePortAccess)

	d.x, d.y = 320, 240

	if got := b.Read16(PortX); got != 320 {
		t.Fatalf("want x=320, have %d", got)
	}
	if got := b.Read16(PortY); got != 240 {
		t.Fatalf("want y=240, have %d", got)
	}
}

func TestButtonLatchesAndClearsOnRead(t *testing.T) {
	d := New(nil)
	b := bus.New(6, d.HandlePortAccess)

	d.onButton(nil, 0, glfw.Press, 0)

	if got := b.Read(PortButtons); got != 0x1 {
		t.Fatalf("want button 0 pressed, have %#x", got)
	}
	if got := b.Read(PortJustPressed); got != 0x1 {
		t.Fatalf("want just-pressed bit set, have %#x", got)
	}
	if got := b.Read(PortJustPressed); got != 0 {
		t.Fatalf("want just-pressed latch cleared after read, have %#x", got)
	}

	d.onButton(nil, 0, glfw.Release, 0)
	if got := b.Read(PortButtons); got != 0 {
		t.Fatalf("want button 0 released, have %#x", got)
	}
	if got := b.Read(PortJustReleased); got != 0x1 {
		t.Fatalf("want just-released bit set, have %#x", got)
	}
}

func TestScrollAccumulatesAndClearsOnRead(t *testing.T) {
	d := New(nil)
	b := bus.New(6, d.HandlePortAccess)

	d.onScroll(nil, 0, 3)
	d.onScroll(nil, 0, 2)

	if got := int8(b.Read(PortScroll)); got != 5 {
		t.Fatalf("want accumulated scroll 5, have %d", got)
	}
	if got := b.Read(PortScroll); got != 0 {
		t.Fatalf("want scroll cleared after read, have %d", got)
	}
}

func TestUpdateNoopsWithoutBoundWindow(t *testing.T) {
	d := New(nil)
	d.Update()
	if d.x != 0 || d.y != 0 {
		t.Fatalf("want position untouched without a bound window")
	}
}
