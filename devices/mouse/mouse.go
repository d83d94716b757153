// Package mouse implements the bus-6 pointer device: cursor position
// and button latches sourced from a glfw.Window. There is no donor
// equivalent; the port protocol follows the same pressed/just-pressed/
// just-released latch idiom used by devices/controller, which is
// itself grounded on devices/fffe/gp14.
package mouse

import (
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/hexvm/svm/bus"
	"github.com/hexvm/svm/devices"
)

// Port assignments within the device's 16-byte window.
const (
	PortX             = 0x0 // + 0x1: cursor x, clamped to 0..0xffff.
	PortY             = 0x2 // + 0x3: cursor y.
	PortButtons       = 0x4 // currently-pressed button bitmask (low 3 bits).
	PortJustPressed   = 0x5 // pressed-this-poll bitmask, cleared on read.
	PortJustReleased  = 0x6 // released-this-poll bitmask, cleared on read.
	PortScroll        = 0x7 // signed scroll delta accumulated since last read, cleared on read.
)

type buttonState struct {
	pressed      bool
	justPressed  bool
	justReleased bool
}

// Device tracks pointer position and button state for one window.
type Device struct {
	win *glfw.Window

	x, y    uint16
	buttons [3]buttonState
	scroll  int8
}

var _ devices.Device = &Device{}

// New creates a mouse device bound to win. win may be nil until Bind is
// called, letting the device be constructed before the window exists.
func New(win *glfw.Window) *Device {
	return &Device{win: win}
}

// Bind attaches (or replaces) the glfw window this device tracks.
func (d *Device) Bind(win *glfw.Window) {
	d.win = win
	if win != nil {
		win.SetMouseButtonCallback(d.onButton)
		win.SetScrollCallback(d.onScroll)
	}
}

// ID returns the device identifier.
func (d *Device) ID() devices.ID {
	return devices.NewID(0x6876, 0x0006)
}

// Startup is a no-op; binding happens once the host window exists.
func (d *Device) Startup(devices.IntFunc) error { return nil }

// Shutdown clears the window callbacks.
func (d *Device) Shutdown() error {
	if d.win != nil {
		d.win.SetMouseButtonCallback(nil)
		d.win.SetScrollCallback(nil)
	}
	return nil
}

// Update polls the cursor position. Called once per frame from the
// host's main loop; button and scroll state arrive via glfw callbacks.
func (d *Device) Update() {
	if d.win == nil {
		return
	}
	x, y := d.win.GetCursorPos()
	d.x = clampCoord(x)
	d.y = clampCoord(y)
}

func clampCoord(v float64) uint16 {
	if v < 0 {
		return 0
	}
	if v > 0xffff {
		return 0xffff
	}
	return uint16(v)
}

func (d *Device) onButton(_ *glfw.Window, button glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
	if int(button) >= len(d.buttons) {
		return
	}
	s := &d.buttons[button]
	switch action {
	case glfw.Press:
		if !s.pressed {
			s.justPressed = true
		}
		s.pressed = true
	case glfw.Release:
		if s.pressed {
			s.justReleased = true
		}
		s.pressed = false
	}
}

func (d *Device) onScroll(_ *glfw.Window, _, yoff float64) {
	delta := int(yoff)
	sum := int(d.scroll) + delta
	switch {
	case sum > 127:
		sum = 127
	case sum < -128:
		sum = -128
	}
	d.scroll = int8(sum)
}

// HandlePortAccess implements devices.Device.
func (d *Device) HandlePortAccess(b *bus.Bus, port byte, dir bus.Direction) {
	if dir != bus.Read {
		return
	}

	buf := b.Buffer()
	switch port {
	case PortX:
		putWord(buf, PortX, d.x)
	case PortY:
		putWord(buf, PortY, d.y)
	case PortButtons:
		buf[PortButtons] = d.bitmask(func(s buttonState) bool { return s.pressed })
	case PortJustPressed:
		buf[PortJustPressed] = d.bitmask(func(s buttonState) bool { return s.justPressed })
		for i := range d.buttons {
			d.buttons[i].justPressed = false
		}
	case PortJustReleased:
		buf[PortJustReleased] = d.bitmask(func(s buttonState) bool { return s.justReleased })
		for i := range d.buttons {
			d.buttons[i].justReleased = false
		}
	case PortScroll:
		buf[PortScroll] = byte(d.scroll)
		d.scroll = 0
	}
}

func (d *Device) bitmask(pred func(buttonState) bool) byte {
	var mask byte
	for i, s := range d.buttons {
		if pred(s) {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

func putWord(buf *[16]byte, port byte, v uint16) {
	buf[port] = byte(v >> 8)
	buf[port+1] = byte(v)
}
