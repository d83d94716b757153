// Package controller implements the bus-4/5 gamepad devices: two
// independent instances, one per player slot, each polling one glfw
// joystick. Grounded on the donor's devices/fffe/gp14, adapted so
// button state is exposed through the 16-byte port buffer instead of
// a synchronous INT readout.
package controller

import (
	"log"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/hexvm/svm/bus"
	"github.com/hexvm/svm/devices"
)

// Button indices, matching glfw's standard gamepad mapping.
const (
	ButtonA           = glfw.ButtonA
	ButtonB           = glfw.ButtonB
	ButtonX           = glfw.ButtonX
	ButtonY           = glfw.ButtonY
	ButtonUp          = glfw.ButtonDpadUp
	ButtonRight       = glfw.ButtonDpadRight
	ButtonDown        = glfw.ButtonDpadDown
	ButtonLeft        = glfw.ButtonDpadLeft
	ButtonLeftBumper  = glfw.ButtonLeftBumper
	ButtonRightBumper = glfw.ButtonRightBumper
	ButtonBack        = glfw.ButtonBack
	ButtonStart       = glfw.ButtonStart
)

// Port assignments within the device's 16-byte window. Each bitmask is
// a 16-bit big-endian pair covering up to sixteen buttons.
const (
	PortState        = 0x0 // + 0x1: currently-pressed bitmask.
	PortJustPressed  = 0x2 // + 0x3: pressed-this-poll bitmask, cleared on read.
	PortJustReleased = 0x4 // + 0x5: released-this-poll bitmask, cleared on read.
)

type buttonState struct {
	pressed      bool
	justPressed  bool
	justReleased bool
}

// Device is one player's gamepad slot.
type Device struct {
	slot        int
	joy         glfw.Joystick
	state       [16]buttonState
	initialized bool
}

var _ devices.Device = &Device{}

// New creates a controller bound to player slot n (0 or 1).
func New(slot int) *Device {
	return &Device{slot: slot}
}

// ID returns the device identifier; the serial component distinguishes
// the two player slots.
func (d *Device) ID() devices.ID {
	return devices.NewID(0x6876, 0x0004+d.slot)
}

// Startup detects a connected joystick for this slot.
func (d *Device) Startup(devices.IntFunc) error {
	glfw.SetJoystickCallback(d.configure)

	joy := glfw.Joystick(int(glfw.Joystick1) + d.slot)
	if joy.Present() && joy.IsGamepad() {
		d.configure(joy, glfw.Connected)
	}
	return nil
}

// Shutdown clears the joystick callback.
func (d *Device) Shutdown() error {
	glfw.SetJoystickCallback(nil)
	return nil
}

// Update polls the bound joystick and refreshes button latches. Called
// once per frame from the host's main loop.
func (d *Device) Update() {
	if !d.initialized {
		return
	}

	gp := d.joy.GetGamepadState()
	if gp == nil {
		return
	}

	for btn, action := range gp.Buttons {
		s := &d.state[btn]
		pressed := action == glfw.Press

		if pressed && !s.pressed {
			s.justPressed = true
		}
		if !pressed && s.pressed {
			s.justReleased = true
		}
		s.pressed = pressed
	}
}

// HandlePortAccess implements devices.Device. Only the high-byte port of
// each pair triggers a recompute: it fills both buffer bytes so the
// low-byte read that immediately follows (as done by Bus.Read16) just
// returns what was already stored, rather than re-deriving a mask after
// a latch has already been cleared.
func (d *Device) HandlePortAccess(b *bus.Bus, port byte, dir bus.Direction) {
	if dir != bus.Read {
		return
	}

	buf := b.Buffer()
	switch port {
	case PortState:
		putWord(buf, PortState, d.bitmask(func(s buttonState) bool { return s.pressed }))
	case PortJustPressed:
		putWord(buf, PortJustPressed, d.bitmask(func(s buttonState) bool { return s.justPressed }))
		for i := range d.state {
			d.state[i].justPressed = false
		}
	case PortJustReleased:
		putWord(buf, PortJustReleased, d.bitmask(func(s buttonState) bool { return s.justReleased }))
		for i := range d.state {
			d.state[i].justReleased = false
		}
	}
}

func putWord(buf *[16]byte, port byte, v uint16) {
	buf[port] = byte(v >> 8)
	buf[port+1] = byte(v)
}

func (d *Device) bitmask(pred func(buttonState) bool) uint16 {
	var mask uint16
	for i, s := range d.state {
		if pred(s) {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

func (d *Device) configure(joy glfw.Joystick, event glfw.PeripheralEvent) {
	if int(joy-glfw.Joystick1) != d.slot {
		return
	}

	d.initialized = event == glfw.Connected && joy.IsGamepad()
	d.joy = joy

	if d.initialized {
		log.Println(d.ID(), "gamepad connected")
	} else {
		log.Println(d.ID(), "gamepad disconnected")
	}

	for i := range d.state {
		d.state[i] = buttonState{}
	}
}
