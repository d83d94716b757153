// Package display implements the bus-2 framebuffer device: a
// 640x480 packed-RGB332 buffer the CPU addresses a pixel at a time through
// port writes, blitted to screen via go-gl/glfw. Grounded on the
// donor's devices/fffe/sprdi sprite display (shader program, VAO/VBO,
// texture upload), reduced from sprite-plane compositing to a single
// framebuffer blit.
package display

import (
	"github.com/hexvm/svm/bus"
	"github.com/hexvm/svm/devices"
)

// Display geometry, per spec.md §6.
const (
	Width  = 640
	Height = 480
)

// Port assignments within the device's 16-byte window. X and Y are
// 16-bit big-endian pairs; color is a single packed RGB332 byte.
const (
	PortX      = 0x0 // + 0x1: X coordinate, 16-bit.
	PortY      = 0x2 // + 0x3: Y coordinate, 16-bit.
	PortColor  = 0x4 // packed RGB332 color.
	PortPlot   = 0x5 // write (any value): plot (X,Y) in Color.
	PortClear  = 0x6 // write (any value): clear the back buffer to black.
	PortSwap   = 0x7 // write (any value): publish the back buffer for the next Draw.
)

// Device owns the back buffer the CPU paints into and the front
// buffer the renderer reads from. Swap happens on PortSwap so a
// half-drawn frame is never presented.
type Device struct {
	back  [Width * Height]byte // packed RGB332 per pixel.
	front [Width * Height]byte

	x, y uint16
	color byte

	// GL resource handles, populated by Startup; zero until then.
	shader, vao, vbo, tex uint32
	initialized           bool
}

var _ devices.Device = &Device{}

// New creates an un-started display device.
func New() *Device {
	return &Device{}
}

// ID returns the device identifier.
func (d *Device) ID() devices.ID {
	return devices.NewID(0x6876, 0x0002) // "hv" display
}

// Shutdown releases GL resources if Startup ran.
func (d *Device) Shutdown() error {
	if d.initialized {
		d.releaseGL()
		d.initialized = false
	}
	return nil
}

// HandlePortAccess implements devices.Device. Pixel writes land in the
// back buffer immediately; nothing is visible to the renderer until
// PortSwap copies back to front.
func (d *Device) HandlePortAccess(b *bus.Bus, port byte, dir bus.Direction) {
	if dir != bus.Write {
		return
	}

	buf := b.Buffer()
	switch port {
	case PortX, PortX + 1:
		d.x = uint16(buf[PortX])<<8 | uint16(buf[PortX+1])
	case PortY, PortY + 1:
		d.y = uint16(buf[PortY])<<8 | uint16(buf[PortY+1])
	case PortColor:
		d.color = buf[PortColor]
	case PortPlot:
		d.plot(d.x, d.y, d.color)
	case PortClear:
		for i := range d.back {
			d.back[i] = 0
		}
	case PortSwap:
		d.front = d.back
	}
}

func (d *Device) plot(x, y uint16, color byte) {
	if int(x) >= Width || int(y) >= Height {
		return
	}
	d.back[int(y)*Width+int(x)] = color
}

// Front returns the currently published frame, for rendering or tests.
func (d *Device) Front() *[Width * Height]byte {
	return &d.front
}
