// Package console implements the bus-1 console device: a byte stream
// over stdin/stdout, grounded on the bufio.Reader-driven terminal I/O
// in unixdj-forego's forth VM, adapted to the port-buffer callback
// contract instead of direct memory access.
package console

import (
	"bufio"
	"io"
	"os"

	"github.com/hexvm/svm/bus"
	"github.com/hexvm/svm/devices"
)

// Port assignments within the device's 16-byte window.
const (
	PortWrite  = 0x0 // write: emits the byte to Out.
	PortRead   = 0x1 // read: pulls the next buffered input byte.
	PortStatus = 0x2 // read: 1 if an input byte is buffered, else 0.
)

// Device is the console peripheral. In and Out default to stdin/stdout
// but may be swapped for testing.
type Device struct {
	In  io.Reader
	Out io.Writer

	intFunc devices.IntFunc
	pending chan byte
	done    chan struct{}
}

var _ devices.Device = &Device{}

// New creates a console device reading from stdin and writing to stdout.
func New() *Device {
	return &Device{In: os.Stdin, Out: os.Stdout}
}

// ID returns the device identifier.
func (d *Device) ID() devices.ID {
	return devices.NewID(0x6876, 0x0001) // "hv" console
}

// Startup starts the background goroutine that polls In for bytes and
// raises an interrupt on bus 1 whenever one arrives.
func (d *Device) Startup(f devices.IntFunc) error {
	d.intFunc = f
	d.pending = make(chan byte, 1)
	d.done = make(chan struct{})
	go d.poll()
	return nil
}

// Shutdown stops the polling goroutine.
func (d *Device) Shutdown() error {
	close(d.done)
	return nil
}

// poll reads single bytes from In and forwards them, signaling an
// interrupt on bus 1 for each one.
func (d *Device) poll() {
	r := bufio.NewReader(d.In)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return
		}
		select {
		case d.pending <- b:
			d.intFunc(0x1)
		case <-d.done:
			return
		}
		select {
		case <-d.done:
			return
		default:
		}
	}
}

// HandlePortAccess implements devices.Device.
func (d *Device) HandlePortAccess(b *bus.Bus, port byte, dir bus.Direction) {
	switch port {
	case PortWrite:
		if dir == bus.Write {
			d.Out.Write([]byte{b.Buffer()[PortWrite]})
		}
	case PortRead:
		if dir == bus.Read {
			select {
			case v := <-d.pending:
				b.Buffer()[PortRead] = v
			default:
				b.Buffer()[PortRead] = 0
			}
		}
	case PortStatus:
		if dir == bus.Read {
			if len(d.pending) > 0 {
				b.Buffer()[PortStatus] = 1
			} else {
				b.Buffer()[PortStatus] = 0
			}
		}
	}
}
