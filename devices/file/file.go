// Package file implements the bus-0xA backing-file device: a flat,
// byte-addressable file the running program can seek through and
// stream data to or from one byte at a time. Grounded directly on the
// donor's devices/fffe/fd35 floppy drive (StateNoMedia/StateReady/
// StateBusy state machine, mutex-guarded data slice, load-on-startup/
// flush-on-shutdown), reduced from fixed floppy geometry and
// sector-sized DMA to a single growable byte slice addressed by a
// 32-bit offset, since port access here moves one byte at a time
// rather than whole sectors into CPU memory.
package file

import (
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/hexvm/svm/bus"
	"github.com/hexvm/svm/devices"
)

// Known device states.
const (
	StateNoMedia = iota
	StateReady
	StateBusy
)

// Known error conditions, readable through PortError.
const (
	ErrorNone = iota
	ErrorNoMedia
	ErrorEOF
	ErrorBroken
)

// Port assignments within the device's 16-byte window. The offset is a
// 32-bit big-endian value split across four ports so a single file can
// exceed 64 KiB.
const (
	PortOffset0 = 0x0
	PortOffset1 = 0x1
	PortOffset2 = 0x2
	PortOffset3 = 0x3
	PortData    = 0x4 // read: next byte at offset, then offset++. write: store byte at offset, then offset++, growing the file if needed.
	PortStatus  = 0x5 // read-only.
	PortError   = 0x6 // read-only.
	PortLength  = 0x7 // + 0x8: 16-bit low word of the backing data's length, read-only.
)

// Device is a mutex-guarded backing file exposed through the port bus.
type Device struct {
	mu       sync.Mutex
	path     string
	readonly bool

	data   []byte
	offset uint32
	state  int
	lasterr int
}

var _ devices.Device = &Device{}

// New creates a file device backed by path. An empty path leaves the
// device in StateNoMedia.
func New(path string, readonly bool) *Device {
	return &Device{path: path, readonly: readonly}
}

// ID returns the device identifier.
func (d *Device) ID() devices.ID {
	return devices.NewID(0x6876, 0x00a0)
}

// Startup loads the backing file into memory, if one was configured.
func (d *Device) Startup(devices.IntFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state = StateNoMedia
	d.lasterr = ErrorNone
	d.offset = 0

	if d.path == "" {
		return nil
	}

	data, err := os.ReadFile(d.path)
	if err != nil {
		if os.IsNotExist(err) && !d.readonly {
			d.data = nil
			d.state = StateReady
			return nil
		}
		d.lasterr = ErrorBroken
		return errors.Wrapf(err, "file: loading %s", d.path)
	}

	d.data = data
	d.state = StateReady
	return nil
}

// Shutdown flushes the in-memory data back to the backing file.
func (d *Device) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state = StateNoMedia

	if d.path == "" || d.readonly {
		return nil
	}

	if err := os.WriteFile(d.path, d.data, 0o644); err != nil {
		return errors.Wrapf(err, "file: flushing %s", d.path)
	}
	return nil
}

// HandlePortAccess implements devices.Device.
func (d *Device) HandlePortAccess(b *bus.Bus, port byte, dir bus.Direction) {
	d.mu.Lock()
	defer d.mu.Unlock()

	buf := b.Buffer()

	if dir == bus.Write {
		switch port {
		case PortOffset0, PortOffset1, PortOffset2, PortOffset3:
			d.offset = offsetFrom(buf)
		case PortData:
			d.writeByte(buf[PortData])
		}
		return
	}

	switch port {
	case PortData:
		buf[PortData] = d.readByte()
	case PortStatus:
		buf[PortStatus] = byte(d.state)
	case PortError:
		buf[PortError] = byte(d.lasterr)
	case PortLength:
		length := uint16(len(d.data))
		buf[PortLength] = byte(length >> 8)
		buf[PortLength+1] = byte(length)
	}
}

func offsetFrom(buf *[16]byte) uint32 {
	return uint32(buf[PortOffset0])<<24 | uint32(buf[PortOffset1])<<16 |
		uint32(buf[PortOffset2])<<8 | uint32(buf[PortOffset3])
}

func (d *Device) readByte() byte {
	if d.state != StateReady {
		d.lasterr = ErrorNoMedia
		return 0
	}
	if d.offset >= uint32(len(d.data)) {
		d.lasterr = ErrorEOF
		return 0
	}

	d.state = StateBusy
	v := d.data[d.offset]
	d.offset++
	d.lasterr = ErrorNone
	d.state = StateReady
	return v
}

func (d *Device) writeByte(v byte) {
	if d.state == StateNoMedia {
		d.lasterr = ErrorNoMedia
		return
	}
	if d.readonly {
		d.lasterr = ErrorBroken
		return
	}

	d.state = StateBusy
	if int(d.offset) >= len(d.data) {
		grown := make([]byte, d.offset+1)
		copy(grown, d.data)
		d.data = grown
	}
	d.data[d.offset] = v
	d.offset++
	d.lasterr = ErrorNone
	d.state = StateReady
}
