// Package devices defines the peripheral contract shared by every
// concrete device package (console, display, audio, controller, mouse,
// file): how a device starts up, shuts down, and reacts to port
// accesses on its bus.
package devices

import (
	"errors"
	"log"

	pkgerrors "github.com/pkg/errors"

	"github.com/hexvm/svm/bus"
)

// IntFunc requests delivery of an interrupt from the given bus id. It
// is handed to a device at Startup and may be called from any
// goroutine the device owns.
type IntFunc func(busID byte)

// Device represents a peripheral bound to one of the machine's sixteen
// buses. Unlike the CPU's synchronous opcode dispatch, a Device may
// raise interrupts asynchronously through the IntFunc given to it at
// Startup.
type Device interface {
	// ID identifies the device's manufacturer and serial number, used
	// in log lines and device lookup.
	ID() ID

	// Startup initializes internal resources. f is the interrupt
	// handler the device uses to signal the CPU asynchronously.
	Startup(IntFunc) error

	// Shutdown releases internal resources.
	Shutdown() error

	// HandlePortAccess is the device's half of the bus callback
	// contract: it runs synchronously on the CPU thread immediately
	// before a BSI read completes, or immediately after a BSO write
	// lands in the port buffer.
	HandlePortAccess(b *bus.Bus, port byte, dir bus.Direction)
}

// Registry is the list of a machine's devices, unique by ID. It fans
// Startup/Shutdown out to all of them, aggregating failures with
// errors.Join; binding a device to a bus slot is done by the caller.
type Registry []Device

// Add appends dev to the registry. Returns false if a device with the
// same ID is already registered.
func (r *Registry) Add(dev Device) bool {
	if r.Find(dev.ID()) > -1 {
		return false
	}
	*r = append(*r, dev)
	return true
}

// Find returns the index of the device with the given id, or -1.
func (r Registry) Find(id ID) int {
	for i, dev := range r {
		if dev.ID() == id {
			return i
		}
	}
	return -1
}

// Startup initializes every registered device, collecting any errors.
func (r Registry) Startup(f IntFunc) error {
	var errs []error
	for _, dev := range r {
		log.Println(dev.ID(), "startup")
		if err := dev.Startup(f); err != nil {
			errs = append(errs, pkgerrors.Wrapf(err, "%s", dev.ID()))
		}
	}
	return errors.Join(errs...)
}

// Shutdown releases every registered device, collecting any errors.
func (r Registry) Shutdown() error {
	var errs []error
	for _, dev := range r {
		log.Println(dev.ID(), "shutdown")
		if err := dev.Shutdown(); err != nil {
			errs = append(errs, pkgerrors.Wrapf(err, "%s", dev.ID()))
		}
	}
	return errors.Join(errs...)
}
