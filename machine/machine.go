// Package machine wires the CPU, memory, bus table and the registered
// devices into a runnable system, mirroring the donor's CPUController
// but generalized to the spec's bus/device model instead of a single
// connected-device list addressed through INT.
package machine

import (
	"io"
	"log"
	"os"

	"github.com/pkg/errors"

	"github.com/hexvm/svm/bus"
	"github.com/hexvm/svm/cpu"
	"github.com/hexvm/svm/devices"
	"github.com/hexvm/svm/mmu"
)

// ErrMemoryLoadingOverflow is returned when a ROM image does not fit
// in memory at the requested load address.
var ErrMemoryLoadingOverflow = errors.New("machine: rom does not fit in memory")

// Machine owns the memory bank, the CPU, the sixteen device buses, and
// the devices bound to them. It implements cpu.Context.
type Machine struct {
	mem   mmu.Memory
	cpu   *cpu.CPU
	buses [16]*bus.Bus
	devs  devices.Registry
}

// New creates a Machine with an optional instruction trace handler.
func New(trace cpu.TraceFunc) *Machine {
	return &Machine{cpu: cpu.New(trace)}
}

// Memory implements cpu.Context.
func (m *Machine) Memory() *mmu.Memory { return &m.mem }

// Bus implements cpu.Context.
func (m *Machine) Bus(id byte) *bus.Bus {
	if id >= 16 {
		return nil
	}
	return m.buses[id]
}

// CPU returns the machine's CPU, for callers that need direct access
// (trace wiring, interrupt signaling, stack inspection in tests).
func (m *Machine) CPU() *cpu.CPU { return m.cpu }

// RegisterDevice binds dev to bus id, replacing any bus previously
// registered at that slot. It fails if a device with the same ID is
// already registered elsewhere in the machine.
func (m *Machine) RegisterDevice(id byte, dev devices.Device) error {
	if id >= 16 {
		return errors.Errorf("machine: invalid bus id %d", id)
	}
	if !m.devs.Add(dev) {
		return errors.Errorf("machine: device %s already registered", dev.ID())
	}
	m.buses[id] = bus.New(id, dev.HandlePortAccess)
	return nil
}

// LoadROM copies data into memory starting at dest.
func (m *Machine) LoadROM(dest uint16, data []byte) error {
	if !m.mem.Load(dest, data) {
		return ErrMemoryLoadingOverflow
	}
	return nil
}

// LoadROMFile reads the file at path and loads it at dest.
func (m *Machine) LoadROMFile(path string, dest uint16) error {
	fd, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "machine: failed to open %s", path)
	}
	defer fd.Close()

	data, err := io.ReadAll(fd)
	if err != nil {
		return errors.Wrapf(err, "machine: failed to read %s", path)
	}

	return m.LoadROM(dest, data)
}

// Startup initializes every registered device.
func (m *Machine) Startup() error {
	return m.devs.Startup(func(busID byte) {
		m.cpu.Interrupt(&m.mem, busID)
	})
}

// Shutdown releases every registered device's resources.
func (m *Machine) Shutdown() error {
	return m.devs.Shutdown()
}

// Reset clears memory and resets the CPU to its power-on state.
func (m *Machine) Reset() {
	m.mem.Clear()
	m.cpu.Reset()
}

// Step performs a single fetch/decode/execute cycle. ErrPcBreak is
// swallowed and reported as a normal, non-error stop.
func (m *Machine) Step() (halted bool, err error) {
	err = m.cpu.Tick(m)
	if err == nil {
		return false, nil
	}
	if unwrapped, ok := err.(*cpu.Error); ok && unwrapped.Err == cpu.ErrPcBreak {
		return true, nil
	}
	return false, err
}

// Run executes up to n ticks, stopping early on ErrPcBreak. Any other
// per-tick error is logged and execution stops; Run never panics the
// host process.
func (m *Machine) Run(n int) {
	for i := 0; i < n; i++ {
		halted, err := m.Step()
		if err != nil {
			log.Println(err)
			return
		}
		if halted {
			return
		}
	}
}
