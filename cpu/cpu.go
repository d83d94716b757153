// Package cpu implements the fetch-decode-execute engine: the opcode
// dispatch table, the twin-stack discipline and its three modifier
// flags, and the interrupt delivery protocol.
package cpu

import (
	"log"
	"sync"

	"github.com/hexvm/svm/arch"
	"github.com/hexvm/svm/bus"
	"github.com/hexvm/svm/mmu"
	"github.com/hexvm/svm/stack"
)

// TraceFunc receives a copy of every decoded instruction, for debug
// trace output. It runs synchronously on the CPU thread.
type TraceFunc func(pc uint16, opcode byte)

// Context is the borrowed handle a CPU needs to execute one tick: the
// memory bank and the registered bus table. Passing it into Tick rather
// than storing a back-pointer on the CPU avoids cyclic ownership between
// CPU and Machine.
type Context interface {
	Memory() *mmu.Memory
	Bus(id byte) *bus.Bus
}

// CPU implements the twin-stack execution engine described in the
// instruction set: a program counter, a parameter stack, a return
// stack, and the interrupt controller.
type CPU struct {
	PC     uint16
	Param  stack.Stack
	Return stack.Stack
	Trace  TraceFunc

	mu          sync.Mutex // guards pending/pendingBus and the master-enable cell.
	pending     bool
	pendingBus  byte
}

// New creates a CPU with an optional trace handler.
func New(trace TraceFunc) *CPU {
	if trace == nil {
		trace = func(uint16, byte) {}
	}
	return &CPU{Trace: trace}
}

// Reset sets PC to 0 and empties both stacks.
func (c *CPU) Reset() {
	c.mu.Lock()
	c.pending = false
	c.pendingBus = 0
	c.mu.Unlock()

	c.PC = 0
	c.Param.Reset()
	c.Return.Reset()
}

// Interrupt is called by a device, typically from another goroutine, to
// request delivery of an interrupt from the given bus. It succeeds only
// if the master-enable cell is currently 1; on success it atomically
// clears master-enable and records the pending bus id. Returns false if
// interrupts are currently masked.
func (c *CPU) Interrupt(mem *mmu.Memory, busID byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if mem.Read(mmu.MasterEnableAddr) != 1 {
		return false
	}
	mem.Write(mmu.MasterEnableAddr, 0)
	c.pending = true
	c.pendingBus = busID
	return true
}

// Tick performs one fetch-decode-execute cycle.
func (c *CPU) Tick(ctx Context) error {
	mem := ctx.Memory()

	serviced, err := c.serviceInterrupt(ctx, mem)
	if err != nil {
		return err
	}
	if serviced {
		return nil
	}

	if c.PC == 0 {
		return newError(c.PC, ErrPcBreak)
	}

	pc := c.PC
	opByte := mem.Read(c.PC)
	c.PC++

	c.Trace(pc, opByte)

	swap := opByte&arch.FlagSwap != 0
	copyMode := opByte&arch.FlagCopy != 0
	short := opByte&arch.FlagShort != 0
	op := opByte & arch.OpMask

	source, target := &c.Param, &c.Return
	if swap {
		source, target = target, source
	}

	if copyMode {
		source.BeginCopy()
	}

	pop8 := func() (byte, error) {
		if copyMode {
			return source.Peek8()
		}
		return source.Pop8()
	}
	pop16 := func() (uint16, error) {
		if copyMode {
			return source.Peek16()
		}
		return source.Pop16()
	}
	popW := func() (uint16, error) {
		if short {
			return pop16()
		}
		v, err := pop8()
		return uint16(v), err
	}
	pushW := func(v uint16) error {
		if short {
			return source.Push16(v)
		}
		return source.Push8(byte(v))
	}

	if err := c.execute(ctx, mem, pc, op, short, source, target, pop8, pop16, popW, pushW); err != nil {
		return newError(pc, err)
	}
	return nil
}

// serviceInterrupt implements step 1 of the fetch/decode/execute cycle:
// if an interrupt is pending and interrupts are currently masked
// (master-enable == 0), transfer control to the handler vector and
// report serviced=true; that tick then ends without fetching an opcode.
// If master-enable is 1 the interrupt is left pending for a later tick.
func (c *CPU) serviceInterrupt(ctx Context, mem *mmu.Memory) (bool, error) {
	c.mu.Lock()
	pending := c.pending
	busID := c.pendingBus
	masked := mem.Read(mmu.MasterEnableAddr) == 0

	if !pending || !masked {
		c.mu.Unlock()
		return false, nil
	}
	c.pending = false
	c.mu.Unlock()

	b := ctx.Bus(busID)
	if b == nil {
		return false, ErrInvalidInterrupt
	}

	if err := c.Return.Push16(c.PC); err != nil {
		return false, err
	}
	c.PC = b.Read16(0)
	return true, nil
}

// addSigned adds a two's-complement 8-bit offset to pc, wrapping modulo 65,536.
func addSigned(pc uint16, off byte) uint16 {
	return pc + uint16(int16(int8(off)))
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// execute dispatches a single decoded opcode. pop8/pop16 are always the
// given fixed width (copy-mode aware); popW/pushW are width-selected by
// the short flag (also copy-mode aware for pops).
func (c *CPU) execute(
	ctx Context,
	mem *mmu.Memory,
	pc uint16,
	op byte,
	short bool,
	source, target *stack.Stack,
	pop8 func() (byte, error),
	pop16 func() (uint16, error),
	popW func() (uint16, error),
	pushW func(uint16) error,
) error {
	switch op {
	case arch.BRK:
		log.Printf("brk at %04x: param=%d return=%d", pc, c.Param.Len(), c.Return.Len())
		c.PC = 0

	case arch.NOP:
		// nop

	case arch.LIT:
		if short {
			hi := mem.Read(c.PC)
			lo := mem.Read(c.PC + 1)
			c.PC += 2
			return pushW(uint16(hi)<<8 | uint16(lo))
		}
		v := mem.Read(c.PC)
		c.PC++
		return pushW(uint16(v))

	case arch.POP:
		_, err := popW()
		return err

	case arch.DUP:
		a, err := popW()
		if err != nil {
			return err
		}
		if err := pushW(a); err != nil {
			return err
		}
		return pushW(a)

	case arch.OVR:
		a, err := popW()
		if err != nil {
			return err
		}
		b, err := popW()
		if err != nil {
			return err
		}
		if err := pushW(b); err != nil {
			return err
		}
		if err := pushW(a); err != nil {
			return err
		}
		return pushW(b)

	case arch.ROT:
		a, err := popW()
		if err != nil {
			return err
		}
		b, err := popW()
		if err != nil {
			return err
		}
		cc, err := popW()
		if err != nil {
			return err
		}
		if err := pushW(b); err != nil {
			return err
		}
		if err := pushW(a); err != nil {
			return err
		}
		return pushW(cc)

	case arch.SWP:
		a, err := popW()
		if err != nil {
			return err
		}
		b, err := popW()
		if err != nil {
			return err
		}
		if err := pushW(a); err != nil {
			return err
		}
		return pushW(b)

	case arch.STS:
		a, err := popW()
		if err != nil {
			return err
		}
		if short {
			return target.Push16(a)
		}
		return target.Push8(byte(a))

	case arch.ADD:
		a, b, err := popPair(popW)
		if err != nil {
			return err
		}
		return pushW(b + a)

	case arch.SUB:
		a, b, err := popPair(popW)
		if err != nil {
			return err
		}
		return pushW(b - a)

	case arch.MUL:
		a, b, err := popPair(popW)
		if err != nil {
			return err
		}
		return pushW(b * a)

	case arch.DIV:
		a, b, err := popPair(popW)
		if err != nil {
			return err
		}
		if a == 0 {
			return ErrDivideByZero
		}
		return pushW(b / a)

	case arch.AND:
		a, b, err := popPair(popW)
		if err != nil {
			return err
		}
		return pushW(b & a)

	case arch.IOR:
		a, b, err := popPair(popW)
		if err != nil {
			return err
		}
		return pushW(b | a)

	case arch.XOR:
		a, b, err := popPair(popW)
		if err != nil {
			return err
		}
		return pushW(b ^ a)

	case arch.SHI:
		ctrl, err := pop8()
		if err != nil {
			return err
		}
		value, err := popW()
		if err != nil {
			return err
		}
		right := ctrl & 0x0f
		left := ctrl >> 4
		result := (value >> right) << left
		return pushW(result)

	case arch.EQU:
		a, b, err := popPair(popW)
		if err != nil {
			return err
		}
		return source.Push8(boolByte(b == a))

	case arch.NEQ:
		a, b, err := popPair(popW)
		if err != nil {
			return err
		}
		return source.Push8(boolByte(b != a))

	case arch.GRT:
		a, b, err := popPair(popW)
		if err != nil {
			return err
		}
		return source.Push8(boolByte(b > a))

	case arch.LST:
		a, b, err := popPair(popW)
		if err != nil {
			return err
		}
		return source.Push8(boolByte(b < a))

	case arch.JMP:
		if short {
			addr, err := pop16()
			if err != nil {
				return err
			}
			c.PC = addr
			return nil
		}
		off, err := pop8()
		if err != nil {
			return err
		}
		c.PC = addSigned(pc, off)
		return nil

	case arch.JNZ:
		var addr uint16
		var err error
		if short {
			addr, err = pop16()
		} else {
			var off byte
			off, err = pop8()
			addr = addSigned(pc, off)
		}
		if err != nil {
			return err
		}
		cond, err := pop8()
		if err != nil {
			return err
		}
		if cond != 0 {
			c.PC = addr
		}
		return nil

	case arch.JSR:
		if err := target.Push16(c.PC); err != nil {
			return err
		}
		if short {
			addr, err := pop16()
			if err != nil {
				return err
			}
			c.PC = addr
			return nil
		}
		off, err := pop8()
		if err != nil {
			return err
		}
		c.PC = addSigned(pc, off)
		return nil

	case arch.LDA:
		addr, err := pop16()
		if err != nil {
			return err
		}
		if short {
			return pushW(mem.Read16(addr))
		}
		return pushW(uint16(mem.Read(addr)))

	case arch.STA:
		addr, err := pop16()
		if err != nil {
			return err
		}
		v, err := popW()
		if err != nil {
			return err
		}
		if short {
			mem.Write16(addr, v)
		} else {
			mem.Write(addr, byte(v))
		}
		return nil

	case arch.LDR:
		off, err := pop8()
		if err != nil {
			return err
		}
		addr := addSigned(pc, off)
		if short {
			return pushW(mem.Read16(addr))
		}
		return pushW(uint16(mem.Read(addr)))

	case arch.STR:
		off, err := pop8()
		if err != nil {
			return err
		}
		v, err := popW()
		if err != nil {
			return err
		}
		addr := addSigned(pc, off)
		if short {
			mem.Write16(addr, v)
		} else {
			mem.Write(addr, byte(v))
		}
		return nil

	case arch.BSI:
		portByte, err := pop8()
		if err != nil {
			return err
		}
		b := ctx.Bus(portByte >> 4)
		if b == nil {
			return nil
		}
		port := portByte & 0x0f
		if short {
			return pushW(b.Read16(port))
		}
		return pushW(uint16(b.Read(port)))

	case arch.BSO:
		portByte, err := pop8()
		if err != nil {
			return err
		}
		v, err := popW()
		if err != nil {
			return err
		}
		b := ctx.Bus(portByte >> 4)
		if b == nil {
			return nil
		}
		port := portByte & 0x0f
		if short {
			b.Write16(port, v)
		} else {
			b.Write(port, byte(v))
		}
		return nil

	default:
		return ErrUnknownOpcode
	}

	return nil
}

// popPair pops the top two operands off the source stack via the given
// width-selected pop function, returning (a, b) where a was on top.
// Binary opcodes compute b OP a, matching the spec's ( b a -- ) notation.
func popPair(popW func() (uint16, error)) (a, b uint16, err error) {
	a, err = popW()
	if err != nil {
		return 0, 0, err
	}
	b, err = popW()
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}
