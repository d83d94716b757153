// Package trace formats instruction trace lines, grounded on the
// donor's cmd/svm/app.go printTrace: a mnemonic and its modifier
// flags, annotated with source context when debug symbols are
// available, with breakpoint-triggered execution pauses folded in the
// same way.
package trace

import (
	"fmt"
	"log"
	"strings"

	"github.com/hexvm/svm/arch"
	"github.com/hexvm/svm/cpu"
	"github.com/hexvm/svm/internal/loader"
)

// Printer formats and emits instruction trace lines.
type Printer struct {
	out     *log.Logger
	syms    *loader.Symbols
	enabled bool

	// OnBreakpoint, if set, is called whenever execution reaches an
	// address tagged with loader.Breakpoint.
	OnBreakpoint func(addr uint16)
}

// New creates a Printer that writes to out and annotates lines with
// syms, which may be nil.
func New(out *log.Logger, syms *loader.Symbols) *Printer {
	return &Printer{out: out, syms: syms}
}

// SetEnabled toggles whether Func's returned callback actually prints.
// Breakpoint handling still runs regardless, matching the donor's
// printTrace pausing on breakpoints even when trace printing itself
// is toggled off.
func (p *Printer) SetEnabled(v bool) {
	p.enabled = v
}

// SetSymbols replaces the debug-symbol table used for source
// annotations, e.g. after reloading a ROM.
func (p *Printer) SetSymbols(syms *loader.Symbols) {
	p.syms = syms
}

// Func returns a cpu.TraceFunc bound to this printer.
func (p *Printer) Func() cpu.TraceFunc {
	return p.trace
}

func (p *Printer) trace(pc uint16, opcode byte) {
	tag := p.syms.Find(pc)

	if tag != nil && tag.Flags&loader.Breakpoint != 0 && p.OnBreakpoint != nil {
		p.OnBreakpoint(pc)
	}

	if !p.enabled {
		return
	}

	name, ok := arch.Name(opcode)
	if !ok {
		name = "???"
	}

	var sb strings.Builder
	sb.Grow(64)
	fmt.Fprintf(&sb, "%04x %5s %s", pc, name, flagString(opcode))

	if tag != nil && p.syms != nil && tag.File < len(p.syms.Files) {
		pad(&sb, 32)
		fmt.Fprintf(&sb, " %s:%d:%d", p.syms.Files[tag.File], tag.Line, tag.Col)
	}

	p.out.Println(sb.String())
}

func flagString(opcode byte) string {
	var sb strings.Builder
	if opcode&arch.FlagShort != 0 {
		sb.WriteByte('2')
	}
	if opcode&arch.FlagCopy != 0 {
		sb.WriteByte('k')
	}
	if opcode&arch.FlagSwap != 0 {
		sb.WriteByte('r')
	}
	return sb.String()
}

func pad(sb *strings.Builder, size int) {
	for sb.Len() < size {
		sb.WriteByte(' ')
	}
}
