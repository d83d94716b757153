package trace

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/hexvm/svm/arch"
	"github.com/hexvm/svm/internal/loader"
)

func TestTraceLineIncludesMnemonicAndFlags(t *testing.T) {
	var buf bytes.Buffer
	p := New(log.New(&buf, "", 0), nil)
	p.SetEnabled(true)

	p.Func()(0x0100, arch.ADD|arch.FlagShort)

	out := buf.String()
	if !strings.Contains(out, "0100") || !strings.Contains(out, "ADD") || !strings.Contains(out, "2") {
		t.Fatalf("want address, mnemonic and short flag in trace line, have %q", out)
	}
}

func TestTraceDisabledPrintsNothing(t *testing.T) {
	var buf bytes.Buffer
	p := New(log.New(&buf, "", 0), nil)

	p.Func()(0x0100, arch.NOP)

	if buf.Len() != 0 {
		t.Fatalf("want no output while disabled, have %q", buf.String())
	}
}

func TestTraceAnnotatesSourceWhenTagPresent(t *testing.T) {
	var buf bytes.Buffer
	syms := &loader.Symbols{
		Files: []string{"main.asm"},
		Tags:  []loader.Tag{{Address: 0x0010, File: 0, Line: 5, Col: 2}},
	}
	p := New(log.New(&buf, "", 0), syms)
	p.SetEnabled(true)

	p.Func()(0x0010, arch.NOP)

	if !strings.Contains(buf.String(), "main.asm:5:2") {
		t.Fatalf("want source annotation in trace line, have %q", buf.String())
	}
}

func TestBreakpointCallbackFiresEvenWhenDisabled(t *testing.T) {
	var buf bytes.Buffer
	syms := &loader.Symbols{Tags: []loader.Tag{{Address: 0x20, Flags: loader.Breakpoint}}}
	p := New(log.New(&buf, "", 0), syms)

	var hit uint16
	p.OnBreakpoint = func(addr uint16) { hit = addr }

	p.Func()(0x20, arch.NOP)

	if hit != 0x20 {
		t.Fatalf("want breakpoint callback at 0x20, have %#x", hit)
	}
}
