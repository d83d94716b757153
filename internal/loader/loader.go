// Package loader reads ROM images and their optional debug-symbol
// sidecar files. The sidecar format (a gzip-compressed file table plus
// per-address source tags) is adapted from the donor's asm/ar debug
// archive, stripped down to only the symbol table: this repo has no
// assembler, so there is no compiled-instruction payload to carry
// alongside it.
package loader

import (
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Flag bits on a Tag.
const (
	// Breakpoint marks an address at which single-step execution
	// should pause.
	Breakpoint byte = 1 << iota
)

// Tag associates one ROM address with a source location.
type Tag struct {
	Address uint16
	File    int
	Line    int
	Col     int
	Flags   byte
}

// Symbols is a ROM's optional debug-symbol table.
type Symbols struct {
	Files []string
	Tags  []Tag
}

// Find returns the tag at addr, or nil if none is recorded.
func (s *Symbols) Find(addr uint16) *Tag {
	if s == nil {
		return nil
	}
	for i := range s.Tags {
		if s.Tags[i].Address == addr {
			return &s.Tags[i]
		}
	}
	return nil
}

// LoadROM reads a raw ROM image from path.
func LoadROM(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "loader: reading rom %s", path)
	}
	return data, nil
}

// SidecarPath returns the conventional debug-symbol file path for a
// ROM at romPath: the ROM path with a ".dbg" suffix appended.
func SidecarPath(romPath string) string {
	return romPath + ".dbg"
}

// LoadSymbols reads a debug-symbol sidecar file. A missing file is not
// an error: it returns (nil, nil), since debug symbols are optional.
func LoadSymbols(path string) (syms *Symbols, err error) {
	fd, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "loader: opening symbols %s", path)
	}
	defer fd.Close()

	gz, err := gzip.NewReader(fd)
	if err != nil {
		return nil, errors.Wrapf(err, "loader: invalid symbol archive %s", path)
	}
	defer gz.Close()

	defer recoverOnPanic(&err)

	syms = &Symbols{}
	syms.Files = make([]string, readU8(gz))
	for i := range syms.Files {
		syms.Files[i] = string(readBytes(gz))
	}

	syms.Tags = make([]Tag, readU16(gz))
	for i := range syms.Tags {
		t := &syms.Tags[i]
		t.Address = readU16(gz)
		t.File = int(readU8(gz))
		t.Line = int(readU16(gz))
		t.Col = int(readU16(gz))
		t.Flags = readU8(gz)
	}

	return syms, nil
}

// SaveSymbols writes a debug-symbol sidecar file, mainly useful for
// tests and tooling that wants to round-trip what LoadSymbols reads.
func SaveSymbols(path string, syms *Symbols) (err error) {
	fd, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "loader: creating symbols %s", path)
	}
	defer fd.Close()

	gz := gzip.NewWriter(fd)
	defer gz.Close()

	defer recoverOnPanic(&err)

	writeU8(gz, uint8(len(syms.Files)))
	for _, f := range syms.Files {
		writeBytes(gz, []byte(f))
	}

	writeU16(gz, uint16(len(syms.Tags)))
	for _, t := range syms.Tags {
		writeU16(gz, t.Address)
		writeU8(gz, uint8(t.File))
		writeU16(gz, uint16(t.Line))
		writeU16(gz, uint16(t.Col))
		writeU8(gz, t.Flags)
	}

	return nil
}

func recoverOnPanic(err *error) {
	x := recover()
	if x == nil {
		return
	}
	if e, ok := x.(error); ok {
		*err = errors.Wrapf(e, "loader")
		return
	}
	*err = fmt.Errorf("loader: %v", x)
}

var endian = binary.LittleEndian

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func readU8(r io.Reader) (v uint8) {
	check(binary.Read(r, endian, &v))
	return
}

func readU16(r io.Reader) (v uint16) {
	check(binary.Read(r, endian, &v))
	return
}

func writeU8(w io.Writer, v uint8) {
	check(binary.Write(w, endian, v))
}

func writeU16(w io.Writer, v uint16) {
	check(binary.Write(w, endian, v))
}

func readBytes(r io.Reader) []byte {
	sz := readU16(r)
	p := make([]byte, sz)
	_, err := io.ReadFull(r, p)
	check(err)
	return p
}

func writeBytes(w io.Writer, p []byte) {
	writeU16(w, uint16(len(p)))
	_, err := w.Write(p)
	check(err)
}
