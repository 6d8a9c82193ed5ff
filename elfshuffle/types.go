package elfshuffle

import (
	"debug/elf"
	"encoding/binary"
	"io"

	"golang.org/x/exp/rand"
)

type enumIdent struct {
	Endianness binary.ByteOrder
	Arch       elf.Class
}

// Image is a parsed view of one ELF binary's dynamic relocation data.
// Exactly two concrete representations exist, one per ELF class, chosen
// once from the identification bytes and never mixed.
type Image interface {
	DumpRelocs(w io.Writer)
	SwapRelocs(out io.WriteSeeker, n int, rng *rand.Rand) error
	parse(r io.ReadSeeker) error
}

// relEntry64 pairs a decoded relocation with the absolute file offset of
// its first byte, recorded at read time so it can be written back in place.
type relEntry64 struct {
	FileOff int64
	Rel     elf.Rel64
}

type relaEntry64 struct {
	FileOff int64
	Rela    elf.Rela64
}

type relEntry32 struct {
	FileOff int64
	Rel     elf.Rel32
}

type relaEntry32 struct {
	FileOff int64
	Rela    elf.Rela32
}

type image64 struct {
	EIdent enumIdent
	Hdr    elf.Header64

	relocs        []relEntry64
	relocsAddends []relaEntry64
	symbols       []elf.Sym64
	stringTable   []byte
	secStrTable   []byte
	loaded        map[string]bool
}

type image32 struct {
	EIdent enumIdent
	Hdr    elf.Header32

	relocs        []relEntry32
	relocsAddends []relaEntry32
	symbols       []elf.Sym32
	stringTable   []byte
	secStrTable   []byte
	loaded        map[string]bool
}
