package elfshuffle

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Section names recognized during the single parsing pass. Everything else
// in the section header table is skipped.
const (
	secRelDyn  = ".rel.dyn"
	secRelaDyn = ".rela.dyn"
	secRelaPlt = ".rela.plt"
	secDynstr  = ".dynstr"
	secDynsym  = ".dynsym"
)

func isElf(ident []byte) bool {
	return !(ident[0] != '\x7f' || ident[1] != 'E' || ident[2] != 'L' || ident[3] != 'F')
}

// Parse reads the identification bytes at the start of r, selects the
// 32-bit or 64-bit representation, and runs the parsing pass over the
// whole stream. The returned Image is immutable afterwards.
func Parse(r io.ReadSeeker) (Image, error) {
	ident := make([]byte, elf.EI_NIDENT)
	if _, err := io.ReadFull(r, ident); err != nil {
		return nil, fmt.Errorf("failed to read ELF identification: %w", err)
	}

	if !isElf(ident) {
		return nil, errors.New("this is not an ELF binary")
	}

	var endianness binary.ByteOrder
	switch elf.Data(ident[elf.EI_DATA]) {
	case elf.ELFDATA2LSB:
		endianness = binary.LittleEndian
	case elf.ELFDATA2MSB:
		endianness = binary.BigEndian
	default:
		return nil, errors.New("binary possibly corrupted -- byte order unknown")
	}

	var img Image
	switch elf.Class(ident[elf.EI_CLASS]) {
	case elf.ELFCLASS64:
		img = &image64{
			EIdent: enumIdent{Endianness: endianness, Arch: elf.ELFCLASS64},
			loaded: make(map[string]bool),
		}
	case elf.ELFCLASS32:
		img = &image32{
			EIdent: enumIdent{Endianness: endianness, Arch: elf.ELFCLASS32},
			loaded: make(map[string]bool),
		}
	default:
		return nil, errors.New("invalid ELF class -- only 32 and 64 bit binaries supported")
	}

	if err := img.parse(r); err != nil {
		return nil, err
	}
	return img, nil
}
