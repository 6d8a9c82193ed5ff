package elfshuffle

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/apex/log"
	"golang.org/x/exp/rand"
)

func (img *image32) parse(r io.ReadSeeker) error {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return err
	}

	if err := binary.Read(r, img.EIdent.Endianness, &img.Hdr); err != nil {
		return fmt.Errorf("failed to read ELF header: %w", err)
	}

	if err := img.addSectionStringTable(r); err != nil {
		return err
	}

	if _, err := r.Seek(int64(img.Hdr.Shoff), io.SeekStart); err != nil {
		return err
	}

	for i := 0; i < int(img.Hdr.Shnum); i++ {
		var shdr elf.Section32
		if err := binary.Read(r, img.EIdent.Endianness, &shdr); err != nil {
			return fmt.Errorf("failed to read section header: %w", err)
		}

		name := parseStringTable(shdr.Name, img.secStrTable)
		if img.loaded[name] {
			continue
		}

		switch {
		case (shdr.Type == uint32(elf.SHT_REL) || shdr.Type == uint32(elf.SHT_RELA)) &&
			(name == secRelDyn || name == secRelaDyn || name == secRelaPlt):
			if err := img.addRels(r, &shdr); err != nil {
				return err
			}
			img.loaded[name] = true

		case shdr.Type == uint32(elf.SHT_STRTAB) && name == secDynstr:
			if err := img.addStringTable(r, &shdr); err != nil {
				return err
			}
			img.loaded[name] = true

		case shdr.Type == uint32(elf.SHT_DYNSYM) && name == secDynsym:
			if err := img.addSymbolTable(r, &shdr); err != nil {
				return err
			}
			img.loaded[name] = true
		}
	}

	return nil
}

func (img *image32) addSectionStringTable(r io.ReadSeeker) error {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	strNdxOff := int64(img.Hdr.Shoff) + int64(img.Hdr.Shstrndx)*int64(img.Hdr.Shentsize)
	if _, err := r.Seek(strNdxOff, io.SeekStart); err != nil {
		return err
	}

	var shdr elf.Section32
	if err := binary.Read(r, img.EIdent.Endianness, &shdr); err != nil {
		return fmt.Errorf("failed to read the section string table header: %w", err)
	}

	if _, err := r.Seek(int64(shdr.Off), io.SeekStart); err != nil {
		return err
	}

	img.secStrTable = make([]byte, shdr.Size)
	if _, err := io.ReadFull(r, img.secStrTable); err != nil {
		return fmt.Errorf("failed to read the section string table: %w", err)
	}

	_, err = r.Seek(pos, io.SeekStart)
	return err
}

func (img *image32) addRels(r io.ReadSeeker, shdr *elf.Section32) error {
	if shdr.Entsize == 0 {
		return errors.New("relocation section has zero entry size")
	}

	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	if _, err := r.Seek(int64(shdr.Off), io.SeekStart); err != nil {
		return err
	}

	n := shdr.Size / shdr.Entsize
	if shdr.Type == uint32(elf.SHT_REL) {
		for i := uint32(0); i < n; i++ {
			relOff, err := r.Seek(0, io.SeekCurrent)
			if err != nil {
				return err
			}
			var rel elf.Rel32
			if err := binary.Read(r, img.EIdent.Endianness, &rel); err != nil {
				return fmt.Errorf("failed to read relocation: %w", err)
			}
			img.relocs = append(img.relocs, relEntry32{FileOff: relOff, Rel: rel})
		}
	} else {
		for i := uint32(0); i < n; i++ {
			relaOff, err := r.Seek(0, io.SeekCurrent)
			if err != nil {
				return err
			}
			var rela elf.Rela32
			if err := binary.Read(r, img.EIdent.Endianness, &rela); err != nil {
				return fmt.Errorf("failed to read relocation: %w", err)
			}
			img.relocsAddends = append(img.relocsAddends, relaEntry32{FileOff: relaOff, Rela: rela})
		}
	}

	_, err = r.Seek(pos, io.SeekStart)
	return err
}

func (img *image32) addStringTable(r io.ReadSeeker, shdr *elf.Section32) error {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	if _, err := r.Seek(int64(shdr.Off), io.SeekStart); err != nil {
		return err
	}

	img.stringTable = make([]byte, shdr.Size)
	if _, err := io.ReadFull(r, img.stringTable); err != nil {
		return fmt.Errorf("failed to read string table: %w", err)
	}

	_, err = r.Seek(pos, io.SeekStart)
	return err
}

func (img *image32) addSymbolTable(r io.ReadSeeker, shdr *elf.Section32) error {
	if shdr.Entsize == 0 {
		return errors.New("symbol table section has zero entry size")
	}

	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	if _, err := r.Seek(int64(shdr.Off), io.SeekStart); err != nil {
		return err
	}

	n := shdr.Size / shdr.Entsize
	for i := uint32(0); i < n; i++ {
		var sym elf.Sym32
		if err := binary.Read(r, img.EIdent.Endianness, &sym); err != nil {
			return fmt.Errorf("failed to read symbol table entry: %w", err)
		}
		img.symbols = append(img.symbols, sym)
	}

	_, err = r.Seek(pos, io.SeekStart)
	return err
}

// Same contract as image64.relocSymName, with the 32-bit r_info split
// (symbol index lives above the low 8 type bits).
func (img *image32) relocSymName(rInfo uint32) string {
	symNdx := elf.R_SYM32(rInfo)
	if int(symNdx) < len(img.symbols) {
		sym := &img.symbols[symNdx]
		if int(sym.Name) < len(img.stringTable) {
			return parseStringTable(sym.Name, img.stringTable)
		}
	}
	return "N/A"
}

func (img *image32) DumpRelocs(w io.Writer) {
	if len(img.relocs) > 0 {
		fmt.Fprintf(w, "Dynamic relocs (%d)\n", len(img.relocs))
		fmt.Fprintln(w, "ELFOffset, RelocOffset, RelocInfo, SymName")
		for i, pr := range img.relocs {
			fmt.Fprintf(w, "  %d) 0x%x, 0x%x, 0x%x, %s\n",
				i, pr.FileOff, pr.Rel.Off, pr.Rel.Info, img.relocSymName(pr.Rel.Info))
		}
	}

	if len(img.relocsAddends) > 0 {
		fmt.Fprintf(w, "Dynamic or PLT relocs with addends (%d)\n", len(img.relocsAddends))
		fmt.Fprintln(w, "ELFOffset, RelocOffset, RelocInfo, RelocAddend, SymName")
		for i, pr := range img.relocsAddends {
			fmt.Fprintf(w, "  %d) 0x%x, 0x%x, 0x%x, 0x%x, %s\n",
				i, pr.FileOff, pr.Rela.Off, pr.Rela.Info, pr.Rela.Addend,
				img.relocSymName(pr.Rela.Info))
		}
	}
}

func (img *image32) SwapRelocs(out io.WriteSeeker, n int, rng *rand.Rand) error {
	for i := 0; i < n; i++ {
		var useRelocs bool
		switch {
		case len(img.relocs) > 0 && len(img.relocsAddends) > 0:
			useRelocs = rng.Intn(2) == 0
		case len(img.relocs) > 0:
			useRelocs = true
		case len(img.relocsAddends) > 0:
			useRelocs = false
		default:
			return nil
		}

		if useRelocs {
			aNdx := rng.Intn(len(img.relocs))
			bNdx := rng.Intn(len(img.relocs))
			a := img.relocs[aNdx].Rel
			b := img.relocs[bNdx].Rel

			a.Off, b.Off = b.Off, a.Off
			if err := writeEntryAt(out, img.EIdent.Endianness, img.relocs[aNdx].FileOff, &a); err != nil {
				return fmt.Errorf("failed to write relocation: %w", err)
			}
			if err := writeEntryAt(out, img.EIdent.Endianness, img.relocs[bNdx].FileOff, &b); err != nil {
				return fmt.Errorf("failed to write relocation: %w", err)
			}
			log.Infof("swapped reloc %d with %d", aNdx, bNdx)
		} else {
			aNdx := rng.Intn(len(img.relocsAddends))
			bNdx := rng.Intn(len(img.relocsAddends))
			a := img.relocsAddends[aNdx].Rela
			b := img.relocsAddends[bNdx].Rela

			a.Off, b.Off = b.Off, a.Off
			a.Addend, b.Addend = b.Addend, a.Addend
			if err := writeEntryAt(out, img.EIdent.Endianness, img.relocsAddends[aNdx].FileOff, &a); err != nil {
				return fmt.Errorf("failed to write relocation: %w", err)
			}
			if err := writeEntryAt(out, img.EIdent.Endianness, img.relocsAddends[bNdx].FileOff, &b); err != nil {
				return fmt.Errorf("failed to write relocation: %w", err)
			}
			log.Infof("swapped reloc with addend %d with %d", aNdx, bNdx)
		}
	}

	return nil
}
