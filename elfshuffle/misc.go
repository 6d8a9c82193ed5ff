package elfshuffle

import (
	"encoding/binary"
	"io"
)

// parseStringTable walks tab from sIndex to the next null byte and returns
// the string in between. An out-of-bounds index yields "".
func parseStringTable(sIndex uint32, tab []byte) string {
	if sIndex >= uint32(len(tab)) {
		return ""
	}
	end := sIndex
	for end < uint32(len(tab)) {
		if tab[end] == 0x0 {
			break
		}
		end++
	}
	return string(tab[sIndex:end])
}

// writeEntryAt seeks to the recorded file offset of a relocation entry and
// writes the entry back at its exact on-disk width.
func writeEntryAt(out io.WriteSeeker, endianness binary.ByteOrder, off int64, entry interface{}) error {
	if _, err := out.Seek(off, io.SeekStart); err != nil {
		return err
	}
	return binary.Write(out, endianness, entry)
}
