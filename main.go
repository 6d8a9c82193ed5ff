package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/apex/log"
	"golang.org/x/exp/rand"

	"github.com/sad0p/r3shuf/elfshuffle"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [-d] [-n NUM] [-o OUTFILE] FILE\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "  -d:         Dump relocs.")
	fmt.Fprintln(os.Stderr, "  -n NUM:     Swap NUM relocs in the output copy.")
	fmt.Fprintln(os.Stderr, "  -o OUTFILE: Output file (required to shuffle the relocs in FILE).")
	fmt.Fprintln(os.Stderr, "  FILE:       Input ELF file. With -o, FILE is copied to OUTFILE and")
	fmt.Fprintln(os.Stderr, "              the copy's relocs are shuffled in place.")
}

// replicate copies the input file byte-for-byte to oFile, creating or
// truncating it, and returns the copy opened for writing.
func replicate(iFile, oFile string) (*os.File, error) {
	in, err := os.Open(iFile)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	out, err := os.Create(oFile)
	if err != nil {
		return nil, err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return nil, err
	}
	return out, nil
}

func main() {
	var doDump bool
	var nSwaps int
	var oFile string

	flag.Usage = usage
	flag.BoolVar(&doDump, "d", false, "dump relocs")
	flag.IntVar(&nSwaps, "n", 1, "number of relocs to swap")
	flag.StringVar(&oFile, "o", "", "output file for the shuffled copy")
	flag.Parse()

	if nSwaps < 0 {
		nSwaps = 0
	}

	if flag.NArg() != 1 {
		usage()
		log.Fatal("missing filename argument (see -h for help)")
	}
	iFile := flag.Arg(0)

	fh, err := os.Open(iFile)
	if err != nil {
		log.Fatalf("failed to open input file %s: %v", iFile, err)
	}
	defer fh.Close()

	img, err := elfshuffle.Parse(fh)
	if err != nil {
		log.Fatalf("%s: %v", iFile, err)
	}

	if doDump {
		img.DumpRelocs(os.Stdout)
	}

	if oFile != "" && nSwaps > 0 {
		out, err := replicate(iFile, oFile)
		if err != nil {
			log.Fatalf("failed to replicate %s: %v", iFile, err)
		}
		defer out.Close()

		rng := rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
		if err := img.SwapRelocs(out, nSwaps, rng); err != nil {
			log.Fatalf("failed to shuffle relocs in %s: %v", oFile, err)
		}
	}
}
