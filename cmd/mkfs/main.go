// mkfs formats a disk image file with an empty filesystem.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/nachfs/nachfs/common"
	"github.com/nachfs/nachfs/device"
	"github.com/nachfs/nachfs/fs"
)

func main() {
	var sectors int
	var verbose bool

	flag.IntVar(&sectors, "size", common.NUM_SECTORS, "the size of the disk image (in sectors)")
	flag.BoolVar(&verbose, "print", false, "dump the formatted filesystem afterwards")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <filename>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}
	filename := flag.Arg(0)

	dev, err := device.CreateFileDevice(filename, sectors)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to create disk image: %s\n", err)
		os.Exit(1)
	}
	defer dev.Close()

	fsys, err := fs.Format(dev, sectors)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to format disk image: %s\n", err)
		os.Exit(1)
	}

	fmt.Printf("Formatted %s: %d sectors, %d free\n", filename, sectors, fsys.NumClear())
	if verbose {
		if err := fsys.Print(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Unable to dump filesystem: %s\n", err)
			os.Exit(1)
		}
	}
}
