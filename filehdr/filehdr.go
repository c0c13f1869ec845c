// Package filehdr manages the per-file metadata record (the inode
// analog). A header occupies exactly one disk sector and maps a file's
// byte stream onto data sectors through a two-level index: the header
// carries a fixed list of index-block sector numbers, and each index
// block is a sector filled with data-sector numbers.
package filehdr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log"

	"github.com/nachfs/nachfs/common"
)

// The header as stored on disk: exactly one sector, little-endian.
type diskHeader struct {
	NumBytes   int32
	NumSectors int32
	NumLists   int32
	Lists      [common.MAX_LISTS]int32
}

type FileHeader struct {
	dev common.BlockDevice
	d   diskHeader
}

// NewFileHeader returns a header with every field unset. The header
// becomes usable through Allocate (new file) or FetchFrom (existing
// file).
func NewFileHeader(dev common.BlockDevice) *FileHeader {
	hdr := &FileHeader{dev: dev}
	hdr.d.NumBytes = -1
	hdr.d.NumSectors = -1
	hdr.d.NumLists = -1
	for i := range hdr.d.Lists {
		hdr.d.Lists[i] = common.NO_SECTOR
	}
	return hdr
}

func divRoundUp(n, d int) int {
	return (n + d - 1) / d
}

// listFill returns how many entries of index block i are valid.
func (hdr *FileHeader) listFill(i int) int {
	n := int(hdr.d.NumSectors) - i*common.SECTORS_PER_LIST
	if n > common.SECTORS_PER_LIST {
		n = common.SECTORS_PER_LIST
	}
	return n
}

// Allocate initializes the header for a new file of fileSize bytes and
// reserves all of its sectors out of freeMap: one index block per
// SECTORS_PER_LIST data sectors, each index block written to disk as it
// is filled. The capacity check up front covers the index blocks as well
// as the data sectors, so a reservation can only fail if the map and the
// check disagree, which is a fatal fault rather than an error.
func (hdr *FileHeader) Allocate(freeMap common.Bitmap, fileSize int) error {
	if fileSize < 0 || fileSize > common.MAX_FILESIZE {
		return common.EFBIG
	}

	numSectors := divRoundUp(fileSize, common.SECTOR_SIZE)
	numLists := divRoundUp(numSectors, common.SECTORS_PER_LIST)

	if freeMap.NumClear() < numSectors+numLists {
		log.Printf("Not enough free sectors for a %d byte file (need %d, have %d)",
			fileSize, numSectors+numLists, freeMap.NumClear())
		return common.ENOSPC
	}

	hdr.d.NumBytes = int32(fileSize)
	hdr.d.NumSectors = int32(numSectors)
	hdr.d.NumLists = int32(numLists)

	buf := make([]byte, common.SECTOR_SIZE)
	for i := 0; i < numLists; i++ {
		list := freeMap.FindAndSet()
		if list == common.NO_SECTOR {
			panic("free map exhausted after capacity check passed")
		}
		hdr.d.Lists[i] = int32(list)

		// Fill one index block image: valid entries first, zero padding
		// after.
		for j := range buf {
			buf[j] = 0
		}
		for j := 0; j < hdr.listFill(i); j++ {
			sector := freeMap.FindAndSet()
			if sector == common.NO_SECTOR {
				panic("free map exhausted after capacity check passed")
			}
			binary.LittleEndian.PutUint32(buf[j*common.SECTOR_NUM_SIZE:], uint32(sector))
		}

		if err := hdr.dev.WriteSector(list, buf); err != nil {
			return err
		}
	}

	return nil
}

// Deallocate releases every data sector and every index block owned by
// this header back to freeMap. A data sector that is already clear means
// the map and the header disagree about ownership, so this panics rather
// than continue with a corrupt map. The sector holding the header itself
// belongs to whoever placed the header there and is not freed here.
func (hdr *FileHeader) Deallocate(freeMap common.Bitmap) error {
	buf := make([]byte, common.SECTOR_SIZE)
	for i := 0; i < int(hdr.d.NumLists); i++ {
		list := int(hdr.d.Lists[i])
		if err := hdr.dev.ReadSector(list, buf); err != nil {
			return err
		}

		for j := 0; j < hdr.listFill(i); j++ {
			sector := int(binary.LittleEndian.Uint32(buf[j*common.SECTOR_NUM_SIZE:]))
			if !freeMap.Test(sector) {
				panic(fmt.Sprintf("data sector %d freed twice", sector))
			}
			freeMap.Clear(sector)
		}

		if !freeMap.Test(list) {
			panic(fmt.Sprintf("index block %d freed twice", list))
		}
		freeMap.Clear(list)
	}

	return nil
}

// FetchFrom reads the header record from the given sector.
func (hdr *FileHeader) FetchFrom(sector int) error {
	buf := make([]byte, common.SECTOR_SIZE)
	if err := hdr.dev.ReadSector(sector, buf); err != nil {
		return err
	}
	return binary.Read(bytes.NewReader(buf), binary.LittleEndian, &hdr.d)
}

// WriteBack writes the whole header record into the given sector.
func (hdr *FileHeader) WriteBack(sector int) error {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, &hdr.d); err != nil {
		return err
	}
	return hdr.dev.WriteSector(sector, buf.Bytes())
}

// ByteToSector translates a byte offset within the file into the number
// of the data sector holding that byte, at the cost of one index-block
// read. The caller must keep offset within [0, FileLength()).
func (hdr *FileHeader) ByteToSector(offset int) (int, error) {
	sectorIdx := offset / common.SECTOR_SIZE
	listIdx := sectorIdx / common.SECTORS_PER_LIST
	idxInList := sectorIdx % common.SECTORS_PER_LIST

	buf := make([]byte, common.SECTOR_SIZE)
	if err := hdr.dev.ReadSector(int(hdr.d.Lists[listIdx]), buf); err != nil {
		return common.NO_SECTOR, err
	}
	return int(binary.LittleEndian.Uint32(buf[idxInList*common.SECTOR_NUM_SIZE:])), nil
}

// FileLength returns the logical file length in bytes.
func (hdr *FileHeader) FileLength() int {
	return int(hdr.d.NumBytes)
}

// Print dumps the header fields and the file contents to w, escaping
// non-printable bytes. Debugging aid only.
func (hdr *FileHeader) Print(w io.Writer) error {
	fmt.Fprintf(w, "FileHeader contents. File size: %d. Index blocks:\n", hdr.d.NumBytes)
	for i := 0; i < int(hdr.d.NumLists); i++ {
		fmt.Fprintf(w, "%d ", hdr.d.Lists[i])
	}
	fmt.Fprintln(w)

	listbuf := make([]byte, common.SECTOR_SIZE)
	data := make([]byte, common.SECTOR_SIZE)
	printed := 0
	for i := 0; i < int(hdr.d.NumLists); i++ {
		if err := hdr.dev.ReadSector(int(hdr.d.Lists[i]), listbuf); err != nil {
			return err
		}
		fmt.Fprintf(w, "File contents in list %d, sector %d:\n", i, hdr.d.Lists[i])
		for j := 0; j < hdr.listFill(i); j++ {
			sector := int(binary.LittleEndian.Uint32(listbuf[j*common.SECTOR_NUM_SIZE:]))
			if err := hdr.dev.ReadSector(sector, data); err != nil {
				return err
			}
			for k := 0; k < common.SECTOR_SIZE && printed < int(hdr.d.NumBytes); k++ {
				if data[k] >= 0x20 && data[k] <= 0x7e {
					fmt.Fprintf(w, "%c", data[k])
				} else {
					fmt.Fprintf(w, "\\%x", data[k])
				}
				printed++
			}
			fmt.Fprintln(w)
		}
	}
	return nil
}
