// Package file implements byte-granularity access to a file described by
// a file header. Reads and writes are split across the covering data
// sectors; writes that only touch part of a sector read it in first.
// Files do not grow: their extent is fixed when the header is allocated.
package file

import (
	"io"

	"github.com/nachfs/nachfs/common"
	"github.com/nachfs/nachfs/filehdr"
)

type OpenFile struct {
	dev common.BlockDevice
	hdr *filehdr.FileHeader
	pos int
}

// Open fetches the header stored at the given sector and returns an open
// file positioned at offset 0.
func Open(dev common.BlockDevice, sector int) (*OpenFile, error) {
	hdr := filehdr.NewFileHeader(dev)
	if err := hdr.FetchFrom(sector); err != nil {
		return nil, err
	}
	return &OpenFile{dev: dev, hdr: hdr}, nil
}

// NewOpenFile wraps an in-memory header that may not have been written
// back yet. Formatting uses this to fill the system files before their
// headers reach the disk.
func NewOpenFile(dev common.BlockDevice, hdr *filehdr.FileHeader) *OpenFile {
	return &OpenFile{dev: dev, hdr: hdr}
}

// Length returns the file length in bytes.
func (f *OpenFile) Length() int {
	return f.hdr.FileLength()
}

// Seek sets the position for the next Read or Write.
func (f *OpenFile) Seek(pos int) {
	f.pos = pos
}

func (f *OpenFile) Read(buf []byte) (int, error) {
	n, err := f.ReadAt(buf, f.pos)
	f.pos += n
	return n, err
}

func (f *OpenFile) Write(buf []byte) (int, error) {
	n, err := f.WriteAt(buf, f.pos)
	f.pos += n
	return n, err
}

// ReadAt reads up to len(buf) bytes starting at pos, clamped to the file
// length. Reading at or past the end returns io.EOF.
func (f *OpenFile) ReadAt(buf []byte, pos int) (int, error) {
	flen := f.hdr.FileLength()
	if pos < 0 {
		return 0, common.EINVAL
	}
	if pos >= flen {
		return 0, io.EOF
	}

	n := len(buf)
	if pos+n > flen {
		n = flen - pos
	}
	if n == 0 {
		return 0, nil
	}

	first := pos / common.SECTOR_SIZE
	last := (pos + n - 1) / common.SECTOR_SIZE
	sbuf := make([]byte, common.SECTOR_SIZE)
	copied := 0
	for s := first; s <= last; s++ {
		sector, err := f.hdr.ByteToSector(s * common.SECTOR_SIZE)
		if err != nil {
			return copied, err
		}
		if err := f.dev.ReadSector(sector, sbuf); err != nil {
			return copied, err
		}

		start, end := f.span(s, pos, n)
		copied += copy(buf[copied:], sbuf[start:end])
	}

	return copied, nil
}

// WriteAt writes up to len(buf) bytes starting at pos, clamped to the
// file length; there is no growth. Partially covered sectors are read,
// patched and written back; fully covered sectors are written directly.
func (f *OpenFile) WriteAt(buf []byte, pos int) (int, error) {
	flen := f.hdr.FileLength()
	if pos < 0 || pos >= flen {
		return 0, common.EINVAL
	}

	n := len(buf)
	if pos+n > flen {
		n = flen - pos
	}
	if n == 0 {
		return 0, nil
	}

	first := pos / common.SECTOR_SIZE
	last := (pos + n - 1) / common.SECTOR_SIZE
	sbuf := make([]byte, common.SECTOR_SIZE)
	written := 0
	for s := first; s <= last; s++ {
		sector, err := f.hdr.ByteToSector(s * common.SECTOR_SIZE)
		if err != nil {
			return written, err
		}

		start, end := f.span(s, pos, n)
		if start == 0 && end == common.SECTOR_SIZE {
			if err := f.dev.WriteSector(sector, buf[written:written+common.SECTOR_SIZE]); err != nil {
				return written, err
			}
		} else {
			if err := f.dev.ReadSector(sector, sbuf); err != nil {
				return written, err
			}
			copy(sbuf[start:end], buf[written:])
			if err := f.dev.WriteSector(sector, sbuf); err != nil {
				return written, err
			}
		}
		written += end - start
	}

	return written, nil
}

// span returns the byte range within file sector s that the transfer
// [pos, pos+n) covers.
func (f *OpenFile) span(s, pos, n int) (int, int) {
	start := 0
	if base := s * common.SECTOR_SIZE; pos > base {
		start = pos - base
	}
	end := common.SECTOR_SIZE
	if rem := pos + n - s*common.SECTOR_SIZE; rem < end {
		end = rem
	}
	return start, end
}
