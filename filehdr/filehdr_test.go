package filehdr_test

import (
	"testing"

	"github.com/nachfs/nachfs/bitmap"
	"github.com/nachfs/nachfs/common"
	"github.com/nachfs/nachfs/filehdr"
	"github.com/nachfs/nachfs/testutils"
)

// Allocate a header, write it back, fetch it into a fresh header and
// check that the length and every byte-to-sector translation survive the
// round trip.
func TestRoundTrip(test *testing.T) {
	dev := testutils.NewTestDevice(test, common.NUM_SECTORS)
	smap := bitmap.NewSectorMap(common.NUM_SECTORS)

	// A size crossing several index blocks.
	size := 5*common.SECTORS_PER_LIST*common.SECTOR_SIZE + 77

	sector := smap.FindAndSet()
	hdr := filehdr.NewFileHeader(dev)
	if err := hdr.Allocate(smap, size); err != nil {
		testutils.FatalHere(test, "Failed allocating header: %s", err)
	}
	if hdr.FileLength() != size {
		testutils.ErrorHere(test, "Length mismatch expected %d, got %d", size, hdr.FileLength())
	}
	if err := hdr.WriteBack(sector); err != nil {
		testutils.FatalHere(test, "Failed writing header back: %s", err)
	}

	fetched := filehdr.NewFileHeader(dev)
	if err := fetched.FetchFrom(sector); err != nil {
		testutils.FatalHere(test, "Failed fetching header: %s", err)
	}
	if fetched.FileLength() != size {
		testutils.ErrorHere(test, "Fetched length mismatch expected %d, got %d", size, fetched.FileLength())
	}

	for offset := 0; offset < size; offset += common.SECTOR_SIZE {
		before, err := hdr.ByteToSector(offset)
		if err != nil {
			testutils.FatalHere(test, "Failed translating offset %d: %s", offset, err)
		}
		after, err := fetched.ByteToSector(offset)
		if err != nil {
			testutils.FatalHere(test, "Failed translating offset %d: %s", offset, err)
		}
		if before != after {
			testutils.ErrorHere(test, "Translation mismatch at %d: %d != %d", offset, before, after)
		}
		if !smap.Test(before) {
			testutils.ErrorHere(test, "Data sector %d not marked used", before)
		}
	}
}

// Two files allocated from one map must not share any sector, data or
// index; the map's bookkeeping has to account for every sector exactly
// once.
func TestNoDoubleAllocation(test *testing.T) {
	dev := testutils.NewTestDevice(test, common.NUM_SECTORS)
	smap := bitmap.NewSectorMap(common.NUM_SECTORS)
	before := smap.NumClear()

	sizes := []int{3 * common.SECTOR_SIZE, common.SECTORS_PER_LIST*common.SECTOR_SIZE + 1}
	hdrs := make([]*filehdr.FileHeader, len(sizes))
	want := 0
	for i, size := range sizes {
		hdrs[i] = filehdr.NewFileHeader(dev)
		if err := hdrs[i].Allocate(smap, size); err != nil {
			testutils.FatalHere(test, "Failed allocating %d byte file: %s", size, err)
		}
		numSectors := (size + common.SECTOR_SIZE - 1) / common.SECTOR_SIZE
		numLists := (numSectors + common.SECTORS_PER_LIST - 1) / common.SECTORS_PER_LIST
		want += numSectors + numLists
	}

	seen := make(map[int]bool)
	for i, size := range sizes {
		for offset := 0; offset < size; offset += common.SECTOR_SIZE {
			sector, err := hdrs[i].ByteToSector(offset)
			if err != nil {
				testutils.FatalHere(test, "Failed translating offset %d: %s", offset, err)
			}
			if seen[sector] {
				testutils.ErrorHere(test, "Sector %d allocated twice", sector)
			}
			seen[sector] = true
		}
	}

	// Every consumed sector (data and index) is accounted for in the map.
	if got := before - smap.NumClear(); got != want {
		testutils.ErrorHere(test, "Consumed sector mismatch expected %d, got %d", want, got)
	}
}

func TestDeallocateRestoresCapacity(test *testing.T) {
	dev := testutils.NewTestDevice(test, common.NUM_SECTORS)
	smap := bitmap.NewSectorMap(common.NUM_SECTORS)
	before := smap.NumClear()

	hdr := filehdr.NewFileHeader(dev)
	if err := hdr.Allocate(smap, 2*common.SECTORS_PER_LIST*common.SECTOR_SIZE); err != nil {
		testutils.FatalHere(test, "Failed allocating header: %s", err)
	}
	if smap.NumClear() == before {
		testutils.FatalHere(test, "Allocation did not consume any sectors")
	}

	if err := hdr.Deallocate(smap); err != nil {
		testutils.FatalHere(test, "Failed deallocating header: %s", err)
	}
	if smap.NumClear() != before {
		testutils.ErrorHere(test, "NumClear mismatch expected %d, got %d", before, smap.NumClear())
	}
}

// The capacity check covers the index blocks, so a request whose data
// sectors alone would fit must still be refused, without touching the
// map.
func TestAllocateCountsIndexBlocks(test *testing.T) {
	dev := testutils.NewTestDevice(test, common.NUM_SECTORS)
	smap := bitmap.NewSectorMap(common.SECTORS_PER_LIST)

	err := filehdr.NewFileHeader(dev).Allocate(smap, common.SECTORS_PER_LIST*common.SECTOR_SIZE)
	if err != common.ENOSPC {
		testutils.ErrorHere(test, "Expected ENOSPC, got %v", err)
	}
	if smap.NumClear() != common.SECTORS_PER_LIST {
		testutils.ErrorHere(test, "Failed allocation mutated the map: %d clear", smap.NumClear())
	}
}

func TestAllocateTooLarge(test *testing.T) {
	dev := testutils.NewTestDevice(test, common.NUM_SECTORS)
	smap := bitmap.NewSectorMap(common.NUM_SECTORS)

	err := filehdr.NewFileHeader(dev).Allocate(smap, common.MAX_FILESIZE+1)
	if err != common.EFBIG {
		testutils.ErrorHere(test, "Expected EFBIG, got %v", err)
	}
}

func TestZeroLengthFile(test *testing.T) {
	dev := testutils.NewTestDevice(test, common.NUM_SECTORS)
	smap := bitmap.NewSectorMap(common.NUM_SECTORS)
	before := smap.NumClear()

	hdr := filehdr.NewFileHeader(dev)
	if err := hdr.Allocate(smap, 0); err != nil {
		testutils.FatalHere(test, "Failed allocating empty file: %s", err)
	}
	if hdr.FileLength() != 0 {
		testutils.ErrorHere(test, "Length mismatch expected 0, got %d", hdr.FileLength())
	}
	if smap.NumClear() != before {
		testutils.ErrorHere(test, "Empty file consumed sectors")
	}
	if err := hdr.Deallocate(smap); err != nil {
		testutils.FatalHere(test, "Failed deallocating empty file: %s", err)
	}
}

func TestDoubleFreePanics(test *testing.T) {
	dev := testutils.NewTestDevice(test, common.NUM_SECTORS)
	smap := bitmap.NewSectorMap(common.NUM_SECTORS)

	hdr := filehdr.NewFileHeader(dev)
	if err := hdr.Allocate(smap, 4*common.SECTOR_SIZE); err != nil {
		testutils.FatalHere(test, "Failed allocating header: %s", err)
	}
	if err := hdr.Deallocate(smap); err != nil {
		testutils.FatalHere(test, "Failed deallocating header: %s", err)
	}

	defer func() {
		if recover() == nil {
			testutils.ErrorHere(test, "Deallocating twice did not panic")
		}
	}()
	hdr.Deallocate(smap)
}
