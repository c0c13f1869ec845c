package bitmap

import (
	"testing"

	"github.com/nachfs/nachfs/common"
	"github.com/nachfs/nachfs/file"
	"github.com/nachfs/nachfs/filehdr"
	"github.com/nachfs/nachfs/testutils"
)

func TestFindAndSet(test *testing.T) {
	smap := NewSectorMap(64)

	for i := 0; i < 64; i++ {
		b := smap.FindAndSet()
		if b != i {
			testutils.FatalHere(test, "Bit mismatch expected %d, got %d", i, b)
		}
		if !smap.Test(b) {
			testutils.ErrorHere(test, "Bit %d not set after FindAndSet", b)
		}
	}
	if smap.NumClear() != 0 {
		testutils.ErrorHere(test, "NumClear mismatch expected 0, got %d", smap.NumClear())
	}
	if b := smap.FindAndSet(); b != common.NO_SECTOR {
		testutils.ErrorHere(test, "Expected NO_SECTOR on a full map, got %d", b)
	}
}

func TestMarkAndClear(test *testing.T) {
	smap := NewSectorMap(96)

	smap.Mark(40)
	if !smap.Test(40) {
		testutils.ErrorHere(test, "Bit 40 not set after Mark")
	}
	if smap.NumClear() != 95 {
		testutils.ErrorHere(test, "NumClear mismatch expected 95, got %d", smap.NumClear())
	}

	smap.Clear(40)
	if smap.Test(40) {
		testutils.ErrorHere(test, "Bit 40 still set after Clear")
	}
	if smap.NumClear() != 96 {
		testutils.ErrorHere(test, "NumClear mismatch expected 96, got %d", smap.NumClear())
	}

	// A cleared bit must come back out of FindAndSet.
	for i := 0; i < 96; i++ {
		smap.Mark(i)
	}
	smap.Clear(70)
	if b := smap.FindAndSet(); b != 70 {
		testutils.ErrorHere(test, "Expected bit 70 from FindAndSet, got %d", b)
	}
}

func TestClearUnusedPanics(test *testing.T) {
	smap := NewSectorMap(32)

	defer func() {
		if recover() == nil {
			testutils.ErrorHere(test, "Clearing an unused bit did not panic")
		}
	}()
	smap.Clear(5)
}

func TestPersistence(test *testing.T) {
	dev := testutils.NewTestDevice(test, 64)
	smap := NewSectorMap(64)

	// Give the map its own backing file, the way the filesystem does.
	sector := smap.FindAndSet()
	hdr := filehdr.NewFileHeader(dev)
	if err := hdr.Allocate(smap, smap.DiskSize()); err != nil {
		testutils.FatalHere(test, "Failed allocating map file: %s", err)
	}
	if err := hdr.WriteBack(sector); err != nil {
		testutils.FatalHere(test, "Failed writing map file header: %s", err)
	}

	smap.Mark(33)
	smap.Mark(62)
	f := file.NewOpenFile(dev, hdr)
	if err := smap.WriteBack(f); err != nil {
		testutils.FatalHere(test, "Failed writing map back: %s", err)
	}

	fetched := NewSectorMap(64)
	f2, err := file.Open(dev, sector)
	if err != nil {
		testutils.FatalHere(test, "Failed opening map file: %s", err)
	}
	if err := fetched.FetchFrom(f2); err != nil {
		testutils.FatalHere(test, "Failed fetching map: %s", err)
	}

	if fetched.NumClear() != smap.NumClear() {
		testutils.ErrorHere(test, "NumClear mismatch expected %d, got %d", smap.NumClear(), fetched.NumClear())
	}
	for i := 0; i < 64; i++ {
		if fetched.Test(i) != smap.Test(i) {
			testutils.ErrorHere(test, "Bit %d mismatch after round trip", i)
		}
	}
}
