// Package bitmap provides the free-sector map: one bit per disk sector,
// set while the sector is owned by a file header or reserved for a
// header itself. The map is an ordinary file on the same disk; FetchFrom
// and WriteBack move it through its backing open file.
package bitmap

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"sync"

	"github.com/nachfs/nachfs/common"
	"github.com/nachfs/nachfs/file"
)

const BITS_PER_WORD = 32

type SectorMap struct {
	numBits  int
	numWords int
	words    []uint32

	m sync.Mutex
}

// NewSectorMap creates a map of nbits clear bits.
func NewSectorMap(nbits int) *SectorMap {
	numWords := (nbits + BITS_PER_WORD - 1) / BITS_PER_WORD
	return &SectorMap{
		numBits:  nbits,
		numWords: numWords,
		words:    make([]uint32, numWords),
	}
}

// NumClear returns how many bits are currently clear.
func (smap *SectorMap) NumClear() int {
	smap.m.Lock()
	defer smap.m.Unlock()

	set := 0
	for _, w := range smap.words {
		set += bits.OnesCount32(w)
	}
	return smap.numBits - set
}

// Test reports whether the given bit is set.
func (smap *SectorMap) Test(sector int) bool {
	smap.m.Lock()
	defer smap.m.Unlock()

	return smap.test(sector)
}

func (smap *SectorMap) test(sector int) bool {
	return smap.words[sector/BITS_PER_WORD]&(1<<uint(sector%BITS_PER_WORD)) != 0
}

// Mark sets the given bit.
func (smap *SectorMap) Mark(sector int) {
	smap.m.Lock()
	defer smap.m.Unlock()

	smap.words[sector/BITS_PER_WORD] |= 1 << uint(sector%BITS_PER_WORD)
}

// Clear clears the given bit. Clearing a bit that is already clear means
// a sector is being freed twice, so this panics rather than let the map
// drift from the disk contents.
func (smap *SectorMap) Clear(sector int) {
	smap.m.Lock()
	defer smap.m.Unlock()

	if !smap.test(sector) {
		panic(fmt.Sprintf("Attempt to clear an unused sector (%d)", sector))
	}
	smap.words[sector/BITS_PER_WORD] &^= 1 << uint(sector%BITS_PER_WORD)
}

// FindAndSet finds the first clear bit, sets it, and returns its index.
// It returns NO_SECTOR when every bit is set.
func (smap *SectorMap) FindAndSet() int {
	smap.m.Lock()
	defer smap.m.Unlock()

	for i, w := range smap.words {
		if w == ^uint32(0) {
			continue
		}
		bit := bits.TrailingZeros32(^w)
		b := i*BITS_PER_WORD + bit
		if b >= smap.numBits {
			break
		}
		smap.words[i] |= 1 << uint(bit)
		return b
	}

	return common.NO_SECTOR
}

// DiskSize returns the number of bytes the map occupies on disk.
func (smap *SectorMap) DiskSize() int {
	return smap.numWords * 4
}

// FetchFrom reads the map contents from its backing file.
func (smap *SectorMap) FetchFrom(f *file.OpenFile) error {
	smap.m.Lock()
	defer smap.m.Unlock()

	buf := make([]byte, smap.numWords*4)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return err
	}
	for i := range smap.words {
		smap.words[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return nil
}

// WriteBack writes the map contents into its backing file.
func (smap *SectorMap) WriteBack(f *file.OpenFile) error {
	smap.m.Lock()
	defer smap.m.Unlock()

	buf := make([]byte, smap.numWords*4)
	for i, w := range smap.words {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	_, err := f.WriteAt(buf, 0)
	return err
}

var _ common.Bitmap = &SectorMap{}
