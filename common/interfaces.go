package common

// A sector-granularity random access device. There is no partial-sector
// access: buffers passed to both calls must be exactly SECTOR_SIZE bytes
// and sector numbers are zero-based, bounded by the device capacity.
type BlockDevice interface {
	ReadSector(sector int, buf []byte) error
	WriteSector(sector int, buf []byte) error
	Close() error
}

// Bitmap tracks one free/used bit per disk sector. Bit indices share the
// sector number space of the device the map describes.
type Bitmap interface {
	// The number of clear (free) bits in the map
	NumClear() int
	// Whether the given bit is currently set (in use)
	Test(sector int) bool
	// Set the given bit
	Mark(sector int)
	// Clear the given bit; clearing an already-clear bit panics
	Clear(sector int)
	// Find a clear bit, set it, and return its index, or NO_SECTOR if
	// every bit is set
	FindAndSet() int
}
