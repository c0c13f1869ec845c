package common

// Disk geometry. The header and index-block layouts below are sized so
// that each fits in exactly one sector; changing SECTOR_SIZE changes the
// maximum file size with it.
const (
	SECTOR_SIZE = 128  // bytes per sector, the unit of all device transfers
	NUM_SECTORS = 1024 // sectors on the default disk

	SECTOR_NUM_SIZE  = 4 // a sector number on disk is an int32
	SECTORS_PER_LIST = SECTOR_SIZE / SECTOR_NUM_SIZE

	// A file header holds three int32 counters followed by the index-block
	// list, and must not exceed one sector.
	MAX_LISTS    = (SECTOR_SIZE - 3*SECTOR_NUM_SIZE) / SECTOR_NUM_SIZE
	MAX_FILESIZE = MAX_LISTS * SECTORS_PER_LIST * SECTOR_SIZE

	NAME_MAX       = 9  // maximum length of a path segment
	NR_DIR_ENTRIES = 64 // slots in every directory table
)

// NO_SECTOR is the sentinel for "no such sector": lookup misses,
// exhausted bitmaps and unset header fields.
const NO_SECTOR = -1
