// Package fs ties the storage layers together behind the operations the
// kernel's syscall layer calls into: format/mount, create, open, remove
// and listing. It owns the lifecycle of file headers (directories only
// bind and unbind names) and it keeps the two system files (the free
// map and the root directory) at fixed sectors so a mount can find them.
package fs

import (
	"fmt"
	"io"

	"github.com/nachfs/nachfs/bitmap"
	"github.com/nachfs/nachfs/common"
	"github.com/nachfs/nachfs/directory"
	"github.com/nachfs/nachfs/file"
	"github.com/nachfs/nachfs/filehdr"
)

const (
	FREE_MAP_SECTOR = 0 // sector of the free map file's header
	ROOT_DIR_SECTOR = 1 // sector of the root directory file's header

	DIR_FILE_SIZE = common.NR_DIR_ENTRIES * directory.DIR_ENTRY_SIZE
)

type FileSystem struct {
	dev common.BlockDevice

	freeMap     *bitmap.SectorMap
	freeMapFile *file.OpenFile

	// The root directory is the one Directory kept resident for the
	// lifetime of the mount; every other table is transient.
	rootDir     *directory.Directory
	rootDirFile *file.OpenFile
}

// Format lays down a fresh filesystem on the device: a free map covering
// the given number of sectors and an empty root directory, both stored
// as ordinary files with their headers at the fixed system sectors.
func Format(dev common.BlockDevice, sectors int) (*FileSystem, error) {
	if sectors <= 0 || sectors%bitmap.BITS_PER_WORD != 0 {
		return nil, common.EINVAL
	}

	fs := &FileSystem{dev: dev, freeMap: bitmap.NewSectorMap(sectors)}
	fs.freeMap.Mark(FREE_MAP_SECTOR)
	fs.freeMap.Mark(ROOT_DIR_SECTOR)

	mapHdr := filehdr.NewFileHeader(dev)
	if err := mapHdr.Allocate(fs.freeMap, fs.freeMap.DiskSize()); err != nil {
		return nil, err
	}
	dirHdr := filehdr.NewFileHeader(dev)
	if err := dirHdr.Allocate(fs.freeMap, DIR_FILE_SIZE); err != nil {
		return nil, err
	}

	if err := mapHdr.WriteBack(FREE_MAP_SECTOR); err != nil {
		return nil, err
	}
	if err := dirHdr.WriteBack(ROOT_DIR_SECTOR); err != nil {
		return nil, err
	}

	fs.freeMapFile = file.NewOpenFile(dev, mapHdr)
	fs.rootDirFile = file.NewOpenFile(dev, dirHdr)
	fs.rootDir = directory.NewDirectory(dev, common.NR_DIR_ENTRIES)

	if err := fs.rootDir.WriteBack(fs.rootDirFile); err != nil {
		return nil, err
	}
	if err := fs.freeMap.WriteBack(fs.freeMapFile); err != nil {
		return nil, err
	}
	return fs, nil
}

// Mount opens an already-formatted device, reading the free map and the
// root directory back from their fixed sectors.
func Mount(dev common.BlockDevice) (*FileSystem, error) {
	fs := &FileSystem{dev: dev}

	mapFile, err := file.Open(dev, FREE_MAP_SECTOR)
	if err != nil {
		return nil, err
	}
	fs.freeMapFile = mapFile
	fs.freeMap = bitmap.NewSectorMap(mapFile.Length() * 8)
	if err := fs.freeMap.FetchFrom(mapFile); err != nil {
		return nil, err
	}

	dirFile, err := file.Open(dev, ROOT_DIR_SECTOR)
	if err != nil {
		return nil, err
	}
	fs.rootDirFile = dirFile
	fs.rootDir = directory.NewDirectory(dev, common.NR_DIR_ENTRIES)
	if err := fs.rootDir.FetchFrom(dirFile); err != nil {
		return nil, err
	}
	return fs, nil
}

// Create makes a regular file of the given fixed size at path.
func (fs *FileSystem) Create(path string, size int) error {
	return fs.create(path, size, directory.FILE_ENTRY)
}

// Mkdir makes an empty subdirectory at path. Directory capacity is fixed
// at creation.
func (fs *FileSystem) Mkdir(path string) error {
	return fs.create(path, DIR_FILE_SIZE, directory.DIR_ENTRY)
}

func (fs *FileSystem) create(path string, size int, etype directory.EntryType) error {
	// Reserve the sector that will hold the new file's header.
	sector := fs.freeMap.FindAndSet()
	if sector == common.NO_SECTOR {
		return common.ENOSPC
	}

	hdr := filehdr.NewFileHeader(fs.dev)
	if err := hdr.Allocate(fs.freeMap, size); err != nil {
		fs.freeMap.Clear(sector)
		return err
	}

	// A reused sector may hold a stale table image, so a new directory
	// gets its empty table written before the name becomes reachable.
	if etype == directory.DIR_ENTRY {
		empty := directory.NewDirectory(fs.dev, common.NR_DIR_ENTRIES)
		if err := empty.WriteBack(file.NewOpenFile(fs.dev, hdr)); err != nil {
			return fs.rollback(hdr, sector, err)
		}
	}

	if err := fs.rootDir.Add(path, sector, etype); err != nil {
		return fs.rollback(hdr, sector, err)
	}

	if err := hdr.WriteBack(sector); err != nil {
		return err
	}
	if err := fs.rootDir.WriteBack(fs.rootDirFile); err != nil {
		return err
	}
	return fs.freeMap.WriteBack(fs.freeMapFile)
}

// rollback releases the in-memory reservations of a failed create.
// Nothing has been persisted at this point, so the map on disk never
// sees the partial allocation.
func (fs *FileSystem) rollback(hdr *filehdr.FileHeader, sector int, cause error) error {
	if err := hdr.Deallocate(fs.freeMap); err != nil {
		return err
	}
	fs.freeMap.Clear(sector)
	return cause
}

// Open resolves path and returns an open file over its header.
func (fs *FileSystem) Open(path string) (*file.OpenFile, error) {
	sector, err := fs.rootDir.Find(path)
	if err != nil {
		return nil, err
	}
	if sector == common.NO_SECTOR {
		return nil, common.ENOENT
	}
	return file.Open(fs.dev, sector)
}

// Remove unbinds path and releases everything the file owned: its data
// sectors, its index blocks and the sector of the header itself.
// Removing a non-empty directory orphans its contents; callers that care
// must recurse first.
func (fs *FileSystem) Remove(path string) error {
	sector, err := fs.rootDir.Find(path)
	if err != nil {
		return err
	}
	if sector == common.NO_SECTOR {
		return common.ENOENT
	}

	hdr := filehdr.NewFileHeader(fs.dev)
	if err := hdr.FetchFrom(sector); err != nil {
		return err
	}
	if err := hdr.Deallocate(fs.freeMap); err != nil {
		return err
	}
	fs.freeMap.Clear(sector)

	if err := fs.rootDir.Remove(path); err != nil {
		return err
	}
	if err := fs.rootDir.WriteBack(fs.rootDirFile); err != nil {
		return err
	}
	return fs.freeMap.WriteBack(fs.freeMapFile)
}

// NumClear returns the number of free sectors left on the device.
func (fs *FileSystem) NumClear() int {
	return fs.freeMap.NumClear()
}

// List writes the root directory's entries to w.
func (fs *FileSystem) List(w io.Writer) {
	fs.rootDir.List(w)
}

// ListAll writes the whole naming tree to w.
func (fs *FileSystem) ListAll(w io.Writer) error {
	return fs.rootDir.RecurList(w, 0)
}

// Print dumps the system file headers and the full directory contents.
// Debugging aid only.
func (fs *FileSystem) Print(w io.Writer) error {
	mapHdr := filehdr.NewFileHeader(fs.dev)
	if err := mapHdr.FetchFrom(FREE_MAP_SECTOR); err != nil {
		return err
	}
	fmt.Fprintf(w, "Free map file header:\n")
	if err := mapHdr.Print(w); err != nil {
		return err
	}

	dirHdr := filehdr.NewFileHeader(fs.dev)
	if err := dirHdr.FetchFrom(ROOT_DIR_SECTOR); err != nil {
		return err
	}
	fmt.Fprintf(w, "Root directory file header:\n")
	if err := dirHdr.Print(w); err != nil {
		return err
	}

	return fs.rootDir.Print(w)
}
