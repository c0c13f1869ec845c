// Package directory implements the hierarchical name layer: a directory
// is a fixed-capacity table of name-to-sector bindings, persisted as the
// byte content of an ordinary file. Nested directories are just entries
// whose sector holds the file header of another table, so path
// resolution recurses one directory file per separator.
package directory

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/nachfs/nachfs/common"
	"github.com/nachfs/nachfs/file"
	"github.com/nachfs/nachfs/filehdr"
)

type EntryType byte

const (
	FILE_ENTRY EntryType = 'F'
	DIR_ENTRY  EntryType = 'D'
)

// The on-disk size of one table slot: in-use flag, name, type tag and
// header sector number.
const DIR_ENTRY_SIZE = 1 + common.NAME_MAX + 1 + 4

// One table slot, laid out on disk exactly as declared (little-endian).
type DirectoryEntry struct {
	InUse  bool
	Name   [common.NAME_MAX]byte // NUL-padded, not a full path
	Type   EntryType
	Sector int32 // sector of this entry's file header
}

// NameString returns the entry name without NUL padding.
func (e *DirectoryEntry) NameString() string {
	n := bytes.IndexByte(e.Name[:], 0)
	if n < 0 {
		n = len(e.Name)
	}
	return string(e.Name[:n])
}

type Directory struct {
	dev   common.BlockDevice
	table []DirectoryEntry
}

// NewDirectory returns an empty in-memory directory of the given
// capacity. The table never grows; populate it with FetchFrom for an
// existing directory file or Add for a fresh one.
func NewDirectory(dev common.BlockDevice, size int) *Directory {
	return &Directory{
		dev:   dev,
		table: make([]DirectoryEntry, size),
	}
}

// FetchFrom reads the table from the directory's backing file.
func (dir *Directory) FetchFrom(f *file.OpenFile) error {
	buf := make([]byte, len(dir.table)*DIR_ENTRY_SIZE)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return err
	}
	return binary.Read(bytes.NewReader(buf), binary.LittleEndian, dir.table)
}

// WriteBack writes the table into the directory's backing file at
// offset 0.
func (dir *Directory) WriteBack(f *file.OpenFile) error {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, dir.table); err != nil {
		return err
	}
	_, err := f.WriteAt(buf.Bytes(), 0)
	return err
}

// FindIndex returns the table slot bound to name, or -1. name is a bare
// path segment, not a path.
func (dir *Directory) FindIndex(name string) int {
	for i := range dir.table {
		if dir.table[i].InUse && dir.table[i].NameString() == name {
			return i
		}
	}
	return -1
}

// Find resolves an absolute path to the sector of its file header. A
// miss returns NO_SECTOR with a nil error; a path that uses a regular
// file as an intermediate directory returns ENOTDIR. Each level costs
// one header fetch and one table read, through a transient Directory
// released as the recursion unwinds.
func (dir *Directory) Find(path string) (int, error) {
	name := strings.TrimPrefix(path, "/")
	rest := ""
	if i := strings.IndexByte(name, '/'); i >= 0 {
		name, rest = name[:i], name[i:]
	}

	idx := dir.FindIndex(name)
	if idx < 0 {
		return common.NO_SECTOR, nil
	}
	entry := &dir.table[idx]
	if rest == "" {
		return int(entry.Sector), nil
	}

	if entry.Type != DIR_ENTRY {
		return common.NO_SECTOR, common.ENOTDIR
	}
	sub, err := file.Open(dir.dev, int(entry.Sector))
	if err != nil {
		return common.NO_SECTOR, err
	}
	next := NewDirectory(dir.dev, common.NR_DIR_ENTRIES)
	if err := next.FetchFrom(sub); err != nil {
		return common.NO_SECTOR, err
	}
	return next.Find(rest)
}

// Add binds the final segment of path to newSector. A nested add loads
// the parent directory, inserts and writes the parent back before
// returning; a top-level add mutates only the receiver's in-memory
// table, and persisting it is the caller's responsibility.
func (dir *Directory) Add(path string, newSector int, etype EntryType) error {
	sector, err := dir.Find(path)
	if err != nil {
		return err
	}
	if sector != common.NO_SECTOR {
		return common.EEXIST
	}

	prefix, leaf := splitPath(path)
	if len(leaf) == 0 {
		return common.EINVAL
	}
	if len(leaf) > common.NAME_MAX {
		return common.ENAMETOOLONG
	}

	if prefix == "" {
		return dir.enter(leaf, newSector, etype)
	}

	parent, pfile, err := dir.fetchParent(prefix)
	if err != nil {
		return err
	}
	if err := parent.enter(leaf, newSector, etype); err != nil {
		return err
	}
	return parent.WriteBack(pfile)
}

// Remove unbinds the final segment of path. The entry's file header and
// data sectors are untouched; reclaiming them belongs to the layer that
// owns the header. As with Add, a top-level removal leaves persistence
// of the receiver to the caller.
func (dir *Directory) Remove(path string) error {
	sector, err := dir.Find(path)
	if err != nil {
		return err
	}
	if sector == common.NO_SECTOR {
		return common.ENOENT
	}

	prefix, leaf := splitPath(path)
	if prefix == "" {
		idx := dir.FindIndex(leaf)
		if idx < 0 {
			return common.ENOENT
		}
		dir.table[idx].InUse = false
		return nil
	}

	parent, pfile, err := dir.fetchParent(prefix)
	if err != nil {
		return err
	}
	idx := parent.FindIndex(leaf)
	if idx < 0 {
		return common.ENOENT
	}
	parent.table[idx].InUse = false
	return parent.WriteBack(pfile)
}

// List writes every in-use entry's slot, name and type tag to w.
func (dir *Directory) List(w io.Writer) {
	for i := range dir.table {
		if dir.table[i].InUse {
			fmt.Fprintf(w, "[%d] %s %c\n", i, dir.table[i].NameString(), dir.table[i].Type)
		}
	}
}

// RecurList lists the whole naming tree below this directory, indenting
// each level by eight spaces.
func (dir *Directory) RecurList(w io.Writer, depth int) error {
	for i := range dir.table {
		entry := &dir.table[i]
		if !entry.InUse {
			continue
		}
		fmt.Fprintf(w, "%s[%d] %s %c\n", strings.Repeat(" ", depth*8), i, entry.NameString(), entry.Type)

		if entry.Type == DIR_ENTRY {
			sub, err := file.Open(dir.dev, int(entry.Sector))
			if err != nil {
				return err
			}
			next := NewDirectory(dir.dev, common.NR_DIR_ENTRIES)
			if err := next.FetchFrom(sub); err != nil {
				return err
			}
			if err := next.RecurList(w, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// Print dumps every in-use entry's header metadata and file contents to
// w. Debugging aid only.
func (dir *Directory) Print(w io.Writer) error {
	fmt.Fprintf(w, "Directory contents:\n")
	for i := range dir.table {
		entry := &dir.table[i]
		if !entry.InUse {
			continue
		}
		fmt.Fprintf(w, "Name: %s, Sector: %d\n", entry.NameString(), entry.Sector)

		hdr := filehdr.NewFileHeader(dir.dev)
		if err := hdr.FetchFrom(int(entry.Sector)); err != nil {
			return err
		}
		if err := hdr.Print(w); err != nil {
			return err
		}
	}
	fmt.Fprintln(w)
	return nil
}

// fetchParent resolves a parent-path prefix and loads its table.
func (dir *Directory) fetchParent(prefix string) (*Directory, *file.OpenFile, error) {
	sector, err := dir.Find(prefix)
	if err != nil {
		return nil, nil, err
	}
	if sector == common.NO_SECTOR {
		return nil, nil, common.ENOENT
	}

	pfile, err := file.Open(dir.dev, sector)
	if err != nil {
		return nil, nil, err
	}
	parent := NewDirectory(dir.dev, common.NR_DIR_ENTRIES)
	if err := parent.FetchFrom(pfile); err != nil {
		return nil, nil, err
	}
	return parent, pfile, nil
}

// enter fills the first free slot of the receiver's table.
func (dir *Directory) enter(name string, sector int, etype EntryType) error {
	for i := range dir.table {
		if dir.table[i].InUse {
			continue
		}
		entry := &dir.table[i]
		entry.InUse = true
		entry.Name = [common.NAME_MAX]byte{}
		copy(entry.Name[:], name)
		entry.Type = etype
		entry.Sector = int32(sector)
		return nil
	}
	return common.ENFILE
}

// splitPath splits a path into its parent prefix (with leading
// separator, empty for a top-level name) and its final segment.
func splitPath(path string) (string, string) {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}
