// Package models contains the file tree types shared by the sync engine,
// the remote tree sources and the snapshot stores.
package models

import "time"

// IdName identifies a node. ID is unique among siblings; Name is the
// path segment the node is materialized under.
type IdName struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// FileTime holds the timestamps reported for a node.
type FileTime struct {
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
	ModifiedAt *time.Time `json:"modified_at,omitempty"`
}

// CreatedAt returns a FileTime with only the creation time set.
func CreatedAt(t time.Time) FileTime {
	return FileTime{CreatedAt: t}
}

// Modified returns the effective modification time:
// ModifiedAt, else UpdatedAt, else CreatedAt.
func (t FileTime) Modified() time.Time {
	if t.ModifiedAt != nil {
		return *t.ModifiedAt
	}
	if t.UpdatedAt != nil {
		return *t.UpdatedAt
	}
	return t.CreatedAt
}

// After reports whether t is strictly newer than other.
func (t FileTime) After(other FileTime) bool {
	return t.Modified().After(other.Modified())
}

// FileBase is embedded by every node.
type FileBase struct {
	IdName
	Time FileTime `json:"time"`
	Size *int64   `json:"size,omitempty"`
}

// Base returns the node's base.
func (b *FileBase) Base() *FileBase {
	return b
}

// File is either a *Directory or a *RegularFile.
// Callers switch on the concrete type; no other implementations exist.
type File interface {
	Base() *FileBase
	isFile()
}

// Directory is a node with ordered children.
type Directory struct {
	FileBase
	Files []File `json:"files"`
}

// RegularFile is a leaf node whose content lives in the remote byte source.
type RegularFile struct {
	FileBase
}

func (*Directory) isFile()   {}
func (*RegularFile) isFile() {}

// NewDirectory creates a directory node with the given creation time.
func NewDirectory(id IdName, created time.Time, files ...File) *Directory {
	return &Directory{
		FileBase: FileBase{IdName: id, Time: CreatedAt(created)},
		Files:    files,
	}
}

// FileTree is the unit that is fetched, diffed, merged and persisted.
type FileTree struct {
	Domain string     `json:"domain"`
	Root   *Directory `json:"root"`
}

// NewEmptyTree returns the tree used when nothing has been mirrored yet.
// Its root has the zero timestamp, so any fetched root is newer.
func NewEmptyTree(domain string, root IdName) *FileTree {
	return &FileTree{
		Domain: domain,
		Root:   &Directory{FileBase: FileBase{IdName: root}},
	}
}

// IsEmpty reports whether the tree is the placeholder for an absent snapshot.
func (t *FileTree) IsEmpty() bool {
	return t == nil || t.Root == nil || (t.Root.ID == 0 && len(t.Root.Files) == 0)
}

// IsDir reports whether f is a directory.
func IsDir(f File) bool {
	_, ok := f.(*Directory)
	return ok
}

// ModTime is shorthand for f.Base().Time.Modified().
func ModTime(f File) time.Time {
	return f.Base().Time.Modified()
}
