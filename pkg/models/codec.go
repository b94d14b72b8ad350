package models

import (
	"encoding/json"
	"fmt"
)

// fileJSON is the externally tagged form of a File: exactly one field is set.
type fileJSON struct {
	Directory   *Directory   `json:"directory,omitempty"`
	RegularFile *RegularFile `json:"file,omitempty"`
}

type directoryJSON struct {
	FileBase
	Files []fileJSON `json:"files"`
}

// MarshalJSON encodes the directory with tagged children.
func (d Directory) MarshalJSON() ([]byte, error) {
	files := make([]fileJSON, 0, len(d.Files))
	for i, f := range d.Files {
		switch f := f.(type) {
		case *Directory:
			files = append(files, fileJSON{Directory: f})
		case *RegularFile:
			files = append(files, fileJSON{RegularFile: f})
		default:
			return nil, fmt.Errorf("directory %d: files[%d]: unknown file type %T", d.ID, i, f)
		}
	}
	return json.Marshal(directoryJSON{FileBase: d.FileBase, Files: files})
}

// UnmarshalJSON decodes a directory written by MarshalJSON.
func (d *Directory) UnmarshalJSON(data []byte) error {
	var raw directoryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	files := make([]File, 0, len(raw.Files))
	for i, f := range raw.Files {
		switch {
		case f.Directory != nil && f.RegularFile == nil:
			files = append(files, f.Directory)
		case f.RegularFile != nil && f.Directory == nil:
			files = append(files, f.RegularFile)
		default:
			return fmt.Errorf("directory %d: files[%d]: exactly one of \"directory\" or \"file\" must be set", raw.ID, i)
		}
	}
	d.FileBase = raw.FileBase
	d.Files = files
	return nil
}

// DuplicateIDError reports two siblings sharing an identifier.
type DuplicateIDError struct {
	Parent uint64
	ID     uint64
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("directory %d: duplicate child id %d", e.Parent, e.ID)
}

// Validate checks that identifiers are unique within every child list.
func Validate(dir *Directory) error {
	if dir == nil {
		return nil
	}
	seen := make(map[uint64]struct{}, len(dir.Files))
	for _, f := range dir.Files {
		id := f.Base().ID
		if _, dup := seen[id]; dup {
			return &DuplicateIDError{Parent: dir.ID, ID: id}
		}
		seen[id] = struct{}{}
		if sub, ok := f.(*Directory); ok {
			if err := Validate(sub); err != nil {
				return err
			}
		}
	}
	return nil
}
