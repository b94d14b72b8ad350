package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func ptr[T any](v T) *T { return &v }

func sampleTree() *FileTree {
	created := time.Date(2024, 1, 2, 3, 4, 5, 123456789, time.UTC)
	updated := created.Add(time.Hour)
	return &FileTree{
		Domain: "canvas.example.edu",
		Root: &Directory{
			FileBase: FileBase{IdName: IdName{ID: 1, Name: "me"}, Time: FileTime{CreatedAt: created}},
			Files: []File{
				&Directory{
					FileBase: FileBase{IdName: IdName{ID: 10, Name: "Physics"}, Time: FileTime{CreatedAt: created, UpdatedAt: &updated}},
					Files: []File{
						&RegularFile{FileBase: FileBase{
							IdName: IdName{ID: 100, Name: "syllabus.pdf"},
							Time:   FileTime{CreatedAt: created, ModifiedAt: &updated},
							Size:   ptr(int64(2048)),
						}},
					},
				},
				&RegularFile{FileBase: FileBase{IdName: IdName{ID: 11, Name: "notes.txt"}, Time: FileTime{CreatedAt: created}}},
			},
		},
	}
}

func TestFileTimeModified(t *testing.T) {
	c := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	u := c.Add(time.Hour)
	m := c.Add(2 * time.Hour)

	tests := []struct {
		name string
		ft   FileTime
		want time.Time
	}{
		{"created only", FileTime{CreatedAt: c}, c},
		{"updated", FileTime{CreatedAt: c, UpdatedAt: &u}, u},
		{"modified wins", FileTime{CreatedAt: c, UpdatedAt: &u, ModifiedAt: &m}, m},
		{"modified older than updated", FileTime{CreatedAt: c, UpdatedAt: &m, ModifiedAt: &u}, u},
	}
	for _, tt := range tests {
		if got := tt.ft.Modified(); !got.Equal(tt.want) {
			t.Errorf("%s: Modified() = %v, want %v", tt.name, got, tt.want)
		}
	}

	if (FileTime{CreatedAt: c}).After(FileTime{CreatedAt: c}) {
		t.Error("equal times must not be After")
	}
	if !(FileTime{CreatedAt: c, UpdatedAt: &u}).After(FileTime{CreatedAt: c}) {
		t.Error("later update should be After")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	orig := sampleTree()
	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got FileTree
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	again, err := json.Marshal(&got)
	if err != nil {
		t.Fatalf("Marshal again: %v", err)
	}
	if string(again) != string(data) {
		t.Errorf("round trip changed encoding:\n%s\n%s", data, again)
	}

	if got.Domain != orig.Domain || got.Root.ID != 1 || len(got.Root.Files) != 2 {
		t.Fatalf("unexpected root: %+v", got.Root)
	}
	physics, ok := got.Root.Files[0].(*Directory)
	if !ok {
		t.Fatalf("first child is %T, want *Directory", got.Root.Files[0])
	}
	file, ok := physics.Files[0].(*RegularFile)
	if !ok {
		t.Fatalf("grandchild is %T, want *RegularFile", physics.Files[0])
	}
	want := orig.Root.Files[0].(*Directory).Files[0].(*RegularFile)
	if !file.Time.Modified().Equal(want.Time.Modified()) || file.Time.Modified().Nanosecond() != 123456789 {
		t.Errorf("modified time = %v, want %v", file.Time.Modified(), want.Time.Modified())
	}
	if file.Size == nil || *file.Size != 2048 {
		t.Errorf("size = %v, want 2048", file.Size)
	}
	if _, ok := got.Root.Files[1].(*RegularFile); !ok {
		t.Errorf("second child is %T, want *RegularFile", got.Root.Files[1])
	}
}

func TestJSONTagsAndOmission(t *testing.T) {
	data, err := json.Marshal(sampleTree())
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, want := range []string{`"directory":{`, `"file":{`, `"modified_at"`} {
		if !strings.Contains(s, want) {
			t.Errorf("encoding lacks %s: %s", want, s)
		}
	}

	data, err = json.Marshal(&RegularFile{FileBase: FileBase{IdName: IdName{ID: 1, Name: "a"}}})
	if err != nil {
		t.Fatal(err)
	}
	for _, absent := range []string{"updated_at", "modified_at", "size"} {
		if strings.Contains(string(data), absent) {
			t.Errorf("absent %s encoded: %s", absent, data)
		}
	}
}

func TestUnmarshalRejectsAmbiguousChild(t *testing.T) {
	inputs := []string{
		`{"id":1,"name":"r","time":{"created_at":"2024-01-01T00:00:00Z"},"files":[{}]}`,
		`{"id":1,"name":"r","time":{"created_at":"2024-01-01T00:00:00Z"},"files":[{"directory":{"id":2,"name":"d","time":{"created_at":"2024-01-01T00:00:00Z"},"files":[]},"file":{"id":3,"name":"f","time":{"created_at":"2024-01-01T00:00:00Z"}}}]}`,
	}
	for _, in := range inputs {
		var d Directory
		if err := json.Unmarshal([]byte(in), &d); err == nil {
			t.Errorf("Unmarshal(%s) succeeded, want error", in)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(sampleTree().Root); err != nil {
		t.Errorf("Validate(sample) = %v", err)
	}

	dup := NewDirectory(IdName{ID: 1, Name: "root"}, time.Time{},
		NewDirectory(IdName{ID: 2, Name: "a"}, time.Time{},
			&RegularFile{FileBase: FileBase{IdName: IdName{ID: 5, Name: "x"}}},
			&RegularFile{FileBase: FileBase{IdName: IdName{ID: 5, Name: "y"}}},
		),
	)
	err := Validate(dup)
	var de *DuplicateIDError
	if !errors.As(err, &de) {
		t.Fatalf("Validate = %v, want DuplicateIDError", err)
	}
	if de.Parent != 2 || de.ID != 5 {
		t.Errorf("DuplicateIDError = %+v, want parent 2 id 5", de)
	}
}

func TestEmptyTree(t *testing.T) {
	var nilTree *FileTree
	if !nilTree.IsEmpty() {
		t.Error("nil tree should be empty")
	}
	if !NewEmptyTree("", IdName{}).IsEmpty() {
		t.Error("placeholder tree should be empty")
	}
	seeded := NewEmptyTree("d", IdName{ID: 7, Name: "me"})
	if seeded.IsEmpty() {
		t.Error("seeded tree has a real root and is not a placeholder")
	}
	if !seeded.Root.Time.Modified().IsZero() {
		t.Error("seeded root must have the zero time")
	}
}
