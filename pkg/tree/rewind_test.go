package tree

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkysen/CanvasFileSync/pkg/models"
)

func TestRewindDropsFailedFilesAndRestoresTimes(t *testing.T) {
	old := tree(dir(1, "root", 1, dir(10, "X", 1, file(100, "f1", 1))))
	newTree := tree(dir(1, "root", 3,
		dir(10, "X", 3, file(100, "f1", 3), file(101, "f2", 3)),
		dir(20, "Y", 3, file(200, "g", 3)),
	))

	d, err := Diff(clone(newTree), old)
	require.NoError(t, err)
	require.NotNil(t, d)

	failed := map[string]bool{
		filepath.Join("/m", "root", "X", "f2"): true,
		filepath.Join("/m", "root", "Y", "g"):  true,
	}
	n := Rewind(d, old, "/m", func(p string) bool { return failed[p] })
	assert.Equal(t, 2, n)

	x := d.Root.Files[0].(*models.Directory)
	y := d.Root.Files[1].(*models.Directory)
	assert.Equal(t, []uint64{100}, ids(x))
	assert.Empty(t, y.Files)
	assert.True(t, d.Root.Time.Modified().Equal(at(1)), "root keeps its old time")
	assert.True(t, x.Time.Modified().Equal(at(1)), "X keeps its old time")
	assert.True(t, y.Time.Modified().IsZero(), "new Y gets the zero time")

	require.NoError(t, Merge(old, d))

	// the next run retries exactly the failed files
	again, err := Diff(clone(newTree), old)
	require.NoError(t, err)
	require.NotNil(t, again)
	var retried []uint64
	Walk(again.Root, "", func(f models.File, _ string) bool {
		if _, ok := f.(*models.RegularFile); ok {
			retried = append(retried, f.Base().ID)
		}
		return true
	})
	assert.ElementsMatch(t, []uint64{101, 200}, retried)
}

func TestRewindNothingFailed(t *testing.T) {
	old := tree(dir(1, "root", 1))
	d := tree(dir(1, "root", 2, file(5, "a", 2)))

	n := Rewind(d, old, "/m", func(string) bool { return false })
	assert.Zero(t, n)
	assert.Equal(t, []uint64{5}, ids(d.Root))
	assert.True(t, d.Root.Time.Modified().Equal(at(2)))
	assert.Zero(t, Rewind(nil, old, "/m", func(string) bool { return true }))
}
