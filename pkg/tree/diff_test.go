package tree

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkysen/CanvasFileSync/pkg/models"
)

func fixture() *models.FileTree {
	return tree(dir(1, "root", 5,
		dir(10, "course", 5,
			file(100, "a.pdf", 1),
			file(101, "b.pdf", 2),
			dir(11, "week1", 3, file(110, "c.pdf", 3)),
		),
		file(20, "readme.txt", 1),
	))
}

func TestDiffIdenticalIsNil(t *testing.T) {
	d, err := Diff(fixture(), fixture())
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestDiffAgainstEmptyYieldsEverything(t *testing.T) {
	newTree := fixture()
	old := models.NewEmptyTree("", newTree.Root.IdName)

	d, err := Diff(clone(newTree), old)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, Count(newTree.Root), Count(d.Root))
}

// Scenario A: a newer directory with one updated and one new file.
func TestDiffUpdatedAndNewFile(t *testing.T) {
	old := tree(dir(1, "root", 1, dir(10, "X", 1, file(100, "f1", 1))))
	newTree := tree(dir(1, "root", 2, dir(10, "X", 2, file(100, "f1", 2), file(101, "f2", 2))))

	d, err := Diff(newTree, old)
	require.NoError(t, err)
	require.NotNil(t, d)

	require.Equal(t, []uint64{10}, ids(d.Root))
	x := d.Root.Files[0].(*models.Directory)
	assert.Equal(t, []uint64{100, 101}, ids(x))
	assert.True(t, models.ModTime(x.Files[0]).Equal(at(2)))
}

// Scenario B: the directory gate hides changes below an unchanged directory.
func TestDiffUnchangedDirectoryHidesChildren(t *testing.T) {
	old := tree(dir(1, "root", 1, dir(10, "X", 1, file(100, "f1", 1))))
	newTree := tree(dir(1, "root", 1, dir(10, "X", 1, file(100, "f1", 9))))

	d, err := Diff(newTree, old)
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestDiffKeepsOnlyChangedChildren(t *testing.T) {
	old := fixture()
	newTree := fixture()
	course := newTree.Root.Files[0].(*models.Directory)
	course.Files[1] = file(101, "b.pdf", 6)
	newTree.Root.Time.ModifiedAt = ptrTime(at(6))
	course.Time.ModifiedAt = ptrTime(at(6))

	d, err := Diff(newTree, old)
	require.NoError(t, err)
	require.NotNil(t, d)
	require.Equal(t, []uint64{10}, ids(d.Root))
	assert.Equal(t, []uint64{101}, ids(d.Root.Files[0].(*models.Directory)))
}

func TestDiffOlderFileIsNotChange(t *testing.T) {
	old := tree(dir(1, "root", 1, file(100, "f", 5)))
	newTree := tree(dir(1, "root", 2, file(100, "f", 3)))

	d, err := Diff(newTree, old)
	require.NoError(t, err)
	require.NotNil(t, d, "root itself is newer")
	assert.Empty(t, d.Root.Files)
}

func TestDiffKindMismatch(t *testing.T) {
	old := tree(dir(1, "root", 1, file(7, "x", 1)))
	newTree := tree(dir(1, "root", 2, dir(7, "x", 2)))

	_, err := Diff(newTree, old)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKindMismatch))
	var km *KindMismatchError
	require.ErrorAs(t, err, &km)
	assert.Equal(t, uint64(7), km.ID)
}

func TestDiffRootMismatch(t *testing.T) {
	_, err := Diff(tree(dir(1, "a", 1)), tree(dir(2, "b", 1)))
	assert.ErrorIs(t, err, ErrRootMismatch)
}

// Every node in a diff is new or strictly newer than its counterpart.
func TestDiffContainsOnlyNewerNodes(t *testing.T) {
	old := fixture()
	newTree := fixture()
	newTree.Root.Time.ModifiedAt = ptrTime(at(8))
	course := newTree.Root.Files[0].(*models.Directory)
	course.Time.ModifiedAt = ptrTime(at(8))
	course.Files = append(course.Files, file(102, "new.pdf", 8))

	d, err := Diff(clone(newTree), old)
	require.NoError(t, err)
	require.NotNil(t, d)

	oldPaths := flatten(old.Root)
	newPaths := flatten(newTree.Root)
	Walk(d.Root, "", func(f models.File, path string) bool {
		n, ok := newPaths[path]
		require.True(t, ok, "diff node %s not in new tree", path)
		assert.Equal(t, n.Base().ID, f.Base().ID)
		if o, ok := oldPaths[path]; ok {
			assert.True(t, f.Base().Time.After(o.Base().Time), "%s not newer", path)
		}
		return true
	})
}

func ptrTime[T any](v T) *T { return &v }
