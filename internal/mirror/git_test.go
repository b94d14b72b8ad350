package mirror

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkysen/CanvasFileSync/internal/snapshot"
)

func TestOpenRepoInitializes(t *testing.T) {
	root := t.TempDir()
	repo, err := OpenRepo(root)
	require.NoError(t, err)
	require.NotNil(t, repo)

	_, err = os.Stat(filepath.Join(root, ".git"))
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "/"+snapshot.FileName+"\n")

	// reopening neither duplicates the ignore lines nor fails
	_, err = OpenRepo(root)
	require.NoError(t, err)
	again, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))
}

func TestEnsureGitignoreKeepsUserLines(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("*.mp4"), 0o644))
	require.NoError(t, ensureGitignore(root))

	data, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, "*.mp4", lines[0])
	assert.Len(t, lines, 1+len(gitignoreLines))
}

func TestOpenRepoInsideForeignRepository(t *testing.T) {
	outer := t.TempDir()
	_, err := git.PlainInit(outer, false)
	require.NoError(t, err)
	inner := filepath.Join(outer, "mirror")
	require.NoError(t, os.Mkdir(inner, 0o755))

	repo, err := OpenRepo(inner)
	require.NoError(t, err)
	assert.Nil(t, repo)
	_, err = os.Stat(filepath.Join(inner, ".gitignore"))
	assert.True(t, os.IsNotExist(err))
}

func TestSyncCommitsDownloads(t *testing.T) {
	root := t.TempDir()
	repo, err := OpenRepo(root)
	require.NoError(t, err)

	remote := &fakeRemote{}
	remote.set(remoteFile{100, "syllabus.pdf", 1})
	s, _ := newTestSyncer(t, remote, &fakeSource{}, Options{Root: root, Repo: repo})

	_, err = s.Sync(context.Background())
	require.NoError(t, err)

	r, err := git.PlainOpen(root)
	require.NoError(t, err)
	head, err := r.Head()
	require.NoError(t, err)
	commit, err := r.CommitObject(head.Hash())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(commit.Message, "Sync "))
	assert.Equal(t, "canvassync", commit.Author.Name)

	var paths []string
	files, err := commit.Files()
	require.NoError(t, err)
	require.NoError(t, files.ForEach(func(f *object.File) error {
		paths = append(paths, f.Name)
		return nil
	}))
	assert.Contains(t, paths, "Jane Doe/CS101/syllabus.pdf")
	assert.Contains(t, paths, ".gitignore")
	assert.NotContains(t, paths, snapshot.FileName)

	// an unchanged run adds no commit
	_, err = s.Sync(context.Background())
	require.NoError(t, err)
	head2, err := r.Head()
	require.NoError(t, err)
	assert.Equal(t, head.Hash(), head2.Hash())
}
