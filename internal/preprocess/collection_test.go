package preprocess

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nbprep/internal/notebook"
)

func TestResolveRoot(t *testing.T) {
	repo, root := newCollection(t)

	got, err := ResolveRoot(repo, Layout{})
	require.NoError(t, err)
	assert.Equal(t, root, got)

	// repository root with the notebooks inside a package directory
	outer := filepath.Dir(repo)
	got, err = ResolveRoot(outer, Layout{})
	require.NoError(t, err)
	assert.Equal(t, root, got)

	_, err = ResolveRoot(t.TempDir(), Layout{})
	assert.ErrorIs(t, err, ErrNoNotebooks)
}

func TestOpen_MissingTOC(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "notebooks"), 0o755))
	_, err := Open(dir, Layout{})
	assert.ErrorIs(t, err, ErrNoNotebooks)
}

func TestClean(t *testing.T) {
	repo, root := newCollection(t)
	run(t, Options{Dir: repo})

	coll, err := Open(repo, Layout{})
	require.NoError(t, err)
	removed, err := coll.Clean(false)
	require.NoError(t, err)
	// 3 + 3 + 5 variants
	assert.Len(t, removed, 11)
	assert.NoFileExists(t, filepath.Join(root, "tut", "intro_exercise.ipynb"))
	assert.FileExists(t, filepath.Join(root, "tut", "intro_src.ipynb"))

	removed, err = coll.Clean(false)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestSkipped(t *testing.T) {
	repo, root := newCollection(t)
	src := filepath.Join(root, "flowsheets", "hda_src.ipynb")
	writeSource(t, src, map[string]any{"idaes": map[string]any{"skip": []string{"test", "exercise"}}},
		cell("markdown", "# HDA"))

	coll, err := Open(repo, Layout{})
	require.NoError(t, err)
	smap, err := coll.Skipped()
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{src: {"exercise", "test"}}, smap)
}

func TestList(t *testing.T) {
	repo, _ := newCollection(t)
	run(t, Options{Dir: repo})

	coll, err := Open(repo, Layout{})
	require.NoError(t, err)
	list, err := coll.List(false)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "Flash", list[0].Title)
	assert.Equal(t, []notebook.Variant{notebook.Test, notebook.Doc, notebook.User}, list[0].Variants)
	assert.Equal(t, "Intro", list[2].Title)
	assert.Len(t, list[2].Variants, 5)
}

func TestParseSkipAction(t *testing.T) {
	for in, want := range map[string]SkipAction{"a": SkipAdd, "ADD": SkipAdd, "r": SkipRemove, "sh": SkipShow, "show": SkipShow} {
		got, err := ParseSkipAction(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "x", "adds"} {
		_, err := ParseSkipAction(in)
		assert.Error(t, err, in)
	}
}

func TestEditSkip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash_src.ipynb")
	writeSource(t, path, nil, cell("markdown", "# Flash"))

	skip, changed, err := EditSkip(path, SkipShow, nil)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, skip)

	// removing without an idaes section does nothing
	_, changed, err = EditSkip(path, SkipRemove, []string{"test"})
	require.NoError(t, err)
	assert.False(t, changed)

	skip, changed, err = EditSkip(path, SkipAdd, []string{"test", "usr"})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"test", "usr"}, skip)

	_, changed, err = EditSkip(path, SkipAdd, []string{"test"})
	require.NoError(t, err)
	assert.False(t, changed)

	skip, changed, err = EditSkip(path, SkipRemove, []string{"test"})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"usr"}, skip)

	nb, err := notebook.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"usr"}, nb.SkipList())

	_, _, err = EditSkip(path, SkipAdd, []string{"bogus"})
	assert.Error(t, err)
}
