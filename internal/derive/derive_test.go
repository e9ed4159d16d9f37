package derive

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nbprep/internal/notebook"
)

// build makes a notebook with one code cell per tag list; cell i has source "cell i".
func build(tagLists ...[]string) *notebook.Notebook {
	nb := notebook.New(nil)
	for i, tags := range tagLists {
		nb.Cells = append(nb.Cells, notebook.NewCell(notebook.CellCode, fmt.Sprintf("cell %d", i+1), tags...))
	}
	return nb
}

// positions returns 1-based source positions of derived cells, failing if a
// derived cell is not in the source or breaks source order.
func positions(t *testing.T, src, derived *notebook.Notebook) []int {
	t.Helper()
	var out []int
	last := -1
	for _, c := range derived.Cells {
		idx := -1
		for i, s := range src.Cells {
			if s == c {
				idx = i
				break
			}
		}
		require.GreaterOrEqual(t, idx, 0, "derived cell not found in source")
		require.Greater(t, idx, last, "derived cells out of source order")
		last = idx
		out = append(out, idx+1)
	}
	return out
}

func TestDerive_FourCellScenario(t *testing.T) {
	src := build(nil, []string{"testing"}, []string{"noauto"}, []string{"exercise"})

	got, err := Derive(src, nil)
	require.NoError(t, err)

	want := map[notebook.Variant][]int{
		notebook.Test:     {1, 2},
		notebook.Doc:      {1},
		notebook.User:     {1, 3, 4},
		notebook.Exercise: {1, 3, 4},
		notebook.Solution: {1, 3, 4},
	}
	require.Len(t, got, len(want))
	for v, cells := range want {
		if diff := cmp.Diff(cells, positions(t, src, got[v])); diff != "" {
			t.Errorf("variant %s cells mismatch (-want +got):\n%s", v, diff)
		}
	}
}

func TestKeep_RuleTable(t *testing.T) {
	tests := []struct {
		tags []string
		keep map[notebook.Variant]bool
	}{
		{nil, map[notebook.Variant]bool{notebook.Test: true, notebook.Doc: true, notebook.Exercise: true, notebook.Solution: true, notebook.User: true}},
		{[]string{"testing"}, map[notebook.Variant]bool{notebook.Test: true}},
		{[]string{"noauto"}, map[notebook.Variant]bool{notebook.Exercise: true, notebook.Solution: true, notebook.User: true}},
		{[]string{"auto"}, map[notebook.Variant]bool{notebook.Test: true, notebook.Doc: true}},
		{[]string{"exercise"}, map[notebook.Variant]bool{notebook.Exercise: true, notebook.Solution: true, notebook.User: true}},
		{[]string{"solution"}, map[notebook.Variant]bool{notebook.Test: true, notebook.Doc: true, notebook.Solution: true, notebook.User: true}},
		{[]string{"exercise", "solution"}, map[notebook.Variant]bool{notebook.Doc: true, notebook.Solution: true, notebook.User: true}},
		{[]string{"remove-output", "hide-input"}, map[notebook.Variant]bool{notebook.Test: true, notebook.Doc: true, notebook.Exercise: true, notebook.Solution: true, notebook.User: true}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.tags), func(t *testing.T) {
			set := notebook.NewTagSet(tt.tags...)
			for _, v := range notebook.Variants {
				assert.Equal(t, tt.keep[v], Keep(v, set), "variant %s", v)
			}
		})
	}
}

func TestDerive_TestingCellsOnlyInTest(t *testing.T) {
	src := build([]string{"testing"}, []string{"exercise"}, []string{"solution"}, nil, []string{"testing", "custom"})
	got, err := Derive(src, nil)
	require.NoError(t, err)

	for v, derived := range got {
		hasTesting := false
		for _, c := range derived.Cells {
			if c.Tags.Has(notebook.TagTesting) {
				hasTesting = true
			}
		}
		assert.Equal(t, v == notebook.Test, hasTesting, "variant %s", v)
		positions(t, src, derived)
	}
}

func TestDerive_NonTutorialHasNoExerciseOrSolution(t *testing.T) {
	src := build(nil, []string{"testing"}, []string{"auto"}, []string{"noauto"})
	assert.False(t, IsTutorial(src))

	got, err := Derive(src, nil)
	require.NoError(t, err)
	assert.Contains(t, got, notebook.Test)
	assert.Contains(t, got, notebook.Doc)
	assert.Contains(t, got, notebook.User)
	assert.NotContains(t, got, notebook.Exercise)
	assert.NotContains(t, got, notebook.Solution)
}

func TestDerive_SkipList(t *testing.T) {
	src := build(nil, []string{"solution"})
	got, err := Derive(src, []notebook.Variant{notebook.Test, notebook.Exercise})
	require.NoError(t, err)
	assert.NotContains(t, got, notebook.Test)
	assert.NotContains(t, got, notebook.Exercise)
	assert.Contains(t, got, notebook.Solution)
}

func TestSkipList_FromMetadata(t *testing.T) {
	src, err := notebook.Parse([]byte(`{"cells": [], "metadata": {"idaes": {"skip": ["test", "usr", "bogus"]}}}`))
	require.NoError(t, err)

	skip, unknown := SkipList(src)
	assert.Equal(t, []notebook.Variant{notebook.Test, notebook.User}, skip)
	assert.Equal(t, []string{"bogus"}, unknown)
}

func TestDerive_AutoAndNoAutoRejected(t *testing.T) {
	src := build(nil, []string{"auto", "noauto"})
	_, err := Derive(src, nil)

	var fe *notebook.FormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 1, fe.Cell)
}

func TestDerive_DoesNotModifySource(t *testing.T) {
	src := build(nil, []string{"exercise"})
	src.Cells[0].SetSourceLines([]string{"see [next](other_src.ipynb)\n"})
	before, err := src.Marshal()
	require.NoError(t, err)

	_, err = New(Options{RewriteLinks: true}).Derive(src, nil)
	require.NoError(t, err)

	after, err := src.Marshal()
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestDerive_RewriteLinks(t *testing.T) {
	src := build(nil)
	src.Cells[0].SetSourceLines([]string{
		"Continue with [part 2](hda_part2_src.ipynb)\n",
		"plain line\n",
	})

	got, err := New(Options{RewriteLinks: true}).Derive(src, nil)
	require.NoError(t, err)

	assert.Equal(t, "Continue with [part 2](hda_part2_doc.ipynb)\nplain line\n", got[notebook.Doc].Cells[0].Source())
	assert.Equal(t, "Continue with [part 2](hda_part2_usr.ipynb)\nplain line\n", got[notebook.User].Cells[0].Source())

	plain, err := Derive(src, nil)
	require.NoError(t, err)
	assert.Same(t, src.Cells[0], plain[notebook.Doc].Cells[0])
}

func TestDerive_Idempotent(t *testing.T) {
	src := build(nil, []string{"testing"}, []string{"exercise"}, []string{"solution"}, []string{"auto"})
	first, err := Derive(src, nil)
	require.NoError(t, err)
	second, err := Derive(src, nil)
	require.NoError(t, err)

	for v := range first {
		a, err := first[v].Marshal()
		require.NoError(t, err)
		b, err := second[v].Marshal()
		require.NoError(t, err)
		assert.Equal(t, string(a), string(b), "variant %s", v)
	}
}
