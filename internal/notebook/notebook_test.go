package notebook

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleNotebook = `{
 "cells": [
  {"cell_type": "markdown", "metadata": {}, "source": ["# Flash unit\n", "Intro <b>text</b>\n"]},
  {"cell_type": "code", "id": "a1", "metadata": {"tags": ["testing", "hide-input", "testing"]}, "source": "assert True\n", "outputs": [], "execution_count": null},
  {"cell_type": "raw", "source": []}
 ],
 "metadata": {"kernelspec": {"name": "python3"}, "idaes": {"skip": ["test"]}},
 "nbformat": 4,
 "nbformat_minor": 5
}`

func TestParse(t *testing.T) {
	nb, err := Parse([]byte(sampleNotebook))
	require.NoError(t, err)
	require.Len(t, nb.Cells, 3)

	assert.Equal(t, CellMarkdown, nb.Cells[0].Type)
	assert.Equal(t, CellCode, nb.Cells[1].Type)
	assert.Equal(t, CellRaw, nb.Cells[2].Type)

	assert.True(t, nb.Cells[1].Tags.Has(TagTesting))
	assert.False(t, nb.Cells[1].Tags.Has(TagAuto))
	assert.Equal(t, []string{"hide-input"}, nb.Cells[1].Tags.Passthrough())
	assert.True(t, nb.Cells[0].Tags.Empty())

	assert.Equal(t, "assert True\n", nb.Cells[1].Source())
	assert.Equal(t, []string{"test"}, nb.SkipList())
	assert.Equal(t, "Flash unit", nb.Title())
}

func TestParse_FormatErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		cell int
	}{
		{"not json", `{`, -1},
		{"array document", `[]`, -1},
		{"missing cells", `{"metadata": {}}`, -1},
		{"cells not a list", `{"cells": {"a": 1}}`, -1},
		{"cells null", `{"cells": null}`, -1},
		{"cell not object", `{"cells": [1]}`, 0},
		{"missing cell type", `{"cells": [{"source": ""}]}`, 0},
		{"bad cell type", `{"cells": [{"cell_type": "markdown"}, {"cell_type": "widget"}]}`, 1},
		{"tags not strings", `{"cells": [{"cell_type": "code", "metadata": {"tags": [1]}}]}`, 0},
		{"bad source", `{"cells": [{"cell_type": "code", "source": 7}]}`, 0},
		{"bad skip", `{"cells": [], "metadata": {"idaes": {"skip": "test"}}}`, -1},
		{"metadata not object", `{"cells": [], "metadata": []}`, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			var fe *FormatError
			require.True(t, errors.As(err, &fe), "expected FormatError, got %v", err)
			assert.Equal(t, tt.cell, fe.Cell)
		})
	}
}

func TestMarshal_Deterministic(t *testing.T) {
	nb, err := Parse([]byte(sampleNotebook))
	require.NoError(t, err)

	first, err := nb.Marshal()
	require.NoError(t, err)
	again, err := Parse(first)
	require.NoError(t, err)
	second, err := again.Marshal()
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
	assert.Contains(t, string(first), "<b>text</b>", "HTML must not be escaped")
	assert.Equal(t, byte('\n'), first[len(first)-1])

	// unknown fields survive
	var top map[string]any
	require.NoError(t, json.Unmarshal(first, &top))
	assert.EqualValues(t, 5, top["nbformat_minor"])
	cells := top["cells"].([]any)
	assert.Equal(t, "a1", cells[1].(map[string]any)["id"])
}

func TestSetSourceLines_KeepsShape(t *testing.T) {
	nb, err := Parse([]byte(sampleNotebook))
	require.NoError(t, err)

	nb.Cells[0].SetSourceLines([]string{"# New\n"})
	raw, _ := nb.Cells[0].Field("source")
	assert.JSONEq(t, `["# New\n"]`, string(raw))

	nb.Cells[1].SetSourceLines([]string{"x = 1\n", "y = 2"})
	raw, _ = nb.Cells[1].Field("source")
	assert.JSONEq(t, `"x = 1\ny = 2"`, string(raw))
	assert.Equal(t, []string{"x = 1\n", "y = 2"}, nb.Cells[1].SourceLines())
}

func TestCloneIsIndependent(t *testing.T) {
	nb, err := Parse([]byte(sampleNotebook))
	require.NoError(t, err)

	c := nb.Cells[1].Clone()
	c.SetExecution(json.RawMessage(`[{"output_type":"stream"}]`), json.RawMessage(`3`))
	assert.JSONEq(t, `[]`, string(nb.Cells[1].Outputs()))
	assert.JSONEq(t, `3`, string(c.ExecutionCount()))
}

func TestSetSkipList(t *testing.T) {
	nb, err := Parse([]byte(`{"cells": [], "metadata": {"kernelspec": {"name": "python3"}}}`))
	require.NoError(t, err)
	assert.False(t, nb.HasIDAESMetadata())

	require.NoError(t, nb.SetSkipList([]string{"test", "usr"}))
	assert.True(t, nb.HasIDAESMetadata())
	assert.Equal(t, []string{"test", "usr"}, nb.SkipList())

	raw, _ := nb.Field("metadata")
	assert.Contains(t, string(raw), "kernelspec")
}

func TestTagSet(t *testing.T) {
	s := NewTagSet("auto", "Auto", "custom", "auto")
	assert.True(t, s.Has(TagAuto))
	assert.False(t, s.Has(TagNoAuto))
	assert.Equal(t, []string{"Auto", "custom"}, s.Passthrough(), "tags are case-sensitive")
	assert.Equal(t, []string{"auto", "Auto", "custom"}, s.Names())
	assert.True(t, s.HasAny(TagAuto|TagTesting))
}

func TestVariantNaming(t *testing.T) {
	src := filepath.Join("nb", "flash_src.ipynb")
	assert.Equal(t, filepath.Join("nb", "flash_test.ipynb"), VariantPath(src, Test))
	assert.Equal(t, filepath.Join("nb", "flash_usr.ipynb"), VariantPath(src, User))
	assert.Equal(t, filepath.Join("nb", "flash_solution.ipynb"), VariantPath(src, Solution))

	base, ok := SourceBase(src)
	assert.True(t, ok)
	assert.Equal(t, "flash", base)
	_, ok = SourceBase("flash_doc.ipynb")
	assert.False(t, ok)

	for _, name := range []string{"user", "usr"} {
		v, err := ParseVariant(name)
		require.NoError(t, err)
		assert.Equal(t, User, v)
	}
	_, err := ParseVariant("docs")
	assert.Error(t, err)
}

func TestWriteFile_Atomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x_doc.ipynb")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	nb, err := Parse([]byte(sampleNotebook))
	require.NoError(t, err)
	require.NoError(t, WriteFile(path, nb))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, got.Cells, 3)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestReadFile_FormatErrorCarriesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad_src.ipynb")
	require.NoError(t, os.WriteFile(path, []byte(`{"cells": "nope"}`), 0o644))

	_, err := ReadFile(path)
	var fe *FormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, path, fe.Path)
	assert.Contains(t, err.Error(), "bad_src.ipynb")
}

func TestNewCell(t *testing.T) {
	c := NewCell(CellCode, "print(1)\n", "noauto")
	assert.True(t, c.Tags.Has(TagNoAuto))
	assert.JSONEq(t, `[]`, string(c.Outputs()))

	data, err := json.Marshal(c)
	require.NoError(t, err)
	reparsed, err := parseCell(data)
	require.NoError(t, err)
	assert.True(t, reparsed.Tags.Has(TagNoAuto))
	assert.Equal(t, "print(1)\n", reparsed.Source())
}
