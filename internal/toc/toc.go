// Package toc reads the Jupyter Book table of contents and walks it to find
// the source notebooks of the collection.
//
// Field names (format, root, parts, caption, chapters, file, sections) are
// those of the documentation site generator and must not change.
package toc

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"nbprep/internal/notebook"
)

// TOC is a parsed _toc.yml.
type TOC struct {
	Format   string  `yaml:"format,omitempty"`
	Root     string  `yaml:"root,omitempty"`
	Parts    []*Part `yaml:"parts,omitempty"`
	Chapters []*Node `yaml:"chapters,omitempty"` // books without parts
}

// Part is a captioned group of chapters.
type Part struct {
	Caption  string  `yaml:"caption,omitempty"`
	Chapters []*Node `yaml:"chapters"`
}

// Node is a chapter or section: a file reference with optional sections.
type Node struct {
	File     string  `yaml:"file,omitempty"`
	Title    string  `yaml:"title,omitempty"`
	Sections []*Node `yaml:"sections,omitempty"`
}

// StructureError reports a malformed table of contents.
type StructureError struct {
	Node   string // e.g. "parts[0].chapters[2].sections[1]"
	Reason string
}

func (e *StructureError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("table of contents: %s", e.Reason)
	}
	return fmt.Sprintf("table of contents: %s: %s", e.Node, e.Reason)
}

// NotFoundError reports a referenced source notebook that does not exist.
type NotFoundError struct {
	File string // reference in the table of contents
	Path string // expected source notebook path
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("could not find notebook for %q at: %s", e.File, e.Path)
}

// Load reads and parses a table of contents file. A missing file is
// returned wrapped so errors.Is(err, os.ErrNotExist) holds; parse problems
// come back as *StructureError.
func Load(path string) (*TOC, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read table of contents: %w", err)
	}
	return Parse(data)
}

// Parse decodes table-of-contents YAML.
func Parse(data []byte) (*TOC, error) {
	var t TOC
	if err := yaml.Unmarshal(data, &t); err != nil {
		var te *yaml.TypeError
		if errors.As(err, &te) {
			return nil, &StructureError{Reason: fmt.Sprintf("unexpected structure: %v", te.Errors)}
		}
		return nil, &StructureError{Reason: err.Error()}
	}
	return &t, nil
}

// Validate checks every node for a file reference without touching the
// filesystem, so a run can refuse a corrupt map before doing any work.
func (t *TOC) Validate() error {
	var firstErr error
	t.walk(func(path string, n *Node) bool {
		if n == nil || n.File == "" {
			firstErr = &StructureError{Node: path, Reason: "missing required \"file\" key"}
			return false
		}
		return true
	})
	return firstErr
}

// walk visits nodes depth-first in document order: each part's chapters,
// each chapter before its sections. It stops when fn returns false.
func (t *TOC) walk(fn func(path string, n *Node) bool) {
	var visit func(path string, n *Node) bool
	visit = func(path string, n *Node) bool {
		if !fn(path, n) {
			return false
		}
		for i, s := range n.Sections {
			if !visit(fmt.Sprintf("%s.sections[%d]", path, i), s) {
				return false
			}
		}
		return true
	}
	for pi, p := range t.Parts {
		if p == nil {
			continue
		}
		for ci, c := range p.Chapters {
			if !visit(fmt.Sprintf("parts[%d].chapters[%d]", pi, ci), c) {
				return
			}
		}
	}
	for ci, c := range t.Chapters {
		if !visit(fmt.Sprintf("chapters[%d]", ci), c) {
			return
		}
	}
}

// Save writes the table of contents as YAML, atomically.
func (t *TOC) Save(path string) error {
	data, err := t.Marshal()
	if err != nil {
		return err
	}
	return notebook.WriteFileAtomic(path, data, 0o644)
}

// Marshal encodes the table of contents with a two-space indent.
func (t *TOC) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return nil, fmt.Errorf("encode table of contents: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
