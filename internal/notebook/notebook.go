// Package notebook models Jupyter notebook documents as far as the variant
// pipeline needs them: an ordered cell list with per-cell tags and a
// notebook-level metadata mapping. Everything else in the file is carried
// through untouched.
package notebook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Top-level and metadata keys of the notebook format.
const (
	KeyCells    = "cells"
	KeyMetadata = "metadata"
	KeyIDAES    = "idaes"
	KeySkip     = "skip"

	keyCellType       = "cell_type"
	keySource         = "source"
	keyTags           = "tags"
	keyOutputs        = "outputs"
	keyExecutionCount = "execution_count"
)

// CellType is the kind of a notebook cell.
type CellType string

const (
	CellMarkdown CellType = "markdown"
	CellCode     CellType = "code"
	CellRaw      CellType = "raw"
)

func (t CellType) valid() bool {
	switch t {
	case CellMarkdown, CellCode, CellRaw:
		return true
	}
	return false
}

// Cell is one notebook cell. Fields the pipeline does not interpret (ids,
// attachments, outputs) stay in the raw field map and are written back as-is.
type Cell struct {
	Type CellType
	Tags TagSet

	fields map[string]json.RawMessage
}

// Notebook is a parsed notebook document.
type Notebook struct {
	Cells []*Cell

	// every top-level key except "cells"
	fields map[string]json.RawMessage
}

// Parse decodes a notebook document. Structural problems are reported as
// *FormatError; the returned notebook is never partially populated.
func Parse(data []byte) (*Notebook, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, &FormatError{Cell: -1, Reason: fmt.Sprintf("not a JSON object: %v", err)}
	}
	if top == nil {
		return nil, &FormatError{Cell: -1, Reason: "document is null"}
	}

	rawCells, ok := top[KeyCells]
	if !ok {
		return nil, &FormatError{Cell: -1, Reason: "missing \"cells\""}
	}
	var cellList []json.RawMessage
	if err := json.Unmarshal(rawCells, &cellList); err != nil || cellList == nil {
		return nil, &FormatError{Cell: -1, Reason: "\"cells\" is not a list"}
	}

	if raw, ok := top[KeyMetadata]; ok && !isObject(raw) {
		return nil, &FormatError{Cell: -1, Reason: "notebook \"metadata\" is not an object"}
	}

	nb := &Notebook{
		Cells:  make([]*Cell, 0, len(cellList)),
		fields: make(map[string]json.RawMessage, len(top)),
	}
	for k, v := range top {
		if k != KeyCells {
			nb.fields[k] = v
		}
	}
	for i, raw := range cellList {
		c, err := parseCell(raw)
		if err != nil {
			return nil, &FormatError{Cell: i, Reason: err.Error()}
		}
		nb.Cells = append(nb.Cells, c)
	}
	if _, err := nb.skipNames(); err != nil {
		return nil, &FormatError{Cell: -1, Reason: err.Error()}
	}
	return nb, nil
}

func parseCell(raw json.RawMessage) (*Cell, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("cell is not an object")
	}
	var ct string
	if err := json.Unmarshal(fields[keyCellType], &ct); err != nil {
		return nil, fmt.Errorf("missing or invalid \"cell_type\"")
	}
	c := &Cell{Type: CellType(ct), fields: fields}
	if !c.Type.valid() {
		return nil, fmt.Errorf("unknown cell_type %q", ct)
	}
	if src, ok := fields[keySource]; ok {
		if _, err := decodeSource(src); err != nil {
			return nil, err
		}
	}

	meta, ok := fields[KeyMetadata]
	if !ok {
		return c, nil
	}
	var metaFields map[string]json.RawMessage
	if err := json.Unmarshal(meta, &metaFields); err != nil {
		return nil, fmt.Errorf("cell \"metadata\" is not an object")
	}
	if rawTags, ok := metaFields[keyTags]; ok {
		var tags []string
		if err := json.Unmarshal(rawTags, &tags); err != nil {
			return nil, fmt.Errorf("cell tags are not a list of strings")
		}
		c.Tags = NewTagSet(tags...)
	}
	return c, nil
}

// decodeSource accepts both on-disk shapes of a cell body: a single string
// or a list of line strings.
func decodeSource(raw json.RawMessage) ([]string, error) {
	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		return lines, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("cell \"source\" is neither a string nor a list of strings")
	}
	return splitLines(s), nil
}

// splitLines splits text into lines keeping the trailing newline on each,
// which is how the notebook format stores multi-line sources.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for len(s) > 0 {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			out = append(out, s)
			break
		}
		out = append(out, s[:i+1])
		s = s[i+1:]
	}
	return out
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

// SourceLines returns the cell body split into lines.
func (c *Cell) SourceLines() []string {
	lines, _ := decodeSource(c.fields[keySource])
	return lines
}

// Source returns the cell body as one string.
func (c *Cell) Source() string {
	return strings.Join(c.SourceLines(), "")
}

// SetSourceLines replaces the cell body, keeping the on-disk shape (string
// or list) the cell had before.
func (c *Cell) SetSourceLines(lines []string) {
	if lines == nil {
		lines = []string{}
	}
	var (
		raw []byte
		err error
	)
	if prev := bytes.TrimSpace(c.fields[keySource]); len(prev) > 0 && prev[0] == '"' {
		raw, err = json.Marshal(strings.Join(lines, ""))
	} else {
		raw, err = json.Marshal(lines)
	}
	if err == nil {
		c.fields[keySource] = raw
	}
}

// Field returns a raw cell field such as "outputs" or "id".
func (c *Cell) Field(key string) (json.RawMessage, bool) {
	v, ok := c.fields[key]
	return v, ok
}

// SetField sets a raw cell field.
func (c *Cell) SetField(key string, value json.RawMessage) {
	c.fields[key] = value
}

// Outputs returns the raw outputs of a code cell, or nil.
func (c *Cell) Outputs() json.RawMessage { return c.fields[keyOutputs] }

// ExecutionCount returns the raw execution count of a code cell, or nil.
func (c *Cell) ExecutionCount() json.RawMessage { return c.fields[keyExecutionCount] }

// SetExecution copies execution results into a code cell.
func (c *Cell) SetExecution(outputs, executionCount json.RawMessage) {
	if outputs != nil {
		c.fields[keyOutputs] = outputs
	}
	if executionCount != nil {
		c.fields[keyExecutionCount] = executionCount
	}
}

// Clone returns a copy of the cell that can be edited without affecting the
// original. Raw field values are immutable and are shared.
func (c *Cell) Clone() *Cell {
	fields := make(map[string]json.RawMessage, len(c.fields))
	for k, v := range c.fields {
		fields[k] = v
	}
	return &Cell{Type: c.Type, Tags: c.Tags, fields: fields}
}

// MarshalJSON writes the cell with all of its original fields.
func (c *Cell) MarshalJSON() ([]byte, error) {
	return marshalMap(c.fields)
}

// NewCell builds a cell from scratch, used when generating new notebooks.
func NewCell(t CellType, source string, tags ...string) *Cell {
	c := &Cell{Type: t, Tags: NewTagSet(tags...), fields: map[string]json.RawMessage{}}
	c.fields[keyCellType], _ = json.Marshal(string(t))
	meta := map[string]any{}
	if len(tags) > 0 {
		meta[keyTags] = tags
	}
	c.fields[KeyMetadata], _ = json.Marshal(meta)
	c.SetSourceLines(splitLines(source))
	if t == CellCode {
		c.fields[keyOutputs] = json.RawMessage("[]")
		c.fields[keyExecutionCount] = json.RawMessage("null")
	}
	return c
}

// New returns an empty notebook with the given top-level fields.
func New(fields map[string]json.RawMessage) *Notebook {
	f := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		if k != KeyCells {
			f[k] = v
		}
	}
	return &Notebook{fields: f}
}

// WithCells returns a notebook sharing this notebook's top-level fields but
// holding the given cells.
func (nb *Notebook) WithCells(cells []*Cell) *Notebook {
	return &Notebook{Cells: cells, fields: nb.fields}
}

// Field returns a raw top-level field.
func (nb *Notebook) Field(key string) (json.RawMessage, bool) {
	v, ok := nb.fields[key]
	return v, ok
}

// SkipList returns the variant names listed under metadata.idaes.skip.
func (nb *Notebook) SkipList() []string {
	names, _ := nb.skipNames()
	return names
}

func (nb *Notebook) skipNames() ([]string, error) {
	meta, ok := nb.fields[KeyMetadata]
	if !ok {
		return nil, nil
	}
	var m struct {
		IDAES *struct {
			Skip json.RawMessage `json:"skip"`
		} `json:"idaes"`
	}
	if err := json.Unmarshal(meta, &m); err != nil {
		return nil, fmt.Errorf("metadata.idaes is not an object")
	}
	if m.IDAES == nil || m.IDAES.Skip == nil {
		return nil, nil
	}
	var names []string
	if err := json.Unmarshal(m.IDAES.Skip, &names); err != nil {
		return nil, fmt.Errorf("metadata.idaes.skip is not a list of strings")
	}
	return names, nil
}

// SetSkipList replaces metadata.idaes.skip. An empty list keeps the key with
// no entries, matching how the skip editor leaves notebooks.
func (nb *Notebook) SetSkipList(names []string) error {
	meta := map[string]json.RawMessage{}
	if raw, ok := nb.fields[KeyMetadata]; ok {
		if err := json.Unmarshal(raw, &meta); err != nil {
			return fmt.Errorf("decode metadata: %w", err)
		}
	}
	idaes := map[string]json.RawMessage{}
	if raw, ok := meta[KeyIDAES]; ok {
		if err := json.Unmarshal(raw, &idaes); err != nil {
			return fmt.Errorf("decode metadata.idaes: %w", err)
		}
	}
	if names == nil {
		names = []string{}
	}
	var err error
	if idaes[KeySkip], err = json.Marshal(names); err != nil {
		return err
	}
	if meta[KeyIDAES], err = marshalMap(idaes); err != nil {
		return err
	}
	nb.fields[KeyMetadata], err = marshalMap(meta)
	return err
}

// HasIDAESMetadata reports whether the notebook metadata has an "idaes" section.
func (nb *Notebook) HasIDAESMetadata() bool {
	raw, ok := nb.fields[KeyMetadata]
	if !ok {
		return false
	}
	var meta map[string]json.RawMessage
	if json.Unmarshal(raw, &meta) != nil {
		return false
	}
	_, ok = meta[KeyIDAES]
	return ok
}

// Title returns the text of the first markdown heading, or "".
func (nb *Notebook) Title() string {
	for _, c := range nb.Cells {
		if c.Type != CellMarkdown {
			continue
		}
		for _, line := range c.SourceLines() {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "#") {
				return strings.TrimSpace(strings.TrimLeft(line, "#"))
			}
		}
	}
	return ""
}

// Marshal encodes the notebook. Output is pretty-printed with a one-space
// indent, sorted top-level keys and a trailing newline, so equal documents
// always encode to equal bytes.
func (nb *Notebook) Marshal() ([]byte, error) {
	top := make(map[string]any, len(nb.fields)+1)
	for k, v := range nb.fields {
		top[k] = v
	}
	cells := nb.Cells
	if cells == nil {
		cells = []*Cell{}
	}
	top[KeyCells] = cells

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", " ")
	if err := enc.Encode(top); err != nil {
		return nil, fmt.Errorf("encode notebook: %w", err)
	}
	return buf.Bytes(), nil
}

func marshalMap(m map[string]json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
