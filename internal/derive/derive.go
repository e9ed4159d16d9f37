package derive

import (
	"fmt"
	"regexp"

	"nbprep/internal/logging"
	"nbprep/internal/notebook"
)

// Options tune derivation. The zero value gives plain cell filtering.
type Options struct {
	// RewriteLinks rewrites references to other source notebooks
	// ("name_src.ipynb") in retained cells so they point at the sibling
	// variant of the same kind. Rewritten cells are copies; the source
	// notebook is never modified.
	RewriteLinks bool
}

// Deriver computes the variants of source notebooks.
type Deriver struct {
	opts Options
}

// New returns a Deriver with the given options.
func New(opts Options) *Deriver {
	return &Deriver{opts: opts}
}

// Derive returns the variant notebooks of src, keyed by kind. Kinds in skip
// are left out of the result. Each derived cell list is an order-preserving
// subsequence of the source cells.
func (d *Deriver) Derive(src *notebook.Notebook, skip []notebook.Variant) (map[notebook.Variant]*notebook.Notebook, error) {
	if err := Validate(src); err != nil {
		return nil, err
	}

	skipped := make(map[notebook.Variant]bool, len(skip))
	for _, v := range skip {
		skipped[v] = true
	}

	out := make(map[notebook.Variant]*notebook.Notebook)
	for _, v := range Produced(src) {
		if skipped[v] {
			logging.DeriveDebug("skip-listed variant %s", v)
			continue
		}
		cells := make([]*notebook.Cell, 0, len(src.Cells))
		for _, c := range src.Cells {
			if !Keep(v, c.Tags) {
				continue
			}
			if d.opts.RewriteLinks {
				c = rewriteLinks(c, v)
			}
			cells = append(cells, c)
		}
		out[v] = src.WithCells(cells)
		logging.DeriveDebug("variant %s keeps %d of %d cells", v, len(cells), len(src.Cells))
	}
	logging.Derive("derived %d variants from %d cells", len(out), len(src.Cells))
	return out, nil
}

// Derive is a convenience wrapper using default options.
func Derive(src *notebook.Notebook, skip []notebook.Variant) (map[notebook.Variant]*notebook.Notebook, error) {
	return New(Options{}).Derive(src, skip)
}

// Validate rejects tag combinations the rule table cannot give a meaning to.
func Validate(src *notebook.Notebook) error {
	for i, c := range src.Cells {
		if c.Tags.Has(notebook.TagAuto) && c.Tags.Has(notebook.TagNoAuto) {
			return &notebook.FormatError{
				Cell:   i,
				Reason: fmt.Sprintf("cell is tagged both %q and %q", notebook.TagAuto, notebook.TagNoAuto),
			}
		}
	}
	return nil
}

// SkipList reads metadata.idaes.skip from src. Names that are not variant
// kinds are returned separately so callers can report them.
func SkipList(src *notebook.Notebook) (skip []notebook.Variant, unknown []string) {
	for _, name := range src.SkipList() {
		v, err := notebook.ParseVariant(name)
		if err != nil {
			unknown = append(unknown, name)
			continue
		}
		skip = append(skip, v)
	}
	return skip, unknown
}

// xrefPattern matches source-notebook file names inside cell text. File
// names are assumed to contain no spaces.
var xrefPattern = regexp.MustCompile(`([a-zA-Z0-9_\-:.+]+)` + notebook.SourceSuffix + `\.ipynb`)

func rewriteLinks(c *notebook.Cell, v notebook.Variant) *notebook.Cell {
	lines := c.SourceLines()
	changed := false
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = line
		if xrefPattern.MatchString(line) {
			out[i] = xrefPattern.ReplaceAllString(line, "${1}"+v.Suffix()+notebook.Ext)
			changed = true
		}
	}
	if !changed {
		return c
	}
	cp := c.Clone()
	cp.SetSourceLines(out)
	return cp
}
