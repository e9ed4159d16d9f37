package toc

import (
	"errors"
	"iter"
	"os"
	"path"
	"path/filepath"
	"strings"

	"nbprep/internal/logging"
	"nbprep/internal/notebook"
)

// Entry is one notebook referenced by the table of contents.
type Entry struct {
	Node   string // position in the table of contents
	File   string // file reference as written, e.g. "flowsheets/hda_doc"
	Dir    string // absolute directory holding the notebook
	Base   string // base name without suffix, e.g. "hda"
	Source string // absolute path of the source notebook
}

// Discover lazily walks t and yields one entry per notebook reference, in
// document order. References to files that are not notebook docs (landing
// pages such as "index") are skipped.
//
// A missing source notebook yields the entry together with a *NotFoundError
// and the walk continues. A node without a file reference yields a
// *StructureError and the walk ends.
func Discover(t *TOC, root string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			yield(Entry{}, err)
			return
		}
		t.walk(func(node string, n *Node) bool {
			if n == nil || n.File == "" {
				yield(Entry{Node: node}, &StructureError{Node: node, Reason: "missing required \"file\" key"})
				return false
			}
			e, ok := entryFor(absRoot, node, n.File)
			if !ok {
				logging.DiscoverDebug("not a notebook reference: %s", n.File)
				return true
			}
			if _, err := os.Stat(e.Source); err != nil {
				logging.Discover("could not find notebook at: %s", e.Source)
				return yield(e, &NotFoundError{File: n.File, Path: e.Source})
			}
			logging.DiscoverDebug("found notebook at: %s", e.Source)
			return yield(e, nil)
		})
	}
}

// entryFor maps a file reference to its source notebook. References are
// slash-separated and may carry a .ipynb or .md extension.
func entryFor(absRoot, node, file string) (Entry, bool) {
	ref := file
	if ext := path.Ext(file); ext == notebook.Ext || ext == ".md" {
		ref = strings.TrimSuffix(file, ext)
	}
	name := path.Base(ref)
	if !strings.HasSuffix(name, notebook.DocSuffix) || name == notebook.DocSuffix {
		return Entry{}, false
	}
	base := strings.TrimSuffix(name, notebook.DocSuffix)
	dir := filepath.Join(absRoot, filepath.FromSlash(path.Dir(ref)))
	return Entry{
		Node:   node,
		File:   file,
		Dir:    dir,
		Base:   base,
		Source: notebook.SourcePath(dir, base),
	}, true
}

// Sources collects the source paths of all existing notebooks. Missing
// notebooks are returned separately; a structure error ends collection.
func Sources(t *TOC, root string) (found []Entry, missing []*NotFoundError, err error) {
	for e, derr := range Discover(t, root) {
		if derr == nil {
			found = append(found, e)
			continue
		}
		var nf *NotFoundError
		if errors.As(derr, &nf) {
			missing = append(missing, nf)
			continue
		}
		return found, missing, derr
	}
	return found, missing, nil
}
