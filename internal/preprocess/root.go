package preprocess

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"nbprep/internal/logging"
	"nbprep/internal/notebook"
	"nbprep/internal/toc"
)

// ErrNoNotebooks is returned when the notebook directory or its table of
// contents cannot be found.
var ErrNoNotebooks = errors.New("notebook collection not found")

// Layout names the pieces of a notebook collection relative to its root.
type Layout struct {
	NotebooksDir string // name of the notebook root directory, e.g. "notebooks"
	TOCFile      string // table of contents file in the notebook root
	DevDir       string // directory of work-in-progress sources in the notebook root
}

// DefaultLayout is the conventional collection layout.
var DefaultLayout = Layout{NotebooksDir: "notebooks", TOCFile: "_toc.yml", DevDir: "_dev"}

func (l Layout) withDefaults() Layout {
	if l.NotebooksDir == "" {
		l.NotebooksDir = DefaultLayout.NotebooksDir
	}
	if l.TOCFile == "" {
		l.TOCFile = DefaultLayout.TOCFile
	}
	if l.DevDir == "" {
		l.DevDir = DefaultLayout.DevDir
	}
	return l
}

// ResolveRoot finds the notebook root starting from dir, which may be the
// notebook root itself, its parent, or a repository root one level above
// that (dir/<package>/notebooks).
func ResolveRoot(dir string, layout Layout) (string, error) {
	layout = layout.withDefaults()
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	candidates := []string{filepath.Join(abs, layout.NotebooksDir), abs}
	if subdirs, err := os.ReadDir(abs); err == nil {
		names := make([]string, 0, len(subdirs))
		for _, d := range subdirs {
			if d.IsDir() {
				names = append(names, d.Name())
			}
		}
		sort.Strings(names)
		for _, name := range names {
			candidates = append(candidates, filepath.Join(abs, name, layout.NotebooksDir))
		}
	}

	for _, c := range candidates {
		if isFile(filepath.Join(c, layout.TOCFile)) {
			logging.DiscoverDebug("notebook root: %s", c)
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: no %s under %s", ErrNoNotebooks, filepath.Join(layout.NotebooksDir, layout.TOCFile), abs)
}

// Collection is an opened notebook collection.
type Collection struct {
	Root   string
	TOC    *toc.TOC
	Layout Layout
}

// Open resolves the notebook root from dir and loads its table of contents.
func Open(dir string, layout Layout) (*Collection, error) {
	layout = layout.withDefaults()
	root, err := ResolveRoot(dir, layout)
	if err != nil {
		return nil, err
	}
	t, err := toc.Load(filepath.Join(root, layout.TOCFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrNoNotebooks, err)
		}
		return nil, err
	}
	return &Collection{Root: root, TOC: t, Layout: layout}, nil
}

// TOCPath returns the path of the table of contents file.
func (c *Collection) TOCPath() string {
	return filepath.Join(c.Root, c.Layout.TOCFile)
}

// DevSources returns the source notebooks in the dev directory, sorted.
func (c *Collection) DevSources() ([]toc.Entry, error) {
	dir := filepath.Join(c.Root, c.Layout.DevDir)
	matches, err := filepath.Glob(filepath.Join(dir, "*"+notebook.SourceSuffix+notebook.Ext))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	entries := make([]toc.Entry, 0, len(matches))
	for _, m := range matches {
		base, _ := notebook.SourceBase(m)
		entries = append(entries, toc.Entry{
			Node:   c.Layout.DevDir,
			File:   filepath.ToSlash(filepath.Join(c.Layout.DevDir, base+notebook.DocSuffix)),
			Dir:    dir,
			Base:   base,
			Source: m,
		})
	}
	return entries, nil
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
