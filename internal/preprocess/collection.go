package preprocess

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"nbprep/internal/logging"
	"nbprep/internal/notebook"
	"nbprep/internal/toc"
)

// Sources returns the existing source notebooks of the collection in
// discovery order, followed by dev sources when dev is set.
func (c *Collection) Sources(dev bool) ([]toc.Entry, error) {
	found, missing, err := toc.Sources(c.TOC, c.Root)
	if err != nil {
		return found, err
	}
	for _, nf := range missing {
		logging.Discover("could not find notebook at: %s", nf.Path)
	}
	if dev {
		devs, err := c.DevSources()
		if err != nil {
			return found, err
		}
		found = append(found, devs...)
	}
	return found, nil
}

// Clean removes every derived file of the collection's source notebooks and
// returns the removed paths.
func (c *Collection) Clean(dev bool) ([]string, error) {
	entries, err := c.Sources(dev)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, e := range entries {
		for _, v := range notebook.Variants {
			p := notebook.VariantPath(e.Source, v)
			err := os.Remove(p)
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			if err != nil {
				return removed, fmt.Errorf("remove generated file: %w", err)
			}
			logging.PreprocessDebug("remove generated file '%s'", p)
			removed = append(removed, p)
		}
	}
	return removed, nil
}

// Skipped maps each source notebook with a non-empty skip list to its
// sorted skip entries. Unreadable notebooks are logged and left out.
func (c *Collection) Skipped() (map[string][]string, error) {
	entries, err := c.Sources(false)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string)
	for _, e := range entries {
		nb, err := notebook.ReadFile(e.Source)
		if err != nil {
			logging.Get(logging.CategoryPreprocess).Warn("%v", err)
			continue
		}
		if skip := nb.SkipList(); len(skip) > 0 {
			sorted := append([]string(nil), skip...)
			sort.Strings(sorted)
			out[e.Source] = sorted
		}
	}
	return out, nil
}

// Listing describes one notebook of the collection.
type Listing struct {
	Entry    toc.Entry
	Title    string
	Variants []notebook.Variant // derived files present on disk
	Err      error              // set when the source could not be read
}

// List returns a listing of the collection's source notebooks.
func (c *Collection) List(dev bool) ([]Listing, error) {
	entries, err := c.Sources(dev)
	if err != nil {
		return nil, err
	}
	out := make([]Listing, 0, len(entries))
	for _, e := range entries {
		l := Listing{Entry: e}
		if nb, err := notebook.ReadFile(e.Source); err != nil {
			l.Err = err
		} else {
			l.Title = nb.Title()
		}
		for _, v := range notebook.Variants {
			if isFile(notebook.VariantPath(e.Source, v)) {
				l.Variants = append(l.Variants, v)
			}
		}
		out = append(out, l)
	}
	return out, nil
}

// SkipAction is an edit applied to a notebook's skip list.
type SkipAction string

const (
	SkipAdd    SkipAction = "add"
	SkipRemove SkipAction = "remove"
	SkipShow   SkipAction = "show"
)

var skipActions = []SkipAction{SkipAdd, SkipRemove, SkipShow}

// ParseSkipAction accepts any unambiguous prefix of an action name.
func ParseSkipAction(s string) (SkipAction, error) {
	s = strings.ToLower(s)
	var matches []SkipAction
	for _, a := range skipActions {
		if s != "" && strings.HasPrefix(string(a), s) {
			matches = append(matches, a)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("action %q not recognized", s)
	case 1:
		return matches[0], nil
	}
	return "", fmt.Errorf("action %q is ambiguous", s)
}

// EditSkip applies action to the skip list of the source notebook at path
// and returns the resulting list. The file is rewritten only when the list
// changed. Removing from a notebook without an idaes section is a no-op.
func EditSkip(path string, action SkipAction, kinds []string) (skip []string, changed bool, err error) {
	for _, k := range kinds {
		if _, err := notebook.ParseVariant(k); err != nil {
			return nil, false, err
		}
	}
	nb, err := notebook.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	current := nb.SkipList()
	if action == SkipShow {
		return current, false, nil
	}
	if action == SkipRemove && !nb.HasIDAESMetadata() {
		return current, false, nil
	}

	set := make(map[string]bool, len(current)+len(kinds))
	for _, k := range current {
		set[k] = true
	}
	for _, k := range kinds {
		switch action {
		case SkipAdd:
			set[k] = true
		case SkipRemove:
			delete(set, k)
		default:
			return nil, false, fmt.Errorf("unknown skip action %q", action)
		}
	}
	next := make([]string, 0, len(set))
	for k := range set {
		next = append(next, k)
	}
	sort.Strings(next)

	if sameSet(current, next) && nb.HasIDAESMetadata() {
		return current, false, nil
	}
	if err := nb.SetSkipList(next); err != nil {
		return nil, false, err
	}
	if err := notebook.WriteFile(path, nb); err != nil {
		return nil, false, err
	}
	logging.Preprocess("updated skip list of %s: %v", path, next)
	return next, true, nil
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			return false
		}
	}
	return true
}
