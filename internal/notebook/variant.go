package notebook

import (
	"fmt"
	"path/filepath"
	"strings"
)

// File naming conventions shared with the test runner and the site generator.
const (
	Ext          = ".ipynb"
	SourceSuffix = "_src"
	DocSuffix    = "_doc"
)

// Variant is a purpose-specific notebook derived from a source notebook.
type Variant int

const (
	Test Variant = iota
	Doc
	Exercise
	Solution
	User
)

// Variants lists every variant kind in generation order.
var Variants = []Variant{Test, Doc, User, Exercise, Solution}

var variantNames = [...]string{
	Test:     "test",
	Doc:      "doc",
	Exercise: "exercise",
	Solution: "solution",
	User:     "user",
}

var variantSuffixes = [...]string{
	Test:     "_test",
	Doc:      "_doc",
	Exercise: "_exercise",
	Solution: "_solution",
	User:     "_usr",
}

func (v Variant) String() string {
	if v < 0 || int(v) >= len(variantNames) {
		return fmt.Sprintf("variant(%d)", int(v))
	}
	return variantNames[v]
}

// Suffix returns the file-name suffix of the variant, e.g. "_usr".
func (v Variant) Suffix() string {
	if v < 0 || int(v) >= len(variantSuffixes) {
		return ""
	}
	return variantSuffixes[v]
}

// ParseVariant accepts a variant name or its suffix form without the
// underscore ("usr" is the same as "user").
func ParseVariant(s string) (Variant, error) {
	for i, name := range variantNames {
		if s == name || s == variantSuffixes[i][1:] {
			return Variant(i), nil
		}
	}
	return 0, fmt.Errorf("unknown variant %q", s)
}

// SourceBase returns the base name of a source notebook path without the
// source suffix and extension: "dir/flash_src.ipynb" gives "flash".
func SourceBase(path string) (string, bool) {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, SourceSuffix+Ext) {
		return "", false
	}
	return strings.TrimSuffix(name, SourceSuffix+Ext), true
}

// SourcePath returns the source notebook path for a base name in dir.
func SourcePath(dir, base string) string {
	return filepath.Join(dir, base+SourceSuffix+Ext)
}

// VariantPath returns the path of variant v next to the source notebook.
func VariantPath(sourcePath string, v Variant) string {
	base, ok := SourceBase(sourcePath)
	if !ok {
		base = strings.TrimSuffix(filepath.Base(sourcePath), Ext)
	}
	return filepath.Join(filepath.Dir(sourcePath), base+v.Suffix()+Ext)
}
