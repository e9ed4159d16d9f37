package notebook

import "sort"

// Tag is one of the cell tags that drive variant derivation. Tags outside
// this vocabulary are kept on the cell but never affect derivation.
type Tag uint8

const (
	TagTesting Tag = 1 << iota
	TagExercise
	TagSolution
	TagNoAuto
	TagAuto
)

var tagNames = map[Tag]string{
	TagTesting:  "testing",
	TagExercise: "exercise",
	TagSolution: "solution",
	TagNoAuto:   "noauto",
	TagAuto:     "auto",
}

// AllTags lists the vocabulary in a fixed order.
var AllTags = []Tag{TagTesting, TagExercise, TagSolution, TagNoAuto, TagAuto}

func (t Tag) String() string {
	if s, ok := tagNames[t]; ok {
		return s
	}
	return "unknown"
}

// ParseTag maps a tag string to the vocabulary. Matching is case-sensitive.
func ParseTag(s string) (Tag, bool) {
	for t, name := range tagNames {
		if name == s {
			return t, true
		}
	}
	return 0, false
}

// TagSet is the deduplicated set of tags on a cell: known tags as a bitmask
// plus unrecognized tags as passthrough strings.
type TagSet struct {
	known       Tag
	passthrough []string
}

// NewTagSet builds a set from raw tag strings.
func NewTagSet(tags ...string) TagSet {
	var s TagSet
	seen := map[string]bool{}
	for _, name := range tags {
		if seen[name] {
			continue
		}
		seen[name] = true
		if t, ok := ParseTag(name); ok {
			s.known |= t
		} else {
			s.passthrough = append(s.passthrough, name)
		}
	}
	sort.Strings(s.passthrough)
	return s
}

// Has reports whether the set contains t.
func (s TagSet) Has(t Tag) bool { return s.known&t != 0 }

// HasAny reports whether the set contains any tag in mask.
func (s TagSet) HasAny(mask Tag) bool { return s.known&mask != 0 }

// Known returns the known tags of the set as a mask.
func (s TagSet) Known() Tag { return s.known }

// Passthrough returns the unrecognized tags, sorted.
func (s TagSet) Passthrough() []string { return s.passthrough }

// Empty reports whether the set has no tags at all.
func (s TagSet) Empty() bool { return s.known == 0 && len(s.passthrough) == 0 }

// Names returns every tag in the set, vocabulary first.
func (s TagSet) Names() []string {
	var out []string
	for _, t := range AllTags {
		if s.Has(t) {
			out = append(out, t.String())
		}
	}
	return append(out, s.Passthrough()...)
}
