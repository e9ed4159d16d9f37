// Package derive turns one source notebook into its purpose-specific
// variants by dropping cells according to their tags.
//
// Rules, per variant (a cell is dropped when it carries any listed tag):
//
//	test      exercise, noauto
//	doc       testing, noauto, exercise (kept if also tagged solution)
//	exercise  testing, solution, auto
//	solution  testing, auto
//	user      testing, auto
//
// Untagged cells are kept everywhere. The exercise and solution variants
// exist only for tutorial notebooks, those with at least one exercise or
// solution cell.
package derive

import "nbprep/internal/notebook"

// dropTags is the rule table.
var dropTags = map[notebook.Variant]notebook.Tag{
	notebook.Test:     notebook.TagExercise | notebook.TagNoAuto,
	notebook.Doc:      notebook.TagTesting | notebook.TagNoAuto | notebook.TagExercise,
	notebook.Exercise: notebook.TagTesting | notebook.TagSolution | notebook.TagAuto,
	notebook.Solution: notebook.TagTesting | notebook.TagAuto,
	notebook.User:     notebook.TagTesting | notebook.TagAuto,
}

// Keep reports whether a cell with tags belongs in variant v.
func Keep(v notebook.Variant, tags notebook.TagSet) bool {
	drop := dropTags[v]
	if v == notebook.Doc && tags.Has(notebook.TagSolution) {
		// worked solutions are shown in the docs alongside their exercise
		drop &^= notebook.TagExercise
	}
	return tags.Known()&drop == 0
}

// IsTutorial reports whether any cell carries an exercise or solution tag.
func IsTutorial(src *notebook.Notebook) bool {
	for _, c := range src.Cells {
		if c.Tags.HasAny(notebook.TagExercise | notebook.TagSolution) {
			return true
		}
	}
	return false
}

// Produced lists the variants a notebook yields before any skip list is
// applied, in generation order.
func Produced(src *notebook.Notebook) []notebook.Variant {
	out := []notebook.Variant{notebook.Test, notebook.Doc, notebook.User}
	if IsTutorial(src) {
		out = append(out, notebook.Exercise, notebook.Solution)
	}
	return out
}
