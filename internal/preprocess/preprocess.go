// Package preprocess drives variant generation over a notebook collection:
// it discovers source notebooks through the table of contents, derives their
// variants, and writes the ones that are out of date.
package preprocess

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"nbprep/internal/cache"
	"nbprep/internal/derive"
	"nbprep/internal/logging"
	"nbprep/internal/notebook"
	"nbprep/internal/toc"
)

// Options configure a preprocessing run.
type Options struct {
	Dir    string // repository root, package directory or notebook root
	Layout Layout

	Dev          bool // also process sources in the dev directory
	Force        bool // regenerate even when variants are up to date
	Jobs         int  // concurrent sources; values below 2 mean sequential
	RewriteLinks bool

	// Cache supplies previous execution results for test variants. Nil
	// disables merging.
	Cache cache.Store
}

// Status is the outcome for one source notebook.
type Status int

const (
	// StatusPending marks a scheduled source that was never processed,
	// for example because the run was cancelled.
	StatusPending Status = iota
	StatusGenerated
	StatusUpToDate
	StatusNotFound
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusGenerated:
		return "generated"
	case StatusUpToDate:
		return "up to date"
	case StatusNotFound:
		return "not found"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Result describes what happened to one source notebook.
type Result struct {
	Entry    toc.Entry
	Status   Status
	Written  []string           // derived files written
	Removed  []string           // stale derived files removed
	Skipped  []notebook.Variant // kinds listed in the notebook's skip list
	CacheHit bool
	Err      error
}

// Report summarizes a run. Results are in discovery order.
type Report struct {
	Root     string
	Results  []*Result
	Duration time.Duration

	// StructureErr is set when discovery stopped at a malformed table of
	// contents node. Results found before that node are still reported.
	StructureErr error
}

// Count returns how many results have status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

// Failures returns the failed results.
func (r *Report) Failures() []*Result {
	var out []*Result
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			out = append(out, res)
		}
	}
	return out
}

// ExitCode is 1 when any notebook failed or the table of contents is
// malformed, otherwise 0. Missing notebooks do not count as failures.
func (r *Report) ExitCode() int {
	if r.StructureErr != nil || r.Count(StatusFailed) > 0 {
		return 1
	}
	return 0
}

// Runner runs preprocessing passes.
type Runner struct {
	opts    Options
	deriver *derive.Deriver
}

// NewRunner returns a Runner for opts.
func NewRunner(opts Options) *Runner {
	opts.Layout = opts.Layout.withDefaults()
	return &Runner{
		opts:    opts,
		deriver: derive.New(derive.Options{RewriteLinks: opts.RewriteLinks}),
	}
}

// Run performs one preprocessing pass. The returned error covers problems
// that prevent the pass from starting (no collection, unreadable table of
// contents); per-notebook problems are recorded in the report.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	coll, err := Open(r.opts.Dir, r.opts.Layout)
	if err != nil {
		return nil, err
	}
	return r.RunCollection(ctx, coll)
}

// RunCollection performs one pass over an already opened collection.
func (r *Runner) RunCollection(ctx context.Context, coll *Collection) (*Report, error) {
	timer := logging.StartTimer(logging.CategoryPreprocess, "preprocess")
	report := &Report{Root: coll.Root}

	g, gctx := errgroup.WithContext(ctx)
	if r.opts.Jobs > 1 {
		g.SetLimit(r.opts.Jobs)
	} else {
		g.SetLimit(1)
	}

	schedule := func(e toc.Entry) {
		res := &Result{Entry: e}
		report.Results = append(report.Results, res)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r.process(res)
			return nil
		})
	}

	for e, derr := range toc.Discover(coll.TOC, coll.Root) {
		if ctx.Err() != nil {
			break
		}
		if derr != nil {
			var nf *toc.NotFoundError
			if errors.As(derr, &nf) {
				report.Results = append(report.Results, &Result{Entry: e, Status: StatusNotFound, Err: derr})
				continue
			}
			logging.Get(logging.CategoryDiscover).Error("table of contents: %v", derr)
			report.StructureErr = derr
			break
		}
		schedule(e)
	}

	if r.opts.Dev && report.StructureErr == nil {
		devs, err := coll.DevSources()
		if err != nil {
			logging.Get(logging.CategoryPreprocess).Warn("scan dev directory: %v", err)
		}
		for _, e := range devs {
			schedule(e)
		}
	}

	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	report.Duration = timer.Stop()
	logging.Preprocess("preprocessed %d notebooks in %.1f seconds (%d generated, %d up to date, %d missing, %d failed)",
		len(report.Results), report.Duration.Seconds(),
		report.Count(StatusGenerated), report.Count(StatusUpToDate),
		report.Count(StatusNotFound), report.Count(StatusFailed))
	return report, nil
}

// ProcessFile preprocesses a single source notebook outside of a collection
// pass, as watch mode does for a changed file.
func (r *Runner) ProcessFile(path string) *Result {
	base, _ := notebook.SourceBase(path)
	res := &Result{Entry: toc.Entry{File: path, Base: base, Source: path}}
	r.process(res)
	return res
}

func (r *Runner) process(res *Result) {
	path := res.Entry.Source
	log := logging.Get(logging.CategoryPreprocess)
	log.Debug("file: %s", path)

	src, err := notebook.ReadFile(path)
	if err != nil {
		res.Status, res.Err = StatusFailed, err
		log.Error("%v", err)
		return
	}

	skip, unknown := derive.SkipList(src)
	for _, name := range unknown {
		log.Warn("%s: ignoring unknown skip-list entry %q", path, name)
	}
	res.Skipped = skip

	variants, err := r.deriver.Derive(src, skip)
	if err != nil {
		var fe *notebook.FormatError
		if errors.As(err, &fe) {
			fe.Path = path
		}
		res.Status, res.Err = StatusFailed, err
		log.Error("%v", err)
		return
	}

	stale := staleFiles(path, variants)
	if !r.opts.Force && len(stale) == 0 && upToDate(path, variants) {
		res.Status = StatusUpToDate
		log.Debug("skip %s (source unchanged)", path)
		return
	}

	if test, ok := variants[notebook.Test]; ok && r.opts.Cache != nil {
		merged, hit, err := cache.MergeCachedExecution(test, r.opts.Cache)
		if err != nil {
			logging.Get(logging.CategoryCache).Warn("%s: %v", path, err)
		} else {
			variants[notebook.Test], res.CacheHit = merged, hit
		}
	}

	for _, v := range notebook.Variants {
		nb, ok := variants[v]
		if !ok {
			continue
		}
		out := notebook.VariantPath(path, v)
		if err := notebook.WriteFile(out, nb); err != nil {
			res.Status, res.Err = StatusFailed, fmt.Errorf("write %s variant: %w", v, err)
			log.Error("%s: %v", path, res.Err)
			return
		}
		res.Written = append(res.Written, out)
		log.Debug("generate %s file: %s", v, out)
	}

	for _, p := range stale {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("remove stale %s: %v", p, err)
			continue
		}
		res.Removed = append(res.Removed, p)
		log.Debug("removed stale file %s", p)
	}

	res.Status = StatusGenerated
	log.Info("preprocessed %s (%d variants)", path, len(res.Written))
}

// upToDate reports whether every produced variant exists and is newer than
// the source.
func upToDate(srcPath string, variants map[notebook.Variant]*notebook.Notebook) bool {
	srcInfo, err := os.Stat(srcPath)
	if err != nil {
		return false
	}
	for v := range variants {
		info, err := os.Stat(notebook.VariantPath(srcPath, v))
		if err != nil || !info.ModTime().After(srcInfo.ModTime()) {
			return false
		}
	}
	return true
}

// staleFiles lists existing derived files for kinds that are not produced.
func staleFiles(srcPath string, variants map[notebook.Variant]*notebook.Notebook) []string {
	var stale []string
	for _, v := range notebook.Variants {
		if _, ok := variants[v]; ok {
			continue
		}
		p := notebook.VariantPath(srcPath, v)
		if _, err := os.Stat(p); err == nil {
			stale = append(stale, p)
		}
	}
	return stale
}
