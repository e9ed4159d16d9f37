package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"nbprep/internal/cache"
	"nbprep/internal/logging"
	"nbprep/internal/notebook"
	"nbprep/internal/preprocess"
)

type preOptions struct {
	dev     bool
	force   bool
	jobs    int
	noCache bool
}

func (a *app) preCmd() *cobra.Command {
	var opts preOptions
	cmd := &cobra.Command{
		Use:   "pre",
		Short: "Pre-process notebooks",
		Long: `Derives the test, doc, user and (for tutorials) exercise and solution
notebooks of every source notebook in the table of contents. Sources whose
derived notebooks are newer than the source are left alone unless --force
is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			heading(cmd.OutOrStdout(), "Pre-process notebooks")
			_, err := a.runPre(ctx, cmd.OutOrStdout(), opts)
			return err
		},
	}
	a.preFlags(cmd, &opts)
	return cmd
}

func (a *app) preFlags(cmd *cobra.Command, opts *preOptions) {
	cmd.Flags().BoolVar(&opts.dev, "dev", false, "Also process sources in the dev directory")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Regenerate even if derived notebooks are up to date")
	cmd.Flags().IntVarP(&opts.jobs, "jobs", "j", 0, "Notebooks to process concurrently (default from config)")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "Do not merge cached execution results into test notebooks")
}

// openCache opens the execution cache for the collection, or returns nil
// when caching is off. Failing to open the cache is not fatal.
func (a *app) openCache(root string, disabled bool) cache.Store {
	if disabled || !a.cfg.Cache.Enabled {
		return nil
	}
	store, err := cache.OpenSQLite(a.cfg.CachePath(root))
	if err != nil {
		logging.Get(logging.CategoryCache).Warn("execution cache unavailable: %v", err)
		return nil
	}
	return store
}

func (a *app) runPre(ctx context.Context, w io.Writer, opts preOptions) (*preprocess.Report, error) {
	coll, err := a.open()
	if err != nil {
		return nil, err
	}

	jobs := opts.jobs
	if jobs <= 0 {
		jobs = a.cfg.Preprocess.Jobs
	}
	store := a.openCache(coll.Root, opts.noCache)
	if store != nil {
		defer store.Close()
	}

	runner := preprocess.NewRunner(preprocess.Options{
		Layout:       coll.Layout,
		Dev:          opts.dev,
		Force:        opts.force,
		Jobs:         jobs,
		RewriteLinks: a.cfg.Preprocess.RewriteLinks,
		Cache:        store,
	})
	report, err := runner.RunCollection(ctx, coll)
	if err != nil {
		return report, err
	}
	printReport(w, report)
	if code := report.ExitCode(); code != 0 {
		return report, &exitError{code: code, err: reportError(report)}
	}
	return report, nil
}

func reportError(r *preprocess.Report) error {
	if r.StructureErr != nil {
		return r.StructureErr
	}
	failures := r.Failures()
	if len(failures) == 1 {
		return failures[0].Err
	}
	return fmt.Errorf("%d notebooks failed to pre-process", len(failures))
}

func printReport(w io.Writer, r *preprocess.Report) {
	for _, res := range r.Results {
		rel := relPath(r.Root, res.Entry.Source)
		switch res.Status {
		case preprocess.StatusGenerated:
			line := okStyle.Render("generated ") + rel
			if res.CacheHit {
				line += dimStyle.Render(" (cached outputs)")
			}
			fmt.Fprintln(w, line)
			for _, p := range res.Removed {
				fmt.Fprintln(w, dimStyle.Render("  removed "+relPath(r.Root, p)))
			}
		case preprocess.StatusUpToDate:
			fmt.Fprintln(w, dimStyle.Render("unchanged "+rel))
		case preprocess.StatusNotFound:
			fmt.Fprintln(w, warnStyle.Render("missing   ")+rel)
		case preprocess.StatusFailed:
			fmt.Fprintln(w, errorStyle.Render("failed    ")+res.Err.Error())
		}
		if len(res.Skipped) > 0 {
			fmt.Fprintln(w, dimStyle.Render("  skipping "+variantNames(res.Skipped)))
		}
	}
	if r.StructureErr != nil {
		fmt.Fprintln(w, errorStyle.Render("table of contents: ")+r.StructureErr.Error())
	}
	subheading(w, fmt.Sprintf("%d generated, %d unchanged, %d missing, %d failed in %.1fs",
		r.Count(preprocess.StatusGenerated), r.Count(preprocess.StatusUpToDate),
		r.Count(preprocess.StatusNotFound), r.Count(preprocess.StatusFailed), r.Duration.Seconds()))
}

func relPath(root, p string) string {
	if rel, err := filepath.Rel(root, p); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return p
}

func (a *app) cleanCmd() *cobra.Command {
	var dev bool
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove generated notebooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			heading(w, "Remove generated notebooks")
			coll, err := a.open()
			if err != nil {
				return err
			}
			removed, err := coll.Clean(dev)
			for _, p := range removed {
				fmt.Fprintln(w, dimStyle.Render("removed ")+relPath(coll.Root, p))
			}
			if err != nil {
				return err
			}
			subheading(w, fmt.Sprintf("%d files removed", len(removed)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dev, "dev", false, "Also clean the dev directory")
	return cmd
}

func (a *app) skippedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "skipped",
		Short: "List notebooks that skip some derived notebooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			heading(w, "Find notebooks which skip pre-processing steps")
			subheading(w, "Notebooks skipping 'test' will not be tested")
			coll, err := a.open()
			if err != nil {
				return err
			}
			smap, err := coll.Skipped()
			if err != nil {
				return err
			}
			printSkipped(w, coll.Root, smap)
			return nil
		},
	}
}

func printSkipped(w io.Writer, root string, smap map[string][]string) {
	paths := make([]string, 0, len(smap))
	width := 0
	for p, kinds := range smap {
		paths = append(paths, p)
		if n := len(strings.Join(kinds, ", ")); n > width {
			width = n
		}
	}
	sort.Strings(paths)
	fmt.Fprintln(w)
	for _, p := range paths {
		fmt.Fprintf(w, "%-*s | %s\n", width, strings.Join(smap[p], ", "), relPath(root, p))
	}
}

func (a *app) skipCmd() *cobra.Command {
	var action string
	cmd := &cobra.Command{
		Use:   "skip <notebook> [kinds...]",
		Short: "Show or change which derived notebooks a source notebook skips",
		Long: `Edits the idaes.skip list in a source notebook's metadata. Kinds are
variant names: test, doc, user (or usr), exercise, solution. The action
may be abbreviated to any unambiguous prefix.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			act, err := preprocess.ParseSkipAction(action)
			if err != nil {
				return err
			}
			path := resolveSource(args[0])
			subheading(w, fmt.Sprintf("Load notebook '%s'", path))
			subheading(w, "Perform action: "+string(act))
			skip, changed, err := preprocess.EditSkip(path, act, args[1:])
			if err != nil {
				return err
			}
			switch {
			case act == preprocess.SkipShow && len(skip) == 0:
				fmt.Fprintln(w, "No kinds skipped")
			case act == preprocess.SkipShow:
				fmt.Fprintf(w, "Skipped: %s\n", strings.Join(skip, ", "))
			case changed:
				fmt.Fprintf(w, "Wrote skip list [%s] to %s\n", strings.Join(skip, ", "), path)
			default:
				fmt.Fprintln(w, "Skip list not changed")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&action, "action", "a", string(preprocess.SkipAdd), "Action to take: add, remove, show")
	return cmd
}

// variantNames formats variant kinds for display.
func variantNames(vs []notebook.Variant) string {
	names := make([]string, len(vs))
	for i, v := range vs {
		names[i] = v.String()
	}
	return strings.Join(names, " ")
}
