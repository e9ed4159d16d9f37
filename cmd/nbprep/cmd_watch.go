package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"nbprep/internal/preprocess"
	"nbprep/internal/toc"
	"nbprep/internal/watch"
)

func (a *app) watchCmd() *cobra.Command {
	var opts preOptions
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Pre-process notebooks, then again whenever a source notebook changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runWatch(ctx, cmd, opts)
		},
	}
	a.preFlags(cmd, &opts)
	return cmd
}

func (a *app) runWatch(ctx context.Context, cmd *cobra.Command, opts preOptions) error {
	w := cmd.OutOrStdout()
	heading(w, "Pre-process notebooks")
	if _, err := a.runPre(ctx, w, opts); err != nil && exitCode(err) != 1 {
		return err
	}

	coll, err := a.open()
	if err != nil {
		return err
	}
	entries, err := coll.Sources(opts.dev)
	if err != nil {
		return err
	}
	dirs := watchDirs(coll, entries, opts.dev)

	store := a.openCache(coll.Root, opts.noCache)
	if store != nil {
		defer store.Close()
	}
	runner := preprocess.NewRunner(preprocess.Options{
		Layout:       coll.Layout,
		RewriteLinks: a.cfg.Preprocess.RewriteLinks,
		Cache:        store,
	})

	watcher, err := watch.New(dirs, a.cfg.GetDebounce(), func(_ context.Context, path string) {
		res := runner.ProcessFile(path)
		switch res.Status {
		case preprocess.StatusFailed:
			fmt.Fprintln(w, errorStyle.Render("failed    ")+res.Err.Error())
		case preprocess.StatusGenerated:
			fmt.Fprintln(w, okStyle.Render("generated ")+relPath(coll.Root, path))
		}
	})
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	subheading(w, fmt.Sprintf("Watching %d directories, press Ctrl-C to stop", len(dirs)))
	<-ctx.Done()
	watcher.Stop()
	return nil
}

// watchDirs returns the distinct directories holding the given sources.
func watchDirs(coll *preprocess.Collection, entries []toc.Entry, dev bool) []string {
	seen := map[string]bool{}
	for _, e := range entries {
		seen[e.Dir] = true
	}
	if dev {
		seen[filepath.Join(coll.Root, coll.Layout.DevDir)] = true
	}
	dirs := make([]string, 0, len(seen))
	for d := range seen {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}
