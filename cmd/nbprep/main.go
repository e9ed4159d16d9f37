// Command nbprep prepares a collection of Jupyter notebooks for testing and
// documentation builds.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"nbprep/internal/config"
	"nbprep/internal/logging"
	"nbprep/internal/notebook"
	"nbprep/internal/preprocess"
)

// app holds state shared by all commands of one invocation.
type app struct {
	verbose    int
	configPath string
	dir        string

	cfg *config.Config
}

// exitError carries an explicit process exit status.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if errors.Is(err, preprocess.ErrNoNotebooks) {
		return 2
	}
	return 1
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "nbprep",
		Short: "Derive test, doc, exercise, solution and user notebooks from tagged sources",
		Long: `nbprep reads a Jupyter Book table of contents, finds every source
notebook (name_src.ipynb) it references, and writes the derived notebooks
next to it according to the cell tags.

Cell tags:
  testing    only in the test notebook
  exercise   exercise stub, left out of the test notebook
  solution   solution to an exercise, left out of the exercise notebook
  noauto     only run by people, never by the test runner or the docs build
  auto       only run by automation, never shown to readers`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Sync()
		},
	}

	root.PersistentFlags().CountVarP(&a.verbose, "verbose", "v", "Increase verbosity (repeatable)")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default: "+config.DefaultFile+" in the working directory)")
	root.PersistentFlags().StringVarP(&a.dir, "dir", "d", ".", "Repository or notebook directory")

	root.AddCommand(
		a.preCmd(),
		a.cleanCmd(),
		a.skippedCmd(),
		a.skipCmd(),
		a.listCmd(),
		a.showCmd(),
		a.buildCmd(),
		a.confCmd(),
		a.cacheCmd(),
		a.tocCmd(),
		a.watchCmd(),
		a.newCmd(),
		a.viewCmd(),
		a.configCmd(),
	)
	return root
}

// setup loads configuration and initializes logging.
func (a *app) setup() error {
	path := a.configPath
	if path == "" {
		path = config.DefaultFile
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	a.cfg = cfg

	level := cfg.Logging.Level
	if a.verbose > 0 {
		level = logging.LevelFromVerbosity(a.verbose)
	}
	if err := logging.Initialize(logging.Options{Level: level, Format: cfg.Logging.Format, File: cfg.Logging.File}); err != nil {
		return err
	}
	logging.Boot("config loaded from %s", path)
	logging.BootDebug("dir %s, verbosity %d", a.dir, a.verbose)
	return nil
}

func (a *app) layout() preprocess.Layout {
	return preprocess.Layout{
		NotebooksDir: a.cfg.Notebooks.Dir,
		TOCFile:      a.cfg.Notebooks.TOC,
		DevDir:       a.cfg.Notebooks.DevDir,
	}
}

func (a *app) open() (*preprocess.Collection, error) {
	coll, err := preprocess.Open(a.dir, a.layout())
	if err != nil {
		logging.Get(logging.CategoryCLI).Error("check that your working or -d/--dir directory contains the source notebooks")
		return nil, err
	}
	return coll, nil
}

// resolveSource accepts a source notebook path, or a path to any of its
// variants, and returns the source path.
func resolveSource(arg string) string {
	if _, ok := notebook.SourceBase(arg); ok {
		return arg
	}
	dir, name := filepath.Split(arg)
	name = strings.TrimSuffix(name, notebook.Ext)
	if base, ok := strings.CutSuffix(name, notebook.SourceSuffix); ok && base != "" {
		return notebook.SourcePath(dir, base)
	}
	for _, v := range notebook.Variants {
		if base, ok := strings.CutSuffix(name, v.Suffix()); ok && base != "" {
			return notebook.SourcePath(dir, base)
		}
	}
	return notebook.SourcePath(dir, name)
}

func heading(w io.Writer, msg string) {
	fmt.Fprintln(w, headingStyle.Render("-> "+msg))
}

func subheading(w io.Writer, msg string) {
	fmt.Fprintln(w, subheadingStyle.Render("   "+msg))
}

func main() {
	err := newRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
	}
	os.Exit(exitCode(err))
}
