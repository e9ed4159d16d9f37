package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"nbprep/internal/jbconfig"
	"nbprep/internal/logging"
	"nbprep/internal/preprocess"
)

func (a *app) buildCmd() *cobra.Command {
	var (
		opts  preOptions
		noPre bool
		quiet int
	)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Pre-process notebooks and build the Jupyter Book",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			w := cmd.OutOrStdout()
			sfx := ""
			if opts.dev {
				sfx = " [dev]"
			}
			if !noPre {
				heading(w, "Pre-process notebooks"+sfx)
				if _, err := a.runPre(ctx, w, opts); err != nil {
					return err
				}
			}
			heading(w, "Build Jupyterbook"+sfx)
			coll, err := a.open()
			if err != nil {
				return err
			}
			return a.runBook(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), bookArgs(coll.Root, quiet, a.verbose))
		},
	}
	a.preFlags(cmd, &opts)
	cmd.Flags().BoolVar(&noPre, "no-pre", false, "Do not pre-process notebooks first")
	cmd.Flags().CountVarP(&quiet, "quiet", "q", "Quieter book build (repeatable, at most twice)")
	return cmd
}

// bookArgs returns the jupyter-book command line arguments for building root.
func bookArgs(root string, quiet, verbose int) []string {
	args := []string{"build", root}
	switch {
	case quiet > 0:
		args = append(args, "-"+strings.Repeat("q", min(quiet, 2)))
	case verbose > 0:
		args = append(args, "-"+strings.Repeat("v", min(verbose, 3)))
	}
	return args
}

func (a *app) runBook(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	bin := a.cfg.Notebooks.BookCmd
	logging.Get(logging.CategoryCLI).Info("running %s %s", bin, strings.Join(args, " "))
	c := exec.CommandContext(ctx, bin, args...)
	c.Stdout = stdout
	c.Stderr = stderr
	timer := logging.StartTimer(logging.CategoryCLI, bin+" "+args[0])
	defer timer.StopWithInfo()
	if err := c.Run(); err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return &exitError{code: 1, err: fmt.Errorf("%s exited with status %d", bin, ee.ExitCode())}
		}
		return fmt.Errorf("run %s: %w", bin, err)
	}
	return nil
}

func (a *app) confCmd() *cobra.Command {
	var (
		execute   string
		timeout   int
		cacheFile string
		show      bool
		sphinx    bool
	)
	cmd := &cobra.Command{
		Use:   "conf",
		Short: "Modify the Jupyter Book configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			heading(w, "Modify configuration files")
			root, err := preprocess.ResolveRoot(a.dir, a.layout())
			if err != nil {
				return err
			}
			path := filepath.Join(root, a.cfg.Notebooks.BookConf)
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("config file not found at: %s", path)
			}

			var s jbconfig.Settings
			if cmd.Flags().Changed("execute") {
				s.Execute = &execute
			}
			if cmd.Flags().Changed("timeout") {
				s.Timeout = &timeout
			}
			if cmd.Flags().Changed("cache-file") {
				s.CacheFile = &cacheFile
			}
			changed, err := jbconfig.Modify(path, s)
			if err != nil {
				return err
			}
			if changed {
				subheading(w, "Wrote modified Jupyterbook config to file: "+path)
			}
			for _, key := range []string{"execute_notebooks", "timeout", "cache"} {
				v, ok, err := jbconfig.Get(path, key)
				if err != nil {
					return err
				}
				if !ok {
					v = dimStyle.Render("(unset)")
				}
				fmt.Fprintf(w, "   execute.%s = %s\n", key, v)
			}
			if sphinx {
				subheading(w, "Updating Sphinx config file")
				if err := a.runBook(cmd.Context(), w, cmd.ErrOrStderr(), []string{"config", "sphinx", root}); err != nil {
					return err
				}
			}
			if show {
				if err := printFile(w, path); err != nil {
					return err
				}
				if sphinx {
					return printFile(w, filepath.Join(root, "conf.py"))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&execute, "execute", "", "Notebook execution mode: "+strings.Join(jbconfig.ExecuteModes, ", "))
	cmd.Flags().IntVar(&timeout, "timeout", 0, "Per-cell execution timeout in seconds (1 to 86400)")
	cmd.Flags().StringVar(&cacheFile, "cache-file", "", "Execution cache location")
	cmd.Flags().BoolVar(&show, "show", false, "Print the resulting configuration")
	cmd.Flags().BoolVar(&sphinx, "sphinx", false, "Regenerate the Sphinx conf.py afterwards")
	return cmd
}

func printFile(w io.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\n# %s %s %s\n\n", strings.Repeat("-", 10), path, strings.Repeat("-", 10))
	_, err = w.Write(data)
	return err
}

func (a *app) viewCmd() *cobra.Command {
	var printOnly bool
	cmd := &cobra.Command{
		Use:   "view",
		Short: "Open the built HTML documentation in a browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			coll, err := a.open()
			if err != nil {
				return err
			}
			html := filepath.Join(coll.Root, a.cfg.Notebooks.BuildDir, "html")
			if fi, err := os.Stat(html); err != nil || !fi.IsDir() {
				return &exitError{code: 2, err: fmt.Errorf("could not find directory %s (run nbprep build first)", html)}
			}
			abs, err := filepath.Abs(html)
			if err != nil {
				return err
			}
			url := "file://" + filepath.ToSlash(abs) + "/index.html"
			if !strings.HasPrefix(url, "file:///") {
				url = "file:///" + strings.TrimPrefix(url, "file://")
			}
			w := cmd.OutOrStdout()
			if printOnly {
				fmt.Fprintln(w, url)
				return nil
			}
			subheading(w, "Opening "+url)
			return openBrowser(url)
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "Print the documentation URL instead of opening it")
	return cmd
}

// openBrowser opens url with the desktop's default handler.
func openBrowser(url string) error {
	var c *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		c = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		c = exec.Command("open", url)
	default:
		c = exec.Command("xdg-open", url)
	}
	return c.Start()
}
