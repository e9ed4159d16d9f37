package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"nbprep/internal/toc"
)

func (a *app) tocCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toc",
		Short: "Create or edit the table of contents",
	}
	cmd.AddCommand(a.tocGenerateCmd(), a.tocAddCmd(), a.tocCheckCmd())
	return cmd
}

// notebookDir is the notebook root below -d if it exists, otherwise -d.
// Unlike ResolveRoot it does not require a table of contents.
func (a *app) notebookDir() string {
	candidate := filepath.Join(a.dir, a.cfg.Notebooks.Dir)
	if fi, err := os.Stat(candidate); err == nil && fi.IsDir() {
		return candidate
	}
	return a.dir
}

func (a *app) tocGenerateCmd() *cobra.Command {
	var (
		caption string
		write   bool
	)
	cmd := &cobra.Command{
		Use:   "generate <dir...>",
		Short: "Generate a table of contents with one chapter per directory",
		Long: `Generates a table of contents with one chapter per given directory
(relative to the notebook root) and one section per source notebook in it.
Directories without an index.md get a placeholder. The result is printed
unless --write is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := a.notebookDir()
			dirs := make([]string, len(args))
			for i, d := range args {
				dirs[i] = filepath.ToSlash(d)
			}
			t, err := toc.Generate(root, caption, dirs)
			if err != nil {
				return err
			}
			if write {
				path := filepath.Join(root, a.cfg.Notebooks.TOC)
				if err := t.Save(path); err != nil {
					return err
				}
				subheading(cmd.OutOrStdout(), "Wrote "+path)
				return nil
			}
			data, err := t.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVar(&caption, "caption", "Examples", "Caption of the generated part")
	cmd.Flags().BoolVar(&write, "write", false, "Write the table of contents file instead of printing it")
	return cmd
}

func (a *app) tocAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <chapter-dir> <file>",
		Short: "Add a notebook section to an existing chapter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(a.notebookDir(), a.cfg.Notebooks.TOC)
			if err := toc.AddSection(path, filepath.ToSlash(args[0]), filepath.ToSlash(args[1])); err != nil {
				return err
			}
			subheading(cmd.OutOrStdout(), fmt.Sprintf("Added %s to %s", args[1], path))
			return nil
		},
	}
}

func (a *app) tocCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the table of contents structure and report missing notebooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			coll, err := a.open()
			if err != nil {
				return err
			}
			if err := coll.TOC.Validate(); err != nil {
				return err
			}
			found, missing, err := toc.Sources(coll.TOC, coll.Root)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, nf := range missing {
				fmt.Fprintln(w, warnStyle.Render("missing ")+relPath(coll.Root, nf.Path))
			}
			subheading(w, fmt.Sprintf("%d notebooks found, %d missing", len(found), len(missing)))
			return nil
		},
	}
}
