package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"nbprep/internal/notebook"
	"nbprep/internal/toc"
)

func (a *app) newCmd() *cobra.Command {
	var (
		tutorial bool
		title    string
	)
	cmd := &cobra.Command{
		Use:   "new <chapter-dir> <name>",
		Short: "Create a source notebook and add it to the table of contents",
		Long: `Creates <chapter-dir>/<name>_src.ipynb below the notebook root and adds
<name>_doc as a section of the chapter in that directory. With --tutorial the
notebook starts with an exercise cell and its solution.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			coll, err := a.open()
			if err != nil {
				return err
			}
			chapter := strings.Trim(filepath.ToSlash(args[0]), "/")
			name := strings.TrimSuffix(strings.TrimSuffix(args[1], notebook.Ext), notebook.SourceSuffix)
			if name == "" || strings.ContainsAny(name, `/\ `) {
				return fmt.Errorf("invalid notebook name %q", args[1])
			}

			src := notebook.SourcePath(filepath.Join(coll.Root, filepath.FromSlash(chapter)), name)
			if _, err := os.Stat(src); err == nil {
				return fmt.Errorf("%s already exists", relPath(coll.Root, src))
			}
			if title == "" {
				title = name
			}
			if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
				return err
			}
			if err := notebook.WriteFile(src, newNotebook(title, tutorial)); err != nil {
				return err
			}
			if err := toc.AddSection(coll.TOCPath(), chapter, path.Join(chapter, name+notebook.DocSuffix)); err != nil {
				return fmt.Errorf("created %s but could not add it to the table of contents: %w", relPath(coll.Root, src), err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, okStyle.Render("created ")+relPath(coll.Root, src))
			subheading(w, "Added "+path.Join(chapter, name+notebook.DocSuffix)+" to "+a.cfg.Notebooks.TOC)
			return nil
		},
	}
	cmd.Flags().BoolVar(&tutorial, "tutorial", false, "Start with exercise and solution cells")
	cmd.Flags().StringVar(&title, "title", "", "Heading of the first cell (default: the notebook name)")
	return cmd
}

// newNotebook returns a minimal nbformat 4.5 source notebook.
func newNotebook(title string, tutorial bool) *notebook.Notebook {
	nb := notebook.New(map[string]json.RawMessage{
		notebook.KeyMetadata: json.RawMessage(`{"kernelspec": {"display_name": "Python 3", "language": "python", "name": "python3"}, "language_info": {"name": "python"}}`),
		"nbformat":           json.RawMessage("4"),
		"nbformat_minor":     json.RawMessage("5"),
	})
	nb.Cells = []*notebook.Cell{
		notebook.NewCell(notebook.CellMarkdown, "# "+title+"\n"),
		notebook.NewCell(notebook.CellCode, ""),
	}
	if tutorial {
		nb.Cells = append(nb.Cells,
			notebook.NewCell(notebook.CellCode, "# Todo: your code here\n", "exercise"),
			notebook.NewCell(notebook.CellCode, "", "solution"),
		)
	}
	nb.Cells = append(nb.Cells, notebook.NewCell(notebook.CellCode, "", "testing"))
	for _, c := range nb.Cells {
		id, _ := json.Marshal(uuid.NewString()[:8])
		c.SetField("id", id)
	}
	return nb
}
