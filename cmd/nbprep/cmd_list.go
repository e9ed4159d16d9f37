package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"nbprep/internal/config"
	"nbprep/internal/derive"
	"nbprep/internal/notebook"
)

func (a *app) listCmd() *cobra.Command {
	var dev bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notebooks in the table of contents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			coll, err := a.open()
			if err != nil {
				return err
			}
			list, err := coll.List(dev)
			if err != nil {
				return err
			}
			for _, l := range list {
				title := l.Title
				if l.Err != nil {
					title = errorStyle.Render("unreadable")
				} else if title == "" {
					title = dimStyle.Render("(untitled)")
				}
				fmt.Fprintf(w, "%s %s -> %s\n",
					titleStyle.Render(title),
					dimStyle.Render("["+variantNames(l.Variants)+"]"),
					relPath(coll.Root, l.Entry.Source))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dev, "dev", false, "Include the dev directory")
	return cmd
}

func (a *app) showCmd() *cobra.Command {
	var (
		variant string
		raw     bool
		width   int
	)
	cmd := &cobra.Command{
		Use:   "show <notebook>",
		Short: "Render a notebook as markdown in the terminal",
		Long: `Renders one derived notebook of a source notebook as markdown. The
notebook may be given as the source or any derived file; --variant picks
which derived notebook to show. Variants are derived on the fly, so the
output reflects the current source even before pre-processing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := notebook.ParseVariant(variant)
			if err != nil {
				return err
			}
			md, err := a.variantMarkdown(resolveSource(args[0]), v)
			if err != nil {
				return err
			}
			if raw {
				_, err = io.WriteString(cmd.OutOrStdout(), md)
				return err
			}
			r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
			if err != nil {
				return err
			}
			out, err := r.Render(md)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().StringVar(&variant, "variant", notebook.Doc.String(), "Variant to show: test, doc, user, exercise, solution")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print markdown without terminal rendering")
	cmd.Flags().IntVar(&width, "width", 100, "Word wrap width")
	return cmd
}

func (a *app) variantMarkdown(src string, v notebook.Variant) (string, error) {
	nb, err := notebook.ReadFile(src)
	if err != nil {
		return "", err
	}
	variants, err := newDeriver(a.cfg).Derive(nb, nil)
	if err != nil {
		return "", err
	}
	dv, ok := variants[v]
	if !ok {
		return "", fmt.Errorf("%s has no %s variant", src, v)
	}
	return toMarkdown(dv), nil
}

func newDeriver(cfg *config.Config) *derive.Deriver {
	return derive.New(derive.Options{RewriteLinks: cfg.Preprocess.RewriteLinks})
}

// toMarkdown renders markdown cells as-is and code cells as fenced blocks.
func toMarkdown(nb *notebook.Notebook) string {
	lang := kernelLanguage(nb)
	var b strings.Builder
	for i, c := range nb.Cells {
		if i > 0 {
			b.WriteString("\n")
		}
		src := strings.TrimRight(c.Source(), "\n")
		switch c.Type {
		case notebook.CellMarkdown:
			b.WriteString(src)
			b.WriteString("\n")
		case notebook.CellCode:
			if !c.Tags.Empty() {
				b.WriteString("*tags: " + strings.Join(c.Tags.Names(), ", ") + "*\n\n")
			}
			b.WriteString("```" + lang + "\n" + src + "\n```\n")
		default:
			b.WriteString("```\n" + src + "\n```\n")
		}
	}
	return b.String()
}

func kernelLanguage(nb *notebook.Notebook) string {
	raw, ok := nb.Field(notebook.KeyMetadata)
	if !ok {
		return "python"
	}
	var meta struct {
		LanguageInfo struct {
			Name string `json:"name"`
		} `json:"language_info"`
	}
	if json.Unmarshal(raw, &meta) != nil || meta.LanguageInfo.Name == "" {
		return "python"
	}
	return meta.LanguageInfo.Name
}
