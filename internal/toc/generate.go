package toc

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"nbprep/internal/logging"
	"nbprep/internal/notebook"
)

// Generate builds a table of contents with one chapter per directory (given
// relative to root, slash-separated) and one section per source notebook in
// it. Directories without an index.md get a placeholder one.
func Generate(root, caption string, dirs []string) (*TOC, error) {
	part := &Part{Caption: caption}
	for _, dir := range dirs {
		abs := filepath.Join(root, filepath.FromSlash(dir))
		if err := ensureIndex(abs); err != nil {
			return nil, err
		}
		matches, err := filepath.Glob(filepath.Join(abs, "*"+notebook.SourceSuffix+notebook.Ext))
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", abs, err)
		}
		sort.Strings(matches)

		chapter := &Node{File: path.Join(dir, "index")}
		for _, m := range matches {
			base, _ := notebook.SourceBase(m)
			chapter.Sections = append(chapter.Sections, &Node{File: path.Join(dir, base+notebook.DocSuffix)})
		}
		logging.DiscoverDebug("chapter %s: %d notebooks", dir, len(chapter.Sections))
		part.Chapters = append(part.Chapters, chapter)
	}
	return &TOC{Format: "jb-book", Root: "index", Parts: []*Part{part}}, nil
}

func ensureIndex(dir string) error {
	idx := filepath.Join(dir, "index.md")
	if _, err := os.Stat(idx); err == nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	title := filepath.Base(dir)
	if err := os.WriteFile(idx, []byte("# "+title+"\n"), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", idx, err)
	}
	return nil
}

// AddSection appends a section with the given file reference to the chapter
// whose file lives in chapterDir. The file is edited as a YAML node tree so
// comments and key order survive.
func AddSection(tocPath, chapterDir, file string) error {
	data, err := os.ReadFile(tocPath)
	if err != nil {
		return fmt.Errorf("read table of contents: %w", err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return &StructureError{Reason: err.Error()}
	}
	if len(doc.Content) == 0 {
		return &StructureError{Reason: "empty document"}
	}

	chapter := findChapter(doc.Content[0], strings.TrimSuffix(chapterDir, "/"))
	if chapter == nil {
		return fmt.Errorf("no chapter in directory %q", chapterDir)
	}
	sections := mappingValue(chapter, "sections")
	if sections == nil {
		sections = &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		chapter.Content = append(chapter.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "sections"}, sections)
	}
	for _, s := range sections.Content {
		if v := mappingValue(s, "file"); v != nil && v.Value == file {
			return nil
		}
	}
	sections.Content = append(sections.Content, &yaml.Node{
		Kind: yaml.MappingNode,
		Tag:  "!!map",
		Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Tag: "!!str", Value: "file"},
			{Kind: yaml.ScalarNode, Tag: "!!str", Value: file},
		},
	})

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encode table of contents: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return notebook.WriteFileAtomic(tocPath, buf.Bytes(), 0o644)
}

// findChapter returns the first chapter mapping whose file reference is in dir.
func findChapter(root *yaml.Node, dir string) *yaml.Node {
	var chapterLists []*yaml.Node
	if parts := mappingValue(root, "parts"); parts != nil {
		for _, p := range parts.Content {
			if cs := mappingValue(p, "chapters"); cs != nil {
				chapterLists = append(chapterLists, cs)
			}
		}
	}
	if cs := mappingValue(root, "chapters"); cs != nil {
		chapterLists = append(chapterLists, cs)
	}
	for _, cs := range chapterLists {
		for _, c := range cs.Content {
			if f := mappingValue(c, "file"); f != nil && path.Dir(f.Value) == dir {
				return c
			}
		}
	}
	return nil
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}
