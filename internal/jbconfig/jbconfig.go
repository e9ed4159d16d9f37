// Package jbconfig edits the execution settings of a Jupyter Book
// configuration file (_config.yml) in place.
package jbconfig

import (
	"bytes"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"nbprep/internal/logging"
	"nbprep/internal/notebook"
)

// Execute modes accepted by Jupyter Book for execute.execute_notebooks.
var ExecuteModes = []string{"auto", "force", "cache", "off"}

// MaxTimeout is the largest accepted execute.timeout, one day in seconds.
const MaxTimeout = 60 * 60 * 24

// Settings are the values to change. Nil fields are left alone.
type Settings struct {
	Execute   *string
	Timeout   *int
	CacheFile *string
}

// Validate checks the requested values.
func (s Settings) Validate() error {
	if s.Execute != nil && !validMode(*s.Execute) {
		return fmt.Errorf("invalid execute mode %q (valid: %v)", *s.Execute, ExecuteModes)
	}
	if s.Timeout != nil && (*s.Timeout < 1 || *s.Timeout > MaxTimeout) {
		return fmt.Errorf("timeout %d out of range 1..%d", *s.Timeout, MaxTimeout)
	}
	return nil
}

func validMode(m string) bool {
	for _, v := range ExecuteModes {
		if v == m {
			return true
		}
	}
	return false
}

// MissingKeyError reports a setting whose key is absent from the file.
type MissingKeyError struct {
	Path string
	Key  string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("no key %s found in: %s", e.Key, e.Path)
}

// Modify applies s to the configuration file at path and reports whether
// anything changed. The file is only rewritten when a value changed, and
// comments and key order are kept. Every key must already exist; if one is
// missing nothing is written.
func Modify(path string, s Settings) (bool, error) {
	if err := s.Validate(); err != nil {
		return false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read config: %w", err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(doc.Content) == 0 {
		return false, fmt.Errorf("parse %s: empty document", path)
	}
	root := doc.Content[0]

	type update struct {
		key   string
		value string
		tag   string
	}
	var updates []update
	if s.Execute != nil {
		updates = append(updates, update{"execute_notebooks", *s.Execute, "!!str"})
	}
	if s.Timeout != nil {
		updates = append(updates, update{"timeout", strconv.Itoa(*s.Timeout), "!!int"})
	}
	if s.CacheFile != nil {
		updates = append(updates, update{"cache", *s.CacheFile, "!!str"})
	}

	// resolve every key before changing anything
	targets := make([]*yaml.Node, len(updates))
	for i, u := range updates {
		n := lookup(root, "execute", u.key)
		if n == nil {
			return false, &MissingKeyError{Path: path, Key: "execute." + u.key}
		}
		targets[i] = n
	}

	changed := false
	for i, u := range updates {
		n := targets[i]
		if n.Kind == yaml.ScalarNode && n.Value == u.value {
			continue
		}
		logging.Get(logging.CategoryCLI).Info("set value for execute.%s from '%s' to '%s'", u.key, n.Value, u.value)
		*n = yaml.Node{Kind: yaml.ScalarNode, Tag: u.tag, Value: u.value, LineComment: n.LineComment, HeadComment: n.HeadComment}
		changed = true
	}
	if !changed {
		return false, nil
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return false, fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return false, err
	}
	if err := notebook.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return false, err
	}
	return true, nil
}

// Get returns the scalar value at execute.<key>, if present.
func Get(path, key string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, fmt.Errorf("read config: %w", err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", false, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(doc.Content) == 0 {
		return "", false, nil
	}
	n := lookup(doc.Content[0], "execute", key)
	if n == nil {
		return "", false, nil
	}
	return n.Value, true, nil
}

func lookup(n *yaml.Node, keys ...string) *yaml.Node {
	for _, k := range keys {
		if n == nil || n.Kind != yaml.MappingNode {
			return nil
		}
		var next *yaml.Node
		for i := 0; i+1 < len(n.Content); i += 2 {
			if n.Content[i].Value == k {
				next = n.Content[i+1]
				break
			}
		}
		n = next
	}
	return n
}
