package notebook

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FormatError reports a structurally invalid notebook.
type FormatError struct {
	Path   string
	Cell   int // -1 when the problem is not in a specific cell
	Reason string
}

func (e *FormatError) Error() string {
	where := e.Path
	if where == "" {
		where = "notebook"
	}
	if e.Cell >= 0 {
		return fmt.Sprintf("%s: cell %d: %s", where, e.Cell, e.Reason)
	}
	return fmt.Sprintf("%s: %s", where, e.Reason)
}

// ReadFile loads and parses a notebook file. I/O errors are returned
// wrapped; structural problems come back as *FormatError carrying the path.
func ReadFile(path string) (*Notebook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read notebook: %w", err)
	}
	nb, err := Parse(data)
	if err != nil {
		var fe *FormatError
		if errors.As(err, &fe) {
			fe.Path = path
		}
		return nil, err
	}
	return nb, nil
}

// WriteFile encodes nb and replaces path with it atomically: the bytes go
// to a temporary file in the same directory which is then renamed over the
// target. Readers see either the old file or the complete new one.
func WriteFile(path string, nb *Notebook) error {
	data, err := nb.Marshal()
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, 0o644)
}

// WriteFileAtomic is the write-temp-then-rename primitive behind WriteFile.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	_ = tmp.Sync() // best-effort durability
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	committed = true
	return nil
}
