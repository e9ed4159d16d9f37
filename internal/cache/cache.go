// Package cache keeps execution results of test notebooks so that a
// regenerated test notebook whose cells did not change starts out with the
// outputs of its previous run.
//
// Entries are keyed by a hash of the notebook's cell types and sources.
// Outputs, execution counts and metadata are not part of the key, so an
// executed notebook and its freshly derived counterpart share a key.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"nbprep/internal/logging"
	"nbprep/internal/notebook"
)

// CellResult is the execution state of one cell.
type CellResult struct {
	Outputs        json.RawMessage `json:"outputs,omitempty"`
	ExecutionCount json.RawMessage `json:"execution_count,omitempty"`
}

// Entry is a cached execution of one notebook.
type Entry struct {
	Key        string
	Notebook   string // notebook the entry was recorded from
	Cells      []CellResult
	RunID      string
	RecordedAt time.Time
}

// Store persists cache entries.
type Store interface {
	// Get returns the entry for key, or nil if there is none.
	Get(key string) (*Entry, error)
	// Put stores an entry, replacing any entry with the same key.
	Put(entry *Entry) error
	Close() error
}

// Key returns the content key of a notebook.
func Key(nb *notebook.Notebook) string {
	h := sha256.New()
	h.Write([]byte(strconv.Itoa(len(nb.Cells))))
	for _, c := range nb.Cells {
		h.Write([]byte{0})
		h.Write([]byte(c.Type))
		h.Write([]byte{0})
		h.Write([]byte(c.Source()))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// MergeCachedExecution returns test with outputs and execution counts copied
// from a cached run of an identical notebook. On a miss the notebook is
// returned unchanged with hit == false; a miss is not an error.
func MergeCachedExecution(test *notebook.Notebook, store Store) (merged *notebook.Notebook, hit bool, err error) {
	key := Key(test)
	entry, err := store.Get(key)
	if err != nil {
		return test, false, fmt.Errorf("cache lookup: %w", err)
	}
	if entry == nil {
		logging.CacheDebug("no cached execution for key %s", key[:12])
		return test, false, nil
	}
	if len(entry.Cells) != len(test.Cells) {
		logging.Get(logging.CategoryCache).Warn("cached execution %s has %d cells, notebook has %d; ignoring",
			key[:12], len(entry.Cells), len(test.Cells))
		return test, false, nil
	}

	cells := make([]*notebook.Cell, len(test.Cells))
	for i, c := range test.Cells {
		r := entry.Cells[i]
		if c.Type != notebook.CellCode || (r.Outputs == nil && r.ExecutionCount == nil) {
			cells[i] = c
			continue
		}
		cp := c.Clone()
		cp.SetExecution(r.Outputs, r.ExecutionCount)
		cells[i] = cp
	}
	logging.CacheDebug("merged cached execution %s from run %s", key[:12], entry.RunID)
	return test.WithCells(cells), true, nil
}

// EntryFor captures the execution state of an executed notebook.
func EntryFor(nb *notebook.Notebook, name, runID string, now time.Time) *Entry {
	e := &Entry{
		Key:        Key(nb),
		Notebook:   name,
		Cells:      make([]CellResult, len(nb.Cells)),
		RunID:      runID,
		RecordedAt: now.UTC(),
	}
	for i, c := range nb.Cells {
		if c.Type == notebook.CellCode {
			e.Cells[i] = CellResult{Outputs: c.Outputs(), ExecutionCount: c.ExecutionCount()}
		}
	}
	return e
}

// Record reads an executed test notebook from path and stores its results.
func Record(store Store, path, runID string) (*Entry, error) {
	nb, err := notebook.ReadFile(path)
	if err != nil {
		return nil, err
	}
	e := EntryFor(nb, path, runID, time.Now())
	if err := store.Put(e); err != nil {
		return nil, fmt.Errorf("store execution of %s: %w", path, err)
	}
	logging.Cache("recorded execution of %s (%d cells)", path, len(e.Cells))
	return e, nil
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

func (m *MemoryStore) Get(key string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[key], nil
}

func (m *MemoryStore) Put(entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.Key] = entry
	return nil
}

func (m *MemoryStore) Close() error { return nil }
