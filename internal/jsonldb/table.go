package jsonldb

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/maruel/ksid"
)

// Cloner is implemented by types that can clone themselves.
type Cloner[T any] interface {
	Clone() T
}

// Row is the constraint for types stored in a [Table].
type Row[T any] interface {
	Cloner[T]
	GetID() ksid.ID
}

// Validator is optionally implemented by rows to reject bad data on write.
type Validator interface {
	Validate() error
}

// TableObserver receives table mutations in commit order.
//
// Callbacks run under the table write lock and must not call back into the
// table or block.
type TableObserver[T Row[T]] interface {
	OnAppend(row T)
	OnUpdate(prev, curr T)
	OnDelete(row T)
}

// ErrNotFound is returned when a row ID does not resolve to a stored row.
var ErrNotFound = errors.New("row not found")

// Table handles storage and in-memory caching for a single table in JSONL format.
type Table[T Row[T]] struct {
	path string

	mu        sync.RWMutex
	rows      []T // sorted by ID
	byID      map[ksid.ID]int
	observers []TableObserver[T]
}

// NewTable creates a new Table and loads all data from the file.
func NewTable[T Row[T]](path string) (*Table[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	t := &Table[T]{path: path}
	rows, err := t.readFile()
	if err != nil {
		return nil, err
	}
	t.rows = rows
	t.byID = indexByID(rows)
	return t, nil
}

// Path returns the file backing this table.
func (t *Table[T]) Path() string {
	return t.path
}

// readFile parses the JSONL file into a slice of rows sorted by ID.
func (t *Table[T]) readFile() ([]T, error) {
	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []T{}, nil
		}
		return nil, fmt.Errorf("failed to open table file %s: %w", t.path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	var rows []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var row T
		if err := json.Unmarshal(line, &row); err != nil {
			return nil, fmt.Errorf("failed to unmarshal row in %s: %w", t.path, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read table file %s: %w", t.path, err)
	}

	// Sort on load if out of order (handles clock drift, manual edits).
	if !slices.IsSortedFunc(rows, compareRows[T]) {
		slices.SortFunc(rows, compareRows[T])
	}
	return rows, nil
}

func compareRows[T Row[T]](a, b T) int {
	ai, bi := a.GetID(), b.GetID()
	if ai < bi {
		return -1
	}
	if ai > bi {
		return 1
	}
	return 0
}

func indexByID[T Row[T]](rows []T) map[ksid.ID]int {
	byID := make(map[ksid.ID]int, len(rows))
	for i, row := range rows {
		byID[row.GetID()] = i
	}
	return byID
}

// AddObserver registers an observer for subsequent mutations and replays the
// current rows through OnAppend so indexes start synchronized.
func (t *Table[T]) AddObserver(o TableObserver[T]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, o)
	for _, row := range t.rows {
		o.OnAppend(row)
	}
}

// RemoveObserver unregisters a previously added observer.
func (t *Table[T]) RemoveObserver(o TableObserver[T]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, cur := range t.observers {
		if cur == o {
			t.observers = slices.Delete(t.observers, i, i+1)
			return
		}
	}
}

// Len returns the number of rows.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Get returns a clone of the row with the given ID, or the zero value if not found.
func (t *Table[T]) Get(id ksid.ID) T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.byID[id]
	if !ok {
		var zero T
		return zero
	}
	return t.rows[i].Clone()
}

// All returns an iterator over clones of all rows in ID order.
func (t *Table[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		t.mu.RLock()
		defer t.mu.RUnlock()
		for _, row := range t.rows {
			if !yield(row.Clone()) {
				return
			}
		}
	}
}

// Append adds a new row to the table and persists it.
func (t *Table[T]) Append(row T) error {
	if err := validateRow(row); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	id := row.GetID()
	if _, ok := t.byID[id]; ok {
		return fmt.Errorf("duplicate row id %s in %s", id, t.path)
	}

	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal row: %w", err)
	}
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open table file for append: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}

	// IDs are time-sortable so appends normally keep the slice ordered;
	// fall back to a sorted insert when they do not.
	if n := len(t.rows); n > 0 && t.rows[n-1].GetID() > id {
		at, _ := slices.BinarySearchFunc(t.rows, row, compareRows[T])
		t.rows = slices.Insert(t.rows, at, row)
		t.byID = indexByID(t.rows)
	} else {
		t.rows = append(t.rows, row)
		t.byID[id] = len(t.rows) - 1
	}
	t.notifyAppend(row)
	return nil
}

// Update replaces the row with the same ID and persists the table.
func (t *Table[T]) Update(row T) error {
	if err := validateRow(row); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.updateLocked(row)
}

func (t *Table[T]) updateLocked(row T) error {
	i, ok := t.byID[row.GetID()]
	if !ok {
		return ErrNotFound
	}
	prev := t.rows[i]
	t.rows[i] = row
	if err := t.rewriteLocked(); err != nil {
		t.rows[i] = prev
		return err
	}
	t.notifyUpdate(prev, row)
	return nil
}

// Modify atomically applies fn to a clone of the row and persists the result.
//
// The write lock is held for the whole read-modify-write, so fn must be fast
// and must not call back into the table. Returns a clone of the stored row.
func (t *Table[T]) Modify(id ksid.ID, fn func(row T) error) (T, error) {
	var zero T
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.byID[id]
	if !ok {
		return zero, ErrNotFound
	}
	row := t.rows[i].Clone()
	if err := fn(row); err != nil {
		return zero, err
	}
	if row.GetID() != id {
		return zero, fmt.Errorf("modify must not change the row id %s", id)
	}
	if err := validateRow(row); err != nil {
		return zero, err
	}
	if err := t.updateLocked(row); err != nil {
		return zero, err
	}
	return row.Clone(), nil
}

// Delete removes the row with the given ID and persists the table.
func (t *Table[T]) Delete(id ksid.ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.byID[id]
	if !ok {
		return ErrNotFound
	}
	row := t.rows[i]
	t.rows = slices.Delete(t.rows, i, i+1)
	t.byID = indexByID(t.rows)
	if err := t.rewriteLocked(); err != nil {
		t.rows = slices.Insert(t.rows, i, row)
		t.byID = indexByID(t.rows)
		return err
	}
	t.notifyDelete(row)
	return nil
}

// Reload re-reads the file and reconciles the cache against it, firing
// observer events for every difference. External edits to the file surface
// as regular appends, updates and deletes; a reload after our own write is a
// no-op since the cache already matches the file.
func (t *Table[T]) Reload() error {
	fresh, err := t.readFile()
	if err != nil {
		return err
	}
	freshByID := indexByID(fresh)

	t.mu.Lock()
	defer t.mu.Unlock()

	var deleted, updated [][2]T // [prev, curr]
	var added []T
	for _, row := range t.rows {
		j, ok := freshByID[row.GetID()]
		if !ok {
			deleted = append(deleted, [2]T{row, row})
			continue
		}
		if !sameJSON(row, fresh[j]) {
			updated = append(updated, [2]T{row, fresh[j]})
		}
	}
	for _, row := range fresh {
		if _, ok := t.byID[row.GetID()]; !ok {
			added = append(added, row)
		}
	}

	t.rows = fresh
	t.byID = freshByID
	for _, pair := range deleted {
		t.notifyDelete(pair[0])
	}
	for _, pair := range updated {
		t.notifyUpdate(pair[0], pair[1])
	}
	for _, row := range added {
		t.notifyAppend(row)
	}
	return nil
}

// rewriteLocked persists all rows. Caller must hold the write lock.
func (t *Table[T]) rewriteLocked() error {
	tmp := t.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create table file: %w", err)
	}
	writer := bufio.NewWriter(f)
	for _, row := range t.rows {
		data, err := json.Marshal(row)
		if err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to marshal row: %w", err)
		}
		if _, err := writer.Write(append(data, '\n')); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	if err := writer.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close table file: %w", err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		return fmt.Errorf("failed to replace table file: %w", err)
	}
	return nil
}

func (t *Table[T]) notifyAppend(row T) {
	for _, o := range t.observers {
		o.OnAppend(row)
	}
}

func (t *Table[T]) notifyUpdate(prev, curr T) {
	for _, o := range t.observers {
		o.OnUpdate(prev, curr)
	}
}

func (t *Table[T]) notifyDelete(row T) {
	for _, o := range t.observers {
		o.OnDelete(row)
	}
}

func validateRow[T Row[T]](row T) error {
	if v, ok := any(row).(Validator); ok {
		return v.Validate()
	}
	return nil
}

func sameJSON[T any](a, b T) bool {
	da, err := json.Marshal(a)
	if err != nil {
		return false
	}
	db, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(da) == string(db)
}
