package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrBatchNotFound indicates the requested batch record does not exist.
var ErrBatchNotFound = errors.New("record: batch not found")

const indexFilename = "index.json"

// FileStore persists the index and batch records as one JSON file per
// logical key: index.json at the root, batch records under batches/. Writes
// replace the whole file atomically (temp file + rename), so a reader never
// observes a partially written record. Read-modify-write helpers serialize
// per key, closing the lost-update race between concurrent mutations of the
// same record.
type FileStore struct {
	dir    string
	logger *slog.Logger

	mu   sync.Mutex
	keys map[string]*sync.Mutex
}

// NewFileStore creates the data directory if needed and returns a store
// rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("record: store dir is empty")
	}
	if err := os.MkdirAll(filepath.Join(dir, "batches"), 0o755); err != nil {
		return nil, fmt.Errorf("record: mkdir %s: %w", dir, err)
	}
	return &FileStore{
		dir:    dir,
		logger: slog.Default().With("component", "record-store"),
		keys:   map[string]*sync.Mutex{},
	}, nil
}

// Dir reports the store's root directory.
func (s *FileStore) Dir() string { return s.dir }

// ReadIndex loads the index fresh from disk. A missing or unparsable file
// degrades to an empty index so callers never have to handle a read failure.
func (s *FileStore) ReadIndex(ctx context.Context) Index {
	_ = ctx
	data, err := os.ReadFile(s.path(indexFilename))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("index unreadable, starting empty", "error", err)
		}
		return NewIndex()
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		s.logger.Warn("index corrupt, starting empty", "error", err)
		return NewIndex()
	}
	if idx.Tokens == nil {
		idx.Tokens = map[string]string{}
	}
	return idx
}

// WriteIndex atomically replaces the persisted index.
func (s *FileStore) WriteIndex(ctx context.Context, idx Index) error {
	_ = ctx
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("record: marshal index: %w", err)
	}
	return s.writeAtomic(s.path(indexFilename), data)
}

// UpdateIndex runs fn against a freshly read index and persists the result,
// holding the index key lock across the whole read-modify-write.
func (s *FileStore) UpdateIndex(ctx context.Context, fn func(*Index) error) error {
	lock := s.keyLock(indexFilename)
	lock.Lock()
	defer lock.Unlock()

	idx := s.ReadIndex(ctx)
	if err := fn(&idx); err != nil {
		return err
	}
	return s.WriteIndex(ctx, idx)
}

// ReadBatch loads one batch record. Absent records return (nil, nil);
// a corrupt record is an error because silently dropping published content
// is worse than surfacing the fault.
func (s *FileStore) ReadBatch(ctx context.Context, filename string) (*Batch, error) {
	_ = ctx
	data, err := os.ReadFile(s.batchPath(filename))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("record: read batch %s: %w", filename, err)
	}
	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("record: decode batch %s: %w", filename, err)
	}
	return &b, nil
}

// WriteBatch atomically replaces one batch record.
func (s *FileStore) WriteBatch(ctx context.Context, filename string, b *Batch) error {
	_ = ctx
	if b == nil {
		return errors.New("record: batch is nil")
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("record: marshal batch %s: %w", filename, err)
	}
	return s.writeAtomic(s.batchPath(filename), data)
}

// UpdateBatch runs fn against the stored batch and persists the result under
// the per-filename lock. Returns ErrBatchNotFound when the record is absent.
func (s *FileStore) UpdateBatch(ctx context.Context, filename string, fn func(*Batch) error) error {
	lock := s.keyLock(safeKey(filename))
	lock.Lock()
	defer lock.Unlock()

	b, err := s.ReadBatch(ctx, filename)
	if err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("%w: %s", ErrBatchNotFound, filename)
	}
	if err := fn(b); err != nil {
		return err
	}
	return s.WriteBatch(ctx, filename, b)
}

// DeleteBatch removes the record file. Deleting an absent batch is a no-op.
func (s *FileStore) DeleteBatch(ctx context.Context, filename string) error {
	_ = ctx
	if err := os.Remove(s.batchPath(filename)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("record: delete batch %s: %w", filename, err)
	}
	return nil
}

// BatchExists reports whether a record file occupies the storage key.
func (s *FileStore) BatchExists(ctx context.Context, filename string) bool {
	_ = ctx
	_, err := os.Stat(s.batchPath(filename))
	return err == nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *FileStore) batchPath(filename string) string {
	return filepath.Join(s.dir, "batches", safeKey(filename)+".json")
}

func (s *FileStore) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.keys[key]
	if !ok {
		lock = &sync.Mutex{}
		s.keys[key] = lock
	}
	return lock
}

// writeAtomic writes data to a sibling temp file and renames it over the
// target so concurrent readers see either the old or the new record.
func (s *FileStore) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("record: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("record: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("record: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("record: replace %s: %w", path, err)
	}
	return nil
}

// safeKey retains only filesystem-safe characters, substituting underscores
// for everything else. Collisions between distinct inputs are resolved by
// the naming layer, not here.
func safeKey(filename string) string {
	var b strings.Builder
	b.Grow(len(filename))
	for _, r := range filename {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
