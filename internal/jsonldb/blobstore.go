package jsonldb

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/maruel/ksid"
)

// ErrBlobNotFound is returned when a blob handle does not resolve to stored data.
var ErrBlobNotFound = errors.New("blob not found")

// BlobWriter streams data to a new blob.
//
// Create via [BlobStore.NewWriter]. Write data using [BlobWriter.Write], then
// call [BlobWriter.Close] to finalize and get the [Blob] reference. If an
// error occurs during writing, call [BlobWriter.Abort] to clean up the
// temporary file.
type BlobWriter struct {
	store   *BlobStore
	tmpPath string
	file    io.WriteCloser // nil after Close or Abort
}

// Write implements io.Writer, writing to the temp file.
func (w *BlobWriter) Write(p []byte) (n int, err error) {
	if w.file == nil {
		return 0, fs.ErrClosed
	}
	return w.file.Write(p)
}

// Close finalizes the blob: closes the temp file, assigns a fresh handle, and
// renames to the final location.
func (w *BlobWriter) Close() (Blob, error) {
	if w.file == nil {
		return Blob{}, fs.ErrClosed
	}
	if err := w.file.Close(); err != nil {
		w.file = nil
		return Blob{}, errors.Join(fmt.Errorf("failed to close temp file: %w", err), os.Remove(w.tmpPath))
	}
	w.file = nil

	// Each write gets a fresh handle, never derived from the content: two
	// identical payloads stay independently deletable.
	ref := BlobRef(ksid.NewID().String())
	targetPath := w.store.pathForRef(ref)
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o750); err != nil {
		return Blob{}, errors.Join(fmt.Errorf("failed to create blob subdirectory: %w", err), os.Remove(w.tmpPath))
	}
	if err := os.Rename(w.tmpPath, targetPath); err != nil {
		return Blob{}, errors.Join(fmt.Errorf("failed to rename blob to final location: %w", err), os.Remove(w.tmpPath))
	}
	return Blob{Ref: ref, store: w.store}, nil
}

// Abort cancels the write and cleans up the temp file.
func (w *BlobWriter) Abort() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return errors.Join(err, os.Remove(w.tmpPath))
}

//

const tmpDirName = "tmp"

// BlobStore manages handle-addressed files in a directory.
//
// Files are organized with fan-out on the first two handle characters:
// <dir>/<ref[:2]>/<ref[2:]>. Temporary files during write are stored in
// <dir>/tmp/<random>.tmp.
type BlobStore struct {
	dir string
}

// NewBlobStore returns a store rooted at dir. The directory is created lazily
// on first write.
func NewBlobStore(dir string) *BlobStore {
	return &BlobStore{dir: dir}
}

// NewWriter creates a BlobWriter for streaming blob creation.
//
// Data is written to a temp file; Close() assigns the handle and renames to
// the final location.
func (bs *BlobStore) NewWriter() (*BlobWriter, error) {
	if err := os.MkdirAll(filepath.Join(bs.dir, tmpDirName), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create tmp directory: %w", err)
	}
	f, err := os.CreateTemp(filepath.Join(bs.dir, tmpDirName), "*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	return &BlobWriter{
		store:   bs,
		file:    f,
		tmpPath: f.Name(),
	}, nil
}

// Put stores everything read from r as a new blob and returns its reference.
func (bs *BlobStore) Put(r io.Reader) (Blob, error) {
	w, err := bs.NewWriter()
	if err != nil {
		return Blob{}, err
	}
	if _, err := io.Copy(w, r); err != nil {
		return Blob{}, errors.Join(fmt.Errorf("failed to write blob: %w", err), w.Abort())
	}
	return w.Close()
}

// Open returns a ReadCloser for the blob with the given ref.
//
// Returns [ErrBlobNotFound] for handles that do not resolve to stored data.
func (bs *BlobStore) Open(ref BlobRef) (io.ReadCloser, error) {
	if ref.IsZero() {
		return nil, ErrBlobNotFound
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	f, err := os.Open(bs.pathForRef(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, ref)
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return f, nil
}

// Remove removes a blob by ref.
//
// Removing a handle twice is a caller error and reported as
// [ErrBlobNotFound]; it never affects other blobs.
func (bs *BlobStore) Remove(ref BlobRef) error {
	if ref.IsZero() {
		return ErrBlobNotFound
	}
	if err := ref.Validate(); err != nil {
		return err
	}
	if err := os.Remove(bs.pathForRef(ref)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrBlobNotFound, ref)
		}
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// Bind attaches the store to a blob loaded from a table so that
// [Blob.Reader] works. Unset blobs are left alone.
func (bs *BlobStore) Bind(b *Blob) {
	if !b.IsZero() {
		b.store = bs
	}
}

// CleanupTmp removes stale temp files left behind by crashed writes.
func (bs *BlobStore) CleanupTmp() error {
	entries, err := os.ReadDir(filepath.Join(bs.dir, tmpDirName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read tmp directory: %w", err)
	}
	var errs []error
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".tmp") {
			if err := os.Remove(filepath.Join(bs.dir, tmpDirName, entry.Name())); err != nil {
				errs = append(errs, fmt.Errorf("failed to remove temp file %s: %w", entry.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// pathForRef returns the file path for a blob ref.
func (bs *BlobStore) pathForRef(ref BlobRef) string {
	s := string(ref)
	if len(s) < 3 {
		return filepath.Join(bs.dir, "00", s)
	}
	return filepath.Join(bs.dir, s[:2], s[2:])
}
