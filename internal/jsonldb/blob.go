// Defines the Blob type and handle-based reference format.

package jsonldb

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/maruel/ksid"
)

// BlobRef is an opaque blob handle: the string form of the ksid assigned at
// write time. Handles are unique per write; storing the same bytes twice
// yields two distinct handles, so every handle has exactly one owner.
type BlobRef string

// Validate checks if the blob reference is well-formed. The empty ref is
// valid (unset).
func (r BlobRef) Validate() error {
	if r == "" {
		return nil
	}
	if _, err := ksid.Parse(string(r)); err != nil {
		return errInvalidBlobRef
	}
	return nil
}

// IsZero returns true if the blob reference is unset.
func (r BlobRef) IsZero() bool {
	return r == ""
}

// Blob represents a reference to binary data stored externally.
//
// Blob fields store only a handle in the JSONL table; actual data lives in
// the [BlobStore] directory. Use [BlobStore.NewWriter] or [BlobStore.Put] to
// create blobs, then [Blob.Reader] to stream data back. The store pointer is
// not serialized; [BlobStore.Bind] re-attaches it after unmarshal.
type Blob struct {
	Ref   BlobRef
	store *BlobStore
}

// IsZero returns true if the blob is unset (no handle assigned).
// Implements the interface for json omitzero.
func (b Blob) IsZero() bool {
	return b.Ref.IsZero()
}

// Reader opens the blob for streaming read.
//
// The caller must close the returned ReadCloser.
func (b Blob) Reader() (io.ReadCloser, error) {
	if b.IsZero() {
		return nil, errUnsetBlob
	}
	if b.store == nil {
		return nil, errNoBlobStore
	}
	return b.store.Open(b.Ref)
}

// MarshalJSON implements json.Marshaler. Only the handle is serialized.
func (b Blob) MarshalJSON() ([]byte, error) {
	if b.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(b.Ref)
}

// UnmarshalJSON implements json.Unmarshaler. Only the handle is deserialized.
func (b *Blob) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		b.Ref = ""
		return nil
	}
	return json.Unmarshal(data, &b.Ref)
}

//

var (
	errUnsetBlob      = errors.New("blob is unset")
	errNoBlobStore    = errors.New("blob has no store reference")
	errInvalidBlobRef = errors.New("invalid blob ref")
)
