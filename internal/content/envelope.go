package content

import (
	"errors"
	"fmt"
	"io"

	"github.com/samlab-dev/samstore/internal/jsonldb"
)

// Well-known content types produced by this package.
const (
	TypeArray = "application/x-numeric-array"
	TypeJPEG  = "image/jpeg"
	TypePNG   = "image/png"
	TypeText  = "text/plain; charset=utf-8"
	TypeJSON  = "application/json"
)

var (
	// ErrTypeMismatch is returned when a decode function receives an envelope
	// produced by a different codec.
	ErrTypeMismatch = errors.New("envelope content-type mismatch")
	// ErrUnsupportedFormat is returned when an encode function receives a
	// value it cannot handle.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrNoData is returned when an envelope has neither a stored blob nor a
	// pending payload.
	ErrNoData = errors.New("envelope has no data")
)

// Envelope wraps one piece of typed binary content owned by a document.
//
// Before persistence Payload holds the raw bytes and Data is unset; the store
// drains Payload into the blob store and fills Data. At rest only the blob
// handle, content type and advisory filename remain.
type Envelope struct {
	Data        jsonldb.Blob `json:"data" jsonschema:"description=Opaque blob store handle"`
	ContentType string       `json:"content-type" jsonschema:"description=MIME-like codec identifier"`
	Filename    string       `json:"filename,omitempty" jsonschema:"description=Advisory original filename"`

	// Payload carries the raw bytes between encode and persist. Never
	// serialized. If it implements io.Closer it is closed after storage.
	Payload io.Reader `json:"-"`
}

// Stored reports whether the envelope's data has been persisted to the blob store.
func (e *Envelope) Stored() bool {
	return !e.Data.IsZero()
}

// Reader returns the envelope's content: the pending payload if present,
// otherwise a stream from the blob store. The caller must close it.
func (e *Envelope) Reader() (io.ReadCloser, error) {
	if e.Payload != nil {
		if rc, ok := e.Payload.(io.ReadCloser); ok {
			return rc, nil
		}
		return io.NopCloser(e.Payload), nil
	}
	if e.Data.IsZero() {
		return nil, ErrNoData
	}
	return e.Data.Reader()
}

// expect verifies the envelope's content type before decoding.
func (e *Envelope) expect(contentTypes ...string) error {
	for _, ct := range contentTypes {
		if e.ContentType == ct {
			return nil
		}
	}
	return fmt.Errorf("%w: got %q", ErrTypeMismatch, e.ContentType)
}
