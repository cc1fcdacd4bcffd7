package content

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoding for DecodeImage
	"os"
	"path/filepath"
	"strings"
)

// jpegQuality matches the quality the original system used when re-encoding
// in-memory images.
const jpegQuality = 95

// EncodeImage serializes an in-memory image into an envelope, always
// re-encoded as JPEG.
func EncodeImage(img image.Image) (*Envelope, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return &Envelope{ContentType: TypeJPEG, Payload: bytes.NewReader(buf.Bytes())}, nil
}

// EncodeImagePath builds an envelope from an image file on disk, picking the
// content type from the extension. The file bytes are passed through
// untouched and the path is recorded as the advisory filename.
//
// Returns [ErrUnsupportedFormat] for extensions other than .jpg/.jpeg/.png.
func EncodeImagePath(path string) (*Envelope, error) {
	var contentType string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		contentType = TypeJPEG
	case ".png":
		contentType = TypePNG
	default:
		return nil, fmt.Errorf("%w: unknown image type %q", ErrUnsupportedFormat, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	return &Envelope{ContentType: contentType, Filename: path, Payload: f}, nil
}

// DecodeImage reads an envelope produced by [EncodeImage] or
// [EncodeImagePath] back into an in-memory image.
func DecodeImage(e *Envelope) (image.Image, error) {
	if err := e.expect(TypeJPEG, TypePNG); err != nil {
		return nil, err
	}
	r, err := e.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = r.Close()
	}()
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}
