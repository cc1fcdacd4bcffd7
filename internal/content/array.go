package content

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"slices"
)

// arrayMagic identifies the numeric array binary format, followed by a
// one-byte format version.
var arrayMagic = [4]byte{'S', 'A', 'M', 1}

// Array is a multi-dimensional numeric array stored in row-major order.
//
// Len(Data) must equal the product of Shape. A scalar has an empty shape and
// a single element.
type Array struct {
	Shape []int
	Data  []float64
}

// NewArray allocates a zero-filled array with the given shape.
func NewArray(shape ...int) (*Array, error) {
	n, err := elementCount(shape)
	if err != nil {
		return nil, err
	}
	return &Array{Shape: slices.Clone(shape), Data: make([]float64, n)}, nil
}

// Equal reports whether two arrays have the same shape and bit-identical elements.
func (a *Array) Equal(b *Array) bool {
	if !slices.Equal(a.Shape, b.Shape) || len(a.Data) != len(b.Data) {
		return false
	}
	for i := range a.Data {
		if math.Float64bits(a.Data[i]) != math.Float64bits(b.Data[i]) {
			return false
		}
	}
	return true
}

func elementCount(shape []int) (int, error) {
	n := 1
	for _, dim := range shape {
		if dim < 0 {
			return 0, fmt.Errorf("negative dimension %d", dim)
		}
		n *= dim
	}
	return n, nil
}

// EncodeArray serializes a numeric array into an envelope with content type
// [TypeArray].
//
// Layout: 4-byte magic+version, uint32 rank, rank uint64 dimensions, then
// the elements as little-endian float64.
func EncodeArray(a *Array) (*Envelope, error) {
	n, err := elementCount(a.Shape)
	if err != nil {
		return nil, err
	}
	if n != len(a.Data) {
		return nil, fmt.Errorf("shape %v wants %d elements, have %d", a.Shape, n, len(a.Data))
	}
	buf := bytes.NewBuffer(make([]byte, 0, 8+len(a.Shape)*8+len(a.Data)*8))
	buf.Write(arrayMagic[:])
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(a.Shape)))
	for _, dim := range a.Shape {
		_ = binary.Write(buf, binary.LittleEndian, uint64(dim))
	}
	_ = binary.Write(buf, binary.LittleEndian, a.Data)
	return &Envelope{ContentType: TypeArray, Payload: bytes.NewReader(buf.Bytes())}, nil
}

// DecodeArray reads an envelope produced by [EncodeArray] back into an array.
func DecodeArray(e *Envelope) (*Array, error) {
	if err := e.expect(TypeArray); err != nil {
		return nil, err
	}
	r, err := e.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = r.Close()
	}()

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("failed to read array header: %w", err)
	}
	if magic != arrayMagic {
		return nil, fmt.Errorf("%w: bad array magic", ErrTypeMismatch)
	}
	var rank uint32
	if err := binary.Read(r, binary.LittleEndian, &rank); err != nil {
		return nil, fmt.Errorf("failed to read array rank: %w", err)
	}
	const maxRank = 64
	if rank > maxRank {
		return nil, fmt.Errorf("array rank %d exceeds limit %d", rank, maxRank)
	}
	// Bounds the allocation driven by an untrusted header: dimensions are
	// read before any element data exists to back them.
	const maxElements = 1 << 27 // 1 GiB of float64
	shape := make([]int, rank)
	n := 1
	for i := range shape {
		var dim uint64
		if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
			return nil, fmt.Errorf("failed to read array shape: %w", err)
		}
		if dim > math.MaxInt32 {
			return nil, fmt.Errorf("array dimension %d too large", dim)
		}
		shape[i] = int(dim)
		if n *= int(dim); n > maxElements {
			return nil, fmt.Errorf("array of shape %v exceeds %d elements", shape[:i+1], maxElements)
		}
	}
	data := make([]float64, n)
	if err := binary.Read(r, binary.LittleEndian, &data); err != nil {
		return nil, fmt.Errorf("failed to read array data: %w", err)
	}
	return &Array{Shape: shape, Data: data}, nil
}
