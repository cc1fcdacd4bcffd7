package content

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestArray(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		tests := []struct {
			name  string
			shape []int
			fill  func(a *Array)
		}{
			{"scalar", nil, func(a *Array) { a.Data[0] = 42.5 }},
			{"vector", []int{3}, func(a *Array) { a.Data[1] = -1e300 }},
			{"matrix", []int{2, 3}, func(a *Array) {
				for i := range a.Data {
					a.Data[i] = float64(i) * 0.25
				}
			}},
			{"empty dimension", []int{0, 4}, func(a *Array) {}},
			{"special values", []int{3}, func(a *Array) {
				a.Data[0] = math.Inf(1)
				a.Data[1] = math.NaN()
				a.Data[2] = math.Copysign(0, -1)
			}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				a, err := NewArray(tt.shape...)
				if err != nil {
					t.Fatalf("NewArray failed: %v", err)
				}
				tt.fill(a)
				env, err := EncodeArray(a)
				if err != nil {
					t.Fatalf("EncodeArray failed: %v", err)
				}
				if env.ContentType != TypeArray {
					t.Errorf("content type = %q, want %q", env.ContentType, TypeArray)
				}
				got, err := DecodeArray(env)
				if err != nil {
					t.Fatalf("DecodeArray failed: %v", err)
				}
				if !a.Equal(got) {
					t.Errorf("round trip mismatch: %+v vs %+v", a, got)
				}
			})
		}
	})

	t.Run("invalid", func(t *testing.T) {
		t.Run("shape mismatch", func(t *testing.T) {
			if _, err := EncodeArray(&Array{Shape: []int{2}, Data: []float64{1}}); err == nil {
				t.Error("EncodeArray with too few elements should fail")
			}
		})
		t.Run("negative dimension", func(t *testing.T) {
			if _, err := NewArray(-1); err == nil {
				t.Error("NewArray(-1) should fail")
			}
		})
		t.Run("wrong content type", func(t *testing.T) {
			env := EncodeString("not an array")
			if _, err := DecodeArray(env); !errors.Is(err, ErrTypeMismatch) {
				t.Errorf("DecodeArray = %v, want ErrTypeMismatch", err)
			}
		})
		t.Run("bad magic", func(t *testing.T) {
			env := &Envelope{ContentType: TypeArray, Payload: strings.NewReader("XXXXGARBAGE")}
			if _, err := DecodeArray(env); !errors.Is(err, ErrTypeMismatch) {
				t.Errorf("DecodeArray = %v, want ErrTypeMismatch", err)
			}
		})
		t.Run("oversized shape", func(t *testing.T) {
			// A corrupted header must surface as an error, not as a huge
			// allocation: rank 4 with maximal dimensions claims 2^124 elements.
			var buf bytes.Buffer
			buf.Write(arrayMagic[:])
			if err := binary.Write(&buf, binary.LittleEndian, uint32(4)); err != nil {
				t.Fatal(err)
			}
			for range 4 {
				if err := binary.Write(&buf, binary.LittleEndian, uint64(math.MaxInt32)); err != nil {
					t.Fatal(err)
				}
			}
			env := &Envelope{ContentType: TypeArray, Payload: bytes.NewReader(buf.Bytes())}
			if _, err := DecodeArray(env); err == nil {
				t.Error("DecodeArray with an oversized shape should fail")
			}
		})
	})
}

func TestString(t *testing.T) {
	env := EncodeString("héllo")
	if env.ContentType != TypeText {
		t.Errorf("content type = %q, want %q", env.ContentType, TypeText)
	}
	got, err := DecodeString(env)
	if err != nil {
		t.Fatalf("DecodeString failed: %v", err)
	}
	if got != "héllo" {
		t.Errorf("DecodeString = %q, want héllo", got)
	}
	if _, err := DecodeString(&Envelope{ContentType: TypeJSON, Payload: strings.NewReader(`""`)}); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("DecodeString on json envelope = %v, want ErrTypeMismatch", err)
	}
}

func TestJSON(t *testing.T) {
	env, err := EncodeJSON(map[string]any{"loss": 0.25, "tags": []string{"a"}})
	if err != nil {
		t.Fatalf("EncodeJSON failed: %v", err)
	}
	var out map[string]any
	if err := DecodeJSON(env, &out); err != nil {
		t.Fatalf("DecodeJSON failed: %v", err)
	}
	if out["loss"] != 0.25 {
		t.Errorf("loss = %v, want 0.25", out["loss"])
	}
	t.Run("unmarshalable value", func(t *testing.T) {
		if _, err := EncodeJSON(func() {}); err == nil {
			t.Error("EncodeJSON of a function should fail")
		}
	})
}

func TestImage(t *testing.T) {
	makeImage := func() image.Image {
		img := image.NewRGBA(image.Rect(0, 0, 8, 6))
		for x := range 8 {
			img.Set(x, 0, color.RGBA{R: uint8(x * 30), A: 255})
		}
		return img
	}

	t.Run("encode decode", func(t *testing.T) {
		env, err := EncodeImage(makeImage())
		if err != nil {
			t.Fatalf("EncodeImage failed: %v", err)
		}
		if env.ContentType != TypeJPEG {
			t.Errorf("content type = %q, want %q", env.ContentType, TypeJPEG)
		}
		img, err := DecodeImage(env)
		if err != nil {
			t.Fatalf("DecodeImage failed: %v", err)
		}
		if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 6 {
			t.Errorf("decoded bounds %v, want 8x6", b)
		}
	})

	t.Run("from png file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "pic.png")
		var buf bytes.Buffer
		if err := png.Encode(&buf, makeImage()); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			t.Fatal(err)
		}
		env, err := EncodeImagePath(path)
		if err != nil {
			t.Fatalf("EncodeImagePath failed: %v", err)
		}
		if env.ContentType != TypePNG {
			t.Errorf("content type = %q, want %q", env.ContentType, TypePNG)
		}
		if env.Filename != path {
			t.Errorf("filename = %q, want %q", env.Filename, path)
		}
		img, err := DecodeImage(env)
		if err != nil {
			t.Fatalf("DecodeImage failed: %v", err)
		}
		if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 6 {
			t.Errorf("decoded bounds %v, want 8x6", b)
		}
	})

	t.Run("unsupported extension", func(t *testing.T) {
		if _, err := EncodeImagePath("diagram.svg"); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("EncodeImagePath(.svg) = %v, want ErrUnsupportedFormat", err)
		}
	})

	t.Run("wrong content type", func(t *testing.T) {
		env := EncodeString("not an image")
		if _, err := DecodeImage(env); !errors.Is(err, ErrTypeMismatch) {
			t.Errorf("DecodeImage = %v, want ErrTypeMismatch", err)
		}
	})
}

func TestEnvelope(t *testing.T) {
	t.Run("no data", func(t *testing.T) {
		e := &Envelope{ContentType: TypeText}
		if _, err := e.Reader(); !errors.Is(err, ErrNoData) {
			t.Errorf("Reader = %v, want ErrNoData", err)
		}
		if e.Stored() {
			t.Error("empty envelope reports stored")
		}
	})
}
