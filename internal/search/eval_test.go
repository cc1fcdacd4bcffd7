package search

import (
	"strings"
	"testing"

	"github.com/maruel/ksid"
)

// fakeCollection indexes a handful of fixed documents for evaluator tests.
type fakeCollection struct {
	text    map[ksid.ID]string
	content map[ksid.ID][]string
	attrs   map[ksid.ID][]string
}

func (f *fakeCollection) IDs() IDSet {
	ids := make(IDSet, len(f.text))
	for id := range f.text {
		ids[id] = struct{}{}
	}
	return ids
}

func (f *fakeCollection) MatchText(phrase string) IDSet {
	ids := make(IDSet)
	needle := strings.ToLower(phrase)
	if needle == "" {
		return ids
	}
	for id, text := range f.text {
		if strings.Contains(strings.ToLower(text), needle) {
			ids[id] = struct{}{}
		}
	}
	return ids
}

func (f *fakeCollection) WithContentKey(key string) IDSet {
	return f.keyed(f.content, key)
}

func (f *fakeCollection) WithAttributeKey(key string) IDSet {
	return f.keyed(f.attrs, key)
}

func (f *fakeCollection) keyed(m map[ksid.ID][]string, key string) IDSet {
	ids := make(IDSet)
	for id, keys := range m {
		for _, k := range keys {
			if k == key {
				ids[id] = struct{}{}
			}
		}
	}
	return ids
}

func (f *fakeCollection) Contains(id ksid.ID) bool {
	_, ok := f.text[id]
	return ok
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{
		text: map[ksid.ID]string{
			1: "red fox",
			2: "red panda",
			3: "blue whale",
			4: "",
		},
		content: map[ksid.ID][]string{
			1: {"image"},
			3: {"image", "audio"},
		},
		attrs: map[ksid.ID][]string{
			2: {"loss"},
			4: {"loss", "epoch"},
		},
	}
}

func ids(members ...ksid.ID) IDSet {
	s := make(IDSet, len(members))
	for _, id := range members {
		s[id] = struct{}{}
	}
	return s
}

func TestEvaluate(t *testing.T) {
	c := newFakeCollection()
	tests := []struct {
		name  string
		query string
		want  IDSet
	}{
		{"text match", `red`, ids(1, 2)},
		{"text match is case-insensitive", `RED`, ids(1, 2)},
		{"content key match", `image`, ids(1, 3)},
		{"attribute key match", `loss`, ids(2, 4)},
		{"term unions all branches", `audio`, ids(3)},
		{"no match", `nothing`, ids()},
		{"and intersects", `red and panda`, ids(2)},
		{"or unions", `fox or whale`, ids(1, 3)},
		{"not complements within the collection", `not red`, ids(3, 4)},
		{"double negation is identity", `not not red`, ids(1, 2)},
		{"precedence", `image or loss and epoch`, ids(1, 3, 4)},
		{"parens", `(image or loss) and epoch`, ids(4)},
		{"empty intersection short-circuits", `nothing and red`, ids()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Search(c, tt.query)
			if err != nil {
				t.Fatalf("Search(%q) failed: %v", tt.query, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Search(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}

	t.Run("id literal", func(t *testing.T) {
		id := ksid.ID(3)
		got, err := Search(c, id.String())
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if _, ok := got[id]; !ok {
			t.Errorf("Search by id literal %s missed the document: %v", id, got)
		}
	})

	t.Run("empty boolean operands", func(t *testing.T) {
		// The parser never builds these, but the node types are exported:
		// the identities must hold for hand-built trees too.
		if got := Evaluate(c, And{}); !got.Equal(c.IDs()) {
			t.Errorf("And of no operands = %v, want the whole collection", got)
		}
		if got := Evaluate(c, Or{}); !got.Equal(ids()) {
			t.Errorf("Or of no operands = %v, want empty", got)
		}
	})

	t.Run("single operand boolean equals operand", func(t *testing.T) {
		want := Evaluate(c, Term("red"))
		if got := Evaluate(c, And{Term("red")}); !got.Equal(want) {
			t.Errorf("And of one operand = %v, want %v", got, want)
		}
		if got := Evaluate(c, Or{Term("red")}); !got.Equal(want) {
			t.Errorf("Or of one operand = %v, want %v", got, want)
		}
	})

	t.Run("parse error propagates", func(t *testing.T) {
		if _, err := Search(c, `"broken`); err == nil {
			t.Error("Search with malformed query should fail")
		}
	})
}

func TestIDSet(t *testing.T) {
	t.Run("Union", func(t *testing.T) {
		if got := ids(1, 2).Union(ids(2, 3)); !got.Equal(ids(1, 2, 3)) {
			t.Errorf("Union = %v", got)
		}
	})
	t.Run("Intersect", func(t *testing.T) {
		if got := ids(1, 2, 3).Intersect(ids(2, 3, 4)); !got.Equal(ids(2, 3)) {
			t.Errorf("Intersect = %v", got)
		}
	})
	t.Run("Subtract", func(t *testing.T) {
		if got := ids(1, 2, 3).Subtract(ids(2)); !got.Equal(ids(1, 3)) {
			t.Errorf("Subtract = %v", got)
		}
	})
	t.Run("Equal", func(t *testing.T) {
		if !ids().Equal(ids()) {
			t.Error("empty sets should be equal")
		}
		if ids(1).Equal(ids(2)) {
			t.Error("different sets reported equal")
		}
	})
}
