package jsonldb

import (
	"testing"
)

func TestUniqueIndex(t *testing.T) {
	table, _ := setupTable(t)
	table.Append(&testRow{ID: 1, Name: "alpha"})
	idx := NewUniqueIndex(table, func(r *testRow) string { return r.Name })

	t.Run("existing rows indexed on creation", func(t *testing.T) {
		if got := idx.Get("alpha"); got == nil || got.ID != 1 {
			t.Errorf("Get(alpha) = %+v, want ID 1", got)
		}
	})

	t.Run("tracks append and update", func(t *testing.T) {
		table.Append(&testRow{ID: 2, Name: "beta"})
		if got := idx.Get("beta"); got == nil || got.ID != 2 {
			t.Errorf("Get(beta) = %+v, want ID 2", got)
		}
		table.Update(&testRow{ID: 2, Name: "gamma"})
		if idx.Get("beta") != nil {
			t.Error("old key still resolves after update")
		}
		if got := idx.Get("gamma"); got == nil || got.ID != 2 {
			t.Errorf("Get(gamma) = %+v, want ID 2", got)
		}
	})

	t.Run("tracks delete", func(t *testing.T) {
		table.Delete(2)
		if idx.Get("gamma") != nil {
			t.Error("deleted row still resolves")
		}
	})
}

func TestIndex(t *testing.T) {
	table, _ := setupTable(t)
	table.Append(&testRow{ID: 1, Name: "red"})
	table.Append(&testRow{ID: 2, Name: "red"})
	table.Append(&testRow{ID: 3, Name: "blue"})
	idx := NewIndex(table, func(r *testRow) string { return r.Name })

	if ids := idx.IDs("red"); len(ids) != 2 {
		t.Errorf("IDs(red) = %v, want 2 entries", ids)
	}
	if ids := idx.IDs("green"); len(ids) != 0 {
		t.Errorf("IDs(green) = %v, want empty", ids)
	}

	t.Run("snapshot isolation", func(t *testing.T) {
		ids := idx.IDs("red")
		delete(ids, 1)
		if len(idx.IDs("red")) != 2 {
			t.Error("mutating the returned set must not affect the index")
		}
	})

	t.Run("Iter", func(t *testing.T) {
		n := 0
		for row := range idx.Iter("red") {
			if row.Name != "red" {
				t.Errorf("Iter yielded %+v", row)
			}
			n++
		}
		if n != 2 {
			t.Errorf("Iter yielded %d rows, want 2", n)
		}
	})

	t.Run("tracks mutation", func(t *testing.T) {
		table.Update(&testRow{ID: 2, Name: "blue"})
		if len(idx.IDs("red")) != 1 || len(idx.IDs("blue")) != 2 {
			t.Error("index out of sync after update")
		}
		table.Delete(3)
		if len(idx.IDs("blue")) != 1 {
			t.Error("index out of sync after delete")
		}
	})
}

func TestMultiIndex(t *testing.T) {
	table, _ := setupTable(t)
	table.Append(&testRow{ID: 1, Name: "ab"})
	table.Append(&testRow{ID: 2, Name: "bc"})
	// One key per letter of the name.
	idx := NewMultiIndex(table, func(r *testRow) []string {
		keys := make([]string, 0, len(r.Name))
		for _, c := range r.Name {
			keys = append(keys, string(c))
		}
		return keys
	})

	if ids := idx.IDs("b"); len(ids) != 2 {
		t.Errorf("IDs(b) = %v, want both rows", ids)
	}
	if ids := idx.IDs("a"); len(ids) != 1 {
		t.Errorf("IDs(a) = %v, want one row", ids)
	}

	t.Run("Keys", func(t *testing.T) {
		keys := idx.Keys()
		if len(keys) != 3 {
			t.Errorf("Keys() = %v, want [a b c]", keys)
		}
	})

	t.Run("tracks mutation", func(t *testing.T) {
		table.Update(&testRow{ID: 1, Name: "cd"})
		if len(idx.IDs("a")) != 0 {
			t.Error("stale key after update")
		}
		if len(idx.IDs("c")) != 2 || len(idx.IDs("d")) != 1 {
			t.Error("new keys missing after update")
		}
		table.Delete(2)
		if len(idx.IDs("b")) != 0 {
			t.Error("stale key after delete")
		}
	})
}
