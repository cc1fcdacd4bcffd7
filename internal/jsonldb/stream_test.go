package jsonldb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maruel/ksid"
)

func TestStream(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	t.Run("delivers mutations in commit order", func(t *testing.T) {
		table, _ := setupTable(t)
		s := table.Watch(16)
		defer s.Close()

		table.Append(&testRow{ID: 1, Name: "One"})
		table.Update(&testRow{ID: 1, Name: "Uno"})
		table.Delete(1)

		want := []EventOp{OpInsert, OpUpdate, OpDelete}
		for _, op := range want {
			ev, err := s.Next(ctx)
			if err != nil {
				t.Fatalf("Next failed: %v", err)
			}
			if ev.Op != op {
				t.Errorf("got op %q, want %q", ev.Op, op)
			}
			if ev.Row.ID != 1 {
				t.Errorf("got row %+v, want ID 1", ev.Row)
			}
		}
	})

	t.Run("no replay of existing rows", func(t *testing.T) {
		table, _ := setupTable(t)
		table.Append(&testRow{ID: 1, Name: "Old"})
		s := table.Watch(16)
		defer s.Close()

		table.Append(&testRow{ID: 2, Name: "New"})
		ev, err := s.Next(ctx)
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if ev.Row.ID != 2 {
			t.Errorf("first event is row %d, want 2 (history must not replay)", ev.Row.ID)
		}
	})

	t.Run("overflow marks stream lost after draining", func(t *testing.T) {
		table, _ := setupTable(t)
		s := table.Watch(2)
		defer s.Close()

		for i := 1; i <= 4; i++ {
			table.Append(&testRow{ID: ksid.ID(i), Name: "row"})
		}
		// The two buffered events drain in order before the loss surfaces.
		for i := 1; i <= 2; i++ {
			ev, err := s.Next(ctx)
			if err != nil {
				t.Fatalf("Next %d failed: %v", i, err)
			}
			if ev.Row.ID != ksid.ID(i) {
				t.Errorf("event %d is row %d, want %d", i, ev.Row.ID, i)
			}
		}
		if _, err := s.Next(ctx); !errors.Is(err, ErrStreamLost) {
			t.Fatalf("Next = %v, want ErrStreamLost", err)
		}

		t.Run("resubscribe recovers", func(t *testing.T) {
			s2 := table.Watch(16)
			defer s2.Close()
			table.Append(&testRow{ID: 10, Name: "fresh"})
			ev, err := s2.Next(ctx)
			if err != nil {
				t.Fatalf("Next on fresh stream failed: %v", err)
			}
			if ev.Row.ID != 10 {
				t.Errorf("fresh stream got row %d, want 10", ev.Row.ID)
			}
		})
	})

	t.Run("close", func(t *testing.T) {
		table, _ := setupTable(t)
		s := table.Watch(4)
		table.Append(&testRow{ID: 1, Name: "One"})
		s.Close()

		// Buffered events drain before the closure surfaces.
		if ev, err := s.Next(ctx); err != nil || ev.Row.ID != 1 {
			t.Fatalf("Next = %+v, %v; want buffered event", ev, err)
		}
		if _, err := s.Next(ctx); !errors.Is(err, ErrStreamClosed) {
			t.Errorf("Next after close = %v, want ErrStreamClosed", err)
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		table, _ := setupTable(t)
		s := table.Watch(4)
		defer s.Close()
		short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		if _, err := s.Next(short); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Next = %v, want DeadlineExceeded", err)
		}
	})
}
