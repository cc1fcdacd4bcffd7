package notify

import (
	"context"
	"testing"
	"time"

	"github.com/samlab-dev/samstore/internal/store"
)

func TestWatcher(t *testing.T) {
	r, err := store.Open(store.DefaultConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	broker := NewBroker()
	w := NewWatcher(r, broker)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	ch, unsubscribe := broker.Subscribe(16)
	defer unsubscribe()

	receive := func(t *testing.T) Notification {
		t.Helper()
		select {
		case n := <-ch:
			return n
		case <-time.After(5 * time.Second):
			t.Fatal("no notification received")
			return Notification{}
		}
	}

	experiments, err := r.Collection("experiments")
	if err != nil {
		t.Fatal(err)
	}

	t.Run("document lifecycle", func(t *testing.T) {
		doc, err := experiments.Create("run", nil, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		n := receive(t)
		if n.Type != ObjectCreated || n.Collection != "experiments" || n.ID != doc.ID {
			t.Errorf("created notification = %+v", n)
		}

		if _, err := experiments.SetName(doc.ID, "renamed"); err != nil {
			t.Fatal(err)
		}
		if n := receive(t); n.Type != ObjectChanged || n.ID != doc.ID {
			t.Errorf("changed notification = %+v", n)
		}

		if err := r.Delete("experiments", doc.ID); err != nil {
			t.Fatal(err)
		}
		if n := receive(t); n.Type != ObjectDeleted || n.ID != doc.ID {
			t.Errorf("deleted notification = %+v", n)
		}
	})

	t.Run("favorites", func(t *testing.T) {
		doc, err := experiments.Create("bookmarked run", nil, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		receive(t) // The creation notification.

		fav, err := r.Favorites().Set("experiments", doc.ID, "best")
		if err != nil {
			t.Fatal(err)
		}
		n := receive(t)
		if n.Type != ObjectCreated || n.Collection != "favorites" || n.ID != fav.ID {
			t.Errorf("favorite notification = %+v", n)
		}

		if err := r.Favorites().Delete("experiments", doc.ID); err != nil {
			t.Fatal(err)
		}
		if n := receive(t); n.Type != ObjectDeleted || n.Collection != "favorites" || n.ID != fav.ID {
			t.Errorf("favorite removal notification = %+v", n)
		}
	})

	t.Run("timeseries", func(t *testing.T) {
		exp, err := experiments.Create("metrics run", nil, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		receive(t) // The creation notification.

		if _, err := r.Timeseries().AddScalar(exp.ID, "trial-0", "loss", 0, 1.0); err != nil {
			t.Fatal(err)
		}
		n := receive(t)
		if n.Type != TimeseriesChanged || n.Key != "loss" {
			t.Errorf("timeseries notification = %+v", n)
		}
	})
}
