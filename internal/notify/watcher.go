package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/samlab-dev/samstore/internal/jsonldb"
	"github.com/samlab-dev/samstore/internal/store"
)

// streamBuffer bounds how far a watcher may fall behind a table before its
// stream is marked lost and it re-subscribes.
const streamBuffer = 256

// Watcher pumps table change streams into a broker: one goroutine per
// watched collection plus one each for favorites and timeseries. Streams are
// opened when the watcher is built, so every mutation from that point on is
// captured. A lost
// or failed stream is re-subscribed, paced by a rate limiter; collections are
// isolated, one failing stream never affects the others. Only context
// cancellation stops a watcher.
type Watcher struct {
	broker  *Broker
	entries []watchEntry
}

type watchEntry struct {
	name   string
	stream streamCloser
	reopen func() streamCloser
}

// NewWatcher subscribes to the registry's watched collections, its favorites
// and its timeseries, wiring them to the broker. Call [Watcher.Run] to start
// pumping.
func NewWatcher(registry *store.Registry, broker *Broker) *Watcher {
	w := &Watcher{broker: broker}
	for _, c := range registry.Watched() {
		open := func() streamCloser {
			return streamFunc[*store.Document]{c.Watch(streamBuffer), func(ev jsonldb.Event[*store.Document]) Notification {
				return FromDocumentEvent(c.Name(), ev)
			}}
		}
		w.entries = append(w.entries, watchEntry{name: c.Name(), stream: open(), reopen: open})
	}
	openFavorites := func() streamCloser {
		return streamFunc[*store.Favorite]{registry.Favorites().Watch(streamBuffer), FromFavoriteEvent}
	}
	w.entries = append(w.entries, watchEntry{name: "favorites", stream: openFavorites(), reopen: openFavorites})
	openSamples := func() streamCloser {
		return streamFunc[*store.Sample]{registry.Timeseries().Watch(streamBuffer), FromSampleEvent}
	}
	w.entries = append(w.entries, watchEntry{name: "timeseries", stream: openSamples(), reopen: openSamples})
	return w
}

// Run pumps the streams and blocks until ctx is cancelled and every watch
// goroutine has drained.
func (w *Watcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, e := range w.entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			watchLoop(ctx, e, w.broker)
		}()
	}
	wg.Wait()
}

// streamCloser abstracts a typed change stream behind its notification
// mapping so one loop serves documents and samples alike.
type streamCloser interface {
	next(ctx context.Context) (Notification, error)
	close()
}

type streamFunc[T jsonldb.Row[T]] struct {
	stream *jsonldb.Stream[T]
	mapFn  func(jsonldb.Event[T]) Notification
}

func (s streamFunc[T]) next(ctx context.Context) (Notification, error) {
	ev, err := s.stream.Next(ctx)
	if err != nil {
		return Notification{}, err
	}
	return s.mapFn(ev), nil
}

func (s streamFunc[T]) close() {
	s.stream.Close()
}

// watchLoop pumps one stream into the broker until ctx is done, re-opening
// the stream whenever it is lost.
func watchLoop(ctx context.Context, e watchEntry, broker *Broker) {
	// Pace re-subscription so a persistently failing stream cannot spin.
	limiter := rate.NewLimiter(rate.Every(time.Second), 1)
	s := e.stream
	for {
		err := pump(ctx, s, broker)
		s.close()
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, jsonldb.ErrStreamLost) {
			slog.WarnContext(ctx, "Change stream lost, re-subscribing", "collection", e.name)
		} else {
			slog.ErrorContext(ctx, "Change stream failed, re-subscribing", "collection", e.name, "err", err)
		}
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		s = e.reopen()
	}
}

func pump(ctx context.Context, s streamCloser, broker *Broker) error {
	for {
		n, err := s.next(ctx)
		if err != nil {
			return err
		}
		broker.Publish(n)
	}
}
