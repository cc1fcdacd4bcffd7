// Package notify turns table change streams into the change feed consumed by
// dashboards: typed notifications fanned out to subscribers by a [Broker],
// produced by a [Watcher] goroutine per watched collection.
package notify

import (
	"github.com/maruel/ksid"
	"github.com/samlab-dev/samstore/internal/jsonldb"
	"github.com/samlab-dev/samstore/internal/store"
)

// Type identifies the kind of change a notification describes.
type Type string

const (
	// ObjectCreated means a document was added to a collection.
	ObjectCreated Type = "object-created"
	// ObjectChanged means an existing document was modified.
	ObjectChanged Type = "object-changed"
	// ObjectDeleted means a document was removed.
	ObjectDeleted Type = "object-deleted"
	// TimeseriesChanged means samples were added or cut under a metric key.
	TimeseriesChanged Type = "timeseries-changed"
)

// Notification is one change-feed event. Document events carry collection
// and id; timeseries events carry the metric key.
type Notification struct {
	Type       Type    `json:"type"`
	Collection string  `json:"collection,omitempty"`
	ID         ksid.ID `json:"id,omitzero"`
	Key        string  `json:"key,omitempty"`
}

// FromDocumentEvent maps a collection stream event to its notification.
func FromDocumentEvent(collection string, ev jsonldb.Event[*store.Document]) Notification {
	return Notification{
		Type:       documentType(ev.Op),
		Collection: collection,
		ID:         ev.Row.ID,
	}
}

func documentType(op jsonldb.EventOp) Type {
	switch op {
	case jsonldb.OpInsert:
		return ObjectCreated
	case jsonldb.OpUpdate:
		return ObjectChanged
	case jsonldb.OpDelete:
		return ObjectDeleted
	default:
		panic("notify: unknown event op " + string(op))
	}
}

// FromFavoriteEvent maps a bookmark stream event to its notification.
// Bookmarks flow through the feed as documents of the "favorites" collection.
func FromFavoriteEvent(ev jsonldb.Event[*store.Favorite]) Notification {
	return Notification{
		Type:       documentType(ev.Op),
		Collection: "favorites",
		ID:         ev.Row.ID,
	}
}

// FromSampleEvent maps a timeseries stream event to its notification. All
// sample mutations collapse to one type: consumers re-fetch the series for
// the key.
func FromSampleEvent(ev jsonldb.Event[*store.Sample]) Notification {
	return Notification{
		Type: TimeseriesChanged,
		Key:  ev.Row.Key,
	}
}
