// Change streams: ordered mutation events for a table.

package jsonldb

import (
	"context"
	"errors"
	"sync"
)

// EventOp identifies the kind of table mutation an event describes.
type EventOp string

const (
	// OpInsert means a new row was appended.
	OpInsert EventOp = "insert"
	// OpUpdate means an existing row was replaced.
	OpUpdate EventOp = "update"
	// OpDelete means a row was removed.
	OpDelete EventOp = "delete"
)

// Event is a single table mutation. Row is a snapshot of the row after an
// insert or update, and of the removed row for a delete.
type Event[T Row[T]] struct {
	Op  EventOp
	Row T
}

// ErrStreamLost is returned by [Stream.Next] when the stream buffer
// overflowed. The consumer must re-subscribe with [Table.Watch]; events that
// occurred in between are skipped, never reordered.
var ErrStreamLost = errors.New("change stream lost")

// ErrStreamClosed is returned by [Stream.Next] after [Stream.Close].
var ErrStreamClosed = errors.New("change stream closed")

// Stream delivers table mutations in commit order.
//
// Events are buffered; the producer never blocks on a slow consumer. When the
// buffer fills up the stream is marked lost: buffered events still drain in
// order, then [Stream.Next] reports [ErrStreamLost].
type Stream[T Row[T]] struct {
	table *Table[T]
	ch    chan Event[T]
	done  chan struct{} // closed on loss or Close

	mu     sync.Mutex
	lost   bool
	closed bool
}

// Watch subscribes to the table's mutations starting now. Existing rows are
// not replayed. The buffer bounds how far the consumer may fall behind before
// the stream is marked lost.
func (t *Table[T]) Watch(buffer int) *Stream[T] {
	if buffer < 1 {
		buffer = 1
	}
	s := &Stream[T]{
		table: t,
		ch:    make(chan Event[T], buffer),
		done:  make(chan struct{}),
	}
	t.mu.Lock()
	t.observers = append(t.observers, s)
	t.mu.Unlock()
	return s
}

// Next blocks until an event is available, the stream fails, or ctx is done.
func (s *Stream[T]) Next(ctx context.Context) (Event[T], error) {
	var zero Event[T]
	for {
		// Drain buffered events before reporting loss or closure.
		select {
		case ev := <-s.ch:
			return ev, nil
		default:
		}
		s.mu.Lock()
		lost, closed := s.lost, s.closed
		s.mu.Unlock()
		if closed {
			return zero, ErrStreamClosed
		}
		if lost {
			return zero, ErrStreamLost
		}
		select {
		case ev := <-s.ch:
			return ev, nil
		case <-s.done:
			// Loop to drain anything racing in.
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close detaches the stream from the table. Next returns [ErrStreamClosed]
// once the buffer drains.
func (s *Stream[T]) Close() {
	s.table.RemoveObserver(s)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if !s.lost {
		close(s.done)
	}
}

// publish enqueues an event without ever blocking the writer. Runs under the
// table write lock, preserving commit order.
func (s *Stream[T]) publish(ev Event[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lost || s.closed {
		return
	}
	select {
	case s.ch <- ev:
	default:
		// Buffer full: the consumer fell too far behind. Dropping a tail of
		// events silently would reorder history, so mark the whole stream
		// lost instead and let the consumer re-subscribe.
		s.lost = true
		close(s.done)
	}
}

// OnAppend implements [TableObserver].
func (s *Stream[T]) OnAppend(row T) {
	s.publish(Event[T]{Op: OpInsert, Row: row.Clone()})
}

// OnUpdate implements [TableObserver].
func (s *Stream[T]) OnUpdate(prev, curr T) {
	s.publish(Event[T]{Op: OpUpdate, Row: curr.Clone()})
}

// OnDelete implements [TableObserver].
func (s *Stream[T]) OnDelete(row T) {
	s.publish(Event[T]{Op: OpDelete, Row: row.Clone()})
}
