package notify

import (
	"testing"
)

func TestBroker(t *testing.T) {
	t.Run("fan out", func(t *testing.T) {
		b := NewBroker()
		ch1, cancel1 := b.Subscribe(4)
		defer cancel1()
		ch2, cancel2 := b.Subscribe(4)
		defer cancel2()

		n := Notification{Type: ObjectCreated, Collection: "experiments", ID: 1}
		b.Publish(n)
		for i, ch := range []<-chan Notification{ch1, ch2} {
			select {
			case got := <-ch:
				if got != n {
					t.Errorf("subscriber %d got %+v", i, got)
				}
			default:
				t.Errorf("subscriber %d got nothing", i)
			}
		}
	})

	t.Run("no replay for late subscribers", func(t *testing.T) {
		b := NewBroker()
		b.Publish(Notification{Type: ObjectCreated, Collection: "c", ID: 1})
		ch, cancel := b.Subscribe(4)
		defer cancel()
		select {
		case got := <-ch:
			t.Errorf("late subscriber received %+v", got)
		default:
		}
	})

	t.Run("slow subscriber drops, fast one keeps up", func(t *testing.T) {
		b := NewBroker()
		slow, cancelSlow := b.Subscribe(1)
		defer cancelSlow()
		fast, cancelFast := b.Subscribe(8)
		defer cancelFast()

		for i := 1; i <= 3; i++ {
			b.Publish(Notification{Type: TimeseriesChanged, Key: "loss"})
		}
		if len(fast) != 3 {
			t.Errorf("fast subscriber buffered %d, want 3", len(fast))
		}
		// The slow subscriber silently missed the overflow but never blocked
		// the publisher.
		if len(slow) != 1 {
			t.Errorf("slow subscriber buffered %d, want 1", len(slow))
		}
	})

	t.Run("cancel", func(t *testing.T) {
		b := NewBroker()
		ch, cancel := b.Subscribe(4)
		if b.Subscribers() != 1 {
			t.Errorf("Subscribers() = %d", b.Subscribers())
		}
		cancel()
		cancel() // Cancelling twice is fine.
		if b.Subscribers() != 0 {
			t.Errorf("Subscribers() after cancel = %d", b.Subscribers())
		}
		if _, ok := <-ch; ok {
			t.Error("channel should be closed after cancel")
		}
		b.Publish(Notification{Type: ObjectDeleted}) // Must not panic.
	})
}
