package market

import "testing"

func TestPublisherFanOut(t *testing.T) {
	p := NewPublisher()
	a := p.Subscribe()
	b := p.Subscribe()
	p.Notify()
	p.Notify()

	for _, ch := range []<-chan struct{}{a, b} {
		select {
		case <-ch:
		default:
			t.Fatalf("subscriber missed notification")
		}
		select {
		case <-ch:
			t.Fatalf("expected a single pending signal")
		default:
		}
	}

	p.Unsubscribe(a)
	p.Notify()
	select {
	case <-a:
		t.Fatalf("unsubscribed channel should not receive")
	default:
	}
	if p.Subscribers() != 1 {
		t.Fatalf("unexpected subscribers %d", p.Subscribers())
	}
}
