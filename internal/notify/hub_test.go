package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	h := NewHub()

	var a, b []Kind
	h.Subscribe(func(ev Event) { a = append(a, ev.Kind) })
	h.Subscribe(func(ev Event) { b = append(b, ev.Kind) })

	h.Publish(Event{Kind: KindDownload})
	h.Publish(Event{Kind: KindVideo})

	assert.Equal(t, []Kind{KindDownload, KindVideo}, a)
	assert.Equal(t, []Kind{KindDownload, KindVideo}, b)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := NewHub()

	var got int
	cancel := h.Subscribe(func(Event) { got++ })

	h.Publish(Event{Kind: KindConversion})
	cancel()
	h.Publish(Event{Kind: KindConversion})

	assert.Equal(t, 1, got)
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	h := NewHub()
	assert.NotPanics(t, func() { h.Publish(Event{Kind: KindSubscription}) })
}
