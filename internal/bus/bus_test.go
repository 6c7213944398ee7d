package bus

import (
	"context"
	"testing"
	"time"
)

func TestInboundRoundTrip(t *testing.T) {
	b := NewMessageBus()
	b.PublishInbound(InboundMessage{Channel: "signal", SenderID: "+15550001111", Content: "hi"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := b.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("consume failed")
	}
	if msg.Channel != "signal" || msg.Content != "hi" {
		t.Errorf("got %+v", msg)
	}
}

func TestConsumeInboundCancellation(t *testing.T) {
	b := NewMessageBus()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, ok := b.ConsumeInbound(ctx); ok {
		t.Error("consume returned a message from an empty bus")
	}
}

func TestPublishInboundDropsWhenFull(t *testing.T) {
	b := NewMessageBus()
	for i := 0; i < queueSize+10; i++ {
		b.PublishInbound(InboundMessage{Channel: "signal"})
	}
	// The publisher must not block; overflow is dropped.
	if len(b.inbound) != queueSize {
		t.Errorf("queue holds %d, want %d", len(b.inbound), queueSize)
	}
}

func TestOutboundRoundTrip(t *testing.T) {
	b := NewMessageBus()
	b.PublishOutbound(OutboundMessage{Channel: "signal", ChatID: "grp1", Content: "reply"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := b.SubscribeOutbound(ctx)
	if !ok {
		t.Fatal("subscribe failed")
	}
	if msg.ChatID != "grp1" {
		t.Errorf("got %+v", msg)
	}
}
