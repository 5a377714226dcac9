package realtime

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	event := &Event{Type: "escrow.funded", Timestamp: time.Now()}
	if !h.shouldSend(client, event) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []string{"escrow.funded", "escrow.released"},
	}}

	funded := &Event{Type: "escrow.funded"}
	released := &Event{Type: "escrow.released"}
	disputed := &Event{Type: "escrow.disputed"}

	if !h.shouldSend(client, funded) {
		t.Error("Should receive funded events")
	}
	if !h.shouldSend(client, released) {
		t.Error("Should receive released events")
	}
	if h.shouldSend(client, disputed) {
		t.Error("Should NOT receive disputed events")
	}
}

func TestShouldSend_TradeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		TradeIDs: []string{"trd_aabb00000001"},
	}}

	matching := &Event{Type: "escrow.funded", TradeID: "trd_aabb00000001"}
	notMatching := &Event{Type: "escrow.funded", TradeID: "trd_aabb00000002"}

	if !h.shouldSend(client, matching) {
		t.Error("Should match on trade id")
	}
	if h.shouldSend(client, notMatching) {
		t.Error("Should NOT match unrelated trades")
	}
}

func TestShouldSend_UserFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		UserIDs: []string{"buyer-1"},
	}}

	matching := &Event{Type: "escrow.released", UserID: "buyer-1"}
	notMatching := &Event{Type: "escrow.released", UserID: "seller-9"}

	if !h.shouldSend(client, matching) {
		t.Error("Should match on user id")
	}
	if h.shouldSend(client, notMatching) {
		t.Error("Should NOT match other users")
	}
}

func TestShouldSend_CombinedFilters(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []string{"escrow.funded"},
		TradeIDs:   []string{"trd_aabb00000001"},
	}}

	both := &Event{Type: "escrow.funded", TradeID: "trd_aabb00000001"}
	wrongType := &Event{Type: "escrow.released", TradeID: "trd_aabb00000001"}
	wrongTrade := &Event{Type: "escrow.funded", TradeID: "trd_aabb00000002"}

	if !h.shouldSend(client, both) {
		t.Error("Should receive when every filter matches")
	}
	if h.shouldSend(client, wrongType) {
		t.Error("Should NOT receive wrong event type")
	}
	if h.shouldSend(client, wrongTrade) {
		t.Error("Should NOT receive wrong trade")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{}}

	// No filters set means everything passes.
	event := &Event{Type: "escrow.expired"}
	if !h.shouldSend(client, event) {
		t.Error("Empty subscription should receive all events")
	}
}

func TestHubRunAndShutdown(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	h.Broadcast(&Event{Type: "escrow.funded", Timestamp: time.Now()})

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not shut down")
	}

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Error("expected no connected clients after shutdown")
	}
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	h := testHub()
	// Hub not running: fill the channel and ensure Broadcast never blocks.
	for i := 0; i < 300; i++ {
		h.Broadcast(&Event{Type: "escrow.funded"})
	}
}
