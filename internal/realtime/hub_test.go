package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/risk"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ledgerRecord(userID string, score float64, status risk.Status) *risk.LedgerRecord {
	return &risk.LedgerRecord{
		Transaction: &risk.Transaction{
			Amount:   decimal.RequireFromString("99.95"),
			Currency: "EUR",
			Merchant: "Bakery",
			Location: "Paris",
			UserID:   userID,
		},
		Analysis: &risk.RiskAnalysis{
			TransactionID: "txn_" + userID,
			RiskScore:     score,
			Status:        status,
			AlertLevel:    risk.AlertLevelFor(score),
			Timestamp:     time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC),
		},
	}
}

func runningHub(t *testing.T, opts ...Option) *Hub {
	t.Helper()
	h := NewHub(quietLogger(), opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

// attach registers an in-memory client. The unbuffered register channel
// returns only once Run has accepted it.
func attach(h *Hub, buffer int) *Client {
	c := &Client{hub: h, send: make(chan []byte, buffer)}
	h.register <- c
	return c
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.Stats().ConnectedClients == n
	}, time.Second, 5*time.Millisecond)
}

func subscribe(h *Hub, c *Client, sub Subscription) {
	h.subscribe <- subscribeRequest{client: c, sub: sub}
}

func next(t *testing.T, c *Client) *Event {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		require.True(t, ok, "client was dropped")
		var ev Event
		require.NoError(t, json.Unmarshal(msg, &ev))
		return &ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
		return nil
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("unexpected event: %s", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_StatsInitial(t *testing.T) {
	assert.Equal(t, Stats{}, NewHub(quietLogger()).Stats())
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	h := runningHub(t)

	c := attach(h, sendBuffer)
	waitClients(t, h, 1)

	h.unregister <- c
	other := attach(h, sendBuffer)
	_, open := <-c.send
	assert.False(t, open)
	waitClients(t, h, 1)

	stats := h.Stats()
	assert.Equal(t, 1, stats.ConnectedClients)
	assert.Equal(t, int64(2), stats.TotalClients)
	assert.Equal(t, int64(1), stats.PeakClients)
	h.unregister <- other
}

func TestHub_EmitVerdict(t *testing.T) {
	h := runningHub(t)
	c := attach(h, sendBuffer)

	h.EmitVerdict(ledgerRecord("alice", 20, risk.StatusApproved))

	ev := next(t, c)
	assert.Equal(t, EventVerdict, ev.Type)
	require.NotNil(t, ev.Verdict)
	assert.Equal(t, "alice", ev.Verdict.UserID)
	assert.Equal(t, "99.95", ev.Verdict.Amount)
	assert.Equal(t, "txn_alice", ev.Verdict.TransactionID)
	assert.Equal(t, risk.AlertLow, ev.Verdict.AlertLevel)
	assertSilent(t, c)
}

func TestHub_HighRiskOnlyAboveThreshold(t *testing.T) {
	h := runningHub(t)
	c := attach(h, sendBuffer)
	subscribe(h, c, Subscription{EventTypes: []EventType{EventHighRisk}})
	require.Equal(t, EventSubscribed, next(t, c).Type)

	h.EmitVerdict(ledgerRecord("alice", 70, risk.StatusFlagged))
	assertSilent(t, c)

	h.EmitVerdict(ledgerRecord("alice", 95, risk.StatusDenied))
	ev := next(t, c)
	assert.Equal(t, EventHighRisk, ev.Type)
	assert.Equal(t, 95.0, ev.Verdict.RiskScore)
}

func TestHub_SubscriptionAckAndReplay(t *testing.T) {
	h := runningHub(t)
	observer := attach(h, sendBuffer)

	for i, user := range []string{"alice", "bob", "alice", "alice"} {
		h.EmitVerdict(ledgerRecord(user, float64(10+i), risk.StatusApproved))
	}
	// Drain so the verdicts are known to be in the backlog.
	for i := 0; i < 4; i++ {
		next(t, observer)
	}

	c := attach(h, sendBuffer)
	subscribe(h, c, Subscription{UserIDs: []string{"alice"}, Replay: 2})

	ack := next(t, c)
	assert.Equal(t, EventSubscribed, ack.Type)
	require.NotNil(t, ack.Subscription)
	assert.Equal(t, []string{"alice"}, ack.Subscription.UserIDs)

	first, second := next(t, c), next(t, c)
	assert.Equal(t, 12.0, first.Verdict.RiskScore)
	assert.Equal(t, 13.0, second.Verdict.RiskScore)
	assertSilent(t, c)
}

func TestHub_ReplayCappedAtBacklog(t *testing.T) {
	h := NewHub(quietLogger())
	for i := 0; i < BacklogSize+20; i++ {
		h.fanOut(&Event{Type: EventVerdict, Verdict: &VerdictData{UserID: fmt.Sprintf("u%d", i)}})
	}
	require.Len(t, h.backlog, BacklogSize)

	got := h.replay(Subscription{Replay: 1000})
	require.Len(t, got, BacklogSize)
	assert.Equal(t, "u20", got[0].Verdict.UserID)
	assert.Equal(t, fmt.Sprintf("u%d", BacklogSize+19), got[len(got)-1].Verdict.UserID)
}

func TestHub_InvalidSubscriptionReportsError(t *testing.T) {
	h := runningHub(t)
	c := attach(h, sendBuffer)

	h.subscribe <- subscribeRequest{client: c, err: fmt.Errorf("invalid subscription: minRiskScore: out of range")}

	ev := next(t, c)
	assert.Equal(t, EventError, ev.Type)
	assert.Contains(t, ev.Error, "minRiskScore")

	// The previous filter still applies.
	h.EmitVerdict(ledgerRecord("bob", 10, risk.StatusApproved))
	assert.Equal(t, EventVerdict, next(t, c).Type)
}

func TestHub_SlowClientDropped(t *testing.T) {
	h := runningHub(t)
	slow := attach(h, 1)

	h.EmitVerdict(ledgerRecord("alice", 10, risk.StatusApproved))
	h.EmitVerdict(ledgerRecord("alice", 11, risk.StatusApproved))

	assert.Eventually(t, func() bool {
		return h.Stats().SlowDisconnects == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, h.Stats().ConnectedClients)

	_, ok := <-slow.send
	assert.True(t, ok, "queued event is still delivered")
	_, ok = <-slow.send
	assert.False(t, ok, "queue closed after drop")
}

func TestHub_StopsOnContextCancel(t *testing.T) {
	h := NewHub(quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	c := attach(h, sendBuffer)

	cancel()
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	_, open := <-c.send
	assert.False(t, open)
}

func TestCheckOrigin(t *testing.T) {
	h := NewHub(quietLogger(), WithAllowedOrigins([]string{"https://ops.example.com"}))

	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "http://risk.internal/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	assert.True(t, h.checkOrigin(req("")))
	assert.True(t, h.checkOrigin(req("https://ops.example.com")))
	assert.True(t, h.checkOrigin(req("http://risk.internal")))
	assert.False(t, h.checkOrigin(req("https://evil.example")))

	open := NewHub(quietLogger(), WithAllowedOrigins([]string{"*"}))
	assert.True(t, open.checkOrigin(req("https://evil.example")))
}

func TestHandleWebSocket_RejectsOverCapacity(t *testing.T) {
	h := runningHub(t, WithMaxClients(1))
	attach(h, sendBuffer)
	waitClients(t, h, 1)

	w := httptest.NewRecorder()
	h.HandleWebSocket(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleWebSocket_EndToEnd(t *testing.T) {
	h := runningHub(t)
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"minRiskScore": 500}`)))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventError, ev.Type)

	require.NoError(t, conn.WriteJSON(Subscription{UserIDs: []string{"bob"}}))
	require.NoError(t, conn.ReadJSON(&ev))
	require.Equal(t, EventSubscribed, ev.Type)

	h.EmitVerdict(ledgerRecord("alice", 10, risk.StatusApproved))
	h.EmitVerdict(ledgerRecord("bob", 10, risk.StatusApproved))

	ev = Event{}
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventVerdict, ev.Type)
	assert.Equal(t, "bob", ev.Verdict.UserID)
}
