// Package realtime streams risk verdicts to WebSocket subscribers.
//
// Every persisted verdict is published as a "verdict" event, and verdicts
// above the suspicious threshold also as "high_risk". A client narrows its
// feed by sending a Subscription; the hub answers with "subscribed" or
// "error" and can replay recent verdicts from a short backlog.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/metrics"
	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/risk"
)

const (
	// MaxClients bounds concurrent feed connections.
	MaxClients = 10000
	// BacklogSize is how many recent verdict events are kept for replay.
	BacklogSize = 100

	sendBuffer      = 256
	broadcastBuffer = 256
)

// EventType names a feed message.
type EventType string

const (
	EventVerdict    EventType = "verdict"
	EventHighRisk   EventType = "high_risk"
	EventSubscribed EventType = "subscribed"
	EventError      EventType = "error"
)

// Event is one feed message. Verdict is set on verdict and high_risk
// events, Subscription on acks and Error on rejected subscriptions.
type Event struct {
	Type         EventType     `json:"type"`
	Timestamp    time.Time     `json:"timestamp"`
	Verdict      *VerdictData  `json:"verdict,omitempty"`
	Subscription *Subscription `json:"subscription,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// VerdictData summarizes a scored transaction.
type VerdictData struct {
	TransactionID string          `json:"transactionId"`
	UserID        string          `json:"userId"`
	Merchant      string          `json:"merchant"`
	Location      string          `json:"location"`
	Amount        string          `json:"amount"`
	Currency      risk.Currency   `json:"currency"`
	RiskScore     float64         `json:"riskScore"`
	Status        risk.Status     `json:"status"`
	AlertLevel    risk.AlertLevel `json:"alertLevel"`
	Fallback      bool            `json:"fallback"`
}

// Stats describes the feed.
type Stats struct {
	ConnectedClients int   `json:"connectedClients"`
	TotalEvents      int64 `json:"totalEvents"`
	TotalClients     int64 `json:"totalClients"`
	PeakClients      int64 `json:"peakClients"`
	SlowDisconnects  int64 `json:"slowDisconnects"`
}

type subscribeRequest struct {
	client *Client
	sub    Subscription
	err    error
}

// Option configures a Hub.
type Option func(*Hub)

// WithAllowedOrigins lets browsers on these origins open the feed. "*"
// allows any origin. Same-host origins and clients without an Origin
// header are always allowed.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Hub) {
		for _, o := range origins {
			h.origins[strings.TrimSpace(o)] = true
		}
	}
}

// WithMaxClients overrides MaxClients.
func WithMaxClients(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.maxClients = n
		}
	}
}

// Hub fans verdicts out to clients. Run owns client state; other
// goroutines talk to it over channels.
type Hub struct {
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	origins    map[string]bool
	maxClients int

	// mu guards clients for readers outside Run. Run is the only writer.
	mu      sync.RWMutex
	clients map[*Client]struct{}
	backlog []*Event

	broadcast  chan *Event
	register   chan *Client
	unregister chan *Client
	subscribe  chan subscribeRequest
	done       chan struct{}

	totalEvents     atomic.Int64
	totalClients    atomic.Int64
	peakClients     atomic.Int64
	slowDisconnects atomic.Int64
}

// NewHub creates a hub. Start it with Run.
func NewHub(logger *slog.Logger, opts ...Option) *Hub {
	h := &Hub{
		logger:     logger,
		origins:    make(map[string]bool),
		maxClients: MaxClients,
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan *Event, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		subscribe:  make(chan subscribeRequest),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.origins["*"] || h.origins[origin] {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

// Run serves the hub until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("realtime hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(0)
			h.logger.Info("realtime hub stopped")
			return

		case c := <-h.register:
			h.mu.Lock()
			h.totalClients.Add(1)
			h.clients[c] = struct{}{}
			n := len(h.clients)
			if int64(n) > h.peakClients.Load() {
				h.peakClients.Store(int64(n))
			}
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(float64(n))
			h.logger.Debug("feed client connected", "clients", n)

		case c := <-h.unregister:
			h.drop(c)

		case req := <-h.subscribe:
			h.applySubscription(req)

		case ev := <-h.broadcast:
			h.fanOut(ev)
		}
	}
}

// drop closes c's queue. Run only.
func (h *Hub) drop(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		metrics.ActiveWebSocketClients.Set(float64(n))
		h.logger.Debug("feed client disconnected", "clients", n)
	}
}

// deliver queues ev for c, dropping c if its queue is full. Run only.
func (h *Hub) deliver(c *Client, payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		h.drop(c)
		h.slowDisconnects.Add(1)
		return false
	}
}

func (h *Hub) fanOut(ev *Event) {
	h.totalEvents.Add(1)
	if ev.Type == EventVerdict {
		h.backlog = append(h.backlog, ev)
		if len(h.backlog) > BacklogSize {
			h.backlog = h.backlog[len(h.backlog)-BacklogSize:]
		}
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to encode feed event", "type", ev.Type, "error", err)
		return
	}

	var targets []*Client
	for c := range h.clients {
		if c.sub.Matches(ev) {
			targets = append(targets, c)
		}
	}
	for _, c := range targets {
		h.deliver(c, payload)
	}
}

func (h *Hub) applySubscription(req subscribeRequest) {
	c := req.client
	if _, ok := h.clients[c]; !ok {
		return
	}
	now := time.Now().UTC()

	if req.err != nil {
		payload, _ := json.Marshal(&Event{Type: EventError, Timestamp: now, Error: req.err.Error()})
		h.deliver(c, payload)
		return
	}

	c.sub = req.sub
	ack, _ := json.Marshal(&Event{Type: EventSubscribed, Timestamp: now, Subscription: &req.sub})
	if !h.deliver(c, ack) {
		return
	}

	for _, ev := range h.replay(req.sub) {
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if !h.deliver(c, payload) {
			return
		}
	}
}

// replay returns up to sub.Replay matching backlog events, oldest first.
func (h *Hub) replay(sub Subscription) []*Event {
	want := min(sub.Replay, BacklogSize)
	if want <= 0 {
		return nil
	}
	var out []*Event
	for i := len(h.backlog) - 1; i >= 0 && len(out) < want; i-- {
		if ev := h.backlog[i]; sub.Matches(ev) {
			out = append(out, ev)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Broadcast queues ev for fan-out. It never blocks; events are dropped
// when the queue is full.
func (h *Hub) Broadcast(ev *Event) {
	select {
	case h.broadcast <- ev:
	default:
		h.logger.Warn("feed broadcast queue full, dropping event", "type", ev.Type)
	}
}

// EmitVerdict publishes a scored transaction.
func (h *Hub) EmitVerdict(rec *risk.LedgerRecord) {
	tx, a := rec.Transaction, rec.Analysis
	data := &VerdictData{
		TransactionID: a.TransactionID,
		UserID:        tx.UserID,
		Merchant:      tx.Merchant,
		Location:      tx.Location,
		Amount:        tx.Amount.String(),
		Currency:      tx.Currency,
		RiskScore:     a.RiskScore,
		Status:        a.Status,
		AlertLevel:    a.AlertLevel,
		Fallback:      a.Fallback,
	}
	h.Broadcast(&Event{Type: EventVerdict, Timestamp: a.Timestamp, Verdict: data})
	if a.RiskScore > risk.SuspiciousThreshold {
		h.Broadcast(&Event{Type: EventHighRisk, Timestamp: a.Timestamp, Verdict: data})
	}
}

// Stats reports feed counters.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	return Stats{
		ConnectedClients: n,
		TotalEvents:      h.totalEvents.Load(),
		TotalClients:     h.totalClients.Load(),
		PeakClients:      h.peakClients.Load(),
		SlowDisconnects:  h.slowDisconnects.Load(),
	}
}

var _ risk.EventEmitter = (*Hub)(nil)
