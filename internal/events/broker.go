// Package events fans document change notifications out to connected
// clients over Server-Sent Events and WebSocket.
package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/starford/orgview/internal/models"
)

// Event is one broadcast message. For document events Data is a
// models.ChangeEvent carrying the same ID.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Event types.
const (
	TypeDocumentCreated = "document.created"
	TypeDocumentUpdated = "document.updated"
	TypeDocumentDeleted = "document.deleted"
	TypeGraphUpdated    = "graph.updated"
	// TypeResync tells a resuming SSE client that events were lost and it
	// should refetch whatever it displays.
	TypeResync = "feed.resync"
)

const subscriberBuffer = 64

// Option configures a Broker.
type Option func(*Broker)

// WithReplay sets how many recent events are kept for resuming clients.
// Zero disables replay.
func WithReplay(n int) Option {
	return func(b *Broker) {
		if n >= 0 {
			b.replay = n
		}
	}
}

// Broker broadcasts events to subscribers.
//
// The subscriber set, the replay ring and the graph throttle belong to a
// single loop goroutine; every public method posts a closure to it.
type Broker struct {
	graphMin time.Duration
	replay   int

	ops     chan func(*hub)
	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

type hub struct {
	clients   map[chan Event]struct{}
	recent    []Event
	lastGraph time.Time
	graphMin  time.Duration
	replay    int
}

// NewBroker starts a broker that emits graph.updated at most once per
// graphThrottle.
func NewBroker(graphThrottle time.Duration, opts ...Option) *Broker {
	if graphThrottle <= 0 {
		graphThrottle = 2 * time.Second
	}
	b := &Broker{
		graphMin: graphThrottle,
		replay:   256,
		ops:      make(chan func(*hub), 256),
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)
	h := &hub{
		clients:  make(map[chan Event]struct{}),
		graphMin: b.graphMin,
		replay:   b.replay,
	}
	for {
		select {
		case <-b.stopCh:
			for ch := range h.clients {
				close(ch)
			}
			return
		case op := <-b.ops:
			op(h)
		}
	}
}

// do runs op on the loop and waits for it. It reports false once the
// broker is closed.
func (b *Broker) do(op func(*hub)) bool {
	if b.closed.Load() {
		return false
	}
	done := make(chan struct{})
	select {
	case b.ops <- func(h *hub) { op(h); close(done) }:
	case <-b.stopped:
		return false
	}
	select {
	case <-done:
		return true
	case <-b.stopped:
		return false
	}
}

// post queues op without waiting.
func (b *Broker) post(op func(*hub)) {
	if b.closed.Load() {
		return
	}
	select {
	case b.ops <- op:
	case <-b.stopped:
	}
}

func (h *hub) broadcast(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if h.replay > 0 {
		if len(h.recent) == h.replay {
			copy(h.recent, h.recent[1:])
			h.recent = h.recent[:h.replay-1]
		}
		h.recent = append(h.recent, ev)
	}
	for ch := range h.clients {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop.
		}
	}
}

func (h *hub) change(ev models.ChangeEvent) {
	var typ string
	switch ev.Kind {
	case models.ChangeCreated:
		typ = TypeDocumentCreated
	case models.ChangeUpdated:
		typ = TypeDocumentUpdated
	case models.ChangeDeleted:
		typ = TypeDocumentDeleted
	default:
		return
	}
	ev.ID = uuid.NewString()
	h.broadcast(Event{ID: ev.ID, Type: typ, Data: ev})

	if now := time.Now(); now.Sub(h.lastGraph) >= h.graphMin {
		h.lastGraph = now
		h.broadcast(Event{Type: TypeGraphUpdated, Data: map[string]string{}})
	}
}

// since returns the events after lastID, or false when lastID has left
// the ring.
func (h *hub) since(lastID string) ([]Event, bool) {
	for i := len(h.recent) - 1; i >= 0; i-- {
		if h.recent[i].ID == lastID {
			return append([]Event(nil), h.recent[i+1:]...), true
		}
	}
	return nil, false
}

// Close stops the broker and closes every subscriber channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a subscriber. The channel is closed by Unsubscribe or Close.
func (b *Broker) Subscribe() chan Event {
	ch, _ := b.SubscribeSince("")
	return ch
}

// SubscribeSince adds a subscriber whose channel starts with the retained
// events published after lastID. ok is false when lastID is set but no
// longer retained, in which case nothing is replayed.
func (b *Broker) SubscribeSince(lastID string) (ch chan Event, ok bool) {
	ok = true
	registered := b.do(func(h *hub) {
		var missed []Event
		if lastID != "" {
			missed, ok = h.since(lastID)
		}
		ch = make(chan Event, subscriberBuffer+len(missed))
		for _, ev := range missed {
			ch <- ev
		}
		h.clients[ch] = struct{}{}
	})
	if !registered {
		ch = make(chan Event)
		close(ch)
	}
	return ch, ok
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(ch chan Event) {
	b.do(func(h *hub) {
		if _, ok := h.clients[ch]; ok {
			delete(h.clients, ch)
			close(ch)
		}
	})
}

// ClientCount returns the number of connected subscribers.
func (b *Broker) ClientCount() int {
	var n int
	b.do(func(h *hub) { n = len(h.clients) })
	return n
}

// Publish sends an event to all subscribers.
func (b *Broker) Publish(event Event) {
	b.post(func(h *hub) { h.broadcast(event) })
}

// PublishChange publishes a document change and, at most once per
// throttle interval, a graph.updated event. Kinds other than created,
// updated and deleted are ignored.
func (b *Broker) PublishChange(kind, path string) {
	b.post(func(h *hub) { h.change(models.ChangeEvent{Kind: kind, Path: path}) })
}

// ServeHTTP is the SSE endpoint (GET /api/events). A Last-Event-ID header
// resumes from the replay ring; a resync event is sent first when that is
// not possible.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	ch, resumed := b.SubscribeSince(r.Header.Get("Last-Event-ID"))
	defer b.Unsubscribe(ch)
	if !resumed {
		_, _ = w.Write(sseFrame(Event{ID: uuid.NewString(), Type: TypeResync, Data: map[string]string{}}))
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if frame := sseFrame(ev); frame != nil {
				_, _ = w.Write(frame)
				flusher.Flush()
			}
		}
	}
}

// sseFrame encodes ev as one text/event-stream message, or nil when its
// data cannot be marshalled.
func sseFrame(ev Event) []byte {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return nil
	}
	return fmt.Appendf(nil, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, payload)
}
