// Package sse implements a Server-Sent Events broker for real-time updates.
package sse

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event types.
const (
	TypeRouteChanged   = "route.changed"
	TypeNotice         = "notice"
	TypeCatalogUpdated = "catalog.updated"
	TypeSessionClosed  = "session.closed"
)

// Event represents an SSE event. An empty Topic reaches every client;
// otherwise only clients subscribed to that topic (a session id) receive it.
type Event struct {
	Type  string `json:"type"`
	Topic string `json:"-"`
	Data  any    `json:"data"`
}

// CatalogData is the payload of catalog.updated.
type CatalogData struct {
	Revision uint64 `json:"revision"`
	Count    int    `json:"count"`
}

type subscription struct {
	topic string
	ch    chan []byte
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients + catalog throttle). Public methods communicate with this loop
// through channels, so no mutexes are required.
type Broker struct {
	catalogMin time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	catalogCh     chan CatalogData
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker with the given catalog throttle interval.
func NewBroker(catalogThrottle time.Duration) *Broker {
	if catalogThrottle <= 0 {
		catalogThrottle = 2 * time.Second
	}

	b := &Broker{
		catalogMin:    catalogThrottle,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		catalogCh:     make(chan CatalogData, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]string)
	entropy := ulid.Monotonic(rand.Reader, 0)

	var lastCatalog time.Time
	var pending *CatalogData
	var trailing *time.Timer
	var trailingCh <-chan time.Time

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
		raw := []byte(fmt.Sprintf("id: %s\nevent: %s\ndata: %s\n\n", id, event.Type, payload))

		for ch, topic := range clients {
			if event.Topic != "" && topic != event.Topic {
				continue
			}
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	sendCatalog := func(data CatalogData) {
		lastCatalog = time.Now()
		pending = nil
		broadcast(Event{Type: TypeCatalogUpdated, Data: data})
	}

	for {
		select {
		case <-b.stopCh:
			if trailing != nil {
				trailing.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = sub.topic

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case data := <-b.catalogCh:
			wait := b.catalogMin - time.Since(lastCatalog)
			if wait <= 0 {
				sendCatalog(data)
				continue
			}
			// Coalesce into one trailing event carrying the latest revision.
			d := data
			pending = &d
			if trailing == nil {
				trailing = time.NewTimer(wait)
				trailingCh = trailing.C
			}

		case <-trailingCh:
			trailing = nil
			trailingCh = nil
			if pending != nil {
				sendCatalog(*pending)
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client for topic ("" for global events only) and returns
// its channel.
func (b *Broker) Subscribe(topic string) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{topic: topic, ch: ch}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to the clients of its topic.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishCatalogUpdate announces a catalog replacement to every client.
// Bursts within the throttle interval collapse into one trailing event.
func (b *Broker) PublishCatalogUpdate(revision uint64, count int) {
	if b.closed.Load() {
		return
	}
	select {
	case b.catalogCh <- CatalogData{Revision: revision, Count: count}:
	case <-b.stopped:
	}
}

// ServeHTTP is the global SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.ServeTopic(w, r, "")
}

// ServeTopic streams global events plus the events of topic.
func (b *Broker) ServeTopic(w http.ResponseWriter, r *http.Request, topic string) {
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
	flusher.Flush()

	ch := b.Subscribe(topic)
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
