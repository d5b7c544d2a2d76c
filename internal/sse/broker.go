// Package sse streams data change notifications to browsers as Server-Sent Events.
package sse

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/starford/tirelire/internal/events"
)

// BudgetUpdated is emitted, at most once per throttle window, after any
// expense or category change so clients can refresh totals.
const BudgetUpdated = "budget.updated"

// DefaultHeartbeat is the keepalive interval of an open stream.
const DefaultHeartbeat = 25 * time.Second

// Event is one SSE frame.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Broker fans events out to connected clients.
//
// The run goroutine owns the client set, the frame sequence and the budget
// throttle; every public method goes through a channel.
type Broker struct {
	throttle  time.Duration
	heartbeat time.Duration

	join  chan chan []byte
	leave chan chan []byte
	out   chan Event
	count chan chan int

	done   chan struct{}
	exited chan struct{}
	closed atomic.Bool
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithHeartbeat sets how often idle streams receive a keepalive comment.
func WithHeartbeat(d time.Duration) BrokerOption {
	return func(b *Broker) {
		if d > 0 {
			b.heartbeat = d
		}
	}
}

// NewBroker creates a broker that emits budget.updated at most once per throttle.
func NewBroker(throttle time.Duration, opts ...BrokerOption) *Broker {
	if throttle <= 0 {
		throttle = 2 * time.Second
	}
	b := &Broker{
		throttle:  throttle,
		heartbeat: DefaultHeartbeat,
		join:      make(chan chan []byte),
		leave:     make(chan chan []byte),
		out:       make(chan Event, 256),
		count:     make(chan chan int),
		done:      make(chan struct{}),
		exited:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.exited)

	clients := make(map[chan []byte]struct{})
	var (
		seq        uint64
		lastBudget time.Time
	)

	send := func(ev Event) {
		frame, err := encodeFrame(seq+1, ev)
		if err != nil {
			return
		}
		seq++
		for ch := range clients {
			select {
			case ch <- frame:
			default:
				// slow client, drop
			}
		}
	}

	for {
		select {
		case <-b.done:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.join:
			clients[ch] = struct{}{}

		case ch := <-b.leave:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case ev := <-b.out:
			send(ev)
			c, ok := ev.Data.(events.Change)
			if !ok || (c.Entity != events.EntityExpense && c.Entity != events.EntityCategory) {
				continue
			}
			if now := time.Now(); now.Sub(lastBudget) >= b.throttle {
				lastBudget = now
				send(Event{Type: BudgetUpdated, Data: map[string]string{}})
			}

		case resp := <-b.count:
			resp <- len(clients)
		}
	}
}

// encodeFrame renders ev in text/event-stream framing.
func encodeFrame(id uint64, ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(payload)+len(ev.Type)+32)
	buf = append(buf, "id: "...)
	buf = strconv.AppendUint(buf, id, 10)
	buf = append(buf, "\nevent: "...)
	buf = append(buf, ev.Type...)
	buf = append(buf, "\ndata: "...)
	buf = append(buf, payload...)
	buf = append(buf, "\n\n"...)
	return buf, nil
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.done)
	}
	<-b.exited
}

// Subscribe adds a client. The channel is closed by Unsubscribe or Close.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.join <- ch:
	case <-b.exited:
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
	case b.leave <- ch:
	case <-b.exited:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.count <- resp:
	case <-b.exited:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.exited:
		return 0
	}
}

// Publish sends an event to every client.
func (b *Broker) Publish(ev Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.out <- ev:
	case <-b.exited:
	}
}

// PublishChange implements events.Publisher.
func (b *Broker) PublishChange(_ context.Context, c events.Change) {
	b.Publish(Event{Type: c.RoutingKey(), Data: c})
}

// ServeHTTP streams events until the client goes away (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("retry: 3000\n\n"))
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()
			ticker.Reset(b.heartbeat)
		}
	}
}
