// Package sse streams index changes to HTTP clients as Server-Sent Events.
//
// Every document change is sent as its own frame. Changes are also folded
// into an index.updated summary that goes out at most once per window, so a
// client that only refreshes an overview is not flooded during a full reindex.
package sse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/starford/ansuz/internal/index"
)

// Event names on the stream.
const (
	EventDocumentIndexed = "document.indexed"
	EventDocumentRemoved = "document.removed"
	EventIndexUpdated    = "index.updated"
)

const (
	defaultWindow = 2 * time.Second
	clientBuffer  = 64
	keepAlive     = 25 * time.Second
)

// Summary totals the changes folded into one index.updated frame.
type Summary struct {
	Indexed       int `json:"indexed"`
	Removed       int `json:"removed"`
	ChunksWritten int `json:"chunks_written"`
	ChunksDeleted int `json:"chunks_deleted"`
}

func (s *Summary) add(c index.Change) {
	switch c.Kind {
	case index.KindIndexed:
		s.Indexed++
		s.ChunksWritten += c.Chunks
	case index.KindRemoved:
		s.Removed++
		s.ChunksDeleted += c.Chunks
	}
}

// Broker fans frames out to subscribed clients. A client whose buffer is
// full misses frames rather than stalling the synchronizer.
type Broker struct {
	window time.Duration

	mu      sync.Mutex
	subs    map[chan []byte]struct{}
	lastID  uint64
	pending Summary
	flush   *time.Timer // set while a summary is scheduled
	closed  bool
}

// NewBroker creates a broker that emits index.updated at most once per
// window. A non-positive window selects two seconds.
func NewBroker(window time.Duration) *Broker {
	if window <= 0 {
		window = defaultWindow
	}
	return &Broker{window: window, subs: make(map[chan []byte]struct{})}
}

// Subscribe registers a client. The returned channel is closed by
// Unsubscribe or Close.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish sends a frame named event with data encoded as JSON.
func (b *Broker) Publish(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("sse: encode %s: %w", event, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendLocked(event, payload)
	return nil
}

// IndexChanged matches index.EventCallback. It publishes the change as a
// document frame and schedules the summary that includes it.
func (b *Broker) IndexChanged(c index.Change) {
	var event string
	switch c.Kind {
	case index.KindIndexed:
		event = EventDocumentIndexed
	case index.KindRemoved:
		event = EventDocumentRemoved
	default:
		return
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.sendLocked(event, payload)
	b.pending.add(c)
	if b.flush == nil {
		b.flush = time.AfterFunc(b.window, b.flushSummary)
	}
}

func (b *Broker) flushSummary() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flush = nil
	if b.closed {
		return
	}
	sum := b.pending
	b.pending = Summary{}
	payload, _ := json.Marshal(sum)
	b.sendLocked(EventIndexUpdated, payload)
}

// sendLocked frames payload and offers it to every client. b.mu must be held.
func (b *Broker) sendLocked(event string, payload []byte) {
	if b.closed {
		return
	}
	b.lastID++
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "id: %d\nevent: %s\ndata: %s\n\n", b.lastID, event, payload)
	frame := buf.Bytes()
	for ch := range b.subs {
		select {
		case ch <- frame:
		default:
		}
	}
}

// Close drops pending summaries and closes every client channel.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	if b.flush != nil {
		b.flush.Stop()
		b.flush = nil
	}
	for ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}

// ServeHTTP streams frames to one client until it disconnects or the
// broker closes. Idle streams get a comment line every keepAlive.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ping := time.NewTicker(keepAlive)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case frame, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
