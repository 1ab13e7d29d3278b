// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package streaming serves the explored graph to observability clients
// over WebSocket and Server-Sent Events. The engine's emission stream is
// append-only and single-consumer; the Broker is that consumer and fans
// the recorded events out to any number of attached clients, replaying
// the full history to late subscribers.
package streaming

import (
	"sync"

	"github.com/jontk/npsched/internal/graph"
)

// GraphEvent is the wire representation of one vertex or edge event.
type GraphEvent struct {
	Kind      string `json:"kind"` // "vertex" or "edge"
	Vertex    int    `json:"vertex,omitempty"`
	Label     string `json:"label,omitempty"`
	From      int    `json:"from,omitempty"`
	To        int    `json:"to,omitempty"`
	EdgeLabel string `json:"edge_label,omitempty"`
}

func fromGraphEvent(e graph.Event) GraphEvent {
	if e.Kind == graph.EventVertex {
		return GraphEvent{Kind: "vertex", Vertex: int(e.Vertex), Label: e.Label}
	}
	return GraphEvent{Kind: "edge", From: int(e.Edge.From), To: int(e.Edge.To), EdgeLabel: e.Edge.Label}
}

// Broker consumes the engine's emission channel and fans events out to
// subscribers.
type Broker struct {
	mu      sync.Mutex
	history []GraphEvent
	subs    map[int]chan GraphEvent
	nextSub int
	closed  bool
}

// NewBroker returns an empty Broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[int]chan GraphEvent)}
}

// Consume drains the engine's emission channel until it is closed. It is
// meant to run on its own goroutine alongside the exploration.
func (b *Broker) Consume(events <-chan graph.Event) {
	for e := range events {
		b.Publish(fromGraphEvent(e))
	}
	b.Close()
}

// Publish records one event and delivers it to every live subscriber.
func (b *Broker) Publish(e GraphEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.history = append(b.history, e)
	for id, ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Slow consumer: evict rather than stall the emission stream.
			delete(b.subs, id)
			close(ch)
		}
	}
}

// ReplayGraph publishes an already-completed graph arena, for serving a
// finished run.
func (b *Broker) ReplayGraph(g *graph.Graph) {
	for i := 0; i < g.NumVertices(); i++ {
		b.Publish(GraphEvent{Kind: "vertex", Vertex: i, Label: g.VertexLabel(graph.VertexID(i))})
	}
	for _, e := range g.Edges() {
		b.Publish(GraphEvent{Kind: "edge", From: int(e.From), To: int(e.To), EdgeLabel: e.Label})
	}
}

// Subscribe returns a channel that first replays the recorded history and
// then carries live events. The returned cancel function must be called
// when the subscriber is done.
func (b *Broker) Subscribe() (<-chan GraphEvent, func()) {
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++

	history := make([]GraphEvent, len(b.history))
	copy(history, b.history)
	closed := b.closed

	// Buffer the replayed history so Subscribe never blocks on a slow
	// reader before it starts draining.
	ch := make(chan GraphEvent, len(history)+64)
	for _, e := range history {
		ch <- e
	}
	if closed {
		close(ch)
		b.mu.Unlock()
		return ch, func() {}
	}
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Close marks the stream complete and closes every subscriber channel.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Len returns the number of recorded events.
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.history)
}
