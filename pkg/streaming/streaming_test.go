// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package streaming

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jontk/npsched/internal/graph"
	"github.com/jontk/npsched/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroker_ReplayToLateSubscriber(t *testing.T) {
	b := NewBroker()
	b.Publish(GraphEvent{Kind: "vertex", Vertex: 0, Label: "[0..0]"})
	b.Publish(GraphEvent{Kind: "vertex", Vertex: 1, Label: "[2..4]"})
	b.Publish(GraphEvent{Kind: "edge", From: 0, To: 1, EdgeLabel: "T1J1"})

	events, cancel := b.Subscribe()
	defer cancel()

	var got []GraphEvent
	for i := 0; i < 3; i++ {
		got = append(got, <-events)
	}
	require.Len(t, got, 3)
	assert.Equal(t, "vertex", got[0].Kind)
	assert.Equal(t, "edge", got[2].Kind)
	assert.Equal(t, "T1J1", got[2].EdgeLabel)
}

func TestBroker_LiveDelivery(t *testing.T) {
	b := NewBroker()
	events, cancel := b.Subscribe()
	defer cancel()

	b.Publish(GraphEvent{Kind: "vertex", Vertex: 0})

	select {
	case e := <-events:
		assert.Equal(t, "vertex", e.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for live event")
	}
}

func TestBroker_CloseEndsSubscribers(t *testing.T) {
	b := NewBroker()
	events, cancel := b.Subscribe()
	defer cancel()

	b.Close()

	_, open := <-events
	assert.False(t, open, "channel should be closed after broker close")

	// Subscribing after close replays history then closes immediately.
	late, lateCancel := b.Subscribe()
	defer lateCancel()
	_, open = <-late
	assert.False(t, open)
}

func TestBroker_Consume(t *testing.T) {
	b := NewBroker()
	ch := make(chan graph.Event, 2)
	ch <- graph.Event{Kind: graph.EventVertex, Vertex: 0, Label: "v0"}
	ch <- graph.Event{Kind: graph.EventEdge, Edge: graph.Edge{From: 0, To: 0, Label: "loop"}}
	close(ch)

	b.Consume(ch)

	assert.Equal(t, 2, b.Len())
}

func TestBroker_ReplayGraph(t *testing.T) {
	g := graph.New(nil)
	v0 := g.AddVertex("a")
	v1 := g.AddVertex("b")
	g.AddEdge(v0, v1, "T1J1")

	b := NewBroker()
	b.ReplayGraph(g)

	assert.Equal(t, 3, b.Len())
}

func TestSSEServer(t *testing.T) {
	b := NewBroker()
	b.Publish(GraphEvent{Kind: "vertex", Vertex: 0, Label: "[0..0]"})
	b.Close()

	srv := httptest.NewServer(http.HandlerFunc(NewSSEServer(b).HandleSSE))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		lines = append(lines, strings.TrimRight(line, "\n"))
		if strings.Contains(line, "stream_closed") {
			break
		}
	}

	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "event: connected")
	assert.Contains(t, joined, "event: graph_event")
	assert.Contains(t, joined, "stream_closed")
}

func TestWebSocketServer(t *testing.T) {
	b := NewBroker()
	b.Publish(GraphEvent{Kind: "vertex", Vertex: 0, Label: "[0..0]"})
	b.Close()

	ws := NewWebSocketServer(b, logging.NoOpLogger{})
	srv := httptest.NewServer(http.HandlerFunc(ws.HandleWebSocket))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var types []string
	for i := 0; i < 3; i++ {
		var msg StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		types = append(types, msg.Type)
		if msg.Type == "stream_closed" {
			break
		}
	}

	assert.Contains(t, types, "connected")
	assert.Contains(t, types, "event")
	assert.Contains(t, types, "stream_closed")
}
