// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package graph records the explored state space for observability output:
// an arena of immutable vertices referenced by index, plus the dispatch
// edges between them. The engine owns the arena exclusively and only emits
// it when observability is requested.
package graph

import (
	"fmt"
	"io"
	"strings"

	"github.com/jontk/npsched/internal/job"
	"github.com/jontk/npsched/internal/state"
	"github.com/jontk/npsched/internal/timemodel"
)

// VertexID indexes a vertex in the arena. Edges reference vertices by
// index rather than by pointer, which keeps the ownership graph acyclic.
type VertexID int

// Edge is one dispatch transition between two vertices.
type Edge struct {
	From  VertexID
	To    VertexID
	Label string
}

// EventKind discriminates the entries of the emission stream.
type EventKind int

const (
	// EventVertex announces a newly created vertex.
	EventVertex EventKind = iota
	// EventEdge announces a dispatch edge between two known vertices.
	EventEdge
)

// Event is one entry of the append-only, single-consumer emission stream.
type Event struct {
	Kind   EventKind
	Vertex VertexID
	Label  string
	Edge   Edge
}

// Graph is the arena. It is not safe for concurrent mutation; the engine
// runs single-threaded whenever a Graph is attached.
type Graph struct {
	vertices []string // label per vertex
	edges    []Edge
	sink     chan<- Event
}

// New returns an empty Graph. If sink is non-nil, every added vertex and
// edge is also published on it in insertion order.
func New(sink chan<- Event) *Graph {
	return &Graph{sink: sink}
}

// AddVertex appends a vertex with the given label and returns its index.
func (g *Graph) AddVertex(label string) VertexID {
	id := VertexID(len(g.vertices))
	g.vertices = append(g.vertices, label)
	if g.sink != nil {
		g.sink <- Event{Kind: EventVertex, Vertex: id, Label: label}
	}
	return id
}

// AddEdge appends a dispatch edge.
func (g *Graph) AddEdge(from, to VertexID, label string) {
	e := Edge{From: from, To: to, Label: label}
	g.edges = append(g.edges, e)
	if g.sink != nil {
		g.sink <- Event{Kind: EventEdge, Edge: e}
	}
}

// NumVertices returns the number of vertices added so far.
func (g *Graph) NumVertices() int { return len(g.vertices) }

// NumEdges returns the number of edges added so far.
func (g *Graph) NumEdges() int { return len(g.edges) }

// VertexLabel returns the label of vertex id.
func (g *Graph) VertexLabel(id VertexID) string { return g.vertices[id] }

// Edges returns the recorded edges in insertion order.
func (g *Graph) Edges() []Edge { return g.edges }

// WriteDOT renders the graph in Graphviz DOT format.
func (g *Graph) WriteDOT(w io.Writer, name string) error {
	if name == "" {
		name = "npsched"
	}
	if _, err := fmt.Fprintf(w, "digraph %s {\n", name); err != nil {
		return err
	}
	for i, label := range g.vertices {
		if _, err := fmt.Fprintf(w, "\tS%d [label=%q];\n", i, label); err != nil {
			return err
		}
	}
	for _, e := range g.edges {
		if _, err := fmt.Fprintf(w, "\tS%d -> S%d [label=%q];\n", e.From, e.To, e.Label); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}

// StateLabel formats a vertex label for a schedule state: the core
// availability intervals on the first line and the certainly-running jobs
// on the second.
func StateLabel[T timemodel.Num](s state.State[T], workload []job.Job[T]) string {
	var b strings.Builder
	b.WriteByte('[')
	for p := 1; p <= s.NumProcessors(); p++ {
		if p > 1 {
			b.WriteByte(' ')
		}
		av := s.CoreAvailability(p, timemodel.Clock[T]{})
		fmt.Fprintf(&b, "%v..%v", av.From, av.Until)
	}
	b.WriteString("]\\n{")
	for i, cj := range s.CertainJobs() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s:[%v,%v]", workload[cj.Index].ID(), cj.Finish.From, cj.Finish.Until)
	}
	b.WriteByte('}')
	return b.String()
}

// DispatchLabel formats an edge label for a single-job dispatch.
func DispatchLabel[T timemodel.Num](j job.Job[T], parallelism int) string {
	if parallelism > 1 {
		return fmt.Sprintf("%s p=%d", j.ID(), parallelism)
	}
	return j.ID().String()
}

// ReductionLabel formats an edge label for an atomic reduction dispatch.
func ReductionLabel[T timemodel.Num](workload []job.Job[T], members []int) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, idx := range members {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(workload[idx].ID().String())
	}
	b.WriteByte('}')
	return b.String()
}
