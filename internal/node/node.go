// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package node groups schedule states into exploration-graph vertices:
// every state sharing a (scheduled-job-set, lookup-key) identity lands in
// the same Node, which enforces an at-most-one-merge discipline against
// its existing, pairwise non-mergeable members.
package node

import (
	"sort"
	"strconv"
	"sync"

	"github.com/jontk/npsched/internal/indexset"
	"github.com/jontk/npsched/internal/state"
	"github.com/jontk/npsched/internal/timemodel"
)

// Node is one vertex of the exploration graph: the set of maximally-merged
// states sharing one (scheduled, lookup_key) identity. Members are kept
// pairwise non-mergeable, so inserting a new state merges into at most one
// existing member.
type Node[T timemodel.Num] struct {
	mu        sync.Mutex
	scheduled indexset.Set
	lookupKey uint64
	states    []state.State[T]
	metas     []any
}

// Entry pairs a maximally-merged member state with the caller-supplied
// metadata of whichever insertion first created it (the merge-tie-break
// rule: the existing member survives, so its metadata does too).
type Entry[T timemodel.Num] struct {
	State state.State[T]
	Meta  any
}

func (n *Node[T]) Scheduled() indexset.Set { return n.scheduled }
func (n *Node[T]) LookupKey() uint64       { return n.lookupKey }

// States returns a snapshot copy of the node's current states.
func (n *Node[T]) States() []state.State[T] {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]state.State[T], len(n.states))
	copy(out, n.states)
	return out
}

// Entries returns a snapshot of the node's current states with their
// metadata.
func (n *Node[T]) Entries() []Entry[T] {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Entry[T], len(n.states))
	for i := range n.states {
		out[i] = Entry[T]{State: n.states[i], Meta: n.metas[i]}
	}
	return out
}

// insert folds s into the node, merging it into the first existing member
// it is mergeable with, or appending it as a new maximally-merged member.
// It returns the metadata of the surviving member and whether s became a
// newly distinct member, i.e. whether the node's observable state set
// changed.
func (n *Node[T]) insert(s state.State[T], meta any) (any, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, existing := range n.states {
		if merged, ok := existing.TryMerge(s); ok {
			n.states[i] = merged
			return n.metas[i], false
		}
	}
	n.states = append(n.states, s)
	n.metas = append(n.metas, meta)
	return meta, true
}

// Table is the concurrency-safe registry of Nodes for one exploration
// depth, keyed by (scheduled, lookup_key) identity. The lookup follows the
// usual pooled-registry discipline: an optimistic read-locked lookup,
// falling back to a write-locked double-checked insert.
type Table[T timemodel.Num] struct {
	mu      sync.RWMutex
	buckets map[string]*Node[T]
}

// NewTable returns an empty Table.
func NewTable[T timemodel.Num]() *Table[T] {
	return &Table[T]{buckets: make(map[string]*Node[T])}
}

func bucketKey(scheduled indexset.Set, lookupKey uint64) string {
	return scheduled.Key() + "|" + strconv.FormatUint(lookupKey, 16)
}

// Insert folds s into the table, creating a new Node if no existing one
// shares its identity. It returns the owning Node and whether s introduced
// a new distinct member (false if it was absorbed by merging).
func (t *Table[T]) Insert(s state.State[T]) (*Node[T], bool) {
	n, _, isNew := t.InsertWithMeta(s, nil)
	return n, isNew
}

// InsertWithMeta folds s into the table along with caller metadata. It
// returns the owning Node, the metadata of the surviving member (the
// existing member's when s was absorbed by merging, meta itself when s was
// appended), and whether s introduced a new distinct member.
func (t *Table[T]) InsertWithMeta(s state.State[T], meta any) (*Node[T], any, bool) {
	k := bucketKey(s.Scheduled(), s.LookupKey())

	t.mu.RLock()
	n, ok := t.buckets[k]
	t.mu.RUnlock()

	if !ok {
		t.mu.Lock()
		n, ok = t.buckets[k]
		if !ok {
			n = &Node[T]{scheduled: s.Scheduled(), lookupKey: s.LookupKey()}
			t.buckets[k] = n
		}
		t.mu.Unlock()
	}

	survivor, isNew := n.insert(s, meta)
	return n, survivor, isNew
}

// Len returns the number of distinct vertices currently registered.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.buckets)
}

// NumStates returns the total number of maximally merged states across
// every vertex in the table.
func (t *Table[T]) NumStates() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := 0
	for _, n := range t.buckets {
		n.mu.Lock()
		total += len(n.states)
		n.mu.Unlock()
	}
	return total
}

// Nodes returns a snapshot slice of every vertex in the table.
func (t *Table[T]) Nodes() []*Node[T] {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Node[T], 0, len(t.buckets))
	for _, n := range t.buckets {
		out = append(out, n)
	}
	return out
}

// SortedNodes returns the vertices ordered by bucket key, for the
// deterministic single-threaded mode used with graph emission.
func (t *Table[T]) SortedNodes() []*Node[T] {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]string, 0, len(t.buckets))
	for k := range t.buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*Node[T], 0, len(keys))
	for _, k := range keys {
		out = append(out, t.buckets[k])
	}
	return out
}
