// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package interval implements closed, inclusive [from, until] ranges over a
// totally ordered time type.
package interval

import "github.com/jontk/npsched/internal/timemodel"

// Interval is a closed range [From, Until] with From <= Until.
type Interval[T timemodel.Num] struct {
	From  T
	Until T
}

// New builds an Interval, swapping the bounds if they were given reversed.
func New[T timemodel.Num](from, until T) Interval[T] {
	if from > until {
		from, until = until, from
	}
	return Interval[T]{From: from, Until: until}
}

// Degenerate builds a zero-width interval [t, t].
func Degenerate[T timemodel.Num](t T) Interval[T] {
	return Interval[T]{From: t, Until: t}
}

// Min is an alias for From.
func (iv Interval[T]) Min() T { return iv.From }

// Max is an alias for Until.
func (iv Interval[T]) Max() T { return iv.Until }

// Contains reports whether t falls within the closed interval.
func (iv Interval[T]) Contains(t T) bool {
	return iv.From <= t && t <= iv.Until
}

// Intersects reports whether the two closed intervals share at least one
// point.
func (iv Interval[T]) Intersects(other Interval[T]) bool {
	return iv.From <= other.Until && other.From <= iv.Until
}

// Intersect returns the intersection of the two intervals. The second
// return value is false if they do not overlap, in which case the first
// return value is the zero Interval.
func (iv Interval[T]) Intersect(other Interval[T]) (Interval[T], bool) {
	if !iv.Intersects(other) {
		return Interval[T]{}, false
	}
	return Interval[T]{
		From:  timemodel.Max(iv.From, other.From),
		Until: timemodel.Min(iv.Until, other.Until),
	}, true
}

// Union returns the smallest interval containing both operands. Unlike
// Intersect it is always defined: the engine only ever unions intervals
// already known to intersect, per the merge precondition.
func (iv Interval[T]) Union(other Interval[T]) Interval[T] {
	return Interval[T]{
		From:  timemodel.Min(iv.From, other.From),
		Until: timemodel.Max(iv.Until, other.Until),
	}
}

// Equal reports whether both intervals have identical bounds.
func (iv Interval[T]) Equal(other Interval[T]) bool {
	return iv.From == other.From && iv.Until == other.Until
}
