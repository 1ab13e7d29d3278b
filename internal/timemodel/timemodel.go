// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package timemodel defines the totally-ordered time type the rest of the
// engine is generic over, and the small set of constants every component
// needs to build inclusive intervals from open bounds.
package timemodel

import "golang.org/x/exp/constraints"

// Num is the constraint satisfied by a time type. Plain integers give the
// integer time model; a fixed-point model is obtained by instantiating the
// same generic code with a scaled integer type (e.g. ticks of 1/1000 of a
// time unit) instead of introducing a parallel arbitrary-precision
// arithmetic abstraction.
type Num interface {
	constraints.Integer
}

// Clock carries the three knobs the time type needs beyond plain
// ordering: a smallest representable unit (epsilon), a tolerance applied
// when deciding whether a finish time exceeds a deadline, and a sentinel
// standing in for +infinity. It is threaded explicitly through the
// components that need it rather than held in a package-level singleton,
// so that a single process can analyze workloads under more than one time
// model concurrently.
type Clock[T Num] struct {
	Epsilon               T
	DeadlineMissTolerance T
	Infinity              T
}

// DefaultClock returns the clock used when the caller does not override it:
// epsilon of 1 tick, zero tolerance, and infinity pinned far enough away
// that ordinary arithmetic on realistic workloads never saturates it.
func DefaultClock[T Num]() Clock[T] {
	return Clock[T]{
		Epsilon:               1,
		DeadlineMissTolerance: 0,
		Infinity:              T(1) << (numBits[T]() - 4),
	}
}

// numBits returns the bit width of T from a type switch over the sized
// integer kinds (any other kind counts as 64 bits), capped at 60 so the infinity sentinel
// stays far away from the overflow boundary for any integer width in use.
func numBits[T Num]() uint {
	var zero T
	size := 8
	switch any(zero).(type) {
	case int8, uint8:
		size = 8
	case int16, uint16:
		size = 16
	case int32, uint32:
		size = 32
	default:
		size = 64
	}
	if size > 60 {
		return 60
	}
	return uint(size)
}

// ExceedsDeadline reports whether finishing at t is a genuine deadline miss
// given deadline dl, honoring the clock's tolerance.
func (c Clock[T]) ExceedsDeadline(t, dl T) bool {
	return t > dl && (t-dl) > c.DeadlineMissTolerance
}

// Max returns the larger of a and b.
func Max[T Num](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// Min returns the smaller of a and b.
func Min[T Num](a, b T) T {
	if a < b {
		return a
	}
	return b
}
