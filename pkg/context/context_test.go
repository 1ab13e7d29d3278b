// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTimeout(t *testing.T) {
	tests := []struct {
		name  string
		phase Phase
		want  time.Duration
	}{
		{"parse phase", PhaseParse, 30 * time.Second},
		{"explore phase", PhaseExplore, DefaultExploreTimeout},
		{"emit phase", PhaseEmit, 1 * time.Minute},
		{"default phase", PhaseDefault, DefaultTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := WithTimeout(context.Background(), tt.phase, nil)
			defer cancel()

			deadline, ok := ctx.Deadline()
			require.True(t, ok, "expected a deadline")
			remaining := time.Until(deadline)
			assert.InDelta(t, tt.want.Seconds(), remaining.Seconds(), 1.0)
		})
	}

	t.Run("watch phase has no deadline by default", func(t *testing.T) {
		ctx, cancel := WithTimeout(context.Background(), PhaseWatch, nil)
		defer cancel()

		_, ok := ctx.Deadline()
		assert.False(t, ok)
	})

	t.Run("watch phase honors configured timeout", func(t *testing.T) {
		config := DefaultTimeoutConfig()
		config.Watch = 10 * time.Second

		ctx, cancel := WithTimeout(context.Background(), PhaseWatch, config)
		defer cancel()

		_, ok := ctx.Deadline()
		assert.True(t, ok)
	})
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "parse", PhaseParse.String())
	assert.Equal(t, "explore", PhaseExplore.String())
	assert.Equal(t, "emit", PhaseEmit.String())
	assert.Equal(t, "watch", PhaseWatch.String())
	assert.Equal(t, "default", PhaseDefault.String())
}

func TestRunID(t *testing.T) {
	id := NewRunID()
	assert.NotEmpty(t, id)
	assert.NotEqual(t, id, NewRunID(), "run IDs should be unique")

	ctx := WithRunID(context.Background(), id)
	assert.Equal(t, id, RunID(ctx))
	assert.Empty(t, RunID(context.Background()))
}

func TestWithDeadline(t *testing.T) {
	t.Run("adds deadline when absent", func(t *testing.T) {
		deadline := time.Now().Add(time.Minute)
		ctx, cancel := WithDeadline(context.Background(), deadline)
		defer cancel()

		got, ok := ctx.Deadline()
		require.True(t, ok)
		assert.Equal(t, deadline, got)
	})

	t.Run("keeps sooner existing deadline", func(t *testing.T) {
		sooner := time.Now().Add(time.Second)
		base, cancel := context.WithDeadline(context.Background(), sooner)
		defer cancel()

		ctx, cancel2 := WithDeadline(base, time.Now().Add(time.Hour))
		defer cancel2()

		got, ok := ctx.Deadline()
		require.True(t, ok)
		assert.Equal(t, sooner, got)
	})
}

func TestEnsureTimeout(t *testing.T) {
	t.Run("adds default timeout", func(t *testing.T) {
		ctx, cancel := EnsureTimeout(context.Background(), 0)
		defer cancel()

		_, ok := ctx.Deadline()
		assert.True(t, ok)
	})

	t.Run("keeps existing deadline", func(t *testing.T) {
		base, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		ctx, cancel2 := EnsureTimeout(base, time.Hour)
		defer cancel2()

		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.LessOrEqual(t, time.Until(deadline), time.Second)
	})
}

func TestIsContextError(t *testing.T) {
	assert.True(t, IsContextError(context.Canceled))
	assert.True(t, IsContextError(context.DeadlineExceeded))
	assert.False(t, IsContextError(errors.New("other")))
	assert.False(t, IsContextError(nil))
}

func TestContextError(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		err := WrapContextError(context.DeadlineExceeded, "explore", 5*time.Second)
		assert.Contains(t, err.Error(), "explore")
		assert.Contains(t, err.Error(), "timed out")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("canceled", func(t *testing.T) {
		err := WrapContextError(context.Canceled, "emit", 0)
		assert.Contains(t, err.Error(), "canceled")
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("non-context errors pass through", func(t *testing.T) {
		plain := errors.New("boom")
		assert.Equal(t, plain, WrapContextError(plain, "parse", 0))
	})
}
