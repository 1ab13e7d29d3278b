// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"context"

	"github.com/jontk/npsched/pkg/metrics"
)

// WatchUntil consumes progress events until the predicate holds for a
// snapshot or the context ends, returning the last snapshot seen.
func WatchUntil(ctx context.Context, p *ProgressPoller, pred func(*metrics.Stats) bool) (*metrics.Stats, error) {
	events, err := p.Watch(ctx)
	if err != nil {
		return nil, err
	}

	var last *metrics.Stats
	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case event, ok := <-events:
			if !ok {
				return last, ctx.Err()
			}
			last = event.Stats
			if pred(event.Stats) {
				return event.Stats, nil
			}
		}
	}
}
