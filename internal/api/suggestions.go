package api

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/domainwatch/internal/availability"
	"github.com/ignite/domainwatch/internal/pkg/logger"
)

// SuggestionFilter keeps the candidates that are available, in candidate
// order, stopping once limit have been found. Lookups run in windows of
// concurrency candidates; a window finishes before the next one starts, so
// at most concurrency-1 lookups are spent past the point where limit is hit.
type SuggestionFilter struct {
	checker     availability.Checker
	concurrency int
}

// NewSuggestionFilter returns a filter. concurrency < 1 is treated as 1,
// which checks candidates strictly one at a time.
func NewSuggestionFilter(checker availability.Checker, concurrency int) *SuggestionFilter {
	if concurrency < 1 {
		concurrency = 1
	}
	return &SuggestionFilter{checker: checker, concurrency: concurrency}
}

// Filter returns at most limit available candidates. Per-candidate lookup
// failures count as "not available".
func (f *SuggestionFilter) Filter(ctx context.Context, candidates []string, limit int) []string {
	if limit <= 0 {
		return []string{}
	}
	out := make([]string, 0, limit)

	for start := 0; start < len(candidates) && len(out) < limit; start += f.concurrency {
		if ctx.Err() != nil {
			break
		}
		end := min(start+f.concurrency, len(candidates))
		window := candidates[start:end]
		available := make([]bool, len(window))

		var g errgroup.Group
		g.SetLimit(f.concurrency)
		for i, cand := range window {
			g.Go(func() error {
				ok, err := f.checker.Check(ctx, cand)
				if err != nil {
					logger.Debug("suggestion lookup failed", "domain", cand, "error", err)
					return nil
				}
				available[i] = ok
				return nil
			})
		}
		_ = g.Wait()

		for i, ok := range available {
			if ok {
				out = append(out, window[i])
				if len(out) >= limit {
					break
				}
			}
		}
	}
	return out
}
