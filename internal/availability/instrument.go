package availability

import (
	"context"
	"time"

	"github.com/ignite/domainwatch/internal/metrics"
)

// Instrument records count, outcome and latency of every lookup made through
// the returned Checker under the given source label.
func Instrument(next Checker, source string, m *metrics.Metrics) Checker {
	if m == nil {
		return next
	}
	return CheckerFunc(func(ctx context.Context, domain string) (bool, error) {
		start := time.Now()
		available, err := next.Check(ctx, domain)
		outcome := metrics.OutcomeUnavailable
		switch {
		case err != nil:
			outcome = metrics.OutcomeError
		case available:
			outcome = metrics.OutcomeAvailable
		}
		m.ObserveLookup(source, outcome, time.Since(start))
		return available, err
	})
}
