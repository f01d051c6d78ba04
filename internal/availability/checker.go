// Package availability answers "can this domain be registered right now?"
// through a remote lookup provider. Every provider satisfies Checker and
// reports transport, timeout and decoding failures as *LookupError; callers
// decide whether to retry.
package availability

import (
	"context"
	"fmt"
)

// Checker is the tri-state availability contract: (true, nil) available,
// (false, nil) unavailable, (_, *LookupError) unknown.
type Checker interface {
	Check(ctx context.Context, domain string) (bool, error)
}

// CheckerFunc adapts a plain function to Checker.
type CheckerFunc func(ctx context.Context, domain string) (bool, error)

// Check calls f.
func (f CheckerFunc) Check(ctx context.Context, domain string) (bool, error) {
	return f(ctx, domain)
}

// LookupError is returned when the remote lookup could not produce an answer.
type LookupError struct {
	Domain string
	Err    error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("availability lookup for %s: %v", e.Domain, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

func lookupErr(domain string, err error) *LookupError {
	return &LookupError{Domain: domain, Err: err}
}
