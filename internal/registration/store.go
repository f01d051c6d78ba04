// Package registration persists notify requests. Every backend enforces the
// same rule: at most one active (not yet notified) registration per
// (domain, email), checked and inserted atomically.
package registration

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ignite/domainwatch/internal/domain"
)

// ErrNotFound is returned (wrapped in *StoreError) for unknown ids.
var ErrNotFound = errors.New("registration not found")

// StoreError wraps every persistence failure with the operation that failed.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("registration store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// RegisterResult reports whether Register inserted a row. When Created is
// false, Registration is the already-active row that blocked the insert.
type RegisterResult struct {
	Created      bool
	Registration domain.Registration
}

// Store is the durable registration table.
type Store interface {
	// Register normalizes domain and email and inserts a pending row unless
	// an active one already exists for the pair.
	Register(ctx context.Context, domainName, email string) (RegisterResult, error)
	// ListPending returns every notified=false row in insertion order.
	ListPending(ctx context.Context) ([]domain.Registration, error)
	// MarkNotified sets notified=true. Repeated calls are no-ops.
	MarkNotified(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (domain.Registration, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open selects a backend from a connection URL:
//
//	postgres://... | postgresql://...   PostgreSQL
//	sqlite://path  | file:path | path   SQLite file
//	dynamodb://table?region=...         DynamoDB
func Open(ctx context.Context, rawURL string) (Store, error) {
	var (
		store Store
		err   error
	)
	switch {
	case strings.HasPrefix(rawURL, "postgres://"), strings.HasPrefix(rawURL, "postgresql://"):
		store, err = OpenPostgres(ctx, rawURL)
	case strings.HasPrefix(rawURL, "dynamodb://"):
		u, perr := url.Parse(rawURL)
		if perr != nil {
			return nil, fmt.Errorf("parsing dynamodb url: %w", perr)
		}
		if u.Host == "" {
			return nil, errors.New("dynamodb url needs a table name: dynamodb://<table>")
		}
		store, err = OpenDynamo(ctx, u.Host, u.Query().Get("region"))
	default:
		store, err = OpenSQLite(ctx, sqlitePath(rawURL))
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// sqlitePath strips the sqlite:// scheme. "sqlite:///abs/x.db" is absolute,
// "sqlite://x.db" is relative to the working directory.
func sqlitePath(rawURL string) string {
	if rest, ok := strings.CutPrefix(rawURL, "sqlite://"); ok {
		return rest
	}
	return rawURL
}
