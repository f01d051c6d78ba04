package registration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/ignite/domainwatch/internal/domain"
)

// Dialect names, also used as the migrations subdirectory.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const registrationColumns = `id, domain, email, notified, created_at, notified_at`

// SQLStore is the database/sql backed Store shared by PostgreSQL and SQLite.
// Queries are written with ? placeholders and rebound per dialect.
type SQLStore struct {
	db      *sql.DB
	dialect string
	now     func() time.Time
}

// NewSQLStore wraps an open handle without running migrations.
func NewSQLStore(db *sql.DB, dialect string) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, now: time.Now}
}

// OpenPostgres connects with lib/pq and applies migrations.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := openPostgresDB(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return migrated(ctx, db, DialectPostgres)
}

// OpenSQLite opens (or creates) the database file and applies migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	db, err := openSQLiteDB(ctx, path)
	if err != nil {
		return nil, err
	}
	return migrated(ctx, db, DialectSQLite)
}

// OpenSQLDB opens the database behind a postgres or sqlite URL without
// running migrations, for tooling that applies them itself.
func OpenSQLDB(ctx context.Context, rawURL string) (*sql.DB, string, error) {
	if strings.HasPrefix(rawURL, "postgres://") || strings.HasPrefix(rawURL, "postgresql://") {
		db, err := openPostgresDB(ctx, rawURL)
		return db, DialectPostgres, err
	}
	if strings.HasPrefix(rawURL, "dynamodb://") {
		return nil, "", storeErr("open", errors.New("dynamodb has no SQL schema"))
	}
	db, err := openSQLiteDB(ctx, sqlitePath(rawURL))
	return db, DialectSQLite, err
}

func migrated(ctx context.Context, db *sql.DB, dialect string) (*SQLStore, error) {
	if err := RunMigrations(ctx, db, dialect, nil); err != nil {
		_ = db.Close()
		return nil, storeErr("migrate", err)
	}
	return NewSQLStore(db, dialect), nil
}

func openPostgresDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, storeErr("open", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storeErr("open", err)
	}
	return db, nil
}

func openSQLiteDB(ctx context.Context, path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, storeErr("open", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, storeErr("open", err)
	}
	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, storeErr("open", fmt.Errorf("apply pragmas: %w", err))
	}
	return db, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Register implements Store. The insert relies on the partial unique index
// over active rows, so concurrent callers for the same pair cannot both win.
func (s *SQLStore) Register(ctx context.Context, domainName, email string) (RegisterResult, error) {
	reg := domain.Registration{
		ID:        uuid.New().String(),
		Domain:    domain.NormalizeDomain(domainName),
		Email:     domain.NormalizeEmail(email),
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
	}
	if reg.Domain == "" || reg.Email == "" {
		return RegisterResult{}, storeErr("register", errors.New("domain and email are required"))
	}

	// One retry covers an active row being notified between our insert and
	// the lookup of the row that blocked it.
	for attempt := 0; attempt < 2; attempt++ {
		res, err := s.db.ExecContext(ctx, s.rebind(`
			INSERT INTO registrations (id, domain, email, notified, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING`),
			reg.ID, reg.Domain, reg.Email, false, reg.CreatedAt.UnixMilli(),
		)
		if err != nil {
			return RegisterResult{}, storeErr("register", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return RegisterResult{}, storeErr("register", err)
		}
		if n == 1 {
			return RegisterResult{Created: true, Registration: reg}, nil
		}

		existing, err := s.scanOne(s.db.QueryRowContext(ctx, s.rebind(`
			SELECT `+registrationColumns+`
			FROM registrations
			WHERE domain = ? AND email = ? AND notified = ?`),
			reg.Domain, reg.Email, false,
		))
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return RegisterResult{}, storeErr("register", err)
		}
		return RegisterResult{Created: false, Registration: existing}, nil
	}
	return RegisterResult{}, storeErr("register", errors.New("conflicting registration disappeared during insert"))
}

// ListPending implements Store.
func (s *SQLStore) ListPending(ctx context.Context) ([]domain.Registration, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT `+registrationColumns+`
		FROM registrations
		WHERE notified = ?
		ORDER BY seq ASC`),
		false,
	)
	if err != nil {
		return nil, storeErr("list_pending", err)
	}
	defer rows.Close()

	var out []domain.Registration
	for rows.Next() {
		reg, err := s.scanOne(rows)
		if err != nil {
			return nil, storeErr("list_pending", err)
		}
		out = append(out, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list_pending", err)
	}
	return out, nil
}

// MarkNotified implements Store. notified_at keeps the first value written.
func (s *SQLStore) MarkNotified(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE registrations
		SET notified = ?, notified_at = COALESCE(notified_at, ?)
		WHERE id = ?`),
		true, s.now().UTC().UnixMilli(), id,
	)
	if err != nil {
		return storeErr("mark_notified", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("mark_notified", err)
	}
	if n == 0 {
		return storeErr("mark_notified", ErrNotFound)
	}
	return nil
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, id string) (domain.Registration, error) {
	reg, err := s.scanOne(s.db.QueryRowContext(ctx, s.rebind(`
		SELECT `+registrationColumns+`
		FROM registrations
		WHERE id = ?`),
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Registration{}, storeErr("get", ErrNotFound)
	}
	if err != nil {
		return domain.Registration{}, storeErr("get", err)
	}
	return reg, nil
}

// Ping implements Store.
func (s *SQLStore) Ping(ctx context.Context) error {
	return storeErr("ping", s.db.PingContext(ctx))
}

// Close implements Store.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// DB exposes the handle for migration tooling.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Dialect reports which SQL dialect the store speaks.
func (s *SQLStore) Dialect() string { return s.dialect }

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLStore) scanOne(row rowScanner) (domain.Registration, error) {
	var (
		reg        domain.Registration
		createdAt  int64
		notifiedAt sql.NullInt64
	)
	if err := row.Scan(&reg.ID, &reg.Domain, &reg.Email, &reg.Notified, &createdAt, &notifiedAt); err != nil {
		return domain.Registration{}, err
	}
	reg.CreatedAt = time.UnixMilli(createdAt).UTC()
	reg.NotifiedAt = fromNullMillis(notifiedAt)
	return reg, nil
}

// rebind rewrites ? placeholders to $1..$n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
