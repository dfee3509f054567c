package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"incidentreg/config"
	"incidentreg/core/utils"
)

// DB wraps *sql.DB so stores can write queries with ? placeholders on both
// postgres and sqlite.
type DB struct {
	*sql.DB
	pg bool
}

func NewDB(cfg *config.AppConfig, logger *utils.Logger) (*DB, error) {
	var (
		raw *sql.DB
		err error
	)
	if cfg.IsSQLite() {
		raw, err = sql.Open("sqlite", sqliteDSN(cfg.DBPath))
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		raw.SetMaxOpenConns(1)
	} else {
		raw, err = sql.Open("pgx", cfg.DBURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		raw.SetMaxOpenConns(20)
		raw.SetMaxIdleConns(5)
		raw.SetConnMaxIdleTime(5 * time.Minute)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := raw.PingContext(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.DBDriver, err)
	}
	db := Wrap(raw)
	if logger != nil {
		logger.Printf("database connected (driver=%s)", cfg.DBDriver)
	}
	return db, nil
}

// Wrap detects the dialect from the driver behind raw.
func Wrap(raw *sql.DB) *DB {
	_, pg := raw.Driver().(*stdlib.Driver)
	return &DB{DB: raw, pg: pg}
}

func (db *DB) IsPostgres() bool {
	return db.pg
}

func sqliteDSN(path string) string {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.DB.ExecContext(ctx, db.rebind(query), args...)
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.DB.QueryContext(ctx, db.rebind(query), args...)
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.DB.QueryRowContext(ctx, db.rebind(query), args...)
}

func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	tx, err := db.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{Tx: tx, db: db}, nil
}

// WithTx commits when fn returns nil and rolls back otherwise.
func (db *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

type Tx struct {
	*sql.Tx
	db *DB
}

func (tx *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return tx.Tx.ExecContext(ctx, tx.db.rebind(query), args...)
}

func (tx *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return tx.Tx.QueryContext(ctx, tx.db.rebind(query), args...)
}

func (tx *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return tx.Tx.QueryRowContext(ctx, tx.db.rebind(query), args...)
}

// rebind rewrites ? placeholders to $n for postgres. Queries in this package
// never carry a literal ? inside string constants.
func (db *DB) rebind(query string) string {
	if !db.pg || !strings.Contains(query, "?") {
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

func nullableID(id *int64) any {
	if id == nil || *id == 0 {
		return nil
	}
	return *id
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func ptrInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func ptrFloat64(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
