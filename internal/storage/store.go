package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/apperr"
)

// Dialect names a supported backend.
type Dialect string

const (
	DialectSQLite Dialect = "sqlite"
	DialectMySQL  Dialect = "mysql"
)

// DBFileName is the SQLite database created inside the data directory.
const DBFileName = "ledger.db"

// timeLayout is fixed-width so lexical order of stored timestamps equals chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Order selects chronological or reverse-chronological retrieval.
type Order int

const (
	Ascending Order = iota
	Descending
)

// ParseOrder accepts "asc"/"desc" (and the long forms); anything else is Ascending.
func ParseOrder(s string) Order {
	switch s {
	case "desc", "descending", "DESC":
		return Descending
	}
	return Ascending
}

func (o Order) sql() string {
	if o == Descending {
		return "DESC"
	}
	return "ASC"
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries runs ledger statements against either the pool or an open transaction.
type Queries struct {
	q       querier
	dialect Dialect
	now     func() time.Time
}

// Store owns the database handle. Reads go straight to the pool; writes that
// must commit together go through InTx.
type Store struct {
	*Queries
	db *sql.DB
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens the backend named by dialect. For SQLite, target is the data
// directory; for MySQL it is a go-sql-driver DSN.
func Open(ctx context.Context, dialect Dialect, target string, opts ...Option) (*Store, error) {
	switch dialect {
	case DialectSQLite, "":
		return OpenSQLite(ctx, target, opts...)
	case DialectMySQL:
		return OpenMySQL(ctx, target, opts...)
	default:
		return nil, fmt.Errorf("unknown storage dialect %q: %w", dialect, apperr.ErrInvalidInput)
	}
}

// OpenSQLite opens (or creates) dataDir/ledger.db and migrates it.
func OpenSQLite(ctx context.Context, dataDir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, DBFileName)
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?"+sqlitePragmas)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	// A single connection serializes writers and avoids SQLITE_BUSY on lock upgrades.
	db.SetMaxOpenConns(1)
	return newStore(ctx, db, DialectSQLite, SQLiteSchema, opts)
}

// OpenMySQL connects to dsn and migrates the schema.
func OpenMySQL(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	return newStore(ctx, db, DialectMySQL, MySQLSchema, opts)
}

func newStore(ctx context.Context, db *sql.DB, dialect Dialect, schema []string, opts []Option) (*Store, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping ledger db: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate ledger db: %w", err)
		}
	}
	if err := addMissingColumns(ctx, db, dialect); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger db: %w", err)
	}
	s := &Store{
		Queries: &Queries{q: db, dialect: dialect, now: time.Now},
		db:      db,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func addMissingColumns(ctx context.Context, db *sql.DB, dialect Dialect) error {
	for _, m := range columnMigrations {
		var n int
		var err error
		if dialect == DialectMySQL {
			err = db.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM information_schema.columns
				 WHERE table_schema = DATABASE() AND table_name = ? AND column_name = ?`,
				m.table, m.column).Scan(&n)
		} else {
			err = db.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
				m.table, m.column).Scan(&n)
		}
		if err != nil {
			return fmt.Errorf("inspect %s.%s: %w", m.table, m.column, err)
		}
		if n > 0 {
			continue
		}
		def := m.sqliteDef
		if dialect == DialectMySQL {
			def = m.mysqlDef
		}
		if _, err := db.ExecContext(ctx, "ALTER TABLE "+m.table+" ADD COLUMN "+m.column+" "+def); err != nil {
			return fmt.Errorf("add %s.%s: %w", m.table, m.column, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dialect reports the backend in use.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTx runs fn inside a transaction. fn's error (or a commit failure) rolls
// everything back, so callers never observe partial writes.
func (s *Store) InTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbError("begin tx", err)
	}
	defer tx.Rollback()

	if err := fn(&Queries{q: tx, dialect: s.dialect, now: s.now}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return dbError("commit", err)
	}
	return nil
}

func (q *Queries) timestamp() (string, time.Time) {
	t := q.now().UTC()
	return t.Format(timeLayout), t
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

// dbError marks a backing-store failure as Internal while keeping the driver error in the chain.
func dbError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, apperr.ErrInternal, err)
}

// isUniqueViolation reports duplicate-key errors from either driver.
func isUniqueViolation(err error) bool {
	var serr *sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode() == sqlite3.CONSTRAINT_UNIQUE
	}
	var merr *mysql.MySQLError
	if errors.As(err, &merr) {
		return merr.Number == 1062
	}
	return false
}
