package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yourorg/market-insights/internal/config"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgconn"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schema string

const defaultRetryDelay = 10 * time.Second

// Store is the single point of access to the relational store. Statement
// failures are logged and reported as empty or false results.
type Store struct {
	db     *sqlx.DB
	cfg    config.DatabaseConfig
	logger *zap.Logger
}

// NewStore creates a store that connects lazily through Connect
func NewStore(cfg config.DatabaseConfig, logger *zap.Logger) *Store {
	return &Store{
		cfg:    cfg,
		logger: logger.Named("store"),
	}
}

// NewStoreWithDB wraps an already opened database handle
func NewStoreWithDB(db *sqlx.DB, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.Named("store"),
	}
}

// Connect opens the database, retrying on a fixed delay until it succeeds
// or ctx is cancelled.
func (s *Store) Connect(ctx context.Context) error {
	driver := s.cfg.Driver
	if driver == "" {
		driver = "pgx"
	}
	delay := s.cfg.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}

	s.logger.Info("Connecting to database",
		zap.String("host", s.cfg.Host),
		zap.String("database", s.cfg.DBName))

	operation := func() error {
		db, err := sqlx.ConnectContext(ctx, driver, s.cfg.DSN())
		if err != nil {
			return err
		}
		db.SetMaxOpenConns(s.cfg.MaxOpenConns)
		db.SetMaxIdleConns(s.cfg.MaxIdleConns)
		db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)
		s.db = db
		return nil
	}
	notify := func(err error, next time.Duration) {
		s.logger.Warn("Failed to connect to database, retrying",
			zap.Error(err),
			zap.Duration("retry_in", next))
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(delay), ctx)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return fmt.Errorf("database connect aborted: %w", err)
	}

	s.logger.Info("Connected to database")
	return nil
}

// Close releases the connection pool
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	s.logger.Info("Disconnecting from database")
	return s.db.Close()
}

// Ping reports whether the database currently answers
func (s *Store) Ping(ctx context.Context) bool {
	if s.db == nil {
		return false
	}
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Warn("Database ping failed", zap.Error(err))
		return false
	}
	return true
}

// EnsureSchema creates the tables the service needs if they are missing
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s.db == nil {
		return errors.New("store is not connected")
	}
	for _, statement := range strings.Split(schema, ";") {
		if strings.TrimSpace(statement) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// FetchAll runs a read query into dest, a pointer to a slice. It returns
// false when the query failed; dest is then left untouched or partial and
// callers answer an empty list.
func (s *Store) FetchAll(ctx context.Context, dest interface{}, query string, args ...interface{}) bool {
	if s.db == nil {
		s.logger.Error("Fetch on a disconnected store")
		return false
	}
	if err := s.db.SelectContext(ctx, dest, query, args...); err != nil {
		s.logger.Error("Failed to fetch rows", zap.Error(err))
		return false
	}
	s.logger.Debug("Fetched all rows")
	return true
}

// FetchOne runs a read query into dest. It returns false when there is no
// row or the query failed.
func (s *Store) FetchOne(ctx context.Context, dest interface{}, query string, args ...interface{}) bool {
	if s.db == nil {
		s.logger.Error("Fetch on a disconnected store")
		return false
	}
	if err := s.db.GetContext(ctx, dest, query, args...); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Error("Failed to fetch row", zap.Error(err))
		}
		return false
	}
	return true
}

// Exec runs a single write statement
func (s *Store) Exec(ctx context.Context, query string, args ...interface{}) bool {
	if s.db == nil {
		s.logger.Error("Exec on a disconnected store")
		return false
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		s.logStatementError("Failed to execute statement", err)
		return false
	}
	return true
}

// Insert writes rows into table as one multi-row statement. An empty row
// list is a no-op that returns false.
func (s *Store) Insert(ctx context.Context, table string, columns []string, rows [][]interface{}) bool {
	return s.insert(ctx, table, columns, rows, "")
}

// Upsert inserts rows and updates every non-key column of rows whose key
// already exists.
func (s *Store) Upsert(ctx context.Context, table string, columns []string, key string, rows [][]interface{}) bool {
	updates := make([]string, 0, len(columns))
	for _, column := range columns {
		if column == key {
			continue
		}
		quoted := pq.QuoteIdentifier(column)
		updates = append(updates, quoted+" = EXCLUDED."+quoted)
	}
	suffix := " ON CONFLICT (" + pq.QuoteIdentifier(key) + ") DO NOTHING"
	if len(updates) > 0 {
		suffix = " ON CONFLICT (" + pq.QuoteIdentifier(key) + ") DO UPDATE SET " + strings.Join(updates, ", ")
	}
	return s.insert(ctx, table, columns, rows, suffix)
}

func (s *Store) insert(ctx context.Context, table string, columns []string, rows [][]interface{}, suffix string) bool {
	if len(rows) == 0 {
		return false
	}
	query, args, err := buildInsert(table, columns, rows)
	if err != nil {
		s.logger.Error("Failed to build insert", zap.Error(err), zap.String("table", table))
		return false
	}
	if !s.Exec(ctx, query+suffix, args...) {
		return false
	}
	s.logger.Info("Inserted rows", zap.String("table", table), zap.Int("rows", len(rows)))
	return true
}

// buildInsert renders INSERT INTO table (columns) VALUES ($1, ...), (...)
func buildInsert(table string, columns []string, rows [][]interface{}) (string, []interface{}, error) {
	if len(columns) == 0 {
		return "", nil, errors.New("no columns")
	}

	quoted := make([]string, len(columns))
	for i, column := range columns {
		quoted[i] = pq.QuoteIdentifier(column)
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pq.QuoteIdentifier(table))
	b.WriteString(" (")
	b.WriteString(strings.Join(quoted, ", "))
	b.WriteString(") VALUES ")

	args := make([]interface{}, 0, len(rows)*len(columns))
	for i, row := range rows {
		if len(row) != len(columns) {
			return "", nil, fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(columns))
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range row {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString("$")
			b.WriteString(strconv.Itoa(len(args) + j + 1))
		}
		b.WriteString(")")
		args = append(args, row...)
	}

	return b.String(), args, nil
}

// logStatementError logs err with the SQLSTATE when the driver exposes one
func (s *Store) logStatementError(msg string, err error) {
	fields := []zap.Field{zap.Error(err)}
	if code, constraint := sqlState(err); code != "" {
		fields = append(fields, zap.String("sqlstate", code), zap.String("constraint", constraint))
	}
	s.logger.Error(msg, fields...)
}

// sqlState extracts the SQLSTATE code from either supported driver
func sqlState(err error) (code, constraint string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint
	}
	return "", ""
}
