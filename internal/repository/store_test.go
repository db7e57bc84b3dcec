package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgconn"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, *observer.ObservedLogs) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	core, logs := observer.New(zapcore.DebugLevel)
	return NewStoreWithDB(sqlx.NewDb(db, "sqlmock"), zap.New(core)), mock, logs
}

func TestBuildInsert(t *testing.T) {
	query, args, err := buildInsert("ohlc", []string{"ticker", "open"}, [][]interface{}{
		{"AAPL", 1.5},
		{"MSFT", 2.5},
	})
	if err != nil {
		t.Fatalf("buildInsert: %v", err)
	}

	want := `INSERT INTO "ohlc" ("ticker", "open") VALUES ($1, $2), ($3, $4)`
	if query != want {
		t.Fatalf("expected %q, got %q", want, query)
	}
	if len(args) != 4 || args[2] != "MSFT" {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestBuildInsertRejectsRaggedRows(t *testing.T) {
	_, _, err := buildInsert("ohlc", []string{"ticker", "open"}, [][]interface{}{{"AAPL"}})
	if err == nil {
		t.Fatal("expected error for a row with missing values")
	}
}

func TestInsertEmptyIssuesNoStatement(t *testing.T) {
	store, mock, logs := newMockStore(t)

	if store.Insert(context.Background(), "ohlc", []string{"ticker"}, nil) {
		t.Fatal("expected false for empty insert")
	}
	if logs.FilterMessage("Failed to execute statement").Len() != 0 {
		t.Fatal("expected no statement to be executed")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertSucceeds(t *testing.T) {
	store, mock, _ := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "ohlc" ("ticker") VALUES ($1), ($2)`)).
		WithArgs("AAPL", "MSFT").
		WillReturnResult(sqlmock.NewResult(0, 2))

	ok := store.Insert(context.Background(), "ohlc", []string{"ticker"}, [][]interface{}{{"AAPL"}, {"MSFT"}})
	if !ok {
		t.Fatal("expected insert to succeed")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertConstraintViolationReturnsFalse(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "duplicate key", err: &pgconn.PgError{Code: "23505", ConstraintName: "ohlc_pkey"}},
		{name: "unknown ticker", err: &pgconn.PgError{Code: "23503", ConstraintName: "ohlc_ticker_fkey"}},
		{name: "connection", err: errors.New("connection reset")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock, logs := newMockStore(t)
			mock.ExpectExec(`INSERT INTO "ohlc"`).WillReturnError(tt.err)

			if store.Insert(context.Background(), "ohlc", []string{"ticker"}, [][]interface{}{{"AAPL"}}) {
				t.Fatal("expected insert to fail")
			}
			if logs.FilterMessage("Failed to execute statement").Len() != 1 {
				t.Fatal("expected the failure to be logged")
			}
		})
	}
}

func TestSQLState(t *testing.T) {
	code, constraint := sqlState(&pgconn.PgError{Code: "23505", ConstraintName: "ohlc_pkey"})
	if code != "23505" || constraint != "ohlc_pkey" {
		t.Fatalf("unexpected %s %s", code, constraint)
	}
	if code, _ := sqlState(errors.New("plain")); code != "" {
		t.Fatalf("expected no code, got %s", code)
	}
}

func TestFetchOnDisconnectedStore(t *testing.T) {
	store := NewStore(newTestDatabaseConfig(), zap.NewNop())
	var dest []string
	if store.FetchAll(context.Background(), &dest, "SELECT 1") {
		t.Fatal("expected false on a disconnected store")
	}
	if store.Ping(context.Background()) {
		t.Fatal("expected ping to fail on a disconnected store")
	}
}
