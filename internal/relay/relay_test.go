package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type fakeInserter struct {
	ok    bool
	calls int
	last  []map[string]interface{}
}

func (f *fakeInserter) InsertRecords(ctx context.Context, records []map[string]interface{}) bool {
	f.calls++
	f.last = records
	return f.ok
}

type fakePinger bool

func (p fakePinger) Ping(ctx context.Context) bool { return bool(p) }

func TestHandleInsertsBatch(t *testing.T) {
	inserter := &fakeInserter{ok: true}
	r := New(inserter, fakePinger(true), zap.NewNop())

	payload := `[{"ticker":"AAPL","open":150.25,"volume":1200},{"ticker":"MSFT","open":300,"volume":900}]`
	if err := r.Handle(context.Background(), []byte(payload)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inserter.calls != 1 || len(inserter.last) != 2 {
		t.Fatalf("expected one insert of 2 records, got %d calls %d records", inserter.calls, len(inserter.last))
	}
	if open, ok := inserter.last[0]["open"].(json.Number); !ok || open.String() != "150.25" {
		t.Fatalf("expected numbers to keep their text, got %#v", inserter.last[0]["open"])
	}
}

func TestHandleSingleObject(t *testing.T) {
	inserter := &fakeInserter{ok: true}
	r := New(inserter, fakePinger(true), zap.NewNop())

	if err := r.Handle(context.Background(), []byte(`{"ticker":"AAPL"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inserter.last) != 1 {
		t.Fatalf("expected a one-row batch, got %d", len(inserter.last))
	}
}

func TestHandleAcknowledgesRejectedBatches(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		ok      bool
		inserts int
	}{
		{name: "duplicate rows", payload: `[{"ticker":"AAPL"}]`, ok: false, inserts: 1},
		{name: "empty batch", payload: `[]`, ok: true, inserts: 0},
		{name: "scalar rows", payload: `[1, 2]`, ok: true, inserts: 0},
		{name: "not json", payload: `oops`, ok: true, inserts: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inserter := &fakeInserter{ok: tt.ok}
			r := New(inserter, fakePinger(true), zap.NewNop())

			if err := r.Handle(context.Background(), []byte(tt.payload)); err != nil {
				t.Fatalf("expected batch to be acknowledged, got %v", err)
			}
			if inserter.calls != tt.inserts {
				t.Fatalf("expected %d inserts, got %d", tt.inserts, inserter.calls)
			}
		})
	}
}

func TestHandleKeepsBatchWhenStorageDown(t *testing.T) {
	inserter := &fakeInserter{ok: true}
	r := New(inserter, fakePinger(false), zap.NewNop())

	err := r.Handle(context.Background(), []byte(`[{"ticker":"AAPL"}]`))
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if inserter.calls != 0 {
		t.Fatal("expected no insert while storage is down")
	}
}

func TestHandleFlushesCacheOnlyAfterStoredBatch(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		insertOK  bool
		storeUp   bool
		wantFlush int
	}{
		{name: "stored", payload: `[{"ticker":"AAPL"}]`, insertOK: true, storeUp: true, wantFlush: 1},
		{name: "rejected", payload: `[{"ticker":"AAPL"}]`, insertOK: false, storeUp: true, wantFlush: 0},
		{name: "storage down", payload: `[{"ticker":"AAPL"}]`, insertOK: true, storeUp: false, wantFlush: 0},
		{name: "malformed", payload: `oops`, insertOK: true, storeUp: true, wantFlush: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flushes := 0
			r := New(&fakeInserter{ok: tt.insertOK}, fakePinger(tt.storeUp), zap.NewNop()).
				WithCacheFlush(func(ctx context.Context) error {
					flushes++
					return nil
				})

			r.Handle(context.Background(), []byte(tt.payload))
			if flushes != tt.wantFlush {
				t.Fatalf("expected %d flushes, got %d", tt.wantFlush, flushes)
			}
		})
	}
}

func TestHandleIgnoresFlushFailure(t *testing.T) {
	r := New(&fakeInserter{ok: true}, fakePinger(true), zap.NewNop()).
		WithCacheFlush(func(ctx context.Context) error {
			return errors.New("redis down")
		})

	if err := r.Handle(context.Background(), []byte(`[{"ticker":"AAPL"}]`)); err != nil {
		t.Fatalf("expected a stored batch to be acknowledged, got %v", err)
	}
}
