package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/yourorg/market-insights/internal/client"
	"github.com/yourorg/market-insights/internal/config"
	"github.com/yourorg/market-insights/internal/model"

	"go.uber.org/zap"
)

type fakeQuoteFetcher struct {
	batches [][]string
	fail    map[int]bool
}

func (f *fakeQuoteFetcher) Quotes(ctx context.Context, symbols []string, interval string) ([]client.Quote, error) {
	call := len(f.batches)
	f.batches = append(f.batches, symbols)
	if f.fail[call] {
		return nil, errors.New("rate limited")
	}
	quotes := make([]client.Quote, 0, len(symbols))
	for _, s := range symbols {
		quotes = append(quotes, client.Quote{
			Symbol:    s,
			Name:      s + " Inc",
			Datetime:  "2023-08-18 15:30:00",
			Timestamp: "1692372600",
			Open:      "10.5",
			High:      "11",
			Low:       "10",
			Close:     "10.75",
			Volume:    "1200",
		})
	}
	return quotes, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	queues   []string
	payloads [][]byte
	ok       bool
}

func (p *fakePublisher) Publish(ctx context.Context, queue string, payload []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queues = append(p.queues, queue)
	p.payloads = append(p.payloads, payload)
	return p.ok
}

func symbolsN(n int) []string {
	symbols := make([]string, n)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("S%02d", i)
	}
	return symbols
}

func TestQuotePollerPublishesBatchesOfEight(t *testing.T) {
	fetcher := &fakeQuoteFetcher{}
	publisher := &fakePublisher{ok: true}
	poller := NewQuotePoller(fetcher, publisher, "ohlc", config.TwelveDataConfig{Interval: "1h", BatchSize: 8}, zap.NewNop())

	published := poller.Poll(context.Background(), symbolsN(17))
	if published != 17 {
		t.Fatalf("expected 17 records, got %d", published)
	}
	if len(fetcher.batches) != 3 || len(fetcher.batches[0]) != 8 || len(fetcher.batches[2]) != 1 {
		t.Fatalf("unexpected batches %v", fetcher.batches)
	}
	if len(publisher.payloads) != 3 || publisher.queues[0] != "ohlc" {
		t.Fatalf("expected 3 messages on ohlc, got %d", len(publisher.payloads))
	}

	var records []map[string]interface{}
	if err := json.Unmarshal(publisher.payloads[0], &records); err != nil {
		t.Fatalf("payload is not a JSON array: %v", err)
	}
	first := records[0]
	if first["ticker"] != "S00" || first["source"] != "twelvedata" || first["open"] != 10.5 || first["volume"] != float64(1200) {
		t.Fatalf("unexpected record %v", first)
	}
	if _, ok := first["symbol"]; ok {
		t.Fatal("symbol should be renamed to ticker")
	}
}

func TestQuotePollerSkipsFailedBatch(t *testing.T) {
	fetcher := &fakeQuoteFetcher{fail: map[int]bool{0: true}}
	publisher := &fakePublisher{ok: true}
	poller := NewQuotePoller(fetcher, publisher, "ohlc", config.TwelveDataConfig{BatchSize: 8}, zap.NewNop())

	if published := poller.Poll(context.Background(), symbolsN(10)); published != 2 {
		t.Fatalf("expected only the second batch, got %d", published)
	}
	if len(publisher.payloads) != 1 {
		t.Fatalf("expected 1 message, got %d", len(publisher.payloads))
	}
}

func TestQuotePollerStopsOnCancel(t *testing.T) {
	fetcher := &fakeQuoteFetcher{}
	publisher := &fakePublisher{ok: true}
	poller := NewQuotePoller(fetcher, publisher, "ohlc", config.TwelveDataConfig{BatchSize: 8, BatchDelay: time.Hour}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	done := make(chan int)
	go func() { done <- poller.Poll(ctx, symbolsN(16)) }()

	select {
	case published := <-done:
		if published != 8 {
			t.Fatalf("expected the first batch only, got %d", published)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop on cancellation")
	}
}

func TestQuoteRecordRejectsBadNumbers(t *testing.T) {
	_, err := quoteRecord(client.Quote{Symbol: "AAPL", Timestamp: "1", Volume: "1", Open: "x"})
	if err == nil {
		t.Fatal("expected error for a malformed price")
	}
}

type fakeProfileFetcher struct{}

func (fakeProfileFetcher) Profile(ctx context.Context, symbol string) (*client.Profile, error) {
	if symbol == "GONE" {
		return nil, client.ErrProfileNotFound
	}
	return &client.Profile{
		Ticker:               symbol,
		Name:                 symbol + " Corp",
		WebURL:               "https://example.com",
		FinnhubIndustry:      "Technology",
		Exchange:             "NASDAQ",
		Phone:                "14089961010.0",
		MarketCapitalization: 2740000.9,
		ShareOutstanding:     15634.23,
	}, nil
}

type fakeCompanyStore struct {
	calls     int
	companies []model.Company
}

func (s *fakeCompanyStore) UpsertCompanies(ctx context.Context, companies []model.Company) bool {
	s.calls++
	s.companies = companies
	return true
}

func TestProfilePollerMapsAndUpserts(t *testing.T) {
	store := &fakeCompanyStore{}
	poller := NewProfilePoller(fakeProfileFetcher{}, store, config.FinnhubConfig{}, zap.NewNop())

	if stored := poller.Poll(context.Background(), []string{"AAPL", "GONE", "MSFT"}); stored != 2 {
		t.Fatalf("expected 2 companies, got %d", stored)
	}
	if store.calls != 1 {
		t.Fatalf("expected a single upsert, got %d", store.calls)
	}

	apple := store.companies[0]
	if apple.Website != "https://example.com" || *apple.Industry != "Technology" {
		t.Fatalf("unexpected company %+v", apple)
	}
	if *apple.Phone != "+14089961010" {
		t.Fatalf("unexpected phone %s", *apple.Phone)
	}
	if *apple.MarketCap != 2740000 || *apple.NumShares != 15634 {
		t.Fatalf("unexpected figures %d %d", *apple.MarketCap, *apple.NumShares)
	}
}

func TestProfilePollerEmptyIssuesNoUpsert(t *testing.T) {
	store := &fakeCompanyStore{}
	poller := NewProfilePoller(fakeProfileFetcher{}, store, config.FinnhubConfig{}, zap.NewNop())

	if stored := poller.Poll(context.Background(), []string{"GONE"}); stored != 0 {
		t.Fatalf("expected nothing stored, got %d", stored)
	}
	if store.calls != 0 {
		t.Fatal("expected no upsert")
	}
}

func TestFormatPhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "14089961010.0", want: "+14089961010"},
		{in: "4420", want: "+4420"},
	}
	for _, tt := range tests {
		if got := formatPhone(tt.in); got == nil || *got != tt.want {
			t.Errorf("formatPhone(%q) = %v, want %s", tt.in, got, tt.want)
		}
	}
	if formatPhone("") != nil {
		t.Error("expected nil for an empty phone")
	}
}

type flakyTickers struct {
	failures int
	calls    int
}

func (f *flakyTickers) Symbols(ctx context.Context) ([]string, bool) {
	f.calls++
	if f.calls <= f.failures {
		return nil, false
	}
	return []string{"AAPL", "MSFT"}, true
}

type staticTickers []string

func (s staticTickers) Symbols(ctx context.Context) ([]string, bool) {
	return s, true
}

func TestLoadSymbolsPrefersConfigured(t *testing.T) {
	source := &flakyTickers{}
	symbols, err := LoadSymbols(context.Background(), []string{"IBM"}, source, time.Millisecond, zap.NewNop())
	if err != nil || len(symbols) != 1 || symbols[0] != "IBM" {
		t.Fatalf("unexpected result %v %v", symbols, err)
	}
	if source.calls != 0 {
		t.Fatal("expected the store not to be read")
	}
}

func TestLoadSymbolsRetriesStore(t *testing.T) {
	source := &flakyTickers{failures: 2}
	symbols, err := LoadSymbols(context.Background(), nil, source, time.Millisecond, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(symbols) != 2 || source.calls != 3 {
		t.Fatalf("expected success on the third attempt, got %v after %d calls", symbols, source.calls)
	}
}

func TestLoadSymbolsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	source := &flakyTickers{failures: 100}
	if _, err := LoadSymbols(ctx, nil, source, time.Hour, zap.NewNop()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(context.Background(), zap.NewNop())
	if err := s.AddScheduledJob("broken", func(context.Context) {}, "every now and then"); err == nil {
		t.Fatal("expected error for an invalid schedule")
	}
}

func TestSchedulerStartupJob(t *testing.T) {
	s := NewScheduler(context.Background(), zap.NewNop())
	ran := make(chan struct{})
	s.AddStartupJob("once", func(context.Context) { close(ran) }, time.Millisecond)

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("startup job did not run")
	}
}

func TestIngestorRunOnce(t *testing.T) {
	fetcher := &fakeQuoteFetcher{}
	publisher := &fakePublisher{ok: true}
	store := &fakeCompanyStore{}

	ingestor := NewIngestor(
		NewQuotePoller(fetcher, publisher, "ohlc", config.TwelveDataConfig{BatchSize: 8}, zap.NewNop()),
		NewProfilePoller(fakeProfileFetcher{}, store, config.FinnhubConfig{}, zap.NewNop()),
		staticTickers{"AAPL", "MSFT"},
		nil,
		time.Millisecond,
		zap.NewNop(),
	)
	ingestor.RunOnce(context.Background())

	if len(publisher.payloads) != 1 {
		t.Fatalf("expected one quote message, got %d", len(publisher.payloads))
	}
	if store.calls != 1 || len(store.companies) != 2 {
		t.Fatalf("expected both profiles upserted, got %d calls", store.calls)
	}
}
