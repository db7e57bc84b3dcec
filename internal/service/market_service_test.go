package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/yourorg/market-insights/internal/model"

	"go.uber.org/zap"
)

var (
	prevTime = time.Date(2023, 8, 18, 15, 30, 0, 0, time.UTC)
	curTime  = prevTime.Add(time.Hour)
)

func windowRow(ticker string, cur, prev *model.OHLC) model.OHLCWindowRow {
	row := model.OHLCWindowRow{OHLC: *cur}
	row.Ticker = ticker
	row.Datetime = curTime
	if prev != nil {
		dt := prevTime
		row.PrevDatetime = &dt
		row.PrevOpen = &prev.Open
		row.PrevHigh = &prev.High
		row.PrevLow = &prev.Low
		row.PrevClose = &prev.Close
		row.PrevVolume = &prev.Volume
	}
	return row
}

func flat(v float64, volume int64) *model.OHLC {
	return &model.OHLC{Open: v, High: v, Low: v, Close: v, Volume: volume}
}

func TestRankMoversOrdersByRatio(t *testing.T) {
	rows := []model.OHLCWindowRow{
		windowRow("SLOW", flat(101, 0), flat(100, 0)), // 4/400 = 0.01
		windowRow("FAST", flat(150, 0), flat(100, 0)), // 200/400 = 0.5
		windowRow("DOWN", flat(70, 0), flat(100, 0)),  // 120/400 = 0.3
		windowRow("NEW", flat(100, 0), nil),           // no previous bar
		windowRow("ZERO", flat(10, 0), flat(0, 0)),    // previous sum is zero
		windowRow("TIE", flat(130, 0), flat(100, 0)),  // 0.3, ties with DOWN
	}

	ranked := RankMovers(rows, MoverLimit)
	want := []string{"FAST", "DOWN", "TIE", "SLOW"}
	if len(ranked) != len(want) {
		t.Fatalf("expected %d movers, got %d", len(want), len(ranked))
	}
	for i, ticker := range want {
		if ranked[i].Ticker != ticker {
			t.Fatalf("position %d: expected %s, got %s", i, ticker, ranked[i].Ticker)
		}
	}
}

func TestRankMoversCutsAtLimit(t *testing.T) {
	var rows []model.OHLCWindowRow
	for i := 0; i < 15; i++ {
		rows = append(rows, windowRow(fmt.Sprintf("T%02d", i), flat(float64(100+i), 10), flat(100, 10)))
	}

	ranked := RankMovers(rows, MoverLimit)
	if len(ranked) != 10 {
		t.Fatalf("expected 10 movers, got %d", len(ranked))
	}
	if ranked[0].Ticker != "T14" || ranked[9].Ticker != "T05" {
		t.Fatalf("unexpected order %s..%s", ranked[0].Ticker, ranked[9].Ticker)
	}
}

func TestRankMoversIncludesVolume(t *testing.T) {
	rows := []model.OHLCWindowRow{
		windowRow("PRICE", flat(110, 1000), flat(100, 1000)), // 40/1400
		windowRow("VOL", flat(100, 2000), flat(100, 1000)),   // 1000/1400
	}
	ranked := RankMovers(rows, MoverLimit)
	if ranked[0].Ticker != "VOL" {
		t.Fatalf("expected volume change to dominate, got %s", ranked[0].Ticker)
	}
}

type fakeMarketStore struct {
	latest []model.OHLC
	window []model.OHLCWindowRow
}

func (f *fakeMarketStore) LatestOHLC(ctx context.Context) []model.OHLC            { return f.latest }
func (f *fakeMarketStore) RecentWindow(ctx context.Context) []model.OHLCWindowRow { return f.window }

type fakeProfiles map[string]model.Company

func (f fakeProfiles) GetByTickers(ctx context.Context, tickers []string) map[string]model.Company {
	result := make(map[string]model.Company)
	for _, t := range tickers {
		if c, ok := f[t]; ok {
			result[t] = c
		}
	}
	return result
}

type capturingGenerator struct {
	rows []model.OHLC
}

func (g *capturingGenerator) Generate(ctx context.Context, rows []model.OHLC) model.InsightsResponse {
	g.rows = rows
	return model.InsightsResponse{Count: 0, Items: []model.Insights{}}
}

func TestMoversExactDeltas(t *testing.T) {
	prev := &model.OHLC{Open: 150.1, High: 152.3, Low: 149.8, Close: 151.2, Volume: 1000}
	cur := &model.OHLC{Open: 151.2, High: 153.4, Low: 150.9, Close: 152.3, Volume: 1500}
	store := &fakeMarketStore{window: []model.OHLCWindowRow{windowRow("AAPL", cur, prev)}}
	profiles := fakeProfiles{"AAPL": {Ticker: "AAPL", Name: "Apple Inc"}}
	svc := NewMarketService(store, profiles, &capturingGenerator{}, zap.NewNop())

	movers := svc.Movers(context.Background())
	if movers.Count != 1 {
		t.Fatalf("expected one mover, got %d", movers.Count)
	}
	m := movers.Items[0]
	if m.Profile.Name != "Apple Inc" {
		t.Fatalf("unexpected profile %+v", m.Profile)
	}
	if m.CurrentMetrics.Close != 152.3 || m.CurrentMetrics.Volume != 1500 {
		t.Fatalf("unexpected current metrics %+v", m.CurrentMetrics)
	}
	want := model.Metrics{Open: 1.1, High: 1.1, Low: 1.1, Close: 1.1, Volume: 500}
	if m.MetricDeltas != want {
		t.Fatalf("expected deltas %+v, got %+v", want, m.MetricDeltas)
	}
}

func TestMoversWithoutProfile(t *testing.T) {
	store := &fakeMarketStore{window: []model.OHLCWindowRow{windowRow("MSFT", flat(2, 1), flat(1, 1))}}
	svc := NewMarketService(store, fakeProfiles{}, &capturingGenerator{}, zap.NewNop())

	movers := svc.Movers(context.Background())
	if movers.Count != 1 || movers.Items[0].Profile.Ticker != "MSFT" {
		t.Fatalf("expected a bare profile for MSFT, got %+v", movers.Items)
	}
}

func TestInsightsUsesTopMoversAtBothDatetimes(t *testing.T) {
	store := &fakeMarketStore{window: []model.OHLCWindowRow{
		windowRow("AAPL", flat(110, 1), flat(100, 1)),
		windowRow("NEW", flat(110, 1), nil),
	}}
	generator := &capturingGenerator{}
	svc := NewMarketService(store, fakeProfiles{}, generator, zap.NewNop())

	svc.Insights(context.Background())
	if len(generator.rows) != 2 {
		t.Fatalf("expected previous and current AAPL rows, got %d", len(generator.rows))
	}
	if !generator.rows[0].Datetime.Equal(prevTime) || !generator.rows[1].Datetime.Equal(curTime) {
		t.Fatalf("unexpected datetimes %v %v", generator.rows[0].Datetime, generator.rows[1].Datetime)
	}
	if generator.rows[0].Open != 100 || generator.rows[1].Open != 110 {
		t.Fatal("expected previous values first")
	}
}

func TestInsightsWithoutMovers(t *testing.T) {
	generator := &capturingGenerator{}
	svc := NewMarketService(&fakeMarketStore{}, fakeProfiles{}, generator, zap.NewNop())

	if got := svc.Insights(context.Background()); got.Count != 0 || got.Items == nil {
		t.Fatalf("expected empty insights, got %+v", got)
	}
	if generator.rows != nil {
		t.Fatal("expected the generator not to be called")
	}
}

func TestLatest(t *testing.T) {
	store := &fakeMarketStore{latest: []model.OHLC{barAt("AAPL", curTime), barAt("MSFT", curTime)}}
	svc := NewMarketService(store, fakeProfiles{}, &capturingGenerator{}, zap.NewNop())

	if got := svc.Latest(context.Background()); got.Count != 2 {
		t.Fatalf("expected 2 rows, got %d", got.Count)
	}
}
