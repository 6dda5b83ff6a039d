package feeder

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"arthcore/native/oracle"
	"arthcore/services/arthd/config"
	"arthcore/services/arthd/storage"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type stubFeed struct {
	id    string
	price uint64
	at    func() time.Time
	err   error
	calls int
}

func (f *stubFeed) ID() string { return f.id }

func (f *stubFeed) Fetch(context.Context) (oracle.Observation, error) {
	f.calls++
	if f.err != nil {
		return oracle.Observation{}, f.err
	}
	return oracle.Observation{FeedID: f.id, Price: uint256.NewInt(f.price), ObservedAt: f.at()}, nil
}

type memRecorder struct{ samples []storage.Sample }

func (r *memRecorder) RecordSample(_ context.Context, s storage.Sample) error {
	r.samples = append(r.samples, s)
	return nil
}

func dur(d time.Duration) config.Duration { return config.Duration{Duration: d} }

func TestBuildGraphResolvesDerivedSources(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	g, err := BuildGraph([]config.Source{
		{ID: "ARTHX_USD", Type: config.SourceChain, Hops: []string{"ARTHX_ETH", "ETH_USD"}},
		{ID: "ARTHX_ETH", Type: config.SourcePush},
		{ID: "ETH_USD", Type: config.SourcePush},
		{ID: "ARTH_TWAP", Type: config.SourceTWAP, Period: dur(time.Hour)},
	}, clk.Now)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	if len(g.Pushes) != 2 || len(g.Accumulators) != 1 || len(g.Sources) != 4 {
		t.Fatalf("unexpected graph %+v", g)
	}
	_ = g.Pushes["ARTHX_ETH"].Push(uint256.NewInt(500), clk.Now())
	_ = g.Pushes["ETH_USD"].Push(uint256.NewInt(2_000_000_000), clk.Now())
	chain, err := g.Source("ARTHX_USD")
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	q, err := chain.Quote(nil)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.Price.Uint64() != 1_000_000 {
		t.Fatalf("chained price = %s, want 1.00", q.Price)
	}
	if _, err := g.Sink("ARTHX_USD"); err == nil {
		t.Fatalf("expected derived source to reject feeds")
	}
}

func TestBuildGraphRejectsCycles(t *testing.T) {
	_, err := BuildGraph([]config.Source{
		{ID: "A", Type: config.SourceRatio, Numerator: "B", Denominator: "C"},
		{ID: "B", Type: config.SourceChain, Hops: []string{"A"}},
		{ID: "C", Type: config.SourcePush},
	}, nil)
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestTickPushesAndRecords(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	g, err := BuildGraph([]config.Source{{ID: "ARTH", Type: config.SourcePush, MaxStaleness: dur(5 * time.Minute)}}, clk.Now)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	agg := oracle.NewAggregator()
	agg.SetStablecoinSource(g.Sources["ARTH"])
	sink, _ := g.Sink("ARTH")
	feed := &stubFeed{id: "cg-arth", price: 1_004_000, at: clk.Now}
	rec := &memRecorder{}
	mgr, err := New([]Binding{{Feed: feed, Target: "ARTH", Sink: sink}}, agg, rec, time.Minute, 2*time.Minute, WithClock(clk.Now))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := mgr.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	price, err := agg.GetStablecoinPrice()
	if err != nil || price != 1_004_000 {
		t.Fatalf("stablecoin price = %d, %v", price, err)
	}
	if len(rec.samples) != 1 || rec.samples[0].Target != "ARTH" || rec.samples[0].Price != 1_004_000 {
		t.Fatalf("unexpected samples %+v", rec.samples)
	}
}

func TestTickRejectsExpiredObservations(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	g, _ := BuildGraph([]config.Source{{ID: "ARTH", Type: config.SourcePush}}, clk.Now)
	sink, _ := g.Sink("ARTH")
	old := clk.Now().Add(-10 * time.Minute)
	feed := &stubFeed{id: "slow", price: 990_000, at: func() time.Time { return old }}
	mgr, err := New([]Binding{{Feed: feed, Target: "ARTH", Sink: sink}}, nil, nil, time.Minute, 2*time.Minute, WithClock(clk.Now))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := mgr.Tick(context.Background()); err == nil || !strings.Contains(err.Error(), "expired") {
		t.Fatalf("expected expired observation to fail the tick, got %v", err)
	}
	if _, _, ok := g.Pushes["ARTH"].LastPush(); ok {
		t.Fatalf("expired observation was pushed")
	}
}

func TestTickToleratesPartialFailure(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	g, _ := BuildGraph([]config.Source{{ID: "ARTH", Type: config.SourcePush}, {ID: "ETH", Type: config.SourcePush}}, clk.Now)
	arthSink, _ := g.Sink("ARTH")
	ethSink, _ := g.Sink("ETH")
	bindings := []Binding{
		{Feed: &stubFeed{id: "down", err: errors.New("connection refused")}, Target: "ARTH", Sink: arthSink},
		{Feed: &stubFeed{id: "up", price: 2_000_000_000, at: clk.Now}, Target: "ETH", Sink: ethSink},
	}
	mgr, _ := New(bindings, nil, nil, time.Minute, 0, WithClock(clk.Now))
	if err := mgr.Tick(context.Background()); err != nil {
		t.Fatalf("partial failure should not fail the tick: %v", err)
	}
	if _, _, ok := g.Pushes["ETH"].LastPush(); !ok {
		t.Fatalf("healthy feed was not pushed")
	}
}

func TestTickClosesTWAPWindows(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	g, err := BuildGraph([]config.Source{{ID: "ARTHX_TWAP", Type: config.SourceTWAP, Period: dur(time.Hour)}}, clk.Now)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	agg := oracle.NewAggregator()
	agg.SetShareTokenSource(g.Sources["ARTHX_TWAP"])
	sink, _ := g.Sink("ARTHX_TWAP")
	feed := &stubFeed{id: "arthx", price: 2_000_000, at: clk.Now}
	mgr, _ := New([]Binding{{Feed: feed, Target: "ARTHX_TWAP", Sink: sink}}, agg, nil, time.Minute, 0, WithClock(clk.Now))

	if err := mgr.Tick(context.Background()); err != nil {
		t.Fatalf("anchor tick: %v", err)
	}
	if _, err := agg.GetShareTokenPrice(); err == nil {
		t.Fatalf("expected no share price before the first window closes")
	}
	clk.Advance(time.Hour)
	if err := mgr.Tick(context.Background()); err != nil {
		t.Fatalf("closing tick: %v", err)
	}
	price, err := agg.GetShareTokenPrice()
	if err != nil || price != 2_000_000 {
		t.Fatalf("share price = %d, %v", price, err)
	}
}

func TestCoinGeckoBindingSendsAPIKey(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get(coinGeckoKeyHeader)
		_, _ = w.Write([]byte(`{"arth":{"usd":1.0021,"last_updated_at":1700000000}}`))
	}))
	defer srv.Close()

	g, _ := BuildGraph([]config.Source{{ID: "ARTH", Type: config.SourcePush}}, nil)
	bindings, err := BuildBindings([]config.Feed{{
		Name: "cg", Type: config.FeedCoinGecko, Target: "ARTH", Endpoint: srv.URL, APIKey: "secret", AssetID: "arth", VS: "usd",
	}}, g, srv.Client(), nil)
	if err != nil {
		t.Fatalf("bindings: %v", err)
	}
	obs, err := bindings[0].Feed.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotKey != "secret" || obs.Price.Uint64() != 1_002_100 {
		t.Fatalf("key %q price %s", gotKey, obs.Price)
	}

	if _, err := BuildBindings([]config.Feed{{Name: "cl", Type: config.FeedChainlink, Target: "ARTH", Address: "0x01"}}, g, nil, nil); err == nil {
		t.Fatalf("expected chainlink feed without rpc to be rejected")
	}
	if !NeedsRPC([]config.Feed{{Type: config.FeedChainlink}}) || NeedsRPC(nil) {
		t.Fatalf("NeedsRPC mismatch")
	}
}
