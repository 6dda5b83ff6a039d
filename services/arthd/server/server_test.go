package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	coreerrors "arthcore/core/errors"
	"arthcore/native/bank"
	"arthcore/native/curve"
	"arthcore/native/oracle"
	"arthcore/native/pool"
	"arthcore/native/ratio"
	"arthcore/services/arthd/keeper"
	"arthcore/services/arthd/storage"
)

var (
	owner = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

type harness struct {
	handler http.Handler
	pool    *pool.Pool
	claimID string
}

func newHarness(t *testing.T, limit RateLimit) *harness {
	t.Helper()
	now := time.Now()
	agg := oracle.NewAggregator()
	stable := oracle.NewPushSource("STABLE", 0)
	share := oracle.NewPushSource("SHARE", 0)
	usdc := oracle.NewPushSource("USDC", 0)
	for src, price := range map[*oracle.PushSource]uint64{stable: 1_010_000, share: 2_000_000, usdc: 1_000_000} {
		if err := src.Push(uint256.NewInt(price), now); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	agg.SetStablecoinSource(stable)
	agg.SetShareTokenSource(share)
	if err := agg.RegisterCollateral("USDC", usdc); err != nil {
		t.Fatalf("register collateral: %v", err)
	}

	ctrl, err := ratio.NewController(ratio.Config{Owner: owner, Params: ratio.DefaultParams(), SeedRatio: 1_000_000}, agg, nil)
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	usdcLedger := bank.NewLedger("USDC", 6)
	registry, err := pool.NewRegistry(owner, curve.DefaultParams(), pool.Dependencies{
		Ratio:  ctrl,
		Prices: agg,
		Stable: bank.NewLedger("ARTH", 18),
		Share:  bank.NewLedger("ARTHX", 18),
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	p, err := registry.Register(owner, "usdc", usdcLedger, pool.Params{Decimals: 6, RedemptionDelayBlocks: 2})
	if err != nil {
		t.Fatalf("register pool: %v", err)
	}
	if err := usdcLedger.Mint(alice, uint256.NewInt(500_000_000)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	ctx := context.Background()
	if _, err := p.Mint1to1(ctx, alice, uint256.NewInt(100_000_000), nil); err != nil {
		t.Fatalf("mint: %v", err)
	}
	claimID, err := p.Redeem1to1(ctx, alice, uint256.MustFromDecimal("10000000000000000000"), nil)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}

	dsn, err := storage.FileDSN(filepath.Join(t.TempDir(), "arthd.sqlite"))
	if err != nil {
		t.Fatalf("dsn: %v", err)
	}
	store, err := storage.Open(dsn)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	refresher, err := keeper.NewRefresher(ctrl, store, time.Minute, nil)
	if err != nil {
		t.Fatalf("refresher: %v", err)
	}

	srv := New(Config{
		Ratio:     ctrl,
		Keeper:    refresher,
		Prices:    agg,
		Pools:     registry,
		History:   store,
		RateLimit: limit,
	})
	return &harness{handler: srv.Handler(), pool: p, claimID: claimID}
}

func (h *harness) do(t *testing.T, method, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, rec.Body.String())
		}
	}
	return rec
}

func TestHealthzAssignsRequestID(t *testing.T) {
	h := newHarness(t, RateLimit{})
	rec := h.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatalf("missing request id header")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("request id = %q, want caller supplied id", got)
	}
}

func TestGetPool(t *testing.T) {
	h := newHarness(t, RateLimit{})
	var view poolView
	rec := h.do(t, http.MethodGet, "/v1/pools/usdc", &view)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if view.ID != "USDC" || view.CollateralBalance != "100000000" || view.UnclaimedCollateral != "10000000" {
		t.Fatalf("unexpected pool view %+v", view)
	}
	if view.AvailableCollateral != "90000000" || view.PendingRedemptions != 1 || view.Ceiling != "" {
		t.Fatalf("unexpected pool view %+v", view)
	}

	var body errorBody
	rec = h.do(t, http.MethodGet, "/v1/pools/dai", &body)
	if rec.Code != http.StatusNotFound || body.Error != "invalid" {
		t.Fatalf("unknown pool: status %d body %+v", rec.Code, body)
	}
}

func TestListPools(t *testing.T) {
	h := newHarness(t, RateLimit{})
	var body struct {
		Height uint64     `json:"height"`
		Pools  []poolView `json:"pools"`
	}
	if rec := h.do(t, http.MethodGet, "/v1/pools", &body); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(body.Pools) != 1 || body.Pools[0].ID != "USDC" {
		t.Fatalf("unexpected pools %+v", body.Pools)
	}
}

func TestGetClaim(t *testing.T) {
	h := newHarness(t, RateLimit{})
	var view claimView
	rec := h.do(t, http.MethodGet, "/v1/claims/"+h.claimID, &view)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if view.Pool != "USDC" || view.Mode != pool.Mode1to1 || view.CollateralOwed != "10000000" {
		t.Fatalf("unexpected claim %+v", view)
	}
	if view.CollectibleAt != 2 || view.Collectible {
		t.Fatalf("claim should not be collectible yet: %+v", view)
	}
	if err := h.pool.SetParams(owner, pool.Params{Decimals: 6, RedemptionDelayBlocks: 50}); err != nil {
		t.Fatalf("set params: %v", err)
	}
	if rec := h.do(t, http.MethodGet, "/v1/claims/"+h.claimID, &view); rec.Code != http.StatusOK || view.CollectibleAt != 2 {
		t.Fatalf("delay change moved existing claim: %d %+v", rec.Code, view)
	}
	if rec := h.do(t, http.MethodGet, "/v1/claims/0xdeadbeef", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing claim status = %d", rec.Code)
	}
}

func TestRefreshThenCooldown(t *testing.T) {
	h := newHarness(t, RateLimit{})
	var change ratioChangeView
	rec := h.do(t, http.MethodPost, "/v1/ratio/refresh", &change)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if change.Previous != 1_000_000 || change.Ratio != 997_500 || change.Price != 1_010_000 {
		t.Fatalf("unexpected transition %+v", change)
	}

	var body errorBody
	rec = h.do(t, http.MethodPost, "/v1/ratio/refresh", &body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("cooldown status = %d", rec.Code)
	}
	if body.Error != "guard" || body.Advice != coreerrors.RetryLater.String() || body.RequestID == "" {
		t.Fatalf("unexpected error body %+v", body)
	}

	var view ratioView
	if rec := h.do(t, http.MethodGet, "/v1/ratio", &view); rec.Code != http.StatusOK {
		t.Fatalf("ratio status = %d", rec.Code)
	}
	if view.Ratio != 997_500 || len(view.History) != 1 || view.History[0].Ratio != 997_500 {
		t.Fatalf("unexpected ratio view %+v", view)
	}
	if view.Params.RefreshCooldownSeconds != 3600 || view.Keeper == nil || view.Keeper.LastError == "" {
		t.Fatalf("unexpected ratio view %+v", view)
	}
	if view.EffectiveRatio == nil || *view.EffectiveRatio != 1_000_000 {
		t.Fatalf("effective ratio = %v", view.EffectiveRatio)
	}

	if rec := h.do(t, http.MethodGet, "/v1/ratio?history=nope", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad history status = %d", rec.Code)
	}
}

func TestGetPrices(t *testing.T) {
	h := newHarness(t, RateLimit{})
	var body struct {
		Routes []oracle.RouteStatus `json:"routes"`
	}
	if rec := h.do(t, http.MethodGet, "/v1/prices", &body); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := map[string]uint64{}
	for _, r := range body.Routes {
		got[r.Route] = r.Price
	}
	want := map[string]uint64{"SHARE": 2_000_000, "STABLE": 1_010_000, "USDC": 1_000_000}
	for route, price := range want {
		if got[route] != price {
			t.Fatalf("route %s price %d, want %d", route, got[route], price)
		}
	}
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, RateLimit{RequestsPerMinute: 1, Burst: 2})
	for i := 0; i < 2; i++ {
		if rec := h.do(t, http.MethodGet, "/v1/prices", nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	if rec := h.do(t, http.MethodGet, "/v1/prices", nil); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d", rec.Code)
	}
	if rec := h.do(t, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz should bypass the limiter, got %d", rec.Code)
	}
}

func TestRateLimiterSweepDropsIdleClients(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(RateLimit{RequestsPerMinute: 60, Burst: 1}, nil)
	rl.now = func() time.Time { return now }
	rl.limiterFor("10.0.0.1")
	now = now.Add(10 * time.Minute)
	rl.limiterFor("10.0.0.2")
	rl.sweepOnce()
	if _, ok := rl.visitors["10.0.0.1"]; ok {
		t.Fatalf("idle client not swept")
	}
	if _, ok := rl.visitors["10.0.0.2"]; !ok {
		t.Fatalf("active client swept")
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", coreerrors.ErrNotFound), http.StatusNotFound},
		{coreerrors.ErrUnknownCollateral, http.StatusNotFound},
		{coreerrors.ErrCooldownNotElapsed, http.StatusConflict},
		{coreerrors.ErrSlippage, http.StatusUnprocessableEntity},
		{coreerrors.ErrCeilingReached, http.StatusUnprocessableEntity},
		{coreerrors.ErrStalePrice, http.StatusServiceUnavailable},
		{coreerrors.ErrNotOwner, http.StatusBadRequest},
		{errors.New("disk"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
