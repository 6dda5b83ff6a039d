package ratio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "arthcore/core/errors"
	"arthcore/core/events"
	"arthcore/storage"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

type stubPrice struct {
	price uint64
	err   error
	calls int
}

func (s *stubPrice) GetStablecoinPrice() (uint64, error) {
	s.calls++
	return s.price, s.err
}

func testParams() Params {
	return Params{PriceTarget: 1_000_000, PriceBand: 2_500, StepSize: 2_500, RefreshCooldown: time.Hour}
}

func TestNextRatioBandStepCap(t *testing.T) {
	p := testParams()
	cases := []struct {
		name  string
		ratio uint64
		price uint64
		want  uint64
	}{
		{"above band steps down", 100_000, 1_002_501, 97_500},
		{"above band clamps exactly one step to zero", 2_500, 1_010_000, 0},
		{"above band clamps partial step to zero", 2_499, 1_010_000, 0},
		{"above band at zero stays zero", 0, 1_010_000, 0},
		{"below band steps up", 100_000, 997_499, 102_500},
		{"below band at cap stays at cap", 1_000_000, 990_000, 1_000_000},
		{"below band above cap clamps to cap", 1_000_001, 990_000, 1_000_000},
		{"below band near cap clamps", 999_000, 990_000, 1_000_000},
		{"exactly at peg", 100_000, 1_000_000, 100_000},
		{"inside band below peg", 100_000, 998_000, 100_000},
		{"lower band edge", 100_000, 997_500, 100_000},
		{"inside band above peg", 100_000, 1_001_000, 100_000},
		{"upper band edge", 100_000, 1_002_500, 100_000},
	}
	for _, tc := range cases {
		if got := NextRatio(tc.ratio, tc.price, p); got != tc.want {
			t.Fatalf("%s: NextRatio(%d, %d) = %d, want %d", tc.name, tc.ratio, tc.price, got, tc.want)
		}
	}
}

func TestNextRatioStaysInRange(t *testing.T) {
	p := testParams()
	for ratio := uint64(0); ratio <= 1_000_000; ratio += 1_237 {
		for _, price := range []uint64{0, 500_000, 997_499, 1_000_000, 1_002_501, 5_000_000} {
			got := NextRatio(ratio, price, p)
			if got > 1_000_000 {
				t.Fatalf("ratio %d price %d escaped range: %d", ratio, price, got)
			}
			var want uint64
			switch {
			case price > 1_002_500:
				want = 0
				if ratio > 2_500 {
					want = ratio - 2_500
				}
			case price < 997_500:
				want = ratio + 2_500
				if want > 1_000_000 {
					want = 1_000_000
				}
			default:
				want = ratio
			}
			if got != want {
				t.Fatalf("ratio %d price %d: got %d want %d", ratio, price, got, want)
			}
		}
	}
}

func newTestController(t *testing.T, price *stubPrice, seed uint64) (*Controller, *time.Time) {
	t.Helper()
	ctrl, err := NewController(Config{Owner: owner, Params: testParams(), SeedRatio: seed}, price, nil)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	now := time.Unix(1_700_000_000, 0)
	ctrl.SetClock(func() time.Time { return now })
	return ctrl, &now
}

func TestRefreshCooldown(t *testing.T) {
	price := &stubPrice{price: 1_010_000}
	ctrl, now := newTestController(t, price, 100_000)

	if _, err := ctrl.Refresh(context.Background()); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if got := ctrl.CurrentRatio(); got != 97_500 {
		t.Fatalf("expected 97500 after first refresh, got %d", got)
	}

	*now = now.Add(59 * time.Minute)
	if _, err := ctrl.Refresh(context.Background()); !errors.Is(err, coreerrors.ErrCooldownNotElapsed) {
		t.Fatalf("expected ErrCooldownNotElapsed, got %v", err)
	}
	if got := ctrl.CurrentRatio(); got != 97_500 {
		t.Fatalf("ratio changed during cooldown: %d", got)
	}
	if price.calls != 1 {
		t.Fatalf("expected oracle not to be read during cooldown, got %d calls", price.calls)
	}

	*now = now.Add(2 * time.Minute)
	res, err := ctrl.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh after cooldown: %v", err)
	}
	if res.Previous != 97_500 || res.Ratio != 95_000 || res.Price != 1_010_000 {
		t.Fatalf("unexpected transition %+v", res)
	}
	if ctrl.State().LastRefresh != now.Unix() {
		t.Fatalf("expected last refresh to advance")
	}
}

func TestRefreshWhilePaused(t *testing.T) {
	price := &stubPrice{price: 900_000}
	ctrl, now := newTestController(t, price, 500_000)
	rec := &events.Recorder{}
	ctrl.SetEmitter(rec)

	if _, err := ctrl.Toggle(stranger); !errors.Is(err, coreerrors.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	paused, err := ctrl.Toggle(owner)
	if err != nil || !paused {
		t.Fatalf("toggle: paused=%v err=%v", paused, err)
	}
	for i := 0; i < 3; i++ {
		*now = now.Add(24 * time.Hour)
		if _, err := ctrl.Refresh(context.Background()); !errors.Is(err, coreerrors.ErrPaused) {
			t.Fatalf("expected ErrPaused, got %v", err)
		}
	}
	if ctrl.CurrentRatio() != 500_000 || price.calls != 0 {
		t.Fatalf("ratio must not move while paused")
	}
	if paused, err := ctrl.Toggle(owner); err != nil || paused {
		t.Fatalf("resume: paused=%v err=%v", paused, err)
	}
	if _, err := ctrl.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh after resume: %v", err)
	}
	if ctrl.CurrentRatio() != 502_500 {
		t.Fatalf("expected step up, got %d", ctrl.CurrentRatio())
	}
	if len(rec.OfType(events.TypeRatioPauseToggled)) != 2 || len(rec.OfType(events.TypeRatioRefreshed)) != 1 {
		t.Fatalf("unexpected events %+v", rec.Events())
	}
}

func TestRefreshOracleFailureLeavesState(t *testing.T) {
	price := &stubPrice{err: coreerrors.ErrStalePrice}
	ctrl, _ := newTestController(t, price, 300_000)
	before := ctrl.State()
	_, err := ctrl.Refresh(context.Background())
	if !errors.Is(err, coreerrors.ErrStalePrice) {
		t.Fatalf("expected stale price to propagate, got %v", err)
	}
	if coreerrors.KindOf(err) != coreerrors.KindOracle {
		t.Fatalf("expected oracle kind, got %s", coreerrors.KindOf(err))
	}
	if ctrl.State() != before {
		t.Fatalf("state changed on oracle failure")
	}
}

func TestStatePersistsAcrossRestart(t *testing.T) {
	kv := storage.NewKVStore(storage.NewMemDB())
	price := &stubPrice{price: 990_000}
	ctrl, err := NewController(Config{Owner: owner, Params: testParams(), SeedRatio: 800_000}, price, NewKVStore(kv))
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	now := time.Unix(1_700_000_000, 0)
	ctrl.SetClock(func() time.Time { return now })
	if _, err := ctrl.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := ctrl.Toggle(owner); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	restarted, err := NewController(Config{Owner: owner, Params: testParams(), SeedRatio: 0}, price, NewKVStore(kv))
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	st := restarted.State()
	if st.Ratio != 802_500 || st.LastRefresh != now.Unix() || !st.Paused {
		t.Fatalf("unexpected restored state %+v", st)
	}
}

func TestOverrideAndParams(t *testing.T) {
	ctrl, _ := newTestController(t, &stubPrice{price: 1_000_000}, 0)
	if err := ctrl.SetRatio(owner, 1_000_001); !errors.Is(err, coreerrors.ErrRatioOutOfRange) {
		t.Fatalf("expected ErrRatioOutOfRange, got %v", err)
	}
	if err := ctrl.SetRatio(stranger, 10); !errors.Is(err, coreerrors.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := ctrl.SetRatio(owner, 1_000_000); err != nil {
		t.Fatalf("override: %v", err)
	}
	if ctrl.CurrentRatio() != 1_000_000 {
		t.Fatalf("override not applied")
	}
	bad := testParams()
	bad.PriceBand = 2_000_000
	if err := ctrl.SetParams(owner, bad); err == nil {
		t.Fatalf("expected invalid params to be rejected")
	}
	if _, err := NewController(Config{Owner: owner, Params: testParams(), SeedRatio: 2_000_000}, &stubPrice{}, nil); !errors.Is(err, coreerrors.ErrRatioOutOfRange) {
		t.Fatalf("expected seed above max to fail, got %v", err)
	}
}
