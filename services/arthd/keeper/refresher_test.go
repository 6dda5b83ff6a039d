package keeper

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "arthcore/core/errors"
	"arthcore/native/ratio"
	"arthcore/services/arthd/storage"
)

type stubPrice struct {
	price uint64
	err   error
}

func (s *stubPrice) GetStablecoinPrice() (uint64, error) { return s.price, s.err }

type memHistory struct{ changes []storage.RatioChange }

func (h *memHistory) RecordRatio(_ context.Context, c storage.RatioChange) error {
	h.changes = append(h.changes, c)
	return nil
}

func newController(t *testing.T, price *stubPrice, now *time.Time) *ratio.Controller {
	t.Helper()
	c, err := ratio.NewController(ratio.Config{
		Owner:     common.HexToAddress("0xa1"),
		Params:    ratio.DefaultParams(),
		SeedRatio: 1_000_000,
	}, price, nil)
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	c.SetClock(func() time.Time { return *now })
	return c
}

func TestTickRecordsSuccessfulRefresh(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	price := &stubPrice{price: 1_010_000}
	hist := &memHistory{}
	r, err := NewRefresher(newController(t, price, &now), hist, time.Minute, nil)
	if err != nil {
		t.Fatalf("refresher: %v", err)
	}
	r.SetClock(func() time.Time { return now })

	tr, err := r.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if tr.Ratio != 997_500 {
		t.Fatalf("ratio = %d, want 997500", tr.Ratio)
	}
	if len(hist.changes) != 1 || hist.changes[0].Previous != 1_000_000 || !hist.changes[0].RefreshedAt.Equal(now) {
		t.Fatalf("unexpected history %+v", hist.changes)
	}
	st := r.Status()
	if st.LastResult == nil || st.LastResult.Ratio != 997_500 || st.LastError != "" {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestTickReportsCooldownAsGuard(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	price := &stubPrice{price: 1_010_000}
	hist := &memHistory{}
	r, _ := NewRefresher(newController(t, price, &now), hist, time.Minute, nil)
	if _, err := r.Tick(context.Background()); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	now = now.Add(30 * time.Minute)
	_, err := r.Tick(context.Background())
	if !errors.Is(err, coreerrors.ErrCooldownNotElapsed) {
		t.Fatalf("expected cooldown, got %v", err)
	}
	st := r.Status()
	if st.Advice != coreerrors.RetryLater.String() || st.LastResult == nil {
		t.Fatalf("unexpected status %+v", st)
	}
	if len(hist.changes) != 1 {
		t.Fatalf("rejected refresh reached history")
	}
}

func TestTickSurfacesOracleFailure(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	price := &stubPrice{err: fmt.Errorf("route STABLE: %w", coreerrors.ErrStalePrice)}
	c := newController(t, price, &now)
	r, _ := NewRefresher(c, nil, time.Minute, nil)
	if _, err := r.Tick(context.Background()); !errors.Is(err, coreerrors.ErrStalePrice) {
		t.Fatalf("expected ErrStalePrice, got %v", err)
	}
	if c.CurrentRatio() != 1_000_000 {
		t.Fatalf("oracle failure moved the ratio")
	}
}

func TestNewRefresherValidates(t *testing.T) {
	if _, err := NewRefresher(nil, nil, time.Minute, nil); err == nil {
		t.Fatalf("expected missing controller error")
	}
	now := time.Now()
	if _, err := NewRefresher(newController(t, &stubPrice{}, &now), nil, 0, nil); err == nil {
		t.Fatalf("expected interval error")
	}
}
