package oracle

import (
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"

	coreerrors "arthcore/core/errors"
)

// PushSource stores the last price pushed by an external feeder. Quotes older
// than the staleness bound are rejected rather than served.
type PushSource struct {
	mu           sync.RWMutex
	id           string
	maxStaleness time.Duration
	clock        clock

	price    *uint256.Int
	pushedAt time.Time
}

func NewPushSource(id string, maxStaleness time.Duration) *PushSource {
	return &PushSource{id: normaliseID(id), maxStaleness: maxStaleness}
}

// SetClock overrides the time source used for staleness checks.
func (s *PushSource) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.clock = now
	s.mu.Unlock()
}

func (s *PushSource) ID() string { return s.id }

// Push records a price (six decimals) observed at ts. Out of order pushes are
// ignored so a slow feeder cannot roll the price back.
func (s *PushSource) Push(price *uint256.Int, ts time.Time) error {
	if price == nil || price.IsZero() {
		return fmt.Errorf("push %s: %w", s.id, coreerrors.ErrInvalidAmount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pushedAt.IsZero() && ts.Before(s.pushedAt) {
		return nil
	}
	s.price = price.Clone()
	s.pushedAt = ts
	return nil
}

// LastPush returns the stored observation without staleness checks.
func (s *PushSource) LastPush() (*uint256.Int, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.price == nil {
		return nil, time.Time{}, false
	}
	return s.price.Clone(), s.pushedAt, true
}

func (s *PushSource) Quote(baseAmount *uint256.Int) (PriceQuote, error) {
	s.mu.RLock()
	price := s.price
	pushedAt := s.pushedAt
	now := s.clock.now()
	s.mu.RUnlock()
	if price == nil {
		return PriceQuote{}, fmt.Errorf("push %s: never updated: %w", s.id, coreerrors.ErrStalePrice)
	}
	if s.maxStaleness > 0 && now.Sub(pushedAt) > s.maxStaleness {
		return PriceQuote{}, fmt.Errorf("push %s: last update %s: %w", s.id, pushedAt.UTC().Format(time.RFC3339), coreerrors.ErrStalePrice)
	}
	return unitQuote(s.id, price, pushedAt, baseAmount)
}

// CanRefresh is always false; push sources are updated by Push.
func (s *PushSource) CanRefresh() bool { return false }

func (s *PushSource) Refresh() error { return nil }
