package oracle

import (
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"

	coreerrors "arthcore/core/errors"
	"arthcore/core/fixed"
)

// Accumulator exposes a cumulative price counter: the running sum of
// price × nanoseconds, read as of the supplied instant.
type Accumulator interface {
	Cumulative(at time.Time) (*uint256.Int, error)
}

// PairAccumulator is an in-process cumulative price counter fed by spot
// observations. Between observations the last observed price is assumed to
// hold, mirroring how an AMM pair accrues its price counters.
type PairAccumulator struct {
	mu         sync.RWMutex
	cumulative *uint256.Int
	lastPrice  *uint256.Int
	lastAt     time.Time
}

func NewPairAccumulator() *PairAccumulator {
	return &PairAccumulator{cumulative: new(uint256.Int)}
}

// Observe records a new spot price (six decimals) at the given instant.
// Observations older than the latest one are rejected.
func (a *PairAccumulator) Observe(price *uint256.Int, at time.Time) error {
	if price == nil || price.IsZero() {
		return fmt.Errorf("accumulator: %w", coreerrors.ErrInvalidAmount)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.lastAt.IsZero() {
		if at.Before(a.lastAt) {
			return fmt.Errorf("accumulator: observation at %s precedes %s", at.UTC().Format(time.RFC3339), a.lastAt.UTC().Format(time.RFC3339))
		}
		next, err := a.accrue(at)
		if err != nil {
			return err
		}
		a.cumulative = next
	}
	a.lastPrice = price.Clone()
	a.lastAt = at
	return nil
}

// Cumulative returns the counter as if it had been updated at the given
// instant without a new observation.
func (a *PairAccumulator) Cumulative(at time.Time) (*uint256.Int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.lastAt.IsZero() {
		return nil, fmt.Errorf("accumulator: no observations: %w", coreerrors.ErrOracleNotSet)
	}
	if at.Before(a.lastAt) {
		return a.cumulative.Clone(), nil
	}
	return a.accrue(at)
}

func (a *PairAccumulator) accrue(at time.Time) (*uint256.Int, error) {
	elapsed := uint64(at.Sub(a.lastAt))
	delta, overflow := new(uint256.Int).MulOverflow(a.lastPrice, uint256.NewInt(elapsed))
	if overflow {
		return nil, fixed.ErrOverflow
	}
	next, overflow := new(uint256.Int).AddOverflow(a.cumulative, delta)
	if overflow {
		return nil, fixed.ErrOverflow
	}
	return next, nil
}

// TWAPSource reports the average price over the most recently closed window of
// an Accumulator. Each successful Refresh closes a window.
type TWAPSource struct {
	mu     sync.RWMutex
	id     string
	acc    Accumulator
	period time.Duration
	clock  clock

	lastCumulative *uint256.Int
	lastRefresh    time.Time
	average        *uint256.Int
	closedAt       time.Time
}

// NewTWAPSource constructs a TWAP over acc. The first Refresh only anchors the
// window; a quote becomes available once a full period has been closed.
func NewTWAPSource(id string, acc Accumulator, period time.Duration) *TWAPSource {
	return &TWAPSource{id: normaliseID(id), acc: acc, period: period}
}

// SetClock overrides the time source used by the TWAP. Primarily intended for
// tests.
func (s *TWAPSource) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.clock = now
	s.mu.Unlock()
}

// SetPeriod changes the refresh period. Shortening supports bootstrap while
// liquidity is thin; the period is restored with a second call.
func (s *TWAPSource) SetPeriod(period time.Duration) error {
	if period <= 0 {
		return fmt.Errorf("twap %s: period must be positive", s.id)
	}
	s.mu.Lock()
	s.period = period
	s.mu.Unlock()
	return nil
}

func (s *TWAPSource) Period() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.period
}

func (s *TWAPSource) ID() string { return s.id }

func (s *TWAPSource) CanRefresh() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.elapsedLocked(s.clock.now())
}

func (s *TWAPSource) elapsedLocked(now time.Time) bool {
	return s.lastRefresh.IsZero() || now.Sub(s.lastRefresh) >= s.period
}

// Refresh closes the current window. It fails with ErrPeriodNotElapsed when
// called before the period has passed since the previous refresh.
func (s *TWAPSource) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.now()
	if !s.elapsedLocked(now) {
		return fmt.Errorf("twap %s: %w", s.id, coreerrors.ErrPeriodNotElapsed)
	}
	cumulative, err := s.acc.Cumulative(now)
	if err != nil {
		return fmt.Errorf("twap %s: %w", s.id, err)
	}
	if !s.lastRefresh.IsZero() {
		elapsed := uint64(now.Sub(s.lastRefresh))
		if elapsed == 0 {
			return fmt.Errorf("twap %s: %w", s.id, coreerrors.ErrPeriodNotElapsed)
		}
		delta, underflow := new(uint256.Int).SubOverflow(cumulative, s.lastCumulative)
		if underflow {
			return fmt.Errorf("twap %s: cumulative price decreased", s.id)
		}
		s.average = new(uint256.Int).Div(delta, uint256.NewInt(elapsed))
		s.closedAt = now
	}
	s.lastCumulative = cumulative
	s.lastRefresh = now
	return nil
}

// Quote returns the average over the last closed window scaled to baseAmount.
func (s *TWAPSource) Quote(baseAmount *uint256.Int) (PriceQuote, error) {
	s.mu.RLock()
	average := s.average
	closedAt := s.closedAt
	s.mu.RUnlock()
	if average == nil {
		return PriceQuote{}, fmt.Errorf("twap %s: no closed window: %w", s.id, coreerrors.ErrPeriodNotElapsed)
	}
	return unitQuote(s.id, average, closedAt, baseAmount)
}
