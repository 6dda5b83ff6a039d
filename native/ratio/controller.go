// Package ratio owns the global collateral ratio and the refresh state machine
// that re-targets it from the stablecoin's market price.
package ratio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	coreerrors "arthcore/core/errors"
	"arthcore/core/events"
	"arthcore/core/fixed"
	nativecommon "arthcore/native/common"
	"arthcore/observability"
	telemetry "arthcore/observability/otel"
)

// PriceReader is the slice of the price aggregator the controller consumes.
type PriceReader interface {
	GetStablecoinPrice() (uint64, error)
}

// View is the read-only accessor handed to collateral pools.
type View interface {
	CurrentRatio() uint64
}

// Config seeds a controller. SeedRatio is used only when the store holds no
// state yet.
type Config struct {
	Owner     common.Address
	Params    Params
	SeedRatio uint64
}

// Transition describes the outcome of a successful refresh.
type Transition struct {
	Previous  uint64
	Ratio     uint64
	Price     uint64
	Timestamp int64
}

// Controller is the single writer of the global ratio state.
type Controller struct {
	mu      sync.RWMutex
	params  Params
	state   State
	prices  PriceReader
	store   Store
	owner   *nativecommon.Ownable
	emitter events.Emitter
	logger  *slog.Logger
	metrics *observability.StableMetrics
	tracer  trace.Tracer
	clock   func() time.Time
}

func NewController(cfg Config, prices PriceReader, store Store) (*Controller, error) {
	params := cfg.Params.Normalise()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if cfg.SeedRatio > fixed.MaxRatio {
		return nil, fmt.Errorf("ratio: seed %d: %w", cfg.SeedRatio, coreerrors.ErrRatioOutOfRange)
	}
	if prices == nil {
		return nil, fmt.Errorf("ratio: price reader required")
	}
	if store == nil {
		store = &MemoryStore{}
	}
	c := &Controller{
		params:  params,
		prices:  prices,
		store:   store,
		owner:   nativecommon.NewOwnable(cfg.Owner),
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		metrics: observability.Stable(),
		tracer:  telemetry.Tracer("arth/ratio"),
		clock:   time.Now,
	}
	st, ok, err := store.LoadRatioState()
	if err != nil {
		return nil, fmt.Errorf("ratio: load state: %w", err)
	}
	if !ok {
		st = State{Ratio: cfg.SeedRatio}
		if err := store.SaveRatioState(st); err != nil {
			return nil, fmt.Errorf("ratio: seed state: %w", err)
		}
	}
	if st.Ratio > fixed.MaxRatio {
		c.logger.Warn("stored collateral ratio above maximum, clamping", "ratio", st.Ratio)
		st.Ratio = fixed.MaxRatio
	}
	c.state = st
	c.metrics.RecordRatio(st.Ratio, st.Paused)
	return c, nil
}

// SetClock overrides the time source. Primarily intended for tests.
func (c *Controller) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now == nil {
		now = time.Now
	}
	c.clock = now
}

func (c *Controller) SetEmitter(emitter events.Emitter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	c.emitter = emitter
}

func (c *Controller) SetLogger(logger *slog.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if logger == nil {
		logger = slog.Default()
	}
	c.logger = logger
}

// CurrentRatio returns the ratio pools must honour.
func (c *Controller) CurrentRatio() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Ratio
}

// State returns a copy of the singleton.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) Params() Params {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.params
}

// NextRefresh reports when the cooldown gate opens.
func (c *Controller) NextRefresh() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Unix(c.state.LastRefresh, 0).Add(c.params.RefreshCooldown)
}

// Refresh moves the ratio one step towards restoring the peg. It fails with
// ErrPaused while paused and ErrCooldownNotElapsed until the cooldown has
// passed; oracle failures are returned unchanged and leave the state intact.
func (c *Controller) Refresh(ctx context.Context) (Transition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	start := c.clock()
	_, span := c.tracer.Start(ctx, "ratio.refresh")
	defer span.End()

	result, err := c.refreshLocked(start)
	c.metrics.Observe("ratio_refresh", c.clock().Sub(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Transition{}, err
	}
	span.SetAttributes(
		attribute.Int64("ratio.previous", int64(result.Previous)),
		attribute.Int64("ratio.next", int64(result.Ratio)),
		attribute.Int64("ratio.price", int64(result.Price)),
	)
	span.SetStatus(codes.Ok, "ratio refreshed")
	return result, nil
}

func (c *Controller) refreshLocked(now time.Time) (Transition, error) {
	if c.state.Paused {
		return Transition{}, fmt.Errorf("ratio refresh: %w", coreerrors.ErrPaused)
	}
	nowUnix := now.Unix()
	if c.state.LastRefresh != 0 && nowUnix-c.state.LastRefresh < int64(c.params.RefreshCooldown/time.Second) {
		return Transition{}, fmt.Errorf("ratio refresh: next at %d: %w", c.state.LastRefresh+int64(c.params.RefreshCooldown/time.Second), coreerrors.ErrCooldownNotElapsed)
	}
	price, err := c.prices.GetStablecoinPrice()
	if err != nil {
		return Transition{}, fmt.Errorf("ratio refresh: %w", err)
	}
	next := State{
		Ratio:       NextRatio(c.state.Ratio, price, c.params),
		LastRefresh: nowUnix,
		Paused:      c.state.Paused,
	}
	if err := c.store.SaveRatioState(next); err != nil {
		return Transition{}, fmt.Errorf("ratio refresh: persist: %w", err)
	}
	result := Transition{Previous: c.state.Ratio, Ratio: next.Ratio, Price: price, Timestamp: nowUnix}
	c.state = next
	c.metrics.RecordRatio(next.Ratio, next.Paused)
	c.metrics.RecordPrice("STABLE", price)
	c.emitter.Emit(events.RatioRefreshed{
		Previous:  result.Previous,
		Ratio:     result.Ratio,
		Price:     result.Price,
		Timestamp: result.Timestamp,
	})
	c.logger.Info("collateral ratio refreshed",
		"previous", result.Previous, "ratio", result.Ratio, "price", result.Price)
	return result, nil
}

// Toggle flips between Active and Paused and returns the new paused flag.
func (c *Controller) Toggle(caller common.Address) (bool, error) {
	if err := c.owner.RequireOwner(caller); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.state
	next.Paused = !next.Paused
	if err := c.store.SaveRatioState(next); err != nil {
		return c.state.Paused, fmt.Errorf("ratio toggle: persist: %w", err)
	}
	c.state = next
	c.metrics.RecordRatio(next.Ratio, next.Paused)
	c.emitter.Emit(events.RatioPauseToggled{Caller: caller, Paused: next.Paused})
	c.logger.Info("collateral ratio pause toggled", "paused", next.Paused, "caller", caller.Hex())
	return next.Paused, nil
}

// SetRatio overrides the ratio without touching the cooldown.
func (c *Controller) SetRatio(caller common.Address, value uint64) error {
	if err := c.owner.RequireOwner(caller); err != nil {
		return err
	}
	if value > fixed.MaxRatio {
		return fmt.Errorf("ratio override %d: %w", value, coreerrors.ErrRatioOutOfRange)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.state
	next.Ratio = value
	if err := c.store.SaveRatioState(next); err != nil {
		return fmt.Errorf("ratio override: persist: %w", err)
	}
	previous := c.state.Ratio
	c.state = next
	c.metrics.RecordRatio(next.Ratio, next.Paused)
	c.emitter.Emit(events.RatioOverridden{Caller: caller, Previous: previous, Ratio: value})
	return nil
}

// SetParams replaces the band, step, target and cooldown.
func (c *Controller) SetParams(caller common.Address, params Params) error {
	if err := c.owner.RequireOwner(caller); err != nil {
		return err
	}
	params = params.Normalise()
	if err := params.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.params = params
	c.mu.Unlock()
	return nil
}

func (c *Controller) Owner() common.Address { return c.owner.Owner() }
