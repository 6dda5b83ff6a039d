package oracle

import (
	"fmt"
	"sort"
	"sync"
	"time"

	coreerrors "arthcore/core/errors"
)

const (
	RouteStablecoin = "STABLE"
	RouteShare      = "SHARE"
)

// Aggregator resolves GMU prices for the stablecoin, the share token and each
// registered collateral. Routes are registered explicitly; a getter on an
// unregistered route fails with ErrOracleNotSet and source failures are
// returned unchanged.
type Aggregator struct {
	mu          sync.RWMutex
	stablecoin  Source
	share       Source
	collaterals map[string]Source
}

func NewAggregator() *Aggregator {
	return &Aggregator{collaterals: make(map[string]Source)}
}

func (a *Aggregator) SetStablecoinSource(src Source) {
	a.mu.Lock()
	a.stablecoin = src
	a.mu.Unlock()
}

func (a *Aggregator) SetShareTokenSource(src Source) {
	a.mu.Lock()
	a.share = src
	a.mu.Unlock()
}

// RegisterCollateral binds a collateral identifier to its GMU source.
func (a *Aggregator) RegisterCollateral(id string, src Source) error {
	key := normaliseID(id)
	if key == "" {
		return fmt.Errorf("oracle: collateral id required: %w", coreerrors.ErrUnknownCollateral)
	}
	if src == nil {
		return fmt.Errorf("oracle: collateral %s: nil source", key)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.collaterals[key]; exists {
		return fmt.Errorf("oracle: collateral %s: %w", key, coreerrors.ErrDuplicateCollateral)
	}
	a.collaterals[key] = src
	return nil
}

func (a *Aggregator) GetStablecoinPrice() (uint64, error) {
	a.mu.RLock()
	src := a.stablecoin
	a.mu.RUnlock()
	return price(RouteStablecoin, src)
}

func (a *Aggregator) GetShareTokenPrice() (uint64, error) {
	a.mu.RLock()
	src := a.share
	a.mu.RUnlock()
	return price(RouteShare, src)
}

func (a *Aggregator) GetCollateralPrice(id string) (uint64, error) {
	key := normaliseID(id)
	a.mu.RLock()
	src := a.collaterals[key]
	a.mu.RUnlock()
	return price(key, src)
}

func price(route string, src Source) (uint64, error) {
	if src == nil {
		return 0, fmt.Errorf("oracle: route %s: %w", route, coreerrors.ErrOracleNotSet)
	}
	q, err := src.Quote(nil)
	if err != nil {
		return 0, err
	}
	p, err := q.GMU()
	if err != nil {
		return 0, err
	}
	if p == 0 {
		return 0, fmt.Errorf("oracle: route %s: zero price: %w", route, coreerrors.ErrStalePrice)
	}
	return p, nil
}

// RouteStatus describes the current state of a single price route.
type RouteStatus struct {
	Route      string    `json:"route"`
	SourceID   string    `json:"sourceId,omitempty"`
	Price      uint64    `json:"price,omitempty"`
	ObservedAt time.Time `json:"observedAt,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Snapshot evaluates every configured route, recording failures rather than
// returning them.
func (a *Aggregator) Snapshot() []RouteStatus {
	a.mu.RLock()
	routes := map[string]Source{RouteStablecoin: a.stablecoin, RouteShare: a.share}
	for id, src := range a.collaterals {
		routes[id] = src
	}
	a.mu.RUnlock()

	names := make([]string, 0, len(routes))
	for name := range routes {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]RouteStatus, 0, len(names))
	for _, name := range names {
		src := routes[name]
		status := RouteStatus{Route: name}
		if src == nil {
			status.Error = coreerrors.ErrOracleNotSet.Error()
			out = append(out, status)
			continue
		}
		status.SourceID = src.ID()
		q, err := src.Quote(nil)
		if err == nil {
			status.Price, err = q.GMU()
			status.ObservedAt = q.ObservedAt
		}
		if err != nil {
			status.Error = err.Error()
		}
		out = append(out, status)
	}
	return out
}

// RefreshDue refreshes every route whose source reports CanRefresh and returns
// the identifiers that refreshed along with any failures keyed by route.
func (a *Aggregator) RefreshDue() ([]string, map[string]error) {
	a.mu.RLock()
	routes := map[string]Source{}
	if a.stablecoin != nil {
		routes[RouteStablecoin] = a.stablecoin
	}
	if a.share != nil {
		routes[RouteShare] = a.share
	}
	for id, src := range a.collaterals {
		routes[id] = src
	}
	a.mu.RUnlock()

	var refreshed []string
	failures := make(map[string]error)
	for name, src := range routes {
		if !src.CanRefresh() {
			continue
		}
		if err := src.Refresh(); err != nil {
			failures[name] = err
			continue
		}
		refreshed = append(refreshed, name)
	}
	sort.Strings(refreshed)
	return refreshed, failures
}
