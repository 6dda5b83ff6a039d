// Package pool implements the per-collateral accounting engine: minting and
// redeeming the stablecoin against collateral and the share token,
// recollateralizing and buying back excess collateral.
package pool

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/trace"

	coreerrors "arthcore/core/errors"
	"arthcore/core/events"
	"arthcore/core/fixed"
	nativecommon "arthcore/native/common"
	"arthcore/native/curve"
	"arthcore/native/ratio"
	"arthcore/observability"
	telemetry "arthcore/observability/otel"
	"arthcore/storage"
)

// Dependencies are the collaborators shared by every pool.
type Dependencies struct {
	Ratio  ratio.View
	Prices PriceReader
	Stable TokenLedger
	Share  TokenLedger
	Store  *storage.KVStore
}

// Registry maps collateral identifiers to pools. All pool operations run
// under the registry lock so each executes against a consistent view of every
// ledger.
type Registry struct {
	mu     sync.Mutex
	pools  map[string]*Pool
	ratio  ratio.View
	prices PriceReader
	stable TokenLedger
	share  TokenLedger
	store  *storage.KVStore
	curve  curve.Params
	owner  *nativecommon.Ownable

	pauses  nativecommon.PauseView
	emitter events.Emitter
	logger  *slog.Logger
	metrics *observability.StableMetrics
	tracer  trace.Tracer
	height  func() uint64
}

func NewRegistry(owner common.Address, curveParams curve.Params, deps Dependencies) (*Registry, error) {
	if deps.Ratio == nil || deps.Prices == nil || deps.Stable == nil || deps.Share == nil {
		return nil, fmt.Errorf("pool registry: ratio, prices, stable and share ledgers required")
	}
	if err := curveParams.Validate(); err != nil {
		return nil, err
	}
	store := deps.Store
	if store == nil {
		store = storage.NewKVStore(nil)
	}
	return &Registry{
		pools:   make(map[string]*Pool),
		ratio:   deps.Ratio,
		prices:  deps.Prices,
		stable:  deps.Stable,
		share:   deps.Share,
		store:   store,
		curve:   curveParams,
		owner:   nativecommon.NewOwnable(owner),
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		metrics: observability.Stable(),
		tracer:  telemetry.Tracer("arth/pool"),
		height:  func() uint64 { return 0 },
	}, nil
}

// SetPauses wires the pause switches consulted before every operation.
func (r *Registry) SetPauses(p nativecommon.PauseView) {
	r.mu.Lock()
	r.pauses = p
	r.mu.Unlock()
}

func (r *Registry) SetEmitter(emitter events.Emitter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	r.emitter = emitter
}

func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if logger == nil {
		logger = slog.Default()
	}
	r.logger = logger
}

// SetBlockHeight installs the logical clock used for redemption delays.
func (r *Registry) SetBlockHeight(height func() uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if height == nil {
		height = func() uint64 { return 0 }
	}
	r.height = height
}

// Height reports the current logical block height.
func (r *Registry) Height() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.height()
}

// Register adds a collateral pool, restoring any persisted ledger and pending
// redemptions. Identifiers are case-insensitive.
func (r *Registry) Register(caller common.Address, id string, collateral TokenLedger, params Params) (*Pool, error) {
	if err := r.owner.RequireOwner(caller); err != nil {
		return nil, err
	}
	key := normaliseID(id)
	if key == "" {
		return nil, fmt.Errorf("pool: collateral id required: %w", coreerrors.ErrUnknownCollateral)
	}
	if collateral == nil {
		return nil, fmt.Errorf("pool %s: collateral ledger required", key)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.pools[key]; exists {
		return nil, fmt.Errorf("pool %s: %w", key, coreerrors.ErrDuplicateCollateral)
	}
	ledger, claims, err := loadPool(r.store, key)
	if err != nil {
		return nil, err
	}
	p := &Pool{
		id:         key,
		address:    poolAddress(key),
		registry:   r,
		collateral: collateral,
		params:     params.clone(),
		ledger:     ledger,
		claims:     claims,
	}
	r.pools[key] = p
	r.metrics.RecordPool(key, ledger.CollateralBalance, ledger.UnclaimedCollateral)
	r.logger.Info("collateral pool registered", "pool", key, "address", p.address.Hex(), "pending", len(claims))
	return p, nil
}

// Pool returns the pool registered under id.
func (r *Registry) Pool(id string) (*Pool, error) {
	key := normaliseID(id)
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pools[key]
	if !ok {
		return nil, fmt.Errorf("pool %s: %w", key, coreerrors.ErrUnknownCollateral)
	}
	return p, nil
}

// IDs lists the registered collateral identifiers in sorted order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idsLocked()
}

func (r *Registry) idsLocked() []string {
	ids := make([]string, 0, len(r.pools))
	for id := range r.pools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Claim looks up a pending redemption across all pools.
func (r *Registry) Claim(id string) (*PendingRedemption, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pools {
		if claim, ok := p.claims[id]; ok {
			return claim.clone(), nil
		}
	}
	return nil, fmt.Errorf("claim %s: %w", id, coreerrors.ErrNotFound)
}

// GlobalCollateralValue sums the GMU value of the collateral not reserved for
// pending redemptions across every pool.
func (r *Registry) GlobalCollateralValue() (*uint256.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.globalCollateralValueLocked()
}

func (r *Registry) globalCollateralValueLocked() (*uint256.Int, error) {
	total := new(uint256.Int)
	for _, id := range r.idsLocked() {
		p := r.pools[id]
		available := p.ledger.Available()
		if available.IsZero() {
			continue
		}
		price, err := r.prices.GetCollateralPrice(id)
		if err != nil {
			return nil, err
		}
		value, err := fixed.ValueOf(available, p.params.Decimals, price)
		if err != nil {
			return nil, fmt.Errorf("pool %s: value: %w", id, err)
		}
		if _, overflow := total.AddOverflow(total, value); overflow {
			return nil, fixed.ErrOverflow
		}
	}
	return total, nil
}

// EffectiveRatio is the share of stablecoin supply backed by collateral value,
// capped at 100%. With no supply the system counts as fully collateralised.
func (r *Registry) EffectiveRatio() (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	global, err := r.globalCollateralValueLocked()
	if err != nil {
		return 0, err
	}
	return r.effectiveRatioLocked(global)
}

func (r *Registry) effectiveRatioLocked(global *uint256.Int) (uint64, error) {
	supply := r.stable.TotalSupply()
	if supply.IsZero() {
		return fixed.MaxRatio, nil
	}
	eff, err := fixed.MulDivDown(global, fixed.PricePrecision, supply)
	if err != nil {
		return 0, err
	}
	if !eff.IsUint64() || eff.Uint64() > fixed.MaxRatio {
		return fixed.MaxRatio, nil
	}
	return eff.Uint64(), nil
}

// requiredCollateralLocked is the GMU value the current ratio demands for the
// outstanding supply, rounded up.
func (r *Registry) requiredCollateralLocked(currentRatio uint64) (*uint256.Int, error) {
	return fixed.MulDivUp(r.stable.TotalSupply(), uint256.NewInt(currentRatio), fixed.PricePrecision)
}

// AvailableExcessCollateral is the GMU value held above what the current ratio
// requires. Buybacks may draw on it.
func (r *Registry) AvailableExcessCollateral() (*uint256.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	global, err := r.globalCollateralValueLocked()
	if err != nil {
		return nil, err
	}
	required, err := r.requiredCollateralLocked(r.currentRatio())
	if err != nil {
		return nil, err
	}
	return fixed.SaturatingSub(global, required), nil
}

// currentRatio reads the controller and clamps to the valid range.
func (r *Registry) currentRatio() uint64 {
	cr := r.ratio.CurrentRatio()
	if cr > fixed.MaxRatio {
		return fixed.MaxRatio
	}
	return cr
}

func (r *Registry) SetCurve(caller common.Address, params curve.Params) error {
	if err := r.owner.RequireOwner(caller); err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.curve = params
	r.mu.Unlock()
	return nil
}
