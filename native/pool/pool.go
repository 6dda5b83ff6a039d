package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	coreerrors "arthcore/core/errors"
	"arthcore/core/events"
	"arthcore/core/fixed"
	nativecommon "arthcore/native/common"
)

// Pause switch names consulted by every operation, in addition to "pool" and
// "pool/<ID>".
const (
	SwitchMint            = "pool.mint"
	SwitchRedeem          = "pool.redeem"
	SwitchCollect         = "pool.collect"
	SwitchRecollateralize = "pool.recollateralize"
	SwitchBuyback         = "pool.buyback"
)

// Pool is the accounting engine for one collateral type. It exclusively owns
// its ledger and pending redemptions.
type Pool struct {
	id         string
	address    common.Address
	registry   *Registry
	collateral TokenLedger
	params     Params
	ledger     Ledger
	claims     map[string]*PendingRedemption
}

func (p *Pool) ID() string              { return p.id }
func (p *Pool) Address() common.Address { return p.address }

// Info returns a snapshot of the pool.
func (p *Pool) Info() Info {
	p.registry.mu.Lock()
	defer p.registry.mu.Unlock()
	return Info{
		ID:                  p.id,
		Address:             p.address,
		Params:              p.params.clone(),
		CollateralBalance:   fixed.OrZero(p.ledger.CollateralBalance),
		UnclaimedCollateral: fixed.OrZero(p.ledger.UnclaimedCollateral),
		AvailableCollateral: p.ledger.Available(),
		PendingRedemptions:  len(p.claims),
	}
}

// Ledger returns a copy of the collateral ledger.
func (p *Pool) Ledger() Ledger {
	p.registry.mu.Lock()
	defer p.registry.mu.Unlock()
	return p.ledger.clone()
}

// PendingRedemption returns the claim with the given id.
func (p *Pool) PendingRedemption(id string) (*PendingRedemption, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	p.registry.mu.Lock()
	defer p.registry.mu.Unlock()
	claim, ok := p.claims[id]
	if !ok {
		return nil, fmt.Errorf("claim %s: %w", id, coreerrors.ErrNotFound)
	}
	return claim.clone(), nil
}

// SetParams replaces fees, ceiling and redemption delay. Decimals are fixed at
// registration.
func (p *Pool) SetParams(caller common.Address, params Params) error {
	if err := p.registry.owner.RequireOwner(caller); err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return err
	}
	p.registry.mu.Lock()
	defer p.registry.mu.Unlock()
	if params.Decimals != p.params.Decimals {
		return fmt.Errorf("pool %s: decimals cannot change from %d to %d", p.id, p.params.Decimals, params.Decimals)
	}
	p.params = params.clone()
	return nil
}

// txn stages the effects of one operation. Token ledger calls go through the
// journal; ledger and claim changes are applied only after they are
// persisted.
type txn struct {
	pool      *Pool
	ledger    Ledger
	journal   journal
	putClaims []*PendingRedemption
	delClaims []string
	emitted   []events.Event
}

func (tx *txn) emit(evt events.Event) { tx.emitted = append(tx.emitted, evt) }

func (p *Pool) execute(ctx context.Context, op, switchName string, fn func(tx *txn) error) error {
	r := p.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	_, span := r.tracer.Start(ctx, "pool."+op,
		trace.WithAttributes(attribute.String("pool.id", p.id)))
	defer span.End()

	err := p.run(switchName, fn)
	r.metrics.Observe("pool_"+op, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Debug("pool operation rejected", "pool", p.id, "operation", op,
			"kind", coreerrors.KindOf(err).String(), "error", err)
		return fmt.Errorf("pool %s: %s: %w", p.id, op, err)
	}
	span.SetStatus(codes.Ok, op)
	return nil
}

func (p *Pool) run(switchName string, fn func(tx *txn) error) error {
	r := p.registry
	for _, module := range []string{"pool", switchName, "pool/" + p.id} {
		if err := nativecommon.Guard(r.pauses, module); err != nil {
			return err
		}
	}
	tx := &txn{pool: p, ledger: p.ledger.clone()}
	if err := fn(tx); err != nil {
		return p.abort(tx, err)
	}

	ws := r.store.NewWriteSet()
	ws.Put(ledgerKey(p.id), toStoredLedger(tx.ledger))
	for _, claim := range tx.putClaims {
		ws.Put(claimKey(claim.ID), toStoredClaim(claim))
	}
	for _, id := range tx.delClaims {
		ws.Delete(claimKey(id))
	}
	for _, tl := range []TokenLedger{r.stable, r.share, p.collateral} {
		if staged, ok := tl.(StagedLedger); ok {
			staged.Stage(ws)
		}
	}
	if err := ws.Commit(); err != nil {
		return p.abort(tx, fmt.Errorf("persist: %w", err))
	}

	p.ledger = tx.ledger
	for _, claim := range tx.putClaims {
		p.claims[claim.ID] = claim
	}
	for _, id := range tx.delClaims {
		delete(p.claims, id)
	}
	for _, evt := range tx.emitted {
		r.emitter.Emit(evt)
	}
	r.metrics.RecordPool(p.id, p.ledger.CollateralBalance, p.ledger.UnclaimedCollateral)
	return nil
}

func (p *Pool) abort(tx *txn, cause error) error {
	if err := tx.journal.revert(); err != nil {
		p.registry.logger.Error("pool rollback failed", "pool", p.id, "error", err)
		return errors.Join(cause, err)
	}
	return cause
}

func requirePositive(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return coreerrors.ErrInvalidAmount
	}
	return nil
}

func checkSlippage(out, min *uint256.Int) error {
	if min != nil && out.Lt(min) {
		return fmt.Errorf("out %s below minimum %s: %w", out.Dec(), min.Dec(), coreerrors.ErrSlippage)
	}
	return nil
}

// checkCeiling fails when depositing collateralIn would push the pool balance
// above its ceiling.
func (tx *txn) checkCeiling(collateralIn *uint256.Int) error {
	params := tx.pool.params
	if !params.capped() {
		return nil
	}
	next, overflow := new(uint256.Int).AddOverflow(tx.ledger.CollateralBalance, collateralIn)
	if overflow || next.Gt(params.Ceiling) {
		return fmt.Errorf("balance would reach %s above ceiling %s: %w", next.Dec(), params.Ceiling.Dec(), coreerrors.ErrCeilingReached)
	}
	return nil
}

func (tx *txn) depositCollateral(from common.Address, amount *uint256.Int) error {
	if err := tx.journal.transfer(tx.pool.collateral, from, tx.pool.address, amount); err != nil {
		return err
	}
	tx.ledger.CollateralBalance = new(uint256.Int).Add(tx.ledger.CollateralBalance, amount)
	return nil
}

func (tx *txn) withdrawCollateral(to common.Address, amount *uint256.Int) error {
	if tx.ledger.CollateralBalance.Lt(amount) {
		return coreerrors.ErrInsufficientPoolCollateral
	}
	if err := tx.journal.transfer(tx.pool.collateral, tx.pool.address, to, amount); err != nil {
		return err
	}
	tx.ledger.CollateralBalance = new(uint256.Int).Sub(tx.ledger.CollateralBalance, amount)
	return nil
}

func ratioEligible(mode string, current uint64) error {
	ok := false
	switch mode {
	case Mode1to1:
		ok = current == fixed.MaxRatio
	case ModeFractional:
		ok = current > 0 && current < fixed.MaxRatio
	case ModeAlgorithmic:
		ok = current == 0
	}
	if !ok {
		return fmt.Errorf("%s at ratio %d: %w", mode, current, coreerrors.ErrRatioNotEligible)
	}
	return nil
}
