// Package wiring assembles the arthd engines from runtime configuration and
// economic parameters.
package wiring

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum"

	"arthcore/config"
	"arthcore/core/events"
	nativecommon "arthcore/native/common"
	"arthcore/native/bank"
	"arthcore/native/oracle"
	"arthcore/native/pool"
	"arthcore/native/ratio"
	arthconfig "arthcore/services/arthd/config"
	"arthcore/services/arthd/feeder"
	"arthcore/storage"
)

// Node is the assembled core.
type Node struct {
	Graph       *feeder.Graph
	Bindings    []feeder.Binding
	Aggregator  *oracle.Aggregator
	Controller  *ratio.Controller
	Registry    *pool.Registry
	Switches    *nativecommon.Switches
	Stable      *bank.Ledger
	Share       *bank.Ledger
	Collaterals map[string]*bank.Ledger
}

// Options carries the collaborators that live outside configuration.
type Options struct {
	State  storage.Database
	Logger *slog.Logger
	HTTP   oracle.HTTPDoer
	// Caller serves Chainlink reads; nil when no chainlink feed is configured.
	Caller ethereum.ContractCaller
	Now    func() time.Time
}

// Build wires sources, the aggregator, the ratio controller and one pool per
// configured collateral. Token ledgers, pool ledgers and claims are restored
// from opts.State.
func Build(cfg arthconfig.Config, params *config.Params, opts Options) (*Node, error) {
	if params == nil {
		return nil, fmt.Errorf("wiring: params required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	db := opts.State
	if db == nil {
		db = storage.NewMemDB()
	}
	kv := storage.NewKVStore(db)

	graph, err := feeder.BuildGraph(cfg.Sources, now)
	if err != nil {
		return nil, fmt.Errorf("wiring: sources: %w", err)
	}
	bindings, err := feeder.BuildBindings(cfg.Feeds, graph, opts.HTTP, opts.Caller)
	if err != nil {
		return nil, fmt.Errorf("wiring: feeds: %w", err)
	}
	agg, err := buildAggregator(cfg.Routes, graph, params.Pools)
	if err != nil {
		return nil, err
	}

	emitter := events.LogEmitter{Logger: logger}
	seed, err := params.Ratio.Seed()
	if err != nil {
		return nil, err
	}
	owner := params.OwnerAddress()
	controller, err := ratio.NewController(ratio.Config{
		Owner:     owner,
		Params:    params.Ratio.ControllerParams(),
		SeedRatio: seed,
	}, agg, ratio.NewKVStore(kv))
	if err != nil {
		return nil, fmt.Errorf("wiring: ratio controller: %w", err)
	}
	controller.SetClock(now)
	controller.SetLogger(logger)
	controller.SetEmitter(emitter)

	node := &Node{
		Graph:       graph,
		Bindings:    bindings,
		Aggregator:  agg,
		Controller:  controller,
		Switches:    nativecommon.NewSwitches(),
		Stable:      bank.NewLedger("ARTH", 18),
		Share:       bank.NewLedger("ARTHX", 18),
		Collaterals: make(map[string]*bank.Ledger, len(params.Pools)),
	}
	for _, l := range []*bank.Ledger{node.Stable, node.Share} {
		if err := l.Load(kv); err != nil {
			return nil, fmt.Errorf("wiring: %w", err)
		}
	}
	registry, err := pool.NewRegistry(owner, params.Curve, pool.Dependencies{
		Ratio:  controller,
		Prices: agg,
		Stable: node.Stable,
		Share:  node.Share,
		Store:  kv,
	})
	if err != nil {
		return nil, fmt.Errorf("wiring: pool registry: %w", err)
	}
	registry.SetLogger(logger)
	registry.SetEmitter(emitter)
	registry.SetPauses(node.Switches)
	registry.SetBlockHeight(BlockHeight(cfg.Chain, now))
	params.Pauses.Apply(node.Switches)

	for _, pc := range params.Pools {
		pp, err := pc.PoolParams()
		if err != nil {
			return nil, fmt.Errorf("wiring: pool %s: %w", pc.ID, err)
		}
		ledger := bank.NewLedger(pc.ID, pc.Decimals)
		if ledger.Symbol() == node.Stable.Symbol() || ledger.Symbol() == node.Share.Symbol() {
			return nil, fmt.Errorf("wiring: pool %s shares a symbol with the stable or share token", pc.ID)
		}
		if err := ledger.Load(kv); err != nil {
			return nil, fmt.Errorf("wiring: %w", err)
		}
		if _, err := registry.Register(owner, pc.ID, ledger, pp); err != nil {
			return nil, fmt.Errorf("wiring: register pool %s: %w", pc.ID, err)
		}
		node.Collaterals[pc.ID] = ledger
	}
	node.Registry = registry
	return node, nil
}

func buildAggregator(routes arthconfig.Routes, g *feeder.Graph, pools []config.Pool) (*oracle.Aggregator, error) {
	agg := oracle.NewAggregator()
	stable, err := g.Source(routes.Stablecoin)
	if err != nil {
		return nil, fmt.Errorf("wiring: stablecoin route: %w", err)
	}
	agg.SetStablecoinSource(stable)
	if routes.Share != "" {
		share, err := g.Source(routes.Share)
		if err != nil {
			return nil, fmt.Errorf("wiring: share route: %w", err)
		}
		agg.SetShareTokenSource(share)
	}
	for _, pc := range pools {
		id, ok := routes.Collateral[pc.ID]
		if !ok {
			// Unrouted pools fail every priced operation with ErrOracleNotSet.
			continue
		}
		src, err := g.Source(id)
		if err != nil {
			return nil, fmt.Errorf("wiring: collateral route %s: %w", pc.ID, err)
		}
		if err := agg.RegisterCollateral(pc.ID, src); err != nil {
			return nil, err
		}
	}
	for id := range routes.Collateral {
		if !hasPool(pools, id) {
			return nil, fmt.Errorf("wiring: collateral route %s has no pool", id)
		}
	}
	return agg, nil
}

func hasPool(pools []config.Pool, id string) bool {
	for _, pc := range pools {
		if pc.ID == id {
			return true
		}
	}
	return false
}

// BlockHeight derives a logical block height from wall time: whole block
// intervals elapsed since genesis, zero before it.
func BlockHeight(chain arthconfig.ChainConfig, now func() time.Time) func() uint64 {
	interval := chain.BlockInterval.Duration
	if interval <= 0 {
		interval = 12 * time.Second
	}
	genesis := time.Unix(chain.GenesisUnix, 0)
	return func() uint64 {
		elapsed := now().Sub(genesis)
		if elapsed <= 0 {
			return 0
		}
		return uint64(elapsed / interval)
	}
}
