package feeder

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"arthcore/native/oracle"
	"arthcore/services/arthd/config"
)

// Graph holds the price sources built from configuration. Push sources and
// TWAP accumulators are the only nodes feeds write into.
type Graph struct {
	Sources      map[string]oracle.Source
	Pushes       map[string]*oracle.PushSource
	Accumulators map[string]*oracle.PairAccumulator
}

// BuildGraph constructs every configured source. Derived sources may reference
// each other in any order; cycles are rejected.
func BuildGraph(sources []config.Source, now func() time.Time) (*Graph, error) {
	if now == nil {
		now = time.Now
	}
	g := &Graph{
		Sources:      make(map[string]oracle.Source, len(sources)),
		Pushes:       make(map[string]*oracle.PushSource),
		Accumulators: make(map[string]*oracle.PairAccumulator),
	}
	decls := make(map[string]config.Source, len(sources))
	for _, src := range sources {
		decls[src.ID] = src
	}
	visiting := make(map[string]bool)
	var build func(id string) (oracle.Source, error)
	build = func(id string) (oracle.Source, error) {
		if built, ok := g.Sources[id]; ok {
			return built, nil
		}
		decl, ok := decls[id]
		if !ok {
			return nil, fmt.Errorf("source %s not declared", id)
		}
		if visiting[id] {
			return nil, fmt.Errorf("source %s: dependency cycle", id)
		}
		visiting[id] = true
		defer delete(visiting, id)

		var built oracle.Source
		switch decl.Type {
		case config.SourcePush:
			push := oracle.NewPushSource(id, decl.MaxStaleness.Duration)
			push.SetClock(now)
			g.Pushes[id] = push
			built = push
		case config.SourceTWAP:
			acc := oracle.NewPairAccumulator()
			twap := oracle.NewTWAPSource(id, acc, decl.Period.Duration)
			twap.SetClock(now)
			g.Accumulators[id] = acc
			built = twap
		case config.SourceRatio:
			num, err := build(decl.Numerator)
			if err != nil {
				return nil, err
			}
			den, err := build(decl.Denominator)
			if err != nil {
				return nil, err
			}
			built = oracle.NewRatioSource(id, num, den)
		case config.SourceChain:
			hops := make([]oracle.Source, 0, len(decl.Hops))
			for _, hop := range decl.Hops {
				src, err := build(hop)
				if err != nil {
					return nil, err
				}
				hops = append(hops, src)
			}
			chain, err := oracle.NewChain(id, hops...)
			if err != nil {
				return nil, err
			}
			built = chain
		default:
			return nil, fmt.Errorf("source %s: unknown type %q", id, decl.Type)
		}
		g.Sources[id] = built
		return built, nil
	}
	for _, src := range sources {
		if _, err := build(src.ID); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Sink returns the function that ingests an observation into the push source
// or accumulator registered under id.
func (g *Graph) Sink(id string) (func(price *uint256.Int, observedAt, fetchedAt time.Time) error, error) {
	if push, ok := g.Pushes[id]; ok {
		return func(price *uint256.Int, observedAt, _ time.Time) error {
			return push.Push(price, observedAt)
		}, nil
	}
	if acc, ok := g.Accumulators[id]; ok {
		// Accumulator observations carry the local fetch time.
		return func(price *uint256.Int, _, fetchedAt time.Time) error {
			return acc.Observe(price, fetchedAt)
		}, nil
	}
	return nil, fmt.Errorf("source %s accepts no feed", id)
}

// Source looks up a built source.
func (g *Graph) Source(id string) (oracle.Source, error) {
	src, ok := g.Sources[id]
	if !ok {
		return nil, fmt.Errorf("source %s not declared", id)
	}
	return src, nil
}
