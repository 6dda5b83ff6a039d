package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"arthcore/core/fixed"
)

const aggregatorV3ABIJSON = `[
{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"}
]`

var aggregatorV3ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(aggregatorV3ABIJSON))
	if err != nil {
		panic("failed to parse aggregator ABI: " + err.Error())
	}
	aggregatorV3ABI = parsed
}

// Observation is a spot price (six decimals) fetched from an external feed.
type Observation struct {
	FeedID     string
	Price      *uint256.Int
	ObservedAt time.Time
}

// Feed fetches spot observations from outside the process. Feeds only ever
// supply push sources and accumulators; monetary operations never call them.
type Feed interface {
	ID() string
	Fetch(ctx context.Context) (Observation, error)
}

// ChainlinkFeed reads an AggregatorV3 contract through an RPC endpoint.
type ChainlinkFeed struct {
	id      string
	caller  ethereum.ContractCaller
	address common.Address

	mu       sync.Mutex
	decimals *uint8
}

func NewChainlinkFeed(id string, caller ethereum.ContractCaller, address common.Address) *ChainlinkFeed {
	return &ChainlinkFeed{id: normaliseID(id), caller: caller, address: address}
}

func (f *ChainlinkFeed) ID() string { return f.id }

func (f *ChainlinkFeed) Fetch(ctx context.Context) (Observation, error) {
	if f.caller == nil {
		return Observation{}, errors.New("chainlink feed: rpc caller not configured")
	}
	decimals, err := f.feedDecimals(ctx)
	if err != nil {
		return Observation{}, err
	}
	outputs, err := f.call(ctx, "latestRoundData")
	if err != nil {
		return Observation{}, err
	}
	if len(outputs) != 5 {
		return Observation{}, fmt.Errorf("chainlink feed %s: unexpected latestRoundData response", f.id)
	}
	answer, ok := outputs[1].(*big.Int)
	if !ok {
		return Observation{}, fmt.Errorf("chainlink feed %s: failed to decode answer", f.id)
	}
	updatedAt, ok := outputs[3].(*big.Int)
	if !ok {
		return Observation{}, fmt.Errorf("chainlink feed %s: failed to decode updatedAt", f.id)
	}
	if answer.Sign() <= 0 {
		return Observation{}, fmt.Errorf("chainlink feed %s: non-positive answer %s", f.id, answer)
	}
	raw, overflow := uint256.FromBig(answer)
	if overflow {
		return Observation{}, fmt.Errorf("chainlink feed %s: %w", f.id, fixed.ErrOverflow)
	}
	price, err := PriceQuote{Price: raw, Decimals: decimals, SourceID: f.id}.GMU()
	if err != nil {
		return Observation{}, err
	}
	return Observation{
		FeedID:     f.id,
		Price:      uint256.NewInt(price),
		ObservedAt: time.Unix(updatedAt.Int64(), 0).UTC(),
	}, nil
}

func (f *ChainlinkFeed) feedDecimals(ctx context.Context) (uint8, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.decimals != nil {
		return *f.decimals, nil
	}
	outputs, err := f.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	if len(outputs) != 1 {
		return 0, fmt.Errorf("chainlink feed %s: unexpected decimals response", f.id)
	}
	decimals, ok := outputs[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("chainlink feed %s: failed to decode decimals", f.id)
	}
	f.decimals = &decimals
	return decimals, nil
}

func (f *ChainlinkFeed) call(ctx context.Context, method string) ([]interface{}, error) {
	payload, err := aggregatorV3ABI.Pack(method)
	if err != nil {
		return nil, err
	}
	addr := f.address
	res, err := f.caller.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return nil, fmt.Errorf("chainlink feed %s: %s: %w", f.id, method, err)
	}
	return aggregatorV3ABI.Unpack(method, res)
}
