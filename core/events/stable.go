package events

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"arthcore/core/types"
)

const (
	// TypeRatioRefreshed is emitted after every successful controller refresh.
	TypeRatioRefreshed = "ratio.refreshed"
	// TypeRatioPauseToggled is emitted when the controller is paused or resumed.
	TypeRatioPauseToggled = "ratio.pause_toggled"
	// TypeRatioOverridden is emitted when the owner sets the ratio directly.
	TypeRatioOverridden = "ratio.overridden"

	TypePoolMinted              = "pool.minted"
	TypePoolRedemptionRequested = "pool.redemption_requested"
	TypePoolRedemptionCollected = "pool.redemption_collected"
	TypePoolRecollateralized    = "pool.recollateralized"
	TypePoolBoughtBack          = "pool.bought_back"
)

type RatioRefreshed struct {
	Previous  uint64
	Ratio     uint64
	Price     uint64
	Timestamp int64
}

func (RatioRefreshed) EventType() string { return TypeRatioRefreshed }

func (e RatioRefreshed) Event() *types.Event {
	return &types.Event{
		Type: TypeRatioRefreshed,
		Attributes: map[string]string{
			"previous":  strconv.FormatUint(e.Previous, 10),
			"ratio":     strconv.FormatUint(e.Ratio, 10),
			"price":     strconv.FormatUint(e.Price, 10),
			"timestamp": strconv.FormatInt(e.Timestamp, 10),
		},
	}
}

type RatioPauseToggled struct {
	Caller common.Address
	Paused bool
}

func (RatioPauseToggled) EventType() string { return TypeRatioPauseToggled }

func (e RatioPauseToggled) Event() *types.Event {
	return &types.Event{
		Type: TypeRatioPauseToggled,
		Attributes: map[string]string{
			"caller": e.Caller.Hex(),
			"paused": strconv.FormatBool(e.Paused),
		},
	}
}

type RatioOverridden struct {
	Caller   common.Address
	Previous uint64
	Ratio    uint64
}

func (RatioOverridden) EventType() string { return TypeRatioOverridden }

func (e RatioOverridden) Event() *types.Event {
	return &types.Event{
		Type: TypeRatioOverridden,
		Attributes: map[string]string{
			"caller":   e.Caller.Hex(),
			"previous": strconv.FormatUint(e.Previous, 10),
			"ratio":    strconv.FormatUint(e.Ratio, 10),
		},
	}
}

// PoolMinted records a stablecoin mint against a collateral pool. Mode is one
// of "1to1", "fractional" or "algorithmic".
type PoolMinted struct {
	Pool         string
	Mode         string
	Account      common.Address
	CollateralIn *uint256.Int
	ShareIn      *uint256.Int
	StableOut    *uint256.Int
}

func (PoolMinted) EventType() string { return TypePoolMinted }

func (e PoolMinted) Event() *types.Event {
	return &types.Event{
		Type: TypePoolMinted,
		Attributes: map[string]string{
			"pool":         normalizeAsset(e.Pool),
			"mode":         e.Mode,
			"account":      e.Account.Hex(),
			"collateralIn": amountString(e.CollateralIn),
			"shareIn":      amountString(e.ShareIn),
			"stableOut":    amountString(e.StableOut),
		},
	}
}

type PoolRedemptionRequested struct {
	Pool           string
	Mode           string
	ClaimID        string
	Claimant       common.Address
	StableIn       *uint256.Int
	CollateralOwed *uint256.Int
	ShareOwed      *uint256.Int
	Block          uint64
}

func (PoolRedemptionRequested) EventType() string { return TypePoolRedemptionRequested }

func (e PoolRedemptionRequested) Event() *types.Event {
	return &types.Event{
		Type: TypePoolRedemptionRequested,
		Attributes: map[string]string{
			"pool":           normalizeAsset(e.Pool),
			"mode":           e.Mode,
			"claimId":        e.ClaimID,
			"claimant":       e.Claimant.Hex(),
			"stableIn":       amountString(e.StableIn),
			"collateralOwed": amountString(e.CollateralOwed),
			"shareOwed":      amountString(e.ShareOwed),
			"block":          strconv.FormatUint(e.Block, 10),
		},
	}
}

type PoolRedemptionCollected struct {
	Pool          string
	ClaimID       string
	Claimant      common.Address
	CollateralOut *uint256.Int
	ShareOut      *uint256.Int
}

func (PoolRedemptionCollected) EventType() string { return TypePoolRedemptionCollected }

func (e PoolRedemptionCollected) Event() *types.Event {
	return &types.Event{
		Type: TypePoolRedemptionCollected,
		Attributes: map[string]string{
			"pool":          normalizeAsset(e.Pool),
			"claimId":       e.ClaimID,
			"claimant":      e.Claimant.Hex(),
			"collateralOut": amountString(e.CollateralOut),
			"shareOut":      amountString(e.ShareOut),
		},
	}
}

type PoolRecollateralized struct {
	Pool         string
	Account      common.Address
	CollateralIn *uint256.Int
	ShareOut     *uint256.Int
	BonusBps     uint64
}

func (PoolRecollateralized) EventType() string { return TypePoolRecollateralized }

func (e PoolRecollateralized) Event() *types.Event {
	return &types.Event{
		Type: TypePoolRecollateralized,
		Attributes: map[string]string{
			"pool":         normalizeAsset(e.Pool),
			"account":      e.Account.Hex(),
			"collateralIn": amountString(e.CollateralIn),
			"shareOut":     amountString(e.ShareOut),
			"bonusBps":     strconv.FormatUint(e.BonusBps, 10),
		},
	}
}

type PoolBoughtBack struct {
	Pool          string
	Account       common.Address
	ShareIn       *uint256.Int
	CollateralOut *uint256.Int
}

func (PoolBoughtBack) EventType() string { return TypePoolBoughtBack }

func (e PoolBoughtBack) Event() *types.Event {
	return &types.Event{
		Type: TypePoolBoughtBack,
		Attributes: map[string]string{
			"pool":          normalizeAsset(e.Pool),
			"account":       e.Account.Hex(),
			"shareIn":       amountString(e.ShareIn),
			"collateralOut": amountString(e.CollateralOut),
		},
	}
}
