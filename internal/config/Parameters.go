/*

This file contains the default parameters of the reference chain started by `candyshop serve`.

The values mirror a small Uniswap-V2 pair with a MasterChef farm emitting one reward token per second,
which is enough to watch the keeper fold reward into the can accumulators.

*/

package config

import (
	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/candyshop/internal/utils"
)

// DemoParameters seeds the in-process chain used by the serve command.
type DemoParameters struct {
	RewardDenom     string
	RewardPerSecond sdkmath.Int
	ProvidingDenom  string
	PairedDenom     string
	AllocPoint      uint64

	SeedReserve     sdkmath.Int // Deposited on each side of the pair before any can exists
	PairedInventory sdkmath.Int // Paired token handed to the demo can so mints can be matched
	Fee             uint64      // Claim fee of the demo can in basis points
}

// DefaultDemoParameters provides the baseline reference chain.
var DefaultDemoParameters = DemoParameters{
	RewardDenom:     "urelict",
	RewardPerSecond: utils.MustExpandDecimals(1, 18), // One whole reward token per second.
	ProvidingDenom:  "ugton",
	PairedDenom:     "uusdc",
	AllocPoint:      100,

	SeedReserve:     utils.MustExpandDecimals(100, 18),
	PairedInventory: utils.MustExpandDecimals(180_000, 18),
	Fee:             0, // No claim fee by default.
}
