/*

This is a custom type for cans (per-pool staking vaults) which contains all the state needed for reward accrual.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// VaultInfo is the singleton accounting record of a single can.
type VaultInfo struct {
	FarmID         uint64         `json:"farm_id"`         // Pool slot in the staking farm
	Farm           common.Address `json:"farm"`            // Address of the staking farm
	Router         common.Address `json:"router"`          // Address of the liquidity router
	LiquidityDenom string         `json:"liquidity_denom"` // e.g., "lp/gton-usdc"
	ProvidingDenom string         `json:"providing_denom"` // Token accepted from users, e.g., "gton"
	PairedDenom    string         `json:"paired_denom"`    // Counter token of the pair, e.g., "usdc"
	RewardDenom    string         `json:"reward_denom"`    // Token paid by the farm, e.g., "relict"
	Fee            uint64         `json:"fee"`             // Claim fee in basis points

	TotalProvidedAmount sdkmath.Int `json:"total_provided_amount"` // Sum of every user's principal
	TotalLiquidity      sdkmath.Int `json:"total_liquidity"`       // Liquidity shares staked in the farm
	AccRewardPerShare   sdkmath.Int `json:"acc_reward_per_share"`  // Scaled by ledger.Precision
	LastRewardTimestamp time.Time   `json:"last_reward_timestamp"`

	UndistributedReward sdkmath.Int `json:"undistributed_reward"` // Harvested while nobody could receive it
	RewardLiability     sdkmath.Int `json:"reward_liability"`     // Folded into the accumulator, not yet paid
}

// NewVaultInfo returns an empty vault record for the supplied collaborators.
func NewVaultInfo(params CanParams) VaultInfo {
	return VaultInfo{
		FarmID:              params.FarmID,
		Farm:                params.Farm,
		Router:              params.Router,
		LiquidityDenom:      params.LiquidityDenom,
		ProvidingDenom:      params.ProvidingDenom,
		PairedDenom:         params.PairedDenom,
		RewardDenom:         params.RewardDenom,
		Fee:                 params.Fee,
		TotalProvidedAmount: sdkmath.ZeroInt(),
		TotalLiquidity:      sdkmath.ZeroInt(),
		AccRewardPerShare:   sdkmath.ZeroInt(),
		UndistributedReward: sdkmath.ZeroInt(),
		RewardLiability:     sdkmath.ZeroInt(),
	}
}

// IsEmpty reports whether no principal is currently staked.
func (v VaultInfo) IsEmpty() bool {
	return v.TotalProvidedAmount.IsZero()
}

// Params returns the creation tuple the record was built from.
func (v VaultInfo) Params() CanParams {
	return CanParams{
		FarmID:         v.FarmID,
		Farm:           v.Farm,
		Router:         v.Router,
		LiquidityDenom: v.LiquidityDenom,
		ProvidingDenom: v.ProvidingDenom,
		PairedDenom:    v.PairedDenom,
		RewardDenom:    v.RewardDenom,
		Fee:            v.Fee,
	}
}

// CanParams is the creation tuple accepted by the registry.
type CanParams struct {
	FarmID         uint64         `json:"farm_id"`
	Farm           common.Address `json:"farm"`
	Router         common.Address `json:"router"`
	LiquidityDenom string         `json:"liquidity_denom"`
	ProvidingDenom string         `json:"providing_denom"`
	PairedDenom    string         `json:"paired_denom"`
	RewardDenom    string         `json:"reward_denom"`
	Fee            uint64         `json:"fee"`
}

// CanSummary is the read-only view returned for a can by the registry and web API.
type CanSummary struct {
	Address     common.Address `json:"address"`
	Index       int            `json:"index"`
	Owner       common.Address `json:"owner"`
	FeeReceiver common.Address `json:"fee_receiver"`
	RevertFlag  bool           `json:"revert_flag"`
	UserCount   int            `json:"user_count"`
	Info        VaultInfo      `json:"info"`
}
