/*

This file contains the receipt types emitted by every can state transition.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// OperationKind defines the can state transitions.
type OperationKind string

const (
	OperationMint      OperationKind = "MINT"
	OperationBurn      OperationKind = "BURN"
	OperationUpdate    OperationKind = "UPDATE"
	OperationEmergency OperationKind = "EMERGENCY"
)

// Receipt records the outcome of a single successful can operation.
type Receipt struct {
	ID        uuid.UUID      `json:"id"`
	Can       common.Address `json:"can"`
	Kind      OperationKind  `json:"kind"`
	Caller    common.Address `json:"caller"`
	Recipient common.Address `json:"recipient"`
	Timestamp time.Time      `json:"timestamp"`

	Principal      sdkmath.Int `json:"principal"`       // Providing-token amount deposited or withdrawn
	LiquidityDelta sdkmath.Int `json:"liquidity_delta"` // Liquidity shares staked or unstaked
	Harvested      sdkmath.Int `json:"harvested"`       // Reward collected from the farm during the operation
	RewardPaid     sdkmath.Int `json:"reward_paid"`     // Net reward sent to the recipient
	FeePaid        sdkmath.Int `json:"fee_paid"`        // Fee portion sent to the fee receiver

	AccRewardPerShare sdkmath.Int     `json:"acc_reward_per_share"` // Accumulator after the operation
	Transfers         []sdktypes.Coin `json:"transfers,omitempty"`  // Tokens leaving the can
}

// NewReceipt returns a receipt with every amount initialised to zero.
func NewReceipt(can common.Address, kind OperationKind, caller, recipient common.Address, at time.Time) *Receipt {
	return &Receipt{
		ID:                uuid.New(),
		Can:               can,
		Kind:              kind,
		Caller:            caller,
		Recipient:         recipient,
		Timestamp:         at,
		Principal:         sdkmath.ZeroInt(),
		LiquidityDelta:    sdkmath.ZeroInt(),
		Harvested:         sdkmath.ZeroInt(),
		RewardPaid:        sdkmath.ZeroInt(),
		FeePaid:           sdkmath.ZeroInt(),
		AccRewardPerShare: sdkmath.ZeroInt(),
	}
}

// CanSnapshot is the persisted form of a can after an operation.
type CanSnapshot struct {
	Address     common.Address `json:"address"`
	Owner       common.Address `json:"owner"`
	FeeReceiver common.Address `json:"fee_receiver"`
	RevertFlag  bool           `json:"revert_flag"`
	Info        VaultInfo      `json:"info"`
	Users       []UserRecord   `json:"users"` // Only the entries touched by the operation
}

// KeeperCycle records one heartbeat pass over every can.
type KeeperCycle struct {
	ID         uuid.UUID     `json:"id"`
	Number     int           `json:"number"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	CansTotal  int           `json:"cans_total"`
	CansFailed int           `json:"cans_failed"`
}
