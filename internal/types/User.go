/*

This file contains the per-depositor state of a can.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// UserInfo is created lazily on the first interaction and never deleted;
// a zeroed entry is a valid empty position.
type UserInfo struct {
	ProvidedAmount   sdkmath.Int `json:"provided_amount"`   // Principal in providing-token units
	RewardDebt       sdkmath.Int `json:"reward_debt"`       // AccRewardPerShare seen at the last settlement
	AggregatedReward sdkmath.Int `json:"aggregated_reward"` // Settled but not yet paid out
}

// NewUserInfo returns a zero-valued user entry.
func NewUserInfo() UserInfo {
	return UserInfo{
		ProvidedAmount:   sdkmath.ZeroInt(),
		RewardDebt:       sdkmath.ZeroInt(),
		AggregatedReward: sdkmath.ZeroInt(),
	}
}

// UserRecord pairs a user entry with its owner, used for persistence and listings.
type UserRecord struct {
	User common.Address `json:"user"`
	Info UserInfo       `json:"info"`
}
