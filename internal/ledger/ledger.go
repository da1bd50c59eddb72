/*

This file contains the reward accounting of a can: the reward-per-share accumulator,
per-user settlement and principal bookkeeping. All arithmetic is integer and every
division truncates, so rounding always favours the can over the depositor.

*/

package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/candyshop/internal/types"
)

// Precision scales AccRewardPerShare.
var Precision = sdkmath.NewInt(1_000_000_000_000)

var (
	ErrInvalidAmount         = errors.New("ledger: amount must be non-negative")
	ErrInsufficientPrincipal = errors.New("ledger: withdrawal exceeds provided amount")
	ErrInsufficientLiquidity = errors.New("ledger: liquidity exceeds staked total")
)

// Ledger holds the VaultInfo and every UserInfo of one can. It is not safe for
// concurrent use; the owning can serialises access.
type Ledger struct {
	info  types.VaultInfo
	users map[common.Address]*types.UserInfo
}

// New returns a ledger starting from info.
func New(info types.VaultInfo) *Ledger {
	return &Ledger{
		info:  normalizeInfo(info),
		users: make(map[common.Address]*types.UserInfo),
	}
}

// Restore rebuilds a ledger from persisted state.
func Restore(info types.VaultInfo, users []types.UserRecord) *Ledger {
	l := New(info)
	for _, rec := range users {
		u := normalizeUser(rec.Info)
		l.users[rec.User] = &u
	}
	return l
}

// Info returns a copy of the vault record.
func (l *Ledger) Info() types.VaultInfo {
	return l.info
}

// User returns the entry for addr, or a zeroed entry when addr never interacted.
func (l *Ledger) User(addr common.Address) types.UserInfo {
	if u, ok := l.users[addr]; ok {
		return *u
	}
	return types.NewUserInfo()
}

// HasUser reports whether addr has an entry.
func (l *Ledger) HasUser(addr common.Address) bool {
	_, ok := l.users[addr]
	return ok
}

// Users returns every entry ordered by address.
func (l *Ledger) Users() []types.UserRecord {
	out := make([]types.UserRecord, 0, len(l.users))
	for addr, u := range l.users {
		out = append(out, types.UserRecord{User: addr, Info: *u})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].User.Bytes(), out[j].User.Bytes()) < 0
	})
	return out
}

// Clone returns a deep copy; sdkmath.Int values are immutable so copying the
// structs is enough.
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{
		info:  l.info,
		users: make(map[common.Address]*types.UserInfo, len(l.users)),
	}
	for addr, u := range l.users {
		cp := *u
		c.users[addr] = &cp
	}
	return c
}

// SettlePool folds newly harvested reward into the accumulator. With no
// principal the reward is parked in UndistributedReward and handed out by the
// next settlement that has principal. It returns the amount distributed.
func (l *Ledger) SettlePool(harvested sdkmath.Int, at time.Time) (sdkmath.Int, error) {
	if harvested.IsNil() || harvested.IsNegative() {
		return sdkmath.ZeroInt(), ErrInvalidAmount
	}
	if at.After(l.info.LastRewardTimestamp) {
		l.info.LastRewardTimestamp = at
	}

	reward := harvested.Add(l.info.UndistributedReward)
	if reward.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	if l.info.TotalProvidedAmount.IsZero() {
		l.info.UndistributedReward = reward
		return sdkmath.ZeroInt(), nil
	}

	l.info.AccRewardPerShare = l.info.AccRewardPerShare.Add(PerShare(reward, l.info.TotalProvidedAmount))
	l.info.RewardLiability = l.info.RewardLiability.Add(reward)
	l.info.UndistributedReward = sdkmath.ZeroInt()
	return reward, nil
}

// Park adds reward to UndistributedReward without touching the accumulator.
// Used for reward collected after the operation's own settlement.
func (l *Ledger) Park(reward sdkmath.Int) error {
	if reward.IsNil() || reward.IsNegative() {
		return ErrInvalidAmount
	}
	l.info.UndistributedReward = l.info.UndistributedReward.Add(reward)
	return nil
}

// Pending returns the reward addr earned since its last settlement.
func (l *Ledger) Pending(addr common.Address) sdkmath.Int {
	u, ok := l.users[addr]
	if !ok {
		return sdkmath.ZeroInt()
	}
	return pending(*u, l.info.AccRewardPerShare)
}

// SettleUser moves the pending reward of addr into AggregatedReward and resets
// its baseline. The pool must already be settled.
func (l *Ledger) SettleUser(addr common.Address) sdkmath.Int {
	u, ok := l.users[addr]
	if !ok {
		return sdkmath.ZeroInt()
	}
	due := pending(*u, l.info.AccRewardPerShare)
	u.AggregatedReward = u.AggregatedReward.Add(due)
	u.RewardDebt = l.info.AccRewardPerShare
	return due
}

// ApplyDeposit adds principal for a settled user.
func (l *Ledger) ApplyDeposit(addr common.Address, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return ErrInvalidAmount
	}
	u := l.ensureUser(addr)
	u.ProvidedAmount = u.ProvidedAmount.Add(amount)
	l.info.TotalProvidedAmount = l.info.TotalProvidedAmount.Add(amount)
	return nil
}

// ApplyWithdrawal removes principal from a settled user.
func (l *Ledger) ApplyWithdrawal(addr common.Address, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return ErrInvalidAmount
	}
	if amount.IsZero() {
		return nil
	}
	u, ok := l.users[addr]
	if !ok || amount.GT(u.ProvidedAmount) {
		return fmt.Errorf("%w: requested %s", ErrInsufficientPrincipal, amount)
	}
	u.ProvidedAmount = u.ProvidedAmount.Sub(amount)
	l.info.TotalProvidedAmount = l.info.TotalProvidedAmount.Sub(amount)
	return nil
}

// DrainReward returns the aggregated reward of addr and zeroes it.
func (l *Ledger) DrainReward(addr common.Address) sdkmath.Int {
	u, ok := l.users[addr]
	if !ok || u.AggregatedReward.IsZero() {
		return sdkmath.ZeroInt()
	}
	amount := u.AggregatedReward
	u.AggregatedReward = sdkmath.ZeroInt()
	l.info.RewardLiability = sdkmath.MaxInt(l.info.RewardLiability.Sub(amount), sdkmath.ZeroInt())
	return amount
}

// LiquidityFor returns the staked liquidity backing principal. When principal
// is the whole pool every share is returned so nothing is stranded by rounding.
func (l *Ledger) LiquidityFor(principal sdkmath.Int) sdkmath.Int {
	if principal.IsZero() || l.info.TotalProvidedAmount.IsZero() {
		return sdkmath.ZeroInt()
	}
	if principal.GTE(l.info.TotalProvidedAmount) {
		return l.info.TotalLiquidity
	}
	return principal.Mul(l.info.TotalLiquidity).Quo(l.info.TotalProvidedAmount)
}

// AddLiquidity records newly staked liquidity shares.
func (l *Ledger) AddLiquidity(amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return ErrInvalidAmount
	}
	l.info.TotalLiquidity = l.info.TotalLiquidity.Add(amount)
	return nil
}

// RemoveLiquidity records unstaked liquidity shares.
func (l *Ledger) RemoveLiquidity(amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return ErrInvalidAmount
	}
	if amount.GT(l.info.TotalLiquidity) {
		return ErrInsufficientLiquidity
	}
	l.info.TotalLiquidity = l.info.TotalLiquidity.Sub(amount)
	return nil
}

// SetFee updates the claim fee.
func (l *Ledger) SetFee(bps uint64) {
	l.info.Fee = bps
}

// PerShare returns reward * Precision / total, or zero when total is zero.
func PerShare(reward, total sdkmath.Int) sdkmath.Int {
	if total.IsNil() || total.IsZero() || reward.IsNil() {
		return sdkmath.ZeroInt()
	}
	return reward.Mul(Precision).Quo(total)
}

// Accrued returns amount * acc / Precision.
func Accrued(amount, acc sdkmath.Int) sdkmath.Int {
	if amount.IsNil() || acc.IsNil() {
		return sdkmath.ZeroInt()
	}
	return amount.Mul(acc).Quo(Precision)
}

func pending(u types.UserInfo, acc sdkmath.Int) sdkmath.Int {
	if u.ProvidedAmount.IsZero() || acc.LTE(u.RewardDebt) {
		return sdkmath.ZeroInt()
	}
	return Accrued(u.ProvidedAmount, acc.Sub(u.RewardDebt))
}

// ensureUser creates an entry whose baseline is the current accumulator, so a
// newcomer never earns reward accrued before it joined.
func (l *Ledger) ensureUser(addr common.Address) *types.UserInfo {
	if u, ok := l.users[addr]; ok {
		return u
	}
	u := types.NewUserInfo()
	u.RewardDebt = l.info.AccRewardPerShare
	l.users[addr] = &u
	return &u
}

func normalizeInfo(info types.VaultInfo) types.VaultInfo {
	info.TotalProvidedAmount = orZero(info.TotalProvidedAmount)
	info.TotalLiquidity = orZero(info.TotalLiquidity)
	info.AccRewardPerShare = orZero(info.AccRewardPerShare)
	info.UndistributedReward = orZero(info.UndistributedReward)
	info.RewardLiability = orZero(info.RewardLiability)
	return info
}

func normalizeUser(u types.UserInfo) types.UserInfo {
	u.ProvidedAmount = orZero(u.ProvidedAmount)
	u.RewardDebt = orZero(u.RewardDebt)
	u.AggregatedReward = orZero(u.AggregatedReward)
	return u
}

func orZero(v sdkmath.Int) sdkmath.Int {
	if v.IsNil() {
		return sdkmath.ZeroInt()
	}
	return v
}
