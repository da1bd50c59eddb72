package chain

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/candyshop/internal/ledger"
	"github.com/elys-network/candyshop/internal/types"
)

// FarmPool is one staking pool of the farm.
type FarmPool struct {
	LPDenom           string
	AllocPoint        uint64
	LastRewardTime    time.Time
	AccRewardPerShare sdkmath.Int
	TotalStaked       sdkmath.Int
}

type stake struct {
	Amount     sdkmath.Int
	RewardDebt sdkmath.Int
}

// Farm emits RewardDenom at RewardPerSecond, split across pools by allocation
// points, and pays every staker pro rata on each deposit or withdrawal.
type Farm struct {
	Address         common.Address
	RewardDenom     string
	RewardPerSecond sdkmath.Int
	TotalAllocPoint uint64

	pools  []*FarmPool
	stakes map[uint64]map[common.Address]*stake
}

func newFarm(addr common.Address, rewardDenom string, perSecond sdkmath.Int) *Farm {
	return &Farm{
		Address:         addr,
		RewardDenom:     rewardDenom,
		RewardPerSecond: perSecond,
		stakes:          make(map[uint64]map[common.Address]*stake),
	}
}

func (f *Farm) pool(id uint64) (*FarmPool, error) {
	if id >= uint64(len(f.pools)) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFarmPool, id)
	}
	return f.pools[id], nil
}

func (f *Farm) stakeOf(id uint64, holder common.Address) *stake {
	byHolder, ok := f.stakes[id]
	if !ok {
		byHolder = make(map[common.Address]*stake)
		f.stakes[id] = byHolder
	}
	s, ok := byHolder[holder]
	if !ok {
		s = &stake{Amount: sdkmath.ZeroInt(), RewardDebt: f.pools[id].AccRewardPerShare}
		byHolder[holder] = s
	}
	return s
}

func (f *Farm) addPool(lpDenom string, alloc uint64, now time.Time) uint64 {
	f.pools = append(f.pools, &FarmPool{
		LPDenom:           lpDenom,
		AllocPoint:        alloc,
		LastRewardTime:    now,
		AccRewardPerShare: sdkmath.ZeroInt(),
		TotalStaked:       sdkmath.ZeroInt(),
	})
	f.TotalAllocPoint += alloc
	return uint64(len(f.pools) - 1)
}

// emission returns the reward a pool earned between its last update and now,
// counted in whole seconds, along with the time the update advances to.
func (f *Farm) emission(p *FarmPool, now time.Time) (sdkmath.Int, time.Time) {
	if !now.After(p.LastRewardTime) {
		return sdkmath.ZeroInt(), p.LastRewardTime
	}
	if p.TotalStaked.IsZero() {
		return sdkmath.ZeroInt(), now
	}
	seconds := int64(now.Sub(p.LastRewardTime) / time.Second)
	advanced := p.LastRewardTime.Add(time.Duration(seconds) * time.Second)
	if seconds == 0 || f.TotalAllocPoint == 0 {
		return sdkmath.ZeroInt(), advanced
	}
	reward := f.RewardPerSecond.MulRaw(seconds).Mul(sdkmath.NewIntFromUint64(p.AllocPoint)).Quo(sdkmath.NewIntFromUint64(f.TotalAllocPoint))
	return reward, advanced
}

func (f *Farm) update(bank *Bank, p *FarmPool, now time.Time) error {
	reward, advanced := f.emission(p, now)
	p.LastRewardTime = advanced
	if reward.IsZero() {
		return nil
	}
	if err := bank.Mint(f.Address, sdktypes.NewCoin(f.RewardDenom, reward)); err != nil {
		return err
	}
	p.AccRewardPerShare = p.AccRewardPerShare.Add(ledger.PerShare(reward, p.TotalStaked))
	return nil
}

func (f *Farm) harvest(bank *Bank, p *FarmPool, s *stake, to common.Address) error {
	due := ledger.Accrued(s.Amount, p.AccRewardPerShare.Sub(s.RewardDebt))
	s.RewardDebt = p.AccRewardPerShare
	if due.IsZero() {
		return nil
	}
	return bank.Transfer(f.Address, to, sdktypes.NewCoin(f.RewardDenom, due))
}

func (f *Farm) deposit(bank *Bank, id uint64, holder common.Address, amount sdkmath.Int, now time.Time) error {
	p, err := f.pool(id)
	if err != nil {
		return err
	}
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	if err := f.update(bank, p, now); err != nil {
		return err
	}
	s := f.stakeOf(id, holder)
	if err := f.harvest(bank, p, s, holder); err != nil {
		return err
	}
	if amount.IsZero() {
		return nil
	}
	if err := bank.Transfer(holder, f.Address, sdktypes.NewCoin(p.LPDenom, amount)); err != nil {
		return err
	}
	s.Amount = s.Amount.Add(amount)
	p.TotalStaked = p.TotalStaked.Add(amount)
	return nil
}

func (f *Farm) withdraw(bank *Bank, id uint64, holder common.Address, amount sdkmath.Int, now time.Time) error {
	p, err := f.pool(id)
	if err != nil {
		return err
	}
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	s := f.stakeOf(id, holder)
	if amount.GT(s.Amount) {
		return fmt.Errorf("%w: staked %s, withdrawing %s", types.ErrInsufficientLiquidity, s.Amount, amount)
	}
	if err := f.update(bank, p, now); err != nil {
		return err
	}
	if err := f.harvest(bank, p, s, holder); err != nil {
		return err
	}
	if amount.IsZero() {
		return nil
	}
	s.Amount = s.Amount.Sub(amount)
	p.TotalStaked = p.TotalStaked.Sub(amount)
	return bank.Transfer(f.Address, holder, sdktypes.NewCoin(p.LPDenom, amount))
}

func (f *Farm) pending(id uint64, holder common.Address, now time.Time) (sdkmath.Int, error) {
	p, err := f.pool(id)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	s, ok := f.stakes[id][holder]
	if !ok || s.Amount.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	acc := p.AccRewardPerShare
	if reward, _ := f.emission(p, now); reward.IsPositive() {
		acc = acc.Add(ledger.PerShare(reward, p.TotalStaked))
	}
	return ledger.Accrued(s.Amount, acc.Sub(s.RewardDebt)), nil
}

func (f *Farm) staked(id uint64, holder common.Address) sdkmath.Int {
	if s, ok := f.stakes[id][holder]; ok {
		return s.Amount
	}
	return sdkmath.ZeroInt()
}

func (f *Farm) clone() *Farm {
	c := &Farm{
		Address:         f.Address,
		RewardDenom:     f.RewardDenom,
		RewardPerSecond: f.RewardPerSecond,
		TotalAllocPoint: f.TotalAllocPoint,
		pools:           make([]*FarmPool, len(f.pools)),
		stakes:          make(map[uint64]map[common.Address]*stake, len(f.stakes)),
	}
	for i, p := range f.pools {
		cp := *p
		c.pools[i] = &cp
	}
	for id, byHolder := range f.stakes {
		cp := make(map[common.Address]*stake, len(byHolder))
		for holder, s := range byHolder {
			sc := *s
			cp[holder] = &sc
		}
		c.stakes[id] = cp
	}
	return c
}
