package chain

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/candyshop/internal/types"
)

// Bank keeps token balances per denom and address.
type Bank struct {
	balances map[string]map[common.Address]sdkmath.Int
	supply   map[string]sdkmath.Int
}

// NewBank returns an empty bank.
func NewBank() *Bank {
	return &Bank{
		balances: make(map[string]map[common.Address]sdkmath.Int),
		supply:   make(map[string]sdkmath.Int),
	}
}

// BalanceOf returns the balance of addr in denom.
func (b *Bank) BalanceOf(denom string, addr common.Address) sdkmath.Int {
	if byAddr, ok := b.balances[denom]; ok {
		if v, ok := byAddr[addr]; ok {
			return v
		}
	}
	return sdkmath.ZeroInt()
}

// Balances returns every non-zero balance held by addr.
func (b *Bank) Balances(addr common.Address) sdktypes.Coins {
	coins := sdktypes.NewCoins()
	for denom, byAddr := range b.balances {
		if v, ok := byAddr[addr]; ok && v.IsPositive() {
			coins = coins.Add(sdktypes.NewCoin(denom, v))
		}
	}
	return coins
}

// Supply returns the minted supply of denom.
func (b *Bank) Supply(denom string) sdkmath.Int {
	if v, ok := b.supply[denom]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}

// Mint creates coin out of thin air for to.
func (b *Bank) Mint(to common.Address, coin sdktypes.Coin) error {
	if err := validateCoin(coin); err != nil {
		return err
	}
	b.set(coin.Denom, to, b.BalanceOf(coin.Denom, to).Add(coin.Amount))
	b.supply[coin.Denom] = b.Supply(coin.Denom).Add(coin.Amount)
	return nil
}

// Burn destroys coin held by from.
func (b *Bank) Burn(from common.Address, coin sdktypes.Coin) error {
	if err := validateCoin(coin); err != nil {
		return err
	}
	have := b.BalanceOf(coin.Denom, from)
	if have.LT(coin.Amount) {
		return fmt.Errorf("%w: %s has %s%s, burning %s", types.ErrInsufficientBalance, from.Hex(), have, coin.Denom, coin)
	}
	b.set(coin.Denom, from, have.Sub(coin.Amount))
	b.supply[coin.Denom] = b.Supply(coin.Denom).Sub(coin.Amount)
	return nil
}

// Transfer moves coin from one address to another.
func (b *Bank) Transfer(from, to common.Address, coin sdktypes.Coin) error {
	if err := validateCoin(coin); err != nil {
		return err
	}
	if coin.Amount.IsZero() || from == to {
		return nil
	}
	have := b.BalanceOf(coin.Denom, from)
	if have.LT(coin.Amount) {
		return fmt.Errorf("%w: %s has %s%s, sending %s", types.ErrInsufficientBalance, from.Hex(), have, coin.Denom, coin)
	}
	b.set(coin.Denom, from, have.Sub(coin.Amount))
	b.set(coin.Denom, to, b.BalanceOf(coin.Denom, to).Add(coin.Amount))
	return nil
}

func (b *Bank) set(denom string, addr common.Address, v sdkmath.Int) {
	byAddr, ok := b.balances[denom]
	if !ok {
		byAddr = make(map[common.Address]sdkmath.Int)
		b.balances[denom] = byAddr
	}
	if v.IsZero() {
		delete(byAddr, addr)
		return
	}
	byAddr[addr] = v
}

func (b *Bank) clone() *Bank {
	c := NewBank()
	for denom, byAddr := range b.balances {
		cp := make(map[common.Address]sdkmath.Int, len(byAddr))
		for addr, v := range byAddr {
			cp[addr] = v
		}
		c.balances[denom] = cp
	}
	for denom, v := range b.supply {
		c.supply[denom] = v
	}
	return c
}

func validateCoin(coin sdktypes.Coin) error {
	if coin.Amount.IsNil() || coin.Amount.IsNegative() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, coin.Amount)
	}
	if err := sdktypes.ValidateDenom(coin.Denom); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAmount, err)
	}
	return nil
}
