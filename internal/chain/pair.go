package chain

import (
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/candyshop/internal/types"
	"github.com/elys-network/candyshop/internal/utils"
)

// MinimumLiquidity is locked forever on the first mint of every pair.
var MinimumLiquidity = sdkmath.NewInt(1000)

// burnAddress receives the locked minimum liquidity.
var burnAddress = common.Address{}

// Pair is a constant-product pool of two denoms. Its reserves are the bank
// balances held at Address; LPDenom is minted to liquidity providers.
type Pair struct {
	Address common.Address
	LPDenom string
	Token0  string
	Token1  string
}

// reserves returns the balances of both tokens held by the pair, ordered like
// the arguments.
func (p Pair) reserves(bank *Bank, denomA, denomB string) (sdkmath.Int, sdkmath.Int) {
	return bank.BalanceOf(denomA, p.Address), bank.BalanceOf(denomB, p.Address)
}

func (p Pair) has(denom string) bool {
	return denom == p.Token0 || denom == p.Token1
}

func (p Pair) other(denom string) string {
	if denom == p.Token0 {
		return p.Token1
	}
	return p.Token0
}

// quote returns amountA * reserveB / reserveA.
func quote(amountA, reserveA, reserveB sdkmath.Int) (sdkmath.Int, error) {
	if !amountA.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: quote amount must be positive", ErrInvalidAmount)
	}
	if !reserveA.IsPositive() || !reserveB.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: pair has no reserves", types.ErrInsufficientLiquidity)
	}
	return utils.MulDiv(amountA, reserveB, reserveA)
}

// optimalAmounts mirrors the router: the desired amount of one side is kept and
// the other side is reduced to the current price.
func optimalAmounts(desiredA, desiredB, reserveA, reserveB sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	if reserveA.IsZero() && reserveB.IsZero() {
		return desiredA, desiredB, nil
	}
	optimalB, err := quote(desiredA, reserveA, reserveB)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	if optimalB.LTE(desiredB) {
		return desiredA, optimalB, nil
	}
	optimalA, err := quote(desiredB, reserveB, reserveA)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	if optimalA.GT(desiredA) {
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: desired amounts cannot be paired", types.ErrInsufficientLiquidity)
	}
	return optimalA, desiredB, nil
}

// mintShares returns the LP shares minted for the given deposit.
func mintShares(amountA, amountB, reserveA, reserveB, supply sdkmath.Int) sdkmath.Int {
	if supply.IsZero() {
		root := new(big.Int).Sqrt(amountA.Mul(amountB).BigInt())
		return sdkmath.NewIntFromBigInt(root).Sub(MinimumLiquidity)
	}
	byA := amountA.Mul(supply).Quo(reserveA)
	byB := amountB.Mul(supply).Quo(reserveB)
	return sdkmath.MinInt(byA, byB)
}

func (p Pair) addLiquidity(bank *Bank, owner common.Address, desiredA, desiredB sdktypes.Coin) (sdkmath.Int, error) {
	reserveA, reserveB := p.reserves(bank, desiredA.Denom, desiredB.Denom)
	amountA, amountB, err := optimalAmounts(desiredA.Amount, desiredB.Amount, reserveA, reserveB)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if !amountA.IsPositive() || !amountB.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: nothing to pair", types.ErrInsufficientLiquidity)
	}

	supply := bank.Supply(p.LPDenom)
	shares := mintShares(amountA, amountB, reserveA, reserveB, supply)
	if !shares.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: INSUFFICIENT_LIQUIDITY_MINTED", types.ErrInsufficientLiquidity)
	}

	if err := bank.Transfer(owner, p.Address, sdktypes.NewCoin(desiredA.Denom, amountA)); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := bank.Transfer(owner, p.Address, sdktypes.NewCoin(desiredB.Denom, amountB)); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if supply.IsZero() {
		if err := bank.Mint(burnAddress, sdktypes.NewCoin(p.LPDenom, MinimumLiquidity)); err != nil {
			return sdkmath.ZeroInt(), err
		}
	}
	if err := bank.Mint(owner, sdktypes.NewCoin(p.LPDenom, shares)); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return shares, nil
}

func (p Pair) removeLiquidity(bank *Bank, owner common.Address, shares sdkmath.Int) (sdktypes.Coins, error) {
	if !shares.IsPositive() {
		return nil, fmt.Errorf("%w: liquidity must be positive", ErrInvalidAmount)
	}
	supply := bank.Supply(p.LPDenom)
	reserve0, reserve1 := p.reserves(bank, p.Token0, p.Token1)
	if supply.IsZero() {
		return nil, fmt.Errorf("%w: pair has no supply", types.ErrInsufficientLiquidity)
	}
	amount0, err := utils.MulDiv(shares, reserve0, supply)
	if err != nil {
		return nil, err
	}
	amount1, err := utils.MulDiv(shares, reserve1, supply)
	if err != nil {
		return nil, err
	}
	if !amount0.IsPositive() || !amount1.IsPositive() {
		return nil, fmt.Errorf("%w: INSUFFICIENT_LIQUIDITY_BURNED", types.ErrInsufficientLiquidity)
	}

	if err := bank.Burn(owner, sdktypes.NewCoin(p.LPDenom, shares)); err != nil {
		return nil, err
	}
	out := sdktypes.NewCoins(sdktypes.NewCoin(p.Token0, amount0), sdktypes.NewCoin(p.Token1, amount1))
	for _, coin := range out {
		if err := bank.Transfer(p.Address, owner, coin); err != nil {
			return nil, err
		}
	}
	return out, nil
}
