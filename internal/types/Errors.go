/*

This file contains the error taxonomy shared by the cans, the registry and the collaborators
they call. Packages wrap these sentinels with their own context so callers can match with errors.Is.

*/

package types

import "errors"

var (
	// ErrPermission is returned when a non-owner invokes an owner-only operation.
	ErrPermission = errors.New("permitted to owner")
	// ErrInsufficientBalance is returned when a transfer, withdrawal or recovery exceeds the available balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInsufficientLiquidity is returned when a requested amount cannot be paired into liquidity.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	// ErrInvariantViolation is returned when a request would break ledger invariants, e.g. withdrawing more principal than held.
	ErrInvariantViolation = errors.New("invariant violation")
)
