package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/candyshop/internal/types"
)

const (
	defaultReceiptLimit = 10
	maxReceiptLimit     = 100
)

// clampLimit keeps listing limits within 1..100, defaulting to 10.
func clampLimit(limit int) int {
	if limit <= 0 || limit > maxReceiptLimit {
		return defaultReceiptLimit
	}
	return limit
}

func saveReceiptTx(ctx context.Context, tx *sql.Tx, r types.Receipt) error {
	transfersJSON, err := json.Marshal(r.Transfers)
	if err != nil {
		return fmt.Errorf("failed to marshal transfers: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO can_receipts (
			receipt_id, can_address, kind, caller_address, recipient_address, receipt_timestamp,
			principal, liquidity_delta, harvested, reward_paid, fee_paid, acc_reward_per_share, transfers
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);`,
		r.ID, r.Can.Hex(), string(r.Kind), r.Caller.Hex(), r.Recipient.Hex(), r.Timestamp,
		r.Principal.String(), r.LiquidityDelta.String(), r.Harvested.String(),
		r.RewardPaid.String(), r.FeePaid.String(), r.AccRewardPerShare.String(), transfersJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save receipt %s: %w", r.ID, err)
	}
	return nil
}

// RecentReceipts returns the newest receipts first.
func (s *Store) RecentReceipts(ctx context.Context, limit int) ([]types.Receipt, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	limit = clampLimit(limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			receipt_id, can_address, kind, caller_address, recipient_address, receipt_timestamp,
			principal::TEXT, liquidity_delta::TEXT, harvested::TEXT, reward_paid::TEXT, fee_paid::TEXT,
			acc_reward_per_share::TEXT, transfers
		FROM can_receipts
		ORDER BY receipt_timestamp DESC
		LIMIT $1;`, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to query recent receipts")
		return nil, fmt.Errorf("failed to query recent receipts: %w", err)
	}
	defer rows.Close()

	var receipts []types.Receipt
	for rows.Next() {
		var r types.Receipt
		var can, kind, caller, recipient string
		var amounts [6]string
		var transfersJSON []byte
		err := rows.Scan(
			&r.ID, &can, &kind, &caller, &recipient, &r.Timestamp,
			&amounts[0], &amounts[1], &amounts[2], &amounts[3], &amounts[4], &amounts[5],
			&transfersJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt row: %w", err)
		}
		r.Can = common.HexToAddress(can)
		r.Kind = types.OperationKind(kind)
		r.Caller = common.HexToAddress(caller)
		r.Recipient = common.HexToAddress(recipient)

		targets := []*sdkmath.Int{&r.Principal, &r.LiquidityDelta, &r.Harvested, &r.RewardPaid, &r.FeePaid, &r.AccRewardPerShare}
		for i, target := range targets {
			v, err := parseInt(amounts[i])
			if err != nil {
				return nil, fmt.Errorf("receipt %s: %w", r.ID, err)
			}
			*target = v
		}
		if len(transfersJSON) > 0 {
			if err := json.Unmarshal(transfersJSON, &r.Transfers); err != nil {
				return nil, fmt.Errorf("failed to unmarshal transfers of receipt %s: %w", r.ID, err)
			}
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error().Err(err).Msg("Error occurred during row iteration")
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	s.logger.Debug().Int("count", len(receipts)).Int("limit", limit).Msg("Retrieved recent receipts")
	return receipts, nil
}
