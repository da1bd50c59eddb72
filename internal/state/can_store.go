package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/elys-network/candyshop/internal/types"
)

// SaveCan upserts the can record and every user entry carried by snap.
func (s *Store) SaveCan(ctx context.Context, snap types.CanSnapshot) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return saveCanTx(ctx, tx, snap)
	})
	if err != nil {
		return err
	}

	s.logger.Debug().
		Str("can", snap.Address.Hex()).
		Int("users", len(snap.Users)).
		Str("totalProvided", snap.Info.TotalProvidedAmount.String()).
		Msg("Can saved to database")
	return nil
}

// SaveOperation stores the can snapshot and the receipt of one operation in a
// single transaction.
func (s *Store) SaveOperation(ctx context.Context, snap types.CanSnapshot, r types.Receipt) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	if r.ID == uuid.Nil {
		return fmt.Errorf("%w: receipt has no id", ErrInvalidReceipt)
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := saveCanTx(ctx, tx, snap); err != nil {
			return err
		}
		return saveReceiptTx(ctx, tx, r)
	})
	if err != nil {
		return err
	}

	s.logger.Debug().
		Str("can", snap.Address.Hex()).
		Str("receipt", r.ID.String()).
		Str("kind", string(r.Kind)).
		Msg("Operation saved to database")
	return nil
}

func saveCanTx(ctx context.Context, tx *sql.Tx, snap types.CanSnapshot) error {
	infoJSON, err := json.Marshal(snap.Info)
	if err != nil {
		return fmt.Errorf("failed to marshal can info: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cans (can_address, owner_address, fee_receiver, revert_flag, info)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (can_address) DO UPDATE SET
			owner_address = EXCLUDED.owner_address,
			fee_receiver = EXCLUDED.fee_receiver,
			revert_flag = EXCLUDED.revert_flag,
			info = EXCLUDED.info,
			updated_at = CURRENT_TIMESTAMP;`,
		snap.Address.Hex(), snap.Owner.Hex(), snap.FeeReceiver.Hex(), snap.RevertFlag, infoJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert can %s: %w", snap.Address.Hex(), err)
	}

	for _, rec := range snap.Users {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO can_users (can_address, user_address, provided_amount, reward_debt, aggregated_reward)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (can_address, user_address) DO UPDATE SET
				provided_amount = EXCLUDED.provided_amount,
				reward_debt = EXCLUDED.reward_debt,
				aggregated_reward = EXCLUDED.aggregated_reward,
				updated_at = CURRENT_TIMESTAMP;`,
			snap.Address.Hex(), rec.User.Hex(),
			rec.Info.ProvidedAmount.String(), rec.Info.RewardDebt.String(), rec.Info.AggregatedReward.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert user %s of can %s: %w", rec.User.Hex(), snap.Address.Hex(), err)
		}
	}
	return nil
}

// LoadCans returns every persisted can with all of its users, oldest first.
func (s *Store) LoadCans(ctx context.Context) ([]types.CanSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT can_address, owner_address, fee_receiver, revert_flag, info
		FROM cans
		ORDER BY created_at ASC, can_address ASC;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cans: %w", err)
	}
	defer rows.Close()

	var snaps []types.CanSnapshot
	for rows.Next() {
		var addr, owner, feeReceiver string
		var infoJSON []byte
		var snap types.CanSnapshot
		if err := rows.Scan(&addr, &owner, &feeReceiver, &snap.RevertFlag, &infoJSON); err != nil {
			return nil, fmt.Errorf("failed to scan can row: %w", err)
		}
		if err := json.Unmarshal(infoJSON, &snap.Info); err != nil {
			return nil, fmt.Errorf("failed to unmarshal info of can %s: %w", addr, err)
		}
		snap.Address = common.HexToAddress(addr)
		snap.Owner = common.HexToAddress(owner)
		snap.FeeReceiver = common.HexToAddress(feeReceiver)
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	for i := range snaps {
		users, err := s.loadUsers(ctx, snaps[i].Address)
		if err != nil {
			return nil, err
		}
		snaps[i].Users = users
	}

	s.logger.Info().Int("count", len(snaps)).Msg("Loaded cans from database")
	return snaps, nil
}

func (s *Store) loadUsers(ctx context.Context, can common.Address) ([]types.UserRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_address, provided_amount::TEXT, reward_debt::TEXT, aggregated_reward::TEXT
		FROM can_users
		WHERE can_address = $1
		ORDER BY user_address ASC;`, can.Hex())
	if err != nil {
		return nil, fmt.Errorf("failed to query users of can %s: %w", can.Hex(), err)
	}
	defer rows.Close()

	var users []types.UserRecord
	for rows.Next() {
		var user, provided, debt, aggregated string
		if err := rows.Scan(&user, &provided, &debt, &aggregated); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		info, err := parseUserInfo(provided, debt, aggregated)
		if err != nil {
			return nil, fmt.Errorf("user %s of can %s: %w", user, can.Hex(), err)
		}
		users = append(users, types.UserRecord{User: common.HexToAddress(user), Info: info})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return users, nil
}

func parseUserInfo(provided, debt, aggregated string) (types.UserInfo, error) {
	var info types.UserInfo
	var err error
	if info.ProvidedAmount, err = parseInt(provided); err != nil {
		return info, err
	}
	if info.RewardDebt, err = parseInt(debt); err != nil {
		return info, err
	}
	if info.AggregatedReward, err = parseInt(aggregated); err != nil {
		return info, err
	}
	return info, nil
}

func parseInt(s string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("invalid integer %q", s)
	}
	return v, nil
}
