package indexer

import (
	"context"
	"fmt"

	adminmodels "github.com/canopy-network/ledgerx/pkg/db/models/admin"
	"github.com/canopy-network/ledgerx/pkg/db/postgres"
	"github.com/jackc/pgx/v5"
)

// GetLedgerInfo returns the recorded chain id, or nil when none is recorded.
func (db *DB) GetLedgerInfo(ctx context.Context) (*adminmodels.LedgerInfo, error) {
	query := `SELECT chain_id FROM ledger_infos LIMIT 1`

	conn, err := db.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	var info adminmodels.LedgerInfo
	if err := conn.QueryRow(ctx, query).Scan(&info.ChainID); err != nil {
		if postgres.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query ledger info: %w", err)
	}

	return &info, nil
}

// SetLedgerInfo replaces the recorded chain id. The table holds a single row.
func (db *DB) SetLedgerInfo(ctx context.Context, info adminmodels.LedgerInfo) error {
	return db.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM ledger_infos`); err != nil {
			return fmt.Errorf("clear ledger info: %w", err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO ledger_infos (chain_id) VALUES ($1)`, info.ChainID); err != nil {
			return fmt.Errorf("insert ledger info: %w", err)
		}
		return nil
	})
}
