package indexer

import (
	"context"

	adminmodels "github.com/canopy-network/ledgerx/pkg/db/models/admin"
	"github.com/canopy-network/ledgerx/pkg/indexer/metadata"
	"github.com/canopy-network/ledgerx/pkg/utils"
	"github.com/shopspring/decimal"
)

// GetMaxVersion returns the largest version with a status row for name, or nil.
func (db *DB) GetMaxVersion(ctx context.Context, name string) (*uint64, error) {
	query := `SELECT MAX(version) FROM processor_statuses WHERE name = $1`

	conn, err := db.Acquire(ctx)
	if err != nil {
		return nil, metadata.WrapStoreError("get max version", err)
	}
	defer conn.Release()

	var max decimal.NullDecimal
	if err := conn.QueryRow(ctx, query, name).Scan(&max); err != nil {
		return nil, metadata.WrapStoreError("get max version", err)
	}
	if !max.Valid {
		return nil, nil
	}

	v := utils.DecimalToU64(max.Decimal)
	return &v, nil
}

// GetErrorVersions returns every version of name with success=false, ascending.
func (db *DB) GetErrorVersions(ctx context.Context, name string) ([]uint64, error) {
	query := `
		SELECT version
		FROM processor_statuses
		WHERE name = $1 AND NOT success
		ORDER BY version ASC
	`

	conn, err := db.Acquire(ctx)
	if err != nil {
		return nil, metadata.WrapStoreError("get error versions", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, name)
	if err != nil {
		return nil, metadata.WrapStoreError("get error versions", err)
	}
	defer rows.Close()

	versions := make([]uint64, 0)
	for rows.Next() {
		var v decimal.Decimal
		if err := rows.Scan(&v); err != nil {
			return nil, metadata.WrapStoreError("get error versions", err)
		}
		versions = append(versions, utils.DecimalToU64(v))
	}
	if err := rows.Err(); err != nil {
		return nil, metadata.WrapStoreError("get error versions", err)
	}

	return versions, nil
}

// ApplyProcessorStatus upserts rows by (name, version).
func (db *DB) ApplyProcessorStatus(ctx context.Context, rows []adminmodels.ProcessorStatus) error {
	if len(rows) == 0 {
		return nil
	}

	conn, err := db.Acquire(ctx)
	if err != nil {
		return metadata.WrapStoreError("apply processor status", err)
	}
	defer conn.Release()

	if err := upsertStatuses(ctx, conn, rows); err != nil {
		return metadata.WrapStoreError("apply processor status", err)
	}
	return nil
}
