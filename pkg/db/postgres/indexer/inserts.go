package indexer

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	adminmodels "github.com/canopy-network/ledgerx/pkg/db/models/admin"
	indexermodels "github.com/canopy-network/ledgerx/pkg/db/models/indexer"
	"github.com/canopy-network/ledgerx/pkg/db/postgres"
	"github.com/canopy-network/ledgerx/pkg/indexer/metadata"
	"github.com/canopy-network/ledgerx/pkg/logging"
	"github.com/canopy-network/ledgerx/pkg/utils"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const statusUpsertSuffix = `ON CONFLICT (name, version) DO UPDATE SET
	success = EXCLUDED.success,
	details = EXCLUDED.details,
	last_updated = EXCLUDED.last_updated`

// WriteRange inserts every row family of rows and marks [start, end] successful for name
// in one read-write transaction. Families are inserted in the order of RowSet.Families.
func (db *DB) WriteRange(ctx context.Context, name string, start, end uint64, rows *indexermodels.RowSet) error {
	logging.Trace(db.Logger, "Writing range",
		zap.String("processor", name),
		zap.Uint64("start_version", start),
		zap.Uint64("end_version", end),
	)

	return db.BeginFunc(ctx, func(tx pgx.Tx) error {
		for _, family := range rows.Families() {
			if err := insertRows(ctx, tx, family); err != nil {
				return err
			}
		}
		return upsertStatuses(ctx, tx, metadata.SuccessRows(name, start, end))
	})
}

// insertRows inserts rows of one family, chunked under the statement parameter limit.
// Existing rows are left untouched.
func insertRows(ctx context.Context, exec postgres.Executor, rows []indexermodels.Row) error {
	if len(rows) == 0 {
		return nil
	}

	table := rows[0].Table()
	columns := rows[0].Columns()
	for _, chunk := range utils.GetChunks(len(rows), indexermodels.FieldCount(rows[0])) {
		builder := sq.
			Insert(table).
			Columns(columns...).
			PlaceholderFormat(sq.Dollar).
			Suffix("ON CONFLICT DO NOTHING")
		for _, row := range rows[chunk.Start:chunk.End] {
			builder = builder.Values(row.Values()...)
		}

		if err := execBuilder(ctx, exec, builder); err != nil {
			return fmt.Errorf("insert %s rows [%d, %d): %w", table, chunk.Start, chunk.End, err)
		}
	}
	return nil
}

// upsertStatuses writes status rows, overwriting success, details and last_updated.
func upsertStatuses(ctx context.Context, exec postgres.Executor, rows []adminmodels.ProcessorStatus) error {
	if len(rows) == 0 {
		return nil
	}

	columns := adminmodels.ProcessorStatus{}.Columns()
	for _, chunk := range utils.GetChunks(len(rows), len(columns)) {
		builder := sq.
			Insert(adminmodels.ProcessorStatusTable).
			Columns(columns...).
			PlaceholderFormat(sq.Dollar).
			Suffix(statusUpsertSuffix)
		for _, row := range rows[chunk.Start:chunk.End] {
			builder = builder.Values(row.Values()...)
		}

		if err := execBuilder(ctx, exec, builder); err != nil {
			return fmt.Errorf("upsert %s rows [%d, %d): %w", adminmodels.ProcessorStatusTable, chunk.Start, chunk.End, err)
		}
	}
	return nil
}

func execBuilder(ctx context.Context, exec postgres.Executor, builder sq.InsertBuilder) error {
	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build statement: %w", err)
	}
	_, err = exec.Exec(ctx, query, args...)
	return err
}
