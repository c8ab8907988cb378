package processor

import (
	"context"

	indexermodels "github.com/canopy-network/ledgerx/pkg/db/models/indexer"
	"github.com/canopy-network/ledgerx/pkg/db/transform"
	"github.com/canopy-network/ledgerx/pkg/indexer/metadata"
	"github.com/canopy-network/ledgerx/pkg/logging"
	"github.com/canopy-network/ledgerx/pkg/rpc"
	"go.uber.org/zap"
)

// DefaultName is the status name of the default processor.
const DefaultName = "default"

// RangeStore persists the rows of a range and the range's success status in one
// read-write transaction. Nothing is visible unless WriteRange returns nil.
type RangeStore interface {
	metadata.Handle
	WriteRange(ctx context.Context, name string, start, end uint64, rows *indexermodels.RowSet) error
}

// Default writes transactions, user transactions, block metadata transactions,
// events and write set changes.
type Default struct {
	store  RangeStore
	logger *zap.Logger
}

// NewDefault returns the default processor backed by store.
func NewDefault(store RangeStore, logger *zap.Logger) *Default {
	return &Default{
		store:  store,
		logger: logger.With(zap.String("processor", DefaultName)),
	}
}

func (d *Default) Name() string { return DefaultName }

func (d *Default) MetadataHandle() metadata.Handle { return d.store }

func (d *Default) ProcessTransactions(ctx context.Context, txns []rpc.Transaction, start, end uint64) (Result, error) {
	rows, err := transform.FromTransactions(txns)
	if err != nil {
		return Result{}, NewParsingError(DefaultName, start, end, err)
	}

	logging.Trace(d.logger, "Inserting versions",
		zap.Uint64("start_version", start),
		zap.Uint64("end_version", end),
		zap.Int("rows", rows.Len()),
	)

	if err := d.store.WriteRange(ctx, DefaultName, start, end, rows); err != nil {
		return Result{}, NewCommitError(DefaultName, start, end, err)
	}

	return Result{Name: DefaultName, StartVersion: start, EndVersion: end}, nil
}
