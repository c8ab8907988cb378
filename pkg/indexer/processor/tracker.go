package processor

import (
	"context"

	"github.com/canopy-network/ledgerx/pkg/indexer/metadata"
	"github.com/canopy-network/ledgerx/pkg/metrics"
	"github.com/canopy-network/ledgerx/pkg/rpc"
	"go.uber.org/zap"
)

// Tracker wraps processor invocations with status bookkeeping and metrics.
type Tracker struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// NewTracker returns a Tracker. A nil m records nothing.
func NewTracker(logger *zap.Logger, m *metrics.Metrics) Tracker {
	if m == nil {
		m = metrics.NopMetrics()
	}
	return Tracker{Logger: logger, Metrics: m}
}

// ProcessWithStatus runs p over txns, which must be non-empty and contiguous.
//
// The range is marked started before p runs, so a crash at any later point leaves it
// visible to GetErrorVersions. On success the range is marked successful; on failure
// every version of the range gets an error row carrying the formatted error, and the
// *Error is returned. Failures to write status rows are returned as *metadata.StoreError.
func (t Tracker) ProcessWithStatus(ctx context.Context, p Processor, txns []rpc.Transaction) (Result, error) {
	if len(txns) == 0 {
		panic("ProcessWithStatus called with no transactions")
	}

	name := p.Name()
	start := txns[0].Version.Uint64()
	end := txns[len(txns)-1].Version.Uint64()
	handle := p.MetadataHandle()
	logger := t.Logger.With(
		zap.String("processor", name),
		zap.Uint64("start_version", start),
		zap.Uint64("end_version", end),
	)

	t.Metrics.ProcessorInvocations.With(metrics.ProcessorLabel, name).Add(1)

	logger.Debug("Marking versions as started")
	if err := handle.ApplyProcessorStatus(ctx, metadata.StartedRows(name, start, end)); err != nil {
		return Result{}, metadata.WrapStoreError("mark started", err)
	}

	result, procErr := p.ProcessTransactions(ctx, txns, start, end)
	if procErr != nil {
		perr := asError(name, start, end, procErr)
		t.Metrics.ProcessorErrors.With(metrics.ProcessorLabel, name).Add(1)
		logger.Error("Processing failed, marking versions as errored", zap.Error(perr))

		if err := handle.ApplyProcessorStatus(ctx, metadata.ErrorRows(name, start, end, perr.Error())); err != nil {
			return Result{}, metadata.WrapStoreError("mark error", err)
		}
		return Result{}, perr
	}

	logger.Debug("Marking versions as successful")
	if err := handle.ApplyProcessorStatus(ctx, metadata.SuccessRows(name, start, end)); err != nil {
		return Result{}, metadata.WrapStoreError("mark success", err)
	}
	t.Metrics.ProcessorSuccesses.With(metrics.ProcessorLabel, name).Add(1)

	return result, nil
}
