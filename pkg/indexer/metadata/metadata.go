// Package metadata defines the processor status store shared by every processor.
//
// The status table is the single source of truth for what has been indexed: a
// (name, version) row is first written as started, then overwritten either to
// success (atomically with the version's rows) or to an error carrying details.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"time"

	adminmodels "github.com/canopy-network/ledgerx/pkg/db/models/admin"
	"github.com/canopy-network/ledgerx/pkg/utils"
)

// Handle reads and writes processor status rows.
type Handle interface {
	// GetMaxVersion returns the largest version with a status row for name, regardless of
	// success. It returns nil when the processor has never run.
	GetMaxVersion(ctx context.Context, name string) (*uint64, error)
	// GetErrorVersions returns every version of name with success=false in ascending order,
	// covering both errored and started-but-never-finished versions.
	GetErrorVersions(ctx context.Context, name string) ([]uint64, error)
	// ApplyProcessorStatus upserts rows by (name, version), overwriting success, details
	// and last_updated.
	ApplyProcessorStatus(ctx context.Context, rows []adminmodels.ProcessorStatus) error
}

// TailerHandle stores the identity of the upstream ledger.
type TailerHandle interface {
	// GetLedgerInfo returns nil when nothing has been recorded yet.
	GetLedgerInfo(ctx context.Context) (*adminmodels.LedgerInfo, error)
	SetLedgerInfo(ctx context.Context, info adminmodels.LedgerInfo) error
}

// StoreError reports a failed read or write against the status store. The tailer
// cannot make progress without the store, so it stops on these.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("metadata store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// WrapStoreError wraps err in a StoreError unless it already is one.
func WrapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// IsStoreError reports whether err is, or wraps, a StoreError.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// StatusRows builds one status row per version in [start, end].
func StatusRows(name string, start, end uint64, success bool, details *string) []adminmodels.ProcessorStatus {
	if end < start {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]adminmodels.ProcessorStatus, 0, end-start+1)
	for v := start; ; v++ {
		rows = append(rows, adminmodels.ProcessorStatus{
			Name:        name,
			Version:     utils.U64ToDecimal(v),
			Success:     success,
			Details:     details,
			LastUpdated: now,
		})
		if v == end {
			break
		}
	}
	return rows
}

// StartedRows marks [start, end] as in progress.
func StartedRows(name string, start, end uint64) []adminmodels.ProcessorStatus {
	return StatusRows(name, start, end, false, nil)
}

// SuccessRows marks [start, end] as committed.
func SuccessRows(name string, start, end uint64) []adminmodels.ProcessorStatus {
	return StatusRows(name, start, end, true, nil)
}

// ErrorRows marks [start, end] as failed with details.
func ErrorRows(name string, start, end uint64, details string) []adminmodels.ProcessorStatus {
	return StatusRows(name, start, end, false, &details)
}
