package processor

import (
	"context"

	"github.com/canopy-network/ledgerx/pkg/indexer/metadata"
	"github.com/canopy-network/ledgerx/pkg/rpc"
)

// Processor turns a contiguous range of transactions into durable side effects.
// Processors share nothing with each other besides the status store, partitioned by Name.
type Processor interface {
	// Name identifies the processor in status rows and metrics. It must not change.
	Name() string
	// MetadataHandle is the status store the processor reads and writes.
	MetadataHandle() metadata.Handle
	// ProcessTransactions succeeds iff every row derived from txns has been committed.
	// Failures are returned as *Error.
	ProcessTransactions(ctx context.Context, txns []rpc.Transaction, start, end uint64) (Result, error)
}

// Result describes a committed range.
type Result struct {
	Name         string `json:"name"`
	StartVersion uint64 `json:"startVersion"`
	EndVersion   uint64 `json:"endVersion"`
}

// Count returns the number of versions in the range.
func (r Result) Count() uint64 {
	return r.EndVersion - r.StartVersion + 1
}
