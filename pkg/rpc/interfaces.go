package rpc

import (
	"context"
)

// Client captures the upstream REST calls used by the fetcher.
type Client interface {
	LedgerInfo(ctx context.Context) (*LedgerInfo, error)
	Transactions(ctx context.Context, start uint64, limit uint16) ([]Transaction, error)
}

var _ Client = (*HTTPClient)(nil)
