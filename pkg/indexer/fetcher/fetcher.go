package fetcher

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/canopy-network/ledgerx/pkg/retry"
	"github.com/canopy-network/ledgerx/pkg/rpc"
	"go.uber.org/zap"
)

// MaxPageSize is the largest page requested from the upstream in one call.
const MaxPageSize = 1000

// Fetcher retrieves contiguous ranges of transactions.
type Fetcher interface {
	// Fetch returns transactions with versions [start, start+count) in order. It returns
	// fewer when the upstream is caught up. Upstream failures are retried internally.
	Fetch(ctx context.Context, start uint64, count uint64) ([]rpc.Transaction, error)
	// LedgerInfo returns the upstream identity and head.
	LedgerInfo(ctx context.Context) (*rpc.LedgerInfo, error)
}

// Config tunes paging and retry.
type Config struct {
	PageSize uint16
	Retry    retry.Config
}

// DefaultConfig pages at MaxPageSize and retries forever.
func DefaultConfig() Config {
	return Config{
		PageSize: MaxPageSize,
		Retry:    retry.Forever(500*time.Millisecond, 30*time.Second),
	}
}

// Upstream is a Fetcher over an rpc.Client.
type Upstream struct {
	client rpc.Client
	cfg    Config
	logger *zap.Logger
}

var _ Fetcher = (*Upstream)(nil)

// New returns an Upstream fetcher.
func New(client rpc.Client, cfg Config, logger *zap.Logger) *Upstream {
	if cfg.PageSize == 0 || cfg.PageSize > MaxPageSize {
		cfg.PageSize = MaxPageSize
	}
	return &Upstream{client: client, cfg: cfg, logger: logger}
}

func (f *Upstream) Fetch(ctx context.Context, start uint64, count uint64) ([]rpc.Transaction, error) {
	if count == 0 {
		return nil, nil
	}
	// versions stop at 2^64-1
	if count > math.MaxUint64-start {
		count = math.MaxUint64 - start + 1
	}

	out := make([]rpc.Transaction, 0, minU64(count, uint64(f.cfg.PageSize)))
	next := start
	for uint64(len(out)) < count {
		limit := minU64(count-uint64(len(out)), uint64(f.cfg.PageSize))

		var page []rpc.Transaction
		err := retry.WithBackoff(ctx, f.cfg.Retry, f.logger, "fetch_transactions", func() error {
			txns, err := f.client.Transactions(ctx, next, uint16(limit))
			if err != nil {
				return err
			}
			page = txns
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("fetch transactions from %d: %w", next, err)
		}

		if uint64(len(page)) > limit {
			page = page[:limit]
		}
		for i := range page {
			if want := next + uint64(i); page[i].Version.Uint64() != want {
				return nil, fmt.Errorf("upstream returned version %d, expected %d", page[i].Version.Uint64(), want)
			}
		}

		out = append(out, page...)
		if uint64(len(page)) < limit {
			break
		}
		next += uint64(len(page))
	}

	f.logger.Debug("Fetched transactions",
		zap.Uint64("start_version", start),
		zap.Uint64("requested", count),
		zap.Int("fetched", len(out)),
	)
	return out, nil
}

func (f *Upstream) LedgerInfo(ctx context.Context) (*rpc.LedgerInfo, error) {
	var info *rpc.LedgerInfo
	err := retry.WithBackoff(ctx, f.cfg.Retry, f.logger, "ledger_info", func() error {
		got, err := f.client.LedgerInfo(ctx)
		if err != nil {
			return err
		}
		info = got
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch ledger info: %w", err)
	}
	return info, nil
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
