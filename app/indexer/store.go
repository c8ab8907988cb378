package indexer

import (
	"context"
	"fmt"

	"github.com/canopy-network/ledgerx/pkg/db/memory"
	"github.com/canopy-network/ledgerx/pkg/db/postgres"
	pgindexer "github.com/canopy-network/ledgerx/pkg/db/postgres/indexer"
	"github.com/canopy-network/ledgerx/pkg/indexer/metadata"
	"github.com/canopy-network/ledgerx/pkg/indexer/processor"
	"github.com/canopy-network/ledgerx/pkg/metrics"
	"go.uber.org/zap"
)

// DefaultProcessors is the processor list used when none is configured.
const DefaultProcessors = processor.DefaultName

// Backend is a store every processor and the tailer can share.
type Backend interface {
	processor.RangeStore
	metadata.TailerHandle
}

var (
	_ Backend = (*memory.Store)(nil)
	_ Backend = (*pgindexer.DB)(nil)
)

type processorFactory func(store Backend, logger *zap.Logger) processor.Processor

var processorFactories = map[string]processorFactory{
	processor.DefaultName: func(store Backend, logger *zap.Logger) processor.Processor {
		return processor.NewDefault(store, logger)
	},
}

// openBackend connects to the configured store. The returned func releases it.
func openBackend(ctx context.Context, cfg Config, logger *zap.Logger, m *metrics.Metrics) (Backend, func(), error) {
	if cfg.PostgresURL == MemoryDSN {
		logger.Warn("Using the in-memory store, nothing will be persisted")
		return memory.New(), func() {}, nil
	}

	db, err := pgindexer.NewWithPoolConfig(ctx, logger, cfg.PostgresURL, m, *postgres.GetPoolConfigForComponent("indexer"))
	if err != nil {
		return nil, nil, fmt.Errorf("open indexer database: %w", err)
	}
	return db, db.Close, nil
}

func buildProcessors(names []string, store Backend, logger *zap.Logger) ([]processor.Processor, error) {
	out := make([]processor.Processor, 0, len(names))
	for _, name := range names {
		factory, ok := processorFactories[name]
		if !ok {
			return nil, fmt.Errorf("unknown processor %q", name)
		}
		out = append(out, factory(store, logger))
	}
	return out, nil
}
