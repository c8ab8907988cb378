package main

import (
	"context"
	"errors"

	"github.com/canopy-network/ledgerx/app/indexer"
	"github.com/canopy-network/ledgerx/pkg/indexer/reporter"
	"github.com/canopy-network/ledgerx/pkg/logging"
	"github.com/canopy-network/ledgerx/pkg/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs the tailer and the status API until interrupted",
	RunE:  runE,
}

func init() {
	flags := runCmd.Flags()
	flags.String(indexer.KeyProcessors, indexer.DefaultProcessors, "Comma separated processors to run")
	flags.String(indexer.KeyStartingVersion, "", "First version for processors without any status row")
	flags.Uint64(indexer.KeyBatchSize, 500, "Versions fetched per iteration")
	flags.Uint64(indexer.KeyRetryBatchSize, 100, "Versions re-processed together when retrying")
	flags.Uint64(indexer.KeyMaxRetryVersions, 1000, "Error versions retried per processor per iteration")
	flags.Uint64(indexer.KeyPageSize, 1000, "Transactions requested per upstream call")
	flags.Int(indexer.KeyUpstreamRPS, 20, "Upstream requests per second")
	flags.String(indexer.KeyStatusAddr, ":3000", "Status API listen address")
	flags.String(indexer.KeyReportSpec, reporter.DefaultSpec, "Cron spec of the status report")
	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}
}

func runE(cmd *cobra.Command, _ []string) error {
	cfg, err := indexer.LoadConfig(v)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	app, err := indexer.Initialize(ctx, cfg, logger, metrics.PrometheusMetrics(cfg.MetricsNamespace))
	if err != nil {
		logger.Error("Unable to initialize indexer", zap.Error(err))
		return err
	}

	err = app.Start(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
