package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/canopy-network/ledgerx/app/indexer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:          "indexer",
	Short:        "Mirrors ledger transactions from a REST upstream into Postgres",
	SilenceUsage: true,
}

func init() {
	indexer.SetDefaults(v)

	flags := rootCmd.PersistentFlags()
	flags.String(indexer.KeyPostgresURL, "", "Postgres DSN, or memory:// for a dry run")
	flags.String(indexer.KeyUpstreamURL, "", "Comma separated upstream REST endpoints, e.g. http://node:8080/v1")
	flags.String(indexer.KeyLogLevel, "info", "Log level: trace, debug, info, warn or error")
	flags.String(indexer.KeyLogEncoding, "json", "Log encoding: json or console")
	flags.String(indexer.KeyRedisURL, "", "Redis URL for committed range notifications")
	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(runCmd, migrateCmd, watchCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
