package main

import (
	"errors"

	"github.com/canopy-network/ledgerx/app/indexer"
	"github.com/canopy-network/ledgerx/pkg/db/postgres"
	pgindexer "github.com/canopy-network/ledgerx/pkg/db/postgres/indexer"
	"github.com/canopy-network/ledgerx/pkg/logging"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Applies pending schema migrations and exits",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dsn := v.GetString(indexer.KeyPostgresURL)
		if dsn == "" || dsn == indexer.MemoryDSN {
			return errors.New("migrate needs a postgres-url")
		}

		logger, err := logging.New(v.GetString(indexer.KeyLogLevel), v.GetString(indexer.KeyLogEncoding))
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		// opening the store applies pending migrations
		db, err := pgindexer.NewWithPoolConfig(cmd.Context(), logger, dsn, nil, *postgres.GetPoolConfigForComponent("status"))
		if err != nil {
			return err
		}
		db.Close()
		return nil
	},
}
