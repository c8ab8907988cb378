package indexer

import (
	"context"
	"embed"
	"fmt"
	"path"
	"sort"

	"github.com/adlio/schema"
	"github.com/canopy-network/ledgerx/pkg/db/postgres"
	"github.com/canopy-network/ledgerx/pkg/indexer/metadata"
	"github.com/canopy-network/ledgerx/pkg/metrics"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

var (
	_ metadata.Handle       = (*DB)(nil)
	_ metadata.TailerHandle = (*DB)(nil)
)

// DB is the Postgres store of the indexer: row families, processor statuses and ledger info.
type DB struct {
	postgres.Client
	Name string
}

// NewWithPoolConfig connects to dsn and applies pending migrations.
func NewWithPoolConfig(ctx context.Context, logger *zap.Logger, dsn string, m *metrics.Metrics, poolConfig postgres.PoolConfig) (*DB, error) {
	client, err := postgres.New(ctx, logger.With(
		zap.String("component", poolConfig.Component),
	), dsn, m, &poolConfig)
	if err != nil {
		return nil, err
	}

	db := &DB{
		Client: client,
		Name:   client.Pool.Config().ConnConfig.Database,
	}

	if err := db.InitializeDB(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// InitializeDB ensures the required tables exist
func (db *DB) InitializeDB(ctx context.Context) error {
	db.Logger.Info("Initializing indexer database", zap.String("database", db.Name))

	migrations, err := Migrations()
	if err != nil {
		return err
	}
	if err := db.Migrate(migrations); err != nil {
		return fmt.Errorf("initialize %s: %w", db.Name, err)
	}

	db.Logger.Info("Indexer database ready",
		zap.String("database", db.Name),
		zap.Int("migrations", len(migrations)),
	)
	return nil
}

// Migrations returns the embedded schema migrations, ordered by file name.
func Migrations() ([]*schema.Migration, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	migrations := make([]*schema.Migration, 0, len(entries))
	for _, entry := range entries {
		script, err := migrationFS.ReadFile(path.Join("migrations", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		migrations = append(migrations, &schema.Migration{
			ID:     entry.Name(),
			Script: string(script),
		})
	}
	return migrations, nil
}
