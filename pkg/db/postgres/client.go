package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adlio/schema"
	"github.com/canopy-network/ledgerx/pkg/metrics"
	"github.com/canopy-network/ledgerx/pkg/retry"
	"github.com/canopy-network/ledgerx/pkg/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// DefaultAcquireTimeout bounds a single attempt to obtain a pooled connection.
const DefaultAcquireTimeout = 30 * time.Second

// Executor is an interface that *pgxpool.Pool, *pgxpool.Conn and pgx.Tx implement.
// This allows methods to work with either a connection or a transaction.
type Executor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Client wraps a PostgreSQL connection pool and provides helper methods
type Client struct {
	Logger  *zap.Logger
	Pool    *pgxpool.Pool
	Metrics *metrics.Metrics

	acquireTimeout time.Duration
	acquireRetry   retry.Config
}

// PoolConfig defines connection pool settings for a specific component
type PoolConfig struct {
	MinConns        int32
	MaxConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	Component       string // For logging/debugging

	// AcquireTimeout bounds each attempt of Acquire.
	AcquireTimeout time.Duration
	// AcquireRetry paces Acquire attempts; unbounded unless MaxRetries is set.
	AcquireRetry retry.Config
}

// New initializes and returns a new PostgreSQL client for dsn.
// Accepts optional poolConfig parameter for component-specific pool sizing.
func New(ctx context.Context, logger *zap.Logger, dsn string, m *metrics.Metrics, poolConfig ...*PoolConfig) (client Client, err error) {
	// Add timeout to context for initial connection
	connCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if m == nil {
		m = metrics.NopMetrics()
	}
	client.Logger = logger
	client.Metrics = m
	retryConfig := retry.DefaultConfig()

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return Client{}, fmt.Errorf("failed to parse postgres url: %w", err)
	}

	// Connection pool settings - use provided config or fallback to defaults
	var poolConf PoolConfig
	if len(poolConfig) > 0 && poolConfig[0] != nil {
		poolConf = *poolConfig[0]
	} else {
		poolConf = *GetPoolConfigForComponent("unknown")
	}
	if poolConf.AcquireTimeout <= 0 {
		poolConf.AcquireTimeout = DefaultAcquireTimeout
	}
	if poolConf.AcquireRetry.InitialDelay <= 0 {
		poolConf.AcquireRetry = retry.Fixed(time.Second, 0)
	}
	client.acquireTimeout = poolConf.AcquireTimeout
	client.acquireRetry = poolConf.AcquireRetry

	// Apply pool configuration
	config.MinConns = poolConf.MinConns
	config.MaxConns = poolConf.MaxConns
	config.MaxConnLifetime = poolConf.ConnMaxLifetime
	config.MaxConnIdleTime = poolConf.ConnMaxIdleTime

	retryErr := retry.WithBackoff(connCtx, retryConfig, logger, "postgres_connection", func() error {
		pool, openErr := pgxpool.NewWithConfig(connCtx, config)
		if openErr != nil {
			return fmt.Errorf("failed to create postgres connection pool: %w", openErr)
		}

		logger.Debug("Pinging PostgreSQL connection",
			zap.String("database", config.ConnConfig.Database),
			zap.String("component", poolConf.Component),
		)

		// Ping to verify connection
		pingErr := pool.Ping(connCtx)
		if pingErr != nil {
			pool.Close()
			return fmt.Errorf("failed to ping postgres: %w", pingErr)
		}
		client.Pool = pool

		logger.Info("PostgreSQL connection pool configured",
			zap.String("database", config.ConnConfig.Database),
			zap.String("component", poolConf.Component),
			zap.Int32("min_conns", poolConf.MinConns),
			zap.Int32("max_conns", poolConf.MaxConns),
			zap.Duration("conn_max_lifetime", poolConf.ConnMaxLifetime),
			zap.Duration("conn_max_idle_time", poolConf.ConnMaxIdleTime),
			zap.Duration("acquire_timeout", poolConf.AcquireTimeout),
		)

		return nil
	})

	if retryErr != nil {
		return Client{}, retryErr
	}

	return client, nil
}

// Acquire returns a pooled connection, retrying until one is available or ctx is done.
// Each attempt is bounded by the acquire timeout. The caller must Release the connection.
func (c *Client) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	var conn *pgxpool.Conn
	err := retry.WithBackoff(ctx, c.acquireRetry, c.Logger, "postgres_acquire", func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.acquireTimeout)
		defer cancel()

		got, err := c.Pool.Acquire(attemptCtx)
		if err != nil {
			c.Metrics.UnableToGetConnection.Add(1)
			c.Logger.Error("Could not get DB connection from pool, will retry",
				zap.Duration("timeout", c.acquireTimeout),
				zap.Error(err),
			)
			return err
		}
		conn = got
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	c.Metrics.GotConnection.Add(1)
	return conn, nil
}

// Exec executes a query without returning any rows
func (c *Client) Exec(ctx context.Context, query string, args ...any) error {
	_, err := c.Pool.Exec(ctx, query, args...)
	return err
}

// QueryRow executes a query that is expected to return at most one row
func (c *Client) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return c.Pool.QueryRow(ctx, query, args...)
}

// BeginFunc executes fn within a read-write transaction on a freshly acquired connection.
// If fn returns an error, the transaction is rolled back. Otherwise, it is committed.
func (c *Client) BeginFunc(ctx context.Context, fn func(pgx.Tx) error) error {
	conn, err := c.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	return pgx.BeginTxFunc(ctx, conn, pgx.TxOptions{AccessMode: pgx.ReadWrite}, fn)
}

// Migrate applies migrations that have not been applied yet, in ID order.
func (c *Client) Migrate(migrations []*schema.Migration) error {
	db := stdlib.OpenDBFromPool(c.Pool)
	defer func() { _ = db.Close() }()

	if err := schema.NewMigrator().Apply(db, migrations); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (c *Client) Close() {
	c.Pool.Close()
}

// TableExists checks if a table exists in the database
func (c *Client) TableExists(ctx context.Context, table string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = $1
		)
	`

	var exists bool
	err := c.Pool.QueryRow(ctx, query, table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check if table exists %s: %w", table, err)
	}

	return exists, nil
}

// IsNoRows checks if the error is a "no rows" error
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// GetPoolConfigForComponent returns pool settings for each component. POSTGRES_MIN_CONNS,
// POSTGRES_MAX_CONNS, POSTGRES_CONN_MAX_LIFETIME, POSTGRES_CONN_MAX_IDLE_TIME and
// POSTGRES_ACQUIRE_TIMEOUT override them for every component.
func GetPoolConfigForComponent(component string) *PoolConfig {
	var minConns, maxConns int32
	connMaxLifetime := 5 * time.Minute
	connMaxIdleTime := 2 * time.Minute

	switch component {
	case "indexer":
		minConns = 2
		maxConns = 40
	case "status":
		minConns = 1
		maxConns = 5
	default:
		// Unknown component - use defaults
		minConns = 2
		maxConns = 20
	}

	return &PoolConfig{
		MinConns:        int32(utils.EnvInt("POSTGRES_MIN_CONNS", int(minConns))),
		MaxConns:        int32(utils.EnvInt("POSTGRES_MAX_CONNS", int(maxConns))),
		ConnMaxLifetime: utils.EnvDuration("POSTGRES_CONN_MAX_LIFETIME", connMaxLifetime),
		ConnMaxIdleTime: utils.EnvDuration("POSTGRES_CONN_MAX_IDLE_TIME", connMaxIdleTime),
		Component:       component,
		AcquireTimeout:  utils.EnvDuration("POSTGRES_ACQUIRE_TIMEOUT", DefaultAcquireTimeout),
		AcquireRetry:    retry.Fixed(time.Second, 0),
	}
}
