package indexer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/canopy-network/ledgerx/pkg/indexer/fetcher"
	"github.com/canopy-network/ledgerx/pkg/indexer/reporter"
	"github.com/canopy-network/ledgerx/pkg/indexer/tailer"
	"github.com/canopy-network/ledgerx/pkg/redis"
	"github.com/spf13/viper"
)

// MemoryDSN selects the in-memory store, for dry runs.
const MemoryDSN = "memory://"

// Config keys. Each is also read from the environment, upper-cased with dashes as
// underscores (postgres-url -> POSTGRES_URL).
const (
	KeyPostgresURL      = "postgres-url"
	KeyUpstreamURL      = "upstream-url"
	KeyProcessors       = "processors"
	KeyStartingVersion  = "starting-version"
	KeyBatchSize        = "batch-size"
	KeyRetryBatchSize   = "retry-batch-size"
	KeyMaxRetryVersions = "max-retry-versions"
	KeyPageSize         = "page-size"
	KeyUpstreamRPS      = "upstream-rps"
	KeyEmptyBackoff     = "empty-backoff"
	KeyLogLevel         = "log-level"
	KeyLogEncoding      = "log-encoding"
	KeyStatusAddr       = "status-addr"
	KeyReportSpec       = "report-spec"
	KeyRedisURL         = "redis-url"
	KeyMetricsNamespace = "metrics-namespace"
)

// Config is the indexer configuration.
type Config struct {
	PostgresURL  string
	UpstreamURLs []string
	Processors   []string

	Tailer  tailer.Config
	Fetcher fetcher.Config
	// UpstreamRPS caps requests per second across all upstream endpoints.
	UpstreamRPS int

	LogLevel    string
	LogEncoding string

	StatusAddr string
	ReportSpec string

	// Redis enables committed range notifications when its URL is set.
	Redis            redis.Config
	MetricsNamespace string
}

// SetDefaults registers the default of every key on v and binds it to the environment.
func SetDefaults(v *viper.Viper) {
	def := tailer.DefaultConfig()

	v.SetDefault(KeyPostgresURL, "")
	v.SetDefault(KeyUpstreamURL, "")
	v.SetDefault(KeyProcessors, DefaultProcessors)
	v.SetDefault(KeyStartingVersion, "")
	v.SetDefault(KeyBatchSize, def.BatchSize)
	v.SetDefault(KeyRetryBatchSize, def.RetryBatchSize)
	v.SetDefault(KeyMaxRetryVersions, def.MaxRetryVersions)
	v.SetDefault(KeyPageSize, fetcher.MaxPageSize)
	v.SetDefault(KeyUpstreamRPS, 20)
	v.SetDefault(KeyEmptyBackoff, def.EmptyBackoff)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogEncoding, "json")
	v.SetDefault(KeyStatusAddr, ":3000")
	v.SetDefault(KeyReportSpec, reporter.DefaultSpec)
	v.SetDefault(KeyRedisURL, "")
	v.SetDefault(KeyMetricsNamespace, "ledgerx")

	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// LoadConfig reads and validates the configuration held by v.
func LoadConfig(v *viper.Viper) (Config, error) {
	cfg := Config{
		PostgresURL:  v.GetString(KeyPostgresURL),
		UpstreamURLs: splitList(v.GetString(KeyUpstreamURL)),
		Processors:   splitList(v.GetString(KeyProcessors)),
		Tailer: tailer.Config{
			BatchSize:        v.GetUint64(KeyBatchSize),
			RetryBatchSize:   v.GetUint64(KeyRetryBatchSize),
			MaxRetryVersions: v.GetUint64(KeyMaxRetryVersions),
			EmptyBackoff:     v.GetDuration(KeyEmptyBackoff),
		},
		Fetcher:          fetcher.DefaultConfig(),
		UpstreamRPS:      v.GetInt(KeyUpstreamRPS),
		LogLevel:         v.GetString(KeyLogLevel),
		LogEncoding:      v.GetString(KeyLogEncoding),
		StatusAddr:       v.GetString(KeyStatusAddr),
		ReportSpec:       v.GetString(KeyReportSpec),
		Redis:            redis.ConfigFromEnv(),
		MetricsNamespace: v.GetString(KeyMetricsNamespace),
	}

	cfg.Redis.URL = v.GetString(KeyRedisURL)

	if raw := strings.TrimSpace(v.GetString(KeyStartingVersion)); raw != "" {
		start, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", KeyStartingVersion, err)
		}
		cfg.Tailer.StartingVersion = &start
	}

	pageSize := v.GetUint64(KeyPageSize)
	if pageSize == 0 || pageSize > fetcher.MaxPageSize {
		return Config{}, fmt.Errorf("%s must be between 1 and %d, got %d", KeyPageSize, fetcher.MaxPageSize, pageSize)
	}
	cfg.Fetcher.PageSize = uint16(pageSize)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports missing or inconsistent settings.
func (c Config) Validate() error {
	var errs []error
	if c.PostgresURL == "" {
		errs = append(errs, fmt.Errorf("%s is required (use %s for a dry run)", KeyPostgresURL, MemoryDSN))
	}
	if len(c.UpstreamURLs) == 0 {
		errs = append(errs, fmt.Errorf("%s is required", KeyUpstreamURL))
	}
	if len(c.Processors) == 0 {
		errs = append(errs, fmt.Errorf("%s must name at least one processor", KeyProcessors))
	}
	seen := map[string]bool{}
	for _, name := range c.Processors {
		if _, ok := processorFactories[name]; !ok {
			errs = append(errs, fmt.Errorf("unknown processor %q", name))
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("processor %q listed twice", name))
		}
		seen[name] = true
	}
	if c.Tailer.BatchSize == 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyBatchSize))
	}
	if c.Tailer.EmptyBackoff < 0 || c.Tailer.EmptyBackoff > time.Hour {
		errs = append(errs, fmt.Errorf("%s must be between 0 and 1h", KeyEmptyBackoff))
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
