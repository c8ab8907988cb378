// Package reporter periodically reads every processor's status rows, logs its progress and
// exports it as gauges.
package reporter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/canopy-network/ledgerx/pkg/indexer/processor"
	"github.com/canopy-network/ledgerx/pkg/metrics"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSpec runs the report every 30 seconds.
const DefaultSpec = "@every 30s"

// ProcessorStatus is the persisted progress of one processor.
type ProcessorStatus struct {
	Name          string   `json:"name"`
	MaxVersion    *uint64  `json:"maxVersion"`
	ErrorVersions []uint64 `json:"errorVersions"`
}

// Reporter reads status rows of processors on a cron schedule.
type Reporter struct {
	processors []processor.Processor
	metrics    *metrics.Metrics
	logger     *zap.Logger

	// Cron triggers Report according to Spec.
	Cron *cron.Cron
	Spec string

	mu   sync.RWMutex
	last map[string]ProcessorStatus
}

// New returns a Reporter for processors. An empty spec uses DefaultSpec, nil m discards gauges.
func New(spec string, processors []processor.Processor, m *metrics.Metrics, logger *zap.Logger) *Reporter {
	if spec == "" {
		spec = DefaultSpec
	}
	if m == nil {
		m = metrics.NopMetrics()
	}
	return &Reporter{
		processors: processors,
		metrics:    m,
		logger:     logger,
		Spec:       spec,
		last:       map[string]ProcessorStatus{},
	}
}

// Status reads the persisted progress of p.
func Status(ctx context.Context, p processor.Processor) (ProcessorStatus, error) {
	status := ProcessorStatus{Name: p.Name()}

	max, err := p.MetadataHandle().GetMaxVersion(ctx, p.Name())
	if err != nil {
		return status, fmt.Errorf("max version of %s: %w", p.Name(), err)
	}
	status.MaxVersion = max

	versions, err := p.MetadataHandle().GetErrorVersions(ctx, p.Name())
	if err != nil {
		return status, fmt.Errorf("error versions of %s: %w", p.Name(), err)
	}
	status.ErrorVersions = versions
	return status, nil
}

// Report reads every processor's status, logs it and sets the LatestVersion and
// ErrorVersions gauges. Processors whose status cannot be read are skipped; their
// errors are joined.
func (r *Reporter) Report(ctx context.Context) ([]ProcessorStatus, error) {
	var (
		out  []ProcessorStatus
		errs []error
	)
	for _, p := range r.processors {
		status, err := Status(ctx, p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, status)

		fields := []zap.Field{
			zap.String("processor", status.Name),
			zap.Int("error_versions", len(status.ErrorVersions)),
		}
		if status.MaxVersion != nil {
			fields = append(fields, zap.Uint64("max_version", *status.MaxVersion))
			r.metrics.LatestVersion.With(metrics.ProcessorLabel, status.Name).Set(float64(*status.MaxVersion))
		}
		r.metrics.ErrorVersions.With(metrics.ProcessorLabel, status.Name).Set(float64(len(status.ErrorVersions)))
		r.logger.Info("Processor status", fields...)
	}

	r.mu.Lock()
	for _, status := range out {
		r.last[status.Name] = status
	}
	r.mu.Unlock()

	return out, errors.Join(errs...)
}

// Last returns the status recorded by the latest Report for name.
func (r *Reporter) Last(name string) (ProcessorStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	status, ok := r.last[name]
	return status, ok
}

// Start schedules Report and starts the cron scheduler. Every run is bounded by a timeout.
func (r *Reporter) Start(ctx context.Context) error {
	logger := cronLogger{r.logger.Sugar()}
	// Seconds field, optional
	r.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(logger)))

	_, err := r.Cron.AddFunc(r.Spec, func() {
		rctx, cancel := context.WithTimeout(ctx, 25*time.Second)
		defer cancel()
		if _, err := r.Report(rctx); err != nil {
			r.logger.Warn("Status report incomplete", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule status report %q: %w", r.Spec, err)
	}

	r.Cron.Start()
	r.logger.Info("Status reporter started", zap.String("spec", r.Spec))
	return nil
}

// Stop stops the scheduler and waits for a running report to finish.
func (r *Reporter) Stop() {
	if r.Cron != nil {
		<-r.Cron.Stop().Done()
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	*zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.Errorw(msg, append(keysAndValues, "error", err)...)
}
