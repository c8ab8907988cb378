// Package tailer drives registered processors over the upstream transaction stream.
//
// Every iteration derives each processor's resume point from its status rows, fetches one
// batch starting at the lowest resume point, processes it with all processors concurrently
// and then retries versions recorded as failed. Nothing is kept between iterations besides
// what the status store holds, so a restart resumes exactly where the previous run stopped.
package tailer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	adminmodels "github.com/canopy-network/ledgerx/pkg/db/models/admin"
	"github.com/canopy-network/ledgerx/pkg/indexer/fetcher"
	"github.com/canopy-network/ledgerx/pkg/indexer/metadata"
	"github.com/canopy-network/ledgerx/pkg/indexer/processor"
	"github.com/canopy-network/ledgerx/pkg/metrics"
	"github.com/canopy-network/ledgerx/pkg/rpc"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/streamingfast/shutter"
	"go.uber.org/zap"
)

var (
	// ErrNoTransactions is returned by ProcessNextBatch when the upstream has nothing past
	// the resume point.
	ErrNoTransactions = errors.New("no new transactions")
	// ErrChainIDMismatch is returned when the upstream chain differs from the recorded one.
	ErrChainIDMismatch = errors.New("upstream chain id does not match the indexed chain id")
)

// Notifier is told about every committed range. Failures are logged and otherwise ignored.
type Notifier interface {
	Notify(ctx context.Context, result processor.Result) error
}

// Progress is the in-memory view of one processor, refreshed every iteration.
type Progress struct {
	Name          string            `json:"name"`
	NextVersion   uint64            `json:"nextVersion"`
	LastCommitted *processor.Result `json:"lastCommitted,omitempty"`
	LastError     string            `json:"lastError,omitempty"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// IterationResult summarizes one ProcessNextBatch call.
type IterationResult struct {
	StartVersion uint64
	Fetched      int
	Committed    []processor.Result
	Failed       []*processor.Error
	Retried      int
}

// Tailer is the main indexing loop.
type Tailer struct {
	*shutter.Shutter

	cfg        Config
	fetcher    fetcher.Fetcher
	meta       metadata.TailerHandle
	processors []processor.Processor
	tracker    processor.Tracker
	notifier   Notifier
	logger     *zap.Logger

	pool     pond.Pool
	progress *xsync.Map[string, Progress]
	verified atomic.Bool
	running  atomic.Bool
}

// New returns a Tailer over processors. Processor names must be unique.
func New(cfg Config, f fetcher.Fetcher, meta metadata.TailerHandle, logger *zap.Logger, processors ...processor.Processor) *Tailer {
	workers := len(processors)
	if workers == 0 {
		workers = 1
	}

	t := &Tailer{
		Shutter:    shutter.New(),
		cfg:        cfg.withDefaults(),
		fetcher:    f,
		meta:       meta,
		processors: processors,
		tracker:    processor.NewTracker(logger, nil),
		logger:     logger,
		pool:       pond.NewPool(workers),
		progress:   xsync.NewMap[string, Progress](),
	}
	for _, p := range processors {
		t.progress.Store(p.Name(), Progress{Name: p.Name()})
	}
	return t
}

// WithMetrics records processor invocations into m.
func (t *Tailer) WithMetrics(m *metrics.Metrics) *Tailer {
	t.tracker = processor.NewTracker(t.logger, m)
	return t
}

// WithNotifier publishes committed ranges to n.
func (t *Tailer) WithNotifier(n Notifier) *Tailer {
	t.notifier = n
	return t
}

// Processors returns the registered processors.
func (t *Tailer) Processors() []processor.Processor {
	return append([]processor.Processor(nil), t.processors...)
}

// Progress returns the last known progress of the named processor.
func (t *Tailer) Progress(name string) (Progress, bool) {
	return t.progress.Load(name)
}

// LedgerVerified reports whether CheckLedgerInfo succeeded.
func (t *Tailer) LedgerVerified() bool {
	return t.verified.Load()
}

// Running reports whether Run is looping.
func (t *Tailer) Running() bool {
	return t.running.Load()
}

// CheckLedgerInfo records the upstream chain id on first run and refuses to continue when
// a later run points at a different chain.
func (t *Tailer) CheckLedgerInfo(ctx context.Context) error {
	info, err := t.fetcher.LedgerInfo(ctx)
	if err != nil {
		return fmt.Errorf("check ledger info: %w", err)
	}
	if info.ChainID > math.MaxInt64 {
		return fmt.Errorf("check ledger info: chain id %d out of range", info.ChainID)
	}
	upstream := int64(info.ChainID)

	stored, err := t.meta.GetLedgerInfo(ctx)
	if err != nil {
		return metadata.WrapStoreError("get ledger info", err)
	}

	switch {
	case stored == nil:
		t.logger.Info("Recording upstream ledger info", zap.Int64("chain_id", upstream))
		if err := t.meta.SetLedgerInfo(ctx, adminmodels.LedgerInfo{ChainID: upstream}); err != nil {
			return metadata.WrapStoreError("set ledger info", err)
		}
	case stored.ChainID != upstream:
		return fmt.Errorf("%w: indexed %d, upstream %d", ErrChainIDMismatch, stored.ChainID, upstream)
	default:
		t.logger.Info("Upstream ledger info verified", zap.Int64("chain_id", upstream))
	}

	t.verified.Store(true)
	return nil
}

// Run loops over ProcessNextBatch until the tailer is shut down or a fatal error occurs.
// Shutdown takes effect between iterations. Metadata store failures and ledger mismatches
// are fatal: the tailer shuts down with the error and Run returns it.
func (t *Tailer) Run(ctx context.Context) error {
	defer t.pool.StopAndWait()

	if err := t.CheckLedgerInfo(ctx); err != nil {
		t.Shutdown(err)
		return err
	}

	t.running.Store(true)
	defer t.running.Store(false)

	t.logger.Info("Tailer started",
		zap.Int("processors", len(t.processors)),
		zap.Uint64("batch_size", t.cfg.BatchSize),
	)

	for !t.IsTerminating() {
		if ctx.Err() != nil {
			break
		}

		result, err := t.ProcessNextBatch(ctx)
		switch {
		case err == nil:
			t.logger.Debug("Iteration done",
				zap.Uint64("start_version", result.StartVersion),
				zap.Int("fetched", result.Fetched),
				zap.Int("committed", len(result.Committed)),
				zap.Int("failed", len(result.Failed)),
				zap.Int("retried", result.Retried),
			)
		case errors.Is(err, ErrNoTransactions):
			t.sleep(ctx, t.cfg.EmptyBackoff)
		case ctx.Err() != nil:
			t.logger.Info("Tailer context done", zap.Error(ctx.Err()))
		case metadata.IsStoreError(err):
			t.logger.Error("Metadata store failure, stopping tailer", zap.Error(err))
			t.Shutdown(err)
			return err
		default:
			t.logger.Warn("Iteration failed", zap.Error(err))
			t.sleep(ctx, t.cfg.EmptyBackoff)
		}
	}

	t.logger.Info("Tailer stopped")
	return nil
}

func (t *Tailer) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-t.Terminating():
	case <-timer.C:
	}
}

// ProcessNextBatch runs one iteration. It returns ErrNoTransactions, after retrying failed
// versions, when the upstream has nothing new. Errors wrapping *metadata.StoreError are fatal;
// processing failures are recorded in the status store and reported in the result.
func (t *Tailer) ProcessNextBatch(ctx context.Context) (IterationResult, error) {
	var result IterationResult
	if len(t.processors) == 0 {
		return result, ErrNoTransactions
	}

	resume, err := t.resumePoints(ctx)
	if err != nil {
		return result, err
	}

	start, ok := minResume(resume)
	if !ok {
		return result, ErrNoTransactions
	}
	result.StartVersion = start

	txns, err := t.fetcher.Fetch(ctx, start, t.cfg.BatchSize)
	if err != nil {
		return result, fmt.Errorf("fetch batch at %d: %w", start, err)
	}
	result.Fetched = len(txns)

	if len(txns) > 0 {
		outcomes := t.dispatchBatch(ctx, txns, resume)
		if err := t.collect(ctx, &result, outcomes); err != nil {
			return result, err
		}
	}

	retried, err := t.retryErrors(ctx, resume)
	if err != nil {
		return result, err
	}
	result.Retried = retried.count
	if err := t.collect(ctx, &result, retried.outcomes); err != nil {
		return result, err
	}

	t.refreshProgress(resume, txns)

	if len(txns) == 0 {
		return result, ErrNoTransactions
	}
	return result, nil
}

// resumePoints returns, per processor, the first version it has not seen. A processor
// whose highest version is the last representable one is absent from the map.
func (t *Tailer) resumePoints(ctx context.Context) (map[string]uint64, error) {
	resume := make(map[string]uint64, len(t.processors))
	for _, p := range t.processors {
		max, err := p.MetadataHandle().GetMaxVersion(ctx, p.Name())
		if err != nil {
			return nil, metadata.WrapStoreError("get max version", err)
		}

		switch {
		case max == nil && t.cfg.StartingVersion != nil:
			resume[p.Name()] = *t.cfg.StartingVersion
		case max == nil:
			resume[p.Name()] = 0
		case *max == math.MaxUint64:
			// nothing left to index
		default:
			resume[p.Name()] = *max + 1
		}
	}
	return resume, nil
}

func minResume(resume map[string]uint64) (uint64, bool) {
	var (
		min   uint64
		found bool
	)
	for _, v := range resume {
		if !found || v < min {
			min = v
			found = true
		}
	}
	return min, found
}

type outcome struct {
	name   string
	result processor.Result
	err    error
	done   bool
}

// dispatchBatch runs every processor on the part of txns at or past its resume point, concurrently.
func (t *Tailer) dispatchBatch(ctx context.Context, txns []rpc.Transaction, resume map[string]uint64) []outcome {
	first := txns[0].Version.Uint64()
	outcomes := make([]outcome, len(t.processors))

	group := t.pool.NewGroupContext(ctx)
	for i, p := range t.processors {
		from, ok := resume[p.Name()]
		if !ok || from-first >= uint64(len(txns)) {
			continue
		}
		slice := txns[from-first:]

		i, p := i, p
		group.Submit(func() {
			res, err := t.tracker.ProcessWithStatus(ctx, p, slice)
			outcomes[i] = outcome{name: p.Name(), result: res, err: err, done: true}
		})
	}
	t.wait(group, "Batch dispatch encountered error")
	return outcomes
}

// wait blocks until every task of group is done. The pool recovers task panics; they are
// raised again here so a panicking processor takes the process down.
func (t *Tailer) wait(group pond.TaskGroup, msg string) {
	err := group.Wait()
	switch {
	case err == nil:
	case errors.Is(err, pond.ErrPanic):
		t.logger.Error("Processor panicked", zap.Error(err))
		panic(err)
	case errors.Is(err, context.Canceled), errors.Is(err, pond.ErrGroupStopped):
	default:
		t.logger.Warn(msg, zap.Error(err))
	}
}

type retryOutcomes struct {
	outcomes []outcome
	count    int
}

// retryErrors re-processes the error versions of every processor that precede its resume
// point, in contiguous groups of at most RetryBatchSize and at most MaxRetryVersions in total.
func (t *Tailer) retryErrors(ctx context.Context, resume map[string]uint64) (retryOutcomes, error) {
	plans := make([][]versionRange, len(t.processors))
	total := 0
	for i, p := range t.processors {
		versions, err := p.MetadataHandle().GetErrorVersions(ctx, p.Name())
		if err != nil {
			return retryOutcomes{}, metadata.WrapStoreError("get error versions", err)
		}

		limit, ok := resume[p.Name()]
		eligible := make([]uint64, 0, len(versions))
		for _, v := range versions {
			// versions of the current batch are left to the next iteration
			if ok && v >= limit {
				break
			}
			eligible = append(eligible, v)
			if uint64(len(eligible)) == t.cfg.MaxRetryVersions {
				break
			}
		}
		plans[i] = groupVersions(eligible, t.cfg.RetryBatchSize)
		total += len(eligible)
	}
	if total == 0 {
		return retryOutcomes{}, nil
	}

	var (
		mu       sync.Mutex
		outcomes []outcome
	)

	group := t.pool.NewGroupContext(ctx)
	for i, p := range t.processors {
		if len(plans[i]) == 0 {
			continue
		}
		p, plan := p, plans[i]
		group.Submit(func() {
			for _, r := range plan {
				out := t.retryRange(ctx, p, r)
				mu.Lock()
				outcomes = append(outcomes, out)
				mu.Unlock()
				if out.err != nil && metadata.IsStoreError(out.err) {
					return
				}
			}
		})
	}
	t.wait(group, "Retry dispatch encountered error")

	return retryOutcomes{outcomes: outcomes, count: total}, nil
}

func (t *Tailer) retryRange(ctx context.Context, p processor.Processor, r versionRange) outcome {
	logger := t.logger.With(
		zap.String("processor", p.Name()),
		zap.Uint64("start_version", r.start),
		zap.Uint64("end_version", r.end),
	)
	logger.Info("Retrying failed versions")

	txns, err := t.fetcher.Fetch(ctx, r.start, r.end-r.start+1)
	if err != nil {
		logger.Warn("Could not fetch versions to retry", zap.Error(err))
		return outcome{name: p.Name(), err: err, done: true}
	}
	if len(txns) == 0 {
		logger.Warn("Upstream returned nothing for versions to retry")
		return outcome{name: p.Name()}
	}

	res, err := t.tracker.ProcessWithStatus(ctx, p, txns)
	return outcome{name: p.Name(), result: res, err: err, done: true}
}

// collect folds outcomes into result, notifying about committed ranges. The first store
// error is returned.
func (t *Tailer) collect(ctx context.Context, result *IterationResult, outcomes []outcome) error {
	var fatal error
	for _, out := range outcomes {
		if !out.done {
			continue
		}

		if out.err == nil {
			result.Committed = append(result.Committed, out.result)
			t.recordCommitted(out.result)
			t.notify(ctx, out.result)
			continue
		}

		if metadata.IsStoreError(out.err) {
			if fatal == nil {
				fatal = out.err
			}
			continue
		}

		var perr *processor.Error
		if errors.As(out.err, &perr) {
			result.Failed = append(result.Failed, perr)
		}
		t.recordError(out.name, out.err)
		t.logger.Warn("Processing failed, versions will be retried",
			zap.String("processor", out.name),
			zap.Error(out.err),
		)
	}
	return fatal
}

func (t *Tailer) notify(ctx context.Context, res processor.Result) {
	if t.notifier == nil {
		return
	}
	if err := t.notifier.Notify(ctx, res); err != nil {
		t.logger.Warn("Failed to publish committed range",
			zap.String("processor", res.Name),
			zap.Error(err),
		)
	}
}

func (t *Tailer) recordCommitted(res processor.Result) {
	t.progress.Compute(res.Name, func(old Progress, loaded bool) (Progress, xsync.ComputeOp) {
		committed := res
		old.Name = res.Name
		old.LastCommitted = &committed
		old.LastError = ""
		old.UpdatedAt = time.Now().UTC()
		return old, xsync.UpdateOp
	})
}

func (t *Tailer) recordError(name string, err error) {
	t.progress.Compute(name, func(old Progress, loaded bool) (Progress, xsync.ComputeOp) {
		old.Name = name
		old.LastError = err.Error()
		old.UpdatedAt = time.Now().UTC()
		return old, xsync.UpdateOp
	})
}

// refreshProgress advances NextVersion past the fetched batch for every processor that saw it.
func (t *Tailer) refreshProgress(resume map[string]uint64, txns []rpc.Transaction) {
	for _, p := range t.processors {
		next, ok := resume[p.Name()]
		if !ok {
			continue
		}
		if n := len(txns); n > 0 {
			if last := txns[n-1].Version.Uint64(); last >= next && last < math.MaxUint64 {
				next = last + 1
			}
		}

		name := p.Name()
		t.progress.Compute(name, func(old Progress, loaded bool) (Progress, xsync.ComputeOp) {
			old.Name = name
			old.NextVersion = next
			old.UpdatedAt = time.Now().UTC()
			return old, xsync.UpdateOp
		})
	}
}
