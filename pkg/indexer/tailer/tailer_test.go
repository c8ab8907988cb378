package tailer

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/canopy-network/ledgerx/pkg/db/memory"
	adminmodels "github.com/canopy-network/ledgerx/pkg/db/models/admin"
	indexermodels "github.com/canopy-network/ledgerx/pkg/db/models/indexer"
	"github.com/canopy-network/ledgerx/pkg/indexer/metadata"
	"github.com/canopy-network/ledgerx/pkg/indexer/processor"
	"github.com/canopy-network/ledgerx/pkg/metrics"
	"github.com/canopy-network/ledgerx/pkg/rpc"
	"github.com/canopy-network/ledgerx/pkg/rpc/rpctest"
	"github.com/canopy-network/ledgerx/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

// fakeFetcher serves a contiguous slice of transactions.
type fakeFetcher struct {
	mu      sync.Mutex
	txns    []rpc.Transaction
	chainID uint64
	fetches int
}

func newFakeFetcher(txns []rpc.Transaction) *fakeFetcher {
	return &fakeFetcher{txns: txns, chainID: 1}
}

func (f *fakeFetcher) Fetch(ctx context.Context, start uint64, count uint64) ([]rpc.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++

	var out []rpc.Transaction
	for _, txn := range f.txns {
		v := txn.Version.Uint64()
		if v >= start && uint64(len(out)) < count {
			out = append(out, txn)
		}
	}
	return out, nil
}

func (f *fakeFetcher) LedgerInfo(ctx context.Context) (*rpc.LedgerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &rpc.LedgerInfo{ChainID: f.chainID}, nil
}

// namedProcessor writes rows through the memory store under its own name.
type namedProcessor struct {
	name  string
	store *memory.Store

	mu     sync.Mutex
	ranges [][2]uint64
}

func (p *namedProcessor) Name() string                    { return p.name }
func (p *namedProcessor) MetadataHandle() metadata.Handle { return p.store }

func (p *namedProcessor) ProcessTransactions(ctx context.Context, txns []rpc.Transaction, start, end uint64) (processor.Result, error) {
	p.mu.Lock()
	p.ranges = append(p.ranges, [2]uint64{start, end})
	p.mu.Unlock()

	if err := p.store.WriteRange(ctx, p.name, start, end, &indexermodels.RowSet{}); err != nil {
		return processor.Result{}, processor.NewCommitError(p.name, start, end, err)
	}
	return processor.Result{Name: p.name, StartVersion: start, EndVersion: end}, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	results []processor.Result
}

func (n *recordingNotifier) Notify(ctx context.Context, res processor.Result) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, res)
	return nil
}

func newDefaultTailer(cfg Config, f *fakeFetcher, store *memory.Store) *Tailer {
	return New(cfg, f, store, zap.NewNop(), processor.NewDefault(store, zap.NewNop()))
}

func maxVersion(t *testing.T, store *memory.Store, name string) *uint64 {
	t.Helper()
	max, err := store.GetMaxVersion(context.Background(), name)
	require.NoError(t, err)
	return max
}

func errorVersions(t *testing.T, store *memory.Store, name string) []uint64 {
	t.Helper()
	versions, err := store.GetErrorVersions(context.Background(), name)
	require.NoError(t, err)
	return versions
}

func TestColdStart(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	tailer := newDefaultTailer(Config{BatchSize: 10}, newFakeFetcher(rpctest.Range(0, 10)), store)

	result, err := tailer.ProcessNextBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), result.StartVersion)
	assert.Equal(t, 10, result.Fetched)
	require.Len(t, result.Committed, 1)
	assert.Equal(t, processor.Result{Name: processor.DefaultName, StartVersion: 0, EndVersion: 9}, result.Committed[0])

	max := maxVersion(t, store, processor.DefaultName)
	require.NotNil(t, max)
	assert.Equal(t, uint64(9), *max)
	assert.Empty(t, errorVersions(t, store, processor.DefaultName))

	counts := store.Counts()
	assert.Equal(t, 10, counts.Transactions)
	assert.Equal(t, 10, counts.UserTransactions)
	assert.Equal(t, 10, counts.Events)
	assert.Equal(t, 0, counts.BlockMetadataTransactions)

	_, err = tailer.ProcessNextBatch(ctx)
	assert.ErrorIs(t, err, ErrNoTransactions)

	progress, ok := tailer.Progress(processor.DefaultName)
	require.True(t, ok)
	assert.Equal(t, uint64(10), progress.NextVersion)
	require.NotNil(t, progress.LastCommitted)
	assert.Equal(t, uint64(9), progress.LastCommitted.EndVersion)
}

func TestMixedBatch(t *testing.T) {
	store := memory.New()
	txns := []rpc.Transaction{rpctest.Genesis(0), rpctest.BlockMetadata(1), rpctest.User(2, 3, 2)}
	tailer := newDefaultTailer(Config{BatchSize: 10}, newFakeFetcher(txns), store)

	_, err := tailer.ProcessNextBatch(context.Background())
	require.NoError(t, err)

	counts := store.Counts()
	assert.Equal(t, 3, counts.Transactions)
	assert.Equal(t, 1, counts.UserTransactions)
	assert.Equal(t, 1, counts.BlockMetadataTransactions)
	assert.Equal(t, 3, counts.Events)
	assert.Equal(t, 2, counts.WriteSetChanges)
	assert.Equal(t, []int64{0, 1}, store.WriteSetIndices(2))
}

func TestRetryAfterBackendError(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	store.FailWrites(1, errors.New("could not serialize access"))
	tailer := newDefaultTailer(Config{BatchSize: 5}, newFakeFetcher(rpctest.Range(0, 5)), store)

	result, err := tailer.ProcessNextBatch(ctx)
	require.NoError(t, err)
	require.Len(t, result.Failed, 1)
	assert.ErrorIs(t, result.Failed[0], processor.ErrTransactionCommit)
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, errorVersions(t, store, processor.DefaultName))
	assert.Equal(t, 0, store.Counts().Transactions)

	progress, ok := tailer.Progress(processor.DefaultName)
	require.True(t, ok)
	assert.Contains(t, progress.LastError, "could not serialize access")

	// nothing new upstream, the failed range is retried
	result, err = tailer.ProcessNextBatch(ctx)
	require.ErrorIs(t, err, ErrNoTransactions)
	assert.Equal(t, 5, result.Retried)
	require.Len(t, result.Committed, 1)
	assert.Empty(t, errorVersions(t, store, processor.DefaultName))
	assert.Equal(t, 5, store.Counts().Transactions)
	assert.Equal(t, 5, store.Counts().Events)
}

func TestRerunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	p := processor.NewDefault(store, zap.NewNop())
	tracker := processor.NewTracker(zap.NewNop(), nil)

	_, err := tracker.ProcessWithStatus(ctx, p, rpctest.Range(0, 10))
	require.NoError(t, err)
	first := store.Counts()

	_, err = tracker.ProcessWithStatus(ctx, p, rpctest.Range(0, 10))
	require.NoError(t, err)
	assert.Equal(t, first, store.Counts())
	assert.Equal(t, 10, store.Counts().Statuses)

	for v := uint64(0); v < 10; v++ {
		status, ok := store.Status(processor.DefaultName, v)
		require.True(t, ok)
		assert.True(t, status.Success)
	}
}

func TestCrashRecovery(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	// a previous run marked [0, 4] as started and died before committing
	require.NoError(t, store.ApplyProcessorStatus(ctx, metadata.StartedRows(processor.DefaultName, 0, 4)))
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, errorVersions(t, store, processor.DefaultName))

	tailer := newDefaultTailer(Config{BatchSize: 5}, newFakeFetcher(rpctest.Range(0, 5)), store)
	result, err := tailer.ProcessNextBatch(ctx)
	require.ErrorIs(t, err, ErrNoTransactions)
	assert.Equal(t, 5, result.Retried)

	assert.Empty(t, errorVersions(t, store, processor.DefaultName))
	counts := store.Counts()
	assert.Equal(t, 5, counts.Transactions)
	assert.Equal(t, 5, counts.UserTransactions)
	assert.Equal(t, 5, counts.Events)

	for v := uint64(0); v < 5; v++ {
		history := store.StatusHistory(processor.DefaultName, v)
		require.NotEmpty(t, history)
		assert.True(t, history[0].IsStarted())
		assert.True(t, history[len(history)-1].Success)
	}
}

func TestVersionsNearMaxUint64(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	start := uint64(18446744073709551610)
	var txns []rpc.Transaction
	for v := start; ; v++ {
		txns = append(txns, rpctest.User(v, 1, 1))
		if v == math.MaxUint64 {
			break
		}
	}

	tailer := newDefaultTailer(Config{BatchSize: 100, StartingVersion: &start}, newFakeFetcher(txns), store)
	result, err := tailer.ProcessNextBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, start, result.StartVersion)
	assert.Equal(t, 6, result.Fetched)

	row, ok := store.Transaction(start)
	require.True(t, ok)
	assert.Equal(t, start, utils.DecimalToU64(row.Version))
	assert.Equal(t, "18446744073709551610", row.Version.String())

	max := maxVersion(t, store, processor.DefaultName)
	require.NotNil(t, max)
	assert.Equal(t, uint64(math.MaxUint64), *max)

	_, err = tailer.ProcessNextBatch(ctx)
	assert.ErrorIs(t, err, ErrNoTransactions)
}

func TestStartingVersionOnlyAppliesWithoutRows(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	start := uint64(100)
	f := newFakeFetcher(rpctest.Range(0, 200))

	tailer := newDefaultTailer(Config{BatchSize: 10, StartingVersion: &start}, f, store)
	result, err := tailer.ProcessNextBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), result.StartVersion)

	// the processor now has rows, so the starting version is ignored
	zero := uint64(0)
	tailer = newDefaultTailer(Config{BatchSize: 10, StartingVersion: &zero}, f, store)
	result, err = tailer.ProcessNextBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(110), result.StartVersion)
}

func TestProcessorsResumeIndependently(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ahead := &namedProcessor{name: "ahead", store: store}
	behind := &namedProcessor{name: "behind", store: store}
	require.NoError(t, store.ApplyProcessorStatus(ctx, metadata.SuccessRows("ahead", 0, 9)))

	tailer := New(Config{BatchSize: 20}, newFakeFetcher(rpctest.Range(0, 20)), store, zap.NewNop(), ahead, behind)

	result, err := tailer.ProcessNextBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), result.StartVersion)
	assert.Len(t, result.Committed, 2)

	assert.Equal(t, [][2]uint64{{10, 19}}, ahead.ranges)
	assert.Equal(t, [][2]uint64{{0, 19}}, behind.ranges)
	assert.Equal(t, uint64(19), *maxVersion(t, store, "ahead"))
	assert.Equal(t, uint64(19), *maxVersion(t, store, "behind"))
}

func TestProcessorFailureDoesNotAffectOthers(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ok := &namedProcessor{name: "ok", store: store}
	failing := &namedProcessor{name: "failing", store: store}
	store.SetWriteHook(func(name string, _, _ uint64) error {
		if name == "failing" {
			return memory.ErrInjected
		}
		return nil
	})

	tailer := New(Config{BatchSize: 5}, newFakeFetcher(rpctest.Range(0, 5)), store, zap.NewNop(), ok, failing)
	result, err := tailer.ProcessNextBatch(ctx)
	require.NoError(t, err)
	assert.Len(t, result.Committed, 1)
	assert.Len(t, result.Failed, 1)

	assert.Empty(t, errorVersions(t, store, "ok"))
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, errorVersions(t, store, "failing"))
}

func TestRetryBudget(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	p := &namedProcessor{name: "p", store: store}

	require.NoError(t, store.ApplyProcessorStatus(ctx, metadata.SuccessRows("p", 0, 29)))
	require.NoError(t, store.ApplyProcessorStatus(ctx, metadata.ErrorRows("p", 3, 9, "boom")))
	require.NoError(t, store.ApplyProcessorStatus(ctx, metadata.ErrorRows("p", 20, 21, "boom")))

	cfg := Config{BatchSize: 10, RetryBatchSize: 3, MaxRetryVersions: 8}
	tailer := New(cfg, newFakeFetcher(rpctest.Range(0, 30)), store, zap.NewNop(), p)

	result, err := tailer.ProcessNextBatch(ctx)
	require.ErrorIs(t, err, ErrNoTransactions)
	assert.Equal(t, 8, result.Retried)
	assert.Equal(t, [][2]uint64{{3, 5}, {6, 8}, {9, 9}, {20, 20}}, p.ranges)
	assert.Equal(t, []uint64{21}, errorVersions(t, store, "p"))
}

func TestMetadataStoreFailureIsFatal(t *testing.T) {
	store := memory.New()
	store.SetStatusHook(func([]adminmodels.ProcessorStatus) error { return memory.ErrInjected })
	tailer := newDefaultTailer(Config{BatchSize: 5}, newFakeFetcher(rpctest.Range(0, 5)), store)

	_, err := tailer.ProcessNextBatch(context.Background())
	require.Error(t, err)
	assert.True(t, metadata.IsStoreError(err))

	err = tailer.Run(context.Background())
	require.Error(t, err)
	assert.True(t, metadata.IsStoreError(err))
	assert.True(t, tailer.IsTerminating())
	assert.Equal(t, err, tailer.Err())
}

// panickingProcessor panics on every range it is given.
type panickingProcessor struct {
	store *memory.Store
}

func (p *panickingProcessor) Name() string                    { return "panicking" }
func (p *panickingProcessor) MetadataHandle() metadata.Handle { return p.store }

func (p *panickingProcessor) ProcessTransactions(context.Context, []rpc.Transaction, uint64, uint64) (processor.Result, error) {
	panic("unexpected transaction shape")
}

func TestProcessorPanicIsNotRecovered(t *testing.T) {
	store := memory.New()
	tailer := New(Config{BatchSize: 5}, newFakeFetcher(rpctest.Range(0, 5)), store, zap.NewNop(), &panickingProcessor{store: store})

	var recovered any
	func() {
		defer func() { recovered = recover() }()
		_, _ = tailer.ProcessNextBatch(context.Background())
	}()

	require.NotNil(t, recovered)
	err, ok := recovered.(error)
	require.True(t, ok)
	assert.ErrorIs(t, err, pond.ErrPanic)
	assert.Contains(t, err.Error(), "unexpected transaction shape")

	// the range stays started, so the next process retries it
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, errorVersions(t, store, "panicking"))
	status, ok := store.Status("panicking", 0)
	require.True(t, ok)
	assert.True(t, status.IsStarted())
}

// cancellingProcessor cancels the run while a range is in flight.
type cancellingProcessor struct {
	store  *memory.Store
	cancel context.CancelFunc
}

func (p *cancellingProcessor) Name() string                    { return "cancelling" }
func (p *cancellingProcessor) MetadataHandle() metadata.Handle { return p.store }

func (p *cancellingProcessor) ProcessTransactions(_ context.Context, _ []rpc.Transaction, start, end uint64) (processor.Result, error) {
	p.cancel()
	return processor.Result{}, processor.NewCommitError(p.Name(), start, end, context.Canceled)
}

func TestRunStopsQuietlyWhenCancelledMidBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memory.New()
	p := &cancellingProcessor{store: store, cancel: cancel}
	tailer := New(Config{BatchSize: 5}, newFakeFetcher(rpctest.Range(0, 5)), store, zap.NewNop(), p)

	// the error status write fails on the cancelled context
	_, err := tailer.ProcessNextBatch(ctx)
	require.Error(t, err)
	require.True(t, metadata.IsStoreError(err))

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	p.cancel = cancel

	require.NoError(t, tailer.Run(ctx))
	assert.False(t, tailer.IsTerminating())
	assert.False(t, tailer.Running())
}

func TestCheckLedgerInfo(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	f := newFakeFetcher(nil)
	f.chainID = 4

	tailer := newDefaultTailer(Config{}, f, store)
	assert.False(t, tailer.LedgerVerified())
	require.NoError(t, tailer.CheckLedgerInfo(ctx))
	assert.True(t, tailer.LedgerVerified())

	info, err := store.GetLedgerInfo(ctx)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, int64(4), info.ChainID)

	// same chain on restart
	require.NoError(t, newDefaultTailer(Config{}, f, store).CheckLedgerInfo(ctx))

	f.chainID = 5
	err = newDefaultTailer(Config{}, f, store).CheckLedgerInfo(ctx)
	require.ErrorIs(t, err, ErrChainIDMismatch)

	err = newDefaultTailer(Config{}, f, store).Run(ctx)
	require.ErrorIs(t, err, ErrChainIDMismatch)
}

func TestRunUntilShutdown(t *testing.T) {
	store := memory.New()
	notifier := &recordingNotifier{}
	rec := metrics.NewRecorder()
	tailer := newDefaultTailer(Config{BatchSize: 4, EmptyBackoff: 5 * time.Millisecond}, newFakeFetcher(rpctest.Range(0, 10)), store).
		WithNotifier(notifier).
		WithMetrics(metrics.RecorderMetrics(rec))

	done := make(chan error, 1)
	go func() { done <- tailer.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		max, err := store.GetMaxVersion(context.Background(), processor.DefaultName)
		return err == nil && max != nil && *max == 9
	}, 5*time.Second, 5*time.Millisecond)
	require.Eventually(t, tailer.Running, time.Second, time.Millisecond)

	tailer.Shutdown(nil)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("tailer did not stop")
	}
	assert.False(t, tailer.Running())

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.results, 3)
	assert.Equal(t, processor.Result{Name: processor.DefaultName, StartVersion: 8, EndVersion: 9}, notifier.results[2])
	assert.Equal(t, 3.0, rec.Value("processor_successes", metrics.ProcessorLabel, processor.DefaultName))
}

// N successful iterations of size B from version 0 leave max version N*B-1 and no errors.
func TestGapFreedom(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(rt, "iterations").(int)
		b := rapid.IntRange(1, 25).Draw(rt, "batch").(int)

		store := memory.New()
		total := uint64(n * b)
		tailer := newDefaultTailer(Config{BatchSize: uint64(b)}, newFakeFetcher(rpctest.Range(0, total)), store)

		for i := 0; i < n; i++ {
			if _, err := tailer.ProcessNextBatch(context.Background()); err != nil {
				rt.Fatalf("iteration %d: %v", i, err)
			}
		}

		max, err := store.GetMaxVersion(context.Background(), processor.DefaultName)
		if err != nil || max == nil || *max != total-1 {
			rt.Fatalf("max version %v, want %d", max, total-1)
		}
		errs, err := store.GetErrorVersions(context.Background(), processor.DefaultName)
		if err != nil || len(errs) != 0 {
			rt.Fatalf("error versions %v", errs)
		}
		if got := store.Counts().Transactions; got != int(total) {
			rt.Fatalf("transactions %d, want %d", got, total)
		}
	})
}

// Failed batches never leave rows behind, and are eventually committed.
func TestAtomicityUnderFailures(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		total := uint64(rapid.IntRange(1, 40).Draw(rt, "total").(int))
		b := uint64(rapid.IntRange(1, 10).Draw(rt, "batch").(int))
		failures := rapid.IntRange(0, 5).Draw(rt, "failures").(int)

		store := memory.New()
		store.FailWrites(failures, nil)
		tailer := newDefaultTailer(Config{BatchSize: b}, newFakeFetcher(rpctest.Range(0, total)), store)

		for i := 0; i < 100; i++ {
			result, err := tailer.ProcessNextBatch(context.Background())
			if err != nil && !errors.Is(err, ErrNoTransactions) {
				rt.Fatalf("iteration %d: %v", i, err)
			}
			for _, failed := range result.Failed {
				for v := failed.StartVersion; v <= failed.EndVersion; v++ {
					if store.HasRows(v) {
						rt.Fatalf("version %d has rows after a failed commit", v)
					}
					if status, ok := store.Status(processor.DefaultName, v); ok && status.Success {
						rt.Fatalf("version %d marked successful after a failed commit", v)
					}
				}
			}
			if errors.Is(err, ErrNoTransactions) && len(result.Committed) == 0 && len(result.Failed) == 0 {
				break
			}
		}

		if got := store.Counts().Transactions; got != int(total) {
			rt.Fatalf("transactions %d, want %d", got, total)
		}
		errs, _ := store.GetErrorVersions(context.Background(), processor.DefaultName)
		if len(errs) != 0 {
			rt.Fatalf("error versions left: %v", errs)
		}
	})
}

func TestGroupVersions(t *testing.T) {
	tests := []struct {
		name     string
		versions []uint64
		size     uint64
		want     []versionRange
	}{
		{name: "empty", versions: nil, size: 3, want: nil},
		{name: "single", versions: []uint64{7}, size: 3, want: []versionRange{{7, 7}}},
		{
			name:     "split by size",
			versions: []uint64{1, 2, 3, 4, 5},
			size:     2,
			want:     []versionRange{{1, 2}, {3, 4}, {5, 5}},
		},
		{
			name:     "split by gaps",
			versions: []uint64{1, 2, 5, 6, 9},
			size:     10,
			want:     []versionRange{{1, 2}, {5, 6}, {9, 9}},
		},
		{
			name:     "zero size",
			versions: []uint64{1, 2},
			size:     0,
			want:     []versionRange{{1, 1}, {2, 2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, groupVersions(tt.versions, tt.size))
		})
	}
}
