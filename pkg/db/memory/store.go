// Package memory is an in-process store with the same semantics as the Postgres store.
// It backs unit tests and dry runs.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	adminmodels "github.com/canopy-network/ledgerx/pkg/db/models/admin"
	indexermodels "github.com/canopy-network/ledgerx/pkg/db/models/indexer"
	"github.com/canopy-network/ledgerx/pkg/indexer/metadata"
	"github.com/canopy-network/ledgerx/pkg/utils"
)

var (
	_ metadata.Handle       = (*Store)(nil)
	_ metadata.TailerHandle = (*Store)(nil)
)

// ErrInjected is the default error returned by injected faults.
var ErrInjected = errors.New("injected fault")

type eventKey struct {
	address  string
	creation string
	sequence string
}

type changeKey struct {
	version uint64
	index   int64
}

type statusKey struct {
	name    string
	version uint64
}

// Hook is consulted before a write commits. A non-nil error aborts the write with nothing applied.
type Hook func(name string, start, end uint64) error

// StatusHook is consulted before status rows are applied.
type StatusHook func(rows []adminmodels.ProcessorStatus) error

// Store keeps every table in maps guarded by one mutex, so each call is atomic.
type Store struct {
	mu sync.Mutex

	transactions              map[uint64]indexermodels.Transaction
	userTransactions          map[uint64]indexermodels.UserTransaction
	blockMetadataTransactions map[uint64]indexermodels.BlockMetadataTransaction
	events                    map[eventKey]indexermodels.Event
	writeSetChanges           map[changeKey]indexermodels.WriteSetChange
	statuses                  map[statusKey]adminmodels.ProcessorStatus
	history                   map[statusKey][]adminmodels.ProcessorStatus
	ledger                    *adminmodels.LedgerInfo

	writeHook  Hook
	statusHook StatusHook
	writes     int
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		transactions:              map[uint64]indexermodels.Transaction{},
		userTransactions:          map[uint64]indexermodels.UserTransaction{},
		blockMetadataTransactions: map[uint64]indexermodels.BlockMetadataTransaction{},
		events:                    map[eventKey]indexermodels.Event{},
		writeSetChanges:           map[changeKey]indexermodels.WriteSetChange{},
		statuses:                  map[statusKey]adminmodels.ProcessorStatus{},
		history:                   map[statusKey][]adminmodels.ProcessorStatus{},
	}
}

// SetWriteHook installs h for every later WriteRange. nil removes it.
func (s *Store) SetWriteHook(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeHook = h
}

// SetStatusHook installs h for every later ApplyProcessorStatus. nil removes it.
func (s *Store) SetStatusHook(h StatusHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusHook = h
}

// FailWrites makes the next n WriteRange calls fail with err.
func (s *Store) FailWrites(n int, err error) {
	if err == nil {
		err = ErrInjected
	}
	remaining := n
	s.SetWriteHook(func(string, uint64, uint64) error {
		if remaining <= 0 {
			return nil
		}
		remaining--
		return err
	})
}

// FailVersion makes every WriteRange covering version fail with err.
func (s *Store) FailVersion(version uint64, err error) {
	if err == nil {
		err = ErrInjected
	}
	s.SetWriteHook(func(_ string, start, end uint64) error {
		if version >= start && version <= end {
			return err
		}
		return nil
	})
}

// WriteRange inserts rows with on-conflict-do-nothing semantics and marks [start, end]
// successful for name, all or nothing.
func (s *Store) WriteRange(ctx context.Context, name string, start, end uint64, rows *indexermodels.RowSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeHook != nil {
		if err := s.writeHook(name, start, end); err != nil {
			return err
		}
	}

	for _, row := range rows.Transactions {
		v := utils.DecimalToU64(row.Version)
		if _, ok := s.transactions[v]; !ok {
			s.transactions[v] = row
		}
	}
	for _, row := range rows.UserTransactions {
		v := utils.DecimalToU64(row.Version)
		if _, ok := s.userTransactions[v]; !ok {
			s.userTransactions[v] = row
		}
	}
	for _, row := range rows.BlockMetadataTransactions {
		v := utils.DecimalToU64(row.Version)
		if _, ok := s.blockMetadataTransactions[v]; !ok {
			s.blockMetadataTransactions[v] = row
		}
	}
	for _, row := range rows.Events {
		k := eventKey{
			address:  row.AccountAddress,
			creation: row.CreationNumber.String(),
			sequence: row.SequenceNumber.String(),
		}
		if _, ok := s.events[k]; !ok {
			s.events[k] = row
		}
	}
	for _, row := range rows.WriteSetChanges {
		k := changeKey{version: utils.DecimalToU64(row.TransactionVersion), index: row.Index}
		if _, ok := s.writeSetChanges[k]; !ok {
			s.writeSetChanges[k] = row
		}
	}

	for _, status := range metadata.SuccessRows(name, start, end) {
		s.applyLocked(status)
	}
	s.writes++
	return nil
}

// ApplyProcessorStatus upserts rows by (name, version).
func (s *Store) ApplyProcessorStatus(ctx context.Context, rows []adminmodels.ProcessorStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.statusHook != nil {
		if err := s.statusHook(rows); err != nil {
			return err
		}
	}
	for _, row := range rows {
		s.applyLocked(row)
	}
	return nil
}

func (s *Store) applyLocked(row adminmodels.ProcessorStatus) {
	k := statusKey{name: row.Name, version: utils.DecimalToU64(row.Version)}
	s.statuses[k] = row
	s.history[k] = append(s.history[k], row)
}

// GetMaxVersion returns the largest version with any status row for name.
func (s *Store) GetMaxVersion(ctx context.Context, name string) (*uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		max   uint64
		found bool
	)
	for k := range s.statuses {
		if k.name != name {
			continue
		}
		if !found || k.version > max {
			max = k.version
			found = true
		}
	}
	if !found {
		return nil, nil
	}
	return &max, nil
}

// GetErrorVersions returns the versions of name with success=false, ascending.
func (s *Store) GetErrorVersions(ctx context.Context, name string) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	versions := make([]uint64, 0)
	for k, row := range s.statuses {
		if k.name == name && !row.Success {
			versions = append(versions, k.version)
		}
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return versions, nil
}

// GetLedgerInfo returns the recorded ledger identity, or nil.
func (s *Store) GetLedgerInfo(ctx context.Context) (*adminmodels.LedgerInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ledger == nil {
		return nil, nil
	}
	info := *s.ledger
	return &info, nil
}

// SetLedgerInfo replaces the recorded ledger identity.
func (s *Store) SetLedgerInfo(ctx context.Context, info adminmodels.LedgerInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledger = &info
	return nil
}
