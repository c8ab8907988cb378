package memory

import (
	"sort"

	adminmodels "github.com/canopy-network/ledgerx/pkg/db/models/admin"
	indexermodels "github.com/canopy-network/ledgerx/pkg/db/models/indexer"
)

// Counts is the number of rows per table.
type Counts struct {
	Transactions              int
	UserTransactions          int
	BlockMetadataTransactions int
	Events                    int
	WriteSetChanges           int
	Statuses                  int
}

// Counts returns the current row counts.
func (s *Store) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Counts{
		Transactions:              len(s.transactions),
		UserTransactions:          len(s.userTransactions),
		BlockMetadataTransactions: len(s.blockMetadataTransactions),
		Events:                    len(s.events),
		WriteSetChanges:           len(s.writeSetChanges),
		Statuses:                  len(s.statuses),
	}
}

// Writes returns the number of committed WriteRange calls.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Transaction returns the transactions row of version.
func (s *Store) Transaction(version uint64) (indexermodels.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.transactions[version]
	return row, ok
}

// HasRows reports whether the transactions row of version exists.
func (s *Store) HasRows(version uint64) bool {
	_, ok := s.Transaction(version)
	return ok
}

// WriteSetIndices returns the sorted write set change indices of version.
func (s *Store) WriteSetIndices(version uint64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []int64
	for k := range s.writeSetChanges {
		if k.version == version {
			out = append(out, k.index)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Status returns the current status row of (name, version).
func (s *Store) Status(name string, version uint64) (adminmodels.ProcessorStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.statuses[statusKey{name: name, version: version}]
	return row, ok
}

// StatusHistory returns every row applied to (name, version), oldest first.
func (s *Store) StatusHistory(name string, version uint64) []adminmodels.ProcessorStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]adminmodels.ProcessorStatus(nil), s.history[statusKey{name: name, version: version}]...)
}
