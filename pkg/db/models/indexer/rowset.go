package indexer

// RowSet is everything the default processor writes for one range of versions.
type RowSet struct {
	Transactions              []Transaction
	UserTransactions          []UserTransaction
	BlockMetadataTransactions []BlockMetadataTransaction
	Events                    []Event
	WriteSetChanges           []WriteSetChange
}

// Len returns the total number of rows across all families.
func (s *RowSet) Len() int {
	return len(s.Transactions) + len(s.UserTransactions) + len(s.BlockMetadataTransactions) +
		len(s.Events) + len(s.WriteSetChanges)
}

// Families returns the rows grouped per table, in insertion order:
// transactions, user_transactions, block_metadata_transactions, events, write_set_changes.
func (s *RowSet) Families() [][]Row {
	return [][]Row{
		rows(s.Transactions),
		rows(s.UserTransactions),
		rows(s.BlockMetadataTransactions),
		rows(s.Events),
		rows(s.WriteSetChanges),
	}
}

func rows[T Row](in []T) []Row {
	out := make([]Row, len(in))
	for i := range in {
		out[i] = in[i]
	}
	return out
}
