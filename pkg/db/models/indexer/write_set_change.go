package indexer

import "github.com/shopspring/decimal"

const WriteSetChangesTable = "write_set_changes"

// WriteSetChange is keyed by (transaction_version, index); index is dense from 0 per version.
type WriteSetChange struct {
	TransactionVersion decimal.Decimal `db:"transaction_version" json:"transaction_version"`
	Index              int64           `db:"index" json:"index"`
	Hash               string          `db:"hash" json:"hash"`
	Type               string          `db:"type" json:"type"`
	Address            string          `db:"address" json:"address"`
	StateKeyHash       string          `db:"state_key_hash" json:"state_key_hash"`
	Data               string          `db:"data" json:"data"` // jsonb
}

var writeSetChangeColumns = []string{
	"transaction_version", "index", "hash", "type", "address", "state_key_hash", "data",
}

func (WriteSetChange) Table() string     { return WriteSetChangesTable }
func (WriteSetChange) Columns() []string { return writeSetChangeColumns }

func (w WriteSetChange) Values() []any {
	return []any{w.TransactionVersion, w.Index, w.Hash, w.Type, w.Address, w.StateKeyHash, w.Data}
}
