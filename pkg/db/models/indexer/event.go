package indexer

import "github.com/shopspring/decimal"

const EventsTable = "events"

// Event is keyed by (account_address, creation_number, sequence_number).
type Event struct {
	AccountAddress     string          `db:"account_address" json:"account_address"`
	CreationNumber     decimal.Decimal `db:"creation_number" json:"creation_number"`
	SequenceNumber     decimal.Decimal `db:"sequence_number" json:"sequence_number"`
	TransactionVersion decimal.Decimal `db:"transaction_version" json:"transaction_version"`
	Type               string          `db:"type" json:"type"`
	Data               string          `db:"data" json:"data"` // jsonb
}

var eventColumns = []string{
	"account_address", "creation_number", "sequence_number", "transaction_version", "type", "data",
}

func (Event) Table() string     { return EventsTable }
func (Event) Columns() []string { return eventColumns }

func (e Event) Values() []any {
	return []any{e.AccountAddress, e.CreationNumber, e.SequenceNumber, e.TransactionVersion, e.Type, e.Data}
}
