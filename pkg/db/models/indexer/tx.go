package indexer

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransactionsTable              = "transactions"
	UserTransactionsTable          = "user_transactions"
	BlockMetadataTransactionsTable = "block_metadata_transactions"
)

// Transaction holds the fields shared by every ledger transaction. One per version.
type Transaction struct {
	Version             decimal.Decimal `db:"version" json:"version"`
	Hash                string          `db:"hash" json:"hash"`
	Type                string          `db:"type" json:"type"`
	StateChangeHash     string          `db:"state_change_hash" json:"state_change_hash"`
	EventRootHash       string          `db:"event_root_hash" json:"event_root_hash"`
	GasUsed             decimal.Decimal `db:"gas_used" json:"gas_used"`
	Success             bool            `db:"success" json:"success"`
	VMStatus            string          `db:"vm_status" json:"vm_status"`
	AccumulatorRootHash string          `db:"accumulator_root_hash" json:"accumulator_root_hash"`
}

var transactionColumns = []string{
	"version", "hash", "type", "state_change_hash", "event_root_hash",
	"gas_used", "success", "vm_status", "accumulator_root_hash",
}

func (Transaction) Table() string     { return TransactionsTable }
func (Transaction) Columns() []string { return transactionColumns }

func (t Transaction) Values() []any {
	return []any{
		t.Version, t.Hash, t.Type, t.StateChangeHash, t.EventRootHash,
		t.GasUsed, t.Success, t.VMStatus, t.AccumulatorRootHash,
	}
}

// UserTransaction is produced for transactions submitted by an account.
type UserTransaction struct {
	Version                 decimal.Decimal `db:"version" json:"version"`
	ParentSignatureType     string          `db:"parent_signature_type" json:"parent_signature_type"`
	Sender                  string          `db:"sender" json:"sender"`
	SequenceNumber          decimal.Decimal `db:"sequence_number" json:"sequence_number"`
	MaxGasAmount            decimal.Decimal `db:"max_gas_amount" json:"max_gas_amount"`
	ExpirationTimestampSecs time.Time       `db:"expiration_timestamp_secs" json:"expiration_timestamp_secs"`
	GasUnitPrice            decimal.Decimal `db:"gas_unit_price" json:"gas_unit_price"`
	Timestamp               time.Time       `db:"timestamp" json:"timestamp"`
	EntryFunctionIDStr      string          `db:"entry_function_id_str" json:"entry_function_id_str"`
	Payload                 string          `db:"payload" json:"payload"` // jsonb
}

var userTransactionColumns = []string{
	"version", "parent_signature_type", "sender", "sequence_number", "max_gas_amount",
	"expiration_timestamp_secs", "gas_unit_price", "timestamp", "entry_function_id_str", "payload",
}

func (UserTransaction) Table() string     { return UserTransactionsTable }
func (UserTransaction) Columns() []string { return userTransactionColumns }

func (u UserTransaction) Values() []any {
	return []any{
		u.Version, u.ParentSignatureType, u.Sender, u.SequenceNumber, u.MaxGasAmount,
		u.ExpirationTimestampSecs, u.GasUnitPrice, u.Timestamp, u.EntryFunctionIDStr, u.Payload,
	}
}

// BlockMetadataTransaction marks a block boundary.
type BlockMetadataTransaction struct {
	Version            decimal.Decimal `db:"version" json:"version"`
	ID                 string          `db:"id" json:"id"`
	Epoch              decimal.Decimal `db:"epoch" json:"epoch"`
	Round              decimal.Decimal `db:"round" json:"round"`
	PreviousBlockVotes string          `db:"previous_block_votes" json:"previous_block_votes"` // jsonb
	Proposer           string          `db:"proposer" json:"proposer"`
	Timestamp          time.Time       `db:"timestamp" json:"timestamp"`
}

var blockMetadataTransactionColumns = []string{
	"version", "id", "epoch", "round", "previous_block_votes", "proposer", "timestamp",
}

func (BlockMetadataTransaction) Table() string     { return BlockMetadataTransactionsTable }
func (BlockMetadataTransaction) Columns() []string { return blockMetadataTransactionColumns }

func (b BlockMetadataTransaction) Values() []any {
	return []any{b.Version, b.ID, b.Epoch, b.Round, b.PreviousBlockVotes, b.Proposer, b.Timestamp}
}
