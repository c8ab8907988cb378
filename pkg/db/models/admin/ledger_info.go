package admin

const LedgerInfosTable = "ledger_infos"

// LedgerInfo pins the chain id the database was indexed from.
type LedgerInfo struct {
	ChainID int64 `db:"chain_id" json:"chain_id"`
}
