package transform

import (
	"fmt"

	indexermodels "github.com/canopy-network/ledgerx/pkg/db/models/indexer"
	"github.com/canopy-network/ledgerx/pkg/rpc"
	"github.com/canopy-network/ledgerx/pkg/utils"
)

// FromTransactions decomposes raw transactions into the five row families, preserving
// the input order within each family.
//
// Every transaction yields one transactions row. User transactions additionally yield a
// user_transactions row and block metadata transactions a block_metadata_transactions row;
// every other type (genesis, state checkpoint, ...) only yields the base row.
func FromTransactions(txns []rpc.Transaction) (*indexermodels.RowSet, error) {
	set := &indexermodels.RowSet{
		Transactions: make([]indexermodels.Transaction, 0, len(txns)),
	}

	for i := range txns {
		txn := &txns[i]
		if err := txn.Err(); err != nil {
			return nil, fmt.Errorf("version %d: %w", txn.Version, err)
		}

		set.Transactions = append(set.Transactions, Transaction(txn))

		switch txn.Type {
		case rpc.TypeUser:
			user, err := UserTransaction(txn)
			if err != nil {
				return nil, fmt.Errorf("version %d: %w", txn.Version, err)
			}
			set.UserTransactions = append(set.UserTransactions, *user)
		case rpc.TypeBlockMetadata:
			bm, err := BlockMetadataTransaction(txn)
			if err != nil {
				return nil, fmt.Errorf("version %d: %w", txn.Version, err)
			}
			set.BlockMetadataTransactions = append(set.BlockMetadataTransactions, *bm)
		}

		events, err := Events(txn)
		if err != nil {
			return nil, fmt.Errorf("version %d: %w", txn.Version, err)
		}
		set.Events = append(set.Events, events...)

		changes, err := WriteSetChanges(txn)
		if err != nil {
			return nil, fmt.Errorf("version %d: %w", txn.Version, err)
		}
		set.WriteSetChanges = append(set.WriteSetChanges, changes...)
	}

	return set, nil
}

// Transaction maps the fields every variant carries.
func Transaction(txn *rpc.Transaction) indexermodels.Transaction {
	return indexermodels.Transaction{
		Version:             utils.U64ToDecimal(txn.Version.Uint64()),
		Hash:                txn.Hash,
		Type:                txn.Type,
		StateChangeHash:     txn.StateRootHash,
		EventRootHash:       txn.EventRootHash,
		GasUsed:             utils.U64ToDecimal(txn.GasUsed.Uint64()),
		Success:             txn.Success,
		VMStatus:            txn.VMStatus,
		AccumulatorRootHash: txn.AccumulatorRootHash,
	}
}
