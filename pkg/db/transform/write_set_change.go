package transform

import (
	"encoding/json"
	"fmt"

	indexermodels "github.com/canopy-network/ledgerx/pkg/db/models/indexer"
	"github.com/canopy-network/ledgerx/pkg/rpc"
	"github.com/canopy-network/ledgerx/pkg/utils"
)

// WriteSetChanges flattens the changes of txn, numbering them densely from 0.
func WriteSetChanges(txn *rpc.Transaction) ([]indexermodels.WriteSetChange, error) {
	if len(txn.Changes) == 0 {
		return nil, nil
	}

	version := utils.U64ToDecimal(txn.Version.Uint64())
	out := make([]indexermodels.WriteSetChange, 0, len(txn.Changes))
	for i := range txn.Changes {
		change := &txn.Changes[i]

		data, err := changeData(change)
		if err != nil {
			return nil, fmt.Errorf("change %d: %w", i, err)
		}

		out = append(out, indexermodels.WriteSetChange{
			TransactionVersion: version,
			Index:              int64(i),
			Hash:               txn.Hash,
			Type:               change.Type,
			Address:            change.Address,
			StateKeyHash:       change.StateKeyHash,
			Data:               data,
		})
	}
	return out, nil
}

// changeData returns the change payload. Table item changes carry handle/key/value and
// module changes carry module instead of data, so those are folded into one object.
func changeData(change *rpc.WriteSetChange) (string, error) {
	if len(change.Data) > 0 {
		return string(change.Data), nil
	}

	fields := map[string]json.RawMessage{}
	for name, raw := range map[string]json.RawMessage{
		"resource": change.Resource,
		"module":   change.Module,
		"handle":   change.Handle,
		"key":      change.Key,
		"value":    change.Value,
	} {
		if len(raw) > 0 {
			fields[name] = raw
		}
	}
	if len(fields) == 0 {
		return "null", nil
	}

	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal change data: %w", err)
	}
	return string(b), nil
}
