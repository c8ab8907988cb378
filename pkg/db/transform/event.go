package transform

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	indexermodels "github.com/canopy-network/ledgerx/pkg/db/models/indexer"
	"github.com/canopy-network/ledgerx/pkg/rpc"
	"github.com/canopy-network/ledgerx/pkg/utils"
)

// creationNumberBytes is the width of the little endian creation number prefix of a legacy event key.
const creationNumberBytes = 8

// Events flattens the events of txn in emission order.
func Events(txn *rpc.Transaction) ([]indexermodels.Event, error) {
	if len(txn.Events) == 0 {
		return nil, nil
	}

	version := utils.U64ToDecimal(txn.Version.Uint64())
	out := make([]indexermodels.Event, 0, len(txn.Events))
	for i := range txn.Events {
		ev := &txn.Events[i]

		address, creation, err := eventStream(ev)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}

		out = append(out, indexermodels.Event{
			AccountAddress:     address,
			CreationNumber:     utils.U64ToDecimal(creation),
			SequenceNumber:     utils.U64ToDecimal(ev.SequenceNumber.Uint64()),
			TransactionVersion: version,
			Type:               ev.Type,
			Data:               rawJSON(ev.Data, "null"),
		})
	}
	return out, nil
}

// eventStream resolves the (account, creation number) pair of an event, preferring the guid.
func eventStream(ev *rpc.Event) (string, uint64, error) {
	if ev.GUID != nil {
		return ev.GUID.AccountAddress, ev.GUID.CreationNumber.Uint64(), nil
	}
	return ParseEventKey(ev.Key)
}

// ParseEventKey splits a legacy event key into its account address and creation number.
func ParseEventKey(key string) (string, uint64, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(key, "0x"))
	if err != nil {
		return "", 0, fmt.Errorf("invalid event key %q: %w", key, err)
	}
	if len(raw) <= creationNumberBytes {
		return "", 0, fmt.Errorf("invalid event key %q: too short", key)
	}
	creation := binary.LittleEndian.Uint64(raw[:creationNumberBytes])
	return "0x" + hex.EncodeToString(raw[creationNumberBytes:]), creation, nil
}
