// Package rpctest builds upstream transactions for tests.
package rpctest

import (
	"encoding/json"
	"fmt"

	"github.com/canopy-network/ledgerx/pkg/rpc"
)

const testAddress = "0x000000000000000000000000000000000000000000000000000000000000a11ce"

// Genesis returns a genesis transaction with no events or changes.
func Genesis(version uint64) rpc.Transaction {
	return base(rpc.TypeGenesis, version)
}

// BlockMetadata returns a block metadata transaction.
func BlockMetadata(version uint64) rpc.Transaction {
	txn := base(rpc.TypeBlockMetadata, version)
	txn.ID = fmt.Sprintf("0xblock%d", version)
	txn.Epoch = 1
	txn.Round = rpc.U64(version)
	txn.PreviousBlockVotes = json.RawMessage(`[true,false]`)
	txn.Proposer = testAddress
	return txn
}

// User returns a user transaction carrying the given number of events and write set changes.
func User(version uint64, events, changes int) rpc.Transaction {
	txn := base(rpc.TypeUser, version)
	txn.Sender = testAddress
	txn.SequenceNumber = rpc.U64(version)
	txn.MaxGasAmount = 2000
	txn.GasUnitPrice = 1
	txn.ExpirationTimestampSecs = 1_700_000_600
	txn.Payload = json.RawMessage(`{"type":"entry_function_payload","function":"0x1::coin::transfer","arguments":[]}`)
	txn.Signature = &rpc.Signature{Type: "ed25519_signature"}

	for i := 0; i < events; i++ {
		txn.Events = append(txn.Events, rpc.Event{
			GUID: &rpc.EventGUID{
				CreationNumber: rpc.U64(i),
				AccountAddress: testAddress,
			},
			// unique per (version, i) so events of different transactions never collide
			SequenceNumber: rpc.U64(version*1000 + uint64(i)),
			Type:           "0x1::coin::DepositEvent",
			Data:           json.RawMessage(`{"amount":"100"}`),
		})
	}
	for i := 0; i < changes; i++ {
		txn.Changes = append(txn.Changes, rpc.WriteSetChange{
			Type:         "write_resource",
			Address:      testAddress,
			StateKeyHash: fmt.Sprintf("0xstate%d_%d", version, i),
			Data:         json.RawMessage(`{"type":"0x1::coin::CoinStore"}`),
		})
	}
	return txn
}

// Range returns count user transactions starting at start, each with one event.
func Range(start, count uint64) []rpc.Transaction {
	out := make([]rpc.Transaction, 0, count)
	for v := start; v < start+count; v++ {
		out = append(out, User(v, 1, 0))
	}
	return out
}

func base(kind string, version uint64) rpc.Transaction {
	return rpc.Transaction{
		Type:                kind,
		Version:             rpc.U64(version),
		Hash:                fmt.Sprintf("0xhash%d", version),
		StateRootHash:       fmt.Sprintf("0xstate%d", version),
		EventRootHash:       fmt.Sprintf("0xevent%d", version),
		GasUsed:             rpc.U64(version % 17),
		Success:             true,
		VMStatus:            "Executed successfully",
		AccumulatorRootHash: fmt.Sprintf("0xacc%d", version),
		Timestamp:           rpc.U64(1_700_000_000_000_000 + version),
	}
}
