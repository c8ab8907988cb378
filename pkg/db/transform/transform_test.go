package transform

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/canopy-network/ledgerx/pkg/rpc"
	"github.com/canopy-network/ledgerx/pkg/rpc/rpctest"
	"github.com/canopy-network/ledgerx/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestFromTransactionsMixedBatch(t *testing.T) {
	txns := []rpc.Transaction{
		rpctest.Genesis(0),
		rpctest.BlockMetadata(1),
		rpctest.User(2, 3, 2),
	}

	set, err := FromTransactions(txns)
	require.NoError(t, err)

	assert.Len(t, set.Transactions, 3)
	assert.Len(t, set.UserTransactions, 1)
	assert.Len(t, set.BlockMetadataTransactions, 1)
	assert.Len(t, set.Events, 3)
	assert.Len(t, set.WriteSetChanges, 2)
	assert.Equal(t, 10, set.Len())

	for i, change := range set.WriteSetChanges {
		assert.Equal(t, int64(i), change.Index)
		assert.Equal(t, uint64(2), utils.DecimalToU64(change.TransactionVersion))
		assert.Equal(t, "0xhash2", change.Hash)
	}

	assert.Equal(t, uint64(2), utils.DecimalToU64(set.UserTransactions[0].Version))
	assert.Equal(t, uint64(1), utils.DecimalToU64(set.BlockMetadataTransactions[0].Version))
	assert.Equal(t, rpc.TypeGenesis, set.Transactions[0].Type)
}

func TestFromTransactionsEmpty(t *testing.T) {
	set, err := FromTransactions(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
}

func TestTransactionFields(t *testing.T) {
	txn := rpctest.User(42, 0, 0)
	txn.Version = rpc.U64(uint64(math.MaxUint64) - 5)
	txn.GasUsed = 77
	txn.Success = false
	txn.VMStatus = "Out of gas"

	row := Transaction(&txn)
	assert.Equal(t, uint64(math.MaxUint64)-5, utils.DecimalToU64(row.Version))
	assert.Equal(t, uint64(77), utils.DecimalToU64(row.GasUsed))
	assert.Equal(t, "0xhash42", row.Hash)
	assert.Equal(t, "0xstate42", row.StateChangeHash)
	assert.Equal(t, "0xevent42", row.EventRootHash)
	assert.Equal(t, "0xacc42", row.AccumulatorRootHash)
	assert.False(t, row.Success)
	assert.Equal(t, "Out of gas", row.VMStatus)
}

func TestUserTransactionFields(t *testing.T) {
	txn := rpctest.User(7, 0, 0)

	row, err := UserTransaction(&txn)
	require.NoError(t, err)

	assert.Equal(t, "ed25519_signature", row.ParentSignatureType)
	assert.Equal(t, txn.Sender, row.Sender)
	assert.Equal(t, uint64(7), utils.DecimalToU64(row.SequenceNumber))
	assert.Equal(t, uint64(2000), utils.DecimalToU64(row.MaxGasAmount))
	assert.Equal(t, uint64(1), utils.DecimalToU64(row.GasUnitPrice))
	assert.Equal(t, int64(1_700_000_600), row.ExpirationTimestampSecs.Unix())
	assert.Equal(t, int64(1_700_000_000_000_007), row.Timestamp.UnixMicro())
	assert.Equal(t, "0x1::coin::transfer", row.EntryFunctionIDStr)
	assert.JSONEq(t, string(txn.Payload), row.Payload)
}

func TestUserTransactionWithoutPayload(t *testing.T) {
	txn := rpctest.User(7, 0, 0)
	txn.Payload = nil
	txn.Signature = nil

	row, err := UserTransaction(&txn)
	require.NoError(t, err)
	assert.Equal(t, "null", row.Payload)
	assert.Empty(t, row.EntryFunctionIDStr)
	assert.Empty(t, row.ParentSignatureType)
}

func TestUserTransactionTimestampOutOfRange(t *testing.T) {
	txn := rpctest.User(7, 0, 0)
	txn.Timestamp = rpc.U64(uint64(math.MaxUint64))

	_, err := FromTransactions([]rpc.Transaction{txn})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version 7")
}

func TestBlockMetadataTransactionFields(t *testing.T) {
	txn := rpctest.BlockMetadata(3)

	row, err := BlockMetadataTransaction(&txn)
	require.NoError(t, err)
	assert.Equal(t, "0xblock3", row.ID)
	assert.Equal(t, uint64(1), utils.DecimalToU64(row.Epoch))
	assert.Equal(t, uint64(3), utils.DecimalToU64(row.Round))
	assert.JSONEq(t, `[true,false]`, row.PreviousBlockVotes)
	assert.Equal(t, txn.Proposer, row.Proposer)

	txn.PreviousBlockVotes = nil
	row, err = BlockMetadataTransaction(&txn)
	require.NoError(t, err)
	assert.Equal(t, "[]", row.PreviousBlockVotes)
}

func TestEventsFromGUID(t *testing.T) {
	txn := rpctest.User(5, 2, 0)

	events, err := Events(&txn)
	require.NoError(t, err)
	require.Len(t, events, 2)

	for i, ev := range events {
		assert.Equal(t, txn.Events[i].GUID.AccountAddress, ev.AccountAddress)
		assert.Equal(t, uint64(i), utils.DecimalToU64(ev.CreationNumber))
		assert.Equal(t, uint64(5000+i), utils.DecimalToU64(ev.SequenceNumber))
		assert.Equal(t, uint64(5), utils.DecimalToU64(ev.TransactionVersion))
		assert.JSONEq(t, `{"amount":"100"}`, ev.Data)
	}
}

func TestParseEventKey(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		address  string
		creation uint64
		wantErr  bool
	}{
		{
			name:    "odd length",
			key:     "0x0000000000000000a550c18",
			wantErr: true,
		},
		{
			name:     "little endian creation number",
			key:      "0x0300000000000000" + "a550c18a550c18a5",
			address:  "0xa550c18a550c18a5",
			creation: 3,
		},
		{
			name:     "no prefix",
			key:      "0001000000000000" + "01",
			address:  "0x01",
			creation: 256,
		},
		{
			name:    "too short",
			key:     "0x0100000000000000",
			wantErr: true,
		},
		{
			name:    "not hex",
			key:     "0xzz",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			address, creation, err := ParseEventKey(tt.key)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.address, address)
			assert.Equal(t, tt.creation, creation)
		})
	}
}

func TestEventsFromLegacyKey(t *testing.T) {
	txn := rpctest.User(9, 0, 0)
	txn.Events = []rpc.Event{{
		Key:            "0x0200000000000000" + "00000000000000ab",
		SequenceNumber: 11,
		Type:           "0x1::account::CoinRegisterEvent",
	}}

	events, err := Events(&txn)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "0x00000000000000ab", events[0].AccountAddress)
	assert.Equal(t, uint64(2), utils.DecimalToU64(events[0].CreationNumber))
	assert.Equal(t, "null", events[0].Data)

	txn.Events[0].Key = "bad"
	_, err = FromTransactions([]rpc.Transaction{txn})
	require.Error(t, err)
}

func TestWriteSetChangeData(t *testing.T) {
	txn := rpctest.User(4, 0, 0)
	txn.Changes = []rpc.WriteSetChange{
		{Type: "write_resource", Address: "0x1", StateKeyHash: "0xa", Data: json.RawMessage(`{"x":1}`)},
		{Type: "write_table_item", StateKeyHash: "0xb", Handle: json.RawMessage(`"0xh"`), Key: json.RawMessage(`"0xk"`), Value: json.RawMessage(`"0xv"`)},
		{Type: "delete_resource", Address: "0x1", StateKeyHash: "0xc"},
	}

	changes, err := WriteSetChanges(&txn)
	require.NoError(t, err)
	require.Len(t, changes, 3)

	assert.JSONEq(t, `{"x":1}`, changes[0].Data)
	assert.JSONEq(t, `{"handle":"0xh","key":"0xk","value":"0xv"}`, changes[1].Data)
	assert.Equal(t, "null", changes[2].Data)
	assert.Equal(t, "write_table_item", changes[1].Type)
	assert.Equal(t, "0xb", changes[1].StateKeyHash)
}

// Row counts per family follow the variants and embedded sequences of the input.
func TestFromTransactionsFidelity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 30).Draw(t, "n").(int)

		var (
			txns                          []rpc.Transaction
			users, blocks, events, writes int
		)
		for v := 0; v < n; v++ {
			switch rapid.IntRange(0, 2).Draw(t, "kind").(int) {
			case 0:
				txns = append(txns, rpctest.Genesis(uint64(v)))
			case 1:
				txns = append(txns, rpctest.BlockMetadata(uint64(v)))
				blocks++
			default:
				e := rapid.IntRange(0, 4).Draw(t, "events").(int)
				w := rapid.IntRange(0, 4).Draw(t, "changes").(int)
				txns = append(txns, rpctest.User(uint64(v), e, w))
				users++
				events += e
				writes += w
			}
		}

		set, err := FromTransactions(txns)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(set.Transactions) != n || len(set.UserTransactions) != users ||
			len(set.BlockMetadataTransactions) != blocks || len(set.Events) != events ||
			len(set.WriteSetChanges) != writes {
			t.Fatalf("unexpected row counts")
		}

		// indices restart at 0 for every version
		next := map[uint64]int64{}
		for _, change := range set.WriteSetChanges {
			v := utils.DecimalToU64(change.TransactionVersion)
			if change.Index != next[v] {
				t.Fatalf("version %d: index %d, want %d", v, change.Index, next[v])
			}
			next[v]++
		}
	})
}
