package transform

import (
	"fmt"
	"math"
	"time"

	indexermodels "github.com/canopy-network/ledgerx/pkg/db/models/indexer"
	"github.com/canopy-network/ledgerx/pkg/rpc"
	"github.com/canopy-network/ledgerx/pkg/utils"
	"github.com/tidwall/gjson"
)

// UserTransaction maps the account submitted part of a user transaction.
func UserTransaction(txn *rpc.Transaction) (*indexermodels.UserTransaction, error) {
	ts, err := microsToTime(txn.Timestamp.Uint64())
	if err != nil {
		return nil, err
	}
	expiration, err := secsToTime(txn.ExpirationTimestampSecs.Uint64())
	if err != nil {
		return nil, fmt.Errorf("expiration_timestamp_secs: %w", err)
	}

	var signatureType string
	if txn.Signature != nil {
		signatureType = txn.Signature.Type
	}

	// Only entry function payloads carry a function id
	var entryFunction string
	if len(txn.Payload) > 0 {
		entryFunction = gjson.GetBytes(txn.Payload, "function").String()
	}

	return &indexermodels.UserTransaction{
		Version:                 utils.U64ToDecimal(txn.Version.Uint64()),
		ParentSignatureType:     signatureType,
		Sender:                  txn.Sender,
		SequenceNumber:          utils.U64ToDecimal(txn.SequenceNumber.Uint64()),
		MaxGasAmount:            utils.U64ToDecimal(txn.MaxGasAmount.Uint64()),
		ExpirationTimestampSecs: expiration,
		GasUnitPrice:            utils.U64ToDecimal(txn.GasUnitPrice.Uint64()),
		Timestamp:               ts,
		EntryFunctionIDStr:      entryFunction,
		Payload:                 rawJSON(txn.Payload, "null"),
	}, nil
}

// BlockMetadataTransaction maps a block boundary marker.
func BlockMetadataTransaction(txn *rpc.Transaction) (*indexermodels.BlockMetadataTransaction, error) {
	ts, err := microsToTime(txn.Timestamp.Uint64())
	if err != nil {
		return nil, err
	}

	return &indexermodels.BlockMetadataTransaction{
		Version:            utils.U64ToDecimal(txn.Version.Uint64()),
		ID:                 txn.ID,
		Epoch:              utils.U64ToDecimal(txn.Epoch.Uint64()),
		Round:              utils.U64ToDecimal(txn.Round.Uint64()),
		PreviousBlockVotes: rawJSON(txn.PreviousBlockVotes, "[]"),
		Proposer:           txn.Proposer,
		Timestamp:          ts,
	}, nil
}

func microsToTime(micros uint64) (time.Time, error) {
	if micros > math.MaxInt64 {
		return time.Time{}, fmt.Errorf("timestamp %d out of range", micros)
	}
	return time.UnixMicro(int64(micros)).UTC(), nil
}

func secsToTime(secs uint64) (time.Time, error) {
	if secs > math.MaxInt64 {
		return time.Time{}, fmt.Errorf("timestamp %d out of range", secs)
	}
	return time.Unix(int64(secs), 0).UTC(), nil
}

// rawJSON returns raw as a string, or fallback when the upstream omitted it.
func rawJSON(raw []byte, fallback string) string {
	if len(raw) == 0 {
		return fallback
	}
	return string(raw)
}
