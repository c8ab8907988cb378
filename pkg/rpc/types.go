package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Transaction type discriminators returned by the upstream.
const (
	TypeUser            = "user_transaction"
	TypeBlockMetadata   = "block_metadata_transaction"
	TypeGenesis         = "genesis_transaction"
	TypeStateCheckpoint = "state_checkpoint_transaction"
)

// U64 is a u64 the upstream encodes as a JSON string. Bare numbers are accepted too;
// null and empty strings are not.
type U64 uint64

func (u *U64) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		return errors.New("invalid u64: null")
	}
	s := strings.Trim(raw, `"`)
	if s == "" {
		return errors.New("invalid u64: empty string")
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid u64 %q: %w", s, err)
	}
	*u = U64(v)
	return nil
}

func (u U64) MarshalJSON() ([]byte, error) {
	return []byte(`"` + strconv.FormatUint(uint64(u), 10) + `"`), nil
}

// Uint64 returns u as a plain uint64.
func (u U64) Uint64() uint64 { return uint64(u) }

// Transaction is one raw ledger transaction. Variant specific fields are empty
// for the variants that do not carry them.
type Transaction struct {
	Type                string           `json:"type"`
	Version             U64              `json:"version"`
	Hash                string           `json:"hash"`
	StateRootHash       string           `json:"state_root_hash"`
	EventRootHash       string           `json:"event_root_hash"`
	GasUsed             U64              `json:"gas_used"`
	Success             bool             `json:"success"`
	VMStatus            string           `json:"vm_status"`
	AccumulatorRootHash string           `json:"accumulator_root_hash"`
	Timestamp           U64              `json:"timestamp"` // microseconds
	Events              []Event          `json:"events"`
	Changes             []WriteSetChange `json:"changes"`

	// user_transaction
	Sender                  string          `json:"sender,omitempty"`
	SequenceNumber          U64             `json:"sequence_number"`
	MaxGasAmount            U64             `json:"max_gas_amount"`
	GasUnitPrice            U64             `json:"gas_unit_price"`
	ExpirationTimestampSecs U64             `json:"expiration_timestamp_secs"`
	Payload                 json.RawMessage `json:"payload,omitempty"`
	Signature               *Signature      `json:"signature,omitempty"`

	// block_metadata_transaction
	ID                 string          `json:"id,omitempty"`
	Epoch              U64             `json:"epoch"`
	Round              U64             `json:"round"`
	PreviousBlockVotes json.RawMessage `json:"previous_block_votes,omitempty"`
	Proposer           string          `json:"proposer,omitempty"`

	decodeErr error
}

// requiredFields lists the keys a transaction of a type must carry, on top of the ones
// every transaction carries.
var requiredFields = map[string][]string{
	"":                {"version", "gas_used"},
	TypeUser:          {"timestamp", "sequence_number", "max_gas_amount", "gas_unit_price", "expiration_timestamp_secs"},
	TypeBlockMetadata: {"timestamp", "epoch", "round"},
}

type transactionJSON Transaction

// UnmarshalJSON decodes a transaction. A transaction whose fields are missing or malformed
// still decodes, as long as its version does, and reports the problem through Err so the
// range it belongs to fails to parse instead of the whole page failing to download.
func (t *Transaction) UnmarshalJSON(b []byte) error {
	var decoded transactionJSON
	if err := json.Unmarshal(b, &decoded); err != nil {
		var version U64
		if verr := version.UnmarshalJSON([]byte(gjson.GetBytes(b, "version").Raw)); verr != nil {
			return err
		}
		*t = Transaction{
			Type:      gjson.GetBytes(b, "type").String(),
			Version:   version,
			Hash:      gjson.GetBytes(b, "hash").String(),
			decodeErr: err,
		}
		return nil
	}

	*t = Transaction(decoded)
	var missing []string
	for _, key := range append(requiredFields[""], requiredFields[t.Type]...) {
		if !gjson.GetBytes(b, key).Exists() {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		t.decodeErr = fmt.Errorf("missing fields %s", strings.Join(missing, ", "))
	}
	return nil
}

// Err reports why the transaction could not be fully decoded, or nil.
func (t *Transaction) Err() error { return t.decodeErr }

// Signature carries the signature scheme of a user transaction.
type Signature struct {
	Type string `json:"type"`
}

// EventGUID identifies the event stream an event belongs to.
type EventGUID struct {
	CreationNumber U64    `json:"creation_number"`
	AccountAddress string `json:"account_address"`
}

// Event is emitted by a transaction. Older upstreams only send Key, the hex encoded
// little endian creation number followed by the account address.
type Event struct {
	Key            string          `json:"key,omitempty"`
	GUID           *EventGUID      `json:"guid,omitempty"`
	SequenceNumber U64             `json:"sequence_number"`
	Type           string          `json:"type"`
	Data           json.RawMessage `json:"data"`
}

// WriteSetChange is a single state change applied by a transaction.
type WriteSetChange struct {
	Type         string          `json:"type"`
	Address      string          `json:"address,omitempty"`
	StateKeyHash string          `json:"state_key_hash"`
	Data         json.RawMessage `json:"data,omitempty"`
	Resource     json.RawMessage `json:"resource,omitempty"`
	Module       json.RawMessage `json:"module,omitempty"`
	Handle       json.RawMessage `json:"handle,omitempty"`
	Key          json.RawMessage `json:"key,omitempty"`
	Value        json.RawMessage `json:"value,omitempty"`
}

// LedgerInfo describes the upstream ledger.
type LedgerInfo struct {
	ChainID         uint64 `json:"chain_id"`
	Epoch           U64    `json:"epoch"`
	LedgerVersion   U64    `json:"ledger_version"`
	LedgerTimestamp U64    `json:"ledger_timestamp"`
}
