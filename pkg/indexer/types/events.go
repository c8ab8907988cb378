package types

import (
	"time"

	"github.com/canopy-network/ledgerx/pkg/indexer/processor"
)

// EventRangeCommitted is the event type published after a processor commits a range.
const EventRangeCommitted = "range.committed"

// RangeCommittedEvent represents a version range that a processor has fully committed.
// It is published after the status rows are written, so every row in the range is
// queryable when the event is received.
type RangeCommittedEvent struct {
	Event        string    `json:"event"`        // Always "range.committed"
	ChainID      string    `json:"chainId"`      // Upstream chain identifier
	Processor    string    `json:"processor"`    // Processor name
	StartVersion uint64    `json:"startVersion"` // First committed version
	EndVersion   uint64    `json:"endVersion"`   // Last committed version, inclusive
	Count        uint64    `json:"count"`        // Number of versions in the range
	Timestamp    time.Time `json:"timestamp"`    // Event publication time (UTC)
}

// NewRangeCommittedEvent builds the event for a committed processor result.
func NewRangeCommittedEvent(chainID string, res processor.Result, now time.Time) RangeCommittedEvent {
	return RangeCommittedEvent{
		Event:        EventRangeCommitted,
		ChainID:      chainID,
		Processor:    res.Name,
		StartVersion: res.StartVersion,
		EndVersion:   res.EndVersion,
		Count:        res.Count(),
		Timestamp:    now.UTC(),
	}
}

// GetChannel returns the Redis Pub/Sub channel name for a given chain and event type.
// Channel format: ledgerx:{chainId}:{eventType}
// Example: ledgerx:1:range.committed
func GetChannel(chainID, eventType string) string {
	return "ledgerx:" + chainID + ":" + eventType
}

// GetRangeCommittedChannel returns the Redis channel for range.committed events.
func GetRangeCommittedChannel(chainID string) string {
	return GetChannel(chainID, EventRangeCommitted)
}

// GetRangeCommittedStream returns the Redis stream mirroring the range.committed channel.
func GetRangeCommittedStream(chainID string) string {
	return GetRangeCommittedChannel(chainID) + ":stream"
}
