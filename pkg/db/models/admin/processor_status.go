package admin

import (
	"time"

	"github.com/shopspring/decimal"
)

const ProcessorStatusTable = "processor_statuses"

// ProcessorStatus records the outcome of one processor on one version.
//
// A row is first written as started (Success=false, Details=nil). It becomes
// successful in the same transaction that commits the version's rows, or an
// error row carrying Details when processing failed.
type ProcessorStatus struct {
	Name        string          `db:"name" json:"name"`
	Version     decimal.Decimal `db:"version" json:"version"`
	Success     bool            `db:"success" json:"success"`
	Details     *string         `db:"details" json:"details,omitempty"`
	LastUpdated time.Time       `db:"last_updated" json:"last_updated"`
}

var processorStatusColumns = []string{"name", "version", "success", "details", "last_updated"}

func (ProcessorStatus) Table() string     { return ProcessorStatusTable }
func (ProcessorStatus) Columns() []string { return processorStatusColumns }

func (p ProcessorStatus) Values() []any {
	return []any{p.Name, p.Version, p.Success, p.Details, p.LastUpdated}
}

// IsError reports whether the row is an error row.
func (p ProcessorStatus) IsError() bool {
	return !p.Success && p.Details != nil
}

// IsStarted reports whether the row only marks an attempt in progress.
func (p ProcessorStatus) IsStarted() bool {
	return !p.Success && p.Details == nil
}
