package indexer

// Row is implemented by every row family written by the default processor.
type Row interface {
	// Table is the destination table.
	Table() string
	// Columns lists the inserted columns, in the order of Values.
	Columns() []string
	// Values returns the bind parameters for one row.
	Values() []any
}

// FieldCount is the number of bind parameters a row of this family needs.
func FieldCount(r Row) int {
	return len(r.Columns())
}
