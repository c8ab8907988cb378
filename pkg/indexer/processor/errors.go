package processor

import (
	"errors"
	"fmt"
)

var (
	// ErrTransactionParsing matches errors raised while decomposing transactions into rows.
	ErrTransactionParsing = errors.New("transaction parsing error")
	// ErrTransactionCommit matches errors raised while persisting a range.
	ErrTransactionCommit = errors.New("transaction commit error")
)

// Kind classifies a processing failure.
type Kind int

const (
	KindParsing Kind = iota + 1
	KindCommit
)

func (k Kind) String() string {
	switch k {
	case KindParsing:
		return "parsing"
	case KindCommit:
		return "commit"
	default:
		return "unknown"
	}
}

// Error is returned by ProcessTransactions for a failed range.
type Error struct {
	Kind         Kind
	Cause        error
	StartVersion uint64
	EndVersion   uint64
	Name         string
}

// NewParsingError wraps a decomposition failure.
func NewParsingError(name string, start, end uint64, cause error) *Error {
	return &Error{Kind: KindParsing, Cause: cause, StartVersion: start, EndVersion: end, Name: name}
}

// NewCommitError wraps a persistence failure.
func NewCommitError(name string, start, end uint64, cause error) *Error {
	return &Error{Kind: KindCommit, Cause: cause, StartVersion: start, EndVersion: end, Name: name}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: processor %q versions [%d, %d]: %v",
		e.sentinel(), e.Name, e.StartVersion, e.EndVersion, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is match on ErrTransactionParsing and ErrTransactionCommit.
func (e *Error) Is(target error) bool {
	return target == e.sentinel()
}

func (e *Error) sentinel() error {
	if e.Kind == KindParsing {
		return ErrTransactionParsing
	}
	return ErrTransactionCommit
}

// asError returns err as *Error, wrapping foreign errors as commit failures of [start, end].
func asError(name string, start, end uint64, err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return NewCommitError(name, start, end, err)
}
