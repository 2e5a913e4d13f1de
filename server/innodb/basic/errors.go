// Package basic holds sentinel errors shared across the transaction
// core so callers can compare with errors.Is instead of string
// matching, mirroring the teacher repo's innodb/basic package trimmed
// to what a transaction-context core actually raises.
package basic

import "github.com/pkg/errors"

// Transaction-related errors.
var (
	ErrInvalidTransactionState = errors.New("invalid transaction state")
	ErrTransactionAborted      = errors.New("transaction aborted")
	ErrTransactionTimeout      = errors.New("transaction timeout")
)

// Wrap annotates err with msg using pkg/errors, preserving a stack
// trace for the first wrap. Used where a caller needs to attach
// context to one of the sentinels above before returning it.
func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}
