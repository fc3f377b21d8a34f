package txn

import "fmt"

// Error is a stable engine error carrying an errno-style negative code.
// Callers match with errors.Is against the sentinel values below; the code
// is what crosses administrative surfaces.
type Error struct {
	Code int    // small negative integer, errno-compatible
	Name string // symbolic name, e.g. "EINVAL"
	Text string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Text)
}

var (
	// ErrInvalid rejects null/zero arguments, unknown layer masks, and
	// operations in illegal states. No state change occurs.
	ErrInvalid = &Error{Code: -22, Name: "EINVAL", Text: "invalid argument"}

	// ErrNoMem indicates transaction or operation allocation failed.
	ErrNoMem = &Error{Code: -12, Name: "ENOMEM", Text: "allocation failed"}

	// ErrBusy indicates the live-transaction limit was reached. The begin
	// creates no transaction.
	ErrBusy = &Error{Code: -16, Name: "EBUSY", Text: "transaction table full"}

	// ErrTimedOut indicates a transaction's deadline passed before commit;
	// the transaction was aborted instead.
	ErrTimedOut = &Error{Code: -110, Name: "ETIMEDOUT", Text: "transaction deadline exceeded"}
)
