package execution

import (
	"fmt"

	"golang.org/x/xerrors"
)

// Error is a failure that rejects a transaction. The code identifies the kind
// of failure so that a client can react to it, and two errors with the same
// code match with xerrors.Is.
type Error struct {
	Code    uint32
	Name    string
	Message string
}

// NewError returns an error with the code and the name.
func NewError(code uint32, name string) *Error {
	return &Error{Code: code, Name: name}
}

// With returns a copy of the error with the formatted message.
func (e *Error) With(format string, args ...interface{}) *Error {
	return &Error{
		Code:    e.Code,
		Name:    e.Name,
		Message: fmt.Sprintf(format, args...),
	}
}

// Error implements error.
func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s (%d)", e.Name, e.Code)
	}

	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Message)
}

// Is returns true when the target is an error with the same code.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)

	return ok && other.Code == e.Code
}

// Code returns the code of the first coded error in the chain, and false if
// there is none.
func Code(err error) (uint32, bool) {
	var coded *Error
	if xerrors.As(err, &coded) {
		return coded.Code, true
	}

	return 0, false
}

// Errors raised by the runtime.
var (
	// ErrAllocation is returned when an account is allocated at an address
	// that already holds lamports or data.
	ErrAllocation = NewError(1, "AllocationError")

	// ErrInsufficientFunds is returned when a payer cannot afford the rent.
	ErrInsufficientFunds = NewError(2, "InsufficientFunds")

	// ErrUndeclaredAccount is returned when a program accesses an account
	// that the instruction does not declare.
	ErrUndeclaredAccount = NewError(3, "UndeclaredAccount")

	// ErrReadonlyAccount is returned when a program writes an account that
	// the instruction declares read-only.
	ErrReadonlyAccount = NewError(4, "ReadonlyAccount")

	// ErrIllegalOwner is returned when a program modifies an account it does
	// not own.
	ErrIllegalOwner = NewError(5, "IllegalOwner")

	// ErrMissingSignature is returned when an operation requires the
	// signature of an account that did not sign.
	ErrMissingSignature = NewError(6, "MissingSignature")

	// ErrInvalidSeeds is returned when the seeds do not derive the address.
	ErrInvalidSeeds = NewError(7, "InvalidSeeds")

	// ErrInvalidSpace is returned for an invalid data size.
	ErrInvalidSpace = NewError(8, "InvalidSpace")
)
