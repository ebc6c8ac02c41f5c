// Package execution defines the boundary between the ledger and the programs
// it runs.
//
// A program is executed once per instruction that names it. It only sees the
// accounts the instruction declares, can modify the data of the writable
// accounts it owns, and allocates new accounts through the context.
package execution

import (
	"time"

	"go.dedis.ch/pollchain/core/address"
	"go.dedis.ch/pollchain/core/store"
	"go.dedis.ch/pollchain/core/txn"
)

// SystemProgram is the address of the runtime itself. Instructions that
// allocate accounts declare it, and it owns the accounts of the identities.
var SystemProgram = address.Zero

// Step is the context of the execution of one instruction.
type Step struct {
	// Tx is the transaction being executed. Its signatures are already
	// verified.
	Tx *txn.Transaction

	// Index is the position of the instruction in the transaction.
	Index int

	// Time is the clock of the ledger when the transaction started.
	Time time.Time
}

// Instruction returns the instruction being executed.
func (s Step) Instruction() txn.Instruction {
	return s.Tx.Message.Instructions[s.Index]
}

// Program returns the address of the program being executed.
func (s Step) Program() address.Address {
	return s.Instruction().Program
}

// Unix returns the number of seconds since the epoch of the step time, or
// zero before the epoch.
func (s Step) Unix() uint64 {
	secs := s.Time.Unix()
	if secs < 0 {
		return 0
	}

	return uint64(secs)
}

// Result is the result of an instruction execution.
type Result struct {
	// Accepted is the success state of the instruction.
	Accepted bool

	// Code is the code of the error that rejected the instruction, if any.
	Code uint32

	// Message gives a chance to the execution to explain why an instruction
	// has failed.
	Message string
}

// Service is the execution service that defines the primitives to execute an
// instruction.
type Service interface {
	// Execute must apply the instruction of the step to the snapshot and
	// return the result of it. An error is returned only when the execution
	// could not happen at all.
	Execute(snap store.Snapshot, step Step) (Result, error)
}

// Clock is the source of time of the ledger.
type Clock interface {
	Now() time.Time
}

// WallClock is a clock that returns the system time.
//
// - implements execution.Clock
type WallClock struct{}

// Now implements execution.Clock.
func (WallClock) Now() time.Time {
	return time.Now()
}
