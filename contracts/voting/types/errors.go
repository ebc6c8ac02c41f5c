package types

import "go.dedis.ch/pollchain/core/execution"

// Errors of the voting program.
var (
	ErrPollNotStarted          = execution.NewError(6000, "PollNotStarted")
	ErrPollEnded               = execution.NewError(6001, "PollEnded")
	ErrUnauthorized            = execution.NewError(6002, "Unauthorized")
	ErrCapacityExceeded        = execution.NewError(6003, "CapacityExceeded")
	ErrInvalidCandidateForPoll = execution.NewError(6004, "InvalidCandidateForPoll")
)

// Errors of the account and payload checks that run before an operation.
var (
	ErrInstructionMissing           = execution.NewError(100, "InstructionMissing")
	ErrInstructionFallbackNotFound  = execution.NewError(101, "InstructionFallbackNotFound")
	ErrInstructionDidNotDeserialize = execution.NewError(102, "InstructionDidNotDeserialize")
	ErrConstraintMut                = execution.NewError(2000, "ConstraintMut")
	ErrConstraintSeeds              = execution.NewError(2006, "ConstraintSeeds")
	ErrAccountDiscriminatorMismatch = execution.NewError(3002, "AccountDiscriminatorMismatch")
	ErrAccountDidNotDeserialize     = execution.NewError(3003, "AccountDidNotDeserialize")
	ErrStringTooLong                = execution.NewError(3004, "StringTooLong")
	ErrNotEnoughAccountKeys         = execution.NewError(3005, "NotEnoughAccountKeys")
	ErrAccountOwnedByWrongProgram   = execution.NewError(3007, "AccountOwnedByWrongProgram")
	ErrInvalidProgramID             = execution.NewError(3008, "InvalidProgramId")
	ErrAccountNotSigner             = execution.NewError(3010, "AccountNotSigner")
	ErrAccountNotInitialized        = execution.NewError(3012, "AccountNotInitialized")
)

// ErrorByCode returns the error of the program, or of the runtime, that has
// the code.
func ErrorByCode(code uint32) (*execution.Error, bool) {
	for _, e := range allErrors {
		if e.Code == code {
			return e, true
		}
	}

	return nil, false
}

var allErrors = []*execution.Error{
	ErrPollNotStarted,
	ErrPollEnded,
	ErrUnauthorized,
	ErrCapacityExceeded,
	ErrInvalidCandidateForPoll,
	ErrInstructionMissing,
	ErrInstructionFallbackNotFound,
	ErrInstructionDidNotDeserialize,
	ErrConstraintMut,
	ErrConstraintSeeds,
	ErrAccountDiscriminatorMismatch,
	ErrAccountDidNotDeserialize,
	ErrStringTooLong,
	ErrNotEnoughAccountKeys,
	ErrAccountOwnedByWrongProgram,
	ErrInvalidProgramID,
	ErrAccountNotSigner,
	ErrAccountNotInitialized,
	execution.ErrAllocation,
	execution.ErrInsufficientFunds,
	execution.ErrUndeclaredAccount,
	execution.ErrReadonlyAccount,
	execution.ErrIllegalOwner,
	execution.ErrMissingSignature,
	execution.ErrInvalidSeeds,
	execution.ErrInvalidSpace,
}
