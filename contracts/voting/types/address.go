package types

import (
	"go.dedis.ch/pollchain/core/address"
	"golang.org/x/xerrors"
)

// ProgramID is the address of the voting program.
var ProgramID = address.MustParse("Doo2arLUifZbfqGVS5Uh7nexAMmsMzaQH5zcwZhSoijz")

const (
	candidateSeed = "candidate"
	receiptSeed   = "receipt"
)

// CandidateSeeds returns the seeds of the candidate at the index of the poll.
func CandidateSeeds(poll address.Address, index uint8) [][]byte {
	return [][]byte{[]byte(candidateSeed), poll.Bytes(), {index}}
}

// ReceiptSeeds returns the seeds of the receipt of the voter in the poll.
func ReceiptSeeds(poll, voter address.Address) [][]byte {
	return [][]byte{[]byte(receiptSeed), poll.Bytes(), voter.Bytes()}
}

// CandidateAddress returns the address and the bump of the candidate at the
// index of the poll.
func CandidateAddress(program, poll address.Address, index uint8) (address.Address, uint8, error) {
	addr, bump, err := address.FindProgramAddress(CandidateSeeds(poll, index), program)
	if err != nil {
		return addr, 0, xerrors.Errorf("failed to derive candidate: %v", err)
	}

	return addr, bump, nil
}

// ReceiptAddress returns the address and the bump of the receipt of the voter
// in the poll.
func ReceiptAddress(program, poll, voter address.Address) (address.Address, uint8, error) {
	addr, bump, err := address.FindProgramAddress(ReceiptSeeds(poll, voter), program)
	if err != nil {
		return addr, 0, xerrors.Errorf("failed to derive receipt: %v", err)
	}

	return addr, bump, nil
}
