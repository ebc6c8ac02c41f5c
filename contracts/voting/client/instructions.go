package client

import (
	"go.dedis.ch/pollchain/contracts/voting/types"
	"go.dedis.ch/pollchain/core/address"
	"go.dedis.ch/pollchain/core/execution"
	"go.dedis.ch/pollchain/core/txn"
	"golang.org/x/xerrors"
)

// InitializePoll returns the instruction that creates a poll at the poll
// address. Both the authority and the poll must sign.
func InitializePoll(program, authority, poll address.Address,
	args types.InitializePollArgs) (txn.Instruction, error) {

	data, err := args.MarshalBinary()
	if err != nil {
		return txn.Instruction{}, xerrors.Errorf("failed to encode: %v", err)
	}

	instr := txn.Instruction{
		Program: program,
		Accounts: []txn.AccountMeta{
			txn.NewWritable(authority, true),
			txn.NewWritable(poll, true),
			txn.NewReadonly(execution.SystemProgram, false),
		},
		Data: data,
	}

	return instr, nil
}

// AddCandidate returns the instruction that registers the candidate at the
// index of the poll, and the address of the candidate. The index must be the
// current number of candidates of the poll.
func AddCandidate(program, authority, poll address.Address, index uint8,
	name string) (txn.Instruction, address.Address, error) {

	candidate, _, err := types.CandidateAddress(program, poll, index)
	if err != nil {
		return txn.Instruction{}, candidate, err
	}

	data, err := types.AddCandidateArgs{CandidateName: name}.MarshalBinary()
	if err != nil {
		return txn.Instruction{}, candidate, xerrors.Errorf("failed to encode: %v", err)
	}

	instr := txn.Instruction{
		Program: program,
		Accounts: []txn.AccountMeta{
			txn.NewWritable(authority, true),
			txn.NewWritable(poll, false),
			txn.NewWritable(candidate, false),
			txn.NewReadonly(execution.SystemProgram, false),
		},
		Data: data,
	}

	return instr, candidate, nil
}

// Vote returns the instruction that casts the vote of the voter, and the
// address of the receipt. The poll is declared read-only so that votes for
// different candidates of a poll do not wait on each other.
func Vote(program, voter, poll, candidate address.Address) (txn.Instruction, address.Address, error) {
	receipt, _, err := types.ReceiptAddress(program, poll, voter)
	if err != nil {
		return txn.Instruction{}, receipt, err
	}

	data, err := types.VoteArgs{}.MarshalBinary()
	if err != nil {
		return txn.Instruction{}, receipt, xerrors.Errorf("failed to encode: %v", err)
	}

	instr := txn.Instruction{
		Program: program,
		Accounts: []txn.AccountMeta{
			txn.NewWritable(voter, true),
			txn.NewReadonly(poll, false),
			txn.NewWritable(candidate, false),
			txn.NewWritable(receipt, false),
			txn.NewReadonly(execution.SystemProgram, false),
		},
		Data: data,
	}

	return instr, receipt, nil
}
