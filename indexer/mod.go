// Package indexer projects the transactions of the ledger into the operations
// of the voting program.
//
// Decode is a pure function of the transaction bytes: it keeps the
// instructions of the program whose payload starts with a known discriminant
// and decodes, and it joins the accounts of the instruction by position.
// Anything else is skipped.
package indexer

import (
	"encoding/hex"

	"go.dedis.ch/pollchain/contracts/voting/types"
	"go.dedis.ch/pollchain/core/address"
	"go.dedis.ch/pollchain/core/txn"
	"golang.org/x/xerrors"
)

// InitializePoll is the record of a poll creation.
type InitializePoll struct {
	TxID        string
	Name        string
	Description string
	StartTime   uint64
	EndTime     uint64
	Signer      address.Address
	Poll        address.Address
}

// AddCandidate is the record of a candidate registration.
type AddCandidate struct {
	TxID          string
	CandidateName string
	Signer        address.Address
	Poll          address.Address
	Candidate     address.Address
}

// Vote is the record of a vote.
type Vote struct {
	TxID      string
	Signer    address.Address
	Poll      address.Address
	Candidate address.Address
	Receipt   address.Address
}

// Data is the list of records of one or several transactions, in order of
// appearance.
type Data struct {
	InitializePolls []InitializePoll
	AddCandidates   []AddCandidate
	Votes           []Vote
}

// Len returns the total number of records.
func (d Data) Len() int {
	return len(d.InitializePolls) + len(d.AddCandidates) + len(d.Votes)
}

// merge appends the records of the other data.
func (d *Data) merge(other Data) {
	d.InitializePolls = append(d.InitializePolls, other.InitializePolls...)
	d.AddCandidates = append(d.AddCandidates, other.AddCandidates...)
	d.Votes = append(d.Votes, other.Votes...)
}

// Decode returns the records of the program in the encoded transaction. It
// fails only when the transaction itself cannot be decoded.
func Decode(program address.Address, raw []byte) (Data, error) {
	tx, err := txn.Decode(raw)
	if err != nil {
		return Data{}, xerrors.Errorf("failed to decode tx: %v", err)
	}

	return DecodeTransaction(program, tx), nil
}

// DecodeTransaction returns the records of the program in the transaction.
func DecodeTransaction(program address.Address, tx *txn.Transaction) Data {
	data := Data{}
	id := hex.EncodeToString(tx.GetID())

	for _, instr := range tx.Message.Instructions {
		if instr.Program != program {
			continue
		}

		cmd, args, err := types.ParseCommand(instr.Data)
		if err != nil {
			continue
		}

		accts := instr.Accounts

		switch cmd {
		case types.CmdInitializePoll:
			a, err := types.DecodeInitializePoll(args)
			if err != nil || len(accts) < 2 {
				continue
			}

			data.InitializePolls = append(data.InitializePolls, InitializePoll{
				TxID:        id,
				Name:        a.Name,
				Description: a.Description,
				StartTime:   a.StartTime,
				EndTime:     a.EndTime,
				Signer:      accts[0].Address,
				Poll:        accts[1].Address,
			})
		case types.CmdAddCandidate:
			a, err := types.DecodeAddCandidate(args)
			if err != nil || len(accts) < 3 {
				continue
			}

			data.AddCandidates = append(data.AddCandidates, AddCandidate{
				TxID:          id,
				CandidateName: a.CandidateName,
				Signer:        accts[0].Address,
				Poll:          accts[1].Address,
				Candidate:     accts[2].Address,
			})
		case types.CmdVote:
			_, err := types.DecodeVote(args)
			if err != nil || len(accts) < 4 {
				continue
			}

			data.Votes = append(data.Votes, Vote{
				TxID:      id,
				Signer:    accts[0].Address,
				Poll:      accts[1].Address,
				Candidate: accts[2].Address,
				Receipt:   accts[3].Address,
			})
		}
	}

	return data
}
