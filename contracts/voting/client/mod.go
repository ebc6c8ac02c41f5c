// Package client provides the tools to build the instructions of the voting
// program, submit them, and read the records of the polls.
package client

import (
	"context"
	"sync/atomic"
	"time"

	"go.dedis.ch/pollchain/contracts/voting/types"
	"go.dedis.ch/pollchain/core/account"
	"go.dedis.ch/pollchain/core/address"
	"go.dedis.ch/pollchain/core/execution"
	"go.dedis.ch/pollchain/core/ledger"
	"go.dedis.ch/pollchain/core/txn"
	"go.dedis.ch/pollchain/crypto"
	"golang.org/x/xerrors"
)

// maxAttempts is the number of times the registration of a candidate is tried
// when another registration took the index first.
const maxAttempts = 3

// Ledger is the interface of the ledger used by the client.
type Ledger interface {
	Submit(ctx context.Context, tx *txn.Transaction) (ledger.Entry, error)
	GetAccount(addr address.Address) (account.Account, error)
}

// Signer is an identity that signs transactions.
type Signer interface {
	crypto.Signer

	Address() address.Address
}

// Candidate is a candidate record with its address.
type Candidate struct {
	Address address.Address
	types.CandidateAccount
}

// Client submits the instructions of the voting program to a ledger.
type Client struct {
	ledger  Ledger
	program address.Address
	nonce   uint64
}

// Option is the type of options to create a client.
type Option func(*Client)

// WithProgram sets the address of the voting program.
func WithProgram(program address.Address) Option {
	return func(c *Client) {
		c.program = program
	}
}

// NewClient returns a client of the ledger.
func NewClient(l Ledger, opts ...Option) *Client {
	c := &Client{
		ledger:  l,
		program: types.ProgramID,
		nonce:   uint64(time.Now().UnixNano()),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CreatePoll creates a poll at the address of the poll signer, with the
// authority as the owner and payer.
func (c *Client) CreatePoll(ctx context.Context, authority, poll Signer,
	args types.InitializePollArgs) error {

	instr, err := InitializePoll(c.program, authority.Address(), poll.Address(), args)
	if err != nil {
		return xerrors.Errorf("failed to build: %v", err)
	}

	return c.send(ctx, authority, []txn.Instruction{instr}, poll)
}

// AddCandidate registers a candidate to the poll and returns its address. The
// index of the candidate is read from the poll, and read again if another
// registration took it in the meantime.
func (c *Client) AddCandidate(ctx context.Context, authority Signer, poll address.Address,
	name string) (address.Address, error) {

	var err error

	for i := 0; i < maxAttempts; i++ {
		var record types.PollAccount

		record, err = c.GetPoll(poll)
		if err != nil {
			return address.Address{}, xerrors.Errorf("failed to read poll: %v", err)
		}

		var instr txn.Instruction
		var candidate address.Address

		instr, candidate, err = AddCandidate(c.program, authority.Address(), poll,
			record.CandidateCount, name)
		if err != nil {
			return address.Address{}, xerrors.Errorf("failed to build: %v", err)
		}

		err = c.send(ctx, authority, []txn.Instruction{instr})
		if err == nil {
			return candidate, nil
		}

		stale := xerrors.Is(err, types.ErrConstraintSeeds) || xerrors.Is(err, execution.ErrAllocation)
		if !stale {
			return address.Address{}, err
		}
	}

	return address.Address{}, err
}

// Vote casts the vote of the voter for the candidate of the poll and returns
// the address of the receipt.
func (c *Client) Vote(ctx context.Context, voter Signer, poll,
	candidate address.Address) (address.Address, error) {

	instr, receipt, err := Vote(c.program, voter.Address(), poll, candidate)
	if err != nil {
		return address.Address{}, xerrors.Errorf("failed to build: %v", err)
	}

	err = c.send(ctx, voter, []txn.Instruction{instr})
	if err != nil {
		return address.Address{}, err
	}

	return receipt, nil
}

// GetPoll returns the poll at the address.
func (c *Client) GetPoll(addr address.Address) (types.PollAccount, error) {
	var poll types.PollAccount

	err := c.fetch(addr, &poll)

	return poll, err
}

// GetCandidate returns the candidate at the address.
func (c *Client) GetCandidate(addr address.Address) (types.CandidateAccount, error) {
	var candidate types.CandidateAccount

	err := c.fetch(addr, &candidate)

	return candidate, err
}

// GetCandidates returns the candidates of the poll in registration order.
func (c *Client) GetCandidates(poll address.Address) ([]Candidate, error) {
	record, err := c.GetPoll(poll)
	if err != nil {
		return nil, xerrors.Errorf("failed to read poll: %v", err)
	}

	candidates := make([]Candidate, len(record.Candidates))

	for i, addr := range record.Candidates {
		candidates[i].Address = addr

		candidates[i].CandidateAccount, err = c.GetCandidate(addr)
		if err != nil {
			return nil, xerrors.Errorf("failed to read candidate %d: %v", i, err)
		}
	}

	return candidates, nil
}

// GetReceipt returns the receipt at the address.
func (c *Client) GetReceipt(addr address.Address) (types.VoterReceipt, error) {
	var receipt types.VoterReceipt

	err := c.fetch(addr, &receipt)

	return receipt, err
}

// VerifyVote returns true if the voter has a receipt for the poll, along with
// the address of the receipt.
func (c *Client) VerifyVote(poll, voter address.Address) (bool, address.Address, error) {
	addr, _, err := types.ReceiptAddress(c.program, poll, voter)
	if err != nil {
		return false, addr, err
	}

	acc, err := c.ledger.GetAccount(addr)
	if err != nil {
		return false, addr, xerrors.Errorf("failed to read receipt: %v", err)
	}

	if acc.IsEmpty() {
		return false, addr, nil
	}

	receipt := types.VoterReceipt{}

	err = c.decode(addr, acc, &receipt)
	if err != nil {
		return false, addr, err
	}

	return receipt.Voter == voter && receipt.Poll == poll, addr, nil
}

// ErrNotFound is returned when no record exists at the address.
var ErrNotFound = xerrors.New("account not found")

func (c *Client) fetch(addr address.Address, record interface{ UnmarshalBinary([]byte) error }) error {
	acc, err := c.ledger.GetAccount(addr)
	if err != nil {
		return xerrors.Errorf("failed to read account: %v", err)
	}

	if acc.IsEmpty() {
		return xerrors.Errorf("%v: %w", addr, ErrNotFound)
	}

	return c.decode(addr, acc, record)
}

func (c *Client) decode(addr address.Address, acc account.Account,
	record interface{ UnmarshalBinary([]byte) error }) error {

	if acc.Owner != c.program {
		return xerrors.Errorf("account %v is owned by %v", addr, acc.Owner)
	}

	err := record.UnmarshalBinary(acc.Data)
	if err != nil {
		return xerrors.Errorf("failed to decode %v: %v", addr, err)
	}

	return nil
}

// send signs and submits the instructions paid by the payer. A rejected
// transaction returns the error of its code so that it can be matched with
// xerrors.Is.
func (c *Client) send(ctx context.Context, payer Signer, instrs []txn.Instruction,
	others ...Signer) error {

	msg := txn.Message{
		Nonce:        atomic.AddUint64(&c.nonce, 1),
		Payer:        payer.Address(),
		Instructions: instrs,
	}

	tx, err := txn.NewTransaction(msg)
	if err != nil {
		return xerrors.Errorf("failed to create transaction: %v", err)
	}

	signers := []crypto.Signer{payer}
	for _, other := range others {
		signers = append(signers, other)
	}

	err = tx.Sign(signers...)
	if err != nil {
		return xerrors.Errorf("failed to sign: %v", err)
	}

	entry, err := c.ledger.Submit(ctx, tx)
	if err != nil {
		return xerrors.Errorf("failed to submit: %v", err)
	}

	if entry.Result.Accepted {
		return nil
	}

	known, found := types.ErrorByCode(entry.Result.Code)
	if found {
		return known.With("%s", entry.Result.Message)
	}

	return xerrors.Errorf("transaction rejected: %s", entry.Result.Message)
}
