package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/pollchain/contracts/voting/types"
	"go.dedis.ch/pollchain/core/account"
	"go.dedis.ch/pollchain/core/address"
	"go.dedis.ch/pollchain/core/execution"
	"go.dedis.ch/pollchain/core/ledger"
	"go.dedis.ch/pollchain/core/txn"
	"go.dedis.ch/pollchain/crypto/ed25519"
	"go.dedis.ch/pollchain/internal/testing/fake"
	"golang.org/x/xerrors"
)

var (
	testAuthority = address.Address{1}
	testPoll      = address.Address{2}
)

func TestInitializePoll(t *testing.T) {
	args := types.InitializePollArgs{Name: "a", StartTime: 1, EndTime: 2}

	instr, err := InitializePoll(types.ProgramID, testAuthority, testPoll, args)
	require.NoError(t, err)
	require.Equal(t, types.ProgramID, instr.Program)
	require.Equal(t, []txn.AccountMeta{
		txn.NewWritable(testAuthority, true),
		txn.NewWritable(testPoll, true),
		txn.NewReadonly(execution.SystemProgram, false),
	}, instr.Accounts)

	expected, err := args.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, expected, instr.Data)
}

func TestAddCandidate(t *testing.T) {
	instr, candidate, err := AddCandidate(types.ProgramID, testAuthority, testPoll, 3, "Alice")
	require.NoError(t, err)

	expected, _, err := types.CandidateAddress(types.ProgramID, testPoll, 3)
	require.NoError(t, err)
	require.Equal(t, expected, candidate)

	require.Equal(t, []txn.AccountMeta{
		txn.NewWritable(testAuthority, true),
		txn.NewWritable(testPoll, false),
		txn.NewWritable(candidate, false),
		txn.NewReadonly(execution.SystemProgram, false),
	}, instr.Accounts)

	cmd, _, err := types.ParseCommand(instr.Data)
	require.NoError(t, err)
	require.Equal(t, types.CmdAddCandidate, cmd)
}

func TestVote(t *testing.T) {
	candidate := address.Address{3}

	instr, receipt, err := Vote(types.ProgramID, testAuthority, testPoll, candidate)
	require.NoError(t, err)

	expected, _, err := types.ReceiptAddress(types.ProgramID, testPoll, testAuthority)
	require.NoError(t, err)
	require.Equal(t, expected, receipt)

	require.Equal(t, []txn.AccountMeta{
		txn.NewWritable(testAuthority, true),
		txn.NewReadonly(testPoll, false),
		txn.NewWritable(candidate, false),
		txn.NewWritable(receipt, false),
		txn.NewReadonly(execution.SystemProgram, false),
	}, instr.Accounts)

	require.Equal(t, types.CmdVote.Discriminant(), instr.Data)
}

func TestClient_SendRejected(t *testing.T) {
	l := &fakeLedger{
		result: execution.Result{Code: types.ErrPollEnded.Code, Message: "instruction 0: ended"},
	}

	c := NewClient(l)

	_, err := c.Vote(context.Background(), ed25519.NewSigner(), testPoll, address.Address{3})
	require.True(t, xerrors.Is(err, types.ErrPollEnded))
	require.EqualError(t, err, "PollEnded (6001): instruction 0: ended")
	require.Len(t, l.txs, 1)
	require.NoError(t, l.txs[0].Verify())

	l.result = execution.Result{Code: 42, Message: "oops"}
	_, err = c.Vote(context.Background(), ed25519.NewSigner(), testPoll, address.Address{3})
	require.EqualError(t, err, "transaction rejected: oops")

	// Every transaction gets a new nonce.
	require.NotEqual(t, l.txs[0].GetNonce(), l.txs[1].GetNonce())

	l.err = fake.GetError()
	err = c.CreatePoll(context.Background(), ed25519.NewSigner(), ed25519.NewSigner(),
		types.InitializePollArgs{})
	require.EqualError(t, err, fake.Err("failed to submit"))
}

func TestClient_Fetch(t *testing.T) {
	poll := types.PollAccount{Name: "a", Candidates: []address.Address{}}

	l := &fakeLedger{accounts: map[address.Address]account.Account{
		testPoll:   makeAccount(t, types.ProgramID, poll),
		{4}:        makeAccount(t, address.Address{9}, poll),
		{5}:        {Owner: types.ProgramID, Lamports: 1, Data: []byte{1}},
		{6}:        {Lamports: 10},
	}}

	c := NewClient(l)

	record, err := c.GetPoll(testPoll)
	require.NoError(t, err)
	require.Equal(t, poll, record)

	_, err = c.GetPoll(address.Address{3})
	require.True(t, xerrors.Is(err, ErrNotFound))

	// A balance alone is not a record.
	_, err = c.GetPoll(address.Address{6})
	require.True(t, xerrors.Is(err, ErrNotFound))

	_, err = c.GetPoll(address.Address{4})
	require.Error(t, err)
	require.Contains(t, err.Error(), "is owned by")

	_, err = c.GetCandidate(testPoll)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to decode")

	_, err = c.GetReceipt(address.Address{5})
	require.Error(t, err)

	voted, _, err := c.VerifyVote(testPoll, testAuthority)
	require.NoError(t, err)
	require.False(t, voted)

	l.errRead = fake.GetError()
	_, err = c.GetPoll(testPoll)
	require.EqualError(t, err, fake.Err("failed to read account"))

	_, err = c.GetCandidates(testPoll)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read poll")
}

func TestClient_VerifyVote(t *testing.T) {
	voter := address.Address{7}

	receipt, _, err := types.ReceiptAddress(types.ProgramID, testPoll, voter)
	require.NoError(t, err)

	l := &fakeLedger{accounts: map[address.Address]account.Account{
		receipt: makeAccount(t, types.ProgramID, types.VoterReceipt{Voter: voter, Poll: testPoll}),
	}}

	voted, addr, err := NewClient(l).VerifyVote(testPoll, voter)
	require.NoError(t, err)
	require.True(t, voted)
	require.Equal(t, receipt, addr)

	// A receipt of another program is not valid.
	voted, _, err = NewClient(l, WithProgram(address.Address{9})).VerifyVote(testPoll, voter)
	require.NoError(t, err)
	require.False(t, voted)
}

// -----------------------------------------------------------------------------
// Utility functions

type fakeLedger struct {
	txs      []*txn.Transaction
	result   execution.Result
	err      error
	accounts map[address.Address]account.Account
	errRead  error
}

func (l *fakeLedger) Submit(ctx context.Context, tx *txn.Transaction) (ledger.Entry, error) {
	l.txs = append(l.txs, tx)

	return ledger.Entry{Tx: tx, Result: l.result}, l.err
}

func (l *fakeLedger) GetAccount(addr address.Address) (account.Account, error) {
	return l.accounts[addr], l.errRead
}

func makeAccount(t *testing.T, owner address.Address,
	record interface{ MarshalBinary() ([]byte, error) }) account.Account {

	data, err := record.MarshalBinary()
	require.NoError(t, err)

	return account.Account{Owner: owner, Lamports: 1, Data: data}
}
