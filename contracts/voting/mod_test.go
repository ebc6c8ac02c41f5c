package voting

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/pollchain/contracts/voting/client"
	"go.dedis.ch/pollchain/contracts/voting/types"
	"go.dedis.ch/pollchain/core/account"
	"go.dedis.ch/pollchain/core/address"
	"go.dedis.ch/pollchain/core/execution"
	"go.dedis.ch/pollchain/core/execution/native"
	"go.dedis.ch/pollchain/core/ledger"
	"go.dedis.ch/pollchain/core/store/kv"
	"go.dedis.ch/pollchain/core/txn"
	"go.dedis.ch/pollchain/crypto/ed25519"
	"go.dedis.ch/pollchain/internal/testing/fake"
	"golang.org/x/xerrors"
)

const funds = 1_000_000_000

func TestContract_Execute(t *testing.T) {
	calls := fake.NewCall()
	contract := Contract{cmd: fakeCmd{call: calls}}

	args, err := types.InitializePollArgs{Name: "a", StartTime: 1, EndTime: 2}.MarshalBinary()
	require.NoError(t, err)

	err = contract.Execute(nil, makeStep(t, args))
	require.NoError(t, err)
	require.Equal(t, 1, calls.Len())
	require.Equal(t, "initializePoll", calls.Get(0, 0))
	require.Equal(t, types.InitializePollArgs{Name: "a", StartTime: 1, EndTime: 2}, calls.Get(0, 1))

	args, err = types.AddCandidateArgs{CandidateName: "Alice"}.MarshalBinary()
	require.NoError(t, err)

	err = contract.Execute(nil, makeStep(t, args))
	require.NoError(t, err)
	require.Equal(t, "addCandidate", calls.Get(1, 0))

	args, err = types.VoteArgs{}.MarshalBinary()
	require.NoError(t, err)

	err = contract.Execute(nil, makeStep(t, args))
	require.NoError(t, err)
	require.Equal(t, "vote", calls.Get(2, 0))

	contract.cmd = fakeCmd{err: types.ErrPollEnded}
	err = contract.Execute(nil, makeStep(t, args))
	require.EqualError(t, err, "failed to vote: PollEnded (6001)")
	require.True(t, xerrors.Is(err, types.ErrPollEnded))
}

func TestContract_ExecuteMalformed(t *testing.T) {
	contract := Contract{cmd: fakeCmd{}}

	err := contract.Execute(nil, makeStep(t, []byte{1, 2}))
	require.True(t, xerrors.Is(err, types.ErrInstructionMissing))

	err = contract.Execute(nil, makeStep(t, make([]byte, 8)))
	require.True(t, xerrors.Is(err, types.ErrInstructionFallbackNotFound))

	err = contract.Execute(nil, makeStep(t, types.CmdInitializePoll.Discriminant()))
	require.True(t, xerrors.Is(err, types.ErrInstructionDidNotDeserialize))

	err = contract.Execute(nil, makeStep(t, append(types.CmdAddCandidate.Discriminant(), 9)))
	require.True(t, xerrors.Is(err, types.ErrInstructionDidNotDeserialize))

	err = contract.Execute(nil, makeStep(t, append(types.CmdVote.Discriminant(), 0)))
	require.True(t, xerrors.Is(err, types.ErrInstructionDidNotDeserialize))
}

func TestScenario_Alice(t *testing.T) {
	env := makeEnv(t)
	ctx := context.Background()

	authority := env.newSigner(t)
	poll := ed25519.NewSigner()

	err := env.client.CreatePoll(ctx, authority, poll, types.InitializePollArgs{
		Name:        "Best Pet",
		Description: "Cats or dogs",
		StartTime:   100,
		EndTime:     200,
	})
	require.NoError(t, err)

	record, err := env.client.GetPoll(poll.Address())
	require.NoError(t, err)
	require.Equal(t, authority.Address(), record.Authority)
	require.Equal(t, uint8(0), record.CandidateCount)
	require.Empty(t, record.Candidates)

	acc, err := env.ledger.GetAccount(poll.Address())
	require.NoError(t, err)
	require.Len(t, acc.Data, types.PollSpace)
	require.Equal(t, account.MinimumBalance(types.PollSpace), acc.Lamports)

	alice, err := env.client.AddCandidate(ctx, authority, poll.Address(), "Alice")
	require.NoError(t, err)

	expected, _, err := types.CandidateAddress(types.ProgramID, poll.Address(), 0)
	require.NoError(t, err)
	require.Equal(t, expected, alice)

	record, err = env.client.GetPoll(poll.Address())
	require.NoError(t, err)
	require.Equal(t, uint8(1), record.CandidateCount)
	require.Equal(t, []address.Address{alice}, record.Candidates)

	voter := env.newSigner(t)

	receipt, err := env.client.Vote(ctx, voter, poll.Address(), alice)
	require.NoError(t, err)

	candidate, err := env.client.GetCandidate(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(1), candidate.Votes)
	require.Equal(t, "Alice", candidate.Name)
	require.Equal(t, poll.Address(), candidate.Poll)

	r, err := env.client.GetReceipt(receipt)
	require.NoError(t, err)
	require.Equal(t, types.VoterReceipt{Voter: voter.Address(), Poll: poll.Address()}, r)

	voted, addr, err := env.client.VerifyVote(poll.Address(), voter.Address())
	require.NoError(t, err)
	require.True(t, voted)
	require.Equal(t, receipt, addr)
}

func TestScenario_DoubleVote(t *testing.T) {
	env := makeEnv(t)
	poll, authority := env.createPoll(t, 100, 200)

	alice := env.addCandidate(t, authority, poll, "Alice")
	bob := env.addCandidate(t, authority, poll, "Bob")

	voter := env.newSigner(t)

	_, err := env.client.Vote(context.Background(), voter, poll, alice)
	require.NoError(t, err)

	_, err = env.client.Vote(context.Background(), voter, poll, bob)
	require.True(t, xerrors.Is(err, execution.ErrAllocation), err)

	_, err = env.client.Vote(context.Background(), voter, poll, alice)
	require.True(t, xerrors.Is(err, execution.ErrAllocation), err)

	require.Equal(t, uint64(1), env.votes(t, alice))
	require.Equal(t, uint64(0), env.votes(t, bob))
}

func TestScenario_VotingWindow(t *testing.T) {
	env := makeEnv(t)
	poll, authority := env.createPoll(t, 100, 200)
	alice := env.addCandidate(t, authority, poll, "Alice")

	env.clock.Set(time.Unix(99, 0))
	_, err := env.client.Vote(context.Background(), env.newSigner(t), poll, alice)
	require.True(t, xerrors.Is(err, types.ErrPollNotStarted), err)

	env.clock.Set(time.Unix(201, 0))
	_, err = env.client.Vote(context.Background(), env.newSigner(t), poll, alice)
	require.True(t, xerrors.Is(err, types.ErrPollEnded), err)

	require.Equal(t, uint64(0), env.votes(t, alice))

	// Both bounds are inclusive.
	env.clock.Set(time.Unix(100, 0))
	_, err = env.client.Vote(context.Background(), env.newSigner(t), poll, alice)
	require.NoError(t, err)

	env.clock.Set(time.Unix(200, 0))
	_, err = env.client.Vote(context.Background(), env.newSigner(t), poll, alice)
	require.NoError(t, err)

	require.Equal(t, uint64(2), env.votes(t, alice))

	// Candidates can still be registered while the poll is closed.
	env.clock.Set(time.Unix(300, 0))
	env.addCandidate(t, authority, poll, "Late")
}

func TestScenario_InvertedWindow(t *testing.T) {
	env := makeEnv(t)
	poll, authority := env.createPoll(t, 200, 100)
	alice := env.addCandidate(t, authority, poll, "Alice")

	env.clock.Set(time.Unix(150, 0))
	_, err := env.client.Vote(context.Background(), env.newSigner(t), poll, alice)
	require.True(t, xerrors.Is(err, types.ErrPollNotStarted), err)
}

func TestScenario_Unauthorized(t *testing.T) {
	env := makeEnv(t)
	poll, _ := env.createPoll(t, 100, 200)

	_, err := env.client.AddCandidate(context.Background(), env.newSigner(t), poll, "Mallory")
	require.True(t, xerrors.Is(err, types.ErrUnauthorized), err)

	record, err := env.client.GetPoll(poll)
	require.NoError(t, err)
	require.Equal(t, uint8(0), record.CandidateCount)
}

func TestScenario_Capacity(t *testing.T) {
	env := makeEnv(t)
	poll, authority := env.createPoll(t, 100, 200)

	for i := 0; i < types.MaxCandidates; i++ {
		env.addCandidate(t, authority, poll, string(rune('A'+i)))
	}

	_, err := env.client.AddCandidate(context.Background(), authority, poll, "Sixteenth")
	require.True(t, xerrors.Is(err, types.ErrCapacityExceeded), err)

	record, err := env.client.GetPoll(poll)
	require.NoError(t, err)
	require.Equal(t, uint8(types.MaxCandidates), record.CandidateCount)
	require.Len(t, record.Candidates, types.MaxCandidates)

	candidates, err := env.client.GetCandidates(poll)
	require.NoError(t, err)
	require.Len(t, candidates, types.MaxCandidates)

	for i, c := range candidates {
		expected, _, err := types.CandidateAddress(types.ProgramID, poll, uint8(i))
		require.NoError(t, err)
		require.Equal(t, expected, c.Address)
		require.Equal(t, string(rune('A'+i)), c.Name)
	}
}

func TestScenario_InvalidCandidateForPoll(t *testing.T) {
	env := makeEnv(t)
	pollA, authA := env.createPoll(t, 100, 200)
	pollB, authB := env.createPoll(t, 100, 200)

	env.addCandidate(t, authA, pollA, "Alice")
	bob := env.addCandidate(t, authB, pollB, "Bob")

	voter := env.newSigner(t)

	_, err := env.client.Vote(context.Background(), voter, pollA, bob)
	require.True(t, xerrors.Is(err, types.ErrInvalidCandidateForPoll), err)

	voted, _, err := env.client.VerifyVote(pollA, voter.Address())
	require.NoError(t, err)
	require.False(t, voted)

	require.Equal(t, uint64(0), env.votes(t, bob))
}

func TestScenario_PollAlreadyExists(t *testing.T) {
	env := makeEnv(t)
	authority := env.newSigner(t)
	poll := ed25519.NewSigner()

	args := types.InitializePollArgs{Name: "a", StartTime: 1, EndTime: 2}

	require.NoError(t, env.client.CreatePoll(context.Background(), authority, poll, args))

	args.Name = "b"
	err := env.client.CreatePoll(context.Background(), env.newSigner(t), poll, args)
	require.True(t, xerrors.Is(err, execution.ErrAllocation), err)

	record, err := env.client.GetPoll(poll.Address())
	require.NoError(t, err)
	require.Equal(t, "a", record.Name)
	require.Equal(t, authority.Address(), record.Authority)
}

func TestScenario_StringTooLong(t *testing.T) {
	env := makeEnv(t)
	authority := env.newSigner(t)

	args := types.InitializePollArgs{Name: string(make([]byte, types.MaxNameLen+1))}
	err := env.client.CreatePoll(context.Background(), authority, ed25519.NewSigner(), args)
	require.True(t, xerrors.Is(err, types.ErrStringTooLong), err)

	args = types.InitializePollArgs{Description: string(make([]byte, types.MaxDescriptionLen+1))}
	err = env.client.CreatePoll(context.Background(), authority, ed25519.NewSigner(), args)
	require.True(t, xerrors.Is(err, types.ErrStringTooLong), err)

	poll, authority := env.createPoll(t, 100, 200)
	_, err = env.client.AddCandidate(context.Background(), authority, poll,
		string(make([]byte, types.MaxNameLen+1)))
	require.True(t, xerrors.Is(err, types.ErrStringTooLong), err)
}

func TestScenario_StaleIndex(t *testing.T) {
	env := makeEnv(t)
	poll, authority := env.createPoll(t, 100, 200)
	env.addCandidate(t, authority, poll, "Alice")

	// Built with the index already taken by Alice.
	instr, _, err := client.AddCandidate(types.ProgramID, authority.Address(), poll, 0, "Bob")
	require.NoError(t, err)

	res := env.submit(t, authority, instr)
	require.False(t, res.Accepted)
	require.Equal(t, types.ErrConstraintSeeds.Code, res.Code)
}

func TestScenario_FundedReceipt(t *testing.T) {
	env := makeEnv(t)
	poll, authority := env.createPoll(t, 100, 200)
	alice := env.addCandidate(t, authority, poll, "Alice")
	voter := env.newSigner(t)

	receipt, _, err := types.ReceiptAddress(types.ProgramID, poll, voter.Address())
	require.NoError(t, err)

	// Anyone can transfer lamports to the receipt before the vote.
	require.NoError(t, env.ledger.Airdrop(context.Background(), receipt, 1000))

	voted, _, err := env.client.VerifyVote(poll, voter.Address())
	require.NoError(t, err)
	require.False(t, voted)

	_, err = env.client.Vote(context.Background(), voter, poll, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(1), env.votes(t, alice))

	acc, err := env.ledger.GetAccount(receipt)
	require.NoError(t, err)
	require.Equal(t, types.ProgramID, acc.Owner)
	require.Equal(t, account.MinimumBalance(types.ReceiptSpace), acc.Lamports)

	acc, err = env.ledger.GetAccount(voter.Address())
	require.NoError(t, err)
	require.Equal(t, funds-account.MinimumBalance(types.ReceiptSpace)+1000, acc.Lamports)

	_, err = env.client.Vote(context.Background(), voter, poll, alice)
	require.True(t, xerrors.Is(err, execution.ErrAllocation), err)
}

func TestScenario_ConcurrentCandidates(t *testing.T) {
	env := makeEnv(t)
	poll, authority := env.createPoll(t, 100, 200)

	n := 5

	txs := make([]*txn.Transaction, n)
	for i := range txs {
		instr, _, err := client.AddCandidate(types.ProgramID, authority.Address(), poll, 0,
			fmt.Sprintf("candidate %d", i))
		require.NoError(t, err)

		txs[i], err = txn.NewTransaction(txn.Message{
			Nonce:        uint64(i + 1),
			Payer:        authority.Address(),
			Instructions: []txn.Instruction{instr},
		})
		require.NoError(t, err)
		require.NoError(t, txs[i].Sign(authority))
	}

	results := make(chan execution.Result, n)
	wg := sync.WaitGroup{}
	wg.Add(n)

	for _, tx := range txs {
		go func(tx *txn.Transaction) {
			defer wg.Done()

			entry, err := env.ledger.Submit(context.Background(), tx)
			if err == nil {
				results <- entry.Result
			}
		}(tx)
	}

	wg.Wait()
	close(results)

	accepted := 0
	for res := range results {
		if res.Accepted {
			accepted++
		} else {
			// The losers derived the address of a counter that moved.
			requireCode(t, res, types.ErrConstraintSeeds)
		}
	}

	require.Equal(t, 1, accepted)

	candidates, err := env.client.GetCandidates(poll)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
}

func TestScenario_ConcurrentVotes(t *testing.T) {
	env := makeEnv(t)
	poll, authority := env.createPoll(t, 100, 200)
	alice := env.addCandidate(t, authority, poll, "Alice")
	bob := env.addCandidate(t, authority, poll, "Bob")

	n := 10
	voters := make([]ed25519.Signer, n)
	for i := range voters {
		voters[i] = env.newSigner(t)
	}

	errs := make(chan error, 2*n)
	wg := sync.WaitGroup{}
	wg.Add(2 * n)

	for i, voter := range voters {
		candidate := alice
		if i%2 == 1 {
			candidate = bob
		}

		go func(voter ed25519.Signer, candidate address.Address) {
			defer wg.Done()

			_, err := env.client.Vote(context.Background(), voter, poll, candidate)
			errs <- err
		}(voter, candidate)

		// The same voter tries again for the other candidate.
		other := bob
		if candidate == bob {
			other = alice
		}

		go func(voter ed25519.Signer, candidate address.Address) {
			defer wg.Done()

			_, err := env.client.Vote(context.Background(), voter, poll, candidate)
			errs <- err
		}(voter, other)
	}

	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.True(t, xerrors.Is(err, execution.ErrAllocation), err)
		}
	}

	require.Equal(t, n, succeeded)
	require.Equal(t, uint64(n), env.votes(t, alice)+env.votes(t, bob))

	for _, voter := range voters {
		voted, _, err := env.client.VerifyVote(poll, voter.Address())
		require.NoError(t, err)
		require.True(t, voted)
	}
}

func TestScenario_AccountChecks(t *testing.T) {
	env := makeEnv(t)
	poll, authority := env.createPoll(t, 100, 200)
	alice := env.addCandidate(t, authority, poll, "Alice")
	voter := env.newSigner(t)

	instr, _, err := client.Vote(types.ProgramID, voter.Address(), poll, alice)
	require.NoError(t, err)

	// Missing accounts.
	short := instr
	short.Accounts = instr.Accounts[:4]
	requireCode(t, env.submit(t, voter, short), types.ErrNotEnoughAccountKeys)

	// The candidate must be writable.
	readonly := copyInstr(instr)
	readonly.Accounts[2].Writable = false
	requireCode(t, env.submit(t, voter, readonly), types.ErrConstraintMut)

	// The system program is required.
	wrongSystem := copyInstr(instr)
	wrongSystem.Accounts[4] = txn.NewReadonly(address.Address{7}, false)
	requireCode(t, env.submit(t, voter, wrongSystem), types.ErrInvalidProgramID)

	// A candidate used as a poll.
	swapped := copyInstr(instr)
	swapped.Accounts[1] = txn.NewReadonly(alice, false)
	requireCode(t, env.submit(t, voter, swapped), types.ErrAccountDiscriminatorMismatch)

	// An unallocated poll.
	missing := copyInstr(instr)
	missing.Accounts[1] = txn.NewReadonly(address.Address{8}, false)
	requireCode(t, env.submit(t, voter, missing), types.ErrAccountNotInitialized)

	// An identity used as a poll.
	wrongOwner := copyInstr(instr)
	wrongOwner.Accounts[1] = txn.NewReadonly(authority.Address(), false)
	requireCode(t, env.submit(t, voter, wrongOwner), types.ErrAccountOwnedByWrongProgram)

	// A receipt that is not derived from the voter.
	other, _, err := types.ReceiptAddress(types.ProgramID, poll, authority.Address())
	require.NoError(t, err)

	wrongReceipt := copyInstr(instr)
	wrongReceipt.Accounts[3] = txn.NewWritable(other, false)
	requireCode(t, env.submit(t, voter, wrongReceipt), types.ErrConstraintSeeds)

	// The poll signer is required at creation.
	create, err := client.InitializePoll(types.ProgramID, authority.Address(),
		address.Address{6}, types.InitializePollArgs{})
	require.NoError(t, err)

	create.Accounts[1].Signer = false
	requireCode(t, env.submit(t, authority, create), types.ErrAccountNotSigner)

	// Nothing changed.
	require.Equal(t, uint64(0), env.votes(t, alice))
}

// -----------------------------------------------------------------------------
// Utility functions

type fakeCmd struct {
	err  error
	call *fake.Call
}

func (c fakeCmd) initializePoll(ctx execution.Context, step execution.Step, args types.InitializePollArgs) error {
	c.call.Add("initializePoll", args)
	return c.err
}

func (c fakeCmd) addCandidate(ctx execution.Context, step execution.Step, args types.AddCandidateArgs) error {
	c.call.Add("addCandidate", args)
	return c.err
}

func (c fakeCmd) vote(ctx execution.Context, step execution.Step) error {
	c.call.Add("vote")
	return c.err
}

func makeStep(t *testing.T, data []byte) execution.Step {
	msg := txn.Message{
		Instructions: []txn.Instruction{{Program: types.ProgramID, Data: data}},
	}

	tx, err := txn.NewTransaction(msg)
	require.NoError(t, err)

	return execution.Step{Tx: tx}
}

type testEnv struct {
	ledger *ledger.Ledger
	clock  *fake.Clock
	client *client.Client
	nonce  uint64
}

func makeEnv(t *testing.T) *testEnv {
	db, err := kv.New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	exec := native.NewExecution()
	RegisterContract(exec, NewContract())

	clock := fake.NewClock(time.Unix(150, 0))
	l := ledger.New(db, exec, ledger.WithClock(clock))

	return &testEnv{
		ledger: l,
		clock:  clock,
		client: client.NewClient(l),
	}
}

func (env *testEnv) newSigner(t *testing.T) ed25519.Signer {
	signer := ed25519.NewSigner()

	err := env.ledger.Airdrop(context.Background(), signer.Address(), funds)
	require.NoError(t, err)

	return signer
}

func (env *testEnv) createPoll(t *testing.T, start, end uint64) (address.Address, ed25519.Signer) {
	authority := env.newSigner(t)
	poll := ed25519.NewSigner()

	err := env.client.CreatePoll(context.Background(), authority, poll, types.InitializePollArgs{
		Name:      "poll",
		StartTime: start,
		EndTime:   end,
	})
	require.NoError(t, err)

	return poll.Address(), authority
}

func (env *testEnv) addCandidate(t *testing.T, authority ed25519.Signer, poll address.Address,
	name string) address.Address {

	addr, err := env.client.AddCandidate(context.Background(), authority, poll, name)
	require.NoError(t, err)

	return addr
}

func (env *testEnv) votes(t *testing.T, candidate address.Address) uint64 {
	record, err := env.client.GetCandidate(candidate)
	require.NoError(t, err)

	return record.Votes
}

func (env *testEnv) submit(t *testing.T, payer ed25519.Signer, instr txn.Instruction) execution.Result {
	env.nonce++

	tx, err := txn.NewTransaction(txn.Message{
		Nonce:        env.nonce,
		Payer:        payer.Address(),
		Instructions: []txn.Instruction{instr},
	})
	require.NoError(t, err)
	require.NoError(t, tx.Sign(payer))

	entry, err := env.ledger.Submit(context.Background(), tx)
	require.NoError(t, err)

	return entry.Result
}

func copyInstr(instr txn.Instruction) txn.Instruction {
	instr.Accounts = append([]txn.AccountMeta{}, instr.Accounts...)
	return instr
}

func requireCode(t *testing.T, res execution.Result, expected *execution.Error) {
	require.False(t, res.Accepted)
	require.Equal(t, expected.Code, res.Code, res.Message)
}
