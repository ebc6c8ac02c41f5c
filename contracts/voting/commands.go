package voting

import (
	"encoding"

	"go.dedis.ch/pollchain/contracts/voting/types"
	"go.dedis.ch/pollchain/core/address"
	"go.dedis.ch/pollchain/core/execution"
	"go.dedis.ch/pollchain/core/txn"
	"golang.org/x/xerrors"
)

// votingCommand implements the commands of the voting contract.
//
// - implements commands
type votingCommand struct {
	*Contract
}

// initializePoll implements commands. It allocates the poll at the address
// that signs along with the authority.
//
// Accounts: [authority (writable, signer), poll (writable, signer), system]
func (votingCommand) initializePoll(ctx execution.Context, step execution.Step,
	args types.InitializePollArgs) error {

	accounts, err := getAccounts(step, 3)
	if err != nil {
		return err
	}

	authority, poll, system := accounts[0], accounts[1], accounts[2]

	err = requireSigner(authority, poll)
	if err != nil {
		return err
	}

	err = requireWritable(authority, poll)
	if err != nil {
		return err
	}

	err = requireSystem(system)
	if err != nil {
		return err
	}

	if len(args.Name) > types.MaxNameLen {
		return types.ErrStringTooLong.With("name has %d bytes", len(args.Name))
	}

	if len(args.Description) > types.MaxDescriptionLen {
		return types.ErrStringTooLong.With("description has %d bytes", len(args.Description))
	}

	err = ctx.CreateAccount(poll.Address, types.PollSpace, authority.Address)
	if err != nil {
		return xerrors.Errorf("poll: %w", err)
	}

	record := types.PollAccount{
		Authority:   authority.Address,
		Name:        args.Name,
		Description: args.Description,
		StartTime:   args.StartTime,
		EndTime:     args.EndTime,
		Candidates:  []address.Address{},
	}

	return storeRecord(ctx, poll.Address, record, types.PollSpace)
}

// addCandidate implements commands. It allocates the candidate at the address
// derived from the poll and the current number of candidates, and appends it
// to the poll.
//
// Accounts: [authority (writable, signer), poll (writable), candidate
// (writable), system]
func (votingCommand) addCandidate(ctx execution.Context, step execution.Step,
	args types.AddCandidateArgs) error {

	accounts, err := getAccounts(step, 4)
	if err != nil {
		return err
	}

	authority, pollMeta, candMeta, system := accounts[0], accounts[1], accounts[2], accounts[3]

	err = requireSigner(authority)
	if err != nil {
		return err
	}

	err = requireWritable(authority, pollMeta, candMeta)
	if err != nil {
		return err
	}

	err = requireSystem(system)
	if err != nil {
		return err
	}

	var poll types.PollAccount

	err = loadRecord(ctx, step, pollMeta.Address, &poll)
	if err != nil {
		return xerrors.Errorf("poll: %w", err)
	}

	if poll.Authority != authority.Address {
		return types.ErrUnauthorized.With("%v is not the authority of the poll", authority.Address)
	}

	if poll.CandidateCount >= types.MaxCandidates {
		return types.ErrCapacityExceeded.With("poll has %d candidates", poll.CandidateCount)
	}

	if len(args.CandidateName) > types.MaxNameLen {
		return types.ErrStringTooLong.With("name has %d bytes", len(args.CandidateName))
	}

	seeds := types.CandidateSeeds(pollMeta.Address, poll.CandidateCount)

	err = createDerived(ctx, step, candMeta.Address, types.CandidateSpace, authority.Address, seeds)
	if err != nil {
		return xerrors.Errorf("candidate: %w", err)
	}

	candidate := types.CandidateAccount{
		Poll: pollMeta.Address,
		Name: args.CandidateName,
	}

	err = storeRecord(ctx, candMeta.Address, candidate, types.CandidateSpace)
	if err != nil {
		return err
	}

	// The counter moves only once the allocation succeeded.
	poll.Candidates = append(poll.Candidates, candMeta.Address)
	poll.CandidateCount++

	return storeRecord(ctx, pollMeta.Address, poll, types.PollSpace)
}

// vote implements commands. It counts the vote for the candidate and
// allocates the receipt of the voter, which fails if the voter already voted
// in the poll.
//
// Accounts: [voter (writable, signer), poll, candidate (writable), receipt
// (writable), system]
func (votingCommand) vote(ctx execution.Context, step execution.Step) error {
	accounts, err := getAccounts(step, 5)
	if err != nil {
		return err
	}

	voter, pollMeta, candMeta, receiptMeta, system := accounts[0], accounts[1],
		accounts[2], accounts[3], accounts[4]

	err = requireSigner(voter)
	if err != nil {
		return err
	}

	err = requireWritable(voter, candMeta, receiptMeta)
	if err != nil {
		return err
	}

	err = requireSystem(system)
	if err != nil {
		return err
	}

	var poll types.PollAccount

	err = loadRecord(ctx, step, pollMeta.Address, &poll)
	if err != nil {
		return xerrors.Errorf("poll: %w", err)
	}

	now := step.Unix()

	if now < poll.StartTime {
		return types.ErrPollNotStarted.With("starts at %d", poll.StartTime)
	}

	if now > poll.EndTime {
		return types.ErrPollEnded.With("ended at %d", poll.EndTime)
	}

	var candidate types.CandidateAccount

	err = loadRecord(ctx, step, candMeta.Address, &candidate)
	if err != nil {
		return xerrors.Errorf("candidate: %w", err)
	}

	if candidate.Poll != pollMeta.Address {
		return types.ErrInvalidCandidateForPoll.With("candidate belongs to %v", candidate.Poll)
	}

	candidate.Votes++

	err = storeRecord(ctx, candMeta.Address, candidate, types.CandidateSpace)
	if err != nil {
		return err
	}

	seeds := types.ReceiptSeeds(pollMeta.Address, voter.Address)

	err = createDerived(ctx, step, receiptMeta.Address, types.ReceiptSpace, voter.Address, seeds)
	if err != nil {
		return xerrors.Errorf("receipt: %w", err)
	}

	receipt := types.VoterReceipt{
		Voter: voter.Address,
		Poll:  pollMeta.Address,
	}

	return storeRecord(ctx, receiptMeta.Address, receipt, types.ReceiptSpace)
}

func getAccounts(step execution.Step, n int) ([]txn.AccountMeta, error) {
	accounts := step.Instruction().Accounts
	if len(accounts) < n {
		return nil, types.ErrNotEnoughAccountKeys.With("expected %d but got %d", n, len(accounts))
	}

	return accounts, nil
}

func requireSigner(metas ...txn.AccountMeta) error {
	for _, meta := range metas {
		if !meta.Signer {
			return types.ErrAccountNotSigner.With("%v", meta.Address)
		}
	}

	return nil
}

func requireWritable(metas ...txn.AccountMeta) error {
	for _, meta := range metas {
		if !meta.Writable {
			return types.ErrConstraintMut.With("%v", meta.Address)
		}
	}

	return nil
}

func requireSystem(meta txn.AccountMeta) error {
	if meta.Address != execution.SystemProgram {
		return types.ErrInvalidProgramID.With("%v is not the system program", meta.Address)
	}

	return nil
}

// createDerived allocates the account at the address derived from the seeds,
// or fails if the address is not the derived one.
func createDerived(ctx execution.Context, step execution.Step, addr address.Address,
	space int, payer address.Address, seeds [][]byte) error {

	expected, bump, err := address.FindProgramAddress(seeds, step.Program())
	if err != nil {
		return xerrors.Errorf("failed to derive: %v", err)
	}

	if expected != addr {
		return types.ErrConstraintSeeds.With("expected %v but got %v", expected, addr)
	}

	seeds = append(seeds, []byte{bump})

	return ctx.CreateAccount(addr, space, payer, seeds...)
}

// loadRecord reads the account at the address and decodes its data into the
// record. The account must be owned by the program.
func loadRecord(ctx execution.Context, step execution.Step, addr address.Address,
	record encoding.BinaryUnmarshaler) error {

	acc, err := ctx.GetAccount(addr)
	if err != nil {
		return err
	}

	if acc.IsEmpty() && acc.Lamports == 0 {
		return types.ErrAccountNotInitialized.With("%v", addr)
	}

	if acc.Owner != step.Program() {
		return types.ErrAccountOwnedByWrongProgram.With("%v is owned by %v", addr, acc.Owner)
	}

	err = record.UnmarshalBinary(acc.Data)
	if xerrors.Is(err, types.ErrTagMismatch) {
		return types.ErrAccountDiscriminatorMismatch.With("%v", addr)
	}

	if err != nil {
		return types.ErrAccountDidNotDeserialize.With("%v: %v", addr, err)
	}

	return nil
}

// storeRecord writes the record as the data of the account at the address.
func storeRecord(ctx execution.Context, addr address.Address,
	record encoding.BinaryMarshaler, space int) error {

	data, err := record.MarshalBinary()
	if xerrors.Is(err, types.ErrTooLong) {
		return types.ErrStringTooLong.With("%v", err)
	}

	if err != nil {
		return xerrors.Errorf("failed to encode record: %v", err)
	}

	data, err = types.Pad(data, space)
	if err != nil {
		return xerrors.Errorf("failed to pad record: %v", err)
	}

	err = ctx.SetData(addr, data)
	if err != nil {
		return xerrors.Errorf("failed to store record: %w", err)
	}

	return nil
}
