package controller

import (
	"fmt"
	"time"

	"go.dedis.ch/pollchain/contracts/voting/types"
	"go.dedis.ch/pollchain/core/ledger"
	"go.dedis.ch/pollchain/crypto/ed25519"
	"go.dedis.ch/pollchain/crypto/loader"
	"golang.org/x/xerrors"
)

// newKeyAction creates the private key of the identity.
//
// - implements actionTemplate
type newKeyAction struct{}

// Execute implements actionTemplate. It loads the key if it already exists so
// that running it twice keeps the same identity.
func (newKeyAction) Execute(ctx Context) error {
	signer, err := loader.LoadSigner(loader.NewFileLoader(ctx.Flags.Path("key")), true)
	if err != nil {
		return xerrors.Errorf("failed to create identity: %v", err)
	}

	fmt.Fprintf(ctx.Out, "%v\n", signer.Address())

	return nil
}

// showKeyAction prints the address of the identity.
//
// - implements actionTemplate
type showKeyAction struct{}

// Execute implements actionTemplate.
func (showKeyAction) Execute(ctx Context) error {
	signer, err := loadSigner(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(ctx.Out, "%v\n", signer.Address())

	return nil
}

// initAction credits the genesis balances.
//
// - implements actionTemplate
type initAction struct{}

// Execute implements actionTemplate.
func (initAction) Execute(ctx Context) error {
	genesis, err := ledger.LoadGenesis(ctx.Flags.Path("genesis"))
	if err != nil {
		return err
	}

	n, err := openNode(ctx)
	if err != nil {
		return err
	}

	defer n.Close()

	err = n.ledger.Init(ctx.Ctx, genesis)
	if err != nil {
		return xerrors.Errorf("failed to initialize ledger: %v", err)
	}

	fmt.Fprintf(ctx.Out, "credited %d accounts\n", len(genesis.Accounts))

	return nil
}

// airdropAction credits lamports to an address.
//
// - implements actionTemplate
type airdropAction struct{}

// Execute implements actionTemplate.
func (airdropAction) Execute(ctx Context) error {
	to, err := addressOrIdentity(ctx, "to")
	if err != nil {
		return err
	}

	n, err := openNode(ctx)
	if err != nil {
		return err
	}

	defer n.Close()

	err = n.ledger.Airdrop(ctx.Ctx, to, ctx.Flags.Uint64("lamports"))
	if err != nil {
		return err
	}

	fmt.Fprintf(ctx.Out, "credited %d lamports to %v\n", ctx.Flags.Uint64("lamports"), to)

	return nil
}

// balanceAction prints the lamports of an address.
//
// - implements actionTemplate
type balanceAction struct{}

// Execute implements actionTemplate.
func (balanceAction) Execute(ctx Context) error {
	addr, err := addressOrIdentity(ctx, "address")
	if err != nil {
		return err
	}

	n, err := openNode(ctx)
	if err != nil {
		return err
	}

	defer n.Close()

	acc, err := n.ledger.GetAccount(addr)
	if err != nil {
		return xerrors.Errorf("failed to read account: %v", err)
	}

	fmt.Fprintf(ctx.Out, "%d\n", acc.Lamports)

	return nil
}

// createPollAction creates a poll at the address of a new key. The key is not
// kept as the poll never signs again.
//
// - implements actionTemplate
type createPollAction struct{}

// Execute implements actionTemplate.
func (createPollAction) Execute(ctx Context) error {
	signer, err := loadSigner(ctx)
	if err != nil {
		return err
	}

	start := uint64(ctx.Clock.Now().Unix())
	if ctx.Flags.IsSet("start") {
		start = ctx.Flags.Uint64("start")
	}

	end := start + uint64(ctx.Flags.Duration("duration")/time.Second)
	if ctx.Flags.IsSet("end") {
		end = ctx.Flags.Uint64("end")
	}

	args := types.InitializePollArgs{
		Name:        ctx.Flags.String("name"),
		Description: ctx.Flags.String("description"),
		StartTime:   start,
		EndTime:     end,
	}

	n, err := openNode(ctx)
	if err != nil {
		return err
	}

	defer n.Close()

	poll := ed25519.NewSigner()

	err = n.client.CreatePoll(ctx.Ctx, signer, poll, args)
	if err != nil {
		return xerrors.Errorf("failed to create poll: %v", err)
	}

	fmt.Fprintf(ctx.Out, "%v\n", poll.Address())

	return nil
}

// addCandidateAction registers a candidate.
//
// - implements actionTemplate
type addCandidateAction struct{}

// Execute implements actionTemplate.
func (addCandidateAction) Execute(ctx Context) error {
	signer, err := loadSigner(ctx)
	if err != nil {
		return err
	}

	poll, err := parseAddress(ctx, "poll")
	if err != nil {
		return err
	}

	n, err := openNode(ctx)
	if err != nil {
		return err
	}

	defer n.Close()

	candidate, err := n.client.AddCandidate(ctx.Ctx, signer, poll, ctx.Flags.String("name"))
	if err != nil {
		return xerrors.Errorf("failed to add candidate: %v", err)
	}

	fmt.Fprintf(ctx.Out, "%v\n", candidate)

	return nil
}

// voteAction casts the vote of the identity.
//
// - implements actionTemplate
type voteAction struct{}

// Execute implements actionTemplate.
func (voteAction) Execute(ctx Context) error {
	signer, err := loadSigner(ctx)
	if err != nil {
		return err
	}

	poll, err := parseAddress(ctx, "poll")
	if err != nil {
		return err
	}

	candidate, err := parseAddress(ctx, "candidate")
	if err != nil {
		return err
	}

	n, err := openNode(ctx)
	if err != nil {
		return err
	}

	defer n.Close()

	receipt, err := n.client.Vote(ctx.Ctx, signer, poll, candidate)
	if err != nil {
		return xerrors.Errorf("failed to vote: %v", err)
	}

	fmt.Fprintf(ctx.Out, "%v\n", receipt)

	return nil
}

// showPollAction prints a poll and the votes of its candidates.
//
// - implements actionTemplate
type showPollAction struct{}

// Execute implements actionTemplate.
func (showPollAction) Execute(ctx Context) error {
	addr, err := parseAddress(ctx, "poll")
	if err != nil {
		return err
	}

	n, err := openNode(ctx)
	if err != nil {
		return err
	}

	defer n.Close()

	view, err := readPoll(n.client, addr, ctx.Clock.Now())
	if err != nil {
		return err
	}

	fmt.Fprintf(ctx.Out, "Poll %v\n", view.Address)
	fmt.Fprintf(ctx.Out, "  name:        %s\n", view.Name)
	fmt.Fprintf(ctx.Out, "  description: %s\n", view.Description)
	fmt.Fprintf(ctx.Out, "  authority:   %v\n", view.Authority)
	fmt.Fprintf(ctx.Out, "  window:      %s - %s\n", formatTime(view.StartTime), formatTime(view.EndTime))
	fmt.Fprintf(ctx.Out, "  status:      %s\n", view.Status)
	fmt.Fprintf(ctx.Out, "  candidates:  %d/%d\n", len(view.Candidates), types.MaxCandidates)

	for i, candidate := range view.Candidates {
		fmt.Fprintf(ctx.Out, "    [%d] %v %s: %d\n", i, candidate.Address, candidate.Name, candidate.Votes)
	}

	return nil
}

// verifyAction checks the receipt of a voter.
//
// - implements actionTemplate
type verifyAction struct{}

// Execute implements actionTemplate.
func (verifyAction) Execute(ctx Context) error {
	poll, err := parseAddress(ctx, "poll")
	if err != nil {
		return err
	}

	voter, err := addressOrIdentity(ctx, "voter")
	if err != nil {
		return err
	}

	n, err := openNode(ctx)
	if err != nil {
		return err
	}

	defer n.Close()

	voted, receipt, err := n.client.VerifyVote(poll, voter)
	if err != nil {
		return xerrors.Errorf("failed to verify: %v", err)
	}

	if voted {
		fmt.Fprintf(ctx.Out, "%v has voted, receipt %v\n", voter, receipt)
	} else {
		fmt.Fprintf(ctx.Out, "%v has not voted\n", voter)
	}

	return nil
}

func formatTime(unix uint64) string {
	return time.Unix(int64(unix), 0).UTC().Format(time.RFC3339)
}
