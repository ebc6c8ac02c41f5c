// Package voting implements the voting program.
//
// A poll is created by its authority, who then registers up to fifteen
// candidates. Any identity can vote once per poll within the voting window.
// The single vote per voter is enforced by the allocation of a receipt at an
// address derived from the poll and the voter, which fails when the receipt
// already exists.
package voting

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.dedis.ch/pollchain"
	"go.dedis.ch/pollchain/contracts/voting/types"
	"go.dedis.ch/pollchain/core/execution"
	"go.dedis.ch/pollchain/core/execution/native"
	"golang.org/x/xerrors"
)

// defines prometheus metrics
var (
	promInstructions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pollchain_voting_instructions_total",
		Help: "total number of executed instructions by command and status",
	}, []string{"command", "status"})
)

func init() {
	pollchain.PromCollectors = append(pollchain.PromCollectors, promInstructions)
}

// commands defines the commands of the voting contract. This interface helps
// in testing the contract.
type commands interface {
	initializePoll(ctx execution.Context, step execution.Step, args types.InitializePollArgs) error
	addCandidate(ctx execution.Context, step execution.Step, args types.AddCandidateArgs) error
	vote(ctx execution.Context, step execution.Step) error
}

// RegisterContract registers the voting contract to the given execution
// service at the program address.
func RegisterContract(exec *native.Service, c Contract) {
	exec.Set(types.ProgramID, c)
}

// Contract is the voting program.
//
// - implements native.Contract
type Contract struct {
	// cmd provides the commands that can be executed by this program
	cmd commands
}

// NewContract creates a new voting contract.
func NewContract() Contract {
	contract := Contract{}
	contract.cmd = votingCommand{Contract: &contract}

	return contract
}

// Execute implements native.Contract. It decodes the payload of the
// instruction and runs the command it selects.
func (c Contract) Execute(ctx execution.Context, step execution.Step) error {
	cmd, args, err := types.ParseCommand(step.Instruction().Data)
	if xerrors.Is(err, types.ErrMissingDiscriminant) {
		return types.ErrInstructionMissing
	}

	if err != nil {
		return types.ErrInstructionFallbackNotFound.With("%v", err)
	}

	switch cmd {
	case types.CmdInitializePoll:
		var a types.InitializePollArgs
		a, err = types.DecodeInitializePoll(args)
		if err != nil {
			return types.ErrInstructionDidNotDeserialize.With("%v", err)
		}

		err = c.cmd.initializePoll(ctx, step, a)
	case types.CmdAddCandidate:
		var a types.AddCandidateArgs
		a, err = types.DecodeAddCandidate(args)
		if err != nil {
			return types.ErrInstructionDidNotDeserialize.With("%v", err)
		}

		err = c.cmd.addCandidate(ctx, step, a)
	case types.CmdVote:
		_, err = types.DecodeVote(args)
		if err != nil {
			return types.ErrInstructionDidNotDeserialize.With("%v", err)
		}

		err = c.cmd.vote(ctx, step)
	}

	if err != nil {
		promInstructions.WithLabelValues(string(cmd), "failed").Inc()
		return xerrors.Errorf("failed to %s: %w", cmd, err)
	}

	promInstructions.WithLabelValues(string(cmd), "ok").Inc()

	pollchain.Logger.Debug().
		Str("command", string(cmd)).
		Hex("tx", step.Tx.GetID()).
		Msg("instruction executed")

	return nil
}
