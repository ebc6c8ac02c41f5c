package types

import (
	"bytes"
	"crypto/sha256"

	"go.dedis.ch/pollchain/encoding"
	"golang.org/x/xerrors"
)

// DiscriminantSize is the size of the prefix of an instruction payload that
// selects the operation.
const DiscriminantSize = 8

// Command defines a type of operation of the voting program.
type Command string

const (
	// CmdInitializePoll creates a poll.
	CmdInitializePoll Command = "initialize_poll"

	// CmdAddCandidate registers a candidate to a poll.
	CmdAddCandidate Command = "add_candidate"

	// CmdVote casts a vote for a candidate.
	CmdVote Command = "vote"
)

// Commands is the list of the operations of the program.
var Commands = []Command{CmdInitializePoll, CmdAddCandidate, CmdVote}

// ErrUnknownCommand is returned when the payload starts with an unknown
// discriminant.
var ErrUnknownCommand = xerrors.New("unknown command")

// ErrMissingDiscriminant is returned when the payload is shorter than a
// discriminant.
var ErrMissingDiscriminant = xerrors.New("missing discriminant")

// Discriminant returns the prefix of the payload of the command.
func (c Command) Discriminant() []byte {
	digest := sha256.Sum256([]byte("global:" + string(c)))

	return digest[:DiscriminantSize]
}

// ParseCommand returns the command of the payload and the encoded arguments.
func ParseCommand(data []byte) (Command, []byte, error) {
	if len(data) < DiscriminantSize {
		return "", nil, ErrMissingDiscriminant
	}

	prefix := data[:DiscriminantSize]

	for _, cmd := range Commands {
		if bytes.Equal(prefix, cmd.Discriminant()) {
			return cmd, data[DiscriminantSize:], nil
		}
	}

	return "", nil, xerrors.Errorf("%x: %w", prefix, ErrUnknownCommand)
}

// InitializePollArgs are the arguments of the creation of a poll.
type InitializePollArgs struct {
	Name        string
	Description string
	StartTime   uint64
	EndTime     uint64
}

// MarshalBinary implements encoding.BinaryMarshaler. It returns the complete
// payload of the instruction.
func (a InitializePollArgs) MarshalBinary() ([]byte, error) {
	enc := encoding.NewEncoder(64 + len(a.Name) + len(a.Description))
	enc.Fixed(CmdInitializePoll.Discriminant())
	enc.String(a.Name)
	enc.String(a.Description)
	enc.U64(a.StartTime)
	enc.U64(a.EndTime)

	return enc.Data(), nil
}

// DecodeInitializePoll decodes the arguments that follow the discriminant.
// The length of the texts is checked by the program, not by the decoder.
func DecodeInitializePoll(args []byte) (InitializePollArgs, error) {
	dec := encoding.NewDecoder(args)

	a := InitializePollArgs{
		Name:        dec.String(len(args)),
		Description: dec.String(len(args)),
		StartTime:   dec.U64(),
		EndTime:     dec.U64(),
	}

	err := dec.Done()
	if err != nil {
		return a, xerrors.Errorf("malformed arguments: %v", err)
	}

	return a, nil
}

// AddCandidateArgs are the arguments of the registration of a candidate.
type AddCandidateArgs struct {
	CandidateName string
}

// MarshalBinary implements encoding.BinaryMarshaler. It returns the complete
// payload of the instruction.
func (a AddCandidateArgs) MarshalBinary() ([]byte, error) {
	enc := encoding.NewEncoder(16 + len(a.CandidateName))
	enc.Fixed(CmdAddCandidate.Discriminant())
	enc.String(a.CandidateName)

	return enc.Data(), nil
}

// DecodeAddCandidate decodes the arguments that follow the discriminant.
func DecodeAddCandidate(args []byte) (AddCandidateArgs, error) {
	dec := encoding.NewDecoder(args)

	a := AddCandidateArgs{
		CandidateName: dec.String(len(args)),
	}

	err := dec.Done()
	if err != nil {
		return a, xerrors.Errorf("malformed arguments: %v", err)
	}

	return a, nil
}

// VoteArgs are the arguments of a vote. A vote has none, the candidate is an
// account of the instruction.
type VoteArgs struct{}

// MarshalBinary implements encoding.BinaryMarshaler. It returns the complete
// payload of the instruction.
func (VoteArgs) MarshalBinary() ([]byte, error) {
	return CmdVote.Discriminant(), nil
}

// DecodeVote decodes the arguments that follow the discriminant.
func DecodeVote(args []byte) (VoteArgs, error) {
	if len(args) > 0 {
		return VoteArgs{}, xerrors.Errorf("malformed arguments: %d trailing bytes", len(args))
	}

	return VoteArgs{}, nil
}
