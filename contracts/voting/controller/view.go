package controller

import (
	"time"

	"go.dedis.ch/pollchain/contracts/voting/client"
	"go.dedis.ch/pollchain/contracts/voting/types"
	"go.dedis.ch/pollchain/core/address"
	"golang.org/x/xerrors"
)

// Status of a poll relative to the clock of the ledger.
const (
	StatusPending = "pending"
	StatusOpen    = "open"
	StatusClosed  = "closed"
)

// PollView is the representation of a poll and its candidates.
type PollView struct {
	Address     address.Address `json:"address"`
	Authority   address.Address `json:"authority"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	StartTime   uint64          `json:"start_time"`
	EndTime     uint64          `json:"end_time"`
	Status      string          `json:"status"`
	Candidates  []CandidateView `json:"candidates"`
}

// CandidateView is the representation of a candidate.
type CandidateView struct {
	Address address.Address `json:"address"`
	Name    string          `json:"name"`
	Votes   uint64          `json:"votes"`
}

// ReceiptView tells if a voter has voted on a poll.
type ReceiptView struct {
	Poll    address.Address `json:"poll"`
	Voter   address.Address `json:"voter"`
	Receipt address.Address `json:"receipt"`
	Voted   bool            `json:"voted"`
}

// pollReader is the part of the client that reads the records of a poll.
type pollReader interface {
	GetPoll(addr address.Address) (types.PollAccount, error)
	GetCandidates(poll address.Address) ([]client.Candidate, error)
	VerifyVote(poll, voter address.Address) (bool, address.Address, error)
}

// readPoll reads the poll and its candidates at the given time.
func readPoll(reader pollReader, addr address.Address, now time.Time) (PollView, error) {
	poll, err := reader.GetPoll(addr)
	if err != nil {
		return PollView{}, xerrors.Errorf("failed to read poll: %w", err)
	}

	candidates, err := reader.GetCandidates(addr)
	if err != nil {
		return PollView{}, xerrors.Errorf("failed to read candidates: %v", err)
	}

	view := PollView{
		Address:     addr,
		Authority:   poll.Authority,
		Name:        poll.Name,
		Description: poll.Description,
		StartTime:   poll.StartTime,
		EndTime:     poll.EndTime,
		Status:      pollStatus(poll, now),
		Candidates:  make([]CandidateView, len(candidates)),
	}

	for i, candidate := range candidates {
		view.Candidates[i] = CandidateView{
			Address: candidate.Address,
			Name:    candidate.Name,
			Votes:   candidate.Votes,
		}
	}

	return view, nil
}

func pollStatus(poll types.PollAccount, now time.Time) string {
	unix := uint64(0)
	if now.Unix() > 0 {
		unix = uint64(now.Unix())
	}

	switch {
	case poll.IsClosed(unix):
		return StatusClosed
	case poll.IsOpen(unix):
		return StatusOpen
	default:
		return StatusPending
	}
}
