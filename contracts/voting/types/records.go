package types

import (
	"bytes"
	"crypto/sha256"

	"go.dedis.ch/pollchain/core/address"
	"go.dedis.ch/pollchain/encoding"
	"golang.org/x/xerrors"
)

const (
	// MaxNameLen is the maximum length in bytes of a poll or candidate name.
	MaxNameLen = 32

	// MaxDescriptionLen is the maximum length in bytes of a poll description.
	MaxDescriptionLen = 280

	// MaxCandidates is the maximum number of candidates of a poll.
	MaxCandidates = 15

	// TagSize is the size of the type tag at the beginning of every record.
	TagSize = 8

	// PollSpace is the data size of a poll account.
	PollSpace = TagSize + address.Size + 4 + MaxNameLen + 4 + MaxDescriptionLen +
		8 + 8 + 1 + 4 + MaxCandidates*address.Size

	// CandidateSpace is the data size of a candidate account.
	CandidateSpace = TagSize + address.Size + 4 + MaxNameLen + 8

	// ReceiptSpace is the data size of a voter receipt account.
	ReceiptSpace = TagSize + 2*address.Size
)

// Type tags of the records.
var (
	PollTag      = recordTag("PollAccount")
	CandidateTag = recordTag("CandidateAccount")
	ReceiptTag   = recordTag("VoterReceipt")
)

// ErrTagMismatch is returned when the data does not start with the tag of
// the record.
var ErrTagMismatch = xerrors.New("record tag mismatch")

// ErrTooLong is returned when a field exceeds its maximum length.
var ErrTooLong = xerrors.New("field too long")

func recordTag(name string) []byte {
	digest := sha256.Sum256([]byte("account:" + name))

	return digest[:TagSize]
}

// PollAccount is the record of a poll. The candidates are append-only and
// their number is always the candidate count.
type PollAccount struct {
	Authority      address.Address
	Name           string
	Description    string
	StartTime      uint64
	EndTime        uint64
	CandidateCount uint8
	Candidates     []address.Address
}

// IsOpen returns true when a vote at the given time is within the window of
// the poll. Both bounds are inclusive.
func (p PollAccount) IsOpen(now uint64) bool {
	return now >= p.StartTime && now <= p.EndTime
}

// IsClosed returns true when the window of the poll is over.
func (p PollAccount) IsClosed(now uint64) bool {
	return now > p.EndTime
}

// MarshalBinary implements encoding.BinaryMarshaler. It returns the tag and
// the fields, without the padding of the account.
func (p PollAccount) MarshalBinary() ([]byte, error) {
	if len(p.Name) > MaxNameLen {
		return nil, xerrors.Errorf("name: %d > %d: %w", len(p.Name), MaxNameLen, ErrTooLong)
	}

	if len(p.Description) > MaxDescriptionLen {
		return nil, xerrors.Errorf("description: %d > %d: %w",
			len(p.Description), MaxDescriptionLen, ErrTooLong)
	}

	if len(p.Candidates) > MaxCandidates {
		return nil, xerrors.Errorf("candidates: %d > %d: %w",
			len(p.Candidates), MaxCandidates, ErrTooLong)
	}

	enc := encoding.NewEncoder(PollSpace)
	enc.Fixed(PollTag)
	enc.Fixed(p.Authority[:])
	enc.String(p.Name)
	enc.String(p.Description)
	enc.U64(p.StartTime)
	enc.U64(p.EndTime)
	enc.U8(p.CandidateCount)
	enc.U32(uint32(len(p.Candidates)))

	for _, c := range p.Candidates {
		enc.Fixed(c[:])
	}

	return enc.Data(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. Bytes after the
// fields are ignored as they are the padding of the account.
func (p *PollAccount) UnmarshalBinary(data []byte) error {
	dec, err := newRecordDecoder(data, PollTag)
	if err != nil {
		return err
	}

	copy(p.Authority[:], dec.Fixed(address.Size))
	p.Name = dec.String(MaxNameLen)
	p.Description = dec.String(MaxDescriptionLen)
	p.StartTime = dec.U64()
	p.EndTime = dec.U64()
	p.CandidateCount = dec.U8()

	count := dec.Length(MaxCandidates)
	p.Candidates = make([]address.Address, 0, count)

	for i := 0; i < count && dec.Err() == nil; i++ {
		var c address.Address
		copy(c[:], dec.Fixed(address.Size))
		p.Candidates = append(p.Candidates, c)
	}

	if dec.Err() != nil {
		return xerrors.Errorf("malformed poll: %v", dec.Err())
	}

	return nil
}

// CandidateAccount is the record of a candidate of a poll.
type CandidateAccount struct {
	Poll  address.Address
	Name  string
	Votes uint64
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (c CandidateAccount) MarshalBinary() ([]byte, error) {
	if len(c.Name) > MaxNameLen {
		return nil, xerrors.Errorf("name: %d > %d: %w", len(c.Name), MaxNameLen, ErrTooLong)
	}

	enc := encoding.NewEncoder(CandidateSpace)
	enc.Fixed(CandidateTag)
	enc.Fixed(c.Poll[:])
	enc.String(c.Name)
	enc.U64(c.Votes)

	return enc.Data(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (c *CandidateAccount) UnmarshalBinary(data []byte) error {
	dec, err := newRecordDecoder(data, CandidateTag)
	if err != nil {
		return err
	}

	copy(c.Poll[:], dec.Fixed(address.Size))
	c.Name = dec.String(MaxNameLen)
	c.Votes = dec.U64()

	if dec.Err() != nil {
		return xerrors.Errorf("malformed candidate: %v", dec.Err())
	}

	return nil
}

// VoterReceipt is the record proving that a voter voted in a poll.
type VoterReceipt struct {
	Voter address.Address
	Poll  address.Address
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (r VoterReceipt) MarshalBinary() ([]byte, error) {
	enc := encoding.NewEncoder(ReceiptSpace)
	enc.Fixed(ReceiptTag)
	enc.Fixed(r.Voter[:])
	enc.Fixed(r.Poll[:])

	return enc.Data(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (r *VoterReceipt) UnmarshalBinary(data []byte) error {
	dec, err := newRecordDecoder(data, ReceiptTag)
	if err != nil {
		return err
	}

	copy(r.Voter[:], dec.Fixed(address.Size))
	copy(r.Poll[:], dec.Fixed(address.Size))

	if dec.Err() != nil {
		return xerrors.Errorf("malformed receipt: %v", dec.Err())
	}

	return nil
}

func newRecordDecoder(data, tag []byte) (*encoding.Decoder, error) {
	if len(data) < TagSize || !bytes.Equal(data[:TagSize], tag) {
		return nil, ErrTagMismatch
	}

	return encoding.NewDecoder(data[TagSize:]), nil
}

// Pad returns the data of an account of the given space holding the encoded
// record. The trailing bytes are zero.
func Pad(record []byte, space int) ([]byte, error) {
	if len(record) > space {
		return nil, xerrors.Errorf("record does not fit: %d > %d: %w", len(record), space, ErrTooLong)
	}

	data := make([]byte, space)
	copy(data, record)

	return data, nil
}
