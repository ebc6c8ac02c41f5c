// Package txn defines the transactions submitted to the ledger.
//
// A transaction is a message, a list of instructions paid by a fee payer, and
// the signatures of every identity the message requires. An instruction names
// the program to run, declares in advance every account it will read or write
// and carries an opaque payload for the program.
//
// The identifier of a transaction is the SHA-256 digest of its message. The
// nonce lets a client submit the same instructions twice on purpose.
package txn

import (
	"crypto/sha256"

	"go.dedis.ch/pollchain/core/address"
	"go.dedis.ch/pollchain/encoding"
	"golang.org/x/xerrors"
)

const (
	// MaxSize is the maximum size in bytes of an encoded transaction.
	MaxSize = 1232

	// MaxInstructionData is the maximum size of an instruction payload.
	MaxInstructionData = MaxSize

	flagSigner   = 1 << 0
	flagWritable = 1 << 1
)

// AccountMeta is the declaration of an account an instruction accesses.
type AccountMeta struct {
	Address  address.Address
	Signer   bool
	Writable bool
}

// NewWritable returns a writable account declaration.
func NewWritable(addr address.Address, signer bool) AccountMeta {
	return AccountMeta{Address: addr, Signer: signer, Writable: true}
}

// NewReadonly returns a read-only account declaration.
func NewReadonly(addr address.Address, signer bool) AccountMeta {
	return AccountMeta{Address: addr, Signer: signer}
}

// Instruction is a call to a program.
type Instruction struct {
	Program  address.Address
	Accounts []AccountMeta
	Data     []byte
}

// Message is the signed part of a transaction.
type Message struct {
	Nonce        uint64
	Payer        address.Address
	Instructions []Instruction
}

// Signers returns the identities that must sign the message, the payer first
// and then in order of appearance.
func (m Message) Signers() []address.Address {
	signers := []address.Address{m.Payer}
	seen := map[address.Address]struct{}{m.Payer: {}}

	for _, instr := range m.Instructions {
		for _, meta := range instr.Accounts {
			if !meta.Signer {
				continue
			}

			_, found := seen[meta.Address]
			if !found {
				seen[meta.Address] = struct{}{}
				signers = append(signers, meta.Address)
			}
		}
	}

	return signers
}

// Accounts returns the union of the accounts of every instruction, the payer
// included. An account is writable, or signer, if any declaration says so.
func (m Message) Accounts() []AccountMeta {
	index := map[address.Address]int{m.Payer: 0}
	metas := []AccountMeta{NewWritable(m.Payer, true)}

	for _, instr := range m.Instructions {
		// The program itself is read.
		metas = merge(metas, index, NewReadonly(instr.Program, false))

		for _, meta := range instr.Accounts {
			metas = merge(metas, index, meta)
		}
	}

	return metas
}

func merge(metas []AccountMeta, index map[address.Address]int, meta AccountMeta) []AccountMeta {
	i, found := index[meta.Address]
	if !found {
		index[meta.Address] = len(metas)
		return append(metas, meta)
	}

	metas[i].Signer = metas[i].Signer || meta.Signer
	metas[i].Writable = metas[i].Writable || meta.Writable

	return metas
}

// MarshalBinary implements encoding.BinaryMarshaler. It returns the
// deterministic encoding of the message.
func (m Message) MarshalBinary() ([]byte, error) {
	enc := encoding.NewEncoder(256)
	err := m.encode(enc)
	if err != nil {
		return nil, err
	}

	return enc.Data(), nil
}

func (m Message) encode(enc *encoding.Encoder) error {
	if len(m.Instructions) > 255 {
		return xerrors.Errorf("too many instructions: %d", len(m.Instructions))
	}

	enc.U64(m.Nonce)
	enc.Fixed(m.Payer[:])
	enc.U8(uint8(len(m.Instructions)))

	for i, instr := range m.Instructions {
		if len(instr.Accounts) > 255 {
			return xerrors.Errorf("instruction %d: too many accounts: %d", i, len(instr.Accounts))
		}

		if len(instr.Data) > MaxInstructionData {
			return xerrors.Errorf("instruction %d: data too long: %d", i, len(instr.Data))
		}

		enc.Fixed(instr.Program[:])
		enc.U8(uint8(len(instr.Accounts)))

		for _, meta := range instr.Accounts {
			enc.Fixed(meta.Address[:])

			var flags uint8
			if meta.Signer {
				flags |= flagSigner
			}
			if meta.Writable {
				flags |= flagWritable
			}

			enc.U8(flags)
		}

		enc.Bytes(instr.Data)
	}

	return nil
}

func decodeMessage(dec *encoding.Decoder) Message {
	m := Message{}
	m.Nonce = dec.U64()
	copy(m.Payer[:], dec.Fixed(address.Size))

	count := int(dec.U8())
	for i := 0; i < count && dec.Err() == nil; i++ {
		instr := Instruction{}
		copy(instr.Program[:], dec.Fixed(address.Size))

		numAccounts := int(dec.U8())
		for j := 0; j < numAccounts && dec.Err() == nil; j++ {
			meta := AccountMeta{}
			copy(meta.Address[:], dec.Fixed(address.Size))

			flags := dec.U8()
			meta.Signer = flags&flagSigner != 0
			meta.Writable = flags&flagWritable != 0

			instr.Accounts = append(instr.Accounts, meta)
		}

		instr.Data = dec.Bytes(MaxInstructionData)

		m.Instructions = append(m.Instructions, instr)
	}

	return m
}

// Hash returns the SHA-256 digest of the encoded message.
func (m Message) Hash() ([]byte, error) {
	data, err := m.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("failed to encode message: %v", err)
	}

	digest := sha256.Sum256(data)

	return digest[:], nil
}
