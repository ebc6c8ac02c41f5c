package txn

import (
	"bytes"

	"go.dedis.ch/pollchain/core/address"
	"go.dedis.ch/pollchain/crypto"
	"go.dedis.ch/pollchain/crypto/ed25519"
	"go.dedis.ch/pollchain/encoding"
	"golang.org/x/xerrors"
)

// Transaction is a message and the signatures of its signers, in the order
// returned by Message.Signers.
type Transaction struct {
	Message    Message
	Signatures [][]byte

	id []byte
}

// NewTransaction returns an unsigned transaction for the message.
func NewTransaction(msg Message) (*Transaction, error) {
	id, err := msg.Hash()
	if err != nil {
		return nil, xerrors.Errorf("couldn't fingerprint tx: %v", err)
	}

	tx := &Transaction{
		Message:    msg,
		Signatures: make([][]byte, len(msg.Signers())),
		id:         id,
	}

	return tx, nil
}

// GetID returns the unique identifier of the transaction.
func (t *Transaction) GetID() []byte {
	return t.id
}

// GetNonce returns the nonce of the message.
func (t *Transaction) GetNonce() uint64 {
	return t.Message.Nonce
}

// Sign signs the transaction with each of the signers. A signer that is not
// required by the message is rejected.
func (t *Transaction) Sign(signers ...crypto.Signer) error {
	required := t.Message.Signers()

	for _, signer := range signers {
		buffer, err := signer.GetPublicKey().MarshalBinary()
		if err != nil {
			return xerrors.Errorf("failed to marshal public key: %v", err)
		}

		index := -1
		for i, addr := range required {
			if bytes.Equal(addr[:], buffer) {
				index = i
				break
			}
		}

		if index < 0 {
			return xerrors.Errorf("signer %x is not required", buffer)
		}

		sig, err := signer.Sign(t.id)
		if err != nil {
			return xerrors.Errorf("signer: %v", err)
		}

		data, err := sig.MarshalBinary()
		if err != nil {
			return xerrors.Errorf("failed to marshal signature: %v", err)
		}

		t.Signatures[index] = data
	}

	return nil
}

// Verify returns nil if every required signer has a valid signature.
func (t *Transaction) Verify() error {
	required := t.Message.Signers()

	if len(t.Signatures) != len(required) {
		return xerrors.Errorf("expected %d signatures but got %d",
			len(required), len(t.Signatures))
	}

	for i, addr := range required {
		if len(t.Signatures[i]) == 0 {
			return xerrors.Errorf("missing signature for %v", addr)
		}

		pubkey, err := ed25519.NewPublicKey(addr[:])
		if err != nil {
			return xerrors.Errorf("invalid signer %v: %v", addr, err)
		}

		err = pubkey.Verify(t.id, ed25519.NewSignature(t.Signatures[i]))
		if err != nil {
			return xerrors.Errorf("invalid signature for %v: %v", addr, err)
		}
	}

	return nil
}

// IsSigner returns true if the address is one of the required signers.
func (t *Transaction) IsSigner(addr address.Address) bool {
	for _, signer := range t.Message.Signers() {
		if signer == addr {
			return true
		}
	}

	return false
}

// MarshalBinary implements encoding.BinaryMarshaler. The layout is the number
// of signatures, the signatures and the message.
func (t *Transaction) MarshalBinary() ([]byte, error) {
	if len(t.Signatures) > 255 {
		return nil, xerrors.Errorf("too many signatures: %d", len(t.Signatures))
	}

	enc := encoding.NewEncoder(512)
	enc.U8(uint8(len(t.Signatures)))

	for i, sig := range t.Signatures {
		if len(sig) == 0 {
			sig = make([]byte, ed25519.SignatureSize)
		}

		if len(sig) != ed25519.SignatureSize {
			return nil, xerrors.Errorf("signature %d has invalid length %d", i, len(sig))
		}

		enc.Fixed(sig)
	}

	err := t.Message.encode(enc)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode message: %v", err)
	}

	if enc.Len() > MaxSize {
		return nil, xerrors.Errorf("transaction too large: %d > %d", enc.Len(), MaxSize)
	}

	return enc.Data(), nil
}

// Decode returns the transaction of the binary data. Empty signatures are
// encoded as zero bytes and decoded as such.
func Decode(data []byte) (*Transaction, error) {
	if len(data) > MaxSize {
		return nil, xerrors.Errorf("transaction too large: %d > %d", len(data), MaxSize)
	}

	dec := encoding.NewDecoder(data)

	count := int(dec.U8())
	sigs := make([][]byte, 0, count)

	for i := 0; i < count && dec.Err() == nil; i++ {
		sigs = append(sigs, dec.Fixed(ed25519.SignatureSize))
	}

	msg := decodeMessage(dec)

	err := dec.Done()
	if err != nil {
		return nil, xerrors.Errorf("malformed transaction: %v", err)
	}

	id, err := msg.Hash()
	if err != nil {
		return nil, xerrors.Errorf("couldn't fingerprint tx: %v", err)
	}

	tx := &Transaction{
		Message:    msg,
		Signatures: sigs,
		id:         id,
	}

	return tx, nil
}
