package loader

import (
	"go.dedis.ch/pollchain/crypto/ed25519"
	"golang.org/x/xerrors"
)

// SignerGenerator generates new random Ed25519 signers.
//
// - implements loader.Generator
type SignerGenerator struct{}

// Generate implements loader.Generator. It returns the marshaled private key of
// a new signer.
func (SignerGenerator) Generate() ([]byte, error) {
	data, err := ed25519.NewSigner().MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal signer: %v", err)
	}

	return data, nil
}

// LoadSigner reads the signer from the loader, or generates it if create is
// true and it does not exist yet.
func LoadSigner(l Loader, create bool) (ed25519.Signer, error) {
	var data []byte
	var err error

	if create {
		data, err = l.LoadOrCreate(SignerGenerator{})
	} else {
		data, err = l.Load()
	}

	if err != nil {
		return ed25519.Signer{}, xerrors.Errorf("failed to load key: %v", err)
	}

	signer, err := ed25519.NewSignerFromBytes(data)
	if err != nil {
		return ed25519.Signer{}, xerrors.Errorf("invalid key: %v", err)
	}

	return signer, nil
}
