// Package address defines the 32-byte account address and the deterministic
// derivation of program addresses.
//
// A program address is derived from a list of seeds and the identity of the
// program that owns it. The derivation hashes the seeds with a bump byte and
// keeps the first digest that is not a valid Ed25519 point, so that no private
// key can exist for it and only the program can allocate it. Any off-chain
// component that needs to predict an address must reproduce this function
// byte for byte.
package address

import (
	"bytes"
	"crypto/sha256"

	"github.com/mr-tron/base58"
	"go.dedis.ch/kyber/v3/suites"
	"golang.org/x/xerrors"
)

const (
	// Size is the length in bytes of an address.
	Size = 32

	// MaxSeeds is the maximum number of seeds, bump included, used to derive
	// a program address.
	MaxSeeds = 16

	// MaxSeedLength is the maximum length in bytes of a single seed.
	MaxSeedLength = 32

	// pdaMarker is appended to the preimage of every program address.
	pdaMarker = "ProgramDerivedAddress"
)

var suite = suites.MustFind("Ed25519")

// ErrOnCurve is returned when the digest of the seeds is a valid curve point
// and therefore cannot be used as a program address.
var ErrOnCurve = xerrors.New("address is on the curve")

// ErrNoViableBump is returned when no bump produces an address off the curve.
var ErrNoViableBump = xerrors.New("unable to find a viable bump")

// Address is the identity of an account. It is either an Ed25519 public key or
// a program address.
type Address [Size]byte

// Zero is the empty address, which is also the identity of the system
// program.
var Zero Address

// New returns the address from the bytes. It returns an error if the length is
// not exactly the size of an address.
func New(data []byte) (Address, error) {
	var addr Address

	if len(data) != Size {
		return addr, xerrors.Errorf("invalid address length %d", len(data))
	}

	copy(addr[:], data)

	return addr, nil
}

// Parse returns the address of its base58 text representation.
func Parse(text string) (Address, error) {
	data, err := base58.Decode(text)
	if err != nil {
		return Address{}, xerrors.Errorf("failed to decode base58: %v", err)
	}

	addr, err := New(data)
	if err != nil {
		return Address{}, xerrors.Errorf("failed to parse '%s': %v", text, err)
	}

	return addr, nil
}

// MustParse returns the address of the base58 text. It panics if the text is
// malformed.
func MustParse(text string) Address {
	addr, err := Parse(text)
	if err != nil {
		panic(err)
	}

	return addr
}

// Bytes returns a copy of the address bytes.
func (a Address) Bytes() []byte {
	buf := make([]byte, Size)
	copy(buf, a[:])

	return buf
}

// IsZero returns true if the address is the empty address.
func (a Address) IsZero() bool {
	return a == Zero
}

// String implements fmt.Stringer. It returns the base58 representation.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	addr, err := Parse(string(text))
	if err != nil {
		return err
	}

	*a = addr

	return nil
}

// Compare returns an integer comparing the two addresses in byte order.
func Compare(a, b Address) int {
	return bytes.Compare(a[:], b[:])
}

// IsOnCurve returns true if the bytes are the compressed encoding of a point of
// the Ed25519 curve.
func IsOnCurve(data []byte) bool {
	point := suite.Point()

	return point.UnmarshalBinary(data) == nil
}

// CreateProgramAddress returns the program address for the seeds, the last of
// them being usually the bump. It returns ErrOnCurve if the digest happens to
// be a valid public key.
func CreateProgramAddress(seeds [][]byte, program Address) (Address, error) {
	if len(seeds) > MaxSeeds {
		return Address{}, xerrors.Errorf("too many seeds: %d > %d", len(seeds), MaxSeeds)
	}

	h := sha256.New()

	for i, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return Address{}, xerrors.Errorf("seed %d too long: %d > %d",
				i, len(seed), MaxSeedLength)
		}

		h.Write(seed)
	}

	h.Write(program[:])
	h.Write([]byte(pdaMarker))

	digest := h.Sum(nil)

	if IsOnCurve(digest) {
		return Address{}, ErrOnCurve
	}

	var addr Address
	copy(addr[:], digest)

	return addr, nil
}

// FindProgramAddress looks for the highest bump, starting from 255, that
// derives a valid program address and returns both.
func FindProgramAddress(seeds [][]byte, program Address) (Address, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)

	for bump := 255; bump > 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}

		addr, err := CreateProgramAddress(withBump, program)
		if err == nil {
			return addr, uint8(bump), nil
		}

		if !xerrors.Is(err, ErrOnCurve) {
			return Address{}, 0, xerrors.Errorf("failed to derive: %v", err)
		}
	}

	return Address{}, 0, ErrNoViableBump
}
