// Package account defines the record that the ledger stores at every address,
// and the rent rule that a payer must satisfy to allocate one.
package account

import (
	"encoding/binary"

	"go.dedis.ch/pollchain/core/address"
	"golang.org/x/xerrors"
)

const (
	// storageOverhead is the number of bytes accounted for every allocation on
	// top of the data itself.
	storageOverhead = 128

	// lamportsPerByteYear is the rent rate.
	lamportsPerByteYear = 3480

	// exemptionYears is the number of years of rent an account must hold to be
	// exempt.
	exemptionYears = 2

	// headerSize is the size of the encoded fields before the data.
	headerSize = address.Size + 8 + 4

	// MaxDataSize is the largest data an account can hold.
	MaxDataSize = 10 * 1024 * 1024
)

// Account is the content of an address. An address owned by the system that
// holds no data is considered free, whatever its balance.
type Account struct {
	// Owner is the program allowed to modify the data.
	Owner address.Address

	// Lamports is the balance of the account.
	Lamports uint64

	// Data is the opaque content managed by the owner.
	Data []byte
}

// IsEmpty returns true when the account can be allocated. A balance
// transferred to the address beforehand does not prevent it.
func (a Account) IsEmpty() bool {
	return a.Owner == address.Zero && len(a.Data) == 0
}

// MarshalBinary implements encoding.BinaryMarshaler. The layout is the owner,
// the balance in little-endian, the data length in little-endian and the data.
func (a Account) MarshalBinary() ([]byte, error) {
	buffer := make([]byte, headerSize+len(a.Data))

	copy(buffer, a.Owner[:])
	binary.LittleEndian.PutUint64(buffer[address.Size:], a.Lamports)
	binary.LittleEndian.PutUint32(buffer[address.Size+8:], uint32(len(a.Data)))
	copy(buffer[headerSize:], a.Data)

	return buffer, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (a *Account) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize {
		return xerrors.Errorf("account too short: %d < %d", len(data), headerSize)
	}

	size := int(binary.LittleEndian.Uint32(data[address.Size+8:]))
	if len(data) != headerSize+size {
		return xerrors.Errorf("invalid data length: %d != %d", len(data)-headerSize, size)
	}

	copy(a.Owner[:], data)
	a.Lamports = binary.LittleEndian.Uint64(data[address.Size:])
	a.Data = make([]byte, size)
	copy(a.Data, data[headerSize:])

	return nil
}

// MinimumBalance returns the balance an account of the given data size must
// hold to be exempt from rent.
func MinimumBalance(space int) uint64 {
	return uint64(storageOverhead+space) * lamportsPerByteYear * exemptionYears
}
