package ledger

import (
	"encoding/binary"
	"time"

	"go.dedis.ch/pollchain/core/execution"
	"go.dedis.ch/pollchain/core/txn"
	"go.dedis.ch/pollchain/encoding"
	"golang.org/x/xerrors"
)

// maxMessage is the maximum length of the failure message of an entry.
const maxMessage = 4096

// Entry is a transaction of the log with its outcome. Both accepted and
// rejected transactions are logged, but only the accepted ones changed the
// accounts.
type Entry struct {
	// Index is the position of the entry in the log, starting at 1.
	Index uint64

	// Time is the clock of the ledger when the transaction was executed.
	Time time.Time

	Tx *txn.Transaction

	Result execution.Result
}

// MarshalBinary implements encoding.BinaryMarshaler. The index is not part of
// the value as it is the key of the entry.
func (e Entry) MarshalBinary() ([]byte, error) {
	data, err := e.Tx.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("failed to encode tx: %v", err)
	}

	msg := e.Result.Message
	if len(msg) > maxMessage {
		msg = msg[:maxMessage]
	}

	enc := encoding.NewEncoder(len(data) + len(msg) + 32)
	enc.U64(uint64(e.Time.UnixNano()))
	enc.Bool(e.Result.Accepted)
	enc.U32(e.Result.Code)
	enc.Bytes([]byte(msg))
	enc.Bytes(data)

	return enc.Data(), nil
}

func decodeEntry(key, value []byte) (Entry, error) {
	if len(key) != 8 {
		return Entry{}, xerrors.Errorf("invalid key length %d", len(key))
	}

	dec := encoding.NewDecoder(value)

	e := Entry{
		Index: binary.BigEndian.Uint64(key),
		Time:  time.Unix(0, int64(dec.U64())),
	}

	e.Result.Accepted = dec.Bool()
	e.Result.Code = dec.U32()
	e.Result.Message = string(dec.Bytes(maxMessage))

	data := dec.Bytes(txn.MaxSize)

	err := dec.Done()
	if err != nil {
		return e, xerrors.Errorf("malformed entry %d: %v", e.Index, err)
	}

	e.Tx, err = txn.Decode(data)
	if err != nil {
		return e, xerrors.Errorf("failed to decode tx of entry %d: %v", e.Index, err)
	}

	return e, nil
}

// indexKey returns the key of the entry. The index is big-endian so that the
// byte order of the keys follows the log.
func indexKey(index uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, index)

	return key
}
