// Package ledger implements the runtime that applies transactions to the
// accounts.
//
// Each transaction is an atomic unit: its instructions run one after the
// other on an in-memory overlay of the accounts, and the overlay is committed
// with the log entry in a single database transaction only if every
// instruction succeeded. Transactions that declare a common writable account
// are serialized, while disjoint ones run in parallel.
package ledger

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"go.dedis.ch/pollchain"
	"go.dedis.ch/pollchain/core/account"
	"go.dedis.ch/pollchain/core/address"
	"go.dedis.ch/pollchain/core/execution"
	"go.dedis.ch/pollchain/core/store"
	"go.dedis.ch/pollchain/core/store/kv"
	"go.dedis.ch/pollchain/core/store/mem"
	"go.dedis.ch/pollchain/core/txn"
	"golang.org/x/xerrors"
)

var (
	accountsBucket  = []byte("accounts")
	logBucket       = []byte("txlog")
	processedBucket = []byte("processed")
)

// ErrDuplicate is returned when a transaction with the same identifier has
// already been processed.
var ErrDuplicate = xerrors.New("transaction already processed")

var errRejected = xerrors.New("rejected")

// Ledger is the runtime that executes the transactions and stores the
// accounts and the log in a key/value database.
type Ledger struct {
	db      kv.DB
	exec    execution.Service
	clock   execution.Clock
	locks   *lockTable
	watcher *watcher
	logger  zerolog.Logger
}

// Option is the type of options to create a ledger.
type Option func(*Ledger)

// WithClock sets the source of time of the ledger. The wall clock is used by
// default.
func WithClock(clock execution.Clock) Option {
	return func(l *Ledger) {
		l.clock = clock
	}
}

// New returns a ledger that stores its state in the database and runs the
// programs of the execution service.
func New(db kv.DB, exec execution.Service, opts ...Option) *Ledger {
	l := &Ledger{
		db:      db,
		exec:    exec,
		clock:   execution.WallClock{},
		locks:   newLockTable(),
		watcher: newWatcher(),
		logger:  pollchain.Logger.With().Str("role", "ledger").Logger(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Submit executes the transaction and appends it to the log. It returns the
// entry of the log, which tells if the transaction was accepted. An error is
// returned when the transaction could not be processed at all, in which case
// nothing is logged.
func (l *Ledger) Submit(ctx context.Context, tx *txn.Transaction) (Entry, error) {
	start := time.Now()

	err := tx.Verify()
	if err != nil {
		return Entry{}, xerrors.Errorf("invalid transaction: %v", err)
	}

	processed, err := l.isProcessed(tx.GetID())
	if err != nil {
		return Entry{}, err
	}

	if processed {
		return Entry{}, ErrDuplicate
	}

	release := l.locks.acquire(tx.Message.Accounts())
	defer release()

	promLockedAddresses.Set(float64(l.locks.size()))

	err = ctx.Err()
	if err != nil {
		return Entry{}, xerrors.Errorf("context done: %v", err)
	}

	entry := Entry{
		Time: l.clock.Now(),
		Tx:   tx,
	}

	staged, res, err := l.execute(tx, entry.Time)
	if err != nil {
		return Entry{}, xerrors.Errorf("failed to execute: %v", err)
	}

	entry.Result = res

	err = l.db.Update(func(wtx kv.WritableTx) error {
		processed, err := wtx.GetBucketOrCreate(processedBucket)
		if err != nil {
			return err
		}

		if processed.Get(tx.GetID()) != nil {
			return ErrDuplicate
		}

		if staged != nil {
			accounts, err := wtx.GetBucketOrCreate(accountsBucket)
			if err != nil {
				return err
			}

			err = staged.Commit(accounts)
			if err != nil {
				return xerrors.Errorf("failed to commit accounts: %v", err)
			}
		}

		log, err := wtx.GetBucketOrCreate(logBucket)
		if err != nil {
			return err
		}

		entry.Index, err = log.NextSequence()
		if err != nil {
			return xerrors.Errorf("failed to get next index: %v", err)
		}

		value, err := entry.MarshalBinary()
		if err != nil {
			return err
		}

		err = log.Set(indexKey(entry.Index), value)
		if err != nil {
			return xerrors.Errorf("failed to append entry: %v", err)
		}

		return processed.Set(tx.GetID(), indexKey(entry.Index))
	})

	if xerrors.Is(err, ErrDuplicate) {
		return Entry{}, ErrDuplicate
	}

	if err != nil {
		return Entry{}, xerrors.Errorf("failed to store: %v", err)
	}

	promSubmitDuration.Observe(time.Since(start).Seconds())

	if res.Accepted {
		promTransactions.WithLabelValues("accepted").Inc()

		l.logger.Debug().
			Uint64("index", entry.Index).
			Hex("id", tx.GetID()).
			Int("accounts", staged.Len()).
			Msg("transaction accepted")
	} else {
		promTransactions.WithLabelValues("rejected").Inc()

		l.logger.Info().
			Uint64("index", entry.Index).
			Hex("id", tx.GetID()).
			Uint32("code", res.Code).
			Str("reason", res.Message).
			Msg("transaction rejected")
	}

	l.watcher.Notify(entry)

	return entry, nil
}

// execute runs the instructions on an overlay of the accounts. The overlay is
// returned only if every instruction is accepted.
func (l *Ledger) execute(tx *txn.Transaction, now time.Time) (*mem.Snapshot, execution.Result, error) {
	res := execution.Result{Accepted: true}

	overlay := mem.NewSnapshot(accountReader{db: l.db})

	staged, err := overlay.Stage(func(snap store.Snapshot) error {
		for i := range tx.Message.Instructions {
			step := execution.Step{
				Tx:    tx,
				Index: i,
				Time:  now,
			}

			r, err := l.exec.Execute(snap, step)
			if err != nil {
				return xerrors.Errorf("instruction %d: %v", i, err)
			}

			if !r.Accepted {
				res = r
				res.Message = fmt.Sprintf("instruction %d: %s", i, r.Message)

				return errRejected
			}
		}

		return nil
	})

	if !res.Accepted {
		return nil, res, nil
	}

	if err != nil {
		return nil, res, err
	}

	return staged, res, nil
}

func (l *Ledger) isProcessed(id []byte) (bool, error) {
	found := false

	err := l.db.View(func(tx kv.ReadableTx) error {
		bucket := tx.GetBucket(processedBucket)
		if bucket != nil {
			found = bucket.Get(id) != nil
		}

		return nil
	})

	if err != nil {
		return false, xerrors.Errorf("failed to read processed: %v", err)
	}

	return found, nil
}

// GetAccount returns the account at the address. An unallocated address
// returns an empty account.
func (l *Ledger) GetAccount(addr address.Address) (account.Account, error) {
	acc := account.Account{}

	data, err := accountReader{db: l.db}.Get(addr[:])
	if err != nil {
		return acc, err
	}

	if data == nil {
		return acc, nil
	}

	err = acc.UnmarshalBinary(data)
	if err != nil {
		return acc, xerrors.Errorf("failed to decode account: %v", err)
	}

	return acc, nil
}

// Airdrop credits the address with lamports out of thin air. It is used to
// fund the identities of a new ledger.
func (l *Ledger) Airdrop(ctx context.Context, addr address.Address, lamports uint64) error {
	release := l.locks.acquire([]txn.AccountMeta{txn.NewWritable(addr, false)})
	defer release()

	err := ctx.Err()
	if err != nil {
		return xerrors.Errorf("context done: %v", err)
	}

	err = l.db.Update(func(wtx kv.WritableTx) error {
		bucket, err := wtx.GetBucketOrCreate(accountsBucket)
		if err != nil {
			return err
		}

		acc := account.Account{}

		data := bucket.Get(addr[:])
		if data != nil {
			err = acc.UnmarshalBinary(data)
			if err != nil {
				return xerrors.Errorf("failed to decode account: %v", err)
			}
		}

		if acc.Lamports > math.MaxUint64-lamports {
			return xerrors.Errorf("balance overflow")
		}

		acc.Lamports += lamports

		data, err = acc.MarshalBinary()
		if err != nil {
			return xerrors.Errorf("failed to encode account: %v", err)
		}

		return bucket.Set(addr[:], data)
	})

	if err != nil {
		return xerrors.Errorf("failed to airdrop: %v", err)
	}

	l.logger.Info().Str("address", addr.String()).Uint64("lamports", lamports).Msg("airdrop")

	return nil
}

// Range calls the function for every entry of the log starting at the given
// index, in log order. It stops at the first error of the function.
func (l *Ledger) Range(from uint64, fn func(Entry) error) error {
	return l.db.View(func(tx kv.ReadableTx) error {
		bucket := tx.GetBucket(logBucket)
		if bucket == nil {
			return nil
		}

		return bucket.Seek(indexKey(from), func(k, v []byte) error {
			entry, err := decodeEntry(k, v)
			if err != nil {
				return err
			}

			return fn(entry)
		})
	})
}

// Watch returns a channel populated with the new entries of the log until the
// context is done. Entries are dropped when the reader is late.
func (l *Ledger) Watch(ctx context.Context) <-chan Entry {
	obs := observer{ch: make(chan Entry, 16)}
	l.watcher.Add(obs)

	go func() {
		<-ctx.Done()
		l.watcher.Remove(obs)
	}()

	return obs.ch
}

// accountReader reads the committed accounts.
//
// - implements store.Readable
type accountReader struct {
	db kv.DB
}

// Get implements store.Readable. It returns a copy of the value.
func (r accountReader) Get(key []byte) ([]byte, error) {
	var value []byte

	err := r.db.View(func(tx kv.ReadableTx) error {
		bucket := tx.GetBucket(accountsBucket)
		if bucket == nil {
			return nil
		}

		data := bucket.Get(key)
		if data != nil {
			value = append([]byte{}, data...)
		}

		return nil
	})

	if err != nil {
		return nil, xerrors.Errorf("failed to read account: %v", err)
	}

	return value, nil
}
