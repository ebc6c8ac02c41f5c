package indexer

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.dedis.ch/pollchain"
	"go.dedis.ch/pollchain/core/address"
	"go.dedis.ch/pollchain/core/ledger"
	"golang.org/x/xerrors"
)

// defaultInterval is the time between two synchronizations when no new entry
// is announced by the source.
const defaultInterval = 5 * time.Second

// Source is the log of transactions to follow.
type Source interface {
	Range(from uint64, fn func(ledger.Entry) error) error
	Watch(ctx context.Context) <-chan ledger.Entry
}

// Store persists the records and the index of the last processed entry.
type Store interface {
	// Cursor returns the index of the last processed entry, or zero.
	Cursor(ctx context.Context) (uint64, error)

	// Save stores the records of the entry and moves the cursor to it, both or
	// none. Records already stored are ignored.
	Save(ctx context.Context, index uint64, data Data) error
}

// Follower reads the log from the cursor of the store and saves the records
// of the accepted transactions.
type Follower struct {
	source   Source
	store    Store
	program  address.Address
	interval time.Duration
	logger   zerolog.Logger
}

// NewFollower returns a follower of the source for the program.
func NewFollower(source Source, store Store, program address.Address) *Follower {
	return &Follower{
		source:   source,
		store:    store,
		program:  program,
		interval: defaultInterval,
		logger:   pollchain.Logger.With().Str("role", "indexer").Logger(),
	}
}

// Sync processes the entries after the cursor and returns the number of
// records saved.
func (f *Follower) Sync(ctx context.Context) (int, error) {
	cursor, err := f.store.Cursor(ctx)
	if err != nil {
		return 0, xerrors.Errorf("failed to read cursor: %v", err)
	}

	count := 0

	err = f.source.Range(cursor+1, func(entry ledger.Entry) error {
		err := ctx.Err()
		if err != nil {
			return err
		}

		data := Data{}

		// Rejected transactions changed nothing.
		if entry.Result.Accepted {
			data = DecodeTransaction(f.program, entry.Tx)
		}

		err = f.store.Save(ctx, entry.Index, data)
		if err != nil {
			return xerrors.Errorf("failed to save entry %d: %v", entry.Index, err)
		}

		count += data.Len()

		return nil
	})

	if err != nil {
		return count, xerrors.Errorf("failed to sync: %v", err)
	}

	if count > 0 {
		f.logger.Info().Int("records", count).Msg("indexed")
	}

	return count, nil
}

// Follow synchronizes until the context is done, every time the source
// announces a new entry or after an interval.
func (f *Follower) Follow(ctx context.Context) error {
	entries := f.source.Watch(ctx)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		_, err := f.Sync(ctx)
		if err != nil && ctx.Err() == nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-entries:
		case <-ticker.C:
		}
	}
}
