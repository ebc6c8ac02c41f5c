// Package sqlstore implements the store of the indexer on top of SQLite.
package sqlstore

import (
	"context"

	"go.dedis.ch/pollchain/core/address"
	"go.dedis.ch/pollchain/indexer"
	"golang.org/x/xerrors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// cursorID is the single row of the cursor table.
const cursorID = 1

// Poll is the row of a poll creation, keyed by the poll account.
type Poll struct {
	Address     string `gorm:"primaryKey"`
	TxID        string `gorm:"index;not null"`
	Authority   string `gorm:"not null"`
	Name        string
	Description string
	StartTime   uint64
	EndTime     uint64
}

// Candidate is the row of a candidate registration, keyed by the candidate
// account.
type Candidate struct {
	Address string `gorm:"primaryKey"`
	TxID    string `gorm:"index;not null"`
	Poll    string `gorm:"index;not null"`
	Name    string
	Signer  string `gorm:"not null"`
}

// Vote is the row of a vote, keyed by the receipt account.
type Vote struct {
	Receipt   string `gorm:"primaryKey"`
	TxID      string `gorm:"index;not null"`
	Poll      string `gorm:"index:idx_vote_poll_candidate;not null"`
	Candidate string `gorm:"index:idx_vote_poll_candidate;not null"`
	Voter     string `gorm:"not null"`
}

// Cursor is the index of the last processed entry of the log.
type Cursor struct {
	ID         uint `gorm:"primaryKey"`
	EntryIndex uint64
}

// Tally is the number of indexed votes of a candidate.
type Tally struct {
	Candidate string
	Votes     int64
}

// Store is the indexer store backed by a SQLite database.
//
// - implements indexer.Store
type Store struct {
	db *gorm.DB
}

// Open opens or creates the database at the path and migrates the tables.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to open database: %v", err)
	}

	err = db.AutoMigrate(&Poll{}, &Candidate{}, &Vote{}, &Cursor{})
	if err != nil {
		return nil, xerrors.Errorf("failed to migrate: %v", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return xerrors.Errorf("failed to get database: %v", err)
	}

	return sqlDB.Close()
}

// Cursor implements indexer.Store.
func (s *Store) Cursor(ctx context.Context) (uint64, error) {
	var cursors []Cursor

	err := s.db.WithContext(ctx).Where("id = ?", cursorID).Limit(1).Find(&cursors).Error
	if err != nil {
		return 0, xerrors.Errorf("failed to read cursor: %v", err)
	}

	if len(cursors) == 0 {
		return 0, nil
	}

	return cursors[0].EntryIndex, nil
}

// Save implements indexer.Store. The rows and the cursor are written in a
// single database transaction, and rows of an account already indexed are
// ignored.
func (s *Store) Save(ctx context.Context, index uint64, data indexer.Data) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ignore := tx.Clauses(clause.OnConflict{DoNothing: true})

		polls := make([]Poll, len(data.InitializePolls))
		for i, p := range data.InitializePolls {
			polls[i] = Poll{
				TxID:        p.TxID,
				Address:     p.Poll.String(),
				Authority:   p.Signer.String(),
				Name:        p.Name,
				Description: p.Description,
				StartTime:   p.StartTime,
				EndTime:     p.EndTime,
			}
		}

		if len(polls) > 0 {
			err := ignore.Create(&polls).Error
			if err != nil {
				return xerrors.Errorf("failed to insert polls: %v", err)
			}
		}

		candidates := make([]Candidate, len(data.AddCandidates))
		for i, c := range data.AddCandidates {
			candidates[i] = Candidate{
				TxID:    c.TxID,
				Address: c.Candidate.String(),
				Poll:    c.Poll.String(),
				Name:    c.CandidateName,
				Signer:  c.Signer.String(),
			}
		}

		if len(candidates) > 0 {
			err := ignore.Create(&candidates).Error
			if err != nil {
				return xerrors.Errorf("failed to insert candidates: %v", err)
			}
		}

		votes := make([]Vote, len(data.Votes))
		for i, v := range data.Votes {
			votes[i] = Vote{
				TxID:      v.TxID,
				Poll:      v.Poll.String(),
				Candidate: v.Candidate.String(),
				Voter:     v.Signer.String(),
				Receipt:   v.Receipt.String(),
			}
		}

		if len(votes) > 0 {
			err := ignore.Create(&votes).Error
			if err != nil {
				return xerrors.Errorf("failed to insert votes: %v", err)
			}
		}

		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"entry_index"}),
		}).Create(&Cursor{ID: cursorID, EntryIndex: index}).Error
		if err != nil {
			return xerrors.Errorf("failed to move cursor: %v", err)
		}

		return nil
	})
}

// Polls returns the indexed polls in creation order.
func (s *Store) Polls(ctx context.Context) ([]Poll, error) {
	var polls []Poll

	err := s.db.WithContext(ctx).Order("rowid").Find(&polls).Error
	if err != nil {
		return nil, xerrors.Errorf("failed to read polls: %v", err)
	}

	return polls, nil
}

// Candidates returns the indexed candidates of the poll in registration order.
func (s *Store) Candidates(ctx context.Context, poll address.Address) ([]Candidate, error) {
	var candidates []Candidate

	err := s.db.WithContext(ctx).Where("poll = ?", poll.String()).Order("rowid").Find(&candidates).Error
	if err != nil {
		return nil, xerrors.Errorf("failed to read candidates: %v", err)
	}

	return candidates, nil
}

// Tally returns the number of indexed votes per candidate of the poll.
func (s *Store) Tally(ctx context.Context, poll address.Address) ([]Tally, error) {
	var tally []Tally

	err := s.db.WithContext(ctx).Model(&Vote{}).
		Select("candidate, count(*) as votes").
		Where("poll = ?", poll.String()).
		Group("candidate").
		Order("candidate").
		Scan(&tally).Error
	if err != nil {
		return nil, xerrors.Errorf("failed to tally: %v", err)
	}

	return tally, nil
}
