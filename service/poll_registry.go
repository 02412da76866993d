package service

import (
	"errors"
	"time"

	"confidential-revote/models"
	"confidential-revote/storage"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/xerrors"
)

// PollRegistry creates polls and answers queries about them.
type PollRegistry struct {
	minimumFee *uint256.Int
	maxOptions int
	tally      *TallyEngine
}

func NewPollRegistry(minimumFee *uint256.Int, maxOptions int, tally *TallyEngine) *PollRegistry {
	return &PollRegistry{
		minimumFee: new(uint256.Int).Set(minimumFee),
		maxOptions: maxOptions,
		tally:      tally,
	}
}

func (pr *PollRegistry) Fee() *uint256.Int {
	return new(uint256.Int).Set(pr.minimumFee)
}

// Create checks the fee and options, then stores a new poll with an
// all-zero encrypted tally under the next id.
func (pr *PollRegistry) Create(tx storage.Tx, creator common.Address, question string, options []string, fee *uint256.Int) (*models.Poll, error) {
	if fee == nil || fee.Lt(pr.minimumFee) {
		return nil, xerrors.Errorf("%w: need at least %s wei", ErrInsufficientFee, pr.minimumFee.Dec())
	}
	if len(options) < 2 {
		return nil, xerrors.Errorf("%w: got %d", ErrInvalidOptionCount, len(options))
	}
	if len(options) > pr.maxOptions {
		return nil, xerrors.Errorf("%w: at most %d options", ErrInvalidOptionCount, pr.maxOptions)
	}

	tally, err := pr.tally.Zero(len(options))
	if err != nil {
		return nil, err
	}

	id, err := tx.PollCount()
	if err != nil {
		return nil, xerrors.Errorf("failed to count polls: %w", err)
	}

	poll := &models.Poll{
		ID:        id,
		Creator:   creator,
		Question:  question,
		Options:   append([]string(nil), options...),
		Tally:     tally,
		FeePaid:   fee.Dec(),
		CreatedAt: time.Now().Unix(),
	}
	if err := tx.PutPoll(poll); err != nil {
		return nil, xerrors.Errorf("failed to store poll: %w", err)
	}
	return poll, nil
}

func (pr *PollRegistry) Get(tx storage.Tx, id uint64) (*models.Poll, error) {
	poll, err := tx.Poll(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, xerrors.Errorf("%w: id %d", ErrPollNotFound, id)
	}
	if err != nil {
		return nil, xerrors.Errorf("failed to load poll %d: %w", id, err)
	}
	return poll, nil
}

// All returns every poll in creation order.
func (pr *PollRegistry) All(tx storage.Tx) ([]*models.Poll, error) {
	count, err := tx.PollCount()
	if err != nil {
		return nil, xerrors.Errorf("failed to count polls: %w", err)
	}
	polls := make([]*models.Poll, 0, count)
	for id := uint64(0); id < count; id++ {
		poll, err := pr.Get(tx, id)
		if err != nil {
			return nil, err
		}
		polls = append(polls, poll)
	}
	return polls, nil
}

// ByCreator returns the ids of the polls made by creator, ascending.
func (pr *PollRegistry) ByCreator(tx storage.Tx, creator common.Address) ([]uint64, error) {
	all, err := pr.All(tx)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0)
	for _, poll := range all {
		if poll.Creator == creator {
			ids = append(ids, poll.ID)
		}
	}
	return ids, nil
}
