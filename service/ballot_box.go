package service

import (
	"errors"
	"time"

	"confidential-revote/encryption"
	"confidential-revote/models"
	"confidential-revote/storage"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"golang.org/x/xerrors"
)

// BallotBox records one ballot per voter per poll and feeds it to the
// tally.
type BallotBox struct {
	scheme     encryption.HomomorphicEncryptionScheme
	ballotType encryption.Type
	tally      *TallyEngine
}

func NewBallotBox(scheme encryption.HomomorphicEncryptionScheme, ballotType encryption.Type, tally *TallyEngine) *BallotBox {
	return &BallotBox{
		scheme:     scheme,
		ballotType: ballotType,
		tally:      tally,
	}
}

// Cast stores the ballot and the updated tally in tx. Both writes land in
// the same transaction, so either both commit or neither does.
func (bb *BallotBox) Cast(tx storage.Tx, poll *models.Poll, voter common.Address, encryptedOption []byte) (*models.Ballot, *encryption.Ciphertext, error) {
	_, err := tx.Ballot(poll.ID, voter)
	if err == nil {
		return nil, nil, xerrors.Errorf("%w: %s in poll %d", ErrDoubleVotingNotAllowed, voter.Hex(), poll.ID)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, nil, xerrors.Errorf("failed to look up ballot: %w", err)
	}

	ct, err := encryption.ParseCiphertext(encryptedOption)
	if err != nil {
		return nil, nil, err
	}
	if ct.Type != bb.ballotType {
		return nil, nil, xerrors.Errorf("%w: ballot must be %s, got %s", encryption.ErrInvalidCiphertext, bb.ballotType, ct.Type)
	}
	if err := bb.scheme.Validate(ct); err != nil {
		return nil, nil, err
	}

	ballot := &models.Ballot{
		PollID:          poll.ID,
		Voter:           voter,
		EncryptedOption: ct.Bytes(),
		HasVoted:        true,
		ReceiptID:       uuid.New().String(),
		CastAt:          time.Now().Unix(),
	}
	if err := tx.PutBallot(ballot); err != nil {
		return nil, nil, xerrors.Errorf("failed to store ballot: %w", err)
	}

	tally, err := bb.tally.Update(poll.Tally, ct)
	if err != nil {
		return nil, nil, err
	}
	poll.Tally = tally
	if err := tx.PutPoll(poll); err != nil {
		return nil, nil, xerrors.Errorf("failed to store tally: %w", err)
	}
	return ballot, ct, nil
}

// Own returns voter's ballot in poll.
func (bb *BallotBox) Own(tx storage.Tx, pollID uint64, voter common.Address) (*models.Ballot, error) {
	ballot, err := tx.Ballot(pollID, voter)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, xerrors.Errorf("%w: %s in poll %d", ErrBallotNotFound, voter.Hex(), pollID)
	}
	if err != nil {
		return nil, xerrors.Errorf("failed to load ballot: %w", err)
	}
	return ballot, nil
}
