package service

import (
	"errors"

	"confidential-revote/encryption"

	"golang.org/x/xerrors"
)

var (
	ErrInsufficientFee        = xerrors.New("insufficient fee to create poll")
	ErrInvalidOptionCount     = xerrors.New("poll needs at least two options")
	ErrPollNotFound           = xerrors.New("poll not found")
	ErrDoubleVotingNotAllowed = xerrors.New("double voting not allowed")
	ErrBallotNotFound         = xerrors.New("no ballot recorded for caller")
)

// ErrorKind names the failure class of err, for API responses and logs.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientFee):
		return "InsufficientFee"
	case errors.Is(err, ErrInvalidOptionCount):
		return "InvalidOptionCount"
	case errors.Is(err, ErrPollNotFound):
		return "PollNotFound"
	case errors.Is(err, ErrDoubleVotingNotAllowed):
		return "DoubleVotingNotAllowed"
	case errors.Is(err, ErrBallotNotFound):
		return "BallotNotFound"
	case errors.Is(err, encryption.ErrIncorrectKeyPair):
		return "IncorrectKeyPair"
	case errors.Is(err, encryption.ErrInvalidCiphertext):
		return "InvalidCiphertext"
	case errors.Is(err, encryption.ErrInvalidPublicKey):
		return "InvalidPublicKey"
	case errors.Is(err, encryption.ErrValueOutOfRange):
		return "ValueOutOfRange"
	default:
		return "Internal"
	}
}
