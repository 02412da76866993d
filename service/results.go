package service

import (
	"confidential-revote/encryption"
	"confidential-revote/models"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// ResultAccessController hands out tallies and ballots sealed to a
// requester's public key. Whoever holds the matching private key can read
// them; nobody else can.
type ResultAccessController struct {
	scheme encryption.HomomorphicEncryptionScheme
}

func NewResultAccessController(scheme encryption.HomomorphicEncryptionScheme) *ResultAccessController {
	return &ResultAccessController{scheme: scheme}
}

// Results reencrypts every counter of poll, in option order.
func (rc *ResultAccessController) Results(poll *models.Poll, publicKey []byte) ([][]byte, error) {
	sealed := make([][]byte, len(poll.Tally))

	var g errgroup.Group
	for i, raw := range poll.Tally {
		g.Go(func() error {
			out, err := rc.reencrypt(raw, publicKey)
			if err != nil {
				return xerrors.Errorf("counter %d: %w", i, err)
			}
			sealed[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sealed, nil
}

// Ballot reencrypts the voter's own stored option.
func (rc *ResultAccessController) Ballot(ballot *models.Ballot, publicKey []byte) ([]byte, error) {
	return rc.reencrypt(ballot.EncryptedOption, publicKey)
}

func (rc *ResultAccessController) reencrypt(raw, publicKey []byte) ([]byte, error) {
	ct, err := encryption.ParseCiphertext(raw)
	if err != nil {
		return nil, err
	}
	return rc.scheme.Reencrypt(ct, publicKey)
}
