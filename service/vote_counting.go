package service

import (
	"confidential-revote/encryption"

	"golang.org/x/xerrors"
)

// CounterType is the width of every per-option tally counter.
const CounterType = encryption.Uint32

// TallyEngine keeps the per-option encrypted counters of a poll. It never
// decrypts anything; every step runs under encryption.
type TallyEngine struct {
	scheme encryption.HomomorphicEncryptionScheme
}

func NewTallyEngine(scheme encryption.HomomorphicEncryptionScheme) *TallyEngine {
	return &TallyEngine{scheme: scheme}
}

// Zero returns n fresh encryptions of zero.
func (te *TallyEngine) Zero(n int) ([][]byte, error) {
	tally := make([][]byte, n)
	for i := range tally {
		zero, err := te.scheme.Encrypt(0, CounterType)
		if err != nil {
			return nil, xerrors.Errorf("failed to encrypt zero counter: %w", err)
		}
		tally[i] = zero.Bytes()
	}
	return tally, nil
}

// Update adds the encrypted indicator [option == i] to every counter i and
// returns the new vector. The input vector is left untouched, so a failure
// part way through leaves the caller's state as it was.
func (te *TallyEngine) Update(tally [][]byte, option *encryption.Ciphertext) ([][]byte, error) {
	next := make([][]byte, len(tally))
	for i, raw := range tally {
		counter, err := encryption.ParseCiphertext(raw)
		if err != nil {
			return nil, xerrors.Errorf("corrupt counter %d: %w", i, err)
		}

		index, err := te.scheme.Encrypt(uint64(i), option.Type)
		if err != nil {
			return nil, xerrors.Errorf("failed to encrypt option index %d: %w", i, err)
		}
		hit, err := te.scheme.Eq(option, index)
		if err != nil {
			return nil, xerrors.Errorf("failed to compare option %d: %w", i, err)
		}
		inc, err := te.scheme.Cast(hit, counter.Type)
		if err != nil {
			return nil, err
		}
		sum, err := te.scheme.Add(counter, inc)
		if err != nil {
			return nil, xerrors.Errorf("failed to add to counter %d: %w", i, err)
		}
		next[i] = sum.Bytes()
	}
	return next, nil
}
