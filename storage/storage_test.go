package storage

import (
	"errors"
	"testing"

	"confidential-revote/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/onet/v3/log"
)

func TestMain(m *testing.M) {
	log.MainTest(m)
}

var alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

type opener func(t *testing.T, dir string) Store

var backends = map[string]opener{
	BackendJSON: func(t *testing.T, dir string) Store {
		s, err := Open(BackendJSON, dir)
		require.NoError(t, err)
		return s
	},
	BackendBolt: func(t *testing.T, dir string) Store {
		s, err := Open(BackendBolt, dir)
		require.NoError(t, err)
		return s
	},
}

func poll(id uint64) *models.Poll {
	return &models.Poll{
		ID:       id,
		Creator:  alice,
		Question: "lunch?",
		Options:  []string{"yes", "no"},
		Tally:    [][]byte{{1, 1}, {1, 2}},
		FeePaid:  "5000000000000000",
	}
}

func TestStore_PollsAndBallots(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			s := open(t, t.TempDir())
			defer s.Close()

			require.NoError(t, s.Update(func(tx Tx) error {
				if err := tx.PutPoll(poll(0)); err != nil {
					return err
				}
				return tx.PutBallot(&models.Ballot{PollID: 0, Voter: alice, EncryptedOption: []byte{1, 9}, HasVoted: true})
			}))

			require.NoError(t, s.View(func(tx Tx) error {
				n, err := tx.PollCount()
				require.NoError(t, err)
				require.Equal(t, uint64(1), n)

				p, err := tx.Poll(0)
				require.NoError(t, err)
				require.Equal(t, []string{"yes", "no"}, p.Options)

				_, err = tx.Poll(1)
				require.ErrorIs(t, err, ErrNotFound)

				b, err := tx.Ballot(0, alice)
				require.NoError(t, err)
				require.True(t, b.HasVoted)

				_, err = tx.Ballot(0, common.Address{})
				require.ErrorIs(t, err, ErrNotFound)
				return nil
			}))
		})
	}
}

func TestStore_Rollback(t *testing.T) {
	boom := errors.New("boom")
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			s := open(t, t.TempDir())
			defer s.Close()

			err := s.Update(func(tx Tx) error {
				require.NoError(t, tx.PutPoll(poll(0)))
				require.NoError(t, tx.AppendBlock(models.NewBlock(0, []byte("x"), make([]byte, 32), 1, 0)))
				return boom
			})
			require.ErrorIs(t, err, boom)

			require.NoError(t, s.View(func(tx Tx) error {
				n, _ := tx.PollCount()
				require.Zero(t, n)
				last, err := tx.LastBlock()
				require.NoError(t, err)
				require.Nil(t, last)
				return nil
			}))
		})
	}
}

func TestStore_Sequential(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			s := open(t, t.TempDir())
			defer s.Close()

			err := s.Update(func(tx Tx) error {
				return tx.PutPoll(poll(3))
			})
			require.Error(t, err)

			err = s.Update(func(tx Tx) error {
				return tx.AppendBlock(models.NewBlock(2, nil, nil, 1, 0))
			})
			require.Error(t, err)

			err = s.View(func(tx Tx) error {
				return tx.PutPoll(poll(0))
			})
			require.ErrorIs(t, err, ErrReadOnly)
		})
	}
}

func TestStore_Reopen(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			s := open(t, dir)
			require.NoError(t, s.Update(func(tx Tx) error {
				for i := uint64(0); i < 3; i++ {
					if err := tx.PutPoll(poll(i)); err != nil {
						return err
					}
				}
				return tx.AppendBlock(models.NewBlock(0, []byte("genesis"), make([]byte, 32), 1, 1))
			}))
			require.NoError(t, s.Close())

			s = open(t, dir)
			defer s.Close()
			require.NoError(t, s.View(func(tx Tx) error {
				n, _ := tx.PollCount()
				require.Equal(t, uint64(3), n)
				blocks, err := tx.Blocks()
				require.NoError(t, err)
				require.Len(t, blocks, 1)
				require.NoError(t, models.ValidateChain(blocks))
				return nil
			}))
		})
	}
}

func TestMemoryStore_Isolation(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Update(func(tx Tx) error {
		return tx.PutPoll(poll(0))
	}))

	require.NoError(t, s.View(func(tx Tx) error {
		p, err := tx.Poll(0)
		require.NoError(t, err)
		p.Options[0] = "mutated"
		return nil
	}))

	require.NoError(t, s.View(func(tx Tx) error {
		p, err := tx.Poll(0)
		require.NoError(t, err)
		require.Equal(t, "yes", p.Options[0])
		return nil
	}))
}

func TestOpen_Unknown(t *testing.T) {
	_, err := Open("redis", t.TempDir())
	require.Error(t, err)
}
