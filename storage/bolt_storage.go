package storage

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"confidential-revote/models"

	"github.com/ethereum/go-ethereum/common"
	"go.dedis.ch/onet/v3/log"
	"go.etcd.io/bbolt"
	"golang.org/x/xerrors"
)

var (
	bucketPolls   = []byte("polls")
	bucketBallots = []byte("ballots")
	bucketBlocks  = []byte("blocks")
)

// BoltStore keeps polls, ballots and the audit ledger in a bbolt file.
// bbolt transactions give Update its all-or-nothing behaviour.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, xerrors.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketPolls, bucketBallots, bucketBlocks} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return xerrors.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	log.Lvl2("opened bolt store at", path)
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) View(fn func(Tx) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

func (s *BoltStore) Update(fn func(Tx) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

type boltTx struct {
	tx *bbolt.Tx
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func (t *boltTx) count(bucket []byte) uint64 {
	k, _ := t.tx.Bucket(bucket).Cursor().Last()
	if k == nil {
		return 0
	}
	return binary.BigEndian.Uint64(k) + 1
}

func (t *boltTx) put(bucket, key []byte, v interface{}) error {
	if !t.tx.Writable() {
		return ErrReadOnly
	}
	data, err := json.Marshal(v)
	if err != nil {
		return xerrors.Errorf("failed to marshal: %w", err)
	}
	return t.tx.Bucket(bucket).Put(key, data)
}

func (t *boltTx) PollCount() (uint64, error) {
	return t.count(bucketPolls), nil
}

func (t *boltTx) Poll(id uint64) (*models.Poll, error) {
	data := t.tx.Bucket(bucketPolls).Get(itob(id))
	if data == nil {
		return nil, xerrors.Errorf("poll %d: %w", id, ErrNotFound)
	}
	var p models.Poll
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, xerrors.Errorf("failed to decode poll %d: %w", id, err)
	}
	return &p, nil
}

func (t *boltTx) PutPoll(p *models.Poll) error {
	if count := t.count(bucketPolls); p.ID > count {
		return xerrors.Errorf("poll id %d skips past %d", p.ID, count)
	}
	return t.put(bucketPolls, itob(p.ID), p)
}

func (t *boltTx) Ballot(pollID uint64, voter common.Address) (*models.Ballot, error) {
	data := t.tx.Bucket(bucketBallots).Get([]byte(ballotKey(pollID, voter)))
	if data == nil {
		return nil, xerrors.Errorf("ballot %d/%s: %w", pollID, voter.Hex(), ErrNotFound)
	}
	var b models.Ballot
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, xerrors.Errorf("failed to decode ballot: %w", err)
	}
	return &b, nil
}

func (t *boltTx) PutBallot(b *models.Ballot) error {
	return t.put(bucketBallots, []byte(ballotKey(b.PollID, b.Voter)), b)
}

func (t *boltTx) Blocks() ([]*models.Block, error) {
	var blocks []*models.Block
	err := t.tx.Bucket(bucketBlocks).ForEach(func(_, v []byte) error {
		var b models.Block
		if err := json.Unmarshal(v, &b); err != nil {
			return xerrors.Errorf("failed to decode block: %w", err)
		}
		blocks = append(blocks, &b)
		return nil
	})
	return blocks, err
}

func (t *boltTx) LastBlock() (*models.Block, error) {
	_, v := t.tx.Bucket(bucketBlocks).Cursor().Last()
	if v == nil {
		return nil, nil
	}
	var b models.Block
	if err := json.Unmarshal(v, &b); err != nil {
		return nil, xerrors.Errorf("failed to decode block: %w", err)
	}
	return &b, nil
}

func (t *boltTx) AppendBlock(b *models.Block) error {
	if n := t.count(bucketBlocks); b.Index != n {
		return xerrors.Errorf("block index %d, expected %d", b.Index, n)
	}
	return t.put(bucketBlocks, itob(b.Index), b)
}
