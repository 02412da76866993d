package storage

import (
	"os"
	"path/filepath"

	"confidential-revote/models"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/xerrors"
)

var (
	ErrNotFound = xerrors.New("not found")
	ErrReadOnly = xerrors.New("transaction is read-only")
)

// Tx is a view of the store inside one transaction. Values returned by a
// Tx are copies; mutate them and Put them back.
type Tx interface {
	PollCount() (uint64, error)
	Poll(id uint64) (*models.Poll, error)
	// PutPoll stores p. A new poll must take the next sequential id.
	PutPoll(p *models.Poll) error

	Ballot(pollID uint64, voter common.Address) (*models.Ballot, error)
	PutBallot(b *models.Ballot) error

	Blocks() ([]*models.Block, error)
	// LastBlock returns nil when the ledger is empty.
	LastBlock() (*models.Block, error)
	// AppendBlock adds b at the end of the ledger; b.Index must equal the
	// current length.
	AppendBlock(b *models.Block) error
}

// Store runs transactions. If fn returns an error from Update, nothing it
// wrote is kept.
type Store interface {
	View(fn func(Tx) error) error
	Update(fn func(Tx) error) error
	Close() error
}

const (
	BackendMemory = "memory"
	BackendJSON   = "json"
	BackendBolt   = "bolt"
)

// Open creates the store for backend under dataDir.
func Open(backend, dataDir string) (Store, error) {
	switch backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendJSON:
		return NewJSONStore(dataDir)
	case BackendBolt:
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, xerrors.Errorf("failed to create directory: %w", err)
		}
		return NewBoltStore(filepath.Join(dataDir, "revote.db"))
	default:
		return nil, xerrors.Errorf("unknown storage backend %q", backend)
	}
}

func ballotKey(pollID uint64, voter common.Address) string {
	return string(append(itob(pollID), voter.Bytes()...))
}
