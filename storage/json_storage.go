package storage

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"confidential-revote/models"

	"github.com/ethereum/go-ethereum/common"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

// snapshot is the whole store state, and the layout of the JSON file.
type snapshot struct {
	Polls   []*models.Poll            `json:"polls"`
	Ballots map[string]*models.Ballot `json:"ballots"` // keyed by hex(ballotKey)
	Blocks  []*models.Block           `json:"blocks"`
}

func emptySnapshot() *snapshot {
	return &snapshot{Ballots: make(map[string]*models.Ballot)}
}

// JSONStore keeps everything in memory and, when basePath is set, writes
// the full state to a JSON file on every commit.
type JSONStore struct {
	basePath string

	writer sync.Mutex // serializes Update
	mu     sync.RWMutex
	state  *snapshot
}

// NewMemoryStore returns a JSONStore that never touches disk.
func NewMemoryStore() *JSONStore {
	return &JSONStore{state: emptySnapshot()}
}

func NewJSONStore(basePath string) (*JSONStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, xerrors.Errorf("failed to create directory: %w", err)
	}

	store := &JSONStore{basePath: basePath}
	state, err := store.loadFromFile()
	if err != nil {
		return nil, xerrors.Errorf("failed to load state: %w", err)
	}
	store.state = state
	log.Lvlf2("opened json store at %s: %d polls, %d blocks", basePath, len(state.Polls), len(state.Blocks))
	return store, nil
}

func (s *JSONStore) View(fn func(Tx) error) error {
	return fn(&jsonTx{store: s})
}

func (s *JSONStore) Update(fn func(Tx) error) error {
	s.writer.Lock()
	defer s.writer.Unlock()

	tx := &jsonTx{
		store:    s,
		writable: true,
		polls:    make(map[uint64]*models.Poll),
		ballots:  make(map[string]*models.Ballot),
	}
	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *JSONStore) Close() error {
	return nil
}

// commit builds the next state from the staged writes and swaps it in
// only after it has been persisted.
func (s *JSONStore) commit(tx *jsonTx) error {
	if len(tx.polls) == 0 && len(tx.ballots) == 0 && len(tx.blocks) == 0 {
		return nil
	}

	s.mu.RLock()
	cur := s.state
	next := &snapshot{
		Polls:   append([]*models.Poll(nil), cur.Polls...),
		Ballots: make(map[string]*models.Ballot, len(cur.Ballots)+len(tx.ballots)),
		Blocks:  append([]*models.Block(nil), cur.Blocks...),
	}
	for k, b := range cur.Ballots {
		next.Ballots[k] = b
	}
	s.mu.RUnlock()

	for id, p := range tx.polls {
		for uint64(len(next.Polls)) <= id {
			next.Polls = append(next.Polls, nil)
		}
		next.Polls[id] = p
	}
	for k, b := range tx.ballots {
		next.Ballots[k] = b
	}
	next.Blocks = append(next.Blocks, tx.blocks...)

	if s.basePath != "" {
		if err := s.saveToFile(next); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	return nil
}

func (s *JSONStore) current() *snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *JSONStore) path() string {
	return filepath.Join(s.basePath, "revote_state.json")
}

func (s *JSONStore) loadFromFile() (*snapshot, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return emptySnapshot(), nil
		}
		return nil, err
	}

	state := emptySnapshot()
	if err := json.Unmarshal(data, state); err != nil {
		return nil, xerrors.Errorf("failed to unmarshal state: %w", err)
	}
	if state.Ballots == nil {
		state.Ballots = make(map[string]*models.Ballot)
	}
	return state, nil
}

func (s *JSONStore) saveToFile(state *snapshot) error {
	path := s.path()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return xerrors.Errorf("failed to marshal state: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return xerrors.Errorf("failed to write state file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return xerrors.Errorf("failed to save state file: %w", err)
	}

	return nil
}

// jsonTx reads through its staged writes to the committed snapshot. The
// snapshot is immutable once published, so reads need no further locking.
type jsonTx struct {
	store    *JSONStore
	writable bool
	base     *snapshot

	polls   map[uint64]*models.Poll
	ballots map[string]*models.Ballot
	blocks  []*models.Block
}

func (tx *jsonTx) snap() *snapshot {
	if tx.base == nil {
		tx.base = tx.store.current()
	}
	return tx.base
}

func (tx *jsonTx) PollCount() (uint64, error) {
	n := uint64(len(tx.snap().Polls))
	for id := range tx.polls {
		if id+1 > n {
			n = id + 1
		}
	}
	return n, nil
}

func (tx *jsonTx) Poll(id uint64) (*models.Poll, error) {
	if p, ok := tx.polls[id]; ok {
		return p.Clone(), nil
	}
	polls := tx.snap().Polls
	if id >= uint64(len(polls)) || polls[id] == nil {
		return nil, xerrors.Errorf("poll %d: %w", id, ErrNotFound)
	}
	return polls[id].Clone(), nil
}

func (tx *jsonTx) PutPoll(p *models.Poll) error {
	if !tx.writable {
		return ErrReadOnly
	}
	count, _ := tx.PollCount()
	if p.ID > count {
		return xerrors.Errorf("poll id %d skips past %d", p.ID, count)
	}
	tx.polls[p.ID] = p.Clone()
	return nil
}

func (tx *jsonTx) Ballot(pollID uint64, voter common.Address) (*models.Ballot, error) {
	key := hex.EncodeToString([]byte(ballotKey(pollID, voter)))
	if b, ok := tx.ballots[key]; ok {
		return b.Clone(), nil
	}
	if b, ok := tx.snap().Ballots[key]; ok {
		return b.Clone(), nil
	}
	return nil, xerrors.Errorf("ballot %d/%s: %w", pollID, voter.Hex(), ErrNotFound)
}

func (tx *jsonTx) PutBallot(b *models.Ballot) error {
	if !tx.writable {
		return ErrReadOnly
	}
	tx.ballots[hex.EncodeToString([]byte(ballotKey(b.PollID, b.Voter)))] = b.Clone()
	return nil
}

func (tx *jsonTx) Blocks() ([]*models.Block, error) {
	base := tx.snap().Blocks
	blocks := make([]*models.Block, 0, len(base)+len(tx.blocks))
	blocks = append(blocks, base...)
	return append(blocks, tx.blocks...), nil
}

func (tx *jsonTx) LastBlock() (*models.Block, error) {
	if n := len(tx.blocks); n > 0 {
		return tx.blocks[n-1], nil
	}
	base := tx.snap().Blocks
	if len(base) == 0 {
		return nil, nil
	}
	return base[len(base)-1], nil
}

func (tx *jsonTx) AppendBlock(b *models.Block) error {
	if !tx.writable {
		return ErrReadOnly
	}
	n := uint64(len(tx.snap().Blocks) + len(tx.blocks))
	if b.Index != n {
		return xerrors.Errorf("block index %d, expected %d", b.Index, n)
	}
	tx.blocks = append(tx.blocks, b)
	return nil
}
