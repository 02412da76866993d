package service

import (
	"encoding/json"
	"sync"
	"time"

	"confidential-revote/encryption"
	"confidential-revote/models"
	"confidential-revote/storage"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

// DefaultMinimumFee is 0.005 ether in wei.
var DefaultMinimumFee = uint256.NewInt(5_000_000_000_000_000)

// Options configures a VotingService.
type Options struct {
	MinimumFee *uint256.Int
	BallotType encryption.Type
	// Difficulty is the leading zero bytes each audit ledger block needs.
	Difficulty uint8
}

// VotingService is the public face of the poll system. Mutations are
// serialized and run inside one store transaction each; reads go straight
// to committed state.
type VotingService struct {
	store   storage.Store
	scheme  encryption.HomomorphicEncryptionScheme
	mu      sync.Mutex
	metrics *MetricsCollector

	registry   *PollRegistry
	ballots    *BallotBox
	results    *ResultAccessController
	ballotType encryption.Type
	difficulty uint8
}

type LedgerResponse struct {
	BlockCount int             `json:"block_count"`
	Blocks     []*models.Block `json:"blocks"`
	IsValid    bool            `json:"is_valid"`
	Error      string          `json:"error,omitempty"`
	LastHash   string          `json:"last_hash"`
}

func NewVotingService(store storage.Store, scheme encryption.HomomorphicEncryptionScheme, opts Options) (*VotingService, error) {
	if opts.MinimumFee == nil {
		opts.MinimumFee = DefaultMinimumFee
	}
	if opts.BallotType == 0 {
		opts.BallotType = encryption.Uint8
	}
	if opts.BallotType == encryption.Bool || !opts.BallotType.Valid() {
		return nil, xerrors.Errorf("unsupported ballot type %s", opts.BallotType)
	}

	maxOptions := uint64(1) << 16
	if opts.BallotType.Max() < maxOptions {
		maxOptions = opts.BallotType.Max() + 1
	}

	tally := NewTallyEngine(scheme)
	vs := &VotingService{
		store:      store,
		scheme:     scheme,
		metrics:    NewMetricsCollector(),
		registry:   NewPollRegistry(opts.MinimumFee, int(maxOptions), tally),
		ballots:    NewBallotBox(scheme, opts.BallotType, tally),
		results:    NewResultAccessController(scheme),
		ballotType: opts.BallotType,
		difficulty: opts.Difficulty,
	}

	log.Lvlf2("voting service ready: scheme=%s key=%d bits ballot=%s fee=%s",
		scheme.Name(), scheme.KeySize(), opts.BallotType, opts.MinimumFee.Dec())
	return vs, nil
}

// CreatePoll stores a new poll with a zero tally and returns its id.
func (vs *VotingService) CreatePoll(caller common.Address, question string, options []string, fee *uint256.Int) (uint64, error) {
	start := time.Now()
	vs.mu.Lock()
	defer vs.mu.Unlock()

	var poll *models.Poll
	err := vs.store.Update(func(tx storage.Tx) error {
		var err error
		poll, err = vs.registry.Create(tx, caller, question, options, fee)
		if err != nil {
			return err
		}
		return vs.appendEvent(tx, models.LedgerEvent{
			Kind:   models.EventPollCreated,
			PollID: poll.ID,
			Actor:  caller,
		})
	})
	vs.metrics.Record(OpCreatePoll, time.Since(start), err)
	if err != nil {
		log.Lvlf2("create poll by %s rejected: %v", caller.Hex(), err)
		return 0, err
	}

	log.Lvlf2("poll %d created by %s with %d options", poll.ID, caller.Hex(), len(poll.Options))
	return poll.ID, nil
}

// Vote casts caller's encrypted option in poll pollID and folds it into
// the tally. On any error neither the ballot nor the tally changes.
func (vs *VotingService) Vote(caller common.Address, pollID uint64, encryptedOption []byte) (*models.Ballot, error) {
	start := time.Now()
	vs.mu.Lock()
	defer vs.mu.Unlock()

	var ballot *models.Ballot
	err := vs.store.Update(func(tx storage.Tx) error {
		poll, err := vs.registry.Get(tx, pollID)
		if err != nil {
			return err
		}
		var ct *encryption.Ciphertext
		ballot, ct, err = vs.ballots.Cast(tx, poll, caller, encryptedOption)
		if err != nil {
			return err
		}
		return vs.appendEvent(tx, models.LedgerEvent{
			Kind:    models.EventBallotCast,
			PollID:  pollID,
			Actor:   caller,
			Handles: []string{ct.Handle()},
			Receipt: ballot.ReceiptID,
		})
	})
	vs.metrics.Record(OpVote, time.Since(start), err)
	if err != nil {
		log.Lvlf2("vote by %s in poll %d rejected: %v", caller.Hex(), pollID, err)
		return nil, err
	}

	log.Lvlf3("ballot %s recorded in poll %d", ballot.ReceiptID, pollID)
	return ballot, nil
}

func (vs *VotingService) GetPolls() ([]*models.Poll, error) {
	var polls []*models.Poll
	err := vs.store.View(func(tx storage.Tx) error {
		var err error
		polls, err = vs.registry.All(tx)
		return err
	})
	return polls, err
}

func (vs *VotingService) GetPollByID(id uint64) (*models.Poll, error) {
	var poll *models.Poll
	err := vs.store.View(func(tx storage.Tx) error {
		var err error
		poll, err = vs.registry.Get(tx, id)
		return err
	})
	return poll, err
}

func (vs *VotingService) GetPollsByCreator(creator common.Address) ([]uint64, error) {
	var ids []uint64
	err := vs.store.View(func(tx storage.Tx) error {
		var err error
		ids, err = vs.registry.ByCreator(tx, creator)
		return err
	})
	return ids, err
}

// PollCreationFee returns the minimum fee in wei.
func (vs *VotingService) PollCreationFee() *uint256.Int {
	return vs.registry.Fee()
}

// GetResults returns the tally of pollID, each counter sealed to
// publicKey, in option order.
func (vs *VotingService) GetResults(pollID uint64, publicKey []byte) ([][]byte, error) {
	start := time.Now()
	poll, err := vs.GetPollByID(pollID)
	if err != nil {
		vs.metrics.Record(OpResults, time.Since(start), err)
		return nil, err
	}
	sealed, err := vs.results.Results(poll, publicKey)
	vs.metrics.Record(OpResults, time.Since(start), err)
	return sealed, err
}

// GetVoteByPollAndVoter returns caller's own ballot sealed to publicKey.
// There is no way to ask for another voter's ballot.
func (vs *VotingService) GetVoteByPollAndVoter(caller common.Address, pollID uint64, publicKey []byte) ([]byte, error) {
	start := time.Now()
	var ballot *models.Ballot
	err := vs.store.View(func(tx storage.Tx) error {
		if _, err := vs.registry.Get(tx, pollID); err != nil {
			return err
		}
		var err error
		ballot, err = vs.ballots.Own(tx, pollID, caller)
		return err
	})
	var sealed []byte
	if err == nil {
		sealed, err = vs.results.Ballot(ballot, publicKey)
	}
	vs.metrics.Record(OpOwnBallot, time.Since(start), err)
	return sealed, err
}

// NetworkKey returns the public key ballots must be encrypted under.
func (vs *VotingService) NetworkKey() []byte {
	return vs.scheme.ExportPublicKey()
}

func (vs *VotingService) SchemeName() string {
	return vs.scheme.Name()
}

func (vs *VotingService) BallotType() encryption.Type {
	return vs.ballotType
}

func (vs *VotingService) Metrics() *MetricsCollector {
	return vs.metrics
}

// Ledger returns the audit ledger and whether it validates.
func (vs *VotingService) Ledger() (*LedgerResponse, error) {
	var blocks []*models.Block
	err := vs.store.View(func(tx storage.Tx) error {
		var err error
		blocks, err = tx.Blocks()
		return err
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to read ledger: %w", err)
	}

	resp := &LedgerResponse{
		BlockCount: len(blocks),
		Blocks:     blocks,
		IsValid:    true,
	}
	if err := models.ValidateChain(blocks); err != nil {
		resp.IsValid = false
		resp.Error = err.Error()
	}
	if len(blocks) > 0 {
		resp.LastHash = common.Bytes2Hex(blocks[len(blocks)-1].Hash)
	}
	return resp, nil
}

// ValidateLedger checks the hash chain of the audit ledger.
func (vs *VotingService) ValidateLedger() error {
	ledger, err := vs.Ledger()
	if err != nil {
		return err
	}
	if !ledger.IsValid {
		return xerrors.Errorf("audit ledger invalid: %s", ledger.Error)
	}
	return nil
}

func (vs *VotingService) appendEvent(tx storage.Tx, event models.LedgerEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return xerrors.Errorf("failed to marshal ledger event: %w", err)
	}

	last, err := tx.LastBlock()
	if err != nil {
		return xerrors.Errorf("failed to read ledger head: %w", err)
	}
	var (
		index    uint64
		prevHash = make([]byte, 32)
		lastTime int64
	)
	if last != nil {
		index = last.Index + 1
		prevHash = last.Hash
		lastTime = last.Timestamp
	}

	block := models.NewBlock(index, data, prevHash, models.NextTimestamp(lastTime), vs.difficulty)
	if err := tx.AppendBlock(block); err != nil {
		return xerrors.Errorf("failed to append ledger block: %w", err)
	}
	return nil
}
