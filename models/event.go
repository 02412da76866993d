package models

import "github.com/ethereum/go-ethereum/common"

type EventKind string

const (
	EventPollCreated EventKind = "poll_created"
	EventBallotCast  EventKind = "ballot_cast"
)

// LedgerEvent is the payload of an audit ledger block. It records who did
// what and the handles of any ciphertexts involved, never plaintext.
type LedgerEvent struct {
	Kind    EventKind      `json:"kind"`
	PollID  uint64         `json:"poll_id"`
	Actor   common.Address `json:"actor"`
	Handles []string       `json:"handles,omitempty"`
	Receipt string         `json:"receipt,omitempty"`
}
