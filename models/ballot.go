package models

import "github.com/ethereum/go-ethereum/common"

// Ballot is one voter's encrypted choice in one poll.
type Ballot struct {
	PollID          uint64         `json:"poll_id"`
	Voter           common.Address `json:"voter"`
	EncryptedOption []byte         `json:"encrypted_option"`
	HasVoted        bool           `json:"has_voted"`
	ReceiptID       string         `json:"receipt_id"`
	CastAt          int64          `json:"cast_at"`
}

func (b *Ballot) Clone() *Ballot {
	c := *b
	c.EncryptedOption = append([]byte(nil), b.EncryptedOption...)
	return &c
}
