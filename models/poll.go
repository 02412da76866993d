package models

import "github.com/ethereum/go-ethereum/common"

type Poll struct {
	ID       uint64         `json:"id"`
	Creator  common.Address `json:"creator"`
	Question string         `json:"question"`
	Options  []string       `json:"options"`
	// Tally holds one encrypted counter per option, in option order.
	Tally     [][]byte `json:"tally"`
	FeePaid   string   `json:"fee_paid"`
	CreatedAt int64    `json:"created_at"`
}

// Clone returns a deep copy so callers can never alias stored state.
func (p *Poll) Clone() *Poll {
	c := *p
	c.Options = append([]string(nil), p.Options...)
	c.Tally = make([][]byte, len(p.Tally))
	for i, ct := range p.Tally {
		c.Tally[i] = append([]byte(nil), ct...)
	}
	return &c
}
