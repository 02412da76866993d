package models

import (
	"bytes"
	"encoding/binary"
	"time"

	"golang.org/x/crypto/sha3"
	"golang.org/x/xerrors"
)

type Block struct {
	Index      uint64 `json:"index"`
	Timestamp  int64  `json:"timestamp"` // unix nanoseconds
	Data       []byte `json:"data"`
	PrevHash   []byte `json:"prev_hash"`
	Hash       []byte `json:"hash"`
	Nonce      uint64 `json:"nonce"`
	Difficulty uint8  `json:"difficulty"` // Number of leading zero bytes required
}

func NewBlock(index uint64, data []byte, prevHash []byte, timestamp int64, difficulty uint8) *Block {
	block := &Block{
		Index:      index,
		Timestamp:  timestamp,
		Data:       data,
		PrevHash:   prevHash,
		Difficulty: difficulty,
	}

	block.Mine()
	return block
}

func (b *Block) Mine() {
	target := make([]byte, b.Difficulty)
	var nonce uint64
	for {
		b.Nonce = nonce
		b.Hash = b.calculateHash()

		if bytes.HasPrefix(b.Hash, target) {
			return
		}

		nonce++
		if nonce%1000 == 0 {
			time.Sleep(time.Microsecond)
		}
	}
}

func (b *Block) calculateHash() []byte {
	d := sha3.NewLegacyKeccak256()
	var num [8]byte
	binary.BigEndian.PutUint64(num[:], b.Index)
	d.Write(num[:])
	binary.BigEndian.PutUint64(num[:], uint64(b.Timestamp))
	d.Write(num[:])
	d.Write(b.Data)
	d.Write(b.PrevHash)
	binary.BigEndian.PutUint64(num[:], b.Nonce)
	d.Write(num[:])
	return d.Sum(nil)
}

func (b *Block) Validate() bool {
	calculatedHash := b.calculateHash()
	if !bytes.Equal(calculatedHash, b.Hash) {
		return false
	}

	target := make([]byte, b.Difficulty)
	return bytes.HasPrefix(calculatedHash, target)
}

// ValidateChain checks hashes, links, indices and timestamp order, and
// reports the first block that breaks the chain.
func ValidateChain(blocks []*Block) error {
	for i, current := range blocks {
		if current.Index != uint64(i) {
			return xerrors.Errorf("block %d has invalid index %d", i, current.Index)
		}
		if !current.Validate() {
			return xerrors.Errorf("block %d has invalid hash", i)
		}
		if i == 0 {
			continue
		}

		previous := blocks[i-1]
		if !bytes.Equal(current.PrevHash, previous.Hash) {
			return xerrors.Errorf("block %d has invalid previous hash link", i)
		}
		if current.Timestamp <= previous.Timestamp {
			return xerrors.Errorf("block %d has invalid timestamp", i)
		}
	}
	return nil
}

// NextTimestamp returns the current time, bumped past last if the clock
// has not advanced.
func NextTimestamp(last int64) int64 {
	now := time.Now().UnixNano()
	if now <= last {
		return last + 1
	}
	return now
}
