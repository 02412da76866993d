package encryption

import (
	"crypto/ecdsa"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/xerrors"
)

// Keypair is a participant's reencryption key. Values revealed by the
// server are sealed to its public half.
type Keypair struct {
	PrivateKey *ecdsa.PrivateKey
}

func GenerateKeypair() (*Keypair, error) {
	priv, err := NewCryptoService().GenerateKeyPair()
	if err != nil {
		return nil, xerrors.Errorf("failed to generate keypair: %w", err)
	}
	return &Keypair{PrivateKey: priv}, nil
}

// KeypairFromHex loads a private key in the hex form used by geth.
func KeypairFromHex(s string) (*Keypair, error) {
	priv, err := crypto.HexToECDSA(s)
	if err != nil {
		return nil, xerrors.Errorf("failed to parse private key: %w", err)
	}
	return &Keypair{PrivateKey: priv}, nil
}

func (k *Keypair) PublicKey() []byte {
	return NewCryptoService().FromECDSAPub(&k.PrivateKey.PublicKey)
}

func (k *Keypair) Address() common.Address {
	return crypto.PubkeyToAddress(k.PrivateKey.PublicKey)
}

func (k *Keypair) Hex() string {
	return common.Bytes2Hex(crypto.FromECDSA(k.PrivateKey))
}

// Decrypt opens a value sealed by Reencrypt. It fails with
// ErrIncorrectKeyPair when the value was sealed to a different key.
func (k *Keypair) Decrypt(sealed []byte) (uint64, Type, error) {
	payload, err := NewCryptoService().Open(k.PrivateKey, sealed)
	if err != nil {
		return 0, 0, err
	}
	if len(payload) != 9 || !Type(payload[0]).Valid() {
		return 0, 0, xerrors.Errorf("%w: malformed payload", ErrIncorrectKeyPair)
	}
	return binary.BigEndian.Uint64(payload[1:]), Type(payload[0]), nil
}
