package encryption

import (
	"crypto/ecdsa"
	"crypto/rand"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/ecies"
	"golang.org/x/crypto/sha3"
	"golang.org/x/xerrors"
)

type CryptoService struct{}

func NewCryptoService() *CryptoService {
	return &CryptoService{}
}

// GenerateKeyPair generates a new secp256k1 key pair
func (cs *CryptoService) GenerateKeyPair() (*ecdsa.PrivateKey, error) {
	return crypto.GenerateKey()
}

// Sign signs a 32-byte digest
func (cs *CryptoService) Sign(digest []byte, privateKey *ecdsa.PrivateKey) ([]byte, error) {
	return crypto.Sign(digest, privateKey)
}

// RecoverAddress returns the account that produced signature over digest.
func (cs *CryptoService) RecoverAddress(digest, signature []byte) (common.Address, error) {
	pub, err := crypto.SigToPub(digest, signature)
	if err != nil {
		return common.Address{}, xerrors.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// ParsePublicKey accepts a 65-byte uncompressed or 33-byte compressed key.
func (cs *CryptoService) ParsePublicKey(b []byte) (*ecdsa.PublicKey, error) {
	var (
		pub *ecdsa.PublicKey
		err error
	)
	switch len(b) {
	case 65:
		pub, err = crypto.UnmarshalPubkey(b)
	case 33:
		pub, err = crypto.DecompressPubkey(b)
	default:
		return nil, xerrors.Errorf("%w: %d bytes", ErrInvalidPublicKey, len(b))
	}
	if err != nil {
		return nil, xerrors.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return pub, nil
}

// FromECDSAPub serializes public key to bytes
func (cs *CryptoService) FromECDSAPub(pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return crypto.FromECDSAPub(pub)
}

// Keccak256 computes Keccak-256 hash
func (cs *CryptoService) Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// Seal encrypts msg to pub with ECIES.
func (cs *CryptoService) Seal(pub *ecdsa.PublicKey, msg []byte) ([]byte, error) {
	return ecies.Encrypt(rand.Reader, ecies.ImportECDSAPublic(pub), msg, nil, nil)
}

// Open decrypts a sealed message. Any failure means the message was not
// sealed to this key.
func (cs *CryptoService) Open(priv *ecdsa.PrivateKey, sealed []byte) ([]byte, error) {
	msg, err := ecies.ImportECDSA(priv).Decrypt(sealed, nil, nil)
	if err != nil {
		return nil, xerrors.Errorf("%w: %v", ErrIncorrectKeyPair, err)
	}
	return msg, nil
}
