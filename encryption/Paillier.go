package encryption

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/roasbeef/go-go-gadget-paillier"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

var one = big.NewInt(1)

// PaillierAdapter implements HomomorphicEncryptionScheme on top of Paillier.
// The private key stays inside the adapter; equality tests run a blinded
// zero check against it and reveals go out sealed to the requester.
type PaillierAdapter struct {
	keySize    int
	privateKey *NetworkKey
	publicKey  *paillier.PublicKey
	crypto     *CryptoService
}

// NewPaillierAdapter wraps an existing network key. Pass nil and call
// Initialize to generate a fresh one.
func NewPaillierAdapter(keySize int, privateKey *NetworkKey) *PaillierAdapter {
	p := &PaillierAdapter{
		keySize:    keySize,
		privateKey: privateKey,
		crypto:     NewCryptoService(),
	}
	if privateKey != nil {
		p.publicKey = &privateKey.PublicKey
	}
	return p
}

// Initialize generates a new network key.
func (p *PaillierAdapter) Initialize() error {
	var err error
	p.privateKey, err = GenerateNetworkKey(p.keySize)
	if err != nil {
		return xerrors.Errorf("failed to generate Paillier key: %w", err)
	}
	p.publicKey = &p.privateKey.PublicKey
	return nil
}

func (p *PaillierAdapter) Name() string {
	return fmt.Sprintf("Paillier-%d", p.keySize)
}

func (p *PaillierAdapter) KeySize() int {
	return p.keySize
}

func (p *PaillierAdapter) ExportPublicKey() []byte {
	if p.publicKey == nil {
		return nil
	}
	return MarshalNetworkKey(p.publicKey)
}

// PublicKey returns the underlying Paillier public key.
func (p *PaillierAdapter) PublicKey() *paillier.PublicKey {
	return p.publicKey
}

func (p *PaillierAdapter) Encrypt(value uint64, t Type) (*Ciphertext, error) {
	if p.publicKey == nil {
		return nil, xerrors.New("public key not set")
	}
	return EncryptInput(p.publicKey, value, t)
}

// Add sums two ciphertexts of the same type. A sum past the type width
// wraps: the adapter reduces it and hands back a fresh encryption.
func (p *PaillierAdapter) Add(a, b *Ciphertext) (*Ciphertext, error) {
	if err := p.checkPair(a, b); err != nil {
		return nil, err
	}
	sum := paillier.AddCipher(p.publicKey, a.Data, b.Data)

	m, err := p.decrypt(sum)
	if err != nil {
		return nil, err
	}
	if !m.IsUint64() || m.Uint64() > a.Type.Max() {
		return p.Encrypt(wrap(m, a.Type), a.Type)
	}
	return &Ciphertext{Type: a.Type, Data: sum}, nil
}

// Eq returns an encrypted Bool that is 1 when a and b hold the same value.
func (p *PaillierAdapter) Eq(a, b *Ciphertext) (*Ciphertext, error) {
	if err := p.checkPair(a, b); err != nil {
		return nil, err
	}

	// Enc(r * (a - b)) with r a random unit mod N: zero iff a == b, and
	// otherwise uniformly distributed so the key holder learns nothing else.
	nMinusOne := new(big.Int).Sub(p.publicKey.N, one)
	negB := paillier.Mul(p.publicKey, b.Data, nMinusOne.Bytes())
	diff := paillier.AddCipher(p.publicKey, a.Data, negB)

	r, err := randomUnit(p.publicKey.N)
	if err != nil {
		return nil, err
	}
	blinded := paillier.Mul(p.publicKey, diff, r.Bytes())

	m, err := p.decrypt(blinded)
	if err != nil {
		return nil, err
	}
	var bit uint64
	if m.Sign() == 0 {
		bit = 1
	}
	return p.Encrypt(bit, Bool)
}

// Cast widens a ciphertext to t. Narrowing casts are rejected.
func (p *PaillierAdapter) Cast(a *Ciphertext, t Type) (*Ciphertext, error) {
	if !t.Valid() {
		return nil, xerrors.Errorf("%w: unknown target type %d", ErrInvalidCast, uint8(t))
	}
	if t.Bits() < a.Type.Bits() {
		return nil, xerrors.Errorf("%w: %s to %s narrows", ErrInvalidCast, a.Type, t)
	}
	data := make([]byte, len(a.Data))
	copy(data, a.Data)
	return &Ciphertext{Type: t, Data: data}, nil
}

// Validate checks that c is a well-formed ciphertext under the network key.
func (p *PaillierAdapter) Validate(c *Ciphertext) error {
	if c == nil || !c.Type.Valid() {
		return xerrors.Errorf("%w: missing or untyped", ErrInvalidCiphertext)
	}
	v := new(big.Int).SetBytes(c.Data)
	if v.Sign() <= 0 || v.Cmp(p.publicKey.NSquared) >= 0 {
		return xerrors.Errorf("%w: value outside (0, N^2)", ErrInvalidCiphertext)
	}
	if new(big.Int).GCD(nil, nil, v, p.publicKey.N).Cmp(one) != 0 {
		return xerrors.Errorf("%w: not a unit mod N", ErrInvalidCiphertext)
	}
	return nil
}

// Reencrypt decrypts c inside the adapter and seals the result to
// publicKey, an uncompressed or compressed secp256k1 key. The sealed
// payload is the type tag followed by the big-endian value. A plaintext
// that does not fit its type tag is never revealed truncated; Reencrypt
// fails with ErrValueOutOfRange instead.
func (p *PaillierAdapter) Reencrypt(c *Ciphertext, publicKey []byte) ([]byte, error) {
	pub, err := p.crypto.ParsePublicKey(publicKey)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(c); err != nil {
		return nil, err
	}
	m, err := p.decrypt(c.Data)
	if err != nil {
		return nil, err
	}

	if !m.IsUint64() || m.Uint64() > c.Type.Max() {
		return nil, xerrors.Errorf("%w: plaintext exceeds %s", ErrValueOutOfRange, c.Type)
	}

	payload := make([]byte, 9)
	payload[0] = byte(c.Type)
	binary.BigEndian.PutUint64(payload[1:], m.Uint64())

	sealed, err := p.crypto.Seal(pub, payload)
	if err != nil {
		return nil, xerrors.Errorf("failed to seal value: %w", err)
	}
	log.Lvlf4("reencrypted %s for %x", c.Type, publicKey[:min(8, len(publicKey))])
	return sealed, nil
}

func (p *PaillierAdapter) decrypt(data []byte) (*big.Int, error) {
	if p.privateKey == nil {
		return nil, xerrors.New("private key not set")
	}
	m, err := p.privateKey.Decrypt(data)
	if err != nil {
		return nil, xerrors.Errorf("decryption failed: %w", err)
	}
	return m, nil
}

func (p *PaillierAdapter) checkPair(a, b *Ciphertext) error {
	if p.publicKey == nil {
		return xerrors.New("public key not set")
	}
	if a == nil || b == nil {
		return xerrors.Errorf("%w: nil operand", ErrInvalidCiphertext)
	}
	if a.Type != b.Type {
		return xerrors.Errorf("%w: %s and %s", ErrTypeMismatch, a.Type, b.Type)
	}
	return nil
}

// EncryptInput encrypts value under the network key. Clients use it to
// build ballots; it needs only the public key.
func EncryptInput(pub *paillier.PublicKey, value uint64, t Type) (*Ciphertext, error) {
	if !t.Valid() {
		return nil, xerrors.Errorf("unknown type %d", uint8(t))
	}
	if value > t.Max() {
		return nil, xerrors.Errorf("%w: %d does not fit %s", ErrValueOutOfRange, value, t)
	}
	data, err := paillier.Encrypt(pub, new(big.Int).SetUint64(value).Bytes())
	if err != nil {
		return nil, xerrors.Errorf("failed to encrypt: %w", err)
	}
	return &Ciphertext{Type: t, Data: data}, nil
}

func wrap(m *big.Int, t Type) uint64 {
	mask := new(big.Int).Sub(new(big.Int).Lsh(one, uint(t.Bits())), one)
	return new(big.Int).And(m, mask).Uint64()
}

func randomUnit(n *big.Int) (*big.Int, error) {
	for {
		r, err := rand.Int(rand.Reader, n)
		if err != nil {
			return nil, xerrors.Errorf("failed to sample blinding factor: %w", err)
		}
		if r.Sign() > 0 && new(big.Int).GCD(nil, nil, r, n).Cmp(one) == 0 {
			return r, nil
		}
	}
}
