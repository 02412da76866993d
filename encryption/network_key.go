package encryption

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	"os"

	"github.com/roasbeef/go-go-gadget-paillier"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

// NetworkKey is the network's Paillier key pair. The paillier package keeps
// its decryption state unexported, so the key is kept as its two primes and
// the CRT values are derived from them. The public half is the package's
// own PublicKey and is what Encrypt, AddCipher and Mul operate on.
type NetworkKey struct {
	paillier.PublicKey

	p, q                 *big.Int
	pp, qq               *big.Int
	pminusone, qminusone *big.Int
	pinvq                *big.Int
	hp, hq               *big.Int
}

// GenerateNetworkKey creates a key with a modulus of the given size.
func GenerateNetworkKey(bits int) (*NetworkKey, error) {
	if bits < 64 || bits%2 != 0 {
		return nil, xerrors.Errorf("unsupported key size %d", bits)
	}
	for {
		p, err := rand.Prime(rand.Reader, bits/2)
		if err != nil {
			return nil, xerrors.Errorf("failed to generate prime: %w", err)
		}
		q, err := rand.Prime(rand.Reader, bits/2)
		if err != nil {
			return nil, xerrors.Errorf("failed to generate prime: %w", err)
		}
		if p.Cmp(q) == 0 {
			continue
		}
		return NewNetworkKey(p, q)
	}
}

// NewNetworkKey rebuilds the key from its primes.
func NewNetworkKey(p, q *big.Int) (*NetworkKey, error) {
	if p == nil || q == nil || p.Cmp(q) == 0 {
		return nil, xerrors.New("primes must be distinct")
	}
	if !p.ProbablyPrime(20) || !q.ProbablyPrime(20) {
		return nil, xerrors.New("key factors are not prime")
	}
	n := new(big.Int).Mul(p, q)
	k := &NetworkKey{
		PublicKey: *publicKeyFromModulus(n),
		p:         new(big.Int).Set(p),
		q:         new(big.Int).Set(q),
		pp:        new(big.Int).Mul(p, p),
		qq:        new(big.Int).Mul(q, q),
		pminusone: new(big.Int).Sub(p, one),
		qminusone: new(big.Int).Sub(q, one),
		pinvq:     new(big.Int).ModInverse(p, q),
	}
	k.hp = crtHelper(k.p, k.pp, n)
	k.hq = crtHelper(k.q, k.qq, n)
	if k.pinvq == nil || k.hp == nil || k.hq == nil {
		return nil, xerrors.New("degenerate key factors")
	}
	return k, nil
}

// Decrypt returns the plaintext of c modulo N.
func (k *NetworkKey) Decrypt(c []byte) (*big.Int, error) {
	v := new(big.Int).SetBytes(c)
	if v.Cmp(k.NSquared) >= 0 {
		return nil, paillier.ErrMessageTooLong
	}
	mp := k.half(v, k.p, k.pp, k.pminusone, k.hp)
	mq := k.half(v, k.q, k.qq, k.qminusone, k.hq)

	u := new(big.Int).Sub(mq, mp)
	u.Mul(u, k.pinvq).Mod(u, k.q)
	m := u.Mul(u, k.p).Add(u, mp)
	return m.Mod(m, k.N), nil
}

func (k *NetworkKey) half(c, prime, square, pminusone, h *big.Int) *big.Int {
	x := new(big.Int).Exp(c, pminusone, square)
	x.Sub(x, one).Div(x, prime)
	return x.Mul(x, h).Mod(x, prime)
}

// crtHelper is L(g^(p-1) mod p^2)^-1 mod p with g = N+1.
func crtHelper(prime, square, n *big.Int) *big.Int {
	g := new(big.Int).Sub(one, n)
	g.Mod(g, square)
	g.Sub(g, one).Div(g, prime)
	return g.ModInverse(g, prime)
}

// File returns the on-disk form of the key.
func (k *NetworkKey) File() NetworkKeyFile {
	return NetworkKeyFile{
		KeyBits: k.N.BitLen(),
		P:       k.p.Text(16),
		Q:       k.q.Text(16),
	}
}

// NetworkKeyFile is the on-disk form of the network private key.
type NetworkKeyFile struct {
	KeyBits int    `json:"key_bits"`
	P       string `json:"p"`
	Q       string `json:"q"`
}

// NetworkKey restores the key stored in kf.
func (kf *NetworkKeyFile) NetworkKey() (*NetworkKey, error) {
	p, ok := new(big.Int).SetString(kf.P, 16)
	if !ok {
		return nil, xerrors.New("bad factor p")
	}
	q, ok := new(big.Int).SetString(kf.Q, 16)
	if !ok {
		return nil, xerrors.New("bad factor q")
	}
	key, err := NewNetworkKey(p, q)
	if err != nil {
		return nil, err
	}
	if kf.KeyBits != 0 && key.N.BitLen() != kf.KeyBits {
		return nil, xerrors.Errorf("modulus is %d bits, file says %d", key.N.BitLen(), kf.KeyBits)
	}
	return key, nil
}

// LoadOrGenerateNetworkKey reads the network key at path, or generates a
// new one of the given size and writes it there. An empty path generates
// an ephemeral key.
func LoadOrGenerateNetworkKey(path string, bits int) (*NetworkKey, error) {
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			var kf NetworkKeyFile
			if err := json.Unmarshal(data, &kf); err != nil {
				return nil, xerrors.Errorf("failed to parse network key: %w", err)
			}
			key, err := kf.NetworkKey()
			if err != nil {
				return nil, xerrors.Errorf("failed to restore network key: %w", err)
			}
			log.Lvlf2("loaded %d-bit network key from %s", kf.KeyBits, path)
			return key, nil
		} else if !os.IsNotExist(err) {
			return nil, xerrors.Errorf("failed to read network key: %w", err)
		}
	}

	key, err := GenerateNetworkKey(bits)
	if err != nil {
		return nil, xerrors.Errorf("failed to generate network key: %w", err)
	}
	if path == "" {
		return key, nil
	}

	data, err := json.MarshalIndent(key.File(), "", "  ")
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal network key: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, xerrors.Errorf("failed to save network key: %w", err)
	}
	log.Lvlf2("generated %d-bit network key at %s", bits, path)
	return key, nil
}

// MarshalNetworkKey encodes the public key as its modulus.
func MarshalNetworkKey(pub *paillier.PublicKey) []byte {
	return pub.N.Bytes()
}

// ParseNetworkKey is the inverse of MarshalNetworkKey.
func ParseNetworkKey(b []byte) (*paillier.PublicKey, error) {
	n := new(big.Int).SetBytes(b)
	if n.Sign() <= 0 || n.Bit(0) == 0 {
		return nil, xerrors.Errorf("%w: bad network modulus", ErrInvalidPublicKey)
	}
	return publicKeyFromModulus(n), nil
}

func publicKeyFromModulus(n *big.Int) *paillier.PublicKey {
	return &paillier.PublicKey{
		N:        n,
		G:        new(big.Int).Add(n, one),
		NSquared: new(big.Int).Mul(n, n),
	}
}
