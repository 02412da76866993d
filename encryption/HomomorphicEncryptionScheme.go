package encryption

import (
	"encoding/hex"
	"fmt"
	"math"

	"github.com/zeebo/blake3"
	"golang.org/x/xerrors"
)

var (
	ErrIncorrectKeyPair  = xerrors.New("incorrect key pair for the given ciphertext")
	ErrInvalidCiphertext = xerrors.New("invalid ciphertext")
	ErrInvalidPublicKey  = xerrors.New("invalid public key")
	ErrTypeMismatch      = xerrors.New("ciphertext type mismatch")
	ErrInvalidCast       = xerrors.New("invalid cast")
	ErrValueOutOfRange   = xerrors.New("value out of range for type")
)

// Type is the plaintext width carried by a ciphertext.
type Type uint8

const (
	Bool Type = iota + 1
	Uint8
	Uint16
	Uint32
	Uint64
)

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	return t >= Bool && t <= Uint64
}

// Bits returns the plaintext width in bits.
func (t Type) Bits() int {
	switch t {
	case Bool:
		return 1
	case Uint8:
		return 8
	case Uint16:
		return 16
	case Uint32:
		return 32
	case Uint64:
		return 64
	default:
		return 0
	}
}

// Max returns the largest plaintext representable by t.
func (t Type) Max() uint64 {
	if t == Uint64 {
		return math.MaxUint64
	}
	return 1<<uint(t.Bits()) - 1
}

func (t Type) String() string {
	switch t {
	case Bool:
		return "ebool"
	case Uint8, Uint16, Uint32, Uint64:
		return fmt.Sprintf("euint%d", t.Bits())
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// TypeForWidth maps a bit width to its unsigned integer type.
func TypeForWidth(bits int) (Type, error) {
	switch bits {
	case 8:
		return Uint8, nil
	case 16:
		return Uint16, nil
	case 32:
		return Uint32, nil
	case 64:
		return Uint64, nil
	default:
		return 0, xerrors.Errorf("unsupported integer width %d", bits)
	}
}

// Ciphertext is an opaque encrypted value tagged with its plaintext type.
type Ciphertext struct {
	Type Type
	Data []byte
}

// Bytes encodes the ciphertext as a type byte followed by the scheme payload.
func (c *Ciphertext) Bytes() []byte {
	out := make([]byte, 1+len(c.Data))
	out[0] = byte(c.Type)
	copy(out[1:], c.Data)
	return out
}

// Handle is a stable reference to the ciphertext, safe to expose publicly.
func (c *Ciphertext) Handle() string {
	sum := blake3.Sum256(c.Bytes())
	return hex.EncodeToString(sum[:])
}

// ParseCiphertext decodes the wire form produced by Bytes. It checks the
// framing only; scheme-level checks live in Validate.
func ParseCiphertext(b []byte) (*Ciphertext, error) {
	if len(b) < 2 {
		return nil, xerrors.Errorf("%w: %d bytes", ErrInvalidCiphertext, len(b))
	}
	t := Type(b[0])
	if !t.Valid() {
		return nil, xerrors.Errorf("%w: unknown type tag %d", ErrInvalidCiphertext, b[0])
	}
	data := make([]byte, len(b)-1)
	copy(data, b[1:])
	return &Ciphertext{Type: t, Data: data}, nil
}

// HomomorphicEncryptionScheme is the encrypted-integer provider used by the
// poll service. Values never leave the provider in the clear: the only way
// to observe a plaintext is Reencrypt, which seals it to a caller's key.
type HomomorphicEncryptionScheme interface {
	Name() string
	KeySize() int

	// ExportPublicKey returns the network key clients encrypt inputs under.
	ExportPublicKey() []byte

	Encrypt(value uint64, t Type) (*Ciphertext, error)
	Add(a, b *Ciphertext) (*Ciphertext, error)
	Eq(a, b *Ciphertext) (*Ciphertext, error)
	Cast(a *Ciphertext, t Type) (*Ciphertext, error)
	Validate(c *Ciphertext) error

	// Reencrypt seals the plaintext of c so only the holder of the private
	// key matching publicKey can read it.
	Reencrypt(c *Ciphertext, publicKey []byte) ([]byte, error)
}
