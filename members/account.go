package members

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/mr-tron/base58/base58"
	"golang.org/x/crypto/blake2b"
)

// SS58 layout constants
const (
	PublicKeyLength  = 32
	checksumLength   = 2
	GenericPrefix    = uint16(42)
	maxSimplePrefix  = 63
	maxAddressPrefix = 16383
)

var ss58Preimage = []byte("SS58PRE")

// Sentinel errors for account parsing
var (
	ErrInvalidAccountID = errors.New("invalid account id")
	ErrBadChecksum      = errors.New("invalid ss58 checksum")
	ErrUnsupportedSS58  = errors.New("unsupported ss58 address length")
	ErrInvalidPrefix    = errors.New("invalid ss58 prefix")
)

// PublicKey is the raw 32-byte account key behind an SS58 address.
type PublicKey [PublicKeyLength]byte

// String returns the 0x-prefixed hex form of the key.
func (k PublicKey) String() string {
	return "0x" + hex.EncodeToString(k[:])
}

// AccountID identifies a chain account. Two AccountIDs are the same account when
// their public keys match, regardless of the network prefix used to render them.
type AccountID struct {
	address string
	key     PublicKey
}

// ParseAccountID decodes an SS58 address and verifies its checksum.
func ParseAccountID(address string) (AccountID, error) {
	raw, err := base58.Decode(address)
	if err != nil {
		return AccountID{}, fmt.Errorf("%w: %q: %w", ErrInvalidAccountID, address, err)
	}

	// the first byte says how long the prefix is: 0x00-0x3f one byte, 0x40-0x7f two
	var prefixLen int
	switch len(raw) {
	case 1 + PublicKeyLength + checksumLength:
		prefixLen = 1
		if raw[0] > maxSimplePrefix {
			return AccountID{}, fmt.Errorf("%w: %q: %w: first byte %#x", ErrInvalidAccountID, address, ErrInvalidPrefix, raw[0])
		}
	case 2 + PublicKeyLength + checksumLength:
		prefixLen = 2
		if raw[0]&0xc0 != 0x40 {
			return AccountID{}, fmt.Errorf("%w: %q: %w: first byte %#x", ErrInvalidAccountID, address, ErrInvalidPrefix, raw[0])
		}
	default:
		return AccountID{}, fmt.Errorf("%w: %q: %w", ErrInvalidAccountID, address, ErrUnsupportedSS58)
	}

	payload := raw[:len(raw)-checksumLength]
	if !bytes.Equal(raw[len(raw)-checksumLength:], ss58Checksum(payload)) {
		return AccountID{}, fmt.Errorf("%w: %q: %w", ErrInvalidAccountID, address, ErrBadChecksum)
	}

	var key PublicKey
	copy(key[:], payload[prefixLen:])

	return AccountID{address: address, key: key}, nil
}

// EncodeAccountID renders key as an SS58 address for the given network prefix.
// Prefixes above 16383 are not representable and fall back to the generic prefix.
func EncodeAccountID(prefix uint16, key PublicKey) AccountID {
	if prefix > maxAddressPrefix {
		prefix = GenericPrefix
	}

	var payload []byte
	if prefix <= maxSimplePrefix {
		payload = append(payload, byte(prefix))
	} else {
		payload = append(payload,
			byte((prefix&0x00fc)>>2)|0x40,
			byte(prefix>>8)|byte((prefix&0x0003)<<6),
		)
	}
	payload = append(payload, key[:]...)
	payload = append(payload, ss58Checksum(payload)...)

	return AccountID{address: base58.Encode(payload), key: key}
}

// Key returns the public key; use it when an account must key a map.
func (a AccountID) Key() PublicKey {
	return a.key
}

// Equal reports whether both ids refer to the same account.
func (a AccountID) Equal(other AccountID) bool {
	return a.key == other.key
}

func (a AccountID) String() string {
	return a.address
}

// MarshalText implements encoding.TextMarshaler.
func (a AccountID) MarshalText() ([]byte, error) {
	return []byte(a.address), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *AccountID) UnmarshalText(text []byte) error {
	id, err := ParseAccountID(string(text))
	if err != nil {
		return err
	}
	*a = id
	return nil
}

func ss58Checksum(payload []byte) []byte {
	h, _ := blake2b.New512(nil)
	h.Write(ss58Preimage)
	h.Write(payload)
	return h.Sum(nil)[:checksumLength]
}
