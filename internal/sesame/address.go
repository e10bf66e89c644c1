package sesame

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AddressType discriminates public and random link-layer addresses.
type AddressType uint8

const (
	// AddressPublic is an IEEE-assigned public device address.
	AddressPublic AddressType = iota
	// AddressRandom is a random static address, as used by SESAME devices.
	AddressRandom
)

// String returns the address type name.
func (t AddressType) String() string {
	switch t {
	case AddressPublic:
		return "public"
	case AddressRandom:
		return "random"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// PeerAddress identifies a remote device. It is comparable and usable as a
// map key; equality is the only meaningful operation.
type PeerAddress struct {
	Addr [6]byte
	Type AddressType
}

// ParseAddress parses "aa:bb:cc:dd:ee:ff" (or dash separated) into a random
// type PeerAddress. Bytes are in display order, most significant first.
func ParseAddress(s string) (PeerAddress, error) {
	var a PeerAddress
	s = strings.TrimSpace(s)
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == '-' })
	if len(parts) != len(a.Addr) {
		return PeerAddress{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	for i, p := range parts {
		if len(p) != 2 {
			return PeerAddress{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		b, err := hex.DecodeString(p)
		if err != nil {
			return PeerAddress{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		a.Addr[i] = b[0]
	}
	a.Type = AddressRandom
	return a, nil
}

// MustParseAddress is like ParseAddress but panics on error. Intended for
// tests and static tables.
func MustParseAddress(s string) PeerAddress {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromUUID derives the random static address a SESAME device
// advertises with: the last six bytes of its UUID with the two most
// significant bits set.
func AddressFromUUID(id string) (PeerAddress, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return PeerAddress{}, fmt.Errorf("%w: uuid %q: %v", ErrInvalidAddress, id, err)
	}
	var a PeerAddress
	copy(a.Addr[:], u[len(u)-len(a.Addr):])
	a.Addr[0] |= 0xC0
	a.Type = AddressRandom
	return a, nil
}

// IsZero reports whether the address is unset.
func (a PeerAddress) IsZero() bool {
	return a.Addr == [6]byte{}
}

// String renders the address as lower-case colon separated hex.
func (a PeerAddress) String() string {
	var b strings.Builder
	b.Grow(17)
	for i, v := range a.Addr {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(hex.EncodeToString([]byte{v}))
	}
	return b.String()
}

// MarshalText implements encoding.TextMarshaler.
func (a PeerAddress) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *PeerAddress) UnmarshalText(text []byte) error {
	p, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = p
	return nil
}
