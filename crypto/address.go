package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressLength is the byte length of a participant address.
const AddressLength = 20

// Address identifies a sale participant. Buyer and seller are fixed at sale
// creation and every authorization check compares the caller against them.
type Address [AddressLength]byte

// ParseAddress decodes a 0x-prefixed (or bare) hex address.
func ParseAddress(s string) (Address, error) {
	var addr Address
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(trimmed, "0x")
	if len(trimmed) != AddressLength*2 {
		return addr, fmt.Errorf("crypto: address must be %d hex characters, got %d", AddressLength*2, len(trimmed))
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("crypto: invalid address hex: %w", err)
	}
	copy(addr[:], raw)
	return addr, nil
}

// BytesToAddress copies b into an Address, left-truncating values that are too
// long and left-padding values that are too short.
func BytesToAddress(b []byte) Address {
	var addr Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(addr[AddressLength-len(b):], b)
	return addr
}

// Bytes returns the address as a byte slice.
func (a Address) Bytes() []byte { return a[:] }

// IsZero reports whether the address is the all-zero value.
func (a Address) IsZero() bool { return a == Address{} }

// String renders the address as 0x-prefixed lowercase hex.
func (a Address) String() string { return "0x" + hex.EncodeToString(a[:]) }
