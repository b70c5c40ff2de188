package common

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// AccountIDLength is the size of a local account identifier in bytes.
const AccountIDLength = 32

// siblingPrefix is prepended to a para id to derive the sovereign account of a sibling chain.
var siblingPrefix = []byte("sibl")

// AccountID identifies a local account. Balances, relayers and fee accounts are all keyed by it.
type AccountID [AccountIDLength]byte

// StringToAccountID parses a hex-encoded account id. A leading 0x is optional.
func StringToAccountID(s string) (AccountID, error) {
	var a AccountID
	b, err := decodeFixedHex(s, AccountIDLength)
	if err != nil {
		return a, fmt.Errorf("invalid account id: %w", err)
	}
	copy(a[:], b)
	return a, nil
}

// SiblingSovereignAccount returns the account owned by the sibling chain with the given para id.
// The layout is "sibl" || le32(paraID), right-padded with zeros.
func SiblingSovereignAccount(paraID uint32) AccountID {
	var a AccountID
	copy(a[:], siblingPrefix)
	binary.LittleEndian.PutUint32(a[len(siblingPrefix):], paraID)
	return a
}

func (a AccountID) Bytes() []byte {
	return a[:]
}

func (a AccountID) String() string {
	return hex.EncodeToString(a[:])
}

func (a AccountID) IsZero() bool {
	return a == AccountID{}
}

func (a AccountID) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *AccountID) UnmarshalText(text []byte) error {
	parsed, err := StringToAccountID(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func decodeFixedHex(s string, size int) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 2*size {
		return nil, fmt.Errorf("expected %d hex characters, got %d", 2*size, len(s))
	}
	return hex.DecodeString(s)
}
