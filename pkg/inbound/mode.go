package inbound

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mw-chain/polkadot-sdk/pkg/db"
)

type OperatingMode uint8

const (
	ModeNormal OperatingMode = iota
	ModeHalted
)

var modeKey = []byte("INBOUND:MODE")

func (m OperatingMode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeHalted:
		return "halted"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

func (m OperatingMode) Valid() bool {
	return m == ModeNormal || m == ModeHalted
}

// ParseOperatingMode parses "normal" or "halted", case insensitive.
func ParseOperatingMode(s string) (OperatingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal":
		return ModeNormal, nil
	case "halted":
		return ModeHalted, nil
	default:
		return ModeNormal, fmt.Errorf("invalid operating mode %q", s)
	}
}

func (m OperatingMode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid operating mode %d", uint8(m))
	}
	return []byte(m.String()), nil
}

func (m *OperatingMode) UnmarshalText(text []byte) error {
	parsed, err := ParseOperatingMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// readMode returns ModeNormal when no mode has been stored.
func readMode(kv db.KVReader) (OperatingMode, error) {
	b, err := kv.Get(modeKey)
	if errors.Is(err, db.ErrKeyNotFound) {
		return ModeNormal, nil
	}
	if err != nil {
		return ModeNormal, fmt.Errorf("failed to read operating mode: %w", err)
	}
	if len(b) != 1 || !OperatingMode(b[0]).Valid() {
		return ModeNormal, fmt.Errorf("corrupt operating mode entry: %x", b)
	}
	return OperatingMode(b[0]), nil
}

func writeMode(kv db.KVWriter, m OperatingMode) error {
	return kv.Set(modeKey, []byte{byte(m)})
}
