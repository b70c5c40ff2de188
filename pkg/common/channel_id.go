package common

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/blake2b"
)

var paraPrefix = []byte("para")

// ChannelID identifies a channel between a local delivery queue and a foreign gateway contract.
type ChannelID [32]byte

// StringToChannelID parses a hex-encoded channel id. A leading 0x is optional.
func StringToChannelID(s string) (ChannelID, error) {
	var c ChannelID
	b, err := decodeFixedHex(s, len(c))
	if err != nil {
		return c, fmt.Errorf("invalid channel id: %w", err)
	}
	copy(c[:], b)
	return c, nil
}

// ChannelIDFromParaID derives the channel id of a parachain: blake2b-256("para" || le32(paraID)).
func ChannelIDFromParaID(paraID uint32) ChannelID {
	buf := make([]byte, len(paraPrefix)+4)
	copy(buf, paraPrefix)
	binary.LittleEndian.PutUint32(buf[len(paraPrefix):], paraID)
	return ChannelID(blake2b.Sum256(buf))
}

// ChannelIDFromHash converts an indexed event topic into a channel id.
func ChannelIDFromHash(h ethCommon.Hash) ChannelID {
	return ChannelID(h)
}

func (c ChannelID) Hash() ethCommon.Hash {
	return ethCommon.Hash(c)
}

func (c ChannelID) Bytes() []byte {
	return c[:]
}

func (c ChannelID) String() string {
	return hex.EncodeToString(c[:])
}

func (c ChannelID) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *ChannelID) UnmarshalText(text []byte) error {
	parsed, err := StringToChannelID(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
