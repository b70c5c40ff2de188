package db

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// GetUint64 reads a big-endian uint64. A missing key reads as zero.
func GetUint64(kv KVReader, key []byte) (uint64, error) {
	b, err := kv.Get(key)
	if errors.Is(err, ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(b) != 8 {
		return 0, fmt.Errorf("value for key %s has length %d, expected 8", string(key), len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// SetUint64 writes v as a big-endian uint64.
func SetUint64(kv KVWriter, key []byte, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return kv.Set(key, b[:])
}
