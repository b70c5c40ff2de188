package common

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"golang.org/x/crypto/openpgp/armor" //nolint // Package is deprecated but the key file format depends on it.
)

const (
	AttesterKeyArmoredBlock = "INBOUND ATTESTER PRIVATE KEY"
)

// storedKey is the RLP body of an armored key file.
type storedKey struct {
	Data                   []byte
	UnsafeDeterministicKey bool
}

// LoadAttesterKey loads a serialized attester key from disk.
func LoadAttesterKey(filename string, unsafeDevMode bool) (*ecdsa.PrivateKey, error) {
	return LoadArmoredKey(filename, AttesterKeyArmoredBlock, unsafeDevMode)
}

// LoadArmoredKey loads a serialized key from disk.
func LoadArmoredKey(filename string, blockType string, unsafeDevMode bool) (*ecdsa.PrivateKey, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	p, err := armor.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read armored file: %w", err)
	}

	if p.Type != blockType {
		return nil, fmt.Errorf("invalid block type: %s", p.Type)
	}

	b, err := io.ReadAll(p.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var m storedKey
	if err := rlp.DecodeBytes(b, &m); err != nil {
		return nil, fmt.Errorf("failed to deserialize key: %w", err)
	}

	if !unsafeDevMode && m.UnsafeDeterministicKey {
		return nil, errors.New("refusing to use deterministic key in production")
	}

	key, err := crypto.ToECDSA(m.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize raw key data: %w", err)
	}

	return key, nil
}

// WriteArmoredKey serializes a key and writes it to disk. It never overwrites an existing file.
func WriteArmoredKey(key *ecdsa.PrivateKey, description string, filename string, blockType string, unsafe bool) error {
	if _, err := os.Stat(filename); !os.IsNotExist(err) {
		return errors.New("refusing to override existing key")
	}

	b, err := rlp.EncodeToBytes(&storedKey{
		Data:                   crypto.FromECDSA(key),
		UnsafeDeterministicKey: unsafe,
	})
	if err != nil {
		return fmt.Errorf("failed to serialize key: %w", err)
	}

	f, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	headers := map[string]string{
		"PublicKey": crypto.PubkeyToAddress(key.PublicKey).String(),
	}
	if description != "" {
		headers["Description"] = description
	}
	a, err := armor.Encode(f, blockType, headers)
	if err != nil {
		return fmt.Errorf("failed to encode armor: %w", err)
	}
	if _, err := a.Write(b); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	if err := a.Close(); err != nil {
		return err
	}
	return f.Sync()
}
