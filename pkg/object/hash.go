package object

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// RawHashSize is the size of a raw (binary) object digest.
const RawHashSize = sha1.Size

// HashBytes computes the raw SHA-1 hash of data and returns it as a
// lowercase hex-encoded Hash.
func HashBytes(data []byte) Hash {
	sum := sha1.Sum(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// HashObject computes the SHA-1 of the envelope "type len\0content".
// Identical (type, content) pairs always yield the same digest.
func HashObject(objType ObjectType, data []byte) Hash {
	header := fmt.Sprintf("%s %d\x00", objType, len(data))
	h := sha1.New()
	h.Write([]byte(header))
	h.Write(data)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

// ValidateHash checks that h is a full-length lowercase hex digest.
func ValidateHash(h Hash) error {
	if len(h) != RawHashSize*2 {
		return fmt.Errorf("hash length %d, expected %d", len(h), RawHashSize*2)
	}
	if _, err := hex.DecodeString(string(h)); err != nil {
		return fmt.Errorf("hash contains non-hex characters: %w", err)
	}
	return nil
}

func hashHexToBytes(h Hash) ([]byte, error) {
	if err := ValidateHash(h); err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(string(h))
	if err != nil {
		return nil, fmt.Errorf("invalid hash %q: %w", h, err)
	}
	return raw, nil
}

func hashFromBytes(raw []byte) (Hash, error) {
	if len(raw) != RawHashSize {
		return "", fmt.Errorf("raw hash length %d, expected %d", len(raw), RawHashSize)
	}
	return Hash(hex.EncodeToString(raw)), nil
}
