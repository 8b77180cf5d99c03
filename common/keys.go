package common

import (
	"encoding/base64"
	"fmt"
)

// KeySize is the length of curve25519 keys used by crypto_box.
const KeySize = 32

// SecretKey is a crypto_box private key. It is parsed from and encoded to
// URL-safe base64 with padding.
type SecretKey [KeySize]byte

// PublicKey is a crypto_box public key.
type PublicKey [KeySize]byte

func ParseSecretKey(s string) (SecretKey, error) {
	b, err := decodeKey(s)
	return SecretKey(b), err
}

func ParsePublicKey(s string) (PublicKey, error) {
	b, err := decodeKey(s)
	return PublicKey(b), err
}

func decodeKey(s string) ([KeySize]byte, error) {
	var key [KeySize]byte
	decoded, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return key, fmt.Errorf("invalid base64: %s", err)
	}
	if len(decoded) != KeySize {
		return key, fmt.Errorf("expected %d bytes, got %d", KeySize, len(decoded))
	}
	copy(key[:], decoded)
	return key, nil
}

func (k SecretKey) Encode() string {
	return base64.URLEncoding.EncodeToString(k[:])
}

// String never prints the key material.
func (k SecretKey) String() string {
	return "[redacted]"
}

func (k SecretKey) IsZero() bool {
	return k == SecretKey{}
}

func (k *SecretKey) UnmarshalText(text []byte) error {
	parsed, err := ParseSecretKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func (k PublicKey) Encode() string {
	return base64.URLEncoding.EncodeToString(k[:])
}

func (k PublicKey) String() string {
	return k.Encode()
}

func (k PublicKey) IsZero() bool {
	return k == PublicKey{}
}

func (k PublicKey) MarshalText() ([]byte, error) {
	return []byte(k.Encode()), nil
}

func (k *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePublicKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
