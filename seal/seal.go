// Package seal encrypts and decrypts configuration payloads with NaCl
// crypto_box. A payload is the URL-safe base64 encoding of the 24-byte nonce
// followed by the box.
package seal

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"unicode/utf8"

	"github.com/glossd/fetch"
	"github.com/glossd/unsealer/common"
	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/box"
)

const NonceSize = 24

var (
	ErrInvalidBase64 = errors.New("invalid base64")
	ErrTooShort      = errors.New("too short")
	ErrDecryption    = errors.New("decryption failed")
	ErrNotUTF8       = errors.New("decrypted payload is not valid UTF-8")
)

func GenerateKeyPair() (common.PublicKey, common.SecretKey, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return common.PublicKey{}, common.SecretKey{}, errors.Wrap(err, "generating key pair")
	}
	return common.PublicKey(*pub), common.SecretKey(*priv), nil
}

// Seal encrypts plaintext from the manager to the server.
func Seal(plaintext []byte, managerPrivate common.SecretKey, serverPublic common.PublicKey) (string, error) {
	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", errors.Wrap(err, "generating nonce")
	}
	peer := [common.KeySize]byte(serverPublic)
	priv := [common.KeySize]byte(managerPrivate)
	out := make([]byte, NonceSize, NonceSize+len(plaintext)+box.Overhead)
	copy(out, nonce[:])
	out = box.Seal(out, plaintext, &nonce, &peer, &priv)
	return base64.URLEncoding.EncodeToString(out), nil
}

func SealJSON(v any, managerPrivate common.SecretKey, serverPublic common.PublicKey) (string, error) {
	plaintext, err := fetch.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode json payload")
	}
	return Seal([]byte(plaintext), managerPrivate, serverPublic)
}

// Open decrypts a payload sealed by the manager for this server.
func Open(payload string, serverPrivate common.SecretKey, managerPublic common.PublicKey) (string, error) {
	decoded, err := base64.URLEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidBase64, err)
	}
	if len(decoded) < NonceSize+box.Overhead {
		return "", fmt.Errorf("%w: got %d bytes, need at least %d", ErrTooShort, len(decoded), NonceSize+box.Overhead)
	}

	var nonce [NonceSize]byte
	copy(nonce[:], decoded[:NonceSize])
	peer := [common.KeySize]byte(managerPublic)
	priv := [common.KeySize]byte(serverPrivate)
	plaintext, ok := box.Open(nil, decoded[NonceSize:], &nonce, &peer, &priv)
	if !ok {
		return "", ErrDecryption
	}
	if !utf8.Valid(plaintext) {
		return "", ErrNotUTF8
	}
	return string(plaintext), nil
}
