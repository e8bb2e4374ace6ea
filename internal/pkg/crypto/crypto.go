// Package crypto seals the buyer credential before it touches durable
// storage. AES-GCM with a random nonce prepended to the ciphertext.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

type Util struct {
	gcm cipher.AEAD
}

func NewUtil(key string) (Util, error) {
	c, err := aes.NewCipher([]byte(key))
	if err != nil {
		return Util{}, fmt.Errorf("creating new aes cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(c)
	if err != nil {
		return Util{}, fmt.Errorf("creating new gcm: %w", err)
	}

	return Util{
		gcm: gcm,
	}, nil
}

func (u *Util) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, u.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("reading nonce: %w", err)
	}

	return u.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (u *Util) Decrypt(ciphertext []byte) ([]byte, error) {
	nonceSize := u.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	return u.gcm.Open(nil, nonce, ciphertext, nil)
}

// EncryptString seals a string and base64-encodes it for storage in a JSON
// snapshot field.
func (u *Util) EncryptString(plaintext string) (string, error) {
	sealed, err := u.Encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString reverses EncryptString.
func (u *Util) DecryptString(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}
	plain, err := u.Decrypt(sealed)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
