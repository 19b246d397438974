// Package credseal seals the locally cached sign-in credentials under the
// account password. The sealed blob lets a restarted client re-authenticate
// with password-only, without the password ever being stored: an argon2id
// key derived from the password encrypts the refresh token with AES-GCM.
package credseal

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/kzxian1201/medical-tourism-planning-system/internal/common"
)

const (
	saltSize  = 16
	nonceSize = 12
)

// Credentials is the plaintext payload cached between runs.
type Credentials struct {
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
}

// deriveKey runs the argon2id KDF with the project's fixed parameters.
func deriveKey(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
}

// Seal encrypts creds under password. The returned blob is self-contained:
// it embeds the random KDF salt and the AES-GCM nonce alongside the
// ciphertext, so Open needs only the blob and the password.
func Seal(creds Credentials, password []byte) ([]byte, error) {
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("encoding credentials: %w", err)
	}

	salt, err := common.MakeRandByteArray(saltSize)
	if err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	nonce, err := common.MakeRandByteArray(nonceSize)
	if err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	key := deriveKey(password, salt)
	defer common.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	ciphertext := aesgcm.Seal(nil, nonce, plaintext, nil)

	sealed := make([]byte, 0, saltSize+nonceSize+len(ciphertext))
	sealed = append(sealed, salt...)
	sealed = append(sealed, nonce...)
	sealed = append(sealed, ciphertext...)
	return sealed, nil
}

// Open decrypts a blob produced by Seal. A wrong password (or a tampered
// blob) fails AES-GCM authentication and is reported as
// common.ErrUnauthorized.
func Open(sealed, password []byte) (Credentials, error) {
	var creds Credentials
	if len(sealed) < saltSize+nonceSize {
		return creds, fmt.Errorf("%w: sealed credentials truncated", common.ErrUnauthorized)
	}

	salt := sealed[:saltSize]
	nonce := sealed[saltSize : saltSize+nonceSize]
	ciphertext := sealed[saltSize+nonceSize:]

	key := deriveKey(password, salt)
	defer common.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return creds, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return creds, err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return creds, fmt.Errorf("%w: cannot open sealed credentials", common.ErrUnauthorized)
	}

	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return creds, fmt.Errorf("decoding credentials: %w", err)
	}
	return creds, nil
}
