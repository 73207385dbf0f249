// Copyright (c) 2024 The Bioarchive Project and its Contributors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/fernet/fernet-go"
	"golang.org/x/crypto/pbkdf2"

	"github.com/bioarchive/mss/config"
)

// API keys are long-lived bearer credentials for programmatic clients. The
// token handed to the user is a fernet message carrying the key's record
// identifier; the secret itself is never stored, only a salted PBKDF2 hash
// of the full token.

// key-derivation parameters
const (
	hashIterations = 4096
	hashLength     = 32
	saltLength     = 16
)

// mints and verifies opaque API-key tokens
type KeyMinter struct {
	key *fernet.Key
}

// creates a key minter from the configured signing key
func NewKeyMinter() (*KeyMinter, error) {
	if config.Auth.APIKeyFernetKey == "" {
		return nil, KeyConfigError{Message: "no signing key configured"}
	}
	key, err := fernet.DecodeKey(config.Auth.APIKeyFernetKey)
	if err != nil {
		return nil, KeyConfigError{Message: err.Error()}
	}
	return &KeyMinter{key: key}, nil
}

// produces the opaque token handed to the user for the given key record
func (m *KeyMinter) Mint(keyId string) (string, error) {
	token, err := fernet.EncryptAndSign([]byte(keyId), m.key)
	if err != nil {
		return "", err
	}
	return string(token), nil
}

// Extracts the key-record identifier from a presented token. API keys do
// not expire, so the age check is disabled with a negative TTL.
func (m *KeyMinter) KeyId(token string) (string, error) {
	message := fernet.VerifyAndDecrypt([]byte(token), -1, []*fernet.Key{m.key})
	if message == nil {
		return "", InvalidKeyError{}
	}
	return string(message), nil
}

// generates a fresh hex-encoded salt for a new key record
func NewSalt() (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	return hex.EncodeToString(salt), nil
}

// derives the stored hash for a token with the given salt
func HashToken(token, salt string) string {
	hash := pbkdf2.Key([]byte(token), []byte(salt), hashIterations, hashLength,
		sha256.New)
	return hex.EncodeToString(hash)
}

// reports whether a presented token matches a stored hash
func VerifyToken(token, salt, hash string) bool {
	return hmac.Equal([]byte(HashToken(token, salt)), []byte(hash))
}
