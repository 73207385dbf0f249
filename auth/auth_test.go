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
	"log"
	"os"
	"testing"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioarchive/mss/config"
	"github.com/bioarchive/mss/msstest"
)

// Fernet signing key for API-key tokens
var TestKey fernet.Key

// runs setup, runs all tests, and does breakdown
func TestMain(m *testing.M) {
	setup()
	status := m.Run()
	os.Exit(status)
}

func setup() {
	msstest.EnableDebugLogging()

	err := TestKey.Generate()
	if err != nil {
		log.Panicf("Couldn't generate encryption key: %s", err.Error())
	}

	err = config.Init([]byte(`
auth:
  jwtSecret: test-session-secret
  apiKeyFernetKey: ` + TestKey.Encode() + `
`))
	if err != nil {
		log.Panicf("Couldn't initialize configuration: %s", err.Error())
	}
}

// signs a session token with the configured secret
func mintSessionToken(t *testing.T, claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(config.Auth.JWTSecret))
	require.NoError(t, err)
	return signed
}

// tests that a valid session token yields the caller's identity
func TestValidateSessionToken(t *testing.T) {
	token := mintSessionToken(t, jwt.MapClaims{
		"sub":       "user@aai.example.org",
		"user_name": "Josiah Carberry",
		"projects":  "PRJ1 PRJ2",
		"exp":       time.Now().Add(time.Hour).Unix(),
	})

	identity, err := ValidateSessionToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user@aai.example.org", identity.ExternalId)
	assert.Equal(t, "Josiah Carberry", identity.Name)
	assert.Equal(t, []string{"PRJ1", "PRJ2"}, identity.Projects)
}

// tests that project claims may also arrive as a list
func TestValidateSessionTokenProjectList(t *testing.T) {
	token := mintSessionToken(t, jwt.MapClaims{
		"sub":      "user@aai.example.org",
		"name":     "Josiah Carberry",
		"projects": []string{"PRJ9"},
		"exp":      time.Now().Add(time.Hour).Unix(),
	})

	identity, err := ValidateSessionToken(token)
	require.NoError(t, err)
	assert.Equal(t, []string{"PRJ9"}, identity.Projects)
	assert.Equal(t, "Josiah Carberry", identity.Name)
}

// tests that an expired session token is rejected
func TestValidateSessionTokenExpired(t *testing.T) {
	token := mintSessionToken(t, jwt.MapClaims{
		"sub": "user@aai.example.org",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	_, err := ValidateSessionToken(token)
	assert.IsType(t, InvalidTokenError{}, err)
}

// tests that a token without an expiry is rejected
func TestValidateSessionTokenNoExpiry(t *testing.T) {
	token := mintSessionToken(t, jwt.MapClaims{"sub": "user@aai.example.org"})

	_, err := ValidateSessionToken(token)
	assert.IsType(t, InvalidTokenError{}, err)
}

// tests that a token signed with another secret is rejected
func TestValidateSessionTokenWrongSecret(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user@aai.example.org",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("some-other-secret"))
	require.NoError(t, err)

	_, err = ValidateSessionToken(signed)
	assert.IsType(t, InvalidTokenError{}, err)
}

// tests that a token missing its subject is rejected
func TestValidateSessionTokenNoSubject(t *testing.T) {
	token := mintSessionToken(t, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := ValidateSessionToken(token)
	assert.IsType(t, InvalidTokenError{}, err)
}

// tests the API-key token round trip
func TestKeyMinterRoundTrip(t *testing.T) {
	minter, err := NewKeyMinter()
	require.NoError(t, err)

	token, err := minter.Mint("01KEY0000000000000000000001")
	require.NoError(t, err)

	keyId, err := minter.KeyId(token)
	require.NoError(t, err)
	assert.Equal(t, "01KEY0000000000000000000001", keyId)
}

// tests that a tampered API-key token is rejected
func TestKeyMinterRejectsTamperedToken(t *testing.T) {
	minter, err := NewKeyMinter()
	require.NoError(t, err)

	token, err := minter.Mint("01KEY0000000000000000000002")
	require.NoError(t, err)

	_, err = minter.KeyId(token[:len(token)-2] + "xx")
	assert.IsType(t, InvalidKeyError{}, err)
}

// tests hashing and verification of API-key secrets
func TestHashAndVerifyToken(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	hash := HashToken("the-token", salt)

	assert.True(t, VerifyToken("the-token", salt, hash))
	assert.False(t, VerifyToken("another-token", salt, hash))

	otherSalt, err := NewSalt()
	require.NoError(t, err)
	assert.False(t, VerifyToken("the-token", otherSalt, hash))
}

// tests that cache entries expire after their TTL
func TestKeyCacheExpiry(t *testing.T) {
	cache := NewKeyCache(5 * time.Minute)
	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.Put("K1", "U1")
	userId, found := cache.Get("K1")
	assert.True(t, found)
	assert.Equal(t, "U1", userId)

	now = now.Add(6 * time.Minute)
	_, found = cache.Get("K1")
	assert.False(t, found)

	cache.Put("K2", "U2")
	cache.Remove("K2")
	_, found = cache.Get("K2")
	assert.False(t, found)
}
