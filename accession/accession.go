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

package accession

import (
	crand "crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Accession identifiers are 26-character lexicographically sortable tokens
// with a time-ordered prefix and a random suffix (ULIDs). They are opaque to
// clients and are minted for submissions, objects, files, registrations,
// users, and projects alike.

// A Minter allocates accession identifiers. The clock and entropy source are
// injected so tests can be deterministic.
type Minter struct {
	mutex   sync.Mutex
	now     func() time.Time
	entropy io.Reader
}

// creates a minter backed by the wall clock and a cryptographic entropy
// source
func NewMinter() *Minter {
	return NewMinterWithSource(time.Now, ulid.Monotonic(crand.Reader, 0))
}

// creates a minter with the given clock and entropy source
func NewMinterWithSource(now func() time.Time, entropy io.Reader) *Minter {
	return &Minter{
		now:     now,
		entropy: entropy,
	}
}

// allocates a new accession identifier
func (m *Minter) New() (string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	id, err := ulid.New(ulid.Timestamp(m.now().UTC()), m.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// reports whether a token has the shape of an accession identifier
func IsValid(token string) bool {
	if len(token) != 26 {
		return false
	}
	_, err := ulid.ParseStrict(token)
	return err == nil
}
