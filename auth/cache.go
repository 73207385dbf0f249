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
	"sync"
	"time"
)

// A short-lived cache mapping API-key record identifiers to user
// identifiers, so repeated requests with the same key skip the hash
// verification and database lookup.
type KeyCache struct {
	mutex   sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

type cacheEntry struct {
	userId  string
	expires time.Time
}

// creates a cache whose entries live for the given duration
func NewKeyCache(ttl time.Duration) *KeyCache {
	return &KeyCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// looks up the user for a key, reporting whether a live entry was found
func (cache *KeyCache) Get(keyId string) (string, bool) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	entry, found := cache.entries[keyId]
	if !found {
		return "", false
	}
	if cache.now().After(entry.expires) {
		delete(cache.entries, keyId)
		return "", false
	}
	return entry.userId, true
}

// records the user for a key
func (cache *KeyCache) Put(keyId, userId string) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	cache.entries[keyId] = cacheEntry{
		userId:  userId,
		expires: cache.now().Add(cache.ttl),
	}
}

// drops a key's entry, used when the key is revoked
func (cache *KeyCache) Remove(keyId string) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	delete(cache.entries, keyId)
}
