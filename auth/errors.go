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
	"fmt"
)

// indicates that a session token could not be validated
type InvalidTokenError struct {
	Message string
}

func (e InvalidTokenError) Error() string {
	return fmt.Sprintf("Invalid session token: %s", e.Message)
}

// indicates that an API key could not be validated
type InvalidKeyError struct {
}

func (e InvalidKeyError) Error() string {
	return "Invalid API key."
}

// indicates that the API-key signing key is missing or malformed
type KeyConfigError struct {
	Message string
}

func (e KeyConfigError) Error() string {
	return fmt.Sprintf("Invalid API-key configuration: %s", e.Message)
}
