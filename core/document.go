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

package core

import (
	"encoding/json"
)

// Returns a deep copy of a document. Documents come off the JSON decoder, so
// a marshal round-trip is a faithful copy.
func CopyDocument(doc Document) Document {
	if doc == nil {
		return nil
	}
	data, _ := json.Marshal(doc)
	var dup Document
	json.Unmarshal(data, &dup)
	return dup
}

// Removes the given top-level fields from a document in place.
func StripFields(doc Document, fields ...string) {
	for _, field := range fields {
		delete(doc, field)
	}
}

// Returns the string value of a top-level document field, or "" if the field
// is absent or not a string.
func StringField(doc Document, field string) string {
	if value, ok := doc[field].(string); ok {
		return value
	}
	return ""
}
