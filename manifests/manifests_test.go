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

package manifests

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioarchive/mss/core"
)

const validManifest = `{
	"name": "submission-files",
	"profile": "data-package",
	"resources": [
		{
			"name": "reads-1",
			"path": "runs/reads_1.fastq.gz",
			"format": "fastq",
			"bytes": 10751355980,
			"hash": "55c3afc0a2d3b256332425eeebc581ac"
		},
		{
			"name": "reads-2",
			"path": "runs/reads_2.fastq.gz",
			"format": "fastq",
			"bytes": 1323656783,
			"hash": "sha256:9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
		}
	]
}`

// tests that a valid manifest yields one file record per resource
func TestParseManifest(t *testing.T) {
	files, err := Parse("S1", []byte(validManifest))
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, "S1", files[0].SubmissionId)
	assert.Equal(t, "runs/reads_1.fastq.gz", files[0].Path)
	assert.Equal(t, int64(10751355980), files[0].Bytes)
	assert.Equal(t, "55c3afc0a2d3b256332425eeebc581ac", files[0].UnencryptedChecksum)
	assert.Equal(t, "MD5", files[0].ChecksumMethod)
	assert.Equal(t, core.IngestStatusAdded, files[0].IngestStatus)

	// a prefixed hash names its algorithm
	assert.Equal(t, "SHA-256", files[1].ChecksumMethod)
	assert.Equal(t,
		"9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		files[1].UnencryptedChecksum)
}

// tests that malformed JSON is rejected
func TestParseManifestMalformed(t *testing.T) {
	_, err := Parse("S1", []byte(`{"name": "broken"`))
	var invalidErr InvalidManifestError
	assert.ErrorAs(t, err, &invalidErr)
}

// tests that duplicate paths within one manifest are rejected
func TestParseManifestDuplicatePath(t *testing.T) {
	manifest := `{
		"name": "submission-files",
		"resources": [
			{"name": "a", "path": "runs/reads.fastq.gz", "format": "fastq"},
			{"name": "b", "path": "runs/reads.fastq.gz", "format": "fastq"}
		]
	}`
	_, err := Parse("S1", []byte(manifest))
	var invalidErr InvalidManifestError
	require.ErrorAs(t, err, &invalidErr)
	assert.Contains(t, invalidErr.Message, "duplicate path")
}

// tests that an empty resource list is rejected
func TestParseManifestNoFiles(t *testing.T) {
	_, err := Parse("S1", []byte(`{"name": "empty", "resources": []}`))
	assert.Error(t, err)
}
