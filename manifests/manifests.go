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
	"fmt"
	"strings"

	"github.com/frictionlessdata/datapackage-go/datapackage"
	"github.com/frictionlessdata/datapackage-go/validator"

	"github.com/bioarchive/mss/core"
)

// File manifests are uploaded as Frictionless data packages
// (https://specs.frictionlessdata.io/data-package/): one resource per file,
// with its inbox path, size and checksum. Parsing validates the package
// against the Frictionless profile and produces file records ready for the
// repository.

// indicates that an uploaded manifest is not a valid data package
type InvalidManifestError struct {
	Message string
}

func (e InvalidManifestError) Error() string {
	return fmt.Sprintf("Invalid file manifest: %s", e.Message)
}

// Parses a file manifest for a submission, returning one file record per
// resource. Paths must be unique within the manifest.
func Parse(submissionId string, manifest []byte) ([]core.File, error) {
	pkg, err := datapackage.FromString(string(manifest), "datapackage.json",
		validator.InMemoryLoader())
	if err != nil {
		return nil, InvalidManifestError{Message: err.Error()}
	}

	resources, _ := pkg.Descriptor()["resources"].([]any)
	files := make([]core.File, 0, len(resources))
	seen := make(map[string]bool, len(resources))
	for _, entry := range resources {
		descriptor, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		path := stringValue(descriptor["path"])
		if path == "" {
			return nil, InvalidManifestError{
				Message: fmt.Sprintf("resource %q has no path",
					stringValue(descriptor["name"])),
			}
		}
		if seen[path] {
			return nil, InvalidManifestError{
				Message: fmt.Sprintf("duplicate path %q", path),
			}
		}
		seen[path] = true

		file := core.File{
			SubmissionId: submissionId,
			Path:         path,
			Bytes:        byteCount(descriptor["bytes"]),
			IngestStatus: core.IngestStatusAdded,
		}
		file.UnencryptedChecksum, file.ChecksumMethod = checksum(descriptor["hash"])
		files = append(files, file)
	}
	if len(files) == 0 {
		return nil, InvalidManifestError{Message: "manifest lists no files"}
	}
	return files, nil
}

// Splits a Frictionless hash into its value and algorithm. Algorithms other
// than MD5 are indicated with a prefix delimited by a colon.
func checksum(value any) (string, string) {
	hash := stringValue(value)
	if hash == "" {
		return "", ""
	}
	if method, digest, found := strings.Cut(hash, ":"); found {
		return digest, normalizeMethod(method)
	}
	return hash, "MD5"
}

func normalizeMethod(method string) string {
	switch strings.ToLower(method) {
	case "sha256":
		return "SHA-256"
	case "sha512":
		return "SHA-512"
	default:
		return strings.ToUpper(method)
	}
}

func stringValue(value any) string {
	text, _ := value.(string)
	return text
}

// descriptor numbers arrive as float64 from JSON decoding
func byteCount(value any) int64 {
	switch number := value.(type) {
	case float64:
		return int64(number)
	case int:
		return int64(number)
	case int64:
		return number
	}
	return 0
}
