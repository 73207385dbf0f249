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

package external

import (
	"context"
	"net/http"
	"net/url"

	"github.com/bioarchive/mss/config"
	"github.com/bioarchive/mss/core"
)

// Client for the ingestion admin service, which moves submitted files
// through the archive pipeline. Publication triggers ingestion for each
// ready file and assigns the archive-facing accession.

type Admin struct {
	client *Client
}

// creates an ingestion-admin client from the loaded configuration
func NewAdmin() *Admin {
	return &Admin{
		client: NewClient("Admin", config.Admin.URL, WithHealthPath("/ready")),
	}
}

// a file as reported by the ingestion inbox
type InboxFile struct {
	InboxPath string `json:"inboxPath"`
	FileSize  int64  `json:"fileSize"`
	Checksum  string `json:"decryptedFileChecksum"`
	Method    string `json:"decryptedFileChecksumType"`
}

// requests ingestion of one file owned by a user
func (a *Admin) IngestFile(ctx context.Context, user, path string) error {
	request := map[string]any{"user": user, "filepath": path}
	return a.client.Request(ctx, http.MethodPost, "/file/ingest", request, nil)
}

// lists the files present in a user's inbox
func (a *Admin) ListUserFiles(ctx context.Context, user string) ([]InboxFile, error) {
	var files []InboxFile
	err := a.client.Request(ctx, http.MethodGet,
		"/users/"+url.PathEscape(user)+"/files", nil, &files)
	return files, err
}

// assigns the archive accession to an ingested file
func (a *Admin) AssignAccession(ctx context.Context, user string, file *core.File) error {
	request := map[string]any{
		"user":        user,
		"filepath":    file.Path,
		"accessionId": file.ObjectId,
	}
	return a.client.Request(ctx, http.MethodPost, "/file/accession", request, nil)
}

// verifies service availability
func (a *Admin) HealthCheck(ctx context.Context) error {
	return a.client.HealthCheck(ctx)
}
