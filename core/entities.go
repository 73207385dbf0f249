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
	"time"
)

// This package holds the entity types shared by the repository and service
// layers. All identifiers are opaque accession strings (see the accession
// package); timestamps are UTC instants with millisecond resolution.

// A Document is the canonical JSON representation of a metadata payload.
type Document = map[string]any

// a project registered lazily on first observation of a project claim from
// the identity provider
type Project struct {
	Id         string          `json:"projectId"`
	ExternalId string          `json:"externalId"`
	Templates  json.RawMessage `json:"templates,omitempty"`
	CreatedAt  time.Time       `json:"dateCreated"`
}

// a user created/updated on each successful login; Projects reflects the
// identity-provider claims at that moment
type User struct {
	Id         string    `json:"userId"`
	ExternalId string    `json:"externalId"`
	Name       string    `json:"name"`
	Projects   []string  `json:"projects"`
	CreatedAt  time.Time `json:"dateCreated"`
	ModifiedAt time.Time `json:"lastModified"`
}

// A Submission is the logical container grouping metadata objects and files
// under one project and one workflow; it is the unit of publication.
type Submission struct {
	Id           string     `json:"submissionId"`
	Name         string     `json:"name"`
	ProjectId    string     `json:"projectId"`
	WorkflowName string     `json:"workflow"`
	Folder       string     `json:"linkedFolder,omitempty"`
	Title        string     `json:"title,omitempty"`
	Description  string     `json:"description,omitempty"`
	Document     Document   `json:"-"`
	Published    bool       `json:"published"`
	Ingested     bool       `json:"ingested"`
	PublishedAt  *time.Time `json:"datePublished,omitempty"`
	IngestedAt   *time.Time `json:"dateIngested,omitempty"`
	CreatedAt    time.Time  `json:"dateCreated"`
	ModifiedAt   time.Time  `json:"lastModified"`
}

// A MetadataObject is a typed JSON document (optionally with an original XML
// serialization) describing one entity within a submission.
type MetadataObject struct {
	Id          string    `json:"accessionId"`
	SubmissionId string   `json:"submissionId"`
	ProjectId   string    `json:"projectId"`
	ObjectType  string    `json:"schema"`
	Name        string    `json:"name,omitempty"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Document    Document  `json:"-"`
	XMLDocument string    `json:"-"`
	CreatedAt   time.Time `json:"dateCreated"`
	ModifiedAt  time.Time `json:"lastModified"`
}

// ingest states for a file; the status advances only along
// added -> verified -> ready, with failed reachable from any non-terminal
// state
type IngestStatus string

const (
	IngestStatusAdded    IngestStatus = "added"
	IngestStatusVerified IngestStatus = "verified"
	IngestStatusReady    IngestStatus = "ready"
	IngestStatusFailed   IngestStatus = "failed"
)

// reports whether a file's ingest status may move from one state to another
func (from IngestStatus) CanAdvanceTo(to IngestStatus) bool {
	switch from {
	case IngestStatusAdded:
		return to == IngestStatusVerified || to == IngestStatusFailed
	case IngestStatusVerified:
		return to == IngestStatusReady || to == IngestStatusFailed
	default: // ready and failed are terminal
		return false
	}
}

// a file attached to a submission, tracked through ingestion
type File struct {
	Id                  string       `json:"fileId"`
	SubmissionId        string       `json:"submissionId"`
	ObjectId            string       `json:"accessionId,omitempty"`
	Path                string       `json:"path"`
	Bytes               int64        `json:"bytes"`
	UnencryptedChecksum string       `json:"unencryptedChecksum,omitempty"`
	EncryptedChecksum   string       `json:"encryptedChecksum,omitempty"`
	ChecksumMethod      string       `json:"checksumMethod,omitempty"`
	IngestStatus        IngestStatus `json:"ingestStatus"`
	IngestError         string       `json:"ingestError,omitempty"`
	IngestErrorType     string       `json:"ingestErrorType,omitempty"`
	IngestErrorCount    int          `json:"ingestErrorCount"`
	CreatedAt           time.Time    `json:"dateCreated"`
	ModifiedAt          time.Time    `json:"lastModified"`
}

// A Registration records the external identifiers (DOI, catalog id,
// access-management ids) obtained when a submission was published. ObjectId
// is set when the registration is for a specific object rather than for the
// submission itself.
type Registration struct {
	SubmissionId    string    `json:"submissionId"`
	ObjectId        string    `json:"accessionId,omitempty"`
	ObjectType      string    `json:"schema"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	DOI             string    `json:"doi"`
	MetaxId         string    `json:"metaxIdentifier,omitempty"`
	DataCiteURL     string    `json:"dataciteUrl,omitempty"`
	RemsURL         string    `json:"remsUrl,omitempty"`
	RemsResourceId  string    `json:"remsResourceId,omitempty"`
	RemsCatalogueId string    `json:"remsCatalogueId,omitempty"`
	CreatedAt       time.Time `json:"dateCreated"`
	ModifiedAt      time.Time `json:"lastModified"`
}

// an API key issued to a user; only the salted hash of the secret is stored
type ApiKey struct {
	Id        string    `json:"keyId"`
	UserId    string    `json:"userId"`
	UserKeyId string    `json:"name"`
	Hash      string    `json:"-"`
	Salt      string    `json:"-"`
	CreatedAt time.Time `json:"dateCreated"`
}
