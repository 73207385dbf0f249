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

	"github.com/bioarchive/mss/config"
)

// Client for the Metax discovery catalog. Published submissions are filed
// there as research datasets; drafts are created during publication and
// promoted with an RPC call once every other registration has succeeded.

type Metax struct {
	client  *Client
	catalog string
}

// creates a Metax client from the loaded configuration
func NewMetax() *Metax {
	return &Metax{
		client: NewClient("Metax", config.Metax.URL,
			WithBasicAuth(config.Metax.User, config.Metax.Password),
			WithHealthPath("/watchman/ping/microservice/heartbeat")),
		catalog: config.Metax.Catalog,
	}
}

type metaxDataset struct {
	Identifier      string         `json:"identifier,omitempty"`
	DataCatalog     string         `json:"data_catalog"`
	MetadataOwner   string         `json:"metadata_provider_org"`
	MetadataUser    string         `json:"metadata_provider_user"`
	ResearchDataset map[string]any `json:"research_dataset"`
}

// creates a draft dataset record, returning the catalog identifier
func (m *Metax) CreateDraft(ctx context.Context, organization, user string,
	researchDataset map[string]any) (string, error) {

	request := metaxDataset{
		DataCatalog:     m.catalog,
		MetadataOwner:   organization,
		MetadataUser:    user,
		ResearchDataset: researchDataset,
	}
	var response struct {
		Identifier string `json:"identifier"`
	}
	err := m.client.Request(ctx, http.MethodPost, "/rest/v2/datasets?draft",
		request, &response)
	if err != nil {
		return "", err
	}
	return response.Identifier, nil
}

// replaces a draft's research-dataset content
func (m *Metax) Update(ctx context.Context, identifier string,
	researchDataset map[string]any) error {

	request := map[string]any{"research_dataset": researchDataset}
	return m.client.Request(ctx, http.MethodPatch,
		"/rest/v2/datasets/"+identifier, request, nil)
}

// deletes a draft dataset record (publish compensation)
func (m *Metax) DeleteDraft(ctx context.Context, identifier string) error {
	return m.client.Request(ctx, http.MethodDelete,
		"/rest/v2/datasets/"+identifier, nil, nil)
}

// promotes a draft to a published dataset, returning the preferred
// identifier assigned by the catalog
func (m *Metax) Publish(ctx context.Context, identifier string) (string, error) {
	var response struct {
		PreferredIdentifier string `json:"preferred_identifier"`
	}
	err := m.client.Request(ctx, http.MethodPost,
		"/rpc/v2/datasets/publish_dataset?identifier="+identifier, nil, &response)
	if err != nil {
		return "", err
	}
	return response.PreferredIdentifier, nil
}

// patches several dataset records in one call
func (m *Metax) BulkUpdate(ctx context.Context, datasets []map[string]any) error {
	return m.client.Request(ctx, http.MethodPatch, "/rest/v2/datasets", datasets, nil)
}

// verifies service availability
func (m *Metax) HealthCheck(ctx context.Context) error {
	return m.client.HealthCheck(ctx)
}
