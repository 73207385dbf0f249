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
	"fmt"
	"net/http"

	"github.com/bioarchive/mss/config"
)

// Client for the DataCite DOI service. Payloads follow the JSON-API shape
// {data: {type: "dois", attributes: {...}}}.

type DataCite struct {
	client *Client
	prefix string
	// landing page base for minted DOIs
	discoveryURL string
}

// creates a DataCite client from the loaded configuration
func NewDataCite() *DataCite {
	return &DataCite{
		client: NewClient("DataCite", config.DataCite.URL,
			WithBasicAuth(config.DataCite.User, config.DataCite.Key),
			WithHealthPath("/heartbeat")),
		prefix:       config.DataCite.Prefix,
		discoveryURL: config.DataCite.DiscoveryURL,
	}
}

type dataciteEnvelope struct {
	Data dataciteData `json:"data"`
}

type dataciteData struct {
	Id         string         `json:"id,omitempty"`
	Type       string         `json:"type"`
	Attributes map[string]any `json:"attributes"`
}

// mints a draft DOI under the configured prefix, returning the DOI and its
// landing URL
func (dc *DataCite) CreateDraft(ctx context.Context, suffix string) (string, string, error) {
	doi := fmt.Sprintf("%s/%s", dc.prefix, suffix)
	request := dataciteEnvelope{
		Data: dataciteData{
			Type:       "dois",
			Attributes: map[string]any{"doi": doi},
		},
	}
	var response dataciteEnvelope
	err := dc.client.Request(ctx, http.MethodPost, "/dois", request, &response)
	if err != nil {
		return "", "", err
	}
	if response.Data.Id != "" {
		doi = response.Data.Id
	}
	return doi, fmt.Sprintf("%s/%s", dc.discoveryURL, doi), nil
}

// updates a DOI's metadata attributes
func (dc *DataCite) Update(ctx context.Context, doi string, attributes map[string]any) error {
	request := dataciteEnvelope{
		Data: dataciteData{
			Id:         doi,
			Type:       "dois",
			Attributes: attributes,
		},
	}
	return dc.client.Request(ctx, http.MethodPut, "/dois/"+doi, request, nil)
}

// deletes a draft DOI (publish compensation)
func (dc *DataCite) DeleteDraft(ctx context.Context, doi string) error {
	return dc.client.Request(ctx, http.MethodDelete, "/dois/"+doi, nil, nil)
}

// verifies service availability
func (dc *DataCite) HealthCheck(ctx context.Context) error {
	return dc.client.HealthCheck(ctx)
}
