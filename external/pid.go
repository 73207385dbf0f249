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

// Client for the persistent-identifier proxy used when the service runs
// without direct DataCite credentials. The proxy mints DOIs on our behalf
// and forwards metadata updates.

type PID struct {
	client *Client
}

// creates a PID client from the loaded configuration
func NewPID() *PID {
	return &PID{
		client: NewClient("PID", config.PID.URL,
			WithHeader("apikey", config.PID.APIKey)),
	}
}

// mints a draft DOI, returning the DOI and its landing URL
func (p *PID) CreateDraftDOI(ctx context.Context) (string, string, error) {
	var response struct {
		DOI string `json:"draft_doi"`
		URL string `json:"datacite_url"`
	}
	err := p.client.Request(ctx, http.MethodPost, "/v1/pid/doi", nil, &response)
	if err != nil {
		return "", "", err
	}
	return response.DOI, response.URL, nil
}

// publishes a DOI with its final metadata attributes
func (p *PID) Publish(ctx context.Context, attributes map[string]any) error {
	request := map[string]any{
		"data": map[string]any{
			"type":       "dois",
			"attributes": attributes,
		},
	}
	return p.client.Request(ctx, http.MethodPost, "/v1/pid/doi/publish", request, nil)
}

// verifies service availability
func (p *PID) HealthCheck(ctx context.Context) error {
	return p.client.HealthCheck(ctx)
}
