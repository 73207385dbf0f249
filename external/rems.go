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
	"strconv"

	"github.com/bioarchive/mss/config"
)

// Client for the REMS access-management service. Publishing a submission
// creates a resource for its DOI and a catalogue item applicants use to
// request access. REMS authenticates with an API key plus an impersonated
// user id carried in request headers.

type Rems struct {
	client *Client
	// application base for catalogue-item links shown to applicants
	baseURL string
}

// creates a REMS client from the loaded configuration
func NewRems() *Rems {
	return &Rems{
		client: NewClient("REMS", config.Rems.URL,
			WithHeader("x-rems-api-key", config.Rems.Key),
			WithHeader("x-rems-user-id", config.Rems.UserId),
			WithHealthPath("/api/health")),
		baseURL: config.Rems.URL,
	}
}

type remsWorkflow struct {
	Id           int  `json:"id"`
	Archived     bool `json:"archived"`
	Organization struct {
		Id string `json:"organization/id"`
	} `json:"organization"`
	Licenses []struct {
		Id int `json:"license/id"`
	} `json:"licenses"`
}

type remsLicense struct {
	Id           int  `json:"id"`
	Archived     bool `json:"archived"`
	Organization struct {
		Id string `json:"organization/id"`
	} `json:"organization"`
}

// lists the active workflow ids available to an organization
func (r *Rems) ListWorkflows(ctx context.Context, organization string) ([]int, error) {
	var workflows []remsWorkflow
	err := r.client.Request(ctx, http.MethodGet,
		"/api/workflows?disabled=false&archived=false", nil, &workflows)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(workflows))
	for _, workflow := range workflows {
		if workflow.Organization.Id == organization {
			ids = append(ids, workflow.Id)
		}
	}
	return ids, nil
}

// lists the active license ids available to an organization
func (r *Rems) ListLicenses(ctx context.Context, organization string) ([]int, error) {
	var licenses []remsLicense
	err := r.client.Request(ctx, http.MethodGet,
		"/api/licenses?disabled=false&archived=false", nil, &licenses)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(licenses))
	for _, license := range licenses {
		if license.Organization.Id == organization {
			ids = append(ids, license.Id)
		}
	}
	return ids, nil
}

// Checks that the workflow belongs to the organization and every requested
// license is active there. A failure is reported as a ClientError so it
// surfaces like any other upstream rejection of our data.
func (r *Rems) ValidateWorkflowLicenses(ctx context.Context, organization string,
	workflowId int, licenseIds []int) error {

	workflows, err := r.ListWorkflows(ctx, organization)
	if err != nil {
		return err
	}
	found := false
	for _, id := range workflows {
		if id == workflowId {
			found = true
			break
		}
	}
	if !found {
		return ClientError{
			Service: r.client.ServiceName(),
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("workflow %d not found in organization %q",
				workflowId, organization),
		}
	}

	licenses, err := r.ListLicenses(ctx, organization)
	if err != nil {
		return err
	}
	known := make(map[int]bool, len(licenses))
	for _, id := range licenses {
		known[id] = true
	}
	for _, id := range licenseIds {
		if !known[id] {
			return ClientError{
				Service: r.client.ServiceName(),
				Status:  http.StatusBadRequest,
				Message: fmt.Sprintf("license %d not found in organization %q",
					id, organization),
			}
		}
	}
	return nil
}

// creates a resource identified by the submission's DOI, returning the
// resource id
func (r *Rems) CreateResource(ctx context.Context, doi, organization string,
	licenseIds []int) (int, error) {

	if licenseIds == nil {
		licenseIds = []int{}
	}
	request := map[string]any{
		"resid":        doi,
		"organization": map[string]any{"organization/id": organization},
		"licenses":     licenseIds,
	}
	var response struct {
		Success bool `json:"success"`
		Id      int  `json:"id"`
	}
	err := r.client.Request(ctx, http.MethodPost, "/api/resources/create",
		request, &response)
	if err != nil {
		return 0, err
	}
	if !response.Success {
		return 0, ClientError{
			Service: r.client.ServiceName(),
			Status:  http.StatusUnprocessableEntity,
			Message: "resource creation was not accepted",
		}
	}
	return response.Id, nil
}

// creates a catalogue item binding the resource to an application workflow,
// returning the item id
func (r *Rems) CreateCatalogueItem(ctx context.Context, resourceId, workflowId int,
	organization string, localizations map[string]any) (int, error) {

	request := map[string]any{
		"form":          nil,
		"resid":         resourceId,
		"wfid":          workflowId,
		"organization":  map[string]any{"organization/id": organization},
		"localizations": localizations,
		"enabled":       true,
		"archived":      false,
	}
	var response struct {
		Success bool `json:"success"`
		Id      int  `json:"id"`
	}
	err := r.client.Request(ctx, http.MethodPost, "/api/catalogue-items/create",
		request, &response)
	if err != nil {
		return 0, err
	}
	if !response.Success {
		return 0, ClientError{
			Service: r.client.ServiceName(),
			Status:  http.StatusUnprocessableEntity,
			Message: "catalogue item creation was not accepted",
		}
	}
	return response.Id, nil
}

// the application URL applicants follow to request access to an item
func (r *Rems) CatalogueItemURL(itemId int) string {
	return r.baseURL + "/application?items=" + strconv.Itoa(itemId)
}

// verifies service availability
func (r *Rems) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck(ctx)
}
