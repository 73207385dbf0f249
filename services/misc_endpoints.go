package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/bioarchive/mss/auth"
	"github.com/bioarchive/mss/core"
	"github.com/bioarchive/mss/schemas"
	"github.com/bioarchive/mss/workflows"
)

type SchemasOutput struct {
	Body []schemas.Description `doc:"descriptions of every registered schema type"`
}

// handler method for listing the registered schema types
func (service *metadataService) getSchemas(ctx context.Context,
	input *struct{}) (*SchemasOutput, error) {

	descriptions, err := schemas.List()
	if err != nil {
		return nil, apiError(err)
	}
	return &SchemasOutput{Body: descriptions}, nil
}

type SchemaOutput struct {
	Body json.RawMessage `doc:"the JSON Schema document for the requested type"`
}

// handler method for fetching one schema document
func (service *metadataService) getSchema(ctx context.Context,
	input *struct {
		Schema string `path:"schema" example:"study" doc:"the name of a schema type"`
	}) (*SchemaOutput, error) {

	raw, err := schemas.GetRawSchema(input.Schema)
	if err != nil {
		return nil, apiError(err)
	}
	return &SchemaOutput{Body: raw}, nil
}

type WorkflowsOutput struct {
	Body map[string]string `doc:"workflow descriptions keyed by name"`
}

// handler method for listing the loaded workflows
func (service *metadataService) getWorkflows(ctx context.Context,
	input *struct{}) (*WorkflowsOutput, error) {

	descriptions, err := workflows.List()
	if err != nil {
		return nil, apiError(err)
	}
	return &WorkflowsOutput{Body: descriptions}, nil
}

type WorkflowOutput struct {
	Body *workflows.Workflow `doc:"the requested workflow document"`
}

// handler method for fetching one workflow document
func (service *metadataService) getWorkflow(ctx context.Context,
	input *struct {
		Name string `path:"name" example:"sdsx" doc:"the name of a workflow"`
	}) (*WorkflowOutput, error) {

	workflow, err := workflows.Get(input.Name)
	if err != nil {
		return nil, apiError(err)
	}
	return &WorkflowOutput{Body: workflow}, nil
}

type CurrentUserOutput struct {
	Body CurrentUserResponse `doc:"the authenticated user"`
}

// handler method for the session's own user record
func (service *metadataService) getCurrentUser(ctx context.Context,
	input *struct {
		Authorization string `header:"authorization" doc:"Authorization header with a session token"`
		ApiKey        string `header:"x-api-key" doc:"API key issued by this service"`
	}) (*CurrentUserOutput, error) {

	user, err := service.authorize(ctx, input.Authorization, input.ApiKey)
	if err != nil {
		return nil, err
	}
	return &CurrentUserOutput{
		Body: CurrentUserResponse{
			UserId:   user.UserId,
			UserName: user.UserName,
			Projects: user.Projects,
		},
	}, nil
}

type ApiKeyOutput struct {
	Body   ApiKeyResponse `doc:"the minted API key; the token is shown only once"`
	Status int
}

// Handler method for minting an API key. The token embeds the record's key
// id; only its salted hash is stored, so the token cannot be shown again.
func (service *metadataService) createApiKey(ctx context.Context,
	input *struct {
		Authorization string `header:"authorization" doc:"Authorization header with a session token"`
		Body          struct {
			Name string `json:"name" example:"ci-pipeline" doc:"a user-chosen name for the key"`
		}
	}) (*ApiKeyOutput, error) {

	user, err := service.authorize(ctx, input.Authorization, "")
	if err != nil {
		return nil, err
	}
	if input.Body.Name == "" {
		return nil, huma.Error400BadRequest("A key name is required")
	}

	key := &core.ApiKey{UserId: user.UserId, UserKeyId: input.Body.Name}
	salt, err := auth.NewSalt()
	if err != nil {
		return nil, apiError(err)
	}
	key.Salt = salt

	// two passes: the id must exist before the token can embed it
	if err := service.store.AddApiKey(ctx, key); err != nil {
		return nil, apiError(err)
	}
	token, err := service.keyMinter.Mint(key.Id)
	if err != nil {
		return nil, apiError(err)
	}
	key.Hash = auth.HashToken(token, key.Salt)
	if err := service.store.SetApiKeyHash(ctx, key.Id, key.Hash); err != nil {
		return nil, apiError(err)
	}

	slog.Info(fmt.Sprintf("Minted API key %q for user %s", key.UserKeyId, user.UserId))
	return &ApiKeyOutput{
		Body:   ApiKeyResponse{Name: key.UserKeyId, Token: token},
		Status: 201,
	}, nil
}

type ApiKeysOutput struct {
	Body []ApiKeyResponse `doc:"the names of the user's API keys"`
}

// handler method for listing the caller's API keys
func (service *metadataService) listApiKeys(ctx context.Context,
	input *struct {
		Authorization string `header:"authorization" doc:"Authorization header with a session token"`
	}) (*ApiKeysOutput, error) {

	user, err := service.authorize(ctx, input.Authorization, "")
	if err != nil {
		return nil, err
	}
	keys, err := service.store.ListApiKeys(ctx, user.UserId)
	if err != nil {
		return nil, apiError(err)
	}
	output := &ApiKeysOutput{Body: make([]ApiKeyResponse, 0, len(keys))}
	for _, key := range keys {
		output.Body = append(output.Body, ApiKeyResponse{Name: key.UserKeyId})
	}
	return output, nil
}

type ApiKeyDeletionOutput struct {
	Status int
}

// handler method for revoking one of the caller's API keys by name
func (service *metadataService) deleteApiKey(ctx context.Context,
	input *struct {
		Authorization string `header:"authorization" doc:"Authorization header with a session token"`
		Name          string `path:"name" doc:"the user-chosen name of the key"`
	}) (*ApiKeyDeletionOutput, error) {

	user, err := service.authorize(ctx, input.Authorization, "")
	if err != nil {
		return nil, err
	}

	// evict the cached validation so revocation takes effect immediately
	keys, err := service.store.ListApiKeys(ctx, user.UserId)
	if err != nil {
		return nil, apiError(err)
	}
	for _, key := range keys {
		if key.UserKeyId == input.Name {
			service.keyCache.Remove(key.Id)
		}
	}

	removed, err := service.store.DeleteApiKey(ctx, user.UserId, input.Name)
	if err != nil {
		return nil, apiError(err)
	}
	if !removed {
		return nil, huma.Error404NotFound(
			fmt.Sprintf("No API key named %q was found", input.Name))
	}
	return &ApiKeyDeletionOutput{Status: 204}, nil
}
