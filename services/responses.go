package services

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/bioarchive/mss/auth"
	"github.com/bioarchive/mss/core"
	"github.com/bioarchive/mss/external"
	"github.com/bioarchive/mss/manifests"
	"github.com/bioarchive/mss/objects"
	"github.com/bioarchive/mss/publish"
	"github.com/bioarchive/mss/repository"
	"github.com/bioarchive/mss/schemas"
	"github.com/bioarchive/mss/submissions"
	"github.com/bioarchive/mss/validation"
	"github.com/bioarchive/mss/workflows"
)

// this type encodes a JSON object for responding to root queries
type ServiceInfoResponse struct {
	Name          string `json:"name" example:"MSS" doc:"The name of the service API"`
	Version       string `json:"version" example:"1.0.0" doc:"The version string (major.minor.patch)"`
	Uptime        int    `json:"uptime" example:"345600" doc:"The time the service has been up (seconds)"`
	Documentation string `json:"documentation" example:"/docs" doc:"The OpenAPI documentation endpoint"`
}

// a response carrying a freshly assigned accession identifier
type AccessionResponse struct {
	AccessionId string `json:"accessionId" doc:"the accession identifier of the object"`
}

// a response carrying a submission identifier
type SubmissionIdResponse struct {
	SubmissionId string `json:"submissionId" doc:"the accession identifier of the submission"`
}

// a paginated submission listing
type SubmissionListResponse struct {
	Page        core.PageInfo   `json:"page"`
	Submissions []core.Document `json:"submissions"`
}

// per-service probe results for the health endpoint
type HealthResponse struct {
	Status   string            `json:"status" example:"Ok" doc:"Ok, Degraded or Down"`
	Services map[string]string `json:"services" doc:"per-dependency probe outcome"`
}

// the session's user, as the frontend displays it
type CurrentUserResponse struct {
	UserId   string   `json:"userId"`
	UserName string   `json:"userName"`
	Projects []string `json:"projects"`
}

// a freshly minted API key; the token is shown exactly once
type ApiKeyResponse struct {
	Name  string `json:"name"`
	Token string `json:"token,omitempty"`
}

// Maps a typed service error onto the HTTP status contract. Anything
// unrecognized surfaces as a 500.
func apiError(err error) error {
	var statusErr huma.StatusError
	if errors.As(err, &statusErr) {
		return err
	}

	var (
		invalidDoc      validation.Error
		invalidXML      objects.InvalidXMLError
		badDocument     submissions.BadDocumentError
		badPatch        submissions.BadPatchError
		forbiddenKeys   objects.ForbiddenKeysError
		noXML           objects.NoXMLError
		notSingular     objects.NotSingularError
		immutableField  submissions.ImmutableFieldError
		missingBlock    submissions.MissingBlockError
		badManifest     manifests.InvalidManifestError
		remsConfig      publish.RemsConfigError
		invalidToken    auth.InvalidTokenError
		invalidKey      auth.InvalidKeyError
		ownership       submissions.OwnershipError
		forbiddenPatch  submissions.ForbiddenPatchError
		notFound        repository.NotFoundError
		schemaNotFound  schemas.NotFoundError
		noWorkflow      workflows.NotFoundError
		duplicate       repository.DuplicateError
		badTransition   repository.IngestTransitionError
		singleInstance  objects.SingleInstanceError
		objectPublished objects.PublishedError
		published       submissions.PublishedError
		unsatisfied     workflows.UnsatisfiedError
		badMedia        objects.UnsupportedMediaError
		clientErr       external.ClientError
		serverErr       external.ServerError
		unavailable     external.UnavailableError
		unhealthy       publish.UnhealthyServiceError
		timeout         external.TimeoutError
	)
	switch {
	case errors.As(err, &invalidDoc), errors.As(err, &invalidXML),
		errors.As(err, &badDocument), errors.As(err, &badPatch),
		errors.As(err, &forbiddenKeys), errors.As(err, &noXML),
		errors.As(err, &notSingular), errors.As(err, &immutableField),
		errors.As(err, &missingBlock), errors.As(err, &badManifest),
		errors.As(err, &remsConfig):
		return huma.Error400BadRequest(err.Error())
	case errors.As(err, &invalidToken), errors.As(err, &invalidKey):
		return huma.Error401Unauthorized(err.Error())
	case errors.As(err, &ownership), errors.As(err, &forbiddenPatch):
		return huma.Error403Forbidden(err.Error())
	case errors.As(err, &notFound), errors.As(err, &schemaNotFound),
		errors.As(err, &noWorkflow):
		return huma.Error404NotFound(err.Error())
	case errors.As(err, &duplicate), errors.As(err, &badTransition),
		errors.As(err, &singleInstance), errors.As(err, &objectPublished),
		errors.As(err, &published), errors.As(err, &unsatisfied):
		return huma.Error409Conflict(err.Error())
	case errors.As(err, &badMedia):
		return huma.Error415UnsupportedMediaType(err.Error())
	case errors.As(err, &clientErr), errors.As(err, &serverErr),
		errors.As(err, &unavailable), errors.As(err, &unhealthy):
		return huma.Error502BadGateway(err.Error())
	case errors.As(err, &timeout), errors.Is(err, context.DeadlineExceeded):
		return huma.Error504GatewayTimeout(err.Error())
	}
	return huma.Error500InternalServerError(err.Error())
}
