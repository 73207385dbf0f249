package services

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humamux"
	"github.com/gorilla/mux"
	"golang.org/x/net/netutil"

	"github.com/bioarchive/mss/auth"
	"github.com/bioarchive/mss/config"
	"github.com/bioarchive/mss/core"
	"github.com/bioarchive/mss/publish"
	"github.com/bioarchive/mss/repository"
	"github.com/bioarchive/mss/submissions"

	objectsvc "github.com/bioarchive/mss/objects"
)

// Version numbers
var majorVersion = 1
var minorVersion = 0
var patchVersion = 0

// Version string
var version = fmt.Sprintf("%d.%d.%d", majorVersion, minorVersion, patchVersion)

// how long a validated API key is accepted without re-hashing
const keyCacheTTL = time.Minute

// MetadataService defines the interface for our submission service.
type MetadataService interface {
	// Starts the service on the selected port, returning an error that
	// indicates success or failure.
	Start(port int) error
	// Gracefully shuts down the service without interrupting active
	// connections.
	Shutdown(ctx context.Context) error
	// Closes down the service, freeing all resources.
	Close()
}

// This type implements the MetadataService interface, serving the metadata
// submission API over the repository and the publish orchestrator.
type metadataService struct {
	// name of the service
	Name string
	// service version identifier
	Version string
	// time which the service was started
	StartTime time.Time
	// port on which the service currently runs
	Port int
	// router for REST endpoints
	Router *mux.Router
	// API wrapper
	API huma.API
	// HTTP server.
	Server *http.Server

	store        *repository.Store
	submissions  *submissions.Service
	objects      *objectsvc.Service
	orchestrator *publish.Orchestrator
	keyMinter    *auth.KeyMinter
	keyCache     *auth.KeyCache
	stopSweep    context.CancelFunc
}

// the authenticated caller, as handlers see it
type caller struct {
	UserId   string
	UserName string
	Projects []string
}

// Authorizes a request from either a session token or an API key. Session
// identities are upserted lazily so projects appear on first login.
func (service *metadataService) authorize(ctx context.Context,
	authorizationHeader, apiKeyHeader string) (caller, error) {

	if apiKeyHeader != "" {
		userId, err := service.validateApiKey(ctx, apiKeyHeader)
		if err != nil {
			return caller{}, huma.Error401Unauthorized(err.Error())
		}
		user, err := service.store.GetUser(ctx, userId)
		if err != nil {
			return caller{}, huma.Error401Unauthorized(err.Error())
		}
		return caller{UserId: user.Id, UserName: user.Name, Projects: user.Projects}, nil
	}

	if !strings.HasPrefix(authorizationHeader, "Bearer ") {
		return caller{}, huma.Error401Unauthorized("No session token or API key was supplied")
	}
	identity, err := auth.ValidateSessionToken(strings.TrimPrefix(authorizationHeader, "Bearer "))
	if err != nil {
		return caller{}, huma.Error401Unauthorized(err.Error())
	}

	projectIds := make([]string, 0, len(identity.Projects))
	for _, externalId := range identity.Projects {
		project, err := service.store.EnsureProject(ctx, externalId)
		if err != nil {
			return caller{}, apiError(err)
		}
		projectIds = append(projectIds, project.Id)
	}
	user, err := service.store.UpsertUser(ctx, identity.ExternalId, identity.Name, projectIds)
	if err != nil {
		return caller{}, apiError(err)
	}
	return caller{UserId: user.Id, UserName: user.Name, Projects: projectIds}, nil
}

// Validates a presented API key token: the embedded key id is decoded, the
// stored salted hash compared, and the result cached briefly.
func (service *metadataService) validateApiKey(ctx context.Context, token string) (string, error) {
	keyId, err := service.keyMinter.KeyId(token)
	if err != nil {
		return "", err
	}
	if userId, cached := service.keyCache.Get(keyId); cached {
		return userId, nil
	}
	key, err := service.store.GetApiKey(ctx, keyId)
	if err != nil {
		return "", auth.InvalidKeyError{}
	}
	if !auth.VerifyToken(token, key.Salt, key.Hash) {
		return "", auth.InvalidKeyError{}
	}
	service.keyCache.Put(keyId, key.UserId)
	return key.UserId, nil
}

// checks that the caller belongs to the given project
func (service *metadataService) checkProject(c caller, projectId string) error {
	for _, id := range c.Projects {
		if id == projectId {
			return nil
		}
	}
	return huma.Error403Forbidden(
		fmt.Sprintf("User %s is not a member of project %s", c.UserId, projectId))
}

type ServiceInfoOutput struct {
	Body ServiceInfoResponse `doc:"information about the service itself"`
}

// handler method for root (no authorization needed for this one)
func (service *metadataService) getRoot(ctx context.Context,
	input *struct{}) (*ServiceInfoOutput, error) {

	return &ServiceInfoOutput{
		Body: ServiceInfoResponse{
			Name:          service.Name,
			Version:       service.Version,
			Uptime:        int(service.uptime()),
			Documentation: "/docs",
		},
	}, nil
}

type HealthOutput struct {
	Body HealthResponse `doc:"the readiness of the service and its dependencies"`
}

// Handler method for the health endpoint, probing the database and every
// configured external service. Health responses never surface a 5xx; a
// broken dependency is reported in the body instead.
func (service *metadataService) getHealth(ctx context.Context,
	input *struct{}) (*HealthOutput, error) {

	probes := map[string]func(context.Context) error{
		"database": service.store.HealthCheck,
		"datacite": service.orchestrator.DataCiteHealth,
		"metax":    service.orchestrator.CatalogHealth,
		"rems":     service.orchestrator.AccessHealth,
		"admin":    service.orchestrator.AdminHealth,
	}
	response := HealthResponse{
		Status:   "Ok",
		Services: make(map[string]string, len(probes)),
	}
	for name, probe := range probes {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := probe(probeCtx); err != nil {
			response.Services[name] = "Down: " + err.Error()
			if name == "database" {
				response.Status = "Down"
			} else if response.Status == "Ok" {
				response.Status = "Degraded"
			}
		} else {
			response.Services[name] = "Ok"
		}
		cancel()
	}
	return &HealthOutput{Body: response}, nil
}

// returns the uptime for the service in seconds
func (service *metadataService) uptime() float64 {
	return time.Since(service.StartTime).Seconds()
}

// constructs a metadata submission service over the given repository
func NewMetadataService(store *repository.Store) (MetadataService, error) {
	keyMinter, err := auth.NewKeyMinter()
	if err != nil {
		return nil, err
	}

	service := &metadataService{
		Name:         "Metadata submission service",
		Version:      version,
		Port:         -1,
		store:        store,
		submissions:  submissions.NewService(store),
		objects:      objectsvc.NewService(store),
		orchestrator: publish.NewOrchestrator(store),
		keyMinter:    keyMinter,
		keyCache:     auth.NewKeyCache(keyCacheTTL),
	}

	// set up routing
	service.Router = mux.NewRouter()
	api := humamux.New(service.Router, huma.DefaultConfig(service.Name, service.Version))
	service.API = api
	huma.Get(api, "/", service.getRoot)
	huma.Get(api, "/health", service.getHealth)

	// API v1
	huma.Get(api, "/v1/schemas", service.getSchemas)
	huma.Get(api, "/v1/schemas/{schema}", service.getSchema)
	huma.Get(api, "/v1/workflows", service.getWorkflows)
	huma.Get(api, "/v1/workflows/{name}", service.getWorkflow)

	huma.Get(api, "/v1/objects", service.listSubmissionObjects)
	huma.Post(api, "/v1/objects/{schema}", service.createObjects)
	huma.Get(api, "/v1/objects/{schema}", service.listObjects)
	huma.Get(api, "/v1/objects/{schema}/{id}", service.getObject)
	huma.Put(api, "/v1/objects/{schema}/{id}", service.replaceObject)
	huma.Patch(api, "/v1/objects/{schema}/{id}", service.updateObject)
	huma.Delete(api, "/v1/objects/{schema}/{id}", service.deleteObject)

	huma.Post(api, "/v1/submissions", service.createSubmission)
	huma.Get(api, "/v1/submissions", service.listSubmissions)
	huma.Get(api, "/v1/submissions/{id}", service.getSubmission)
	huma.Put(api, "/v1/submissions/{id}", service.replaceSubmission)
	huma.Patch(api, "/v1/submissions/{id}", service.patchSubmission)
	huma.Delete(api, "/v1/submissions/{id}", service.deleteSubmission)
	huma.Post(api, "/v1/submissions/{id}/files", service.uploadManifest)
	huma.Patch(api, "/v1/publish/{id}", service.publishSubmission)

	huma.Get(api, "/v1/files", service.listFiles)
	huma.Patch(api, "/v1/files/{id}/ingest-status", service.updateFileStatus)
	huma.Get(api, "/v1/users/current", service.getCurrentUser)
	huma.Post(api, "/v1/api-keys", service.createApiKey)
	huma.Get(api, "/v1/api-keys", service.listApiKeys)
	huma.Delete(api, "/v1/api-keys/{name}", service.deleteApiKey)

	return service, nil
}

// starts the metadata submission service
func (service *metadataService) Start(port int) error {
	slog.Info(fmt.Sprintf("Starting %s on port %d...", service.Name, port))
	slog.Info(fmt.Sprintf("(Accepting up to %d connections)", config.Service.MaxConnections))

	service.StartTime = time.Now()

	// create a listener that limits the number of incoming connections
	service.Port = port
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return err
	}
	defer listener.Close()
	listener = netutil.LimitListener(listener, config.Service.MaxConnections)

	// resume any publishes interrupted by a crash
	recoveryCtx, cancel := context.WithTimeout(context.Background(),
		config.Service.PublishTimeout)
	defer cancel()
	if err := service.orchestrator.Recover(recoveryCtx); err != nil {
		slog.Error(fmt.Sprintf("Recovery scan failed: %s", err.Error()))
	}

	// sweep ingest statuses in the background until shutdown
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	service.stopSweep = stopSweep
	go service.runIngestSweep(sweepCtx)

	// start the server
	service.Server = &http.Server{
		Handler:     service.Router,
		ReadTimeout: config.Service.RequestTimeout,
	}
	err = service.Server.Serve(listener)

	// we don't report the server closing as an error
	if err != http.ErrServerClosed {
		return err
	}
	return nil
}

// gracefully shuts down the service without interrupting active connections
func (service *metadataService) Shutdown(ctx context.Context) error {
	if service.stopSweep != nil {
		service.stopSweep()
	}
	if service.Server != nil {
		return service.Server.Shutdown(ctx)
	}
	return nil
}

// closes down the service abruptly, freeing all resources
func (service *metadataService) Close() {
	if service.stopSweep != nil {
		service.stopSweep()
	}
	if service.Server != nil {
		service.Server.Close()
	}
}

// parses a YYYY-MM-DD query parameter into the inclusive instant range
// [00:00:00Z, 23:59:59Z]
func dateRange(start, end string) (time.Time, time.Time, error) {
	var from, to time.Time
	if start != "" {
		parsed, err := time.Parse("2006-01-02", start)
		if err != nil {
			return from, to, huma.Error400BadRequest(
				fmt.Sprintf("Invalid date %q (expected YYYY-MM-DD)", start))
		}
		from = parsed
	}
	if end != "" {
		parsed, err := time.Parse("2006-01-02", end)
		if err != nil {
			return from, to, huma.Error400BadRequest(
				fmt.Sprintf("Invalid date %q (expected YYYY-MM-DD)", end))
		}
		to = parsed.Add(24*time.Hour - time.Second)
	}
	return from, to, nil
}

// assembles an RFC 5988 Link header for a paginated listing
func linkHeader(baseURL, path string, page core.Page, totalPages int) string {
	link := func(number int, rel string) string {
		return fmt.Sprintf("<%s%s?page=%d&per_page=%d>; rel=%q",
			baseURL, path, number, page.Size, rel)
	}
	links := []string{link(1, "first")}
	if page.Number > 1 {
		links = append(links, link(page.Number-1, "prev"))
	}
	if page.Number < totalPages {
		links = append(links, link(page.Number+1, "next"))
	}
	if totalPages > 0 {
		links = append(links, link(totalPages, "last"))
	}
	return strings.Join(links, ", ")
}
