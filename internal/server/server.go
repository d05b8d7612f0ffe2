// Package server implements the CobaltStore HTTP server and blob-service
// route multiplexer.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cobaltstore/cobaltstore/internal/config"
	"github.com/cobaltstore/cobaltstore/internal/engine"
	storageerr "github.com/cobaltstore/cobaltstore/internal/errors"
	"github.com/cobaltstore/cobaltstore/internal/handlers"
	"github.com/cobaltstore/cobaltstore/internal/xmlutil"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the CobaltStore HTTP server. It routes incoming requests to the
// appropriate blob-service handler based on the request method, path, and
// query parameters.
type Server struct {
	cfg        *config.Config
	router     chi.Router
	api        huma.API
	engine     *engine.Engine
	container  *handlers.ContainerHandler
	blob       *handlers.BlobHandler
	httpServer *http.Server
}

// HealthBody is the JSON body returned by the health check endpoint.
type HealthBody struct {
	Status string `json:"status" example:"ok" doc:"Health status"`
}

// HealthOutput is the Huma output struct for the health check endpoint.
type HealthOutput struct {
	Body HealthBody
}

// New creates a new Server with the given configuration and engine, and
// wires up all blob-service routes on the Chi router with Huma API.
func New(cfg *config.Config, eng *engine.Engine) (*Server, error) {
	router := chi.NewMux()

	humaConfig := huma.DefaultConfig("CobaltStore Blob API", "1.0.0")
	humaConfig.DocsPath = "/docs"
	humaConfig.OpenAPIPath = "/openapi"
	api := humachi.New(router, humaConfig)

	endpoint := fmt.Sprintf("http://%s:%d/", cfg.Server.Host, cfg.Server.Port)

	s := &Server{
		cfg:       cfg,
		router:    router,
		api:       api,
		engine:    eng,
		container: handlers.NewContainerHandler(eng, endpoint),
		blob:      handlers.NewBlobHandler(eng),
	}

	s.registerRoutes()
	return s, nil
}

// ListenAndServe starts the HTTP server on the given address.
// Middleware chain: metricsMiddleware -> commonHeaders -> metadataHeaderMiddleware -> router.
func (s *Server) ListenAndServe(addr string) error {
	var handler http.Handler = s.router
	// Rewrite x-ms-meta-* headers to lowercase (must be innermost wrapper).
	handler = metadataHeaderMiddleware(handler)
	handler = commonHeaders(handler)
	handler = metricsMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: handler,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server, waiting for in-flight
// requests to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the fully wrapped HTTP handler. Used by tests.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.router
	handler = metadataHeaderMiddleware(handler)
	handler = commonHeaders(handler)
	handler = metricsMiddleware(handler)
	return handler
}

// registerRoutes configures all routes on the Chi router.
// Huma routes (/health, /docs, /openapi.json) and /metrics are registered
// first; the blob-service catch-all /* is registered last. Chi matches more
// specific routes first.
func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the CobaltStore server.",
		Tags:        []string{"System"},
	}, func(ctx context.Context, input *struct{}) (*HealthOutput, error) {
		return &HealthOutput{Body: HealthBody{Status: "ok"}}, nil
	})

	// Huma only registers one method per operation.
	s.router.Head("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
	})

	s.router.Handle("/metrics", promhttp.Handler())

	s.router.HandleFunc("/*", s.dispatch)
}

// parsePath extracts container and blob names from the request path.
// Returns ("", "") for root "/", ("container", "") for "/{container}",
// and ("container", "dir/blob") for "/{container}/{blob...}".
func parsePath(path string) (container, blob string) {
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	if path == "" {
		return "", ""
	}
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			return path[:i], path[i+1:]
		}
	}
	return path, ""
}

// dispatch is the main request dispatcher. It parses the path to extract
// container and blob names, then routes by HTTP method and the restype/comp
// query parameters.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	container, blob := parsePath(r.URL.Path)
	q := r.URL.Query()

	// Account-level operations (no container in path).
	if container == "" {
		if r.Method == http.MethodGet && q.Get("comp") == "list" {
			s.container.ListContainers(w, r)
			return
		}
		xmlutil.WriteErrorResponse(w, storageerr.ErrInvalidQueryParameter)
		return
	}

	// Blob-level operations (container + blob in path).
	if blob != "" {
		s.dispatchBlob(w, r, q.Get("comp"))
		return
	}

	// Container-level operations require restype=container, except the
	// account listing form GET /{container}?comp=list.
	if q.Get("restype") != "container" {
		xmlutil.WriteErrorResponse(w, storageerr.ErrInvalidQueryParameter)
		return
	}

	switch r.Method {
	case http.MethodPut:
		switch q.Get("comp") {
		case "":
			s.container.CreateContainer(w, r)
		case "metadata":
			s.container.SetContainerMetadata(w, r)
		case "lease":
			s.container.ContainerLease(w, r)
		default:
			xmlutil.WriteErrorResponse(w, storageerr.ErrInvalidQueryParameter)
		}
	case http.MethodGet:
		if q.Get("comp") == "list" {
			s.container.ListBlobs(w, r)
		} else {
			s.container.GetContainerProperties(w, r)
		}
	case http.MethodHead:
		s.container.GetContainerProperties(w, r)
	case http.MethodDelete:
		s.container.DeleteContainer(w, r)
	default:
		xmlutil.WriteErrorResponse(w, storageerr.ErrUnsupportedHTTPVerb)
	}
}

// dispatchBlob routes blob-level requests on method and comp.
func (s *Server) dispatchBlob(w http.ResponseWriter, r *http.Request, comp string) {
	switch r.Method {
	case http.MethodPut:
		switch comp {
		case "":
			s.blob.PutBlob(w, r)
		case "block":
			s.blob.PutBlock(w, r)
		case "blocklist":
			s.blob.PutBlockList(w, r)
		case "metadata":
			s.blob.SetBlobMetadata(w, r)
		case "properties":
			s.blob.SetBlobProperties(w, r)
		case "lease":
			s.blob.BlobLease(w, r)
		case "snapshot":
			s.blob.CreateSnapshot(w, r)
		default:
			xmlutil.WriteErrorResponse(w, storageerr.ErrInvalidQueryParameter)
		}
	case http.MethodGet:
		if comp == "blocklist" {
			s.blob.GetBlockList(w, r)
		} else {
			s.blob.GetBlob(w, r)
		}
	case http.MethodHead:
		s.blob.HeadBlob(w, r)
	case http.MethodDelete:
		s.blob.DeleteBlob(w, r)
	default:
		xmlutil.WriteErrorResponse(w, storageerr.ErrUnsupportedHTTPVerb)
	}
}
