package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/cobaltstore/cobaltstore/internal/engine"
	storageerr "github.com/cobaltstore/cobaltstore/internal/errors"
	"github.com/cobaltstore/cobaltstore/internal/metrics"
	"github.com/cobaltstore/cobaltstore/internal/xmlutil"
)

// ContainerHandler contains handlers for container-level operations.
type ContainerHandler struct {
	engine   *engine.Engine
	endpoint string
}

// NewContainerHandler creates a new ContainerHandler backed by the given
// engine. endpoint is the service endpoint URL reported in listing bodies.
func NewContainerHandler(eng *engine.Engine, endpoint string) *ContainerHandler {
	return &ContainerHandler{engine: eng, endpoint: endpoint}
}

// ListContainers handles GET /?comp=list and returns all containers.
func (h *ContainerHandler) ListContainers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	maxResults, err := parseMaxResults(r)
	if err != nil {
		xmlutil.WriteErrorResponse(w, err)
		return
	}

	opts := engine.ListContainersOptions{
		Prefix:     q.Get("prefix"),
		Marker:     q.Get("marker"),
		MaxResults: maxResults,
	}
	result, err := h.engine.ListContainers(ctx, opts)
	if err != nil {
		xmlutil.WriteErrorResponse(w, err)
		return
	}

	resp := &xmlutil.ListContainersResponse{
		ServiceEndpoint: h.endpoint,
		Prefix:          opts.Prefix,
		Marker:          opts.Marker,
		MaxResults:      maxResults,
		NextMarker:      result.NextMarker,
	}
	for _, c := range result.Containers {
		resp.Containers = append(resp.Containers, xmlutil.Container{
			Name: c.Name,
			Properties: xmlutil.ContainerProperties{
				LastModified: xmlutil.FormatTimeHTTP(c.LastModified),
				ETag:         quoteETag(c.ETag),
				LeaseStatus:  string(c.LeaseStatus),
				LeaseState:   string(c.LeaseState),
			},
			Metadata: xmlutil.Metadata(c.Metadata),
		})
	}

	metrics.StorageOperationsTotal.WithLabelValues("ListContainers", "success").Inc()
	xmlutil.RenderListContainers(w, resp)
}

// CreateContainer handles PUT /{container}?restype=container.
func (h *ContainerHandler) CreateContainer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := extractContainerName(r)

	access := engine.PublicAccess(r.Header.Get("x-ms-blob-public-access"))
	switch access {
	case engine.PublicAccessPrivate, engine.PublicAccessBlob, engine.PublicAccessContainer:
	default:
		xmlutil.WriteErrorResponse(w, storageerr.ErrInvalidHeaderValue)
		return
	}

	c, err := h.engine.CreateContainer(ctx, name, parseMetadataHeaders(r), access)
	if err != nil {
		metrics.StorageOperationsTotal.WithLabelValues("CreateContainer", "error").Inc()
		xmlutil.WriteErrorResponse(w, err)
		return
	}

	slog.Debug("container created", "container", name)
	metrics.StorageOperationsTotal.WithLabelValues("CreateContainer", "success").Inc()
	w.Header().Set("ETag", quoteETag(c.ETag))
	w.Header().Set("Last-Modified", xmlutil.FormatTimeHTTP(c.LastModified))
	w.WriteHeader(http.StatusCreated)
}

// GetContainerProperties handles GET/HEAD /{container}?restype=container.
func (h *ContainerHandler) GetContainerProperties(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := extractContainerName(r)

	c, err := h.engine.GetContainerProperties(ctx, name)
	if err != nil {
		xmlutil.WriteErrorResponse(w, err)
		return
	}

	w.Header().Set("ETag", quoteETag(c.ETag))
	w.Header().Set("Last-Modified", xmlutil.FormatTimeHTTP(c.LastModified))
	w.Header().Set("x-ms-lease-status", string(c.LeaseStatus))
	w.Header().Set("x-ms-lease-state", string(c.LeaseState))
	if c.PublicAccess != engine.PublicAccessPrivate {
		w.Header().Set("x-ms-blob-public-access", string(c.PublicAccess))
	}
	writeMetadataHeaders(w, c.Metadata)
	w.WriteHeader(http.StatusOK)
}

// SetContainerMetadata handles PUT /{container}?restype=container&comp=metadata.
func (h *ContainerHandler) SetContainerMetadata(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := extractContainerName(r)
	leaseID := r.Header.Get("x-ms-lease-id")

	c, err := h.engine.SetContainerMetadata(ctx, name, parseMetadataHeaders(r), leaseID)
	if err != nil {
		xmlutil.WriteErrorResponse(w, err)
		return
	}

	w.Header().Set("ETag", quoteETag(c.ETag))
	w.Header().Set("Last-Modified", xmlutil.FormatTimeHTTP(c.LastModified))
	w.WriteHeader(http.StatusOK)
}

// DeleteContainer handles DELETE /{container}?restype=container.
func (h *ContainerHandler) DeleteContainer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := extractContainerName(r)
	leaseID := r.Header.Get("x-ms-lease-id")

	if err := h.engine.DeleteContainer(ctx, name, leaseID); err != nil {
		metrics.StorageOperationsTotal.WithLabelValues("DeleteContainer", "error").Inc()
		xmlutil.WriteErrorResponse(w, err)
		return
	}

	slog.Debug("container deleted", "container", name)
	metrics.StorageOperationsTotal.WithLabelValues("DeleteContainer", "success").Inc()
	w.WriteHeader(http.StatusAccepted)
}

// ContainerLease handles PUT /{container}?restype=container&comp=lease,
// dispatching on the x-ms-lease-action header.
func (h *ContainerHandler) ContainerLease(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := extractContainerName(r)
	leaseID := r.Header.Get("x-ms-lease-id")
	proposedID := r.Header.Get("x-ms-proposed-lease-id")

	switch r.Header.Get("x-ms-lease-action") {
	case "acquire":
		duration, ok, err := parseIntHeader(r, "x-ms-lease-duration")
		if err != nil {
			xmlutil.WriteErrorResponse(w, err)
			return
		}
		if !ok {
			duration = engine.InfiniteLeaseDuration
		}
		lease, err := h.engine.AcquireContainerLease(ctx, name, duration, proposedID)
		if err != nil {
			xmlutil.WriteErrorResponse(w, err)
			return
		}
		w.Header().Set("x-ms-lease-id", lease.ID)
		w.WriteHeader(http.StatusCreated)

	case "renew":
		lease, err := h.engine.RenewContainerLease(ctx, name, leaseID)
		if err != nil {
			xmlutil.WriteErrorResponse(w, err)
			return
		}
		w.Header().Set("x-ms-lease-id", lease.ID)
		w.WriteHeader(http.StatusOK)

	case "release":
		if err := h.engine.ReleaseContainerLease(ctx, name, leaseID); err != nil {
			xmlutil.WriteErrorResponse(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)

	case "break":
		period, _, err := parseIntHeader(r, "x-ms-lease-break-period")
		if err != nil {
			xmlutil.WriteErrorResponse(w, err)
			return
		}
		remaining, err := h.engine.BreakContainerLease(ctx, name, period)
		if err != nil {
			xmlutil.WriteErrorResponse(w, err)
			return
		}
		w.Header().Set("x-ms-lease-time", strconv.Itoa(remaining))
		w.WriteHeader(http.StatusAccepted)

	case "change":
		lease, err := h.engine.ChangeContainerLease(ctx, name, leaseID, proposedID)
		if err != nil {
			xmlutil.WriteErrorResponse(w, err)
			return
		}
		w.Header().Set("x-ms-lease-id", lease.ID)
		w.WriteHeader(http.StatusOK)

	default:
		xmlutil.WriteErrorResponse(w, storageerr.ErrInvalidHeaderValue)
	}
}

// ListBlobs handles GET /{container}?restype=container&comp=list.
func (h *ContainerHandler) ListBlobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := extractContainerName(r)
	q := r.URL.Query()

	maxResults, err := parseMaxResults(r)
	if err != nil {
		xmlutil.WriteErrorResponse(w, err)
		return
	}

	opts := engine.ListBlobsOptions{
		Prefix:           q.Get("prefix"),
		Marker:           q.Get("marker"),
		MaxResults:       maxResults,
		IncludeSnapshots: includesSnapshots(q.Get("include")),
	}
	result, err := h.engine.ListBlobs(ctx, name, opts)
	if err != nil {
		xmlutil.WriteErrorResponse(w, err)
		return
	}

	resp := &xmlutil.ListBlobsResponse{
		ServiceEndpoint: h.endpoint,
		ContainerName:   name,
		Prefix:          opts.Prefix,
		Marker:          opts.Marker,
		MaxResults:      maxResults,
		NextMarker:      result.NextMarker,
	}
	for _, b := range result.Blobs {
		resp.Blobs = append(resp.Blobs, xmlutil.Blob{
			Name:     b.Name,
			Snapshot: b.Snapshot,
			Properties: xmlutil.BlobProperties{
				LastModified:  xmlutil.FormatTimeHTTP(b.LastModified),
				ETag:          quoteETag(b.ETag),
				ContentLength: b.ContentLength,
				ContentType:   b.ContentType,
				BlobType:      b.BlobType,
				AccessTier:    b.AccessTier,
				LeaseStatus:   string(b.LeaseStatus),
				LeaseState:    string(b.LeaseState),
			},
			Metadata: xmlutil.Metadata(b.Metadata),
		})
	}

	metrics.StorageOperationsTotal.WithLabelValues("ListBlobs", "success").Inc()
	xmlutil.RenderListBlobs(w, resp)
}

// includesSnapshots reports whether the include query parameter asks for
// snapshots. The parameter is a comma-separated list.
func includesSnapshots(include string) bool {
	for _, item := range strings.Split(include, ",") {
		if strings.TrimSpace(item) == "snapshots" {
			return true
		}
	}
	return false
}
