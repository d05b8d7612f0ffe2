package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cobaltstore/cobaltstore/internal/engine"
	storageerr "github.com/cobaltstore/cobaltstore/internal/errors"
	"github.com/cobaltstore/cobaltstore/internal/metrics"
	"github.com/cobaltstore/cobaltstore/internal/xmlutil"
)

// BlobHandler contains handlers for blob-level operations.
type BlobHandler struct {
	engine *engine.Engine
}

// NewBlobHandler creates a new BlobHandler backed by the given engine.
func NewBlobHandler(eng *engine.Engine) *BlobHandler {
	return &BlobHandler{engine: eng}
}

// PutBlob handles PUT /{container}/{blob} without a comp parameter: a full
// upload that creates or replaces the base blob.
func (h *BlobHandler) PutBlob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	container := extractContainerName(r)
	blob := extractBlobName(r)

	content, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		xmlutil.WriteErrorResponse(w, storageerr.ErrInternal)
		return
	}

	b, err := h.engine.PutBlob(ctx, container, blob, engine.PutBlobOptions{
		Content:    content,
		Headers:    blobHTTPHeaders(r),
		Metadata:   parseMetadataHeaders(r),
		LeaseID:    r.Header.Get("x-ms-lease-id"),
		Conditions: parseConditionalHeaders(r),
	})
	if err != nil {
		metrics.StorageOperationsTotal.WithLabelValues("PutBlob", "error").Inc()
		xmlutil.WriteErrorResponse(w, err)
		return
	}

	slog.Debug("blob uploaded", "container", container, "blob", blob, "size", len(content))
	metrics.StorageOperationsTotal.WithLabelValues("PutBlob", "success").Inc()
	w.Header().Set("ETag", quoteETag(b.ETag))
	w.Header().Set("Last-Modified", formatLastModified(b.LastModified))
	w.WriteHeader(http.StatusCreated)
}

// GetBlob handles GET /{container}/{blob}, optionally with a snapshot query
// parameter selecting an immutable snapshot.
func (h *BlobHandler) GetBlob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	container := extractContainerName(r)
	blob := extractBlobName(r)
	snapshot := r.URL.Query().Get("snapshot")

	b, err := h.engine.GetBlob(ctx, container, blob, snapshot, parseConditionalHeaders(r))
	if err != nil {
		xmlutil.WriteErrorResponse(w, err)
		return
	}

	writeBlobPropertyHeaders(w, b)
	if snapshot != "" {
		w.Header().Set("x-ms-snapshot", b.Snapshot)
	}
	metrics.StorageOperationsTotal.WithLabelValues("GetBlob", "success").Inc()
	metrics.BytesSentTotal.Add(float64(len(b.Content)))
	w.WriteHeader(http.StatusOK)
	w.Write(b.Content)
}

// HeadBlob handles HEAD /{container}/{blob} and returns properties and
// metadata as headers with no body.
func (h *BlobHandler) HeadBlob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	container := extractContainerName(r)
	blob := extractBlobName(r)
	snapshot := r.URL.Query().Get("snapshot")

	b, err := h.engine.GetBlobProperties(ctx, container, blob, snapshot, parseConditionalHeaders(r))
	if err != nil {
		// HEAD responses cannot carry an error body.
		serr, ok := err.(*storageerr.StorageError)
		if !ok {
			serr = storageerr.ErrInternal
		}
		w.WriteHeader(serr.HTTPStatus)
		return
	}

	writeBlobPropertyHeaders(w, b)
	w.WriteHeader(http.StatusOK)
}

// SetBlobMetadata handles PUT /{container}/{blob}?comp=metadata.
func (h *BlobHandler) SetBlobMetadata(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	container := extractContainerName(r)
	blob := extractBlobName(r)

	b, err := h.engine.SetBlobMetadata(ctx, container, blob, parseMetadataHeaders(r),
		r.Header.Get("x-ms-lease-id"), parseConditionalHeaders(r))
	if err != nil {
		xmlutil.WriteErrorResponse(w, err)
		return
	}

	w.Header().Set("ETag", quoteETag(b.ETag))
	w.Header().Set("Last-Modified", formatLastModified(b.LastModified))
	w.WriteHeader(http.StatusOK)
}

// SetBlobProperties handles PUT /{container}/{blob}?comp=properties.
func (h *BlobHandler) SetBlobProperties(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	container := extractContainerName(r)
	blob := extractBlobName(r)

	b, err := h.engine.SetBlobProperties(ctx, container, blob, blobHTTPHeaders(r),
		r.Header.Get("x-ms-lease-id"), parseConditionalHeaders(r))
	if err != nil {
		xmlutil.WriteErrorResponse(w, err)
		return
	}

	w.Header().Set("ETag", quoteETag(b.ETag))
	w.Header().Set("Last-Modified", formatLastModified(b.LastModified))
	w.WriteHeader(http.StatusOK)
}

// DeleteBlob handles DELETE /{container}/{blob}. With a snapshot query
// parameter it deletes that single snapshot; otherwise the
// x-ms-delete-snapshots header selects how snapshots are handled.
func (h *BlobHandler) DeleteBlob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	container := extractContainerName(r)
	blob := extractBlobName(r)

	if snapshot := r.URL.Query().Get("snapshot"); snapshot != "" {
		if err := h.engine.DeleteSnapshot(ctx, container, blob, snapshot); err != nil {
			xmlutil.WriteErrorResponse(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	mode := engine.DeleteSnapshotsMode(r.Header.Get("x-ms-delete-snapshots"))
	err := h.engine.DeleteBlob(ctx, container, blob, engine.DeleteBlobOptions{
		LeaseID:         r.Header.Get("x-ms-lease-id"),
		DeleteSnapshots: mode,
		Conditions:      parseConditionalHeaders(r),
	})
	if err != nil {
		metrics.StorageOperationsTotal.WithLabelValues("DeleteBlob", "error").Inc()
		xmlutil.WriteErrorResponse(w, err)
		return
	}

	slog.Debug("blob deleted", "container", container, "blob", blob, "snapshots", string(mode))
	metrics.StorageOperationsTotal.WithLabelValues("DeleteBlob", "success").Inc()
	w.WriteHeader(http.StatusAccepted)
}

// CreateSnapshot handles PUT /{container}/{blob}?comp=snapshot.
func (h *BlobHandler) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	container := extractContainerName(r)
	blob := extractBlobName(r)

	snap, err := h.engine.CreateSnapshot(ctx, container, blob, parseMetadataHeaders(r))
	if err != nil {
		metrics.StorageOperationsTotal.WithLabelValues("CreateSnapshot", "error").Inc()
		xmlutil.WriteErrorResponse(w, err)
		return
	}

	metrics.StorageOperationsTotal.WithLabelValues("CreateSnapshot", "success").Inc()
	w.Header().Set("x-ms-snapshot", snap.Snapshot)
	w.Header().Set("ETag", quoteETag(snap.ETag))
	w.Header().Set("Last-Modified", formatLastModified(snap.LastModified))
	w.WriteHeader(http.StatusCreated)
}

// BlobLease handles PUT /{container}/{blob}?comp=lease, dispatching on the
// x-ms-lease-action header.
func (h *BlobHandler) BlobLease(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	container := extractContainerName(r)
	blob := extractBlobName(r)
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
		lease, err := h.engine.AcquireBlobLease(ctx, container, blob, duration, proposedID)
		if err != nil {
			xmlutil.WriteErrorResponse(w, err)
			return
		}
		w.Header().Set("x-ms-lease-id", lease.ID)
		w.WriteHeader(http.StatusCreated)

	case "renew":
		lease, err := h.engine.RenewBlobLease(ctx, container, blob, leaseID)
		if err != nil {
			xmlutil.WriteErrorResponse(w, err)
			return
		}
		w.Header().Set("x-ms-lease-id", lease.ID)
		w.WriteHeader(http.StatusOK)

	case "release":
		if err := h.engine.ReleaseBlobLease(ctx, container, blob, leaseID); err != nil {
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
		remaining, err := h.engine.BreakBlobLease(ctx, container, blob, period)
		if err != nil {
			xmlutil.WriteErrorResponse(w, err)
			return
		}
		w.Header().Set("x-ms-lease-time", strconv.Itoa(remaining))
		w.WriteHeader(http.StatusAccepted)

	case "change":
		lease, err := h.engine.ChangeBlobLease(ctx, container, blob, leaseID, proposedID)
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

// PutBlock handles PUT /{container}/{blob}?comp=block&blockid=... and stages
// one block without affecting the committed content.
func (h *BlobHandler) PutBlock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	container := extractContainerName(r)
	blob := extractBlobName(r)
	blockID := r.URL.Query().Get("blockid")

	content, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		xmlutil.WriteErrorResponse(w, storageerr.ErrInternal)
		return
	}
	metrics.BytesReceivedTotal.Add(float64(len(content)))

	if err := h.engine.PutBlock(ctx, container, blob, blockID, content, r.Header.Get("x-ms-lease-id")); err != nil {
		metrics.StorageOperationsTotal.WithLabelValues("PutBlock", "error").Inc()
		xmlutil.WriteErrorResponse(w, err)
		return
	}

	metrics.StorageOperationsTotal.WithLabelValues("PutBlock", "success").Inc()
	w.WriteHeader(http.StatusCreated)
}

// PutBlockList handles PUT /{container}/{blob}?comp=blocklist and commits
// staged blocks as the blob's new content.
func (h *BlobHandler) PutBlockList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	container := extractContainerName(r)
	blob := extractBlobName(r)

	ids, err := xmlutil.ParseBlockList(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		xmlutil.WriteErrorResponse(w, storageerr.ErrInvalidXMLDocument)
		return
	}

	b, err := h.engine.PutBlockList(ctx, container, blob, ids, engine.PutBlockListOptions{
		Headers:    blobHTTPHeaders(r),
		Metadata:   parseMetadataHeaders(r),
		LeaseID:    r.Header.Get("x-ms-lease-id"),
		Conditions: parseConditionalHeaders(r),
	})
	if err != nil {
		metrics.StorageOperationsTotal.WithLabelValues("PutBlockList", "error").Inc()
		xmlutil.WriteErrorResponse(w, err)
		return
	}

	slog.Debug("block list committed", "container", container, "blob", blob, "blocks", len(ids))
	metrics.StorageOperationsTotal.WithLabelValues("PutBlockList", "success").Inc()
	w.Header().Set("ETag", quoteETag(b.ETag))
	w.Header().Set("Last-Modified", formatLastModified(b.LastModified))
	w.WriteHeader(http.StatusCreated)
}

// GetBlockList handles GET /{container}/{blob}?comp=blocklist.
func (h *BlobHandler) GetBlockList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	container := extractContainerName(r)
	blob := extractBlobName(r)

	listType := engine.BlockListType(r.URL.Query().Get("blocklisttype"))
	switch listType {
	case "":
		listType = engine.BlockListCommitted
	case engine.BlockListCommitted, engine.BlockListUncommitted, engine.BlockListAll:
	default:
		xmlutil.WriteErrorResponse(w, storageerr.ErrInvalidQueryParameter)
		return
	}

	list, err := h.engine.GetBlockList(ctx, container, blob, listType)
	if err != nil {
		xmlutil.WriteErrorResponse(w, err)
		return
	}

	resp := &xmlutil.BlockListResponse{}
	for _, blk := range list.Committed {
		resp.CommittedBlocks = append(resp.CommittedBlocks, xmlutil.Block{Name: blk.ID, Size: blk.Size})
	}
	for _, blk := range list.Uncommitted {
		resp.UncommittedBlocks = append(resp.UncommittedBlocks, xmlutil.Block{Name: blk.ID, Size: blk.Size})
	}
	xmlutil.RenderBlockList(w, resp)
}
