// Package handlers implements HTTP request handlers for the blob service API.
package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cobaltstore/cobaltstore/internal/engine"
	storageerr "github.com/cobaltstore/cobaltstore/internal/errors"
	"github.com/cobaltstore/cobaltstore/internal/xmlutil"
)

// metadataHeaderPrefix marks request/response headers carrying user metadata.
const metadataHeaderPrefix = "x-ms-meta-"

// maxBodySize caps request bodies at 256 MB, mirroring the block blob
// single-upload limit.
const maxBodySize = 256 << 20

// extractContainerName extracts the container name from the URL path.
func extractContainerName(r *http.Request) string {
	path := strings.TrimPrefix(r.URL.Path, "/")
	if idx := strings.IndexByte(path, '/'); idx >= 0 {
		return path[:idx]
	}
	return path
}

// extractBlobName extracts the blob name from the URL path. Blob names may
// contain slashes; everything after the container segment belongs to the blob.
func extractBlobName(r *http.Request) string {
	path := strings.TrimPrefix(r.URL.Path, "/")
	if idx := strings.IndexByte(path, '/'); idx >= 0 {
		return path[idx+1:]
	}
	return ""
}

// parseMetadataHeaders collects x-ms-meta-* request headers into a metadata
// map with lowercase keys. Returns nil when no metadata headers are present.
func parseMetadataHeaders(r *http.Request) map[string]string {
	var meta map[string]string
	for name, values := range r.Header {
		lower := strings.ToLower(name)
		if !strings.HasPrefix(lower, metadataHeaderPrefix) || len(values) == 0 {
			continue
		}
		if meta == nil {
			meta = make(map[string]string)
		}
		meta[strings.TrimPrefix(lower, metadataHeaderPrefix)] = values[0]
	}
	return meta
}

// writeMetadataHeaders writes a metadata map as x-ms-meta-* response headers.
func writeMetadataHeaders(w http.ResponseWriter, meta map[string]string) {
	for k, v := range meta {
		w.Header().Set(metadataHeaderPrefix+k, v)
	}
}

// parseConditionalHeaders extracts the four conditional request headers.
// ETag values arrive quoted on the wire and are stored unquoted.
func parseConditionalHeaders(r *http.Request) engine.ConditionalHeaders {
	h := engine.ConditionalHeaders{
		IfMatch:     unquoteETag(r.Header.Get("If-Match")),
		IfNoneMatch: unquoteETag(r.Header.Get("If-None-Match")),
	}
	if v := r.Header.Get("If-Modified-Since"); v != "" {
		if t, err := http.ParseTime(v); err == nil {
			h.IfModifiedSince = &t
		}
	}
	if v := r.Header.Get("If-Unmodified-Since"); v != "" {
		if t, err := http.ParseTime(v); err == nil {
			h.IfUnmodifiedSince = &t
		}
	}
	return h
}

// quoteETag wraps a stored etag in the double quotes HTTP requires.
func quoteETag(etag string) string {
	return `"` + etag + `"`
}

// unquoteETag strips surrounding double quotes from a wire etag.
func unquoteETag(etag string) string {
	return strings.Trim(etag, `"`)
}

// writeBlobPropertyHeaders writes the standard property headers shared by
// get/head blob responses.
func writeBlobPropertyHeaders(w http.ResponseWriter, b *engine.Blob) {
	w.Header().Set("ETag", quoteETag(b.ETag))
	w.Header().Set("Last-Modified", xmlutil.FormatTimeHTTP(b.LastModified))
	w.Header().Set("Content-Type", b.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(b.ContentLength, 10))
	w.Header().Set("x-ms-blob-type", b.BlobType)
	w.Header().Set("x-ms-access-tier", b.AccessTier)
	w.Header().Set("x-ms-lease-status", string(b.LeaseStatus))
	w.Header().Set("x-ms-lease-state", string(b.LeaseState))
	if b.ContentEncoding != "" {
		w.Header().Set("Content-Encoding", b.ContentEncoding)
	}
	if b.ContentLanguage != "" {
		w.Header().Set("Content-Language", b.ContentLanguage)
	}
	if b.CacheControl != "" {
		w.Header().Set("Cache-Control", b.CacheControl)
	}
	if b.ContentDisposition != "" {
		w.Header().Set("Content-Disposition", b.ContentDisposition)
	}
	writeMetadataHeaders(w, b.Metadata)
}

// parseIntHeader parses a required integer header, returning ok=false when
// absent and an error only when present but malformed.
func parseIntHeader(r *http.Request, name string) (int, bool, error) {
	v := r.Header.Get(name)
	if v == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, storageerr.ErrInvalidHeaderValue
	}
	return n, true, nil
}

// parseMaxResults parses the maxresults query parameter, 0 when absent.
func parseMaxResults(r *http.Request) (int, error) {
	v := r.URL.Query().Get("maxresults")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, storageerr.ErrInvalidQueryParameter
	}
	return n, nil
}

// blobHTTPHeaders extracts the x-ms-blob-* content header overrides, falling
// back to the standard Content-Type header for uploads.
func blobHTTPHeaders(r *http.Request) engine.BlobHTTPHeaders {
	h := engine.BlobHTTPHeaders{
		ContentType:        r.Header.Get("x-ms-blob-content-type"),
		ContentEncoding:    r.Header.Get("x-ms-blob-content-encoding"),
		ContentLanguage:    r.Header.Get("x-ms-blob-content-language"),
		CacheControl:       r.Header.Get("x-ms-blob-cache-control"),
		ContentDisposition: r.Header.Get("x-ms-blob-content-disposition"),
	}
	if h.ContentType == "" {
		h.ContentType = r.Header.Get("Content-Type")
	}
	return h
}

// formatLastModified is a shorthand for the RFC1123 Last-Modified value.
func formatLastModified(t time.Time) string {
	return xmlutil.FormatTimeHTTP(t)
}
