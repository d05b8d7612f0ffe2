package engine

import (
	"context"
	"sort"
	"strings"

	storageerr "github.com/cobaltstore/cobaltstore/internal/errors"
	"github.com/cobaltstore/cobaltstore/internal/uid"
)

// BlobHTTPHeaders carries the standard content headers stored with a blob.
type BlobHTTPHeaders struct {
	ContentType        string
	ContentEncoding    string
	ContentLanguage    string
	CacheControl       string
	ContentDisposition string
}

// PutBlobOptions specifies the content and settings for PutBlob.
type PutBlobOptions struct {
	Content    []byte
	Headers    BlobHTTPHeaders
	Metadata   map[string]string
	LeaseID    string
	Conditions ConditionalHeaders
}

// conditionErr maps a CheckConditions outcome to an error, or nil when the
// conditions are met.
func conditionErr(status int) error {
	switch status {
	case ConditionNotModified:
		return storageerr.ErrNotModified
	case ConditionFailed:
		return storageerr.ErrConditionNotMet
	default:
		return nil
	}
}

// PutBlob creates or fully replaces the base blob. Any staged uncommitted
// blocks and any previously committed block list are discarded; snapshots of
// the blob are untouched.
func (e *Engine) PutBlob(ctx context.Context, container, name string, opts PutBlobOptions) (*Blob, error) {
	if !ValidBlobName(name) {
		return nil, storageerr.ErrInvalidBlobName
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.container(container); err != nil {
		return nil, err
	}

	now := e.now()
	key := BlobKey{Container: container, Blob: name}
	existing, exists := e.blobs[key]
	if exists {
		if err := existing.lease.validateWrite(now, opts.LeaseID); err != nil {
			return nil, err
		}
		if err := conditionErr(CheckConditions(opts.Conditions, existing.ETag, existing.LastModified)); err != nil {
			return nil, err
		}
	}

	content := make([]byte, len(opts.Content))
	copy(content, opts.Content)

	contentType := opts.Headers.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	b := &Blob{
		Name:               name,
		Container:          container,
		Content:            content,
		ContentLength:      int64(len(content)),
		ContentType:        contentType,
		ContentEncoding:    opts.Headers.ContentEncoding,
		ContentLanguage:    opts.Headers.ContentLanguage,
		CacheControl:       opts.Headers.CacheControl,
		ContentDisposition: opts.Headers.ContentDisposition,
		BlobType:           "BlockBlob",
		AccessTier:         "Hot",
		ETag:               uid.NewETag(),
		LastModified:       now,
		Metadata:           copyMetadata(opts.Metadata),
	}
	if exists {
		// The lease survives a full overwrite of the content.
		b.lease = existing.lease
	}
	e.blobs[key] = b
	return b.view(now, false), nil
}

// GetBlob returns the base blob including its content. When snapshot is
// non-empty the named snapshot is returned instead.
func (e *Engine) GetBlob(ctx context.Context, container, name, snapshot string, conditions ConditionalHeaders) (*Blob, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.lookupBlob(container, name, snapshot)
	if err != nil {
		return nil, err
	}
	if err := conditionErr(CheckConditions(conditions, b.ETag, b.LastModified)); err != nil {
		return nil, err
	}
	return b.view(e.now(), true), nil
}

// GetBlobProperties returns the blob's properties and metadata without
// content.
func (e *Engine) GetBlobProperties(ctx context.Context, container, name, snapshot string, conditions ConditionalHeaders) (*Blob, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.lookupBlob(container, name, snapshot)
	if err != nil {
		return nil, err
	}
	if err := conditionErr(CheckConditions(conditions, b.ETag, b.LastModified)); err != nil {
		return nil, err
	}
	return b.view(e.now(), false), nil
}

// lookupBlob resolves a base blob or snapshot record. Caller must hold e.mu.
// A snapshot can outlive its base blob, so snapshot lookups do not require
// the base to exist.
func (e *Engine) lookupBlob(container, name, snapshot string) (*Blob, error) {
	if _, err := e.container(container); err != nil {
		return nil, err
	}
	b, ok := e.blobs[BlobKey{Container: container, Blob: name, Snapshot: snapshot}]
	if !ok {
		if snapshot != "" {
			return nil, storageerr.ErrSnapshotNotFound
		}
		return nil, storageerr.ErrBlobNotFound
	}
	return b, nil
}

// SetBlobMetadata replaces the base blob's metadata and assigns a new etag.
// Snapshots are immutable and cannot be targeted.
func (e *Engine) SetBlobMetadata(ctx context.Context, container, name string, metadata map[string]string, leaseID string, conditions ConditionalHeaders) (*Blob, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.baseBlob(container, name)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if err := b.lease.validateWrite(now, leaseID); err != nil {
		return nil, err
	}
	if err := conditionErr(CheckConditions(conditions, b.ETag, b.LastModified)); err != nil {
		return nil, err
	}

	b.Metadata = copyMetadata(metadata)
	b.ETag = uid.NewETag()
	b.LastModified = now
	return b.view(now, false), nil
}

// SetBlobProperties replaces the base blob's content headers and assigns a
// new etag. Empty fields clear the stored value.
func (e *Engine) SetBlobProperties(ctx context.Context, container, name string, headers BlobHTTPHeaders, leaseID string, conditions ConditionalHeaders) (*Blob, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.baseBlob(container, name)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if err := b.lease.validateWrite(now, leaseID); err != nil {
		return nil, err
	}
	if err := conditionErr(CheckConditions(conditions, b.ETag, b.LastModified)); err != nil {
		return nil, err
	}

	b.ContentType = headers.ContentType
	if b.ContentType == "" {
		b.ContentType = "application/octet-stream"
	}
	b.ContentEncoding = headers.ContentEncoding
	b.ContentLanguage = headers.ContentLanguage
	b.CacheControl = headers.CacheControl
	b.ContentDisposition = headers.ContentDisposition
	b.ETag = uid.NewETag()
	b.LastModified = now
	return b.view(now, false), nil
}

// DeleteSnapshotsMode selects how DeleteBlob treats snapshots.
type DeleteSnapshotsMode string

const (
	// DeleteSnapshotsNone deletes only the base blob. Existing snapshots
	// survive as orphans and remain individually addressable.
	DeleteSnapshotsNone DeleteSnapshotsMode = ""
	// DeleteSnapshotsInclude deletes the base blob and all its snapshots.
	DeleteSnapshotsInclude DeleteSnapshotsMode = "include"
	// DeleteSnapshotsOnly deletes all snapshots and keeps the base blob.
	DeleteSnapshotsOnly DeleteSnapshotsMode = "only"
)

// DeleteBlobOptions specifies lease and snapshot handling for DeleteBlob.
type DeleteBlobOptions struct {
	LeaseID         string
	DeleteSnapshots DeleteSnapshotsMode
	Conditions      ConditionalHeaders
}

// DeleteBlob deletes the base blob, and depending on opts.DeleteSnapshots,
// its snapshots.
func (e *Engine) DeleteBlob(ctx context.Context, container, name string, opts DeleteBlobOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.baseBlob(container, name)
	if err != nil {
		return err
	}
	now := e.now()
	if err := b.lease.validateWrite(now, opts.LeaseID); err != nil {
		return err
	}
	if err := conditionErr(CheckConditions(opts.Conditions, b.ETag, b.LastModified)); err != nil {
		return err
	}

	baseKey := BlobKey{Container: container, Blob: name}
	switch opts.DeleteSnapshots {
	case DeleteSnapshotsNone:
		delete(e.blobs, baseKey)
	case DeleteSnapshotsInclude:
		for key := range e.blobs {
			if key.Container == container && key.Blob == name {
				delete(e.blobs, key)
			}
		}
	case DeleteSnapshotsOnly:
		for key := range e.blobs {
			if key.Container == container && key.Blob == name && key.Snapshot != "" {
				delete(e.blobs, key)
			}
		}
	default:
		return storageerr.ErrInvalidHeaderValue
	}
	return nil
}

// ListBlobsOptions specifies filtering and pagination for ListBlobs.
type ListBlobsOptions struct {
	Prefix           string
	Marker           string
	MaxResults       int
	IncludeSnapshots bool
}

// ListBlobsResult holds one page of blobs sorted by name, each base blob
// followed by its snapshots in ascending snapshot-ID order when snapshots
// are included.
type ListBlobsResult struct {
	Blobs      []*Blob
	NextMarker string
}

// ListBlobs lists the blobs of a container in lexicographic name order.
// When snapshots are included a blob and its snapshots form one group, and a
// page never splits a group.
func (e *Engine) ListBlobs(ctx context.Context, container string, opts ListBlobsOptions) (*ListBlobsResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.container(container); err != nil {
		return nil, err
	}

	maxResults := opts.MaxResults
	if maxResults <= 0 || maxResults > maxListResults {
		maxResults = maxListResults
	}

	// Group records by blob name so base and snapshots stay together.
	groups := make(map[string][]BlobKey)
	for key := range e.blobs {
		if key.Container != container {
			continue
		}
		if key.Snapshot != "" && !opts.IncludeSnapshots {
			continue
		}
		if opts.Prefix != "" && !strings.HasPrefix(key.Blob, opts.Prefix) {
			continue
		}
		if opts.Marker != "" && key.Blob <= opts.Marker {
			continue
		}
		groups[key.Blob] = append(groups[key.Blob], key)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	now := e.now()
	result := &ListBlobsResult{}
	count := 0
	for i, name := range names {
		keys := groups[name]
		if count+len(keys) > maxResults && count > 0 {
			result.NextMarker = names[i-1]
			return result, nil
		}
		// Base blob first, then snapshots ascending. Snapshot IDs are
		// zero-padded UTC timestamps, so lexicographic order is
		// chronological.
		sort.Slice(keys, func(a, b int) bool {
			return keys[a].Snapshot < keys[b].Snapshot
		})
		for _, key := range keys {
			result.Blobs = append(result.Blobs, e.blobs[key].view(now, false))
		}
		count += len(keys)
		if count >= maxResults && i < len(names)-1 {
			result.NextMarker = name
			return result, nil
		}
	}
	return result, nil
}

// AcquireBlobLease acquires a lease on the base blob.
func (e *Engine) AcquireBlobLease(ctx context.Context, container, name string, durationSeconds int, proposedID string) (*Lease, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.baseBlob(container, name)
	if err != nil {
		return nil, err
	}
	return b.lease.Acquire(e.now(), durationSeconds, proposedID)
}

// RenewBlobLease renews the blob lease identified by leaseID.
func (e *Engine) RenewBlobLease(ctx context.Context, container, name, leaseID string) (*Lease, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.baseBlob(container, name)
	if err != nil {
		return nil, err
	}
	return b.lease.Renew(e.now(), leaseID)
}

// ReleaseBlobLease releases the blob lease identified by leaseID.
func (e *Engine) ReleaseBlobLease(ctx context.Context, container, name, leaseID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.baseBlob(container, name)
	if err != nil {
		return err
	}
	return b.lease.Release(e.now(), leaseID)
}

// BreakBlobLease breaks the blob lease after periodSeconds and returns the
// seconds remaining until the break completes.
func (e *Engine) BreakBlobLease(ctx context.Context, container, name string, periodSeconds int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.baseBlob(container, name)
	if err != nil {
		return 0, err
	}
	return b.lease.Break(e.now(), periodSeconds)
}

// ChangeBlobLease replaces the blob lease ID with proposedID.
func (e *Engine) ChangeBlobLease(ctx context.Context, container, name, leaseID, proposedID string) (*Lease, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.baseBlob(container, name)
	if err != nil {
		return nil, err
	}
	return b.lease.Change(e.now(), leaseID, proposedID)
}
