package engine

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	storageerr "github.com/cobaltstore/cobaltstore/internal/errors"
	"github.com/cobaltstore/cobaltstore/internal/uid"
)

// maxListResults is the default and maximum page size for list operations.
const maxListResults = 5000

// BlobKey identifies a blob record: the base blob when Snapshot is empty, or
// one immutable snapshot otherwise. Keeping one flat map keyed by BlobKey
// avoids nested container->blob->snapshot collections.
type BlobKey struct {
	Container string
	Blob      string
	Snapshot  string
}

// Engine is the single source of truth for all containers, blobs, leases, and
// snapshots. Every operation acquires the same mutex for its full duration,
// so mutations are totally ordered and reads observe a consistent state.
// Operations are short and purely in-memory; none of them block.
type Engine struct {
	mu         sync.Mutex
	containers map[string]*Container
	blobs      map[BlobKey]*Blob

	now            func() time.Time
	lastSnapshotAt time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source. Used by tests to control
// lease expiry and snapshot IDs.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an empty Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		containers: make(map[string]*Container),
		blobs:      make(map[BlobKey]*Blob),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// container returns the live container record or ErrContainerNotFound.
// Caller must hold e.mu.
func (e *Engine) container(name string) (*Container, error) {
	c, ok := e.containers[name]
	if !ok {
		return nil, storageerr.ErrContainerNotFound
	}
	return c, nil
}

// baseBlob returns the live base blob record, checking the container first.
// Caller must hold e.mu.
func (e *Engine) baseBlob(container, name string) (*Blob, error) {
	if _, err := e.container(container); err != nil {
		return nil, err
	}
	b, ok := e.blobs[BlobKey{Container: container, Blob: name}]
	if !ok {
		return nil, storageerr.ErrBlobNotFound
	}
	return b, nil
}

// CreateContainer creates a new container with the given metadata and public
// access level.
func (e *Engine) CreateContainer(ctx context.Context, name string, metadata map[string]string, access PublicAccess) (*Container, error) {
	if !ValidContainerName(name) {
		return nil, storageerr.ErrInvalidContainerName
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.containers[name]; exists {
		return nil, storageerr.ErrContainerAlreadyExists
	}

	now := e.now()
	c := &Container{
		Name:         name,
		Metadata:     copyMetadata(metadata),
		PublicAccess: access,
		ETag:         uid.NewETag(),
		LastModified: now,
	}
	e.containers[name] = c
	return c.view(now), nil
}

// GetContainerProperties returns the container's properties and metadata.
func (e *Engine) GetContainerProperties(ctx context.Context, name string) (*Container, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.container(name)
	if err != nil {
		return nil, err
	}
	return c.view(e.now()), nil
}

// SetContainerMetadata replaces the container's metadata and assigns a new
// etag. Requires a matching lease ID when the container is leased.
func (e *Engine) SetContainerMetadata(ctx context.Context, name string, metadata map[string]string, leaseID string) (*Container, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.container(name)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if err := c.lease.validateWrite(now, leaseID); err != nil {
		return nil, err
	}

	c.Metadata = copyMetadata(metadata)
	c.ETag = uid.NewETag()
	c.LastModified = now
	return c.view(now), nil
}

// DeleteContainer removes the container and every blob in it, base blobs and
// snapshots alike. Requires a matching lease ID when the container is leased.
func (e *Engine) DeleteContainer(ctx context.Context, name string, leaseID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.container(name)
	if err != nil {
		return err
	}
	if err := c.lease.validateWrite(e.now(), leaseID); err != nil {
		return err
	}

	for key := range e.blobs {
		if key.Container == name {
			delete(e.blobs, key)
		}
	}
	delete(e.containers, name)
	return nil
}

// ListContainersOptions specifies filtering and pagination for ListContainers.
type ListContainersOptions struct {
	Prefix     string
	Marker     string
	MaxResults int
}

// ListContainersResult holds one page of containers, sorted by name.
type ListContainersResult struct {
	Containers []*Container
	NextMarker string
}

// ListContainers returns containers in lexicographic name order. The marker
// is the last name of the previous page; listing resumes strictly after it.
func (e *Engine) ListContainers(ctx context.Context, opts ListContainersOptions) (*ListContainersResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	maxResults := opts.MaxResults
	if maxResults <= 0 || maxResults > maxListResults {
		maxResults = maxListResults
	}

	names := make([]string, 0, len(e.containers))
	for name := range e.containers {
		if opts.Prefix != "" && !strings.HasPrefix(name, opts.Prefix) {
			continue
		}
		if opts.Marker != "" && name <= opts.Marker {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	now := e.now()
	result := &ListContainersResult{}
	for i, name := range names {
		if i == maxResults {
			result.NextMarker = names[i-1]
			break
		}
		result.Containers = append(result.Containers, e.containers[name].view(now))
	}
	return result, nil
}

// AcquireContainerLease acquires a lease on the container for
// durationSeconds (-1 for infinite, otherwise 15-60). A proposed lease ID is
// used verbatim when supplied.
func (e *Engine) AcquireContainerLease(ctx context.Context, name string, durationSeconds int, proposedID string) (*Lease, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.container(name)
	if err != nil {
		return nil, err
	}
	return c.lease.Acquire(e.now(), durationSeconds, proposedID)
}

// RenewContainerLease renews the container lease identified by leaseID.
func (e *Engine) RenewContainerLease(ctx context.Context, name, leaseID string) (*Lease, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.container(name)
	if err != nil {
		return nil, err
	}
	return c.lease.Renew(e.now(), leaseID)
}

// ReleaseContainerLease releases the container lease identified by leaseID.
func (e *Engine) ReleaseContainerLease(ctx context.Context, name, leaseID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.container(name)
	if err != nil {
		return err
	}
	return c.lease.Release(e.now(), leaseID)
}

// BreakContainerLease breaks the container lease after periodSeconds (0
// breaks immediately) and returns the seconds remaining until the break
// completes.
func (e *Engine) BreakContainerLease(ctx context.Context, name string, periodSeconds int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.container(name)
	if err != nil {
		return 0, err
	}
	return c.lease.Break(e.now(), periodSeconds)
}

// ChangeContainerLease replaces the container lease ID with proposedID.
func (e *Engine) ChangeContainerLease(ctx context.Context, name, leaseID, proposedID string) (*Lease, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.container(name)
	if err != nil {
		return nil, err
	}
	return c.lease.Change(e.now(), leaseID, proposedID)
}

// ExpireLeases sweeps every container and base blob, removing leases whose
// expiration or break time has passed. Returns the number of leases removed.
// It is also safe to never call this: every lease-sensitive operation
// evaluates expiry lazily.
func (e *Engine) ExpireLeases(ctx context.Context) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	removed := 0
	for _, c := range e.containers {
		if c.lease.lease != nil {
			c.lease.expire(now)
			if c.lease.lease == nil {
				removed++
			}
		}
	}
	for key, b := range e.blobs {
		if key.Snapshot != "" {
			continue
		}
		if b.lease.lease != nil {
			b.lease.expire(now)
			if b.lease.lease == nil {
				removed++
			}
		}
	}
	return removed
}
