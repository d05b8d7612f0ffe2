// Package engine implements the in-memory blob storage emulation engine:
// containers, blobs, leases, snapshots, and the block staging/commit protocol.
// All state is owned by the Engine and serialized through a single mutex; see
// engine.go.
package engine

import "time"

// PublicAccess is the public access level of a container.
type PublicAccess string

const (
	// PublicAccessPrivate means no anonymous access. This is the default.
	PublicAccessPrivate PublicAccess = ""
	// PublicAccessBlob allows anonymous read access to blob data.
	PublicAccessBlob PublicAccess = "blob"
	// PublicAccessContainer allows anonymous read access to the whole container.
	PublicAccessContainer PublicAccess = "container"
)

// LeaseStatus reports whether a resource currently holds a lease.
type LeaseStatus string

const (
	LeaseStatusLocked   LeaseStatus = "locked"
	LeaseStatusUnlocked LeaseStatus = "unlocked"
)

// LeaseState is the externally visible lease state of a resource.
type LeaseState string

const (
	LeaseStateAvailable LeaseState = "available"
	LeaseStateLeased    LeaseState = "leased"
	LeaseStateExpired   LeaseState = "expired"
	LeaseStateBreaking  LeaseState = "breaking"
	LeaseStateBroken    LeaseState = "broken"
)

// InfiniteLeaseDuration is the lease duration value meaning "never expires".
const InfiniteLeaseDuration = -1

// Lease is a time-boxed mutual-exclusion token attached to a container or a
// base blob.
type Lease struct {
	// ID is the lease ID, a UUID string unless the caller proposed one.
	ID string
	// Duration is the lease duration in seconds, or InfiniteLeaseDuration.
	Duration int
	// AcquiredAt is when the lease was acquired or last renewed.
	AcquiredAt time.Time
	// ExpiresAt is when the lease expires. Zero for infinite leases.
	ExpiresAt time.Time
	// BreakAt is when a requested break completes. Zero until a break has
	// been requested.
	BreakAt time.Time
	// State is the current lease state: leased, breaking, or broken.
	// Available and expired are represented by lease absence.
	State LeaseState
}

// Container represents a namespace for blobs.
//
// Lease-derived fields (LeaseStatus, LeaseState) are filled in on the copies
// the Engine hands out; they are always a pure function of the internal lease
// slot at observation time.
type Container struct {
	Name         string
	Metadata     map[string]string
	PublicAccess PublicAccess
	ETag         string
	LastModified time.Time
	LeaseStatus  LeaseStatus
	LeaseState   LeaseState

	lease leaseSlot
}

// view returns a copy of the container safe to hand to callers, with
// lease-derived properties computed as of now.
func (c *Container) view(now time.Time) *Container {
	cp := *c
	cp.Metadata = copyMetadata(c.Metadata)
	cp.LeaseStatus, cp.LeaseState = c.lease.status(now)
	cp.lease = leaseSlot{}
	return &cp
}

// Block is a named chunk of bytes staged for inclusion in a future commit.
type Block struct {
	// ID is the caller-supplied block ID; must decode as base64 to at most
	// 64 bytes.
	ID string
	// Size is len(Content) in bytes.
	Size int64
	// Content holds the staged bytes. Cleared (nil) for committed block
	// records, which are kept for block-list inspection only.
	Content []byte
	// Committed is true only after the block was referenced by a successful
	// commit.
	Committed bool
}

// Blob represents an object inside exactly one container. A Blob with a
// non-empty Snapshot field is an immutable point-in-time copy of its base
// blob; no operation mutates it after creation.
type Blob struct {
	Name      string
	Container string
	// Snapshot is empty for the live (base) blob, or the snapshot ID — a
	// timestamp-derived string — for a snapshot.
	Snapshot string

	Content       []byte
	ContentLength int64
	ContentType   string

	ContentEncoding    string
	ContentLanguage    string
	CacheControl       string
	ContentDisposition string

	// BlobType is always "BlockBlob" in this emulator.
	BlobType string
	// AccessTier is always "Hot" in this emulator.
	AccessTier string

	ETag         string
	LastModified time.Time
	Metadata     map[string]string

	LeaseStatus LeaseStatus
	LeaseState  LeaseState

	lease leaseSlot

	// uncommitted holds staged blocks keyed by block ID. Base blob only;
	// cleared after every successful commit and never copied into snapshots.
	uncommitted map[string]*Block
	// committed records the blocks of the last successful commit (ID and
	// size only; content lives in Content). Cleared by PutBlob.
	committed []Block
}

// IsSnapshot reports whether b is a snapshot rather than the base blob.
func (b *Blob) IsSnapshot() bool { return b.Snapshot != "" }

// view returns a copy of the blob safe to hand to callers. Content is deep
// copied only when withContent is true; property-only reads leave it nil.
func (b *Blob) view(now time.Time, withContent bool) *Blob {
	cp := *b
	cp.Metadata = copyMetadata(b.Metadata)
	cp.LeaseStatus, cp.LeaseState = b.lease.status(now)
	cp.lease = leaseSlot{}
	cp.uncommitted = nil
	cp.committed = nil
	if withContent {
		cp.Content = append([]byte(nil), b.Content...)
	} else {
		cp.Content = nil
	}
	return &cp
}

// ConditionalHeaders carries the optional conditional request fields used by
// CheckConditions. It is evaluated, never persisted.
type ConditionalHeaders struct {
	IfMatch           string
	IfNoneMatch       string
	IfModifiedSince   *time.Time
	IfUnmodifiedSince *time.Time
}

// copyMetadata returns a shallow copy of a metadata map. Returns an empty
// non-nil map for nil input so callers can range without nil checks.
func copyMetadata(m map[string]string) map[string]string {
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
