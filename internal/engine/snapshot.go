package engine

import (
	"context"
	"sort"
	"time"

	storageerr "github.com/cobaltstore/cobaltstore/internal/errors"
)

// snapshotTimeFormat renders snapshot IDs as UTC timestamps with a seven
// digit fractional second, matching the wire format clients echo back in the
// snapshot query parameter. Zero padding makes lexicographic order equal
// chronological order.
const snapshotTimeFormat = "2006-01-02T15:04:05.0000000Z"

// nextSnapshotID returns a unique snapshot ID for the current time. The ID
// carries 100ns resolution, so the clock reading is truncated to that grain
// before comparing against the last issued timestamp; two readings inside the
// same 100ns tick would otherwise format to the same ID. Collisions bump
// forward one tick. Caller must hold e.mu.
func (e *Engine) nextSnapshotID() string {
	t := e.now().UTC().Truncate(100 * time.Nanosecond)
	if !t.After(e.lastSnapshotAt) {
		t = e.lastSnapshotAt.Add(100 * time.Nanosecond)
	}
	e.lastSnapshotAt = t
	return t.Format(snapshotTimeFormat)
}

// CreateSnapshot captures an immutable copy of the base blob's current
// content, properties, and metadata, and returns it. When metadata is nil
// the snapshot inherits a copy of the base blob's metadata; otherwise the
// given metadata is stored on the snapshot. The base blob is not modified,
// so no lease ID is required.
func (e *Engine) CreateSnapshot(ctx context.Context, container, name string, metadata map[string]string) (*Blob, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.baseBlob(container, name)
	if err != nil {
		return nil, err
	}

	snapMeta := metadata
	if snapMeta == nil {
		snapMeta = b.Metadata
	}

	now := e.now()
	id := e.nextSnapshotID()
	content := make([]byte, len(b.Content))
	copy(content, b.Content)

	snap := &Blob{
		Name:               name,
		Container:          container,
		Snapshot:           id,
		Content:            content,
		ContentLength:      b.ContentLength,
		ContentType:        b.ContentType,
		ContentEncoding:    b.ContentEncoding,
		ContentLanguage:    b.ContentLanguage,
		CacheControl:       b.CacheControl,
		ContentDisposition: b.ContentDisposition,
		BlobType:           b.BlobType,
		AccessTier:         b.AccessTier,
		ETag:               b.ETag,
		LastModified:       b.LastModified,
		Metadata:           copyMetadata(snapMeta),
	}
	e.blobs[BlobKey{Container: container, Blob: name, Snapshot: id}] = snap
	return snap.view(now, false), nil
}

// ListBlobSnapshots returns the snapshots of a blob in ascending snapshot-ID
// order. Snapshots can outlive their base blob, so the base is not required
// to exist; a blob with no snapshots yields an empty list.
func (e *Engine) ListBlobSnapshots(ctx context.Context, container, name string) ([]*Blob, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.container(container); err != nil {
		return nil, err
	}

	var keys []BlobKey
	for key := range e.blobs {
		if key.Container == container && key.Blob == name && key.Snapshot != "" {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(a, b int) bool {
		return keys[a].Snapshot < keys[b].Snapshot
	})

	now := e.now()
	snaps := make([]*Blob, 0, len(keys))
	for _, key := range keys {
		snaps = append(snaps, e.blobs[key].view(now, false))
	}
	return snaps, nil
}

// DeleteSnapshot deletes a single snapshot. The base blob need not exist.
func (e *Engine) DeleteSnapshot(ctx context.Context, container, name, snapshot string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.container(container); err != nil {
		return err
	}
	key := BlobKey{Container: container, Blob: name, Snapshot: snapshot}
	if _, ok := e.blobs[key]; !ok {
		return storageerr.ErrSnapshotNotFound
	}
	delete(e.blobs, key)
	return nil
}
