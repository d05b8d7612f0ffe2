package engine

import (
	"context"
	"time"

	"github.com/cobaltstore/cobaltstore/internal/uid"
)

// ContainerState is the durable representation of one container.
type ContainerState struct {
	Name         string
	Metadata     map[string]string
	PublicAccess string
	ETag         string
	LastModified time.Time
}

// BlockState records one committed block reference.
type BlockState struct {
	ID   string
	Size int64
}

// BlobState is the durable representation of one blob record, base or
// snapshot. Uncommitted blocks are deliberately absent: staged-but-never
// committed data does not survive a restart.
type BlobState struct {
	Container          string
	Name               string
	Snapshot           string
	Content            []byte
	ContentType        string
	ContentEncoding    string
	ContentLanguage    string
	CacheControl       string
	ContentDisposition string
	ETag               string
	LastModified       time.Time
	Metadata           map[string]string
	CommittedBlocks    []BlockState
}

// State is a point-in-time copy of all committed engine state. Leases are
// excluded: they are short-lived coordination tokens, not data.
type State struct {
	Containers []ContainerState
	Blobs      []BlobState
}

// DumpState copies the committed state out of the engine for persistence.
func (e *Engine) DumpState(ctx context.Context) *State {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := &State{}
	for _, c := range e.containers {
		state.Containers = append(state.Containers, ContainerState{
			Name:         c.Name,
			Metadata:     copyMetadata(c.Metadata),
			PublicAccess: string(c.PublicAccess),
			ETag:         c.ETag,
			LastModified: c.LastModified,
		})
	}
	for _, b := range e.blobs {
		content := make([]byte, len(b.Content))
		copy(content, b.Content)
		bs := BlobState{
			Container:          b.Container,
			Name:               b.Name,
			Snapshot:           b.Snapshot,
			Content:            content,
			ContentType:        b.ContentType,
			ContentEncoding:    b.ContentEncoding,
			ContentLanguage:    b.ContentLanguage,
			CacheControl:       b.CacheControl,
			ContentDisposition: b.ContentDisposition,
			ETag:               b.ETag,
			LastModified:       b.LastModified,
			Metadata:           copyMetadata(b.Metadata),
		}
		for _, blk := range b.committed {
			bs.CommittedBlocks = append(bs.CommittedBlocks, BlockState{ID: blk.ID, Size: blk.Size})
		}
		state.Blobs = append(state.Blobs, bs)
	}
	return state
}

// RestoreState replaces the engine's contents with the given state. Intended
// for startup, before the engine serves requests.
func (e *Engine) RestoreState(ctx context.Context, state *State) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.containers = make(map[string]*Container, len(state.Containers))
	e.blobs = make(map[BlobKey]*Blob, len(state.Blobs))

	for _, cs := range state.Containers {
		etag := cs.ETag
		if etag == "" {
			etag = uid.NewETag()
		}
		e.containers[cs.Name] = &Container{
			Name:         cs.Name,
			Metadata:     copyMetadata(cs.Metadata),
			PublicAccess: PublicAccess(cs.PublicAccess),
			ETag:         etag,
			LastModified: cs.LastModified,
		}
	}
	for _, bs := range state.Blobs {
		content := make([]byte, len(bs.Content))
		copy(content, bs.Content)
		contentType := bs.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		b := &Blob{
			Name:               bs.Name,
			Container:          bs.Container,
			Snapshot:           bs.Snapshot,
			Content:            content,
			ContentLength:      int64(len(content)),
			ContentType:        contentType,
			ContentEncoding:    bs.ContentEncoding,
			ContentLanguage:    bs.ContentLanguage,
			CacheControl:       bs.CacheControl,
			ContentDisposition: bs.ContentDisposition,
			BlobType:           "BlockBlob",
			AccessTier:         "Hot",
			ETag:               bs.ETag,
			LastModified:       bs.LastModified,
			Metadata:           copyMetadata(bs.Metadata),
		}
		if b.ETag == "" {
			b.ETag = uid.NewETag()
		}
		for _, blk := range bs.CommittedBlocks {
			b.committed = append(b.committed, Block{ID: blk.ID, Size: blk.Size, Committed: true})
		}
		e.blobs[BlobKey{Container: bs.Container, Blob: bs.Name, Snapshot: bs.Snapshot}] = b

		// Restored snapshot IDs must stay behind the next issued ID.
		if bs.Snapshot != "" {
			if t, err := time.Parse(snapshotTimeFormat, bs.Snapshot); err == nil && t.After(e.lastSnapshotAt) {
				e.lastSnapshotAt = t
			}
		}
	}
}
