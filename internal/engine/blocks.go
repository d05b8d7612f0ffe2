package engine

import (
	"context"
	"sort"

	storageerr "github.com/cobaltstore/cobaltstore/internal/errors"
	"github.com/cobaltstore/cobaltstore/internal/uid"
)

// PutBlock stages a block of content under the given block ID. If the base
// blob does not exist yet an empty one is created to own the staged blocks.
// Staging does not change the blob's content, etag, or last-modified time.
func (e *Engine) PutBlock(ctx context.Context, container, name, blockID string, content []byte, leaseID string) error {
	if !ValidBlobName(name) {
		return storageerr.ErrInvalidBlobName
	}
	if !ValidBlockID(blockID) {
		return storageerr.ErrInvalidBlockID
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.container(container); err != nil {
		return err
	}

	now := e.now()
	key := BlobKey{Container: container, Blob: name}
	b, ok := e.blobs[key]
	if !ok {
		b = &Blob{
			Name:          name,
			Container:     container,
			Content:       []byte{},
			ContentType:   "application/octet-stream",
			BlobType:      "BlockBlob",
			AccessTier:    "Hot",
			ETag:          uid.NewETag(),
			LastModified:  now,
			ContentLength: 0,
		}
		e.blobs[key] = b
	}
	if err := b.lease.validateWrite(now, leaseID); err != nil {
		return err
	}

	buf := make([]byte, len(content))
	copy(buf, content)
	if b.uncommitted == nil {
		b.uncommitted = make(map[string]*Block)
	}
	// Re-staging the same ID replaces the previous content.
	b.uncommitted[blockID] = &Block{
		ID:      blockID,
		Size:    int64(len(buf)),
		Content: buf,
	}
	return nil
}

// PutBlockListOptions specifies the settings applied to the committed blob.
type PutBlockListOptions struct {
	Headers    BlobHTTPHeaders
	Metadata   map[string]string
	LeaseID    string
	Conditions ConditionalHeaders
}

// PutBlockList commits staged blocks, in the order given, as the blob's new
// content. Every listed ID must be present in the uncommitted buffer; if any
// is missing the commit fails whole and the staged blocks are kept. On
// success the uncommitted buffer is cleared, including staged blocks that
// were not referenced.
func (e *Engine) PutBlockList(ctx context.Context, container, name string, blockIDs []string, opts PutBlockListOptions) (*Blob, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.baseBlob(container, name)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if err := b.lease.validateWrite(now, opts.LeaseID); err != nil {
		return nil, err
	}
	if err := conditionErr(CheckConditions(opts.Conditions, b.ETag, b.LastModified)); err != nil {
		return nil, err
	}

	// Resolve the full list before mutating anything so a missing ID
	// leaves the blob untouched.
	blocks := make([]*Block, 0, len(blockIDs))
	total := int64(0)
	for _, id := range blockIDs {
		blk, ok := b.uncommitted[id]
		if !ok {
			return nil, storageerr.ErrInvalidBlockID
		}
		blocks = append(blocks, blk)
		total += blk.Size
	}

	content := make([]byte, 0, total)
	committed := make([]Block, 0, len(blocks))
	for _, blk := range blocks {
		content = append(content, blk.Content...)
		committed = append(committed, Block{ID: blk.ID, Size: blk.Size, Committed: true})
	}

	b.Content = content
	b.ContentLength = total
	b.committed = committed
	b.uncommitted = nil
	if opts.Headers.ContentType != "" {
		b.ContentType = opts.Headers.ContentType
	}
	if opts.Headers.ContentEncoding != "" {
		b.ContentEncoding = opts.Headers.ContentEncoding
	}
	if opts.Headers.ContentLanguage != "" {
		b.ContentLanguage = opts.Headers.ContentLanguage
	}
	if opts.Headers.CacheControl != "" {
		b.CacheControl = opts.Headers.CacheControl
	}
	if opts.Headers.ContentDisposition != "" {
		b.ContentDisposition = opts.Headers.ContentDisposition
	}
	if opts.Metadata != nil {
		b.Metadata = copyMetadata(opts.Metadata)
	}
	b.ETag = uid.NewETag()
	b.LastModified = now
	return b.view(now, false), nil
}

// BlockListType selects which block sets GetBlockList returns.
type BlockListType string

const (
	BlockListCommitted   BlockListType = "committed"
	BlockListUncommitted BlockListType = "uncommitted"
	BlockListAll         BlockListType = "all"
)

// BlockList holds the committed and uncommitted blocks of a blob. Committed
// blocks appear in commit order; uncommitted blocks in lexicographic ID
// order.
type BlockList struct {
	Committed   []Block
	Uncommitted []Block
}

// GetBlockList returns the blob's committed and/or uncommitted blocks,
// without content.
func (e *Engine) GetBlockList(ctx context.Context, container, name string, listType BlockListType) (*BlockList, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.baseBlob(container, name)
	if err != nil {
		return nil, err
	}

	result := &BlockList{}
	if listType == BlockListCommitted || listType == BlockListAll {
		result.Committed = append(result.Committed, b.committed...)
	}
	if listType == BlockListUncommitted || listType == BlockListAll {
		ids := make([]string, 0, len(b.uncommitted))
		for id := range b.uncommitted {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			blk := b.uncommitted[id]
			result.Uncommitted = append(result.Uncommitted, Block{ID: blk.ID, Size: blk.Size})
		}
	}
	return result, nil
}
