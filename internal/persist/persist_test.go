package persist

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cobaltstore/cobaltstore/internal/engine"
)

func TestWriteAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")

	eng := engine.New()
	if _, err := eng.CreateContainer(ctx, "docs", map[string]string{"team": "core"}, "blob"); err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}
	if _, err := eng.PutBlob(ctx, "docs", "readme.txt", engine.PutBlobOptions{
		Content:  []byte("hello persistence"),
		Headers:  engine.BlobHTTPHeaders{ContentType: "text/plain", CacheControl: "no-cache"},
		Metadata: map[string]string{"author": "ops"},
	}); err != nil {
		t.Fatalf("PutBlob: %v", err)
	}
	snap, err := eng.CreateSnapshot(ctx, "docs", "readme.txt", nil)
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}

	snapper := New(eng, path, time.Hour)
	if err := snapper.Write(ctx); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("snapshot file missing: %v", err)
	}

	restored := engine.New()
	if err := New(restored, path, time.Hour).Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	props, err := restored.GetContainerProperties(ctx, "docs")
	if err != nil {
		t.Fatalf("GetContainerProperties after restore: %v", err)
	}
	if props.Metadata["team"] != "core" {
		t.Errorf("container metadata = %v, want team=core", props.Metadata)
	}
	if props.PublicAccess != "blob" {
		t.Errorf("public access = %q, want %q", props.PublicAccess, "blob")
	}

	blob, err := restored.GetBlob(ctx, "docs", "readme.txt", "", engine.ConditionalHeaders{})
	if err != nil {
		t.Fatalf("GetBlob after restore: %v", err)
	}
	if !bytes.Equal(blob.Content, []byte("hello persistence")) {
		t.Errorf("content = %q, want %q", blob.Content, "hello persistence")
	}
	if blob.ContentType != "text/plain" {
		t.Errorf("content type = %q, want text/plain", blob.ContentType)
	}
	if blob.CacheControl != "no-cache" {
		t.Errorf("cache control = %q, want no-cache", blob.CacheControl)
	}
	if blob.Metadata["author"] != "ops" {
		t.Errorf("blob metadata = %v, want author=ops", blob.Metadata)
	}

	snaps, err := restored.ListBlobSnapshots(ctx, "docs", "readme.txt")
	if err != nil {
		t.Fatalf("ListBlobSnapshots after restore: %v", err)
	}
	if len(snaps) != 1 || snaps[0].Snapshot != snap.Snapshot {
		t.Errorf("snapshots = %v, want one snapshot %q", snaps, snap.Snapshot)
	}
}

func TestLoadMissingFileIsFreshStart(t *testing.T) {
	ctx := context.Background()
	eng := engine.New()
	snapper := New(eng, filepath.Join(t.TempDir(), "nope.db"), time.Hour)
	if err := snapper.Load(ctx); err != nil {
		t.Fatalf("Load of missing file: %v", err)
	}
	result, err := eng.ListContainers(ctx, engine.ListContainersOptions{})
	if err != nil {
		t.Fatalf("ListContainers: %v", err)
	}
	if len(result.Containers) != 0 {
		t.Errorf("containers = %v, want none", result.Containers)
	}
}

func TestCommittedBlocksSurviveRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	eng := engine.New()
	if _, err := eng.CreateContainer(ctx, "media", nil, ""); err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}
	ids := []string{"YmxvY2stMQ==", "YmxvY2stMg=="}
	for i, id := range ids {
		if err := eng.PutBlock(ctx, "media", "video.bin", id, []byte{byte(i), byte(i)}, ""); err != nil {
			t.Fatalf("PutBlock %q: %v", id, err)
		}
	}
	if _, err := eng.PutBlockList(ctx, "media", "video.bin", ids, engine.PutBlockListOptions{}); err != nil {
		t.Fatalf("PutBlockList: %v", err)
	}
	// Stage a block that should not survive.
	if err := eng.PutBlock(ctx, "media", "video.bin", "ZHJvcHBlZA==", []byte("x"), ""); err != nil {
		t.Fatalf("PutBlock staged: %v", err)
	}

	if err := New(eng, path, time.Hour).Write(ctx); err != nil {
		t.Fatalf("Write: %v", err)
	}

	restored := engine.New()
	if err := New(restored, path, time.Hour).Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	list, err := restored.GetBlockList(ctx, "media", "video.bin", engine.BlockListAll)
	if err != nil {
		t.Fatalf("GetBlockList after restore: %v", err)
	}
	if len(list.Committed) != 2 {
		t.Fatalf("committed blocks = %d, want 2", len(list.Committed))
	}
	for i, id := range ids {
		if list.Committed[i].ID != id {
			t.Errorf("committed[%d] = %q, want %q", i, list.Committed[i].ID, id)
		}
		if list.Committed[i].Size != 2 {
			t.Errorf("committed[%d] size = %d, want 2", i, list.Committed[i].Size)
		}
	}
	if len(list.Uncommitted) != 0 {
		t.Errorf("uncommitted blocks = %v, want none after restart", list.Uncommitted)
	}
}

func TestCloseWritesFinalSnapshot(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	eng := engine.New()
	if _, err := eng.CreateContainer(ctx, "final", nil, ""); err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}

	snapper := New(eng, path, time.Hour)
	snapper.Start()
	if err := snapper.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	restored := engine.New()
	if err := New(restored, path, time.Hour).Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := restored.GetContainerProperties(ctx, "final"); err != nil {
		t.Errorf("container not restored after Close: %v", err)
	}
}
