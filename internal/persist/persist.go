// Package persist snapshots committed engine state to a SQLite file so that
// containers and blobs survive restarts. Leases and uncommitted blocks are
// volatile and never persisted.
package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/cobaltstore/cobaltstore/internal/engine"
)

// timeFormat is the column format for timestamps.
const timeFormat = time.RFC3339Nano

// Snapshotter periodically writes the engine's committed state to disk and
// can restore it at startup.
type Snapshotter struct {
	eng      *engine.Engine
	path     string
	interval time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Snapshotter writing to path every interval.
func New(eng *engine.Engine, path string, interval time.Duration) *Snapshotter {
	return &Snapshotter{
		eng:      eng,
		path:     path,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Load restores engine state from the snapshot file. A missing file is a
// fresh start, not an error.
func (s *Snapshotter) Load(ctx context.Context) error {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("opening snapshot database: %w", err)
	}
	defer db.Close()

	var tableCount int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('containers', 'blobs')`).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("checking snapshot tables: %w", err)
	}
	if tableCount < 2 {
		return nil
	}

	state := &engine.State{}

	rows, err := db.Query("SELECT name, metadata, public_access, etag, last_modified FROM containers")
	if err != nil {
		return fmt.Errorf("querying containers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cs engine.ContainerState
		var metaJSON, lastModified string
		if err := rows.Scan(&cs.Name, &metaJSON, &cs.PublicAccess, &cs.ETag, &lastModified); err != nil {
			return fmt.Errorf("scanning container row: %w", err)
		}
		if err := decodeColumn(metaJSON, &cs.Metadata); err != nil {
			return fmt.Errorf("decoding container metadata for %q: %w", cs.Name, err)
		}
		if cs.LastModified, err = time.Parse(timeFormat, lastModified); err != nil {
			return fmt.Errorf("parsing container last_modified for %q: %w", cs.Name, err)
		}
		state.Containers = append(state.Containers, cs)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating container rows: %w", err)
	}

	blobRows, err := db.Query(`SELECT container, name, snapshot, content, content_type,
		content_encoding, content_language, cache_control, content_disposition,
		etag, last_modified, metadata, committed_blocks FROM blobs`)
	if err != nil {
		return fmt.Errorf("querying blobs: %w", err)
	}
	defer blobRows.Close()
	for blobRows.Next() {
		var bs engine.BlobState
		var metaJSON, blocksJSON, lastModified string
		if err := blobRows.Scan(&bs.Container, &bs.Name, &bs.Snapshot, &bs.Content,
			&bs.ContentType, &bs.ContentEncoding, &bs.ContentLanguage,
			&bs.CacheControl, &bs.ContentDisposition, &bs.ETag, &lastModified,
			&metaJSON, &blocksJSON); err != nil {
			return fmt.Errorf("scanning blob row: %w", err)
		}
		if err := decodeColumn(metaJSON, &bs.Metadata); err != nil {
			return fmt.Errorf("decoding blob metadata for %q: %w", bs.Name, err)
		}
		if err := decodeColumn(blocksJSON, &bs.CommittedBlocks); err != nil {
			return fmt.Errorf("decoding committed blocks for %q: %w", bs.Name, err)
		}
		if bs.LastModified, err = time.Parse(timeFormat, lastModified); err != nil {
			return fmt.Errorf("parsing blob last_modified for %q: %w", bs.Name, err)
		}
		state.Blobs = append(state.Blobs, bs)
	}
	if err := blobRows.Err(); err != nil {
		return fmt.Errorf("iterating blob rows: %w", err)
	}

	s.eng.RestoreState(ctx, state)
	slog.Info("state restored from snapshot",
		"path", s.path,
		"containers", len(state.Containers),
		"blobs", len(state.Blobs))
	return nil
}

// Start launches the background snapshot loop.
func (s *Snapshotter) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Close stops the background loop and writes a final snapshot.
func (s *Snapshotter) Close() error {
	close(s.stopCh)
	s.wg.Wait()
	if err := s.Write(context.Background()); err != nil {
		return fmt.Errorf("writing final snapshot: %w", err)
	}
	return nil
}

// loop periodically writes snapshots at the configured interval.
func (s *Snapshotter) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.Write(context.Background()); err != nil {
				slog.Error("snapshot failed", "error", err)
			}
		}
	}
}

// Write atomically writes the engine's committed state to the snapshot file.
// It writes to a temporary file first, then renames it to the final path for
// crash safety.
func (s *Snapshotter) Write(ctx context.Context) error {
	state := s.eng.DumpState(ctx)

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	os.Remove(tmpPath)

	db, err := sql.Open("sqlite", tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp snapshot database: %w", err)
	}

	schema := `
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = FULL;

		CREATE TABLE containers (
			name          TEXT NOT NULL PRIMARY KEY,
			metadata      TEXT NOT NULL,
			public_access TEXT NOT NULL,
			etag          TEXT NOT NULL,
			last_modified TEXT NOT NULL
		);

		CREATE TABLE blobs (
			container           TEXT NOT NULL,
			name                TEXT NOT NULL,
			snapshot            TEXT NOT NULL,
			content             BLOB NOT NULL,
			content_type        TEXT NOT NULL,
			content_encoding    TEXT NOT NULL,
			content_language    TEXT NOT NULL,
			cache_control       TEXT NOT NULL,
			content_disposition TEXT NOT NULL,
			etag                TEXT NOT NULL,
			last_modified       TEXT NOT NULL,
			metadata            TEXT NOT NULL,
			committed_blocks    TEXT NOT NULL,
			PRIMARY KEY (container, name, snapshot)
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("creating snapshot schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		db.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("beginning snapshot transaction: %w", err)
	}

	fail := func(step string, err error) error {
		tx.Rollback()
		db.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%s: %w", step, err)
	}

	containerStmt, err := tx.Prepare("INSERT INTO containers (name, metadata, public_access, etag, last_modified) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fail("preparing container insert", err)
	}
	defer containerStmt.Close()

	for _, cs := range state.Containers {
		metaJSON, err := encodeColumn(cs.Metadata)
		if err != nil {
			return fail(fmt.Sprintf("encoding metadata for container %q", cs.Name), err)
		}
		if _, err := containerStmt.Exec(cs.Name, metaJSON, cs.PublicAccess, cs.ETag, cs.LastModified.UTC().Format(timeFormat)); err != nil {
			return fail(fmt.Sprintf("inserting container %q", cs.Name), err)
		}
	}

	blobStmt, err := tx.Prepare(`INSERT INTO blobs (container, name, snapshot, content,
		content_type, content_encoding, content_language, cache_control,
		content_disposition, etag, last_modified, metadata, committed_blocks)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fail("preparing blob insert", err)
	}
	defer blobStmt.Close()

	for _, bs := range state.Blobs {
		metaJSON, err := encodeColumn(bs.Metadata)
		if err != nil {
			return fail(fmt.Sprintf("encoding metadata for blob %q", bs.Name), err)
		}
		blocksJSON, err := encodeColumn(bs.CommittedBlocks)
		if err != nil {
			return fail(fmt.Sprintf("encoding committed blocks for blob %q", bs.Name), err)
		}
		if _, err := blobStmt.Exec(bs.Container, bs.Name, bs.Snapshot, bs.Content,
			bs.ContentType, bs.ContentEncoding, bs.ContentLanguage, bs.CacheControl,
			bs.ContentDisposition, bs.ETag, bs.LastModified.UTC().Format(timeFormat),
			metaJSON, blocksJSON); err != nil {
			return fail(fmt.Sprintf("inserting blob %q", bs.Name), err)
		}
	}

	if err := tx.Commit(); err != nil {
		db.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("committing snapshot transaction: %w", err)
	}
	if err := db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp snapshot database: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming snapshot file: %w", err)
	}

	// WAL and SHM files from the temp database may linger after rename on
	// some platforms.
	os.Remove(tmpPath + "-wal")
	os.Remove(tmpPath + "-shm")

	return nil
}

// encodeColumn JSON-encodes a value for a TEXT column.
func encodeColumn(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decodeColumn JSON-decodes a TEXT column into v. Empty text is a no-op.
func decodeColumn(data string, v any) error {
	if data == "" {
		return nil
	}
	return json.Unmarshal([]byte(data), v)
}
