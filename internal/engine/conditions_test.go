package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	storageerr "github.com/cobaltstore/cobaltstore/internal/errors"
)

func TestCheckConditions(t *testing.T) {
	etag := "0xAAAA"
	modified := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	earlier := modified.Add(-time.Hour)
	later := modified.Add(time.Hour)

	tests := []struct {
		name    string
		headers ConditionalHeaders
		want    int
	}{
		{"no conditions", ConditionalHeaders{}, ConditionsMet},
		{"if-match equal", ConditionalHeaders{IfMatch: etag}, ConditionsMet},
		{"if-match different", ConditionalHeaders{IfMatch: "0xBBBB"}, ConditionFailed},
		{"if-none-match different", ConditionalHeaders{IfNoneMatch: "0xBBBB"}, ConditionsMet},
		{"if-none-match equal", ConditionalHeaders{IfNoneMatch: etag}, ConditionNotModified},
		{"modified since earlier", ConditionalHeaders{IfModifiedSince: &earlier}, ConditionsMet},
		{"not modified since later", ConditionalHeaders{IfModifiedSince: &later}, ConditionNotModified},
		{"not modified since exact", ConditionalHeaders{IfModifiedSince: &modified}, ConditionNotModified},
		{"unmodified since later", ConditionalHeaders{IfUnmodifiedSince: &later}, ConditionsMet},
		{"unmodified since exact", ConditionalHeaders{IfUnmodifiedSince: &modified}, ConditionsMet},
		{"modified after unmodified-since", ConditionalHeaders{IfUnmodifiedSince: &earlier}, ConditionFailed},
		// if-match is evaluated first.
		{"if-match wins over if-none-match", ConditionalHeaders{IfMatch: "0xBBBB", IfNoneMatch: etag}, ConditionFailed},
		// if-none-match outranks the date conditions.
		{"if-none-match wins over dates", ConditionalHeaders{IfNoneMatch: etag, IfUnmodifiedSince: &earlier}, ConditionNotModified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckConditions(tt.headers, etag, modified); got != tt.want {
				t.Errorf("CheckConditions() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestConditionalBlobOperations(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	mustCreateContainer(t, e, "docs")
	b := mustPutBlob(t, e, "docs", "a.txt", []byte("hi"))

	// Read with a stale etag in If-None-Match succeeds; with the current
	// etag it reports not-modified.
	if _, err := e.GetBlob(ctx, "docs", "a.txt", "", ConditionalHeaders{IfNoneMatch: "0xSTALE"}); err != nil {
		t.Errorf("get with stale if-none-match: %v", err)
	}
	if _, err := e.GetBlob(ctx, "docs", "a.txt", "", ConditionalHeaders{IfNoneMatch: b.ETag}); !errors.Is(err, storageerr.ErrNotModified) {
		t.Errorf("get with current if-none-match: got %v, want ErrNotModified", err)
	}

	// Write guarded by If-Match fails once the etag is stale.
	if _, err := e.SetBlobMetadata(ctx, "docs", "a.txt", map[string]string{"k": "v"}, "", ConditionalHeaders{IfMatch: b.ETag}); err != nil {
		t.Fatalf("set metadata with current if-match: %v", err)
	}
	if _, err := e.SetBlobMetadata(ctx, "docs", "a.txt", nil, "", ConditionalHeaders{IfMatch: b.ETag}); !errors.Is(err, storageerr.ErrConditionNotMet) {
		t.Errorf("set metadata with stale if-match: got %v, want ErrConditionNotMet", err)
	}

	// Delete guarded by If-Match.
	cur, err := e.GetBlobProperties(ctx, "docs", "a.txt", "", ConditionalHeaders{})
	if err != nil {
		t.Fatalf("GetBlobProperties: %v", err)
	}
	if err := e.DeleteBlob(ctx, "docs", "a.txt", DeleteBlobOptions{Conditions: ConditionalHeaders{IfMatch: "0xSTALE"}}); !errors.Is(err, storageerr.ErrConditionNotMet) {
		t.Errorf("delete with stale if-match: got %v, want ErrConditionNotMet", err)
	}
	if err := e.DeleteBlob(ctx, "docs", "a.txt", DeleteBlobOptions{Conditions: ConditionalHeaders{IfMatch: cur.ETag}}); err != nil {
		t.Errorf("delete with current if-match: %v", err)
	}
}
