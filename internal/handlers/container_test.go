package handlers

import (
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cobaltstore/cobaltstore/internal/engine"
	"github.com/cobaltstore/cobaltstore/internal/xmlutil"
)

func newTestHandlers(t *testing.T) (*ContainerHandler, *BlobHandler) {
	t.Helper()
	eng := engine.New()
	return NewContainerHandler(eng, "http://127.0.0.1:10000/"), NewBlobHandler(eng)
}

func createContainer(t *testing.T, h *ContainerHandler, name string) {
	t.Helper()
	req := httptest.NewRequest("PUT", "/"+name+"?restype=container", nil)
	rec := httptest.NewRecorder()
	h.CreateContainer(rec, req)
	if rec.Code != http.StatusCreated {
		body, _ := io.ReadAll(rec.Body)
		t.Fatalf("CreateContainer(%q) status = %d, want 201; body: %s", name, rec.Code, body)
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) xmlutil.ErrorResponse {
	t.Helper()
	var resp xmlutil.ErrorResponse
	if err := xml.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error response: %v; body: %s", err, rec.Body.String())
	}
	return resp
}

func TestCreateContainerHTTP(t *testing.T) {
	ch, _ := newTestHandlers(t)

	req := httptest.NewRequest("PUT", "/mycontainer?restype=container", nil)
	rec := httptest.NewRecorder()
	ch.CreateContainer(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body: %s", rec.Code, rec.Body.String())
	}
	etag := rec.Header().Get("ETag")
	if len(etag) < 2 || etag[0] != '"' || etag[len(etag)-1] != '"' {
		t.Errorf("ETag = %q, want a quoted value", etag)
	}
	if rec.Header().Get("Last-Modified") == "" {
		t.Error("Last-Modified header missing")
	}
}

func TestCreateContainerConflict(t *testing.T) {
	ch, _ := newTestHandlers(t)
	createContainer(t, ch, "dup")

	req := httptest.NewRequest("PUT", "/dup?restype=container", nil)
	rec := httptest.NewRecorder()
	ch.CreateContainer(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Code != "ContainerAlreadyExists" {
		t.Errorf("error code = %q, want ContainerAlreadyExists", resp.Code)
	}
}

func TestCreateContainerInvalidName(t *testing.T) {
	ch, _ := newTestHandlers(t)

	req := httptest.NewRequest("PUT", "/UPPER?restype=container", nil)
	rec := httptest.NewRecorder()
	ch.CreateContainer(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Code != "InvalidResourceName" {
		t.Errorf("error code = %q, want InvalidResourceName", resp.Code)
	}
}

func TestCreateContainerInvalidPublicAccess(t *testing.T) {
	ch, _ := newTestHandlers(t)

	req := httptest.NewRequest("PUT", "/acl?restype=container", nil)
	req.Header.Set("x-ms-blob-public-access", "everyone")
	rec := httptest.NewRecorder()
	ch.CreateContainer(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestContainerMetadataRoundTrip(t *testing.T) {
	ch, _ := newTestHandlers(t)

	req := httptest.NewRequest("PUT", "/tagged?restype=container", nil)
	req.Header.Set("x-ms-meta-Project", "cobalt")
	req.Header.Set("x-ms-meta-env", "dev")
	rec := httptest.NewRecorder()
	ch.CreateContainer(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("CreateContainer status = %d, want 201", rec.Code)
	}

	req = httptest.NewRequest("GET", "/tagged?restype=container", nil)
	rec = httptest.NewRecorder()
	ch.GetContainerProperties(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GetContainerProperties status = %d, want 200", rec.Code)
	}
	// Metadata keys are lowercased on the way in.
	if got := rec.Header().Get("x-ms-meta-project"); got != "cobalt" {
		t.Errorf("x-ms-meta-project = %q, want %q", got, "cobalt")
	}
	if got := rec.Header().Get("x-ms-meta-env"); got != "dev" {
		t.Errorf("x-ms-meta-env = %q, want %q", got, "dev")
	}
}

func TestSetContainerMetadataChangesETag(t *testing.T) {
	ch, _ := newTestHandlers(t)
	createContainer(t, ch, "meta")

	req := httptest.NewRequest("GET", "/meta?restype=container", nil)
	rec := httptest.NewRecorder()
	ch.GetContainerProperties(rec, req)
	before := rec.Header().Get("ETag")

	req = httptest.NewRequest("PUT", "/meta?restype=container&comp=metadata", nil)
	req.Header.Set("x-ms-meta-owner", "ops")
	rec = httptest.NewRecorder()
	ch.SetContainerMetadata(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("SetContainerMetadata status = %d, want 200", rec.Code)
	}
	if after := rec.Header().Get("ETag"); after == before {
		t.Errorf("ETag unchanged after metadata update: %q", after)
	}
}

func TestDeleteContainerHTTP(t *testing.T) {
	ch, _ := newTestHandlers(t)
	createContainer(t, ch, "doomed")

	req := httptest.NewRequest("DELETE", "/doomed?restype=container", nil)
	rec := httptest.NewRecorder()
	ch.DeleteContainer(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("DeleteContainer status = %d, want 202", rec.Code)
	}

	req = httptest.NewRequest("GET", "/doomed?restype=container", nil)
	rec = httptest.NewRecorder()
	ch.GetContainerProperties(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GetContainerProperties after delete status = %d, want 404", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Code != "ContainerNotFound" {
		t.Errorf("error code = %q, want ContainerNotFound", resp.Code)
	}
}

func TestListContainersHTTP(t *testing.T) {
	ch, _ := newTestHandlers(t)
	for _, name := range []string{"charlie", "alpha", "bravo"} {
		createContainer(t, ch, name)
	}

	req := httptest.NewRequest("GET", "/?comp=list", nil)
	rec := httptest.NewRecorder()
	ch.ListContainers(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}

	var resp xmlutil.ListContainersResponse
	if err := xml.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	want := []string{"alpha", "bravo", "charlie"}
	if len(resp.Containers) != len(want) {
		t.Fatalf("containers = %d, want %d", len(resp.Containers), len(want))
	}
	for i, name := range want {
		if resp.Containers[i].Name != name {
			t.Errorf("containers[%d] = %q, want %q", i, resp.Containers[i].Name, name)
		}
	}
	if resp.NextMarker != "" {
		t.Errorf("NextMarker = %q, want empty", resp.NextMarker)
	}
}

func TestListContainersPagination(t *testing.T) {
	ch, _ := newTestHandlers(t)
	for _, name := range []string{"aa", "bb", "cc", "dd"} {
		createContainer(t, ch, name)
	}

	req := httptest.NewRequest("GET", "/?comp=list&maxresults=2", nil)
	rec := httptest.NewRecorder()
	ch.ListContainers(rec, req)

	var resp xmlutil.ListContainersResponse
	if err := xml.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Containers) != 2 {
		t.Fatalf("page size = %d, want 2", len(resp.Containers))
	}
	if resp.NextMarker != "bb" {
		t.Fatalf("NextMarker = %q, want %q", resp.NextMarker, "bb")
	}

	req = httptest.NewRequest("GET", "/?comp=list&marker="+resp.NextMarker, nil)
	rec = httptest.NewRecorder()
	ch.ListContainers(rec, req)
	if err := xml.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding second page: %v", err)
	}
	if len(resp.Containers) != 2 || resp.Containers[0].Name != "cc" {
		t.Errorf("second page = %v, want [cc dd]", resp.Containers)
	}
}

func TestListContainersBadMaxResults(t *testing.T) {
	ch, _ := newTestHandlers(t)

	for _, q := range []string{"maxresults=0", "maxresults=-1", "maxresults=abc"} {
		req := httptest.NewRequest("GET", "/?comp=list&"+q, nil)
		rec := httptest.NewRecorder()
		ch.ListContainers(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rec.Code)
		}
	}
}

func TestContainerLeaseLifecycle(t *testing.T) {
	ch, _ := newTestHandlers(t)
	createContainer(t, ch, "leased")

	// Acquire.
	req := httptest.NewRequest("PUT", "/leased?restype=container&comp=lease", nil)
	req.Header.Set("x-ms-lease-action", "acquire")
	req.Header.Set("x-ms-lease-duration", "30")
	rec := httptest.NewRecorder()
	ch.ContainerLease(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("acquire status = %d, want 201; body: %s", rec.Code, rec.Body.String())
	}
	leaseID := rec.Header().Get("x-ms-lease-id")
	if leaseID == "" {
		t.Fatal("x-ms-lease-id header missing")
	}

	// Renew.
	req = httptest.NewRequest("PUT", "/leased?restype=container&comp=lease", nil)
	req.Header.Set("x-ms-lease-action", "renew")
	req.Header.Set("x-ms-lease-id", leaseID)
	rec = httptest.NewRecorder()
	ch.ContainerLease(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("renew status = %d, want 200", rec.Code)
	}

	// Delete under lease without the ID fails.
	req = httptest.NewRequest("DELETE", "/leased?restype=container", nil)
	rec = httptest.NewRecorder()
	ch.DeleteContainer(rec, req)
	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("delete without lease status = %d, want 412", rec.Code)
	}

	// Break reports remaining seconds.
	req = httptest.NewRequest("PUT", "/leased?restype=container&comp=lease", nil)
	req.Header.Set("x-ms-lease-action", "break")
	req.Header.Set("x-ms-lease-break-period", "0")
	rec = httptest.NewRecorder()
	ch.ContainerLease(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("break status = %d, want 202", rec.Code)
	}
	if got := rec.Header().Get("x-ms-lease-time"); got != "0" {
		t.Errorf("x-ms-lease-time = %q, want %q", got, "0")
	}
}

func TestContainerLeaseUnknownAction(t *testing.T) {
	ch, _ := newTestHandlers(t)
	createContainer(t, ch, "leased")

	req := httptest.NewRequest("PUT", "/leased?restype=container&comp=lease", nil)
	req.Header.Set("x-ms-lease-action", "steal")
	rec := httptest.NewRecorder()
	ch.ContainerLease(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestListBlobsHTTP(t *testing.T) {
	ch, bh := newTestHandlers(t)
	createContainer(t, ch, "docs")

	for _, name := range []string{"b.txt", "a.txt"} {
		req := httptest.NewRequest("PUT", "/docs/"+name, strings.NewReader("data"))
		rec := httptest.NewRecorder()
		bh.PutBlob(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("PutBlob(%q) status = %d, want 201", name, rec.Code)
		}
	}

	req := httptest.NewRequest("GET", "/docs?restype=container&comp=list", nil)
	rec := httptest.NewRecorder()
	ch.ListBlobs(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}

	var resp xmlutil.ListBlobsResponse
	if err := xml.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.ContainerName != "docs" {
		t.Errorf("ContainerName = %q, want %q", resp.ContainerName, "docs")
	}
	if len(resp.Blobs) != 2 || resp.Blobs[0].Name != "a.txt" || resp.Blobs[1].Name != "b.txt" {
		t.Errorf("blobs = %v, want [a.txt b.txt]", resp.Blobs)
	}
	if resp.Blobs[0].Properties.ContentLength != 4 {
		t.Errorf("content length = %d, want 4", resp.Blobs[0].Properties.ContentLength)
	}
}
