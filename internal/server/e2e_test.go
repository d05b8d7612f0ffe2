package server

import (
	"context"
	"io"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/cobaltstore/cobaltstore/internal/config"
	"github.com/cobaltstore/cobaltstore/internal/engine"
)

// TestAzureSDKCompatibility exercises the server through the official Azure
// Blob Storage SDK client. Set COBALTSTORE_E2E=1 to run it.
func TestAzureSDKCompatibility(t *testing.T) {
	if os.Getenv("COBALTSTORE_E2E") == "" {
		t.Skip("set COBALTSTORE_E2E=1 to run SDK compatibility tests")
	}

	srv, err := New(config.Default(), engine.New())
	if err != nil {
		t.Fatalf("creating server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx := context.Background()
	client, err := azblob.NewClientWithNoCredential(ts.URL+"/", nil)
	if err != nil {
		t.Fatalf("creating SDK client: %v", err)
	}

	if _, err := client.CreateContainer(ctx, "sdktest", nil); err != nil {
		t.Fatalf("CreateContainer via SDK: %v", err)
	}

	content := []byte("uploaded through the official SDK")
	if _, err := client.UploadBuffer(ctx, "sdktest", "hello.txt", content, nil); err != nil {
		t.Fatalf("UploadBuffer via SDK: %v", err)
	}

	resp, err := client.DownloadStream(ctx, "sdktest", "hello.txt", nil)
	if err != nil {
		t.Fatalf("DownloadStream via SDK: %v", err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("reading download stream: %v", err)
	}
	if string(data) != string(content) {
		t.Errorf("downloaded = %q, want %q", data, content)
	}

	pager := client.NewListBlobsFlatPager("sdktest", nil)
	var names []string
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			t.Fatalf("listing blobs via SDK: %v", err)
		}
		for _, item := range page.Segment.BlobItems {
			names = append(names, *item.Name)
		}
	}
	if len(names) != 1 || names[0] != "hello.txt" {
		t.Errorf("blob names = %v, want [hello.txt]", names)
	}

	if _, err := client.DeleteBlob(ctx, "sdktest", "hello.txt", nil); err != nil {
		t.Fatalf("DeleteBlob via SDK: %v", err)
	}
	if _, err := client.DeleteContainer(ctx, "sdktest", nil); err != nil {
		t.Fatalf("DeleteContainer via SDK: %v", err)
	}
}
