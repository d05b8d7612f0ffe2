// Package xmlutil provides helpers for rendering blob-service XML responses.
package xmlutil

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	storageerr "github.com/cobaltstore/cobaltstore/internal/errors"
)

// xmlHeader is the standard XML declaration prepended to all responses.
const xmlHeader = `<?xml version="1.0" encoding="utf-8"?>` + "\n"

// ErrorResponse is the XML structure for blob service error responses.
type ErrorResponse struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}

// Metadata renders a metadata map as a <Metadata> element with one child
// element per key. Keys are emitted in sorted order so output is stable.
// A nil or empty map renders nothing.
type Metadata map[string]string

// MarshalXML implements xml.Marshaler. Maps have no default XML encoding.
func (m Metadata) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if len(m) == 0 {
		return nil
	}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		elem := xml.StartElement{Name: xml.Name{Local: k}}
		if err := e.EncodeElement(m[k], elem); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

// ContainerProperties holds the property fields of one listed container.
type ContainerProperties struct {
	LastModified string `xml:"Last-Modified"`
	ETag         string `xml:"Etag"`
	LeaseStatus  string `xml:"LeaseStatus"`
	LeaseState   string `xml:"LeaseState"`
}

// Container represents a single container in a list containers response.
type Container struct {
	Name       string              `xml:"Name"`
	Properties ContainerProperties `xml:"Properties"`
	Metadata   Metadata            `xml:"Metadata,omitempty"`
}

// ListContainersResponse is the XML structure for list containers responses.
type ListContainersResponse struct {
	XMLName         xml.Name    `xml:"EnumerationResults"`
	ServiceEndpoint string      `xml:"ServiceEndpoint,attr"`
	Prefix          string      `xml:"Prefix,omitempty"`
	Marker          string      `xml:"Marker,omitempty"`
	MaxResults      int         `xml:"MaxResults,omitempty"`
	Containers      []Container `xml:"Containers>Container"`
	NextMarker      string      `xml:"NextMarker"`
}

// BlobProperties holds the property fields of one listed blob.
type BlobProperties struct {
	LastModified  string `xml:"Last-Modified"`
	ETag          string `xml:"Etag"`
	ContentLength int64  `xml:"Content-Length"`
	ContentType   string `xml:"Content-Type"`
	BlobType      string `xml:"BlobType"`
	AccessTier    string `xml:"AccessTier"`
	LeaseStatus   string `xml:"LeaseStatus"`
	LeaseState    string `xml:"LeaseState"`
}

// Blob represents a single blob (base or snapshot) in a list blobs response.
type Blob struct {
	Name       string         `xml:"Name"`
	Snapshot   string         `xml:"Snapshot,omitempty"`
	Properties BlobProperties `xml:"Properties"`
	Metadata   Metadata       `xml:"Metadata,omitempty"`
}

// ListBlobsResponse is the XML structure for list blobs responses.
type ListBlobsResponse struct {
	XMLName         xml.Name `xml:"EnumerationResults"`
	ServiceEndpoint string   `xml:"ServiceEndpoint,attr"`
	ContainerName   string   `xml:"ContainerName,attr"`
	Prefix          string   `xml:"Prefix,omitempty"`
	Marker          string   `xml:"Marker,omitempty"`
	MaxResults      int      `xml:"MaxResults,omitempty"`
	Blobs           []Blob   `xml:"Blobs>Blob"`
	NextMarker      string   `xml:"NextMarker"`
}

// Block represents a single block in a get block list response.
type Block struct {
	Name string `xml:"Name"`
	Size int64  `xml:"Size"`
}

// BlockListResponse is the XML structure for get block list responses.
type BlockListResponse struct {
	XMLName           xml.Name `xml:"BlockList"`
	CommittedBlocks   []Block  `xml:"CommittedBlocks>Block"`
	UncommittedBlocks []Block  `xml:"UncommittedBlocks>Block"`
}

// ParseBlockList decodes a put block list request body and returns the block
// IDs in document order. The element name (Committed, Uncommitted, or
// Latest) is accepted but not distinguished: the engine resolves every ID
// from the staged blocks.
func ParseBlockList(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var ids []string
	var inList bool
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing block list: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "BlockList":
				inList = true
			case "Committed", "Uncommitted", "Latest":
				if !inList {
					return nil, fmt.Errorf("parsing block list: %s outside BlockList", t.Name.Local)
				}
				var id string
				if err := dec.DecodeElement(&id, &t); err != nil {
					return nil, fmt.Errorf("parsing block list: %w", err)
				}
				ids = append(ids, id)
			default:
				return nil, fmt.Errorf("parsing block list: unexpected element %s", t.Name.Local)
			}
		}
	}
	if !inList {
		return nil, fmt.Errorf("parsing block list: missing BlockList element")
	}
	return ids, nil
}

// RenderError writes a blob service error XML response.
func RenderError(w http.ResponseWriter, serr *storageerr.StorageError) {
	resp := ErrorResponse{
		Code:    serr.Code,
		Message: serr.Message,
	}
	writeXML(w, serr.HTTPStatus, resp)
}

// WriteErrorResponse renders any error as a blob service error response,
// mapping non-storage errors to InternalError.
func WriteErrorResponse(w http.ResponseWriter, err error) {
	serr, ok := err.(*storageerr.StorageError)
	if !ok {
		serr = storageerr.ErrInternal
	}
	// 304 responses carry no body.
	if serr.HTTPStatus == http.StatusNotModified {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	RenderError(w, serr)
}

// RenderListContainers writes a ListContainersResponse XML body.
func RenderListContainers(w http.ResponseWriter, result *ListContainersResponse) {
	writeXML(w, http.StatusOK, result)
}

// RenderListBlobs writes a ListBlobsResponse XML body.
func RenderListBlobs(w http.ResponseWriter, result *ListBlobsResponse) {
	writeXML(w, http.StatusOK, result)
}

// RenderBlockList writes a BlockListResponse XML body.
func RenderBlockList(w http.ResponseWriter, result *BlockListResponse) {
	writeXML(w, http.StatusOK, result)
}

// FormatTimeHTTP formats a time.Time as an HTTP date per RFC 7231
// (e.g., "Mon, 02 Jan 2006 15:04:05 GMT").
func FormatTimeHTTP(t time.Time) string {
	return t.UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT")
}

// writeXML marshals v as XML and writes it to w with the given HTTP status code.
func writeXML(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)

	io.WriteString(w, xmlHeader)
	enc := xml.NewEncoder(w)
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(w, "<!-- XML encoding error: %v -->", err)
	}
}
