// Package errors defines Azure-Storage-compatible error types used throughout CobaltStore.
package errors

import "fmt"

// StorageError represents a storage API error with a machine-readable code,
// human-readable message, and HTTP status code.
type StorageError struct {
	// Code is the storage error code (e.g., "ContainerNotFound", "LeaseIdMismatch").
	Code string
	// Message is a human-readable description of the error.
	Message string
	// HTTPStatus is the HTTP status code to return (e.g., 404, 409).
	HTTPStatus int
}

// Error implements the error interface for StorageError.
func (e *StorageError) Error() string {
	return fmt.Sprintf("StorageError %s (%d): %s", e.Code, e.HTTPStatus, e.Message)
}

// Pre-defined storage errors for common conditions.
var (
	// ErrContainerNotFound is returned when the specified container does not exist.
	ErrContainerNotFound = &StorageError{
		Code:       "ContainerNotFound",
		Message:    "The specified container does not exist",
		HTTPStatus: 404,
	}

	// ErrContainerAlreadyExists is returned when creating a container that already exists.
	ErrContainerAlreadyExists = &StorageError{
		Code:       "ContainerAlreadyExists",
		Message:    "The specified container already exists",
		HTTPStatus: 409,
	}

	// ErrBlobNotFound is returned when the specified blob does not exist.
	ErrBlobNotFound = &StorageError{
		Code:       "BlobNotFound",
		Message:    "The specified blob does not exist",
		HTTPStatus: 404,
	}

	// ErrSnapshotNotFound is returned when the specified blob snapshot does not exist.
	ErrSnapshotNotFound = &StorageError{
		Code:       "SnapshotNotFound",
		Message:    "The specified snapshot does not exist",
		HTTPStatus: 404,
	}

	// ErrInvalidContainerName is returned when the container name is invalid.
	ErrInvalidContainerName = &StorageError{
		Code:       "InvalidResourceName",
		Message:    "The specified container name is not valid",
		HTTPStatus: 400,
	}

	// ErrInvalidBlobName is returned when the blob name is invalid.
	ErrInvalidBlobName = &StorageError{
		Code:       "InvalidResourceName",
		Message:    "The specified blob name is not valid",
		HTTPStatus: 400,
	}

	// ErrInvalidBlockID is returned when a block ID is not valid base64 or
	// decodes to more than 64 bytes, or when a committed block list references
	// a block that was never staged.
	ErrInvalidBlockID = &StorageError{
		Code:       "InvalidBlockId",
		Message:    "The specified block ID is invalid",
		HTTPStatus: 400,
	}

	// ErrInvalidLeaseDuration is returned when the requested lease duration is
	// out of range.
	ErrInvalidLeaseDuration = &StorageError{
		Code:       "InvalidHeaderValue",
		Message:    "lease duration must be 15-60 seconds or -1",
		HTTPStatus: 400,
	}

	// ErrLeaseAlreadyPresent is returned when acquiring a lease on a resource
	// that already holds an active lease.
	ErrLeaseAlreadyPresent = &StorageError{
		Code:       "LeaseAlreadyPresent",
		Message:    "There is already a lease present",
		HTTPStatus: 409,
	}

	// ErrLeaseNotPresent is returned when a lease operation requires an
	// existing lease but none is held.
	ErrLeaseNotPresent = &StorageError{
		Code:       "LeaseNotPresentWithLeaseOperation",
		Message:    "There is currently no lease on the resource",
		HTTPStatus: 409,
	}

	// ErrLeaseIDMissing is returned when a mutating operation targets a leased
	// resource without supplying a lease ID.
	ErrLeaseIDMissing = &StorageError{
		Code:       "LeaseIdMissing",
		Message:    "There is currently a lease on the resource and no lease ID was specified in the request",
		HTTPStatus: 412,
	}

	// ErrLeaseIDMismatch is returned when the supplied lease ID does not match
	// the active lease.
	ErrLeaseIDMismatch = &StorageError{
		Code:       "LeaseIdMismatch",
		Message:    "The lease ID specified did not match the lease ID for the resource",
		HTTPStatus: 412,
	}

	// ErrConditionNotMet is returned when a conditional header evaluates to a
	// failed precondition.
	ErrConditionNotMet = &StorageError{
		Code:       "ConditionNotMet",
		Message:    "The condition specified using HTTP conditional header(s) is not met",
		HTTPStatus: 412,
	}

	// ErrNotModified is returned when a read condition (If-None-Match or
	// If-Modified-Since) is not satisfied. The HTTP layer renders it as a 304
	// with no body.
	ErrNotModified = &StorageError{
		Code:       "ConditionNotMet",
		Message:    "The condition specified using HTTP conditional header(s) is not met",
		HTTPStatus: 304,
	}

	// ErrInvalidQueryParameter is returned when a query parameter value is not
	// recognized (e.g., an unknown comp= value).
	ErrInvalidQueryParameter = &StorageError{
		Code:       "InvalidQueryParameterValue",
		Message:    "Value for one of the query parameters specified in the request URI is invalid",
		HTTPStatus: 400,
	}

	// ErrInvalidXMLDocument is returned when a request body that should be
	// XML (e.g., a put block list body) cannot be parsed.
	ErrInvalidXMLDocument = &StorageError{
		Code:       "InvalidXmlDocument",
		Message:    "XML specified is not syntactically valid",
		HTTPStatus: 400,
	}

	// ErrInvalidHeaderValue is returned when a request header carries a value
	// that cannot be parsed (e.g., a non-numeric lease break period).
	ErrInvalidHeaderValue = &StorageError{
		Code:       "InvalidHeaderValue",
		Message:    "The value for one of the HTTP headers is not in the correct format",
		HTTPStatus: 400,
	}

	// ErrUnsupportedHTTPVerb is returned when the HTTP method is not supported
	// for the resource.
	ErrUnsupportedHTTPVerb = &StorageError{
		Code:       "UnsupportedHttpVerb",
		Message:    "The resource doesn't support the specified HTTP verb",
		HTTPStatus: 405,
	}

	// ErrInternal is returned for unexpected internal failures.
	ErrInternal = &StorageError{
		Code:       "InternalError",
		Message:    "The server encountered an internal error. Please retry the request.",
		HTTPStatus: 500,
	}
)
