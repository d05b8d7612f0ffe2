package engine

import (
	"encoding/base64"
	"regexp"
	"strings"
)

// containerNameRegex validates container names per Azure naming rules:
// 3-63 characters, lowercase letters, digits, and hyphens, beginning and
// ending with a letter or digit.
var containerNameRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// maxBlobNameLength is the maximum blob name length in bytes.
const maxBlobNameLength = 1024

// maxDecodedBlockIDLength is the maximum decoded block ID length in bytes.
const maxDecodedBlockIDLength = 64

// ValidContainerName reports whether name is a valid container name:
// 3-63 lowercase alphanumerics and hyphens, alphanumeric first and last
// characters, and no consecutive hyphens.
func ValidContainerName(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if !containerNameRegex.MatchString(name) {
		return false
	}
	return !strings.Contains(name, "--")
}

// ValidBlobName reports whether name is a valid blob name: non-empty and at
// most 1024 bytes.
func ValidBlobName(name string) bool {
	return len(name) > 0 && len(name) <= maxBlobNameLength
}

// ValidBlockID reports whether id is a valid block ID: a base64 string that
// decodes to between 1 and 64 bytes.
func ValidBlockID(id string) bool {
	decoded, err := base64.StdEncoding.DecodeString(id)
	if err != nil {
		return false
	}
	return len(decoded) >= 1 && len(decoded) <= maxDecodedBlockIDLength
}
