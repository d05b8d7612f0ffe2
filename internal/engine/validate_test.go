package engine

import (
	"strings"
	"testing"
)

func TestValidContainerName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"simple", "mycontainer", true},
		{"with hyphen", "my-container", true},
		{"with digits", "container123", true},
		{"minimum length", "abc", true},
		{"maximum length", strings.Repeat("a", 63), true},
		{"too short", "ab", false},
		{"too long", strings.Repeat("a", 64), false},
		{"uppercase", "MyContainer", false},
		{"leading hyphen", "-container", false},
		{"trailing hyphen", "container-", false},
		{"consecutive hyphens", "my--container", false},
		{"underscore", "my_container", false},
		{"dot", "my.container", false},
		{"empty", "", false},
		{"spaces", "my container", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidContainerName(tt.input); got != tt.want {
				t.Errorf("ValidContainerName(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidBlobName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"simple", "blob.txt", true},
		{"path-like", "dir/sub/blob.txt", true},
		{"single char", "a", true},
		{"maximum length", strings.Repeat("a", 1024), true},
		{"too long", strings.Repeat("a", 1025), false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidBlobName(tt.input); got != tt.want {
				t.Errorf("ValidBlobName(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidBlockID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"valid base64", "YmxvY2stMDAwMQ==", true},
		{"short", "QQ==", true},
		{"not base64", "not base64!!", false},
		{"empty", "", false},
		// Decodes to 65 bytes, one over the limit.
		{"decodes too long", "QUFBQUFBQUFBQUFBQUFBQUFBQUFBQUFBQUFBQUFBQUFBQUFBQUFBQUFBQUFBQUFBQUFBQUFBQUFBQUFBQUFBQUE=", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidBlockID(tt.input); got != tt.want {
				t.Errorf("ValidBlockID(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
