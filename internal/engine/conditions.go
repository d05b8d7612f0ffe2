package engine

import "time"

// Condition outcomes returned by CheckConditions. The caller decides how to
// surface them; the evaluator is context-free.
const (
	ConditionsMet        = 0
	ConditionNotModified = 304
	ConditionFailed      = 412
)

// CheckConditions evaluates conditional request headers against the current
// etag and last-modified time of a resource, in a fixed order, returning the
// first failing status:
//
//  1. If-Match present and not equal to the current etag: 412.
//  2. If-None-Match present and equal to the current etag: 304.
//  3. If-Modified-Since present and the resource is not strictly newer: 304.
//  4. If-Unmodified-Since present and the resource is strictly newer: 412.
//
// Returns ConditionsMet (0) when every supplied condition holds.
func CheckConditions(h ConditionalHeaders, etag string, lastModified time.Time) int {
	if h.IfMatch != "" && h.IfMatch != etag {
		return ConditionFailed
	}
	if h.IfNoneMatch != "" && h.IfNoneMatch == etag {
		return ConditionNotModified
	}
	if h.IfModifiedSince != nil && !lastModified.After(*h.IfModifiedSince) {
		return ConditionNotModified
	}
	if h.IfUnmodifiedSince != nil && lastModified.After(*h.IfUnmodifiedSince) {
		return ConditionFailed
	}
	return ConditionsMet
}
