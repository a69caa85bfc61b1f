// Package handlers defines HTTP-layer error codes used across the relay API.
//
// This file centralizes symbolic error code constants that are mapped to HTTP
// responses (via the `fail()` helper in this package). Terminals branch on
// these codes; the message is for operators reading logs.
//
// Conventions:
//   - Codes are lowercase, snake_case.
//   - Generic codes mirror common HTTP status semantics.
//   - Sync-specific codes are reserved for failures the status alone cannot
//     convey (e.g. a relay storage failure the terminal should retry).
//
// Example response:
//
//	{
//	  "success": false,
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "invalid_request",
//	  "message": "changes[0]: entity_id must be positive"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Sync-specific:
	ErrCodeInvalidRequest = "invalid_request"
	ErrCodeStorage        = "storage_error"
	ErrCodeUnavailable    = "unavailable"
)
