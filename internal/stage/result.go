package stage

import (
	"maps"
	"strings"
)

// Result keys the coordinator consumes.
const (
	KeyDocumentID         = "document_id"
	KeyStorageLocation    = "storage_location"
	KeySignatureRequestID = "signature_request_id"
	KeyDocumentType       = "document_type"
	KeyStatus             = "status"
)

// Signature status values reported by the signature status integration.
const (
	SignaturePending   = "pending"
	SignatureCompleted = "completed"
	SignatureDeclined  = "declined"
	SignatureExpired   = "expired"
)

// Result is the stage outcome; keys beyond the well-known ones are free-form
// data merged into the transaction's processing context.
type Result map[string]any

// Args carries stage-specific inputs for an integration call.
type Args map[string]any

// String returns the trimmed string value at key.
func (r Result) String(key string) string {
	if v, ok := r[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// SignatureStatus returns the normalized status value of a signature check.
func (r Result) SignatureStatus() string {
	return strings.ToLower(r.String(KeyStatus))
}

// Clone returns a shallow copy of r.
func (r Result) Clone() Result {
	return maps.Clone(r)
}

// Map exposes r as a plain map for the queue.
func (r Result) Map() map[string]any {
	return map[string]any(r)
}
