package protocol

import "encoding/json"

// SealRequest asks the server to encrypt Data.
type SealRequest struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// OpenRequest asks the server to decrypt Ciphertext.
type OpenRequest struct {
	ID         string `json:"id"`
	Ciphertext string `json:"ciphertext"`
}

// Result answers a SealRequest (Ciphertext set) or an OpenRequest (Payload
// and Signature set).
type Result struct {
	ID         string          `json:"id"`
	Ciphertext string          `json:"ciphertext,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Signature  string          `json:"signature,omitempty"`
}

// Error codes carried by ErrorMessage.
const (
	CodeInvalidKey        = "invalid_key"
	CodeSerialization     = "serialization"
	CodeMalformedPayload  = "malformed_payload"
	CodeSignatureMismatch = "signature_mismatch"
	CodeTampered          = "tampered"
	CodeNotImplemented    = "not_implemented"
	CodeRateLimited       = "rate_limited"
	CodeBadRequest        = "bad_request"
	CodeInternal          = "internal"
)

// ErrorMessage reports a failed request.
type ErrorMessage struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}
