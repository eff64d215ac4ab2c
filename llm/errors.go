// Typed request errors, constructed at the throw site in each adapter so no
// downstream component has to re-infer an error's kind from its shape.
package llm

import "fmt"

// RequestError reports a failed backend request. Curl holds a reproducible
// command-line equivalent of the request, with credentials redacted, for
// user-facing debugging.
type RequestError struct {
	Message string
	Status  int
	Curl    string
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("request failed (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("request failed: %s", e.Message)
}

// RateLimitError reports HTTP 429 from the backend.
type RateLimitError struct {
	RequestError
}

// PaymentRequiredError reports HTTP 402 from the backend.
type PaymentRequiredError struct {
	RequestError
}

// newRequestError classifies a failed request by status code.
// 402 and 429 get dedicated types so the caller can render an actionable
// message; everything else stays a generic RequestError.
func newRequestError(status int, message, curl string) error {
	base := RequestError{Message: message, Status: status, Curl: curl}
	switch status {
	case 402:
		return &PaymentRequiredError{RequestError: base}
	case 429:
		return &RateLimitError{RequestError: base}
	default:
		return &base
	}
}
