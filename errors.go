package omnillm

import (
	"errors"
	"fmt"
)

var (
	// ErrCallTypeMismatch is returned when a chat function is requested from
	// an embedding-typed client or vice versa.
	ErrCallTypeMismatch = errors.New("client call type mismatch")
)

// ProviderError is a non-2xx vendor response. Body carries the vendor's
// error payload verbatim for diagnostics.
type ProviderError struct {
	Provider   Provider
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// DecodeError is a vendor response whose JSON did not match the expected
// schema. The raw body is preserved so callers can inspect what came back.
type DecodeError struct {
	Provider Provider
	Body     string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s response: %v", e.Provider, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
