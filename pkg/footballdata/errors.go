package footballdata

import (
	"errors"
	"fmt"
)

// The closed error set every caller is expected to branch on. Anything the
// client cannot classify wraps ErrUnknown.
var (
	ErrRateLimited   = errors.New("rate limited by data provider")
	ErrNetwork       = errors.New("network error")
	ErrDecoding      = errors.New("malformed response")
	ErrNotFound      = errors.New("resource not found")
	ErrInvalidConfig = errors.New("invalid client configuration")
	ErrUnsupported   = errors.New("not supported by this source tier")
	ErrUnknown       = errors.New("unknown data provider error")
)

// ServerError carries the HTTP status of a 5xx response. It matches
// errors.Is(err, ErrUnknown) so callers without a code-specific branch can
// still classify it.
type ServerError struct {
	Code int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d", e.Code)
}

func (e *ServerError) Is(target error) bool {
	return target == ErrUnknown
}
