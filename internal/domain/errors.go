package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// ErrorType is the fixed vocabulary of normalized error types.
type ErrorType string

// Normalized error types.
const (
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	ErrorTypePermission     ErrorType = "permission_error"
	ErrorTypeRateLimit      ErrorType = "rate_limit_error"
	ErrorTypeContentPolicy  ErrorType = "content_policy_violation"
	ErrorTypeTimeout        ErrorType = "timeout_error"
	ErrorTypeAPI            ErrorType = "api_error"
	ErrorTypeServer         ErrorType = "server_error"
	ErrorTypeProvider       ErrorType = "provider_error"
	ErrorTypeInternal       ErrorType = "internal_error"
	ErrorTypeAuthentication ErrorType = "authentication_error"
)

// CodeTimeout is the symbolic code attached to attempt timeouts.
const CodeTimeout = "timeout"

// IsKnown reports whether t belongs to the normalized vocabulary.
func (t ErrorType) IsKnown() bool {
	switch t {
	case ErrorTypeInvalidRequest, ErrorTypePermission, ErrorTypeRateLimit,
		ErrorTypeContentPolicy, ErrorTypeTimeout, ErrorTypeAPI, ErrorTypeServer,
		ErrorTypeProvider, ErrorTypeInternal, ErrorTypeAuthentication:
		return true
	default:
		return false
	}
}

// Code is either an HTTP-like integer or a short symbolic string.
// The zero value means no code.
type Code struct {
	status int
	symbol string
}

// StatusCode builds a numeric code.
func StatusCode(status int) Code {
	return Code{status: status}
}

// SymbolCode builds a symbolic code.
func SymbolCode(symbol string) Code {
	return Code{symbol: symbol}
}

// Status returns the numeric code and whether the code is numeric.
func (c Code) Status() (int, bool) {
	return c.status, c.status != 0
}

// Symbol returns the symbolic code and whether the code is symbolic.
func (c Code) Symbol() (string, bool) {
	return c.symbol, c.symbol != ""
}

// IsZero reports whether no code is set.
func (c Code) IsZero() bool {
	return c.status == 0 && c.symbol == ""
}

// String renders the code for logs.
func (c Code) String() string {
	if c.status != 0 {
		return strconv.Itoa(c.status)
	}
	return c.symbol
}

// MarshalJSON encodes a number, a string, or null.
func (c Code) MarshalJSON() ([]byte, error) {
	switch {
	case c.status != 0:
		return json.Marshal(c.status)
	case c.symbol != "":
		return json.Marshal(c.symbol)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a number, a string, or null.
func (c *Code) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid error code: %w", err)
	}

	switch v := raw.(type) {
	case nil:
		*c = Code{}
	case float64:
		*c = StatusCode(int(v))
	case string:
		*c = SymbolCode(v)
	default:
		return fmt.Errorf("unsupported error code %v", raw)
	}
	return nil
}

// Error is the normalized error envelope every translator produces on failure.
type Error struct {
	Message string    `json:"message"`
	Type    ErrorType `json:"type"`
	Code    Code      `json:"code"`

	// Cause is the underlying error, if any. It never crosses the wire.
	Cause error `json:"-"`
}

// NewError creates an envelope without a cause.
func NewError(errType ErrorType, code Code, format string, args ...any) *Error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Type:    errType,
		Code:    code,
		Cause:   nil,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code.IsZero() {
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the envelope to an HTTP status: the numeric code when it is a
// valid error status, otherwise 500.
func (e *Error) HTTPStatus() int {
	if status, ok := e.Code.Status(); ok && status >= http.StatusBadRequest && status <= 599 {
		return status
	}
	return http.StatusInternalServerError
}

// AsError extracts the envelope from err. Errors that are not envelopes are
// wrapped as internal errors.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}

	var envelope *Error
	if errors.As(err, &envelope) {
		return envelope
	}

	return &Error{
		Message: err.Error(),
		Type:    ErrorTypeInternal,
		Code:    Code{},
		Cause:   err,
	}
}

// ErrorTypeForStatus derives a vocabulary type from an HTTP status.
func ErrorTypeForStatus(status int) ErrorType {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorTypePermission
	case status == http.StatusRequestTimeout:
		return ErrorTypeTimeout
	case status == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case status >= http.StatusInternalServerError:
		return ErrorTypeAPI
	case status >= http.StatusBadRequest:
		return ErrorTypeInvalidRequest
	default:
		return ErrorTypeProvider
	}
}

var (
	retriableTypes = map[ErrorType]struct{}{
		ErrorTypeTimeout:   {},
		ErrorTypeAPI:       {},
		ErrorTypeServer:    {},
		ErrorTypeRateLimit: {},
	}

	retriableStatuses = map[int]struct{}{
		http.StatusTooManyRequests:     {},
		http.StatusInternalServerError: {},
		http.StatusBadGateway:          {},
		http.StatusServiceUnavailable:  {},
		http.StatusGatewayTimeout:      {},
	}

	retriableFragments = []string{"timeout", "overloaded", "rate limit"}
)

// IsRetriable classifies an envelope. Symbolic type is checked first, then the
// numeric code, then case-sensitive message fragments. It is a pure function.
func IsRetriable(e *Error) bool {
	if e == nil {
		return false
	}

	if _, ok := retriableTypes[e.Type]; ok {
		return true
	}

	if status, ok := e.Code.Status(); ok {
		if _, retriable := retriableStatuses[status]; retriable {
			return true
		}
	}

	for _, fragment := range retriableFragments {
		if strings.Contains(e.Message, fragment) {
			return true
		}
	}

	return false
}
