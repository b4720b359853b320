package position

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Error codes reported to applications. Numbering follows the W3C
// geolocation convention the original bridge used.
const (
	CodePermissionDenied = 1
	CodeUnavailable      = 2
	CodeTimeout          = 3
)

// Error carries a numeric code and a human-readable message over the wire.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("position error %d: %s", e.Code, e.Message)
}

// Unavailable is the error returned when neither provider is enabled.
func Unavailable() *Error {
	return &Error{Code: CodeUnavailable, Message: "Location API is not available for this device."}
}

// Timeout is the error returned when a one-shot deadline elapses.
func Timeout(msg string) *Error {
	return &Error{Code: CodeTimeout, Message: msg}
}

// EncodeError serializes an error for the wire. If marshalling fails the
// payload is built by hand so the error is never lost.
func EncodeError(e *Error) []byte {
	data, err := json.Marshal(e)
	if err == nil {
		return data
	}
	return FallbackJSON(e.Code, e.Message)
}

// FallbackJSON hand-builds a {"code":...,"message":...} payload for the
// degraded path where real serialization failed.
func FallbackJSON(code int, msg string) []byte {
	msg = strings.ReplaceAll(msg, `\`, `\\`)
	msg = strings.ReplaceAll(msg, `"`, `\"`)
	return []byte(fmt.Sprintf(`{"code":%d,"message":"%s"}`, code, msg))
}
