// Package vcerrors defines the single typed-error taxonomy VibeCheck
// surfaces at every boundary: orchestrators, the assessment coordinator,
// the tunnel multiplexer, and the REST layer. A corresponding translator
// in pkg/api maps these onto HTTP responses; everywhere else they are
// propagated as ordinary Go error values.
package vcerrors

import (
	"errors"
	"fmt"
)

// Kind categorizes a failure the way spec.md §7 does.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindValidation Kind = "validation_error"
	KindConflict   Kind = "conflict"
	KindTunnel     Kind = "tunnel_error"
	KindExternal   Kind = "external_error"
)

// Code values are the uppercase terminal error codes persisted on a
// failed assessment's error_type field.
const (
	CodeDuplicateIdempotencyKey = "DUPLICATE_IDEMPOTENCY_KEY"
	CodeCloneFailed             = "CLONE_FAILED"
	CodeGeminiAPIKeyMissing     = "GEMINI_API_KEY_MISSING"
	CodeTargetUnreachable       = "TARGET_UNREACHABLE"
	CodeAgentExecutionFailed    = "AGENT_EXECUTION_FAILED"
	CodeTunnelNotConnected      = "TUNNEL_NOT_CONNECTED"
	CodeLogsNotAvailable        = "LOGS_NOT_AVAILABLE"
	CodeUnknownAgent            = "UNKNOWN_AGENT"
	CodeAssessmentInProgress    = "ASSESSMENT_IN_PROGRESS"
	CodeNotFound                = "NOT_FOUND"
	CodeValidationFailed        = "VALIDATION_FAILED"
)

// Error is the single tagged-value error type used across package
// boundaries. It carries enough to render the REST error envelope
// {error:{type, message, code, param?}} without re-deriving an HTTP
// status from a generic error at the edge.
type Error struct {
	Kind       Kind
	Code       string
	Message    string
	Param      string
	HTTPStatus int
	Cause      error
}

func (e *Error) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param=%s)", e.Code, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(kind Kind, code string, status int, msg string) *Error {
	return &Error{Kind: kind, Code: code, HTTPStatus: status, Message: msg}
}

// NotFound builds a 404 not_found error for the named resource.
func NotFound(resource, id string) *Error {
	return newErr(KindNotFound, CodeNotFound, 404, fmt.Sprintf("%s %q not found", resource, id))
}

// Validation builds a 400 validation_error error, optionally naming the
// offending parameter.
func Validation(param, msg string) *Error {
	e := newErr(KindValidation, CodeValidationFailed, 400, msg)
	e.Param = param
	return e
}

// DuplicateIdempotencyKey builds the 409 conflict raised when the same
// idempotency key is reused with a different mode.
func DuplicateIdempotencyKey(key string) *Error {
	e := newErr(KindConflict, CodeDuplicateIdempotencyKey, 409,
		fmt.Sprintf("idempotency key %q already used with a different mode", key))
	e.Param = "idempotency_key"
	return e
}

// AssessmentInProgress builds the 400 conflict raised when rerun is
// requested on a non-terminal assessment.
func AssessmentInProgress(id string) *Error {
	return newErr(KindConflict, CodeAssessmentInProgress, 400,
		fmt.Sprintf("assessment %q is still in progress", id))
}

// TunnelNotConnected builds the tunnel_error raised when proxy_request
// targets a session with no live channel.
func TunnelNotConnected(sessionID string) *Error {
	return newErr(KindTunnel, CodeTunnelNotConnected, 400,
		fmt.Sprintf("tunnel session %q is not connected", sessionID))
}

// TargetUnreachable builds the tunnel_error/external_error raised when a
// probe or proxied request times out or fails to connect.
func TargetUnreachable(target string, cause error) *Error {
	e := newErr(KindTunnel, CodeTargetUnreachable, 502,
		fmt.Sprintf("target %q unreachable", target))
	e.Cause = cause
	return e
}

// CloneFailed builds the external_error raised when shallow repo clone
// fails.
func CloneFailed(repoURL string, cause error) *Error {
	e := newErr(KindExternal, CodeCloneFailed, 502,
		fmt.Sprintf("failed to clone %q", repoURL))
	e.Cause = cause
	return e
}

// LogsNotAvailable builds the 400 raised when logs are requested for a
// lightweight assessment.
func LogsNotAvailable(id string) *Error {
	return newErr(KindValidation, CodeLogsNotAvailable, 400,
		fmt.Sprintf("assessment %q has no agent logs (lightweight mode)", id))
}

// UnknownAgent builds the 400 raised when an unregistered agent name is
// requested.
func UnknownAgent(name string) *Error {
	e := newErr(KindValidation, CodeUnknownAgent, 400, fmt.Sprintf("unknown agent %q", name))
	e.Param = "agents"
	return e
}

// As reports whether err (or something it wraps) is a *Error, returning it.
func As(err error) (*Error, bool) {
	var target *Error
	ok := errors.As(err, &target)
	return target, ok
}
