// Package apperr defines the API error taxonomy and writes failure envelopes.
// Every failure response has the shape {"success": false, "message": "...", "code": "..."}.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Machine-readable error codes.
const (
	CodeMissingAuth           = "MISSING_AUTH"
	CodeInvalidToken          = "INVALID_TOKEN"
	CodeAdminRequired         = "ADMIN_ACCESS_REQUIRED"
	CodeRoleRequired          = "ROLE_REQUIRED"
	CodeSelfDelete            = "SELF_DELETE_FORBIDDEN"
	CodeInvalidCredentials    = "INVALID_CREDENTIALS"
	CodeValidation            = "VALIDATION_ERROR"
	CodeMissingFields         = "MISSING_FIELDS"
	CodeInvalidEmail          = "INVALID_EMAIL"
	CodeInvalidRole           = "INVALID_ROLE"
	CodeInvalidIdentification = "INVALID_IDENTIFICATION"
	CodeInvalidCoordinates    = "INVALID_COORDINATES"
	CodeNotFound              = "NOT_FOUND"
	CodeDuplicateEntry        = "DUPLICATE_ENTRY"
	CodeInvalidFileType       = "INVALID_FILE_TYPE"
	CodeFileTooLarge          = "FILE_TOO_LARGE"
	CodeTooManyFiles          = "TOO_MANY_FILES"
	CodeUnexpectedFileField   = "UNEXPECTED_FILE_FIELD"
	CodeUploadError           = "UPLOAD_ERROR"
	CodeServiceUnavailable    = "SERVICE_UNAVAILABLE"
	CodeInternal              = "INTERNAL_SERVER_ERROR"
)

// Error is an error that knows how it is presented to API clients.
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
	// Err is the underlying cause, logged but never sent to clients.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// With returns a copy of e carrying an extra detail.
func (e *Error) With(key string, value any) *Error {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// New creates an Error.
func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// Constructors for the usual cases.

// MissingAuth returns 401 when no credential was presented.
func MissingAuth() *Error {
	return New(http.StatusUnauthorized, CodeMissingAuth, "authentication token is required")
}

// InvalidToken returns 403 for a malformed, forged or expired credential.
func InvalidToken(err error) *Error {
	return &Error{Status: http.StatusForbidden, Code: CodeInvalidToken, Message: "invalid or expired token", Err: err}
}

// AdminRequired returns 403 when the identity does not hold the admin role.
func AdminRequired(role string) *Error {
	return New(http.StatusForbidden, CodeAdminRequired, "admin access required").With("role", role)
}

// Forbidden returns 403 with a custom code.
func Forbidden(code, message string) *Error {
	return New(http.StatusForbidden, code, message)
}

// Validation returns 400 for malformed input.
func Validation(code, message string) *Error {
	return New(http.StatusBadRequest, code, message)
}

// MissingFields returns 400 naming the absent required fields.
func MissingFields(fields []string) *Error {
	return New(http.StatusBadRequest, CodeMissingFields,
		"missing required fields: "+strings.Join(fields, ", ")).With("fields", fields)
}

// NotFound returns 404 for the named resource.
func NotFound(resource string) *Error {
	return New(http.StatusNotFound, CodeNotFound, resource+" not found")
}

// Duplicate returns 400 for a unique constraint violation.
func Duplicate(message string, err error) *Error {
	return &Error{Status: http.StatusBadRequest, Code: CodeDuplicateEntry, Message: message, Err: err}
}

// Internal returns 500 wrapping an unexpected cause.
func Internal(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "internal server error", Err: err}
}

// From converts any error into an *Error, defaulting to Internal.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// Envelope is the failure response body.
type Envelope struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

// Body renders the failure envelope. The cause of internal errors is
// included only when exposeInternal is set.
func (e *Error) Body(exposeInternal bool) Envelope {
	msg := e.Message
	if e.Status >= http.StatusInternalServerError && exposeInternal && e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return Envelope{
		Success: false,
		Message: msg,
		Code:    e.Code,
		Details: e.Details,
	}
}

// Respond aborts the gin request with the failure envelope for err.
func Respond(c *gin.Context, err error, exposeInternal bool) {
	appErr := From(err)
	_ = c.Error(appErr)
	c.AbortWithStatusJSON(appErr.Status, appErr.Body(exposeInternal))
}
