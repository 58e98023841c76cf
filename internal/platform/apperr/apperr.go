// Package apperr is the error taxonomy shared by every feature package and
// its mapping onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Code string

const (
	CodeUnauthenticated        Code = "UNAUTHENTICATED"
	CodeInvalidCredential      Code = "INVALID_CREDENTIAL"
	CodePermissionDenied       Code = "PERMISSION_DENIED"
	CodeInvalidArgument        Code = "INVALID_ARGUMENT"
	CodeAlreadyExists          Code = "ALREADY_EXISTS"
	CodeNotFound               Code = "NOT_FOUND"
	CodeConflict               Code = "CONFLICT"
	CodeInvalidStateTransition Code = "INVALID_STATE_TRANSITION"
	CodeReferentialConflict    Code = "REFERENTIAL_CONFLICT"
	CodeInternal               Code = "INTERNAL"
)

type APIError struct {
	Code    Code
	Message string
	// Field names the offending input for INVALID_ARGUMENT and ALREADY_EXISTS.
	Field string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func Unauthenticated(msg string) error   { return &APIError{Code: CodeUnauthenticated, Message: msg} }
func InvalidCredential(msg string) error { return &APIError{Code: CodeInvalidCredential, Message: msg} }
func PermissionDenied(msg string) error  { return &APIError{Code: CodePermissionDenied, Message: msg} }
func InvalidArgument(msg string) error   { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func NotFound(msg string) error          { return &APIError{Code: CodeNotFound, Message: msg} }
func Conflict(msg string) error          { return &APIError{Code: CodeConflict, Message: msg} }
func InvalidTransition(msg string) error {
	return &APIError{Code: CodeInvalidStateTransition, Message: msg}
}
func ReferentialConflict(msg string) error {
	return &APIError{Code: CodeReferentialConflict, Message: msg}
}

func InvalidField(field, msg string) error {
	return &APIError{Code: CodeInvalidArgument, Message: msg, Field: field}
}

func AlreadyExists(field string) error {
	return &APIError{Code: CodeAlreadyExists, Message: field + " already exists", Field: field}
}

// CodeOf returns the taxonomy code of err, INTERNAL for anything untyped.
func CodeOf(err error) Code {
	var api *APIError
	if errors.As(err, &api) {
		return api.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeUnauthenticated, CodeInvalidCredential:
		return http.StatusUnauthorized
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyExists, CodeConflict, CodeInvalidStateTransition, CodeReferentialConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type ErrorDTO struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func Body(code Code, msg string) ErrorDTO {
	return ErrorDTO{Error: ErrorBody{Code: code, Message: msg}}
}

// FromErr renders err for a client. Untyped errors never leak their text.
func FromErr(err error) ErrorDTO {
	var api *APIError
	if errors.As(err, &api) {
		return ErrorDTO{Error: ErrorBody{Code: api.Code, Message: api.Message, Field: api.Field}}
	}
	return Body(CodeInternal, "internal error")
}

// Respond writes err as the JSON failure body and aborts the chain.
// Internal errors are logged with the request path.
func Respond(c *gin.Context, log *zap.Logger, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError && log != nil {
		log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, FromErr(err))
}
