// internal/app/features/errors/errors.go
package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/dalemusser/coachhub/internal/app/lifecycle"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Body is the JSON shape of every error response.
type Body struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Write sends an error body.
func Write(w http.ResponseWriter, status int, code, msg string) {
	JSON(w, status, Body{Error: code, Message: msg})
}

// BadRequest is for bodies or path parameters that do not parse.
func BadRequest(w http.ResponseWriter, msg string) {
	Write(w, http.StatusBadRequest, "bad_request", msg)
}

// Unauthorized is for requests without a usable session user.
func Unauthorized(w http.ResponseWriter) {
	Write(w, http.StatusUnauthorized, "unauthorized", "sign in required")
}

// NotFound serves as the router's 404 handler.
func NotFound(w http.ResponseWriter, r *http.Request) {
	Write(w, http.StatusNotFound, "not_found", "no route for "+r.Method+" "+r.URL.Path)
}

// MethodNotAllowed serves as the router's 405 handler.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	Write(w, http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" not allowed")
}

// Validation writes a 422 listing each failed field and its rule.
func Validation(w http.ResponseWriter, err error) {
	body := Body{Error: "validation_failed", Message: "request failed validation"}
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) {
		body.Fields = make(map[string]string, len(verrs))
		for _, fe := range verrs {
			field := fe.Field()
			if field == "" {
				field = "body"
			}
			body.Fields[strings.ToLower(field)] = fe.Tag()
		}
	} else {
		body.Message = err.Error()
	}
	JSON(w, http.StatusUnprocessableEntity, body)
}

// Lifecycle maps an engine error onto its HTTP status. Storage failures
// and anything unclassified are logged; the cause is not echoed back.
func Lifecycle(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case stderrors.Is(err, lifecycle.ErrNotFound):
		Write(w, http.StatusNotFound, "not_found", err.Error())
	case stderrors.Is(err, lifecycle.ErrConflict):
		Write(w, http.StatusConflict, "conflict", err.Error())
	case stderrors.Is(err, lifecycle.ErrUnauthorized):
		Write(w, http.StatusForbidden, "forbidden", err.Error())
	case stderrors.Is(err, lifecycle.ErrInvalidState):
		Write(w, http.StatusBadRequest, "invalid_state", err.Error())
	case stderrors.Is(err, lifecycle.ErrStorage):
		logger.Error("storage failure", zap.Error(err))
		Write(w, http.StatusServiceUnavailable, "storage_unavailable", "storage temporarily unavailable")
	default:
		logger.Error("unexpected error", zap.Error(err))
		Write(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
