// Package handlers implements the HTTP surface. Handlers are thin: decode,
// call the engine or store, encode. All domain rules live below this layer.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/roundtable-ai/roundtable/store"
	"github.com/roundtable-ai/roundtable/types"
)

// Response is the uniform JSON envelope.
type Response struct {
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Error   *types.Error `json:"error,omitempty"`
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteSuccess writes a success envelope.
func WriteSuccess(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, Response{Success: true, Data: data})
}

// WriteError maps the platform error taxonomy onto HTTP statuses and writes
// an error envelope. Untyped errors become opaque 500s.
func WriteError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var typed *types.Error
	if !errors.As(err, &typed) {
		typed = types.NewError(types.ErrInternal, "internal error").WithCause(err)
	}

	status := typed.HTTPStatus
	if status == 0 {
		status = statusForCode(typed.Code)
	}
	if status >= 500 {
		logger.Error("request failed", zap.String("code", string(typed.Code)), zap.Error(err))
	} else {
		logger.Debug("request rejected", zap.String("code", string(typed.Code)), zap.Error(err))
	}
	WriteJSON(w, status, Response{Success: false, Error: typed})
}

func statusForCode(code types.ErrorCode) int {
	switch code {
	case types.ErrValidation:
		return http.StatusBadRequest
	case types.ErrNotFound:
		return http.StatusNotFound
	case types.ErrConflict:
		return http.StatusConflict
	case types.ErrMalformedPlan:
		return http.StatusUnprocessableEntity
	case types.ErrProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decode reads the request body into v, rejecting unknown fields.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return types.NewError(types.ErrValidation, "invalid request body").WithCause(err)
	}
	return nil
}

// storeErr maps store sentinels at the HTTP boundary.
func storeErr(err error, kind string) error {
	if errors.Is(err, store.ErrNotFound) {
		return types.NewErrorf(types.ErrNotFound, "%s not found", kind).WithCause(err)
	}
	if errors.Is(err, store.ErrAlreadyExists) {
		return types.NewErrorf(types.ErrConflict, "%s already exists", kind).WithCause(err)
	}
	if errors.Is(err, store.ErrInvalidInput) {
		return types.NewErrorf(types.ErrValidation, "invalid %s", kind).WithCause(err)
	}
	if types.GetErrorCode(err) != "" {
		return err
	}
	return types.NewErrorf(types.ErrInternal, "%s store failure", kind).WithCause(err)
}
