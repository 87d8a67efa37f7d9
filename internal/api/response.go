package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/septivank/smartbag-service/internal/device"
	"github.com/septivank/smartbag-service/internal/logging"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// ApiResponse is a standard response structure for the API
type ApiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func sendJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func sendSuccess(w http.ResponseWriter, statusCode int, message string, data any) {
	sendJSON(w, statusCode, ApiResponse{Success: true, Message: message, Data: data})
}

func sendError(w http.ResponseWriter, statusCode int, message string) {
	sendJSON(w, statusCode, ApiResponse{Success: false, Error: message})
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, device.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, device.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, device.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, device.ErrAlreadyClaimed), errors.Is(err, device.ErrCodeConflict):
		return http.StatusConflict
	case errors.Is(err, device.ErrUnsupportedZone):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// sendServiceError writes err with its mapped status. Internal errors are logged and hidden.
func sendServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.WithRequestID(logger, middleware.GetReqID(r.Context())).Error("request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
		sendError(w, status, "internal server error")
		return
	}

	var verr *device.ValidationError
	if errors.As(err, &verr) {
		sendError(w, status, verr.Error())
		return
	}
	sendError(w, status, publicMessage(err))
}

func publicMessage(err error) string {
	for _, sentinel := range []error{
		device.ErrNotFound,
		device.ErrAlreadyClaimed,
		device.ErrCodeConflict,
		device.ErrInvalidCredentials,
		device.ErrUnsupportedZone,
		device.ErrValidation,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

// decodeBody decodes a JSON body, rejecting unknown fields and trailing data
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return device.NewValidationError("body", "required")
		}
		return device.NewValidationError("body", err.Error())
	}
	if decoder.More() {
		return device.NewValidationError("body", "must contain a single JSON object")
	}
	return nil
}

func badPathParam(name, value string) error {
	return device.NewValidationError(name, fmt.Sprintf("invalid value %q", value))
}
