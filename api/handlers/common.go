package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/quorvia/swarmroute/types"
)

// maxRequestBody caps decoded request bodies at 1 MB.
const maxRequestBody = 1 << 20

// Response is the envelope every API endpoint writes.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo carries a structured error in the response envelope.
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	AgentID   string `json:"agent_id,omitempty"`
}

// WriteJSON writes data as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a 200 envelope around data.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// WriteCreated writes a 201 envelope around data.
func WriteCreated(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusCreated, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// WriteError writes an error envelope. The status comes from the error's
// explicit HTTPStatus when set, otherwise from its code.
func WriteError(w http.ResponseWriter, apiErr *types.Error, logger *zap.Logger) {
	if apiErr == nil {
		apiErr = types.NewError(types.ErrInternalError, "unknown error")
	}
	status := apiErr.HTTPStatus
	if status == 0 {
		status = mapErrorCodeToHTTPStatus(apiErr.Code)
	}
	if logger != nil {
		logger.Warn("request failed",
			zap.String("code", string(apiErr.Code)),
			zap.Int("status", status),
			zap.String("message", apiErr.Message),
		)
	}
	WriteJSON(w, status, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      string(apiErr.Code),
			Message:   apiErr.Message,
			Retryable: apiErr.Retryable,
			AgentID:   apiErr.AgentID,
		},
		Timestamp: time.Now().UTC(),
	})
}

// WriteErrorMessage writes an error envelope from a code and message.
func WriteErrorMessage(w http.ResponseWriter, code types.ErrorCode, message string, logger *zap.Logger) {
	WriteError(w, types.NewError(code, message), logger)
}

// mapErrorCodeToHTTPStatus maps error codes to HTTP status codes.
func mapErrorCodeToHTTPStatus(code types.ErrorCode) int {
	switch code {
	case types.ErrInvalidRequest:
		return http.StatusBadRequest
	case types.ErrAuthentication:
		return http.StatusUnauthorized
	case types.ErrNotFound:
		return http.StatusNotFound
	case types.ErrAlreadyExists:
		return http.StatusConflict
	case types.ErrRateLimited:
		return http.StatusTooManyRequests
	case types.ErrInferenceFailed:
		return http.StatusBadGateway
	case types.ErrNoAgentsAvailable, types.ErrTrustUnavailable,
		types.ErrStoreUnavailable, types.ErrServiceUnavailable:
		return http.StatusServiceUnavailable
	case types.ErrTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSONBody decodes a JSON request body into dst in strict mode:
// unknown fields, trailing data, and bodies over 1 MB are rejected. On
// failure the error response has already been written.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		WriteError(w, types.NewError(types.ErrInvalidRequest,
			"invalid request body: "+err.Error()), logger)
		return err
	}
	if dec.More() {
		err := errors.New("request body must contain a single JSON object")
		WriteError(w, types.NewError(types.ErrInvalidRequest, err.Error()), logger)
		return err
	}
	return nil
}

// ValidateContentType requires application/json on the request, ignoring
// charset and other parameters. On mismatch a 415 response has already
// been written and false is returned.
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	contentType := r.Header.Get("Content-Type")
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if mediaType == "application/json" {
		return true
	}
	WriteError(w, types.NewError(types.ErrInvalidRequest,
		"Content-Type must be application/json").
		WithHTTPStatus(http.StatusUnsupportedMediaType), logger)
	return false
}

// ResponseWriter wraps http.ResponseWriter to capture the status code for
// logging and metrics middleware.
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Written    bool
}

// NewResponseWriter wraps w with a 200 default status.
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{ResponseWriter: w, StatusCode: http.StatusOK}
}

// WriteHeader records the status code. Later calls are ignored, matching
// net/http semantics.
func (rw *ResponseWriter) WriteHeader(status int) {
	if rw.Written {
		return
	}
	rw.StatusCode = status
	rw.Written = true
	rw.ResponseWriter.WriteHeader(status)
}

// Write marks the response written and forwards to the underlying writer.
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	rw.Written = true
	return rw.ResponseWriter.Write(b)
}

// Flush forwards to the underlying writer when it supports flushing.
func (rw *ResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
