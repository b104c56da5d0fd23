package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quorvia/swarmroute/types"
)

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name       string
		data       any
		wantStatus int
	}{
		{
			name:       "simple object",
			data:       map[string]string{"message": "hello"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "array",
			data:       []int{1, 2, 3},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteJSON(w, tt.wantStatus, tt.data)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()

	WriteSuccess(w, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp Response
	err := json.NewDecoder(w.Body).Decode(&resp)
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteCreated(t *testing.T) {
	w := httptest.NewRecorder()

	WriteCreated(w, map[string]string{"id": "agent-1"})

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp Response
	err := json.NewDecoder(w.Body).Decode(&resp)
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Data)
}

func TestWriteError(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name           string
		err            *types.Error
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "invalid request",
			err:            types.NewError(types.ErrInvalidRequest, "task is required"),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   string(types.ErrInvalidRequest),
		},
		{
			name:           "not found",
			err:            types.NewError(types.ErrNotFound, "agent not found"),
			expectedStatus: http.StatusNotFound,
			expectedCode:   string(types.ErrNotFound),
		},
		{
			name:           "already exists",
			err:            types.NewError(types.ErrAlreadyExists, "agent already registered"),
			expectedStatus: http.StatusConflict,
			expectedCode:   string(types.ErrAlreadyExists),
		},
		{
			name:           "rate limited",
			err:            types.NewError(types.ErrRateLimited, "too many requests"),
			expectedStatus: http.StatusTooManyRequests,
			expectedCode:   string(types.ErrRateLimited),
		},
		{
			name:           "store unavailable",
			err:            types.NewError(types.ErrStoreUnavailable, "redis is down"),
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   string(types.ErrStoreUnavailable),
		},
		{
			name:           "internal error",
			err:            types.NewError(types.ErrInternalError, "unexpected"),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   string(types.ErrInternalError),
		},
		{
			name:           "explicit status wins",
			err:            types.NewError(types.ErrInvalidRequest, "teapot").WithHTTPStatus(http.StatusTeapot),
			expectedStatus: http.StatusTeapot,
			expectedCode:   string(types.ErrInvalidRequest),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err, logger)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var resp Response
			err := json.NewDecoder(w.Body).Decode(&resp)
			require.NoError(t, err)

			assert.False(t, resp.Success)
			assert.Nil(t, resp.Data)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.expectedCode, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.Message)
		})
	}
}

func TestWriteError_CarriesAgentIDAndRetryable(t *testing.T) {
	w := httptest.NewRecorder()

	apiErr := types.NewError(types.ErrInferenceFailed, "invocation failed").
		WithAgentID("coder-1").
		WithRetryable(true)
	WriteError(w, apiErr, zap.NewNop())

	assert.Equal(t, http.StatusBadGateway, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "coder-1", resp.Error.AgentID)
	assert.True(t, resp.Error.Retryable)
}

func TestDecodeJSONBody(t *testing.T) {
	logger := zap.NewNop()

	type testStruct struct {
		Name  string `json:"name"`
		Value int    `json:"value"`
	}

	tests := []struct {
		name      string
		body      string
		wantErr   bool
		checkFunc func(*testing.T, *testStruct)
	}{
		{
			name: "valid JSON",
			body: `{"name":"test","value":123}`,
			checkFunc: func(t *testing.T, ts *testStruct) {
				assert.Equal(t, "test", ts.Name)
				assert.Equal(t, 123, ts.Value)
			},
		},
		{
			name:    "invalid JSON",
			body:    `{"name":"test",}`,
			wantErr: true,
		},
		{
			name:    "unknown field",
			body:    `{"name":"test","unknown":"field"}`,
			wantErr: true,
		},
		{
			name:    "trailing data",
			body:    `{"name":"a"}{"name":"b"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(tt.body))

			var result testStruct
			err := DecodeJSONBody(w, r, &result, logger)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, http.StatusBadRequest, w.Code)
			} else {
				assert.NoError(t, err)
				if tt.checkFunc != nil {
					tt.checkFunc(t, &result)
				}
			}
		})
	}
}

func TestDecodeJSONBody_MaxBodySize(t *testing.T) {
	logger := zap.NewNop()

	type testStruct struct {
		Name string `json:"name"`
	}

	oversized := `{"name":"` + strings.Repeat("x", 2<<20) + `"}`

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(oversized))

	var result testStruct
	err := DecodeJSONBody(w, r, &result, logger)

	assert.Error(t, err, "body exceeding 1 MB should be rejected")
}

func TestDecodeJSONBody_WithinLimit(t *testing.T) {
	logger := zap.NewNop()

	type testStruct struct {
		Name string `json:"name"`
	}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"name":"small"}`))

	var result testStruct
	err := DecodeJSONBody(w, r, &result, logger)

	assert.NoError(t, err)
	assert.Equal(t, "small", result.Name)
}

func TestValidateContentType(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name        string
		contentType string
		want        bool
	}{
		{
			name:        "plain application/json",
			contentType: "application/json",
			want:        true,
		},
		{
			name:        "with charset",
			contentType: "application/json; charset=utf-8",
			want:        true,
		},
		{
			name:        "uppercase charset",
			contentType: "application/json; charset=UTF-8",
			want:        true,
		},
		{
			name:        "extra whitespace",
			contentType: "application/json;  charset=utf-8",
			want:        true,
		},
		{
			name:        "text/plain",
			contentType: "text/plain",
			want:        false,
		},
		{
			name:        "empty",
			contentType: "",
			want:        false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/test", nil)
			r.Header.Set("Content-Type", tt.contentType)

			got := ValidateContentType(w, r, logger)
			assert.Equal(t, tt.want, got)
			if !tt.want {
				assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
			}
		})
	}
}

func TestResponseWriter(t *testing.T) {
	w := httptest.NewRecorder()
	rw := NewResponseWriter(w)

	assert.Equal(t, http.StatusOK, rw.StatusCode)
	assert.False(t, rw.Written)

	rw.WriteHeader(http.StatusCreated)
	assert.Equal(t, http.StatusCreated, rw.StatusCode)
	assert.True(t, rw.Written)

	// A second status write is ignored.
	rw.WriteHeader(http.StatusBadRequest)
	assert.Equal(t, http.StatusCreated, rw.StatusCode)

	n, err := rw.Write([]byte("test"))
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code       types.ErrorCode
		wantStatus int
	}{
		{types.ErrInvalidRequest, http.StatusBadRequest},
		{types.ErrAuthentication, http.StatusUnauthorized},
		{types.ErrNotFound, http.StatusNotFound},
		{types.ErrAlreadyExists, http.StatusConflict},
		{types.ErrRateLimited, http.StatusTooManyRequests},
		{types.ErrInferenceFailed, http.StatusBadGateway},
		{types.ErrNoAgentsAvailable, http.StatusServiceUnavailable},
		{types.ErrTrustUnavailable, http.StatusServiceUnavailable},
		{types.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{types.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{types.ErrTimeout, http.StatusGatewayTimeout},
		{types.ErrInternalError, http.StatusInternalServerError},
		{"UNKNOWN_CODE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, mapErrorCodeToHTTPStatus(tt.code))
		})
	}
}
