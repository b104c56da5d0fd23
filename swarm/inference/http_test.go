package inference

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quorvia/swarmroute/types"
)

func TestHTTPInvoker_ImplementsInvoker(t *testing.T) {
	var _ Invoker = (*HTTPInvoker)(nil)
	var _ Invoker = (*BreakerInvoker)(nil)
	var _ Invoker = (InvokerFunc)(nil)
}

func TestHTTPInvoker_RequiresBaseURL(t *testing.T) {
	_, err := NewHTTPInvoker(nil, nil, zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))

	_, err = NewHTTPInvoker(&HTTPConfig{}, nil, zap.NewNop())
	require.Error(t, err)
}

func TestHTTPInvoker_DefaultClientIsHardened(t *testing.T) {
	inv, err := NewHTTPInvoker(&HTTPConfig{BaseURL: "http://inference:8090", Timeout: 5 * time.Second}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, inv.client.Timeout)
	tr, ok := inv.client.Transport.(*http.Transport)
	require.True(t, ok)
	require.NotNil(t, tr.TLSClientConfig)
	assert.GreaterOrEqual(t, tr.TLSClientConfig.MinVersion, uint16(tls.VersionTLS12))
}

func TestHTTPInvoker_SuccessfulInvocation(t *testing.T) {
	var gotPath, gotContentType string
	var gotBody invokeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(invokeResponse{Result: map[string]any{"output": "done"}})
	}))
	defer server.Close()

	inv, err := NewHTTPInvoker(&HTTPConfig{BaseURL: server.URL}, nil, zap.NewNop())
	require.NoError(t, err)

	result, err := inv.Invoke(context.Background(), "agent-1",
		&types.Task{ID: "t1", Description: "summarize the incident"})
	require.NoError(t, err)

	assert.Equal(t, "/v1/agents/agent-1/invoke", gotPath)
	assert.Equal(t, "application/json", gotContentType)
	require.NotNil(t, gotBody.Task)
	assert.Equal(t, "t1", gotBody.Task.ID)

	payload, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "done", payload["output"])
}

func TestHTTPInvoker_BackendErrorStatuses(t *testing.T) {
	cases := []struct {
		name          string
		status        int
		body          string
		wantRetryable bool
		wantMessage   string
	}{
		{
			name:          "server error is retryable",
			status:        http.StatusInternalServerError,
			body:          `{"error":"model crashed"}`,
			wantRetryable: true,
			wantMessage:   "model crashed",
		},
		{
			name:          "rate limit is retryable",
			status:        http.StatusTooManyRequests,
			body:          ``,
			wantRetryable: true,
			wantMessage:   "status 429",
		},
		{
			name:          "client error is terminal",
			status:        http.StatusBadRequest,
			body:          `{"error":"unknown agent"}`,
			wantRetryable: false,
			wantMessage:   "unknown agent",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			inv, err := NewHTTPInvoker(&HTTPConfig{BaseURL: server.URL}, nil, zap.NewNop())
			require.NoError(t, err)

			_, err = inv.Invoke(context.Background(), "agent-1", &types.Task{ID: "t1"})
			require.Error(t, err)
			assert.Equal(t, types.ErrInferenceFailed, types.GetErrorCode(err))
			assert.Equal(t, tc.wantRetryable, types.IsRetryable(err))
			assert.Contains(t, err.Error(), tc.wantMessage)
		})
	}
}

func TestHTTPInvoker_ApplicationLevelError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(invokeResponse{Error: "agent declined the task"})
	}))
	defer server.Close()

	inv, err := NewHTTPInvoker(&HTTPConfig{BaseURL: server.URL}, nil, zap.NewNop())
	require.NoError(t, err)

	_, err = inv.Invoke(context.Background(), "agent-1", &types.Task{ID: "t1"})
	require.Error(t, err)
	assert.Equal(t, types.ErrInferenceFailed, types.GetErrorCode(err))
	assert.False(t, types.IsRetryable(err))
	assert.Contains(t, err.Error(), "agent declined the task")
}

func TestHTTPInvoker_UnreachableBackend(t *testing.T) {
	inv, err := NewHTTPInvoker(&HTTPConfig{
		BaseURL: "http://127.0.0.1:1",
		Timeout: 200 * time.Millisecond,
	}, nil, zap.NewNop())
	require.NoError(t, err)

	_, err = inv.Invoke(context.Background(), "agent-1", &types.Task{ID: "t1"})
	require.Error(t, err)
	assert.Equal(t, types.ErrInferenceFailed, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

func TestHTTPInvoker_InputValidation(t *testing.T) {
	inv, err := NewHTTPInvoker(&HTTPConfig{BaseURL: "http://example.invalid"}, nil, zap.NewNop())
	require.NoError(t, err)

	_, err = inv.Invoke(context.Background(), "", &types.Task{ID: "t1"})
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))

	_, err = inv.Invoke(context.Background(), "agent-1", nil)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestHTTPInvoker_ContextCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	inv, err := NewHTTPInvoker(&HTTPConfig{BaseURL: server.URL}, nil, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = inv.Invoke(ctx, "agent-1", &types.Task{ID: "t1"})
	require.Error(t, err)
	assert.True(t, types.IsRetryable(err))
}
