package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/quorvia/swarmroute/internal/tlsutil"
	"github.com/quorvia/swarmroute/types"
)

// HTTPConfig configures the HTTP inference adapter.
type HTTPConfig struct {
	// BaseURL is the inference backend root, e.g. "http://inference:8090".
	BaseURL string `json:"base_url" yaml:"base_url"`

	// Timeout bounds one invocation end to end.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultHTTPConfig returns the default adapter configuration.
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		Timeout: 30 * time.Second,
	}
}

// maxResponseBytes caps how much of a backend response is read.
const maxResponseBytes = 4 << 20

// HTTPInvoker invokes agents over HTTP: POST
// {base}/v1/agents/{agentID}/invoke with the task as JSON body.
type HTTPInvoker struct {
	config *HTTPConfig
	client *http.Client
	logger *zap.Logger
}

type invokeRequest struct {
	Task *types.Task `json:"task"`
}

type invokeResponse struct {
	Result any    `json:"result"`
	Error  string `json:"error,omitempty"`
}

// NewHTTPInvoker creates the adapter. Client and logger may be nil; config
// must carry a base URL.
func NewHTTPInvoker(config *HTTPConfig, client *http.Client, logger *zap.Logger) (*HTTPInvoker, error) {
	if config == nil || config.BaseURL == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "inference base URL is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultHTTPConfig().Timeout
	}
	if client == nil {
		client = tlsutil.Client(config.Timeout)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPInvoker{
		config: config,
		client: client,
		logger: logger.With(zap.String("component", "http_invoker")),
	}, nil
}

// Invoke posts the task to the backend and returns the decoded result.
func (h *HTTPInvoker) Invoke(ctx context.Context, agentID string, task *types.Task) (any, error) {
	if agentID == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "agent ID is required")
	}
	if task == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "task is required")
	}

	body, err := json.Marshal(invokeRequest{Task: task})
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "encode invoke request").WithCause(err)
	}

	endpoint := fmt.Sprintf("%s/v1/agents/%s/invoke",
		strings.TrimRight(h.config.BaseURL, "/"), url.PathEscape(agentID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "build invoke request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrInferenceFailed, "inference request failed").
			WithCause(err).
			WithRetryable(true).
			WithAgentID(agentID)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, types.NewError(types.ErrInferenceFailed, "read inference response").
			WithCause(err).
			WithRetryable(true).
			WithAgentID(agentID)
	}

	var decoded invokeResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil && resp.StatusCode < 300 {
			return nil, types.NewError(types.ErrInferenceFailed, "decode inference response").
				WithCause(err).
				WithAgentID(agentID)
		}
	}

	if resp.StatusCode >= 300 {
		message := decoded.Error
		if message == "" {
			message = fmt.Sprintf("inference backend returned status %d", resp.StatusCode)
		}
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, types.NewError(types.ErrInferenceFailed, message).
			WithHTTPStatus(resp.StatusCode).
			WithRetryable(retryable).
			WithAgentID(agentID)
	}

	if decoded.Error != "" {
		return nil, types.NewError(types.ErrInferenceFailed, decoded.Error).WithAgentID(agentID)
	}

	h.logger.Debug("invocation completed",
		zap.String("agent_id", agentID),
		zap.String("task_id", task.ID))
	return decoded.Result, nil
}
