package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/quorvia/swarmroute"
	"github.com/quorvia/swarmroute/swarm/delegation"
	"github.com/quorvia/swarmroute/swarm/inference"
	"github.com/quorvia/swarmroute/swarm/registry"
	"github.com/quorvia/swarmroute/types"
)

func newSwarmHandler(t *testing.T, opts ...swarmroute.Option) *SwarmHandler {
	t.Helper()
	opts = append([]swarmroute.Option{
		swarmroute.WithLogger(zaptest.NewLogger(t)),
		swarmroute.WithLocalInvoker(inference.InvokerFunc(
			func(_ context.Context, agentID string, task *types.Task) (any, error) {
				return map[string]any{"agent": agentID, "task": task.ID}, nil
			})),
	}, opts...)
	core, err := swarmroute.New(nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = core.Close() })
	return NewSwarmHandler(core, zaptest.NewLogger(t))
}

func registerWorker(t *testing.T, h *SwarmHandler, id string) {
	t.Helper()
	require.NoError(t, h.core.Registry().Register(&registry.Agent{
		ID: id, Capacity: 4, IsLocal: true, Expertise: []string{"routing"},
	}))
}

func jsonRequest(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) *Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return &resp
}

func decodeData(t *testing.T, resp *Response, dst any) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dst))
}

// countDataItems decodes a recorded list response and returns the item
// count, or -1 when the body does not parse. Safe inside Eventually
// conditions, which run off the test goroutine.
func countDataItems(w *httptest.ResponseRecorder) int {
	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		return -1
	}
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return -1
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return -1
	}
	return len(items)
}

func TestSwarmHandler_RegisterAgent(t *testing.T) {
	h := newSwarmHandler(t)

	w := httptest.NewRecorder()
	r := jsonRequest(http.MethodPost, "/api/v1/agents",
		`{"id":"coder-1","type":"coder","capacity":5,"is_local":true,"expertise":["go"]}`)

	h.HandleRegisterAgent(w, r)

	require.Equal(t, http.StatusCreated, w.Code)

	resp := decodeEnvelope(t, w)
	assert.True(t, resp.Success)

	var agent registry.Agent
	decodeData(t, resp, &agent)
	assert.Equal(t, "coder-1", agent.ID)
	assert.Equal(t, registry.AgentStatusOnline, agent.Status)
	assert.False(t, agent.RegisteredAt.IsZero())
}

func TestSwarmHandler_RegisterAgent_Duplicate(t *testing.T) {
	h := newSwarmHandler(t)
	registerWorker(t, h, "coder-1")

	w := httptest.NewRecorder()
	r := jsonRequest(http.MethodPost, "/api/v1/agents", `{"id":"coder-1","capacity":5}`)

	h.HandleRegisterAgent(w, r)

	assert.Equal(t, http.StatusConflict, w.Code)
	resp := decodeEnvelope(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(types.ErrAlreadyExists), resp.Error.Code)
}

func TestSwarmHandler_RegisterAgent_Invalid(t *testing.T) {
	h := newSwarmHandler(t)

	w := httptest.NewRecorder()
	r := jsonRequest(http.MethodPost, "/api/v1/agents", `{"id":"coder-1"}`)

	h.HandleRegisterAgent(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSwarmHandler_RegisterAgent_WrongContentType(t *testing.T) {
	h := newSwarmHandler(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/agents", strings.NewReader("id=coder-1"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	h.HandleRegisterAgent(w, r)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestSwarmHandler_ListAgents(t *testing.T) {
	h := newSwarmHandler(t)

	w := httptest.NewRecorder()
	h.HandleListAgents(w, httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil))

	resp := decodeEnvelope(t, w)
	var list struct {
		Count int `json:"count"`
	}
	decodeData(t, resp, &list)
	assert.Zero(t, list.Count)

	registerWorker(t, h, "coder-1")
	registerWorker(t, h, "coder-2")

	w = httptest.NewRecorder()
	h.HandleListAgents(w, httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil))

	resp = decodeEnvelope(t, w)
	decodeData(t, resp, &list)
	assert.Equal(t, 2, list.Count)
}

func TestSwarmHandler_GetAgent(t *testing.T) {
	h := newSwarmHandler(t)
	registerWorker(t, h, "coder-1")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/agents/coder-1", nil)
	r.SetPathValue("id", "coder-1")

	h.HandleGetAgent(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var agent registry.Agent
	decodeData(t, decodeEnvelope(t, w), &agent)
	assert.Equal(t, "coder-1", agent.ID)
}

func TestSwarmHandler_GetAgent_NotFound(t *testing.T) {
	h := newSwarmHandler(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/agents/ghost", nil)
	r.SetPathValue("id", "ghost")

	h.HandleGetAgent(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSwarmHandler_GetAgent_MissingID(t *testing.T) {
	h := newSwarmHandler(t)

	w := httptest.NewRecorder()
	h.HandleGetAgent(w, httptest.NewRequest(http.MethodGet, "/api/v1/agents/", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSwarmHandler_UnregisterAgent(t *testing.T) {
	h := newSwarmHandler(t)
	registerWorker(t, h, "coder-1")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodDelete, "/api/v1/agents/coder-1", nil)
	r.SetPathValue("id", "coder-1")

	h.HandleUnregisterAgent(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	_, found := h.core.Registry().Get("coder-1")
	assert.False(t, found)
}

func TestSwarmHandler_UnregisterAgent_NotFound(t *testing.T) {
	h := newSwarmHandler(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodDelete, "/api/v1/agents/ghost", nil)
	r.SetPathValue("id", "ghost")

	h.HandleUnregisterAgent(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSwarmHandler_UpdateWorkload(t *testing.T) {
	h := newSwarmHandler(t)
	registerWorker(t, h, "coder-1")

	w := httptest.NewRecorder()
	r := jsonRequest(http.MethodPatch, "/api/v1/agents/coder-1/workload", `{"workload":3}`)
	r.SetPathValue("id", "coder-1")

	h.HandleUpdateWorkload(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var agent registry.Agent
	decodeData(t, decodeEnvelope(t, w), &agent)
	assert.Equal(t, 3, agent.Workload)
}

func TestSwarmHandler_UpdateWorkload_NotFound(t *testing.T) {
	h := newSwarmHandler(t)

	w := httptest.NewRecorder()
	r := jsonRequest(http.MethodPatch, "/api/v1/agents/ghost/workload", `{"workload":3}`)
	r.SetPathValue("id", "ghost")

	h.HandleUpdateWorkload(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSwarmHandler_Heartbeat(t *testing.T) {
	h := newSwarmHandler(t)
	registerWorker(t, h, "coder-1")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/agents/coder-1/heartbeat", nil)
	r.SetPathValue("id", "coder-1")

	h.HandleHeartbeat(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var agent registry.Agent
	decodeData(t, decodeEnvelope(t, w), &agent)
	assert.False(t, agent.LastHeartbeat.IsZero())
}

func TestSwarmHandler_Delegate(t *testing.T) {
	h := newSwarmHandler(t)
	registerWorker(t, h, "coder-1")

	w := httptest.NewRecorder()
	r := jsonRequest(http.MethodPost, "/api/v1/delegate",
		`{"task_id":"task-1","description":"route this","type":"routing"}`)

	h.HandleDelegate(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var result delegation.DelegationResult
	decodeData(t, decodeEnvelope(t, w), &result)
	assert.Equal(t, "task-1", result.TaskID)
	assert.True(t, result.Success)
	assert.Equal(t, "coder-1", result.DelegatedToAgentID)
}

func TestSwarmHandler_Delegate_GeneratesTaskID(t *testing.T) {
	h := newSwarmHandler(t)
	registerWorker(t, h, "coder-1")

	w := httptest.NewRecorder()
	h.HandleDelegate(w, jsonRequest(http.MethodPost, "/api/v1/delegate", `{"description":"anything"}`))

	require.Equal(t, http.StatusOK, w.Code)
	var result delegation.DelegationResult
	decodeData(t, decodeEnvelope(t, w), &result)
	assert.NotEmpty(t, result.TaskID)
}

func TestSwarmHandler_Delegate_NoAgents(t *testing.T) {
	h := newSwarmHandler(t)

	w := httptest.NewRecorder()
	h.HandleDelegate(w, jsonRequest(http.MethodPost, "/api/v1/delegate", `{"description":"nobody home"}`))

	// Refusal is a result, not a transport error.
	require.Equal(t, http.StatusOK, w.Code)
	var result delegation.DelegationResult
	decodeData(t, decodeEnvelope(t, w), &result)
	assert.False(t, result.Success)
	assert.Equal(t, delegation.ErrMsgNoAgents, result.Error)
}

func TestSwarmHandler_TrustScore(t *testing.T) {
	h := newSwarmHandler(t)
	registerWorker(t, h, "coder-1")

	w := httptest.NewRecorder()
	h.HandleDelegate(w, jsonRequest(http.MethodPost, "/api/v1/delegate", `{"description":"build trust"}`))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/trust/coder-1", nil)
	r.SetPathValue("id", "coder-1")

	h.HandleTrustScore(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var score struct {
		AgentID      string  `json:"agent_id"`
		TrustScore   float64 `json:"trust_score"`
		Interactions int     `json:"interactions"`
	}
	decodeData(t, decodeEnvelope(t, w), &score)
	assert.Equal(t, "coder-1", score.AgentID)
	assert.Greater(t, score.TrustScore, 0.5)
	assert.Equal(t, 1, score.Interactions)
}

func TestSwarmHandler_TrustScore_NoHistory(t *testing.T) {
	h := newSwarmHandler(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/trust/ghost", nil)
	r.SetPathValue("id", "ghost")

	h.HandleTrustScore(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSwarmHandler_TrustRankings(t *testing.T) {
	h := newSwarmHandler(t)
	registerWorker(t, h, "coder-1")
	registerWorker(t, h, "coder-2")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/trust/rankings?description=route+this", nil)

	h.HandleTrustRankings(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var rankings []json.RawMessage
	decodeData(t, decodeEnvelope(t, w), &rankings)
	assert.Len(t, rankings, 2)
}

func TestSwarmHandler_RiskAssessment(t *testing.T) {
	h := newSwarmHandler(t)

	w := httptest.NewRecorder()
	h.HandleRiskAssessment(w, httptest.NewRequest(http.MethodGet, "/api/v1/risk/assessment", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeEnvelope(t, w).Success)
}

func TestSwarmHandler_DelegationConfig(t *testing.T) {
	h := newSwarmHandler(t)

	w := httptest.NewRecorder()
	h.HandleGetDelegationConfig(w, httptest.NewRequest(http.MethodGet, "/api/v1/delegation/config", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var cfg delegation.Config
	decodeData(t, decodeEnvelope(t, w), &cfg)
	assert.Positive(t, cfg.LatencyTargetMs)

	w = httptest.NewRecorder()
	r := jsonRequest(http.MethodPut, "/api/v1/delegation/config", `{"latency_target_ms":750}`)

	h.HandleUpdateDelegationConfig(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, decodeEnvelope(t, w), &cfg)
	assert.Equal(t, 750.0, cfg.LatencyTargetMs)
}

func TestSwarmHandler_UpdateDelegationConfig_UnknownField(t *testing.T) {
	h := newSwarmHandler(t)

	w := httptest.NewRecorder()
	r := jsonRequest(http.MethodPut, "/api/v1/delegation/config", `{"latency_budget":750}`)

	h.HandleUpdateDelegationConfig(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSwarmHandler_RecentDecisions(t *testing.T) {
	h := newSwarmHandler(t)
	registerWorker(t, h, "coder-1")

	w := httptest.NewRecorder()
	h.HandleDelegate(w, jsonRequest(http.MethodPost, "/api/v1/delegate", `{"task_id":"task-d","description":"persist me"}`))
	require.Equal(t, http.StatusOK, w.Code)

	// The decision mirror is written off the hot path.
	require.Eventually(t, func() bool {
		w := httptest.NewRecorder()
		h.HandleRecentDecisions(w, httptest.NewRequest(http.MethodGet, "/api/v1/decisions", nil))
		return w.Code == http.StatusOK && countDataItems(w) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSwarmHandler_RecentDelegations_Disabled(t *testing.T) {
	h := newSwarmHandler(t)

	w := httptest.NewRecorder()
	h.HandleRecentDelegations(w, httptest.NewRequest(http.MethodGet, "/api/v1/delegations", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	h.HandleDelegationStats(w, httptest.NewRequest(http.MethodGet, "/api/v1/delegations/stats", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSwarmHandler_RecentDelegations(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	h := newSwarmHandler(t, swarmroute.WithAuditDB(db))
	registerWorker(t, h, "coder-1")

	w := httptest.NewRecorder()
	h.HandleDelegate(w, jsonRequest(http.MethodPost, "/api/v1/delegate", `{"task_id":"task-a","description":"audit me"}`))
	require.Equal(t, http.StatusOK, w.Code)

	require.Eventually(t, func() bool {
		w := httptest.NewRecorder()
		h.HandleRecentDelegations(w, httptest.NewRequest(http.MethodGet, "/api/v1/delegations?agent_id=coder-1", nil))
		return w.Code == http.StatusOK && countDataItems(w) == 1
	}, 2*time.Second, 10*time.Millisecond)

	w = httptest.NewRecorder()
	h.HandleDelegationStats(w, httptest.NewRequest(http.MethodGet, "/api/v1/delegations/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var stats struct {
		Total int64 `json:"total"`
	}
	decodeData(t, decodeEnvelope(t, w), &stats)
	assert.EqualValues(t, 1, stats.Total)
}

func TestListLimit(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"default", "", defaultListLimit},
		{"explicit", "limit=5", 5},
		{"not a number", "limit=abc", defaultListLimit},
		{"negative", "limit=-3", defaultListLimit},
		{"capped", "limit=10000", maxListLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/decisions?"+tt.query, nil)
			assert.Equal(t, tt.want, listLimit(r))
		})
	}
}
