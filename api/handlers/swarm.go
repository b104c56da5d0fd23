package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quorvia/swarmroute"
	"github.com/quorvia/swarmroute/api"
	"github.com/quorvia/swarmroute/swarm/delegation"
	"github.com/quorvia/swarmroute/types"
)

// defaultListLimit applies when a list endpoint gets no limit parameter.
const defaultListLimit = 20

// maxListLimit caps the limit parameter on list endpoints.
const maxListLimit = 500

// SwarmHandler serves the agent, delegation, trust, and risk endpoints
// on top of a swarmroute.Core.
type SwarmHandler struct {
	core   *swarmroute.Core
	logger *zap.Logger
}

// NewSwarmHandler creates a handler bound to core.
func NewSwarmHandler(core *swarmroute.Core, logger *zap.Logger) *SwarmHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SwarmHandler{
		core:   core,
		logger: logger.With(zap.String("component", "swarm_handler")),
	}
}

// HandleRegisterAgent enrolls an agent into the swarm.
//
// @Summary Register agent
// @Description Adds an agent to the registry and makes it routable
// @Tags agents
// @Accept json
// @Produce json
// @Param agent body api.RegisterAgentRequest true "Agent to register"
// @Success 201 {object} Response
// @Failure 400 {object} Response
// @Failure 409 {object} Response
// @Router /api/v1/agents [post]
func (h *SwarmHandler) HandleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.RegisterAgentRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if err := h.core.Registry().Register(req.ToAgent()); err != nil {
		h.writeErr(w, err)
		return
	}

	stored, _ := h.core.Registry().Get(req.ID)
	WriteCreated(w, stored)
}

// HandleListAgents lists registered agents in registration order.
//
// @Summary List agents
// @Tags agents
// @Produce json
// @Success 200 {object} Response
// @Router /api/v1/agents [get]
func (h *SwarmHandler) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	agents := h.core.Registry().List()
	WriteSuccess(w, &api.AgentListResponse{Agents: agents, Count: len(agents)})
}

// HandleGetAgent returns one agent by ID.
//
// @Summary Get agent
// @Tags agents
// @Produce json
// @Param id path string true "Agent ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /api/v1/agents/{id} [get]
func (h *SwarmHandler) HandleGetAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	agent, found := h.core.Registry().Get(id)
	if !found {
		WriteError(w, types.NewError(types.ErrNotFound,
			fmt.Sprintf("agent %s not found", id)).WithAgentID(id), h.logger)
		return
	}
	WriteSuccess(w, agent)
}

// HandleUnregisterAgent removes an agent from the swarm.
//
// @Summary Unregister agent
// @Tags agents
// @Produce json
// @Param id path string true "Agent ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /api/v1/agents/{id} [delete]
func (h *SwarmHandler) HandleUnregisterAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.core.Registry().Unregister(id); err != nil {
		h.writeErr(w, err)
		return
	}
	WriteSuccess(w, map[string]any{"id": id, "unregistered": true})
}

// HandleUpdateWorkload sets an agent's workload to an absolute value.
//
// @Summary Update agent workload
// @Tags agents
// @Accept json
// @Produce json
// @Param id path string true "Agent ID"
// @Param workload body api.WorkloadUpdateRequest true "New workload"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /api/v1/agents/{id}/workload [patch]
func (h *SwarmHandler) HandleUpdateWorkload(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if _, found := h.core.Registry().Get(id); !found {
		WriteError(w, types.NewError(types.ErrNotFound,
			fmt.Sprintf("agent %s not found", id)).WithAgentID(id), h.logger)
		return
	}

	var req api.WorkloadUpdateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	h.core.Registry().UpdateWorkload(id, req.Workload)
	updated, _ := h.core.Registry().Get(id)
	WriteSuccess(w, updated)
}

// HandleHeartbeat refreshes an agent's heartbeat timestamp.
//
// @Summary Agent heartbeat
// @Tags agents
// @Produce json
// @Param id path string true "Agent ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /api/v1/agents/{id}/heartbeat [post]
func (h *SwarmHandler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.core.Registry().Heartbeat(id); err != nil {
		h.writeErr(w, err)
		return
	}
	refreshed, _ := h.core.Registry().Get(id)
	WriteSuccess(w, refreshed)
}

// HandleDelegate routes one task through the swarm and returns the
// delegation result. A failed delegation is still a 200; the result
// carries the failure.
//
// @Summary Delegate task
// @Description Scores agents, invokes the selected one, and reports the outcome
// @Tags delegation
// @Accept json
// @Produce json
// @Param task body api.DelegateRequest true "Task to delegate"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Router /api/v1/delegate [post]
func (h *SwarmHandler) HandleDelegate(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.DelegateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	result, err := h.core.Delegate(r.Context(), req.ToTask())
	if err != nil {
		h.writeErr(w, err)
		return
	}
	WriteSuccess(w, result)
}

// HandleTrustScore reports one agent's trust standing.
//
// @Summary Get trust score
// @Tags trust
// @Produce json
// @Param id path string true "Agent ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /api/v1/trust/{id} [get]
func (h *SwarmHandler) HandleTrustScore(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	score, found := h.core.Trust().TrustScore(id)
	if !found {
		WriteError(w, types.NewError(types.ErrNotFound,
			fmt.Sprintf("no trust history for agent %s", id)).WithAgentID(id), h.logger)
		return
	}
	WriteSuccess(w, &api.TrustScoreResponse{
		AgentID:      id,
		TrustScore:   score,
		Interactions: h.core.Trust().HistoryLen(id),
		MinThreshold: h.core.Trust().MinTrustThreshold(),
	})
}

// HandleTrustRankings ranks all registered agents for a hypothetical
// task described by the description and type query parameters.
//
// @Summary Rank agents by trust
// @Tags trust
// @Produce json
// @Param description query string false "Task description"
// @Param type query string false "Task type"
// @Success 200 {object} Response
// @Router /api/v1/trust/rankings [get]
func (h *SwarmHandler) HandleTrustRankings(w http.ResponseWriter, r *http.Request) {
	task := &types.Task{
		ID:          uuid.NewString(),
		Description: r.URL.Query().Get("description"),
		Type:        r.URL.Query().Get("type"),
	}

	rankings, err := h.core.Trust().RankAgentsByTrust(r.Context(), h.core.Registry().List(), task)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	WriteSuccess(w, rankings)
}

// HandleRiskAssessment reports the current risk picture across all
// tracked agents.
//
// @Summary Assess swarm risk
// @Tags risk
// @Produce json
// @Success 200 {object} Response
// @Router /api/v1/risk/assessment [get]
func (h *SwarmHandler) HandleRiskAssessment(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.core.AssessRisk())
}

// HandleGetDelegationConfig returns the live delegation tuning.
//
// @Summary Get delegation config
// @Tags delegation
// @Produce json
// @Success 200 {object} Response
// @Router /api/v1/delegation/config [get]
func (h *SwarmHandler) HandleGetDelegationConfig(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.core.Orchestrator().Config())
}

// HandleUpdateDelegationConfig applies a partial update to the
// delegation tuning and returns the resulting config.
//
// @Summary Update delegation config
// @Tags delegation
// @Accept json
// @Produce json
// @Param update body delegation.ConfigUpdate true "Fields to update"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Router /api/v1/delegation/config [put]
func (h *SwarmHandler) HandleUpdateDelegationConfig(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var update delegation.ConfigUpdate
	if err := DecodeJSONBody(w, r, &update, h.logger); err != nil {
		return
	}

	WriteSuccess(w, h.core.Orchestrator().UpdateConfig(update))
}

// HandleRecentDecisions lists recent routing decisions, newest first.
//
// @Summary List recent routing decisions
// @Tags delegation
// @Produce json
// @Param limit query int false "Maximum decisions to return" default(20)
// @Success 200 {object} Response
// @Failure 503 {object} Response
// @Router /api/v1/decisions [get]
func (h *SwarmHandler) HandleRecentDecisions(w http.ResponseWriter, r *http.Request) {
	decisions, err := h.core.Decisions().ListRecent(r.Context(), listLimit(r))
	if err != nil {
		h.logger.Warn("listing recent decisions failed", zap.Error(err))
		WriteErrorMessage(w, types.ErrStoreUnavailable, "decision store unavailable", h.logger)
		return
	}
	WriteSuccess(w, decisions)
}

// HandleRecentDelegations lists recent audit records, newest first,
// optionally filtered to one agent.
//
// @Summary List recent delegations
// @Tags delegation
// @Produce json
// @Param limit query int false "Maximum records to return" default(20)
// @Param agent_id query string false "Filter to one agent"
// @Success 200 {object} Response
// @Failure 503 {object} Response
// @Router /api/v1/delegations [get]
func (h *SwarmHandler) HandleRecentDelegations(w http.ResponseWriter, r *http.Request) {
	audit := h.core.Audit()
	if audit == nil {
		WriteErrorMessage(w, types.ErrStoreUnavailable, "audit log is not enabled", h.logger)
		return
	}

	limit := listLimit(r)
	agentID := r.URL.Query().Get("agent_id")

	var (
		records any
		err     error
	)
	if agentID != "" {
		records, err = audit.ByAgent(r.Context(), agentID, limit)
	} else {
		records, err = audit.Recent(r.Context(), limit)
	}
	if err != nil {
		h.logger.Warn("listing recent delegations failed", zap.Error(err))
		WriteErrorMessage(w, types.ErrStoreUnavailable, "audit log unavailable", h.logger)
		return
	}
	WriteSuccess(w, records)
}

// HandleDelegationStats summarizes the audit log.
//
// @Summary Delegation statistics
// @Tags delegation
// @Produce json
// @Success 200 {object} Response
// @Failure 503 {object} Response
// @Router /api/v1/delegations/stats [get]
func (h *SwarmHandler) HandleDelegationStats(w http.ResponseWriter, r *http.Request) {
	audit := h.core.Audit()
	if audit == nil {
		WriteErrorMessage(w, types.ErrStoreUnavailable, "audit log is not enabled", h.logger)
		return
	}

	stats, err := audit.Stats(r.Context())
	if err != nil {
		h.logger.Warn("computing delegation stats failed", zap.Error(err))
		WriteErrorMessage(w, types.ErrStoreUnavailable, "audit log unavailable", h.logger)
		return
	}
	WriteSuccess(w, stats)
}

// pathID resolves the {id} path segment. On a blank segment a 400 has
// already been written.
func (h *SwarmHandler) pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if id == "" {
		WriteErrorMessage(w, types.ErrInvalidRequest, "agent ID is required", h.logger)
		return "", false
	}
	return id, true
}

// writeErr maps domain errors onto the response envelope, keeping their
// code and status when they are structured errors.
func (h *SwarmHandler) writeErr(w http.ResponseWriter, err error) {
	var apiErr *types.Error
	if errors.As(err, &apiErr) {
		WriteError(w, apiErr, h.logger)
		return
	}
	WriteErrorMessage(w, types.ErrInternalError, err.Error(), h.logger)
}

// listLimit parses the limit query parameter, falling back to the
// default and capping abusive values.
func listLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
