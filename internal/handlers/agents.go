package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/acp/internal/api/middleware"
	"github.com/eldtechnologies/acp/internal/codec"
	"github.com/eldtechnologies/acp/internal/models"
)

const (
	maxNameLength        = 100
	maxDescriptionLength = 1000
	maxQueryLength       = 100
)

// RegisterAgentRequest represents the registration request body.
type RegisterAgentRequest struct {
	WalletAddress string `json:"wallet_address"`
	SessionKeyID  uint64 `json:"session_key_id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
}

// RegisterAgentResponse represents the registration response.
type RegisterAgentResponse struct {
	AgentHash  models.Address `json:"agent_hash"`
	ProfileURL string         `json:"profile_url"`
}

// BrowseResponse represents the directory listing.
type BrowseResponse struct {
	Query  string             `json:"query"`
	Agents []models.AgentInfo `json:"agents"`
	Total  int                `json:"total"`
}

// AgentResponse wraps a single profile; Agent is null when absent.
type AgentResponse struct {
	Agent *models.AgentInfo `json:"agent"`
}

// RegisterAgent handles profile registration for the signing identity.
func (h *Handler) RegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req RegisterAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	identity := middleware.GetIdentityFromContext(r.Context())
	addr, err := h.directory.Register(r.Context(), identity, models.AgentProfile{
		WalletAddress: req.WalletAddress,
		SessionKeyID:  req.SessionKeyID,
		Name:          sanitizeText(req.Name, maxNameLength),
		Description:   sanitizeText(req.Description, maxDescriptionLength),
	})
	if err != nil {
		h.storeError(w, r, err, "failed to register agent")
		return
	}

	h.JSON(w, http.StatusCreated, RegisterAgentResponse{
		AgentHash:  addr,
		ProfileURL: fmt.Sprintf("/agents/%s", addr),
	})
}

// BrowseAgents lists registered agents matching the optional q parameter.
func (h *Handler) BrowseAgents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if len(query) > maxQueryLength {
		h.Error(w, http.StatusBadRequest, "query too long (max 100 chars)")
		return
	}

	agents, err := h.directory.Browse(r.Context(), query)
	if err != nil {
		h.logger.Error().Err(err).Msg("browse failed")
		h.Error(w, http.StatusInternalServerError, "browse failed")
		return
	}

	h.JSON(w, http.StatusOK, BrowseResponse{
		Query:  query,
		Agents: agents,
		Total:  len(agents),
	})
}

// GetAgent returns the profile stored at an address.
func (h *Handler) GetAgent(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "address")
	if !codec.IsAddress(addr) {
		h.Error(w, http.StatusBadRequest, "invalid address format")
		return
	}

	agent, err := h.directory.Get(r.Context(), models.Address(addr))
	if err != nil {
		h.logger.Error().Err(err).Str("address", addr).Msg("agent lookup failed")
		h.Error(w, http.StatusInternalServerError, "agent lookup failed")
		return
	}
	if agent == nil {
		h.JSON(w, http.StatusNotFound, AgentResponse{})
		return
	}

	h.JSON(w, http.StatusOK, AgentResponse{Agent: agent})
}

// MyAgent returns the signing identity's current profile.
func (h *Handler) MyAgent(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())

	agent, err := h.directory.Mine(r.Context(), identity)
	if err != nil {
		h.logger.Error().Err(err).Str("identity", identity).Msg("profile lookup failed")
		h.Error(w, http.StatusInternalServerError, "profile lookup failed")
		return
	}
	if agent == nil {
		h.JSON(w, http.StatusNotFound, AgentResponse{})
		return
	}

	h.JSON(w, http.StatusOK, AgentResponse{Agent: agent})
}
