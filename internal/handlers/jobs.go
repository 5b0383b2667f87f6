package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/acp/internal/api/middleware"
	"github.com/eldtechnologies/acp/internal/codec"
	"github.com/eldtechnologies/acp/internal/jobledger"
	"github.com/eldtechnologies/acp/internal/models"
)

// SubmitJobResponse represents the job submission response.
type SubmitJobResponse struct {
	Address models.Address `json:"address"`
	JobURL  string         `json:"job_url"`
}

// JobsResponse lists the caller's jobs.
type JobsResponse struct {
	Jobs  []models.Job `json:"jobs"`
	Total int          `json:"total"`
}

// JobResponse wraps a single job; Job is null when absent.
type JobResponse struct {
	Address models.Address `json:"address,omitempty"`
	Job     *models.Job    `json:"job"`
}

// AdvanceJobResponse represents a recorded phase transition.
type AdvanceJobResponse struct {
	EventAddress models.Address `json:"event_address"`
	HistoryURL   string         `json:"history_url"`
}

// HistoryResponse wraps a job history; History is null when absent.
type HistoryResponse struct {
	History *models.JobHistory `json:"history"`
}

// SubmitJob records a job requested by the signing identity.
func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var input models.JobCreationInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	input.JobOfferingName = sanitizeText(input.JobOfferingName, maxNameLength)

	identity := middleware.GetIdentityFromContext(r.Context())
	addr, err := h.jobs.Submit(r.Context(), identity, input)
	if err != nil {
		h.storeError(w, r, err, "failed to submit job")
		return
	}

	h.JSON(w, http.StatusCreated, SubmitJobResponse{
		Address: addr,
		JobURL:  fmt.Sprintf("/jobs/%s", addr),
	})
}

// ListJobs returns the jobs submitted by the signing identity.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())

	jobs, err := h.jobs.ListMine(r.Context(), identity)
	if err != nil {
		h.logger.Error().Err(err).Str("identity", identity).Msg("job listing failed")
		h.Error(w, http.StatusInternalServerError, "job listing failed")
		return
	}

	h.JSON(w, http.StatusOK, JobsResponse{Jobs: jobs, Total: len(jobs)})
}

// GetJob returns the job stored at an address.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.jobAddress(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.Get(r.Context(), addr)
	if err != nil {
		h.logger.Error().Err(err).Str("address", string(addr)).Msg("job lookup failed")
		h.Error(w, http.StatusInternalServerError, "job lookup failed")
		return
	}
	if job == nil {
		h.JSON(w, http.StatusNotFound, JobResponse{})
		return
	}

	h.JSON(w, http.StatusOK, JobResponse{Address: addr, Job: job})
}

// AdvanceJob records a phase transition for a job.
func (h *Handler) AdvanceJob(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.jobAddress(w, r)
	if !ok {
		return
	}

	var t models.Transition
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	identity := middleware.GetIdentityFromContext(r.Context())
	eventAddr, err := h.jobs.Advance(r.Context(), identity, addr, t)
	switch {
	case errors.Is(err, jobledger.ErrJobNotFound):
		h.Error(w, http.StatusNotFound, "job not found")
		return
	case errors.Is(err, jobledger.ErrNotParticipant):
		h.Error(w, http.StatusForbidden, "only the job's submitter or agent may advance it")
		return
	case errors.Is(err, jobledger.ErrIllegalTransition):
		h.Error(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		h.storeError(w, r, err, "failed to advance job")
		return
	}

	h.JSON(w, http.StatusCreated, AdvanceJobResponse{
		EventAddress: eventAddr,
		HistoryURL:   fmt.Sprintf("/jobs/%s/history", addr),
	})
}

// JobHistory returns a job with its phase events and folded state.
func (h *Handler) JobHistory(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.jobAddress(w, r)
	if !ok {
		return
	}

	history, err := h.jobs.History(r.Context(), addr)
	if err != nil {
		h.logger.Error().Err(err).Str("address", string(addr)).Msg("history lookup failed")
		h.Error(w, http.StatusInternalServerError, "history lookup failed")
		return
	}
	if history == nil {
		h.JSON(w, http.StatusNotFound, HistoryResponse{})
		return
	}

	h.JSON(w, http.StatusOK, HistoryResponse{History: history})
}

// jobAddress reads and checks the {address} URL parameter.
func (h *Handler) jobAddress(w http.ResponseWriter, r *http.Request) (models.Address, bool) {
	addr := chi.URLParam(r, "address")
	if !codec.IsAddress(addr) {
		h.Error(w, http.StatusBadRequest, "invalid address format")
		return "", false
	}
	return models.Address(addr), true
}
