package handlers

import (
	"net/http"

	"github.com/eldtechnologies/acp/internal/models"
)

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	TotalProfiles    int64  `json:"total_profiles"`
	TotalJobs        int64  `json:"total_jobs"`
	TotalPhaseEvents int64  `json:"total_phase_events"`
	Store            string `json:"store"`
}

// Stats returns record counts by kind.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	counts := make(map[models.Kind]int64, 3)
	for _, kind := range []models.Kind{models.KindAgentProfile, models.KindJob, models.KindPhaseEvent} {
		n, err := h.store.CountRecords(ctx, kind)
		if err != nil {
			h.logger.Error().Err(err).Str("kind", string(kind)).Msg("count failed")
			h.Error(w, http.StatusInternalServerError, "failed to count records")
			return
		}
		counts[kind] = n
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		TotalProfiles:    counts[models.KindAgentProfile],
		TotalJobs:        counts[models.KindJob],
		TotalPhaseEvents: counts[models.KindPhaseEvent],
		Store:            h.backend,
	})
}
