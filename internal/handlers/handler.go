package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/acp/internal/directory"
	"github.com/eldtechnologies/acp/internal/jobledger"
	"github.com/eldtechnologies/acp/internal/settlement"
	"github.com/eldtechnologies/acp/internal/store"
	"github.com/eldtechnologies/acp/internal/validation"
)

// Deps are the services the handlers serve.
type Deps struct {
	Store      store.DataStore
	Backend    string
	Redis      *store.RedisStore // optional
	Directory  *directory.Service
	Jobs       *jobledger.Service
	Settlement *settlement.Bridge
	Logger     zerolog.Logger
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store      store.DataStore
	backend    string
	redis      *store.RedisStore
	directory  *directory.Service
	jobs       *jobledger.Service
	settlement *settlement.Bridge
	logger     zerolog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		store:      d.Store,
		backend:    d.Backend,
		redis:      d.Redis,
		directory:  d.Directory,
		jobs:       d.Jobs,
		settlement: d.Settlement,
		logger:     d.Logger,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// storeError reports a failed create. Rejected records return 422 with the
// validation reason; anything else is logged and hidden behind a 500.
func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, err error, message string) {
	if validation.IsInvalid(err) {
		h.Error(w, http.StatusUnprocessableEntity, validation.Reason(err))
		return
	}
	h.logger.Error().Err(err).Str("path", r.URL.Path).Msg(message)
	h.Error(w, http.StatusInternalServerError, message)
}

// sanitizeText trims s, removes control characters and limits it to max
// bytes without splitting a UTF-8 sequence. The result is always valid UTF-8.
func sanitizeText(s string, max int) string {
	s = strings.TrimSpace(strings.ToValidUTF8(s, "\uFFFD"))

	// Remove control characters
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)

	if len(s) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}

	return s
}
