package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/prn-tf/workroom/internal/service"
)

// SupervisorHandler serves the supervisor chat endpoint.
type SupervisorHandler struct {
	supervisor *service.SupervisorService
	logger     zerolog.Logger
}

// NewSupervisorHandler creates a new SupervisorHandler.
func NewSupervisorHandler(supervisor *service.SupervisorService, logger zerolog.Logger) *SupervisorHandler {
	return &SupervisorHandler{
		supervisor: supervisor,
		logger:     logger.With().Str("handler", "supervisor").Logger(),
	}
}

// supervisorRequest is the POST /supervisor body.
type supervisorRequest struct {
	Message string `json:"message"`
}

// Contact handles POST /supervisor.
func (h *SupervisorHandler) Contact(w http.ResponseWriter, r *http.Request) {
	var req supervisorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "could not parse request body")
		return
	}

	user := UserFromContext(r.Context())
	reply, err := h.supervisor.Send(r.Context(), user, req.Message)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"response": reply})
}
