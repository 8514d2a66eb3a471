package api

import (
	"net/http"

	"github.com/account-sync/internal/types"
	"github.com/gorilla/mux"
)

// handleEnqueueSync handles POST /api/sync - request a sync for a user.
// Duplicate requests for the same (user, trigger) return the live request id
// with 200 instead of creating a second entry.
func (s *Server) handleEnqueueSync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string            `json:"userId"`
		Trigger  string            `json:"trigger"`
		Metadata map[string]string `json:"metadata,omitempty"`
	}

	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	if req.UserID == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "userId is required", nil)
		return
	}

	kind := types.TriggerKind(req.Trigger)
	if !kind.Valid() {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid trigger kind", map[string]interface{}{
			"trigger": req.Trigger,
		})
		return
	}

	requestID, duplicate, err := s.scheduler.Enqueue(r.Context(), req.UserID, kind, req.Metadata)
	if err != nil {
		respondSyncError(w, err)
		return
	}

	code := http.StatusAccepted
	if duplicate {
		code = http.StatusOK
	}

	respondJSON(w, code, map[string]interface{}{
		"requestId":    requestID,
		"userId":       req.UserID,
		"trigger":      string(kind),
		"deduplicated": duplicate,
	})
}

// handleCancelSync handles DELETE /api/sync/:requestId - cancel a queued sync.
// Requests already handed to the executor cannot be cancelled.
func (s *Server) handleCancelSync(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	requestID := vars["requestId"]

	if requestID == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "requestId parameter required", nil)
		return
	}

	if !s.scheduler.Cancel(r.Context(), requestID) {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Request not found or already dispatched", nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"requestId": requestID,
		"cancelled": true,
	})
}

// handleQueueStatus handles GET /api/sync/queue - observable queue state.
func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.scheduler.Status())
}
