package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/account-sync/internal/logging"
	"github.com/account-sync/internal/types"
	"github.com/gorilla/mux"
)

// SyncStatusResponse is the per-user sync status view.
type SyncStatusResponse struct {
	UserID            string     `json:"userId"`
	Enabled           bool       `json:"enabled"`
	IsSyncing         bool       `json:"isSyncing"`
	LastSync          *time.Time `json:"lastSync,omitempty"`
	LastStatus        string     `json:"lastStatus,omitempty"`
	LastError         *string    `json:"lastError,omitempty"`
	NextEligibleSync  *time.Time `json:"nextEligibleSync,omitempty"`
	AccountsConnected int        `json:"accountsConnected"`
}

// handleSyncStatus handles GET /api/sync/status/:userId - per-user sync view.
// Partial backend failures degrade individual fields rather than failing the
// whole response.
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID := vars["userId"]

	if userID == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "userId parameter required", nil)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx).WithField("userId", userID)
	resp := &SyncStatusResponse{UserID: userID}

	enabled, err := s.features.HasCapability(ctx, userID, types.CapabilityBankSync)
	if err != nil {
		logger.WithError(err).Warn("Capability check failed for status query")
	}
	resp.Enabled = enabled

	conn, err := s.connections.GetByUser(ctx, userID)
	if err != nil {
		logger.WithError(err).Warn("Connection lookup failed for status query")
	}
	if conn != nil {
		resp.AccountsConnected = len(conn.LinkedAccounts)
		resp.LastSync = conn.LastSyncedAt
	}

	syncing, err := s.attempts.HasInProgress(ctx, userID)
	if err != nil {
		logger.WithError(err).Warn("In-progress lookup failed for status query")
	}
	resp.IsSyncing = syncing

	latest, err := s.attempts.GetLatestByUser(ctx, userID)
	if err != nil {
		logger.WithError(err).Warn("Latest attempt lookup failed for status query")
	}
	if latest != nil {
		resp.LastStatus = string(latest.Status)
		resp.LastError = latest.Error
	}

	next, err := s.cooldowns.NextEligible(ctx, userID, types.TriggerManual)
	if err != nil {
		logger.WithError(err).Warn("Cooldown lookup failed for status query")
	} else if !next.IsZero() && next.After(time.Now().UTC()) {
		resp.NextEligibleSync = &next
	}

	respondJSON(w, http.StatusOK, resp)
}

// handleSyncStats handles GET /api/sync/stats - aggregate attempt stats over
// a time window. Query params: userId (optional, all users when absent),
// windowHours (default 24).
func (s *Server) handleSyncStats(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	userID := query.Get("userId")

	windowHours := 24
	if v := query.Get("windowHours"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "windowHours must be a positive integer", nil)
			return
		}
		windowHours = parsed
	}

	stats, err := s.attempts.Stats(r.Context(), userID, time.Duration(windowHours)*time.Hour)
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Error("Failed to query sync stats")
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to query sync stats", nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"windowHours": windowHours,
		"stats":       stats,
	})
}
