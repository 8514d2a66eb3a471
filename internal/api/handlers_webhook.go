package api

import (
	"net/http"

	"github.com/account-sync/internal/logging"
	"github.com/account-sync/internal/types"
)

// AggregatorWebhook is the inbound aggregator notification payload.
type AggregatorWebhook struct {
	WebhookType string `json:"webhook_type"`
	WebhookCode string `json:"webhook_code"`
	ItemID      string `json:"item_id"`
	UserID      string `json:"user_id"`
}

// handleAggregatorWebhook handles POST /webhooks/aggregator - new-data
// notifications from the aggregator. Each accepted webhook enqueues a
// webhook-triggered sync; dedup in the scheduler absorbs notification bursts.
func (s *Server) handleAggregatorWebhook(w http.ResponseWriter, r *http.Request) {
	var payload AggregatorWebhook
	if err := parseJSONBody(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid webhook payload", nil)
		return
	}

	if payload.UserID == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "user_id is required", nil)
		return
	}

	logger := logging.FromContext(r.Context()).WithFields(map[string]interface{}{
		"userId":      payload.UserID,
		"webhookType": payload.WebhookType,
		"webhookCode": payload.WebhookCode,
	})

	metadata := map[string]string{
		"webhookType": payload.WebhookType,
		"webhookCode": payload.WebhookCode,
	}
	if payload.ItemID != "" {
		metadata["itemId"] = payload.ItemID
	}

	requestID, _, err := s.scheduler.Enqueue(r.Context(), payload.UserID, types.TriggerWebhook, metadata)
	if err != nil {
		logger.WithError(err).Error("Failed to enqueue webhook sync")
		respondSyncError(w, err)
		return
	}

	logger.WithField("requestId", requestID).Info("Aggregator webhook accepted")

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"requestId": requestID,
	})
}
