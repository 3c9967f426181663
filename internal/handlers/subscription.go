package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"bitzomax/internal/database"
	"bitzomax/internal/mediatypes"
)

// SubscriptionResponse is the viewer's subscription status.
type SubscriptionResponse struct {
	Subscribed    bool                            `json:"subscribed"`
	DaysRemaining int                             `json:"daysRemaining"`
	Details       *mediatypes.SubscriptionDetails `json:"details,omitempty"`
}

func (h *Handlers) subscriptionStatus(ctx context.Context) (SubscriptionResponse, error) {
	details, err := h.db.GetSubscription(ctx)
	if errors.Is(err, database.ErrNotFound) {
		return SubscriptionResponse{}, nil
	}
	if err != nil {
		return SubscriptionResponse{}, err
	}
	return SubscriptionResponse{
		Subscribed:    details.Active,
		DaysRemaining: details.DaysRemaining(time.Now()),
		Details:       &details,
	}, nil
}

// GetSubscription returns the subscription status. Expired subscriptions
// report subscribed=false.
func (h *Handlers) GetSubscription(w http.ResponseWriter, r *http.Request) {
	status, err := h.subscriptionStatus(r.Context())
	if err != nil {
		log.Error("Failed to load subscription: %v", err)
		writeJSONError(w, "Failed to load subscription", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, status)
}

// Subscribe starts a monthly subscription and lifts the preview limit on
// every open playback session.
func (h *Handlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.db.Subscribe(ctx); err != nil {
		log.Error("Failed to subscribe: %v", err)
		writeJSONError(w, "Failed to subscribe", http.StatusInternalServerError)
		return
	}
	h.sessions.setSubscribed(true)
	h.writeSubscription(w, r, http.StatusCreated)
}

// CancelSubscription ends the subscription immediately.
func (h *Handlers) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	if err := h.db.CancelSubscription(r.Context()); err != nil {
		log.Error("Failed to cancel subscription: %v", err)
		writeJSONError(w, "Failed to cancel subscription", http.StatusInternalServerError)
		return
	}
	h.sessions.setSubscribed(false)
	h.writeSubscription(w, r, http.StatusOK)
}

func (h *Handlers) writeSubscription(w http.ResponseWriter, r *http.Request, code int) {
	status, err := h.subscriptionStatus(r.Context())
	if err != nil {
		log.Error("Failed to load subscription: %v", err)
		writeJSONError(w, "Failed to load subscription", http.StatusInternalServerError)
		return
	}
	writeJSONCode(w, code, status)
}
