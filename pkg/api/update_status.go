package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"dispatch_portal/pkg/apperr"
	"dispatch_portal/pkg/flow"
	"dispatch_portal/pkg/identity"
)

const maxBodyBytes = 64 << 10

type updateStatusRequest struct {
	HaishaID string   `json:"haishaId"`
	ID       string   `json:"id"`
	Lat      *float64 `json:"lat"`
	Long     *float64 `json:"long"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// UpdateStatus marks a dispatch completed by forwarding it to the workflow
// endpoint, which owns the Dataverse update.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if h.notifierErr != nil {
		h.writeError(w, r, h.notifierErr)
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, r, apperr.BadRequest("request body must be a JSON object").Wrap(err))
		return
	}
	id := strings.TrimSpace(req.HaishaID)
	if id == "" {
		id = strings.TrimSpace(req.ID)
	}
	if id == "" {
		h.writeError(w, r, apperr.BadRequest("dispatch id is required"))
		return
	}

	user := "anonymous"
	if p, err := identity.FromRequest(r); err == nil && p.UserDetails != "" {
		user = p.UserDetails
	}
	h.log.Info("completion reported",
		"user", user,
		"dispatch_id", id,
		"lat", req.Lat,
		"long", req.Long)

	err := h.notifier.NotifyCompletion(r.Context(), flow.Completion{ID: id, Lat: req.Lat, Long: req.Long})
	if err != nil {
		h.metrics.IncCompletion(string(apperr.KindOf(err)))
		h.writeError(w, r, err)
		return
	}
	h.metrics.IncCompletion("ok")

	writeJSON(w, http.StatusOK, messageResponse{Message: "completion reported"})
}
