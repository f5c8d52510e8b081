package handlers

import (
	"net/http"

	"driveshare/core/acl"
	"driveshare/core/docs"
	"driveshare/core/errs"
	"driveshare/core/store"
	"driveshare/core/utils"
)

type SettingsHandler struct {
	docs   *docs.Service
	acl    *acl.Engine
	logger *utils.Logger
}

func NewSettingsHandler(docsSvc *docs.Service, engine *acl.Engine, logger *utils.Logger) *SettingsHandler {
	return &SettingsHandler{docs: docsSvc, acl: engine, logger: logger}
}

// Get answers with the storage quota of the caller's organization, or of
// the caller when no organization is selected.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	cur := current(r)
	user := cur.User.ID
	if cur.Organization != "" {
		user = ""
	}
	settings, err := h.docs.FindSettings(r.Context(), user, cur.Organization)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// Update changes a quota total. Only organization managers may do it.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		User  string `json:"user"`
		Total int64  `json:"total"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	cur := current(r)
	if !h.acl.CanManage(cur.User, cur.Organization) {
		writeError(w, h.logger, r, errs.ErrAccessDenied)
		return
	}
	user, org := payload.User, cur.Organization
	if user != "" {
		org = ""
	}
	existing, err := h.docs.FindSettings(r.Context(), user, org)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	saved, err := h.docs.SaveSettings(r.Context(), &store.UserSettings{
		ID:           existing.ID,
		User:         user,
		Organization: org,
		Space:        store.Space{Used: existing.Space.Used, Total: payload.Total},
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}
