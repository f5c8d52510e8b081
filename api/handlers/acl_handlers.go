package handlers

import (
	"fmt"
	"net/http"

	"driveshare/core/acl"
	"driveshare/core/errs"
	"driveshare/core/store"
	"driveshare/core/utils"
)

type ACLHandler struct {
	engine *acl.Engine
	logger *utils.Logger
}

func NewACLHandler(engine *acl.Engine, logger *utils.Logger) *ACLHandler {
	return &ACLHandler{engine: engine, logger: logger}
}

// List answers with the grants of ?user (the caller by default) in the
// caller's organization. Other users' grants need management rights.
func (h *ACLHandler) List(w http.ResponseWriter, r *http.Request) {
	cur := current(r)
	user := r.URL.Query().Get("user")
	if user == "" {
		user = cur.User.ID
	}
	if user != cur.User.ID && !h.engine.CanManage(cur.User, cur.Organization) {
		writeError(w, h.logger, r, errs.ErrAccessDenied)
		return
	}
	items, err := h.engine.FindByUser(r.Context(), user, cur.Organization)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if items == nil {
		items = []store.ACL{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *ACLHandler) Create(w http.ResponseWriter, r *http.Request) {
	var item store.ACL
	if err := decodeJSON(r, &item); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	cur := current(r)
	if item.Organization == "" {
		item.Organization = cur.Organization
	}
	if !h.engine.CanManage(cur.User, item.Organization) {
		writeError(w, h.logger, r, errs.ErrAccessDenied)
		return
	}
	item.ID = ""
	created, err := h.engine.Create(r.Context(), &item)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *ACLHandler) Update(w http.ResponseWriter, r *http.Request) {
	var item store.ACL
	if err := decodeJSON(r, &item); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	cur := current(r)
	existing, err := h.engine.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if !h.engine.CanManage(cur.User, existing.Organization) {
		writeError(w, h.logger, r, errs.ErrAccessDenied)
		return
	}
	item.ID = existing.ID
	item.Organization = existing.Organization
	updated, err := h.engine.Update(r.Context(), &item)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *ACLHandler) Delete(w http.ResponseWriter, r *http.Request) {
	cur := current(r)
	existing, err := h.engine.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if !h.engine.CanManage(cur.User, existing.Organization) {
		writeError(w, h.logger, r, errs.ErrAccessDenied)
		return
	}
	if err := h.engine.Remove(r.Context(), existing.ID); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Access resolves the caller's access to a service binding in the current
// organization: ?service, ?key, ?level (READ by default) and ?public.
func (h *ACLHandler) Access(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	level := store.AccessLevel(q.Get("level"))
	if level == "" {
		level = store.LevelRead
	}
	if !acl.ValidLevel(level) {
		writeError(w, h.logger, r, fmt.Errorf("%w: unknown level %q", errs.ErrValidation, level))
		return
	}
	if q.Get("service") == "" {
		writeError(w, h.logger, r, fmt.Errorf("%w: service is required", errs.ErrValidation))
		return
	}
	cur := current(r)
	res := acl.Resource{
		Organization: cur.Organization,
		Service:      &store.ServiceRef{ID: q.Get("service"), Key: q.Get("key")},
	}
	result, err := h.engine.ResolveAccess(r.Context(), res, cur.User, cur.Organization, level, parseBool(q.Get("public")))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *ACLHandler) ServiceKeys(w http.ResponseWriter, r *http.Request) {
	cur := current(r)
	items, err := h.engine.FindServiceKeys(r.Context(), cur.User.ID, urlParam(r, "service"), cur.Organization)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if items == nil {
		items = []store.ServiceKey{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
