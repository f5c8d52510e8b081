package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"driveshare/core/docs"
	"driveshare/core/errs"
	"driveshare/core/share"
	"driveshare/core/store"
	"driveshare/core/utils"
)

type ShareHandler struct {
	svc    *share.Service
	docs   *docs.Service
	logger *utils.Logger
}

func NewShareHandler(svc *share.Service, docsSvc *docs.Service, logger *utils.Logger) *ShareHandler {
	return &ShareHandler{svc: svc, docs: docsSvc, logger: logger}
}

func (h *ShareHandler) SharedDocuments(w http.ResponseWriter, r *http.Request) {
	cur := current(r)
	items, err := h.svc.FindDocuments(r.Context(), cur.User, r.URL.Query().Get("folder"), cur.Organization)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if items == nil {
		items = []store.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *ShareHandler) SharedFolders(w http.ResponseWriter, r *http.Request) {
	cur := current(r)
	items, err := h.svc.FindFolders(r.Context(), cur.User, r.URL.Query().Get("parent"), cur.Organization)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if items == nil {
		items = []store.Folder{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// SearchUsers resolves ?email= or ?ids= (comma separated) to registered users.
func (h *ShareHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		items []store.User
		err   error
	)
	switch {
	case q.Get("email") != "":
		items, err = h.svc.SearchUsersByEmail(r.Context(), splitList(q.Get("email")))
	case q.Get("ids") != "":
		items, err = h.svc.SearchUsersByIDs(r.Context(), splitList(q.Get("ids")))
	default:
		err = fmt.Errorf("%w: email or ids is required", errs.ErrValidation)
	}
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if items == nil {
		items = []store.User{}
	}
	for i := range items {
		items[i].Roles = nil
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Claim converts pending email shares for the caller's address.
func (h *ShareHandler) Claim(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ConvertEmailToUser(r.Context(), current(r).User); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// owns checks that the caller holds FULL access to the shared item.
func (h *ShareHandler) owns(ctx context.Context, c docs.Caller, target store.ShareTarget) error {
	if !target.Valid() {
		return fmt.Errorf("%w: unknown share target", errs.ErrValidation)
	}
	var err error
	if target.Kind == store.TargetDocument {
		_, err = h.docs.CheckAccess(ctx, c, target.ID, store.LevelFull)
	} else {
		_, err = h.docs.CheckFolderAccess(ctx, c, target.ID, store.LevelFull)
	}
	return err
}

func targetFrom(r *http.Request) store.ShareTarget {
	return store.ShareTarget{Kind: store.TargetKind(urlParam(r, "kind")), ID: urlParam(r, "id")}
}

func (h *ShareHandler) FindByItem(w http.ResponseWriter, r *http.Request) {
	target := targetFrom(r)
	if err := h.owns(r.Context(), caller(r), target); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	items, err := h.svc.FindByItem(r.Context(), target)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if items == nil {
		items = []store.Share{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Save replaces the recipient list of the item.
func (h *ShareHandler) Save(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Recipients []store.Recipient `json:"recipients"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	c := caller(r)
	target := targetFrom(r)
	if err := h.owns(r.Context(), c, target); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	res, err := h.svc.Save(r.Context(), share.SaveRequest{Target: target, SharedBy: c.User, Recipients: payload.Recipients})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
