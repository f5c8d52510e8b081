package handlers

import (
	"net/http"

	"driveshare/core/docs"
	"driveshare/core/errs"
	"driveshare/core/folders"
	"driveshare/core/store"
	"driveshare/core/utils"
)

type FoldersHandler struct {
	svc    *folders.Service
	docs   *docs.Service
	logger *utils.Logger
}

func NewFoldersHandler(svc *folders.Service, docsSvc *docs.Service, logger *utils.Logger) *FoldersHandler {
	return &FoldersHandler{svc: svc, docs: docsSvc, logger: logger}
}

type folderPayload struct {
	Name   string `json:"name"`
	Parent string `json:"parent"`
}

// List answers with the folders under ?parent in the caller's namespace.
func (h *FoldersHandler) List(w http.ResponseWriter, r *http.Request) {
	c := caller(r)
	parent := r.URL.Query().Get("parent")
	if parent != "" {
		if _, err := h.docs.CheckFolderAccess(r.Context(), c, parent, store.LevelRead); err != nil {
			writeError(w, h.logger, r, err)
			return
		}
	}
	items, err := h.svc.Find(r.Context(), c.User.ID, c.Organization, parent)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if items == nil {
		items = []store.Folder{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *FoldersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload folderPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	c := caller(r)
	f := &store.Folder{Name: payload.Name, ParentID: payload.Parent, Organization: c.Organization, CreatedBy: c.User.ID}
	if f.ParentID != "" {
		if _, err := h.docs.CheckFolderAccess(r.Context(), c, f.ParentID, store.LevelWrite); err != nil {
			writeError(w, h.logger, r, err)
			return
		}
	} else {
		ok, err := h.svc.CheckAccess(r.Context(), f, c.User, c.Organization, store.LevelWrite)
		if err != nil {
			writeError(w, h.logger, r, err)
			return
		}
		if !ok {
			writeError(w, h.logger, r, errs.ErrAccessDenied)
			return
		}
	}
	created, err := h.docs.CreateFolder(r.Context(), f)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *FoldersHandler) Get(w http.ResponseWriter, r *http.Request) {
	f, err := h.docs.CheckFolderAccess(r.Context(), caller(r), urlParam(r, "id"), store.LevelRead)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// Rename also moves the folder when a new parent is given.
func (h *FoldersHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var payload folderPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	c := caller(r)
	id := urlParam(r, "id")
	existing, err := h.docs.CheckFolderAccess(r.Context(), c, id, store.LevelWrite)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	parent := existing.ParentID
	if payload.Parent != "" && payload.Parent != existing.ParentID {
		if _, err := h.docs.CheckFolderAccess(r.Context(), c, payload.Parent, store.LevelWrite); err != nil {
			writeError(w, h.logger, r, err)
			return
		}
		parent = payload.Parent
	}
	updated, err := h.svc.Update(r.Context(), &store.Folder{ID: id, Name: payload.Name, ParentID: parent})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *FoldersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.docs.RemoveFolder(r.Context(), caller(r), urlParam(r, "id")); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *FoldersHandler) Ancestors(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if _, err := h.docs.CheckFolderAccess(r.Context(), caller(r), id, store.LevelRead); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	items, err := h.svc.Ancestors(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if items == nil {
		items = []store.Folder{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Children lists every folder below id, at any depth.
func (h *FoldersHandler) Children(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if _, err := h.docs.CheckFolderAccess(r.Context(), caller(r), id, store.LevelRead); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	items, err := h.svc.FindChildren(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if items == nil {
		items = []store.Folder{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *FoldersHandler) Documents(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if _, err := h.docs.CheckFolderAccess(r.Context(), caller(r), id, store.LevelRead); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	items, err := h.docs.FindByFolder(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if items == nil {
		items = []store.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// ProcessServiceFolder returns, creating on first use, the folder a service
// keeps for one of its entities. The acting user is the caller.
func (h *FoldersHandler) ProcessServiceFolder(w http.ResponseWriter, r *http.Request) {
	var req folders.ServiceFolderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	c := caller(r)
	req.UserID = c.User.ID
	if req.OrganizationID == "" {
		req.OrganizationID = c.Organization
	}
	f, err := h.svc.ProcessServiceFolder(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *FoldersHandler) ListServiceFolders(w http.ResponseWriter, r *http.Request) {
	c := caller(r)
	items, err := h.svc.FindServiceFolders(r.Context(), c.User, urlParam(r, "service_key"), c.Organization)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
