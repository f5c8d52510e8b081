package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"driveshare/config"
	"driveshare/core/docs"
	"driveshare/core/errs"
	"driveshare/core/store"
	"driveshare/core/utils"
)

type DocumentsHandler struct {
	cfg    *config.AppConfig
	svc    *docs.Service
	logger *utils.Logger
}

func NewDocumentsHandler(cfg *config.AppConfig, svc *docs.Service, logger *utils.Logger) *DocumentsHandler {
	return &DocumentsHandler{cfg: cfg, svc: svc, logger: logger}
}

func (h *DocumentsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.svc.FindAll(r.Context(), caller(r), docs.ListRequest{
		ServiceID:    q.Get("service"),
		FolderID:     q.Get("folder"),
		KeyID:        q.Get("key"),
		SignedURLTTL: ttlParam(r),
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if items == nil {
		items = []store.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *DocumentsHandler) uploadLimit() int64 {
	if h.cfg.Docs.UploadMaxBytes > 0 {
		return h.cfg.Docs.UploadMaxBytes
	}
	return 100 << 20
}

// readUpload reads the "file" part of a multipart request.
func (h *DocumentsHandler) readUpload(w http.ResponseWriter, r *http.Request) (docs.Upload, error) {
	limit := h.uploadLimit()
	r.Body = http.MaxBytesReader(w, r.Body, limit+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return docs.Upload{}, fmt.Errorf("%w: payload too large", errs.ErrValidation)
		}
		return docs.Upload{}, fmt.Errorf("%w: multipart form: %v", errs.ErrValidation, err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return docs.Upload{}, fmt.Errorf("%w: file is required", errs.ErrValidation)
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return docs.Upload{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return docs.Upload{}, fmt.Errorf("%w: payload too large", errs.ErrValidation)
	}
	return docs.Upload{Name: header.Filename, ContentType: header.Header.Get("Content-Type"), Data: data}, nil
}

func serviceRef(id, key string) *store.ServiceRef {
	id, key = strings.TrimSpace(id), strings.TrimSpace(key)
	if id == "" && key == "" {
		return &store.ServiceRef{}
	}
	return &store.ServiceRef{ID: id, Key: key}
}

func (h *DocumentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	file, err := h.readUpload(w, r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	doc, err := h.svc.Create(r.Context(), caller(r), docs.CreateRequest{
		Service:       serviceRef(r.FormValue("service"), r.FormValue("key")),
		FolderID:      r.FormValue("folder"),
		ServiceFolder: r.FormValue("serviceFolder"),
		Organization:  r.FormValue("organization"),
		IsPublic:      parseBool(r.FormValue("isPublic")),
		SignedURLTTL:  ttlParam(r),
	}, file)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

type externalPayload struct {
	URL           string            `json:"url"`
	Folder        string            `json:"folder"`
	Service       *store.ServiceRef `json:"service"`
	ServiceFolder string            `json:"serviceFolder"`
	Organization  string            `json:"organization"`
	IsPublic      bool              `json:"isPublic"`
	TTL           int               `json:"ttl"`
}

func (p externalPayload) request() docs.CreateRequest {
	svc := p.Service
	if svc == nil {
		svc = &store.ServiceRef{}
	}
	return docs.CreateRequest{
		Service:       svc,
		FolderID:      p.Folder,
		ServiceFolder: p.ServiceFolder,
		Organization:  p.Organization,
		IsPublic:      p.IsPublic,
		SignedURLTTL:  secondsTTL(p.TTL),
	}
}

func (h *DocumentsHandler) CreateExternal(w http.ResponseWriter, r *http.Request) {
	var payload externalPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	doc, err := h.svc.CreateFromURL(r.Context(), caller(r), payload.request(), payload.URL)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// CreateForService stores an upload made by another service for an
// organization that has that service enabled.
func (h *DocumentsHandler) CreateForService(w http.ResponseWriter, r *http.Request) {
	file, err := h.readUpload(w, r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	org := r.FormValue("organization")
	if org == "" {
		org = current(r).Organization
	}
	doc, err := h.svc.CreateForService(r.Context(), docs.InternalRequest{
		ServiceID:    r.FormValue("service"),
		Organization: org,
		IsPublic:     parseBool(r.FormValue("isPublic")),
		SignedURLTTL: ttlParam(r),
	}, file)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *DocumentsHandler) ListServiceFolder(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.FindByServiceFolder(r.Context(), caller(r), urlParam(r, "name"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if items == nil {
		items = []store.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Get answers with a short lived URL for the document content.
func (h *DocumentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	url, err := h.svc.URL(r.Context(), caller(r), urlParam(r, "id"), parseBool(r.URL.Query().Get("download")))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *DocumentsHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	id := urlParam(r, "id")
	if err := h.svc.Rename(r.Context(), caller(r), id, payload.Name); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	doc, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Remove(r.Context(), caller(r), urlParam(r, "id")); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentsHandler) Sign(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.Sign(r.Context(), caller(r), urlParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *DocumentsHandler) ListControls(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListControls(r.Context(), caller(r), urlParam(r, "id"), parseBool(r.URL.Query().Get("signature")))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if items == nil {
		items = []store.DocumentControl{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *DocumentsHandler) SaveControl(w http.ResponseWriter, r *http.Request) {
	var c store.DocumentControl
	if err := decodeJSON(r, &c); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	c.DocumentID = urlParam(r, "id")
	if id := urlParam(r, "control_id"); id != "" {
		c.ID = id
	}
	c.Signature = nil
	saved, err := h.svc.SaveControl(r.Context(), caller(r), &c)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *DocumentsHandler) DeleteControl(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveControl(r.Context(), caller(r), urlParam(r, "id"), urlParam(r, "control_id")); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
