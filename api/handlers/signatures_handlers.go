package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"driveshare/core/errs"
	"driveshare/core/signatures"
	"driveshare/core/store"
	"driveshare/core/utils"
)

const signatureMaxBytes = 5 << 20

type SignaturesHandler struct {
	svc    *signatures.Service
	logger *utils.Logger
}

func NewSignaturesHandler(svc *signatures.Service, logger *utils.Logger) *SignaturesHandler {
	return &SignaturesHandler{svc: svc, logger: logger}
}

func (h *SignaturesHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.FindByUser(r.Context(), current(r).User.ID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if items == nil {
		items = []store.Signature{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *SignaturesHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, signatureMaxBytes+(1<<16))
	if err := r.ParseMultipartForm(signatureMaxBytes); err != nil {
		writeError(w, h.logger, r, fmt.Errorf("%w: multipart form: %v", errs.ErrValidation, err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, h.logger, r, fmt.Errorf("%w: file is required", errs.ErrValidation))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, signatureMaxBytes))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = header.Filename
	}
	sig, err := h.svc.Create(r.Context(), current(r).User.ID, name, header.Header.Get("Content-Type"), data)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sig)
}

// Image streams the decrypted signature image to its owner.
func (h *SignaturesHandler) Image(w http.ResponseWriter, r *http.Request) {
	sig, err := h.svc.FindByID(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if sig.UserID != current(r).User.ID {
		writeError(w, h.logger, r, errs.ErrAccessDenied)
		return
	}
	data, err := h.svc.Open(r.Context(), sig)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.Header().Set("Content-Type", sig.ContentType)
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *SignaturesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Remove(r.Context(), current(r).User.ID, urlParam(r, "id")); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
