package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/pillbox/internal/model"
	"github.com/dukerupert/pillbox/internal/store"
	"github.com/dukerupert/pillbox/internal/websocket"
)

type FamilyHandler struct {
	families    *store.FamilyStore
	medications *store.MedicationStore
	hub         Broadcaster
	logger      *slog.Logger
}

func NewFamilyHandler(fs *store.FamilyStore, ms *store.MedicationStore, hub Broadcaster, logger *slog.Logger) *FamilyHandler {
	return &FamilyHandler{families: fs, medications: ms, hub: orNop(hub), logger: logger}
}

type familyRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (req *familyRequest) validate() string {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" {
		return "name is required"
	}
	if !validEmail(req.Email) {
		return "a valid email is required"
	}
	return ""
}

func (h *FamilyHandler) List(w http.ResponseWriter, r *http.Request) {
	families, err := h.families.List(r.Context())
	if err != nil {
		h.logger.Error("list families", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list families")
		return
	}
	if families == nil {
		families = []model.Family{}
	}
	writeJSON(w, http.StatusOK, families)
}

func (h *FamilyHandler) Get(w http.ResponseWriter, r *http.Request) {
	family, err := h.families.GetByID(r.Context(), pathID(r))
	if err != nil {
		h.logger.Error("get family", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get family")
		return
	}
	if family == nil {
		writeError(w, http.StatusNotFound, "family not found")
		return
	}
	writeJSON(w, http.StatusOK, family)
}

func (h *FamilyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req familyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	family, err := h.families.Create(r.Context(), req.Name, req.Email)
	if err != nil {
		h.logger.Error("create family", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create family")
		return
	}

	h.hub.Broadcast(websocket.NewMessage("family", "created", family.ID, family.ID, nil))
	writeJSON(w, http.StatusCreated, family)
}

func (h *FamilyHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)

	existing, err := h.families.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("get family", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get family")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "family not found")
		return
	}

	var req familyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	// Blank fields keep their current value.
	if strings.TrimSpace(req.Name) == "" {
		req.Name = existing.Name
	}
	if strings.TrimSpace(req.Email) == "" {
		req.Email = existing.Email
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	family, err := h.families.Update(r.Context(), id, req.Name, req.Email)
	if err != nil {
		h.logger.Error("update family", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update family")
		return
	}

	h.hub.Broadcast(websocket.NewMessage("family", "updated", family.ID, family.ID, nil))
	writeJSON(w, http.StatusOK, family)
}

// Delete removes a family and, through the cascade, all of its medications.
func (h *FamilyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	if err := h.families.Delete(r.Context(), id); err != nil {
		h.logger.Error("delete family", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete family")
		return
	}

	h.hub.Broadcast(websocket.NewMessage("family", "deleted", id, id, nil))
	w.WriteHeader(http.StatusNoContent)
}

func (h *FamilyHandler) ListMedications(w http.ResponseWriter, r *http.Request) {
	meds, err := h.medications.ListByFamily(r.Context(), pathID(r))
	if err != nil {
		h.logger.Error("list family medications", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list medications")
		return
	}
	if meds == nil {
		meds = []model.Medication{}
	}
	writeJSON(w, http.StatusOK, meds)
}
