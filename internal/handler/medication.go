package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/pillbox/internal/inventory"
	"github.com/dukerupert/pillbox/internal/model"
	"github.com/dukerupert/pillbox/internal/reminder"
	"github.com/dukerupert/pillbox/internal/schedule"
	"github.com/dukerupert/pillbox/internal/store"
	"github.com/dukerupert/pillbox/internal/websocket"
)

const restockNoticeTimeout = 10 * time.Second

type MedicationHandler struct {
	medications *store.MedicationStore
	families    *store.FamilyStore
	notifier    reminder.Notifier
	hub         Broadcaster
	logger      *slog.Logger
}

func NewMedicationHandler(ms *store.MedicationStore, fs *store.FamilyStore, notifier reminder.Notifier, hub Broadcaster, logger *slog.Logger) *MedicationHandler {
	return &MedicationHandler{medications: ms, families: fs, notifier: notifier, hub: orNop(hub), logger: logger}
}

type medicationRequest struct {
	FamilyID      string            `json:"family_id"`
	Name          string            `json:"name"`
	Quantity      *int              `json:"quantity"`
	ReminderTimes map[string]string `json:"reminder_times"`
}

// parse validates the request and returns the parsed reminder times.
func (req *medicationRequest) parse() (map[string]*schedule.TimeOfDay, string) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, "name is required"
	}
	if req.Quantity == nil {
		return nil, "quantity is required"
	}
	if *req.Quantity < 0 {
		return nil, "quantity must not be negative"
	}
	times, err := schedule.ParseReminderTimes(req.ReminderTimes)
	if err != nil {
		return nil, err.Error()
	}
	return times, ""
}

func (h *MedicationHandler) List(w http.ResponseWriter, r *http.Request) {
	meds, err := h.medications.List(r.Context())
	if err != nil {
		h.logger.Error("list medications", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list medications")
		return
	}
	if meds == nil {
		meds = []model.Medication{}
	}
	writeJSON(w, http.StatusOK, meds)
}

func (h *MedicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	med, err := h.medications.GetByID(r.Context(), pathID(r))
	if err != nil {
		h.logger.Error("get medication", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get medication")
		return
	}
	if med == nil {
		writeError(w, http.StatusNotFound, "medication not found")
		return
	}
	writeJSON(w, http.StatusOK, med)
}

func (h *MedicationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req medicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	times, msg := req.parse()
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	family, err := h.families.GetByID(r.Context(), strings.TrimSpace(req.FamilyID))
	if err != nil {
		h.logger.Error("get family", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get family")
		return
	}
	if family == nil {
		writeError(w, http.StatusBadRequest, "family not found")
		return
	}

	med, err := h.medications.Create(r.Context(), family.ID, req.Name, *req.Quantity, times)
	if err != nil {
		h.logger.Error("create medication", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create medication")
		return
	}

	h.broadcast("created", med)
	writeJSON(w, http.StatusCreated, med)
}

func (h *MedicationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)

	var req medicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	times, msg := req.parse()
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	med, err := h.medications.Update(r.Context(), id, req.Name, *req.Quantity, times)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "medication not found")
		return
	}
	if err != nil {
		h.logger.Error("update medication", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update medication")
		return
	}

	h.broadcast("updated", med)
	writeJSON(w, http.StatusOK, med)
}

func (h *MedicationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)

	med, err := h.medications.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("get medication", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get medication")
		return
	}
	if med == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := h.medications.Delete(r.Context(), id); err != nil {
		h.logger.Error("delete medication", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete medication")
		return
	}

	h.broadcast("deleted", med)
	w.WriteHeader(http.StatusNoContent)
}

// Restock adds stock and emails the owning family a restock notice.
func (h *MedicationHandler) Restock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AddQty int `json:"add_qty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	med, previous, err := h.medications.Restock(r.Context(), pathID(r), req.AddQty)
	switch {
	case errors.Is(err, inventory.ErrInvalidRestock):
		writeError(w, http.StatusBadRequest, "add_qty must be positive")
		return
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "medication not found")
		return
	case err != nil:
		h.logger.Error("restock medication", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to restock medication")
		return
	}

	h.sendRestockNotice(r.Context(), *med, previous, req.AddQty)
	h.broadcast("restocked", med)
	writeJSON(w, http.StatusOK, med)
}

func (h *MedicationHandler) sendRestockNotice(ctx context.Context, med model.Medication, previous, added int) {
	family, err := h.families.GetByID(ctx, med.FamilyID)
	if err != nil || family == nil {
		h.logger.Warn("restock notice: family lookup failed", "medication_id", med.ID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, restockNoticeTimeout)
	defer cancel()

	subject, body := reminder.RestockMessage(family.Name, med, previous, added)
	if err := h.notifier.Send(ctx, family.Email, subject, body); err != nil {
		h.logger.Error("send restock notice", "medication_id", med.ID, "to", family.Email, "error", err)
	}
}

func (h *MedicationHandler) broadcast(action string, med *model.Medication) {
	h.hub.Broadcast(websocket.NewMessage("medication", action, med.ID, med.FamilyID, map[string]any{
		"quantity": med.Quantity,
	}))
}
