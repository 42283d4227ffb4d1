package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/pillbox/internal/handler"
	"github.com/dukerupert/pillbox/internal/middleware"
	"github.com/dukerupert/pillbox/internal/model"
	"github.com/dukerupert/pillbox/internal/reminder"
	"github.com/dukerupert/pillbox/internal/store"
	ws "github.com/dukerupert/pillbox/internal/websocket"
)

type Server struct {
	hub         *ws.Hub
	familyH     *handler.FamilyHandler
	medicationH *handler.MedicationHandler
	engine      *reminder.Engine
	scheduler   *reminder.Scheduler
	logger      *slog.Logger
}

func New(db *sql.DB, notifier reminder.Notifier, reminderCfg reminder.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	familyStore := store.NewFamilyStore(db)
	medicationStore := store.NewMedicationStore(db)

	// Engine-driven quantity changes reach dashboards the same way CRUD edits do.
	engine := reminder.NewEngine(medicationStore, notifier, reminderCfg, logger.With("component", "reminder"),
		reminder.WithOnChange(func(m model.Medication) {
			hub.Broadcast(ws.NewMessage("medication", "dose_taken", m.ID, m.FamilyID, map[string]any{
				"quantity": m.Quantity,
			}))
		}),
	)
	scheduler := reminder.NewScheduler(engine, logger.With("component", "scheduler"))

	return &Server{
		hub:         hub,
		familyH:     handler.NewFamilyHandler(familyStore, medicationStore, hub, logger.With("component", "family")),
		medicationH: handler.NewMedicationHandler(medicationStore, familyStore, notifier, hub, logger.With("component", "medication")),
		engine:      engine,
		scheduler:   scheduler,
		logger:      logger,
	}
}

// Scheduler returns the reminder scheduler; the caller starts and stops it.
func (s *Server) Scheduler() *reminder.Scheduler {
	return s.scheduler
}

// Engine returns the reminder engine.
func (s *Server) Engine() *reminder.Engine {
	return s.engine
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	mux.HandleFunc("GET /api/families", s.familyH.List)
	mux.HandleFunc("POST /api/families", s.familyH.Create)
	mux.HandleFunc("GET /api/families/{id}", s.familyH.Get)
	mux.HandleFunc("PUT /api/families/{id}", s.familyH.Update)
	mux.HandleFunc("DELETE /api/families/{id}", s.familyH.Delete)
	mux.HandleFunc("GET /api/families/{id}/medications", s.familyH.ListMedications)

	mux.HandleFunc("GET /api/medications", s.medicationH.List)
	mux.HandleFunc("POST /api/medications", s.medicationH.Create)
	mux.HandleFunc("GET /api/medications/{id}", s.medicationH.Get)
	mux.HandleFunc("PUT /api/medications/{id}", s.medicationH.Update)
	mux.HandleFunc("DELETE /api/medications/{id}", s.medicationH.Delete)
	mux.HandleFunc("POST /api/medications/{id}/restock", s.medicationH.Restock)

	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))

	var h http.Handler = mux
	h = middleware.Recover(s.logger)(h)
	h = middleware.RequestLogger(s.logger.With("component", "http"))(h)
	return h
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"timezone":  s.engine.Location().String(),
		"scheduler": s.scheduler.Status(),
	})
}
