package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"

	"github.com/maltedev/adlibrary-sync/internal/database"
	"github.com/maltedev/adlibrary-sync/internal/jobs"
	"github.com/maltedev/adlibrary-sync/internal/models"
	"github.com/maltedev/adlibrary-sync/internal/storage"
)

type RunManager interface {
	Start(req jobs.StartRequest) (models.Run, error)
	Get(runID string) (models.Run, error)
	List() []models.Run
	Authenticate(runID string) (models.Run, error)
}

// OutboxCounter reports outbox backlog for the health check.
type OutboxCounter interface {
	CountByStatus(ctx context.Context, statuses ...string) (int64, error)
}

type Handlers struct {
	store  storage.Store
	runs   RunManager
	outbox OutboxCounter
	logger *slog.Logger
}

// NewHandlers wires the HTTP surface. outbox may be nil when records are
// kept on disk.
func NewHandlers(store storage.Store, runs RunManager, outbox OutboxCounter, logger *slog.Logger) *Handlers {
	return &Handlers{
		store:  store,
		runs:   runs,
		outbox: outbox,
		logger: logger.With("component", "api"),
	}
}

type healthResponse struct {
	Status  string        `json:"status"`
	Message string        `json:"message,omitempty"`
	Outbox  *outboxHealth `json:"outbox,omitempty"`
}

type outboxHealth struct {
	Pending    int64 `json:"pending"`
	DeadLetter int64 `json:"dead_letter"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	status := http.StatusOK

	if h.outbox != nil {
		pending, err := h.outbox.CountByStatus(r.Context(), database.OutboxStatusPending, database.OutboxStatusFailed)
		if err != nil {
			h.logger.Error("failed to count pending events", "error", err)
			h.respondError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		dead, err := h.outbox.CountByStatus(r.Context(), database.OutboxStatusDeadLetter)
		if err != nil {
			h.logger.Error("failed to count dead letter events", "error", err)
			h.respondError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}

		resp.Outbox = &outboxHealth{Pending: pending, DeadLetter: dead}
		if pending > 1000 {
			resp.Status = "warning"
			resp.Message = "high number of pending outbox events"
		}
		if dead > 100 {
			resp.Status = "error"
			resp.Message = "high number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, resp)
}

func (h *Handlers) GetCollection(w http.ResponseWriter, r *http.Request) {
	collectionID := chi.URLParam(r, "collectionID")

	meta, err := h.store.LoadMeta(r.Context(), collectionID)
	if errors.Is(err, storage.ErrInvalidID) {
		h.respondError(w, http.StatusBadRequest, "invalid collection id")
		return
	}
	if err != nil {
		h.logger.Error("failed to load collection meta", "collection_id", collectionID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load collection")
		return
	}
	if meta == nil {
		h.respondError(w, http.StatusNotFound, "collection not found")
		return
	}

	h.respondJSON(w, http.StatusOK, meta)
}

type recordsResponse struct {
	CollectionID string          `json:"collection_id"`
	Count        int             `json:"count"`
	Records      []models.Record `json:"records"`
}

func (h *Handlers) ListRecords(w http.ResponseWriter, r *http.Request) {
	collectionID := chi.URLParam(r, "collectionID")

	records, err := h.store.ListRecords(r.Context(), collectionID)
	if errors.Is(err, storage.ErrInvalidID) {
		h.respondError(w, http.StatusBadRequest, "invalid collection id")
		return
	}
	if err != nil {
		h.logger.Error("failed to list records", "collection_id", collectionID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	if records == nil {
		records = []models.Record{}
	}

	h.respondJSON(w, http.StatusOK, recordsResponse{
		CollectionID: collectionID,
		Count:        len(records),
		Records:      records,
	})
}

func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	var req jobs.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	run, err := h.runs.Start(req)
	switch {
	case errors.Is(err, jobs.ErrInvalidRun):
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, jobs.ErrRunActive):
		h.respondError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		h.logger.Error("failed to start run", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to start run")
		return
	}

	h.respondJSON(w, http.StatusAccepted, run)
}

func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.runs.List())
}

func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.Get(chi.URLParam(r, "runID"))
	if err != nil {
		h.respondError(w, http.StatusNotFound, "run not found")
		return
	}
	h.respondJSON(w, http.StatusOK, run)
}

// Authenticated is called once the operator has logged in through the
// browser window.
func (h *Handlers) Authenticated(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.Authenticate(chi.URLParam(r, "runID"))
	if err != nil {
		h.respondError(w, http.StatusNotFound, "run not found")
		return
	}
	h.respondJSON(w, http.StatusOK, run)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
