package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ICEcream2714/ktpm-btl-cs4/cmd/server/internal/ingest"
	"github.com/ICEcream2714/ktpm-btl-cs4/cmd/server/internal/store"
	"github.com/ICEcream2714/ktpm-btl-cs4/pkg/models"
)

type createRequest struct {
	Category  string     `json:"category"`
	Price     string     `json:"price"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

type deleteResponse struct {
	Message     string             `json:"message"`
	DeletedData models.Observation `json:"deletedData"`
}

type errorResponse struct {
	Error string `json:"error,omitempty"`

	// Message mirrors the 404 body shape of the read path.
	Message string `json:"message,omitempty"`
}

// Handler exposes the write API over the ingest service.
type Handler struct {
	svc    *ingest.Service
	logger *zap.Logger
}

func NewHandler(svc *ingest.Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the market data routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /market-data", h.create)
	mux.HandleFunc("GET /market-data", h.list)
	mux.HandleFunc("DELETE /market-data/{id}", h.delete)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	var observedAt time.Time
	if req.Timestamp != nil {
		observedAt = *req.Timestamp
	}

	obs, err := h.svc.Create(r.Context(), req.Category, req.Price, observedAt)
	if errors.Is(err, ingest.ErrInvalidInput) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("Create failed", zap.String("category", req.Category), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to persist market data"})
		return
	}

	writeJSON(w, http.StatusCreated, obs)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	day, err := parseDay(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	category := r.URL.Query().Get("category")

	data, err := h.svc.ListLatest(r.Context(), day, category)
	if err != nil {
		h.logger.Error("List failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load market data"})
		return
	}

	if len(data) == 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "No market data found for the specified day"})
		return
	}

	writeJSON(w, http.StatusOK, data)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	deleted, err := h.svc.Delete(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "Market data not found"})
		return
	}
	if err != nil {
		h.logger.Error("Delete failed", zap.String("id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to delete market data"})
		return
	}

	writeJSON(w, http.StatusOK, deleteResponse{Message: "Market data deleted successfully", DeletedData: deleted})
}

// parseDay reads the optional day/month/year query triple. All three must be
// present together; absent means "no day filter".
func parseDay(r *http.Request) (time.Time, error) {
	q := r.URL.Query()
	dayStr, monthStr, yearStr := q.Get("day"), q.Get("month"), q.Get("year")
	if dayStr == "" && monthStr == "" && yearStr == "" {
		return time.Time{}, nil
	}

	day, err1 := strconv.Atoi(dayStr)
	month, err2 := strconv.Atoi(monthStr)
	year, err3 := strconv.Atoi(yearStr)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, errors.New("day, month and year must all be integers")
	}

	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.Local), nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
