package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kestrelhq/kestrel/internal/domain"
	"github.com/kestrelhq/kestrel/internal/normalize"
	"github.com/kestrelhq/kestrel/internal/pipeline"
	"github.com/kestrelhq/kestrel/internal/repository"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	store   domain.Store
	cache   domain.Cache
	bus     domain.EventBus
	pipe    *pipeline.Pipeline
	version string
}

// NewHandler creates a new API handler.
func NewHandler(store domain.Store, cache domain.Cache, bus domain.EventBus, pipe *pipeline.Pipeline, version string) *Handler {
	return &Handler{
		store:   store,
		cache:   cache,
		bus:     bus,
		pipe:    pipe,
		version: version,
	}
}

// EvaluateRequest is the request body for POST /evaluate. Timestamp may
// be omitted for manual entries; it defaults to submission time.
type EvaluateRequest struct {
	TransactionID string `json:"transactionId,omitempty"`
	IndividualID  string `json:"individualId"`
	AccountID     string `json:"accountId"`
	BankName      string `json:"bankName"`
	Amount        string `json:"amount"`
	Timestamp     string `json:"timestamp,omitempty"`
}

// Evaluate handles POST /evaluate requests: one record, synchronously,
// full result in the response.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	raw := domain.RawRecord{
		TransactionID: req.TransactionID,
		IndividualID:  req.IndividualID,
		AccountID:     req.AccountID,
		BankName:      req.BankName,
		Amount:        req.Amount,
		Timestamp:     req.Timestamp,
	}

	result, err := h.pipe.Evaluate(ctx, tenantID, raw, normalize.ModeManual)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": verr.Error(),
			})
			return
		}
		slog.Error("evaluation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "evaluation failed",
		})
		return
	}

	h.countSubmissions(ctx, tenantID, 1)
	writeJSON(w, http.StatusOK, result)
}

// countSubmissions tracks per-tenant daily submission volume in the
// cache. Best effort; a cache failure never affects the response.
func (h *Handler) countSubmissions(ctx context.Context, tenantID string, n int) {
	if h.cache == nil {
		return
	}
	for i := 0; i < n; i++ {
		if _, err := h.cache.IncrementCounter(ctx, tenantID, "submissions:daily", 24*time.Hour); err != nil {
			slog.Debug("submission counter increment failed", "error", err)
			return
		}
	}
}

// Batch handles POST /batch: a CSV body evaluated row by row against
// the pre-batch store snapshot.
func (h *Handler) Batch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	batch, err := h.pipe.ProcessBatch(ctx, tenantID, r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	h.countSubmissions(ctx, tenantID, batch.Accepted)
	writeJSON(w, http.StatusOK, batch)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetEvaluation retrieves an evaluation by ID.
func (h *Handler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	evalID := chi.URLParam(r, "id")

	if evalID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "evaluation id is required",
		})
		return
	}

	eval, err := h.store.GetEvaluation(ctx, tenantID, evalID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get evaluation", "id", evalID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "evaluation not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, eval)
}

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	txID := chi.URLParam(r, "id")

	if txID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction id is required",
		})
		return
	}

	rec, err := h.store.GetTransaction(ctx, tenantID, txID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get transaction", "id", txID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "transaction not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// ListLimits returns all limits currently loaded in the evaluator.
// Limits are loaded from the database at startup and can be reloaded
// via POST /limits/reload.
func (h *Handler) ListLimits(w http.ResponseWriter, r *http.Request) {
	loaded := h.pipe.Evaluator().Configs()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"limits": loaded,
		"count":  len(loaded),
		"source": "database",
	})
}

// GlobalTenantID is used for limits that apply to all tenants. The
// evaluator holds one shared policy, so limit CRUD and reload are keyed
// to it; per-tenant headers scope data access, not policy.
const GlobalTenantID = "*"

// CreateLimitRequest is the request body for creating a limit.
type CreateLimitRequest struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Scope           string  `json:"scope"`
	Window          string  `json:"window,omitempty"`
	ThresholdAmount float64 `json:"thresholdAmount,omitempty"`
	ThresholdCount  int     `json:"thresholdCount,omitempty"`
	Expression      string  `json:"expression,omitempty"`
	Enabled         bool    `json:"enabled"`
}

// CreateLimit validates and saves a limit configuration. After saving,
// call POST /limits/reload to install it in the evaluator.
func (h *Handler) CreateLimit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id and name are required",
		})
		return
	}

	cfg := &domain.LimitConfig{
		ID:              req.ID,
		TenantID:        GlobalTenantID,
		Name:            req.Name,
		Version:         "1.0.0",
		Scope:           domain.LimitScope(req.Scope),
		Window:          domain.WindowKind(req.Window),
		ThresholdAmount: req.ThresholdAmount,
		ThresholdCount:  req.ThresholdCount,
		Expression:      req.Expression,
		Enabled:         req.Enabled,
	}

	// Validate before persisting, including CEL compilation.
	if err := h.pipe.Evaluator().Validate(cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid limit config: " + err.Error(),
		})
		return
	}

	if err := h.store.SaveLimitConfig(ctx, GlobalTenantID, cfg); err != nil {
		slog.Error("failed to save limit config", "id", cfg.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save limit",
		})
		return
	}

	slog.Info("limit created", "id", cfg.ID, "name", cfg.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"limit":   cfg,
		"message": "Limit created. Call POST /limits/reload to apply changes.",
	})
}

// ReloadLimits reloads all limits from the database into the evaluator.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadLimits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	count, err := h.pipe.ReloadLimits(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to reload limits", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload limits: " + err.Error(),
		})
		return
	}

	slog.Info("limits reloaded from database", "count", count)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "limits reloaded successfully",
		"count":   count,
	})
}

// Summary reports tenant-wide account statistics.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	stats, err := h.store.AccountStats(ctx, tenantID)
	if err != nil {
		slog.Error("failed to compute account stats", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to compute summary",
		})
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
