package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/driftstack/driftgate/internal/registry"
	"github.com/driftstack/driftgate/internal/schema"
	"github.com/driftstack/driftgate/internal/services"
	"github.com/driftstack/driftgate/internal/store"
)

// handlers holds the HTTP handlers backed by the validation service.
type handlers struct {
	svc    *services.ValidationService
	logger *slog.Logger
}

func newHandlers(svc *services.ValidationService, logger *slog.Logger) *handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &handlers{svc: svc, logger: logger}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type schemaResponse struct {
	Dataset     string                     `json:"dataset"`
	Constraints *schema.DatasetConstraints `json:"constraints"`
}

func (h *handlers) handleValidate(c *gin.Context) {
	var req services.ValidationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "INVALID_BODY"})
		return
	}

	result, err := h.svc.ValidateSnapshot(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "validate", req.Dataset, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handlers) handleIngestSnapshot(c *gin.Context) {
	var snap store.Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "INVALID_BODY"})
		return
	}

	stored, err := h.svc.IngestSnapshot(c.Request.Context(), snap)
	if err != nil {
		h.fail(c, "ingest", snap.Dataset, err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

func (h *handlers) handleListSnapshots(c *gin.Context) {
	dataset := c.Param("dataset")

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer", Code: "INVALID_LIMIT"})
			return
		}
		limit = parsed
	}

	snaps, err := h.svc.Snapshots(c.Request.Context(), dataset, limit)
	if err != nil {
		h.fail(c, "list snapshots", dataset, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dataset": dataset, "snapshots": snaps})
}

func (h *handlers) handleListSchemas(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"datasets": h.svc.Datasets()})
}

func (h *handlers) handleGetSchema(c *gin.Context) {
	dataset := c.Param("dataset")

	constraints, err := h.svc.Constraints(dataset)
	if err != nil {
		h.fail(c, "get schema", dataset, err)
		return
	}
	c.JSON(http.StatusOK, schemaResponse{Dataset: dataset, Constraints: constraints})
}

func (h *handlers) handleDeclareComparator(c *gin.Context) {
	dataset := c.Param("dataset")
	kind := c.Param("kind")

	var body schema.RatioComparator
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "INVALID_BODY"})
		return
	}

	constraints, err := h.svc.DeclareConstraint(c.Request.Context(), dataset, kind, body.MinFractionThreshold, body.MaxFractionThreshold)
	if err != nil {
		h.fail(c, "declare comparator", dataset, err)
		return
	}
	c.JSON(http.StatusOK, schemaResponse{Dataset: dataset, Constraints: constraints})
}

func (h *handlers) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) handleReady(c *gin.Context) {
	if h.svc == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "service not ready", Code: "NOT_READY"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (h *handlers) fail(c *gin.Context, op, dataset string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "op", op, "dataset", dataset, "error", err)
	} else {
		h.logger.Debug("request rejected", "op", op, "dataset", dataset, "error", err)
	}
	c.JSON(status, errorResponse{Error: err.Error(), Code: code})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrInvalidRequest):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, registry.ErrUnknownDataset):
		return http.StatusNotFound, "UNKNOWN_DATASET"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "SNAPSHOT_NOT_FOUND"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
