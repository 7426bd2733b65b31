package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nurpe/tender-eval/internal/evaluation"
	"github.com/nurpe/tender-eval/internal/http/middleware"
	"github.com/nurpe/tender-eval/internal/model"
	"github.com/nurpe/tender-eval/internal/service"
)

const (
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypePDF  = "application/pdf"
)

var errInvalidInput = errors.New("invalid input")

type Handler struct {
	evaluations *service.EvaluationService
	exporter    *service.Exporter
	timeout     time.Duration
	log         zerolog.Logger
}

func NewHandler(evaluations *service.EvaluationService, exporter *service.Exporter, timeout time.Duration, log zerolog.Logger) *Handler {
	return &Handler{evaluations: evaluations, exporter: exporter, timeout: timeout, log: log}
}

func (h *Handler) Register(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	protected := router.Group("/")
	protected.Use(authMiddleware)

	protected.POST("/evaluations", h.loadOrInit)
	protected.GET("/evaluations/:id", h.getEvaluation)
	protected.GET("/evaluations/:id/firm-totals", h.firmTotals)
	protected.POST("/evaluations/:id/recalculate", h.recalculate)
	protected.GET("/evaluations/:id/export/xlsx", h.exportXLSX)
	protected.GET("/evaluations/:id/export/pdf", h.exportPDF)

	protected.POST("/evaluations/:id/tables", h.addTable)
	protected.PATCH("/evaluations/:id/tables/:tableId", h.renameTable)
	protected.DELETE("/evaluations/:id/tables/:tableId", h.removeTable)
	protected.POST("/evaluations/:id/tables/:tableId/import/fee-structure", h.importFeeStructure)
	protected.POST("/evaluations/:id/tables/:tableId/import/submissions", h.importSubmissions)

	protected.POST("/evaluations/:id/tables/:tableId/items", h.addItem)
	protected.PATCH("/evaluations/:id/tables/:tableId/items/:itemId", h.updateItem)
	protected.DELETE("/evaluations/:id/tables/:tableId/items/:itemId", h.deleteItem)
	protected.GET("/evaluations/:id/tables/:tableId/items/:itemId/path", h.itemPath)
	protected.GET("/evaluations/:id/tables/:tableId/items/:itemId/prices", h.itemPrices)
	protected.PUT("/evaluations/:id/tables/:tableId/items/:itemId/prices/:firmId", h.setPrice)
}

type loadOrInitRequest struct {
	ProjectID        string  `json:"project_id" binding:"required"`
	DisciplineID     string  `json:"discipline_id" binding:"required"`
	ConsultantCardID *string `json:"consultant_card_id"`
	ContractorCardID *string `json:"contractor_card_id"`
}

type tableRequest struct {
	Name string `json:"name" binding:"required"`
}

type addItemRequest struct {
	Description string             `json:"description" binding:"required"`
	IsCategory  bool               `json:"is_category"`
	ParentID    *string            `json:"parent_id"`
	Prices      []model.PriceEntry `json:"prices"`
}

type updateItemRequest struct {
	Description *string `json:"description"`
	IsCategory  *bool   `json:"is_category"`
	SortOrder   *int    `json:"sort_order"`
}

type setPriceRequest struct {
	Amount *decimal.Decimal `json:"amount" binding:"required"`
}

func (h *Handler) loadOrInit(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var req loadOrInitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key, err := parseKey(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	ev, err := h.evaluations.LoadOrInit(ctx, principal, key)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"evaluation": ev})
}

func (h *Handler) getEvaluation(c *gin.Context) {
	principal, ids, ok := h.resolve(c, "id")
	if !ok {
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	ev, err := h.evaluations.Get(ctx, principal, ids["id"])
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"evaluation": ev})
}

func (h *Handler) firmTotals(c *gin.Context) {
	principal, ids, ok := h.resolve(c, "id")
	if !ok {
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	ev, err := h.evaluations.Get(ctx, principal, ids["id"])
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"firm_totals": evaluation.FirmTotals(ev),
		"grand_total": ev.GrandTotal,
	})
}

func (h *Handler) recalculate(c *gin.Context) {
	principal, ids, ok := h.resolve(c, "id")
	if !ok {
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	ev, err := h.evaluations.RecalculateAll(ctx, principal, ids["id"])
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"evaluation": ev})
}

func (h *Handler) exportXLSX(c *gin.Context) {
	h.export(c, h.exporter.ExportXLSX, contentTypeXLSX)
}

func (h *Handler) exportPDF(c *gin.Context) {
	h.export(c, h.exporter.ExportPDF, contentTypePDF)
}

func (h *Handler) export(c *gin.Context, run func(context.Context, model.Principal, uuid.UUID) (*service.ExportResult, error), contentType string) {
	principal, ids, ok := h.resolve(c, "id")
	if !ok {
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := run(ctx, principal, ids["id"])
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", "attachment; filename=\""+result.FileName+"\"")
	c.Data(http.StatusOK, contentType, result.Content)
}

func (h *Handler) addTable(c *gin.Context) {
	principal, ids, ok := h.resolve(c, "id")
	if !ok {
		return
	}
	var req tableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	ev, table, err := h.evaluations.AddTable(ctx, principal, ids["id"], req.Name)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"evaluation": ev, "table": table})
}

func (h *Handler) renameTable(c *gin.Context) {
	principal, ids, ok := h.resolve(c, "id", "tableId")
	if !ok {
		return
	}
	var req tableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	ev, err := h.evaluations.RenameTable(ctx, principal, ids["id"], ids["tableId"], req.Name)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"evaluation": ev})
}

func (h *Handler) removeTable(c *gin.Context) {
	principal, ids, ok := h.resolve(c, "id", "tableId")
	if !ok {
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	ev, err := h.evaluations.RemoveTable(ctx, principal, ids["id"], ids["tableId"])
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"evaluation": ev})
}

func (h *Handler) importFeeStructure(c *gin.Context) {
	principal, ids, ok := h.resolve(c, "id", "tableId")
	if !ok {
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	ev, err := h.evaluations.ImportStructureFromFeeSchedule(ctx, principal, ids["id"], ids["tableId"])
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"evaluation": ev})
}

func (h *Handler) importSubmissions(c *gin.Context) {
	principal, ids, ok := h.resolve(c, "id", "tableId")
	if !ok {
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	ev, report, err := h.evaluations.ImportPricesFromSubmissions(ctx, principal, ids["id"], ids["tableId"])
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"evaluation": ev,
		"report": gin.H{
			"matched_items":  report.MatchedItems,
			"applied_prices": report.AppliedPrices,
			"unmatched_refs": report.UnmatchedRefs,
		},
	})
}

func (h *Handler) addItem(c *gin.Context) {
	principal, ids, ok := h.resolve(c, "id", "tableId")
	if !ok {
		return
	}
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	parentID, err := parseOptionalUUID(req.ParentID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid parent_id"})
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	ev, item, err := h.evaluations.AddLineItem(ctx, principal, ids["id"], service.AddLineItemInput{
		TableID:     ids["tableId"],
		ParentID:    parentID,
		Description: req.Description,
		IsCategory:  req.IsCategory,
		Prices:      req.Prices,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"evaluation": ev, "item": item})
}

func (h *Handler) updateItem(c *gin.Context) {
	principal, ids, ok := h.resolve(c, "id", "tableId", "itemId")
	if !ok {
		return
	}
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	ev, item, err := h.evaluations.UpdateLineItem(ctx, principal, ids["id"], ids["tableId"], ids["itemId"], evaluation.ItemPatch{
		Description: req.Description,
		IsCategory:  req.IsCategory,
		SortOrder:   req.SortOrder,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"evaluation": ev, "item": item})
}

func (h *Handler) deleteItem(c *gin.Context) {
	principal, ids, ok := h.resolve(c, "id", "tableId", "itemId")
	if !ok {
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	ev, err := h.evaluations.DeleteLineItem(ctx, principal, ids["id"], ids["tableId"], ids["itemId"])
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"evaluation": ev})
}

func (h *Handler) itemPath(c *gin.Context) {
	principal, ids, ok := h.resolve(c, "id", "tableId", "itemId")
	if !ok {
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	path, err := h.evaluations.FindPath(ctx, principal, ids["id"], ids["tableId"], ids["itemId"])
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path})
}

func (h *Handler) itemPrices(c *gin.Context) {
	principal, ids, ok := h.resolve(c, "id", "tableId", "itemId")
	if !ok {
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	prices, err := h.evaluations.GetPrices(ctx, principal, ids["id"], ids["tableId"], ids["itemId"])
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prices": prices})
}

func (h *Handler) setPrice(c *gin.Context) {
	principal, ids, ok := h.resolve(c, "id", "tableId", "itemId", "firmId")
	if !ok {
		return
	}
	var req setPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	ev, err := h.evaluations.SetFirmPrice(ctx, principal, ids["id"], ids["tableId"], ids["itemId"], ids["firmId"], *req.Amount)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"evaluation": ev})
}

func (h *Handler) principal(c *gin.Context) (model.Principal, bool) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return model.Principal{}, false
	}
	return principal, true
}

// resolve reads the principal and parses the named path parameters as uuids.
func (h *Handler) resolve(c *gin.Context, params ...string) (model.Principal, map[string]uuid.UUID, bool) {
	principal, ok := h.principal(c)
	if !ok {
		return model.Principal{}, nil, false
	}
	ids := make(map[string]uuid.UUID, len(params))
	for _, param := range params {
		id, err := uuid.Parse(strings.TrimSpace(c.Param(param)))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param})
			return model.Principal{}, nil, false
		}
		ids[param] = id
	}
	return principal, ids, true
}

func (h *Handler) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), h.timeout)
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, evaluation.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, evaluation.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, evaluation.ErrInvalidState), errors.Is(err, evaluation.ErrInvalidOperation):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request timed out"})
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("tender evaluation request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parseKey(req loadOrInitRequest) (model.EvaluationKey, error) {
	projectID, err := uuid.Parse(strings.TrimSpace(req.ProjectID))
	if err != nil {
		return model.EvaluationKey{}, fmt.Errorf("%w: project_id", errInvalidInput)
	}
	disciplineID, err := uuid.Parse(strings.TrimSpace(req.DisciplineID))
	if err != nil {
		return model.EvaluationKey{}, fmt.Errorf("%w: discipline_id", errInvalidInput)
	}
	consultant, err := parseOptionalUUID(req.ConsultantCardID)
	if err != nil {
		return model.EvaluationKey{}, fmt.Errorf("%w: consultant_card_id", errInvalidInput)
	}
	contractor, err := parseOptionalUUID(req.ContractorCardID)
	if err != nil {
		return model.EvaluationKey{}, fmt.Errorf("%w: contractor_card_id", errInvalidInput)
	}
	return model.EvaluationKey{
		ProjectID:        projectID,
		DisciplineID:     disciplineID,
		ConsultantCardID: consultant,
		ContractorCardID: contractor,
	}, nil
}

func parseOptionalUUID(raw *string) (*uuid.UUID, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	id, err := uuid.Parse(strings.TrimSpace(*raw))
	if err != nil {
		return nil, errInvalidInput
	}
	return &id, nil
}
