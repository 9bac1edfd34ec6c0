package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/DevDavilla/sistema-vendas-backend/internal/adapter/storage"
	"github.com/DevDavilla/sistema-vendas-backend/internal/core/domain"
	"github.com/DevDavilla/sistema-vendas-backend/internal/core/service"
)

// SaleHandler exposes the sale lifecycle over HTTP. The operator id is taken
// from the authenticated token, never from the request body.
type SaleHandler struct {
	sales  *service.SaleService
	logger *zap.Logger
}

func NewSaleHandler(sales *service.SaleService, logger *zap.Logger) *SaleHandler {
	return &SaleHandler{
		sales:  sales,
		logger: logger,
	}
}

// RegisterRoutes binds the sale endpoints. Sellers create and read sales;
// cancellation is admin only.
func RegisterRoutes(e *gin.Engine, h *SaleHandler, jwtSecret []byte) {
	e.GET("/health", h.Health)

	sales := e.Group("/api/sales", AuthRequired(jwtSecret))
	sales.POST("", RequireRole(RoleSeller), h.CreateSale)
	sales.GET("", RequireRole(RoleSeller), h.ListSales)
	sales.GET("/:id", RequireRole(RoleSeller), h.GetSale)
	sales.PUT("/:id/cancel", RequireRole(RoleAdmin), h.CancelSale)
}

// Bound on how long a state-changing request may wait on row locks before
// the whole transaction is aborted and surfaced as retryable.
const stateChangeTimeout = 5 * time.Second

type createSaleRequest struct {
	RequestID     string               `json:"request_id"`
	ClientID      *string              `json:"client_id"`
	PaymentMethod string               `json:"payment_method"`
	Items         []domain.ItemRequest `json:"items"`
}

func (h *SaleHandler) CreateSale(c *gin.Context) {
	var req createSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), stateChangeTimeout)
	defer cancel()

	claims := getClaims(c)
	sale, err := h.sales.CreateSale(ctx, domain.SaleRequest{
		RequestID:     req.RequestID,
		OperatorID:    claims.Subject,
		ClientID:      req.ClientID,
		PaymentMethod: req.PaymentMethod,
		Items:         req.Items,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, sale)
}

func (h *SaleHandler) CancelSale(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), stateChangeTimeout)
	defer cancel()

	sale, err := h.sales.CancelSale(ctx, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, sale)
}

func (h *SaleHandler) GetSale(c *gin.Context) {
	sale, err := h.sales.GetSale(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, sale)
}

func (h *SaleHandler) ListSales(c *gin.Context) {
	sales, err := h.sales.ListSales(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, sales)
}

func (h *SaleHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *SaleHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrSaleNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrSaleAlreadyCancelled),
		errors.Is(err, domain.ErrDuplicateRequest):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrLockWait), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "data store busy, retry the request"})
	default:
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
