package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyrestock/stockbook/internal/apperrors"
	"github.com/tyrestock/stockbook/internal/domain/models"
	"github.com/tyrestock/stockbook/internal/server/middleware"
	"github.com/tyrestock/stockbook/internal/service/orders"
)

// OrderService is the special orders surface exposed over HTTP.
type OrderService interface {
	Create(ctx context.Context, p models.Principal, in orders.OrderInput) (models.SpecialOrder, error)
	List(ctx context.Context, filter models.SpecialOrderFilter) ([]models.SpecialOrder, error)
}

// SpecialOrderHandler serves the special reports endpoints.
type SpecialOrderHandler struct {
	svc    OrderService
	logger *zap.Logger
}

func NewSpecialOrderHandler(svc OrderService, logger *zap.Logger) *SpecialOrderHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SpecialOrderHandler{svc: svc, logger: logger}
}

type specialOrderRequest struct {
	Date         string `json:"date"`
	CustomerName string `json:"customerName"`
	PhoneNumber  string `json:"phoneNumber"`
	TyreSize     string `json:"tyreSize"`
	Quantity     int    `json:"quantity"`
	Location     string `json:"location"`
	Comment      string `json:"comment"`
}

func (h *SpecialOrderHandler) Create(c *gin.Context) {
	var req specialOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid special order payload", zap.Error(err))
		middleware.Abort(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid request body"))
		return
	}
	day, err := parseDay(req.Date)
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	order, err := h.svc.Create(c.Request.Context(), principal(c), orders.OrderInput{
		Date:         day,
		CustomerName: req.CustomerName,
		PhoneNumber:  req.PhoneNumber,
		TyreSize:     req.TyreSize,
		Quantity:     req.Quantity,
		Location:     req.Location,
		Comment:      req.Comment,
	})
	if err != nil {
		logFailure(h.logger, c, err)
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Special order created successfully", "specialOrder": order})
}

func (h *SpecialOrderHandler) List(c *gin.Context) {
	filter := models.SpecialOrderFilter{
		TyreSize: c.Query("tyreSize"),
		Location: c.Query("location"),
	}
	if raw := c.Query("date"); raw != "" {
		day, err := parseDay(raw)
		if err != nil {
			middleware.Abort(c, err)
			return
		}
		filter.Date = &day
	}

	out, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		logFailure(h.logger, c, err)
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
