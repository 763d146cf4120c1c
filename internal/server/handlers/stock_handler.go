package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tyrestock/stockbook/internal/apperrors"
	"github.com/tyrestock/stockbook/internal/domain/models"
	"github.com/tyrestock/stockbook/internal/server/middleware"
	"github.com/tyrestock/stockbook/internal/service/stock"
)

// StockService is the stock engine surface exposed over HTTP.
type StockService interface {
	OpenDay(ctx context.Context, p models.Principal, in stock.StockInput) (stock.DayOpening, error)
	Restock(ctx context.Context, p models.Principal, in stock.StockInput) (models.StockRecord, error)
	RecordSale(ctx context.Context, p models.Principal, in stock.SaleInput) (stock.SaleReceipt, error)
	GetOpenStock(ctx context.Context, day time.Time) ([]models.StockRecord, error)
	GetExistingStock(ctx context.Context, day time.Time) ([]models.StockRecord, error)
	ComputeClosingStock(ctx context.Context, day time.Time) ([]models.StockRecord, error)
	ListClosingStock(ctx context.Context, day time.Time) ([]models.StockRecord, error)
	ListSales(ctx context.Context, filter models.SaleFilter) ([]models.SaleRecord, error)
	ListStockKeys(ctx context.Context, day time.Time, status models.StockStatus) (stock.StockKeys, error)
}

// StockHandler adapts the stock engine to HTTP.
type StockHandler struct {
	svc    StockService
	logger *zap.Logger
}

// NewStockHandler constructs the HTTP handler adapter.
func NewStockHandler(svc StockService, logger *zap.Logger) *StockHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockHandler{svc: svc, logger: logger}
}

type stockRequest struct {
	Date         string          `json:"date"`
	TyreSize     string          `json:"tyreSize"`
	Location     string          `json:"location"`
	Quantity     int             `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"pricePerUnit"`
	SSP          string          `json:"SSP"`
	Comment      string          `json:"comment"`
}

func (r stockRequest) input() (stock.StockInput, error) {
	day, err := parseDay(r.Date)
	if err != nil {
		return stock.StockInput{}, err
	}
	return stock.StockInput{
		Date:         day,
		TyreSize:     r.TyreSize,
		Location:     r.Location,
		Quantity:     r.Quantity,
		PricePerUnit: r.PricePerUnit,
		SSP:          r.SSP,
		Comment:      r.Comment,
	}, nil
}

type saleRequest struct {
	Date         string          `json:"date"`
	TyreSize     string          `json:"tyreSize"`
	Location     string          `json:"location"`
	Quantity     int             `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"pricePerUnit"`
	CustomerName string          `json:"customerName"`
	PhoneNumber  string          `json:"phoneNumber"`
	Comment      string          `json:"comment"`
}

// AddStock opens the day for a tyre size and location.
func (h *StockHandler) AddStock(c *gin.Context) {
	var req stockRequest
	if !h.bind(c, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		h.fail(c, err)
		return
	}

	opening, err := h.svc.OpenDay(c.Request.Context(), principal(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":       "Stock updated successfully",
		"openStock":     opening.Open,
		"existingStock": opening.Existing,
	})
}

// UpdateOpenStock restocks an opened day.
func (h *StockHandler) UpdateOpenStock(c *gin.Context) {
	var req stockRequest
	if !h.bind(c, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		h.fail(c, err)
		return
	}

	existing, err := h.svc.Restock(c.Request.Context(), principal(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Stock updated successfully", "existingStock": existing})
}

// RecordSale sells from the day's existing stock.
func (h *StockHandler) RecordSale(c *gin.Context) {
	var req saleRequest
	if !h.bind(c, &req) {
		return
	}
	day, err := parseDay(req.Date)
	if err != nil {
		h.fail(c, err)
		return
	}

	receipt, err := h.svc.RecordSale(c.Request.Context(), principal(c), stock.SaleInput{
		Date:         day,
		TyreSize:     req.TyreSize,
		Location:     req.Location,
		Quantity:     req.Quantity,
		PricePerUnit: req.PricePerUnit,
		CustomerName: req.CustomerName,
		PhoneNumber:  req.PhoneNumber,
		Comment:      req.Comment,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":       "Stock updated successfully",
		"sale":          receipt.Sale,
		"existingStock": receipt.Stock,
	})
}

// GetOpenStock lists the day's open stock.
func (h *StockHandler) GetOpenStock(c *gin.Context) {
	h.list(c, "openStock", h.svc.GetOpenStock)
}

// GetExistingStock lists the day's sellable stock.
func (h *StockHandler) GetExistingStock(c *gin.Context) {
	h.list(c, "existingStock", h.svc.GetExistingStock)
}

// ComputeClosingStock snapshots the closing stock of the day before ?date.
func (h *StockHandler) ComputeClosingStock(c *gin.Context) {
	h.list(c, "closingStock", h.svc.ComputeClosingStock)
}

// ListClosingStock lists the closing snapshot recorded for ?date.
func (h *StockHandler) ListClosingStock(c *gin.Context) {
	h.list(c, "closingStock", h.svc.ListClosingStock)
}

// ListSales lists sales, optionally narrowed by date, tyre size and location.
func (h *StockHandler) ListSales(c *gin.Context) {
	filter := models.SaleFilter{
		TyreSize: c.Query("tyreSize"),
		Location: c.Query("location"),
		UserID:   c.Query("user"),
	}
	if raw := c.Query("date"); raw != "" {
		day, err := parseDay(raw)
		if err != nil {
			h.fail(c, err)
			return
		}
		filter.Date = &day
	}

	sales, err := h.svc.ListSales(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"salesRecords": sales})
}

// ListStockKeys lists the tyre sizes and locations with records on ?date.
func (h *StockHandler) ListStockKeys(c *gin.Context) {
	day, err := parseDay(c.Query("date"))
	if err != nil {
		h.fail(c, err)
		return
	}

	keys, err := h.svc.ListStockKeys(c.Request.Context(), day, models.StockStatus(c.Query("status")))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, keys)
}

func (h *StockHandler) list(c *gin.Context, field string, fn func(context.Context, time.Time) ([]models.StockRecord, error)) {
	day, err := parseDay(c.Query("date"))
	if err != nil {
		h.fail(c, err)
		return
	}

	records, err := fn(c.Request.Context(), day)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{field: records})
}

func (h *StockHandler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.logger.Warn("invalid request body", zap.String("path", c.Request.URL.Path), zap.Error(err))
		middleware.Abort(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid request body"))
		return false
	}
	return true
}

func (h *StockHandler) fail(c *gin.Context, err error) {
	logFailure(h.logger, c, err)
	middleware.Abort(c, err)
}
