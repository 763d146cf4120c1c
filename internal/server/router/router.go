package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyrestock/stockbook/internal/domain/models"
	"github.com/tyrestock/stockbook/internal/server/handlers"
	"github.com/tyrestock/stockbook/internal/server/middleware"
)

// Handlers groups the HTTP adapters the router mounts.
type Handlers struct {
	Stock         *handlers.StockHandler
	SpecialOrders *handlers.SpecialOrderHandler
}

// New wires the Gin engine with required routes and middlewares.
func New(h Handlers, jwtSecret string, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	staff := middleware.Authenticate(jwtSecret, models.RoleOwner, models.RoleWorker)

	r.POST("/add-stock", staff, h.Stock.AddStock)
	r.POST("/update-open-stock", staff, h.Stock.UpdateOpenStock)
	r.POST("/update-stock", staff, h.Stock.RecordSale)
	r.GET("/open-stock", h.Stock.GetOpenStock)
	r.GET("/existing-stock", h.Stock.GetExistingStock)
	r.POST("/closing-stock", staff, h.Stock.ComputeClosingStock)
	r.GET("/closing-stock", h.Stock.ListClosingStock)
	r.GET("/sales", h.Stock.ListSales)
	r.GET("/stock-keys", h.Stock.ListStockKeys)

	r.POST("/special-reports", staff, h.SpecialOrders.Create)
	r.GET("/special-reports", h.SpecialOrders.List)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
