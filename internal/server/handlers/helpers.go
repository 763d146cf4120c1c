package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyrestock/stockbook/internal/apperrors"
	"github.com/tyrestock/stockbook/internal/domain/models"
	"github.com/tyrestock/stockbook/internal/server/middleware"
)

// parseDay reads an optional YYYY-MM-DD value. Empty means today.
func parseDay(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	day, err := models.ParseDay(raw)
	if err != nil {
		return time.Time{}, apperrors.WithMessage(apperrors.ErrInvalidInput, "date must be YYYY-MM-DD")
	}
	return day, nil
}

// principal returns the authenticated caller. Public routes get the zero
// Principal, which every role check rejects.
func principal(c *gin.Context) models.Principal {
	p, _ := middleware.PrincipalFrom(c)
	return p
}

func logFailure(logger *zap.Logger, c *gin.Context, err error) {
	appErr := apperrors.From(err)
	fields := []zap.Field{
		zap.String("path", c.Request.URL.Path),
		zap.String("code", appErr.Code),
	}
	if appErr.Internal != nil {
		fields = append(fields, zap.Error(appErr.Internal))
	}
	if appErr.StatusCode >= 500 {
		logger.Error("request failed", fields...)
		return
	}
	logger.Debug("request rejected", fields...)
}
