package handlers

import (
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/sandpesa/coreledger/internal/apperrors"
)

// respondServiceError maps a service error onto an HTTP status and logs it at
// the appropriate level. Client errors log as warnings, everything else as errors.
func respondServiceError(c *gin.Context, logger *slog.Logger, err error) {
	status := apperrors.StatusCode(err)

	message := err.Error()
	var appErr *apperrors.AppError
	if status >= 500 {
		logger.Error("Request failed", slog.String("error", err.Error()))
		// Internal details stay in the logs.
		message = "internal server error"
		if errors.As(err, &appErr) && appErr.Message != "" {
			message = appErr.Message
		}
	} else {
		logger.Warn("Request rejected", slog.Int("status", status), slog.String("error", err.Error()))
	}

	c.JSON(status, gin.H{"error": message})
}
