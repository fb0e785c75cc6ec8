package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"enterprise-kb/internal/ai"
	"enterprise-kb/internal/app"
	"enterprise-kb/internal/model"
	"enterprise-kb/internal/pkg/logging"
	"enterprise-kb/internal/storage"
	"enterprise-kb/internal/transport/http/middleware"
	"enterprise-kb/internal/transport/http/response"
	"enterprise-kb/internal/vectorindex"
)

// writeServiceError maps service errors onto the response envelope.
// Anything unrecognised is logged and reported as fallback.
func writeServiceError(c *gin.Context, err error, fallback string) {
	logger := requestLogger(c)
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrForbidden):
		response.Error(c, http.StatusForbidden, response.CodeForbidden, err.Error())
	case errors.Is(err, app.ErrDocumentNotFound):
		response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
	case errors.Is(err, app.ErrConversationNotFound):
		response.Error(c, http.StatusNotFound, response.CodeConversationNotFound, err.Error())
	case errors.Is(err, storage.ErrFileTooLarge):
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeFileTooLarge, err.Error())
	case errors.Is(err, app.ErrIndexEnqueue):
		response.Error(c, http.StatusServiceUnavailable, response.CodeServiceUnavailable, err.Error())
	case errors.Is(err, ai.ErrEmbeddingUnavailable),
		errors.Is(err, ai.ErrRerankUnavailable),
		errors.Is(err, ai.ErrGenerationFailed),
		errors.Is(err, vectorindex.ErrUnavailable):
		logger.Warn(fallback, "error", err)
		response.Error(c, http.StatusBadGateway, response.CodeUpstreamUnavailable, err.Error())
	default:
		logger.Error(fallback, "error", err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}

func principalFromContext(c *gin.Context) (model.Principal, bool) {
	p, ok := middleware.Principal(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
	}
	return p, ok
}

func getUserIDFromContext(c *gin.Context) (uint, bool) {
	userIDAny, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := userIDAny.(uint)
	return userID, ok
}

func requestLogger(c *gin.Context) *slog.Logger {
	return logging.NewModuleLogger("transport", "http").With("method", c.Request.Method, "path", c.FullPath())
}
