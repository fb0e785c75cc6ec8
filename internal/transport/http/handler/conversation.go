package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"enterprise-kb/internal/app"
	"enterprise-kb/internal/transport/http/response"
)

type ConversationHandler struct {
	conversationService *app.ConversationService
}

func NewConversationHandler(conversationService *app.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversationService: conversationService}
}

func (h *ConversationHandler) List(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("page_size"))

	result, err := h.conversationService.List(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		writeServiceError(c, err, "list conversations failed")
		return
	}

	response.OK(c, result)
}

func (h *ConversationHandler) Get(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	detail, err := h.conversationService.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeServiceError(c, err, "get conversation failed")
		return
	}

	response.OK(c, detail)
}

func (h *ConversationHandler) Delete(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	id := c.Param("id")
	if err := h.conversationService.Delete(c.Request.Context(), userID, id); err != nil {
		writeServiceError(c, err, "delete conversation failed")
		return
	}

	response.OK(c, gin.H{"deleted_conversation_id": id})
}
