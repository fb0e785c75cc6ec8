package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"enterprise-kb/internal/app"
	"enterprise-kb/internal/model"
	"enterprise-kb/internal/transport/http/response"
)

type DocumentHandler struct {
	documentService *app.DocumentService
	maxFileSize     int64
}

func NewDocumentHandler(documentService *app.DocumentService, maxFileSize int64) *DocumentHandler {
	return &DocumentHandler{documentService: documentService, maxFileSize: maxFileSize}
}

// Upload takes a multipart form with file, title, source_type,
// permission_level and source_url.
func (h *DocumentHandler) Upload(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file is required")
		return
	}
	if h.maxFileSize > 0 && header.Size > h.maxFileSize {
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeFileTooLarge, "file exceeds size limit")
		return
	}

	file, err := header.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "read upload failed")
		return
	}
	defer file.Close()

	doc, err := h.documentService.Upload(c.Request.Context(), app.UploadInput{
		Owner:           principal,
		Filename:        header.Filename,
		Title:           c.PostForm("title"),
		SourceType:      model.SourceType(c.PostForm("source_type")),
		PermissionLevel: model.PermissionLevel(c.PostForm("permission_level")),
		SourceURL:       c.PostForm("source_url"),
		Body:            file,
	})
	if err != nil {
		writeServiceError(c, err, "upload document failed")
		return
	}

	response.OK(c, doc)
}

func (h *DocumentHandler) List(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("page_size"))

	result, err := h.documentService.List(c.Request.Context(), app.ListDocumentsInput{
		Viewer:     principal,
		Status:     model.DocumentStatus(c.Query("status")),
		SourceType: model.SourceType(c.Query("source_type")),
		Keyword:    c.Query("keyword"),
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		writeServiceError(c, err, "list documents failed")
		return
	}

	response.OK(c, result)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}

	doc, err := h.documentService.Get(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		writeServiceError(c, err, "get document failed")
		return
	}

	response.OK(c, doc)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if err := h.documentService.Delete(c.Request.Context(), principal, id); err != nil {
		writeServiceError(c, err, "delete document failed")
		return
	}

	response.OK(c, gin.H{"deleted_document_id": id})
}

func (h *DocumentHandler) Reindex(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}

	doc, err := h.documentService.Reindex(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		writeServiceError(c, err, "reindex document failed")
		return
	}

	response.OK(c, doc)
}
