package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"enterprise-kb/internal/app"
	"enterprise-kb/internal/transport/http/response"
)

type ChatHandler struct {
	answerer *app.Answerer
}

type AskRequest struct {
	Query          string   `json:"query" binding:"required,max=4000"`
	ConversationID string   `json:"conversation_id" binding:"max=36"`
	TopK           int      `json:"top_k" binding:"omitempty,min=1,max=50"`
	ScoreThreshold *float32 `json:"score_threshold" binding:"omitempty,min=0,max=1"`
	UseRerank      *bool    `json:"use_rerank"`
}

func NewChatHandler(answerer *app.Answerer) *ChatHandler {
	return &ChatHandler{answerer: answerer}
}

func (h *ChatHandler) bind(c *gin.Context) (app.AskInput, bool) {
	principal, ok := principalFromContext(c)
	if !ok {
		return app.AskInput{}, false
	}

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return app.AskInput{}, false
	}

	return app.AskInput{
		Query:          req.Query,
		Principal:      principal,
		ConversationID: req.ConversationID,
		TopK:           req.TopK,
		ScoreThreshold: req.ScoreThreshold,
		UseRerank:      req.UseRerank,
	}, true
}

func (h *ChatHandler) Completions(c *gin.Context) {
	in, ok := h.bind(c)
	if !ok {
		return
	}

	result, err := h.answerer.Ask(c.Request.Context(), in)
	if err != nil {
		writeServiceError(c, err, "answer question failed")
		return
	}

	response.OK(c, result)
}

// Stream sends answer deltas as SSE data events and finishes with a done
// event whose data is the answer metadata as JSON.
func (h *ChatHandler) Stream(c *gin.Context) {
	in, ok := h.bind(c)
	if !ok {
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	result, err := h.answerer.AskStream(c.Request.Context(), in, func(chunk string) error {
		if err := writeSSE(c.Writer, "", chunk); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		if c.Request.Context().Err() == nil {
			requestLogger(c).Warn("stream answer failed", "error", err)
		}
		if writeErr := writeSSE(c.Writer, "error", err.Error()); writeErr == nil {
			flusher.Flush()
		}
		return
	}

	meta, err := json.Marshal(result)
	if err != nil {
		meta = []byte("{}")
	}
	if writeErr := writeSSE(c.Writer, "done", string(meta)); writeErr == nil {
		flusher.Flush()
	}
}

// writeSSE writes one event; embedded newlines become extra data lines.
func writeSSE(w gin.ResponseWriter, event, data string) error {
	var b strings.Builder
	if event != "" {
		b.WriteString("event: ")
		b.WriteString(event)
		b.WriteByte('\n')
	}
	for _, line := range strings.Split(strings.ReplaceAll(data, "\r\n", "\n"), "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	_, err := w.WriteString(b.String())
	return err
}
