package app

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"enterprise-kb/internal/ai"
	"enterprise-kb/internal/model"
	"enterprise-kb/internal/pkg/logging"
	"enterprise-kb/internal/repository"
)

const systemPromptTemplate = `You are an enterprise knowledge base assistant that answers employees' questions.

Answer using only the knowledge base content provided below. If it does not contain the information, say so plainly and do not make up an answer.

When answering:
1. Base the answer on the provided knowledge base content.
2. If the information is insufficient, say what additional information is needed.
3. Keep the answer concise and clear.
4. Cite the knowledge base documents where it helps.

Knowledge base content:
%s`

// NoContextAnswer is returned without calling the model when retrieval finds nothing.
const NoContextAnswer = `Sorry, I could not find any relevant information in the knowledge base to answer your question.

You can:
1. Try rephrasing the question.
2. Contact the relevant department or colleague.
3. Keep searching the company wiki or documents.`

const FallbackAnswer = "Sorry, something went wrong while generating the answer."

const (
	conversationTitleRunes = 50
	snippetRunes           = 200
)

type AskInput struct {
	Query          string
	Principal      model.Principal
	ConversationID string
	TopK           int
	ScoreThreshold *float32
	UseRerank      *bool
}

type AskResult struct {
	MessageID      string         `json:"id"`
	Answer         string         `json:"answer"`
	Sources        []model.Source `json:"sources"`
	ConversationID string         `json:"conversation_id"`
	HasContext     bool           `json:"has_context"`
	CreatedAt      time.Time      `json:"created_at"`
}

type AnswererConfig struct {
	// ContextTokenBudget caps the prompt context in tokens; 0 means unlimited.
	ContextTokenBudget int
}

// Answerer runs one question through retrieval, generation and persistence.
type Answerer struct {
	retriever     *Retriever
	generator     Generator
	documents     *repository.DocumentRepository
	conversations *repository.ConversationRepository
	messages      *repository.MessageRepository
	historyCache  HistoryCache
	locks         *ConversationLocks
	cfg           AnswererConfig
	logger        *slog.Logger
}

func NewAnswerer(
	retriever *Retriever,
	generator Generator,
	documents *repository.DocumentRepository,
	conversations *repository.ConversationRepository,
	messages *repository.MessageRepository,
	historyCache HistoryCache,
	locks *ConversationLocks,
	cfg AnswererConfig,
) *Answerer {
	if locks == nil {
		locks = NewConversationLocks()
	}
	return &Answerer{
		retriever:     retriever,
		generator:     generator,
		documents:     documents,
		conversations: conversations,
		messages:      messages,
		historyCache:  historyCache,
		locks:         locks,
		cfg:           cfg,
		logger:        logging.NewModuleLogger("app", "answerer"),
	}
}

func (a *Answerer) Ask(ctx context.Context, in AskInput) (*AskResult, error) {
	return a.ask(ctx, in, nil)
}

// AskStream is Ask with the answer delivered through onChunk as it is generated.
// The no-context answer and the fallback answer arrive as a single chunk.
func (a *Answerer) AskStream(ctx context.Context, in AskInput, onChunk func(string) error) (*AskResult, error) {
	if onChunk == nil {
		return nil, ErrInvalidInput
	}
	return a.ask(ctx, in, onChunk)
}

func (a *Answerer) ask(ctx context.Context, in AskInput, onChunk func(string) error) (*AskResult, error) {
	in.Query = strings.TrimSpace(in.Query)
	in.ConversationID = strings.TrimSpace(in.ConversationID)
	if in.Query == "" || in.Principal.UserID == 0 {
		return nil, ErrInvalidInput
	}

	if in.ConversationID != "" {
		unlock, err := a.locks.Lock(ctx, in.ConversationID)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	chunks, err := a.retriever.Retrieve(ctx, RetrieveInput{
		Query:          in.Query,
		Principal:      in.Principal,
		TopK:           in.TopK,
		ScoreThreshold: in.ScoreThreshold,
		UseRerank:      in.UseRerank,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve failed: %w", err)
	}
	chunks = a.fitBudget(chunks)

	answer, modelName, err := a.answer(ctx, in.Query, chunks, onChunk)
	if err != nil {
		return nil, err
	}

	conv, isNew, err := a.resolveConversation(ctx, in)
	if err != nil {
		return nil, err
	}

	sources, err := a.formatSources(ctx, chunks)
	if err != nil {
		return nil, err
	}

	userMsg := &model.Message{
		ID:         uuid.NewString(),
		Role:       model.RoleUser,
		Content:    in.Query,
		TokenCount: ai.CountTokens(in.Query),
	}
	assistantMsg := &model.Message{
		ID:         uuid.NewString(),
		Role:       model.RoleAssistant,
		Content:    answer,
		Sources:    sources,
		TokenCount: ai.CountTokens(answer),
		Model:      modelName,
	}
	if err := a.messages.AppendTurn(ctx, conv, isNew, userMsg, assistantMsg); err != nil {
		return nil, err
	}
	if a.historyCache != nil && !isNew {
		if err := a.historyCache.DeleteHistory(ctx, conv.ID); err != nil {
			a.logger.Warn("invalidate history cache failed", "conversation_id", conv.ID, "error", err)
		}
	}

	a.logger.Info("question answered",
		"conversation_id", conv.ID,
		"user_id", in.Principal.UserID,
		"chunks", len(chunks),
		"sources", len(sources),
	)

	return &AskResult{
		MessageID:      assistantMsg.ID,
		Answer:         answer,
		Sources:        sources,
		ConversationID: conv.ID,
		HasContext:     len(chunks) > 0,
		CreatedAt:      assistantMsg.CreatedAt,
	}, nil
}

// answer returns the model name only when generation actually ran.
func (a *Answerer) answer(ctx context.Context, query string, chunks []RetrievedChunk, onChunk func(string) error) (string, string, error) {
	if len(chunks) == 0 {
		if onChunk != nil {
			if err := onChunk(NoContextAnswer); err != nil {
				return "", "", err
			}
		}
		return NoContextAnswer, "", nil
	}

	messages := []ai.ChatMessage{
		{Role: "system", Content: fmt.Sprintf(systemPromptTemplate, buildContext(chunks))},
		{Role: model.RoleUser, Content: query},
	}

	var (
		text string
		err  error
	)
	if onChunk != nil {
		text, err = a.generator.StreamComplete(ctx, messages, onChunk)
	} else {
		text, err = a.generator.Complete(ctx, messages)
	}
	if err != nil {
		return "", "", err
	}

	if strings.TrimSpace(text) == "" {
		text = FallbackAnswer
		if onChunk != nil {
			if err := onChunk(text); err != nil {
				return "", "", err
			}
		}
	}
	return text, a.generator.Model(), nil
}

func buildContext(chunks []RetrievedChunk) string {
	parts := make([]string, 0, len(chunks)*2)
	for i, c := range chunks {
		parts = append(parts, "[Document "+strconv.Itoa(i+1)+"]", c.Content)
	}
	return strings.Join(parts, "\n\n")
}

// fitBudget keeps chunks in rank order until the token budget is spent.
// The top chunk is always kept.
func (a *Answerer) fitBudget(chunks []RetrievedChunk) []RetrievedChunk {
	budget := a.cfg.ContextTokenBudget
	if budget <= 0 || len(chunks) <= 1 {
		return chunks
	}
	used := 0
	for i, c := range chunks {
		used += ai.CountTokens(c.Content)
		if i > 0 && used > budget {
			a.logger.Debug("context budget reached", "kept", i, "dropped", len(chunks)-i, "budget", budget)
			return chunks[:i]
		}
	}
	return chunks
}

// resolveConversation loads the conversation when it belongs to the caller
// and otherwise starts a new one titled from the query.
func (a *Answerer) resolveConversation(ctx context.Context, in AskInput) (*model.Conversation, bool, error) {
	if in.ConversationID != "" {
		conv, err := a.conversations.GetByIDAndUserID(ctx, in.ConversationID, in.Principal.UserID)
		if err != nil {
			return nil, false, err
		}
		if conv != nil {
			return conv, false, nil
		}
	}
	return &model.Conversation{
		ID:     uuid.NewString(),
		UserID: in.Principal.UserID,
		Title:  conversationTitle(in.Query),
	}, true, nil
}

func conversationTitle(query string) string {
	if utf8.RuneCountInString(query) <= conversationTitleRunes {
		return query
	}
	return string([]rune(query)[:conversationTitleRunes]) + "..."
}

// formatSources keeps the first chunk of each document and enriches it
// with the document's title and stored rich content.
func (a *Answerer) formatSources(ctx context.Context, chunks []RetrievedChunk) ([]model.Source, error) {
	if len(chunks) == 0 {
		return []model.Source{}, nil
	}

	seen := make(map[string]struct{}, len(chunks))
	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := seen[c.DocumentID]; ok {
			continue
		}
		seen[c.DocumentID] = struct{}{}
		ids = append(ids, c.DocumentID)
	}

	docs, err := a.documents.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	sources := make([]model.Source, 0, len(ids))
	for _, c := range chunks {
		if _, ok := seen[c.DocumentID]; !ok {
			continue
		}
		delete(seen, c.DocumentID)

		src := model.Source{
			DocumentID:  c.DocumentID,
			ChunkID:     c.ChunkID,
			Score:       c.Score,
			RerankScore: c.RerankScore,
			Snippet:     snippet(c.Content),
		}
		if doc, ok := docs[c.DocumentID]; ok {
			src.Title = doc.Title
			if html := doc.MetaString(model.MetaOriginalHTML); html != "" {
				src.HTMLContent = html
				src.HasImages = doc.MetaBool(model.MetaHasImages)
			}
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func snippet(content string) string {
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) <= snippetRunes {
		return content
	}
	return string([]rune(content)[:snippetRunes]) + "..."
}
