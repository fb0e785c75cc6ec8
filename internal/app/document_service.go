package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"enterprise-kb/internal/model"
	"enterprise-kb/internal/pkg/logging"
	"enterprise-kb/internal/repository"
)

type DocumentService struct {
	documents *repository.DocumentRepository
	ingestor  *Ingestor
	store     FileStore
	queue     IndexQueue
	logger    *slog.Logger
}

type UploadInput struct {
	Owner           model.Principal
	Filename        string
	Title           string
	SourceType      model.SourceType
	PermissionLevel model.PermissionLevel
	SourceURL       string
	Body            io.Reader
}

type ListDocumentsInput struct {
	Viewer     model.Principal
	Status     model.DocumentStatus
	SourceType model.SourceType
	Keyword    string
	Page       int
	PageSize   int
}

type DocumentPage struct {
	Items    []model.Document `json:"items"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// NewDocumentService indexes uploads inline when queue is nil.
func NewDocumentService(documents *repository.DocumentRepository, ingestor *Ingestor, store FileStore, queue IndexQueue) *DocumentService {
	return &DocumentService{
		documents: documents,
		ingestor:  ingestor,
		store:     store,
		queue:     queue,
		logger:    logging.NewModuleLogger("app", "documents"),
	}
}

// Upload stores the file, records a pending document and schedules indexing.
func (s *DocumentService) Upload(ctx context.Context, in UploadInput) (*model.Document, error) {
	if in.Owner.UserID == 0 || in.Body == nil || strings.TrimSpace(in.Filename) == "" {
		return nil, ErrInvalidInput
	}

	sourceType := in.SourceType
	if sourceType == "" {
		sourceType = model.SourceTypeFromExt(filepath.Ext(in.Filename))
	}
	if !sourceType.Valid() {
		return nil, fmt.Errorf("%w: unknown source type %q", ErrInvalidInput, sourceType)
	}
	level := in.PermissionLevel
	if level == "" {
		level = model.PermissionDepartment
	}
	if !level.Valid() {
		return nil, fmt.Errorf("%w: unknown permission level %q", ErrInvalidInput, level)
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(in.Filename), filepath.Ext(in.Filename))
	}

	path, size, err := s.store.Save(ctx, in.Filename, in.Body)
	if err != nil {
		return nil, err
	}

	doc := &model.Document{
		ID:              uuid.NewString(),
		Title:           title,
		SourceType:      sourceType,
		FilePath:        path,
		FileSize:        size,
		SourceURL:       strings.TrimSpace(in.SourceURL),
		OwnerID:         in.Owner.UserID,
		DepartmentID:    in.Owner.DepartmentID,
		PermissionLevel: level,
		Status:          model.DocumentStatusPending,
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		_ = s.store.Remove(path)
		return nil, err
	}

	if err := s.schedule(ctx, doc.ID, false); err != nil {
		return doc, err
	}
	if s.queue == nil {
		if fresh, err := s.documents.GetByID(ctx, doc.ID); err == nil && fresh != nil {
			doc = fresh
		}
	}
	return doc, nil
}

// schedule publishes an index job, or runs it in place without a queue.
// Inline indexing failures are recorded on the document, not returned.
func (s *DocumentService) schedule(ctx context.Context, documentID string, reindex bool) error {
	if s.queue != nil {
		if err := s.queue.Enqueue(ctx, model.IndexJob{DocumentID: documentID, Reindex: reindex}); err != nil {
			return fmt.Errorf("%w: %w", ErrIndexEnqueue, err)
		}
		return nil
	}

	var err error
	if reindex {
		err = s.ingestor.Reindex(ctx, documentID)
	} else {
		err = s.ingestor.Index(ctx, documentID)
	}
	if errors.Is(err, ErrDocumentNotFound) {
		return err
	}
	return nil
}

func (s *DocumentService) List(ctx context.Context, in ListDocumentsInput) (*DocumentPage, error) {
	page := in.Page
	if page <= 0 {
		page = 1
	}
	size := in.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	items, total, err := s.documents.List(ctx, repository.DocumentQuery{
		Viewer:     in.Viewer,
		Status:     in.Status,
		SourceType: in.SourceType,
		Keyword:    strings.TrimSpace(in.Keyword),
		Offset:     (page - 1) * size,
		Limit:      size,
	})
	if err != nil {
		return nil, err
	}
	return &DocumentPage{Items: items, Total: total, Page: page, PageSize: size}, nil
}

// Get hides documents the viewer may not see behind ErrDocumentNotFound.
func (s *DocumentService) Get(ctx context.Context, viewer model.Principal, id string) (*model.Document, error) {
	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil || !canView(viewer, doc) {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

// Delete removes the chunks first, then the record, then the stored file.
func (s *DocumentService) Delete(ctx context.Context, actor model.Principal, id string) error {
	doc, err := s.manageable(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.ingestor.Remove(ctx, doc.ID); err != nil {
		return err
	}
	if err := s.documents.Delete(ctx, doc.ID); err != nil {
		return err
	}
	if err := s.store.Remove(doc.FilePath); err != nil {
		s.logger.Warn("remove stored file failed", "document_id", doc.ID, "path", doc.FilePath, "error", err)
	}
	s.logger.Info("document deleted", "document_id", doc.ID, "actor", actor.UserID)
	return nil
}

func (s *DocumentService) Reindex(ctx context.Context, actor model.Principal, id string) (*model.Document, error) {
	doc, err := s.manageable(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.schedule(ctx, doc.ID, true); err != nil {
		return nil, err
	}
	return s.documents.GetByID(ctx, doc.ID)
}

func (s *DocumentService) manageable(ctx context.Context, actor model.Principal, id string) (*model.Document, error) {
	doc, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsSuperuser && doc.OwnerID != actor.UserID {
		return nil, ErrForbidden
	}
	return doc, nil
}

func canView(p model.Principal, doc *model.Document) bool {
	switch {
	case p.IsSuperuser, doc.OwnerID == p.UserID:
		return true
	case doc.PermissionLevel == model.PermissionPublic:
		return true
	case doc.PermissionLevel == model.PermissionDepartment:
		return p.DepartmentID != "" && doc.DepartmentID == p.DepartmentID
	default:
		return false
	}
}
