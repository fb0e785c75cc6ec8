package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"enterprise-kb/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// DocumentQuery narrows a document listing. Zero values mean no restriction.
type DocumentQuery struct {
	Viewer     model.Principal
	Status     model.DocumentStatus
	SourceType model.SourceType
	Keyword    string
	Offset     int
	Limit      int
}

func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*model.Document, error) {
	out := make(map[string]*model.Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var docs []model.Document
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("get documents by ids failed: %w", err)
	}
	for i := range docs {
		out[docs[i].ID] = &docs[i]
	}
	return out, nil
}

// Save writes every column of doc.
func (r *DocumentRepository) Save(ctx context.Context, doc *model.Document) error {
	if err := r.db.WithContext(ctx).Save(doc).Error; err != nil {
		return fmt.Errorf("save document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Document{}).Error; err != nil {
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}

// List returns one page of documents visible to the viewer plus the total
// number of matches.
func (r *DocumentRepository) List(ctx context.Context, q DocumentQuery) ([]model.Document, int64, error) {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	scope := func(tx *gorm.DB) *gorm.DB {
		if !q.Viewer.IsSuperuser {
			visible := r.db.Where("owner_id = ?", q.Viewer.UserID).
				Or("permission_level = ?", model.PermissionPublic)
			if q.Viewer.DepartmentID != "" {
				visible = visible.Or("permission_level = ? AND department_id = ?",
					model.PermissionDepartment, q.Viewer.DepartmentID)
			}
			tx = tx.Where(visible)
		}
		if q.Status != "" {
			tx = tx.Where("status = ?", q.Status)
		}
		if q.SourceType != "" {
			tx = tx.Where("source_type = ?", q.SourceType)
		}
		if q.Keyword != "" {
			tx = tx.Where("title LIKE ?", "%"+q.Keyword+"%")
		}
		return tx
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Document{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count documents failed: %w", err)
	}

	var docs []model.Document
	if err := r.db.WithContext(ctx).Scopes(scope).
		Order("created_at DESC").Offset(q.Offset).Limit(q.Limit).Find(&docs).Error; err != nil {
		return nil, 0, fmt.Errorf("list documents failed: %w", err)
	}
	return docs, total, nil
}
