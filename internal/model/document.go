package model

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

type SourceType string

const (
	SourceTypePDF        SourceType = "pdf"
	SourceTypeWord       SourceType = "word"
	SourceTypeExcel      SourceType = "excel"
	SourceTypePPT        SourceType = "ppt"
	SourceTypeMarkdown   SourceType = "markdown"
	SourceTypeText       SourceType = "text"
	SourceTypeHTML       SourceType = "html"
	SourceTypeWiki       SourceType = "wiki"
	SourceTypeConfluence SourceType = "confluence"
	SourceTypeNotion     SourceType = "notion"
	SourceTypeWeb        SourceType = "web"
)

var knownSourceTypes = map[SourceType]struct{}{
	SourceTypePDF: {}, SourceTypeWord: {}, SourceTypeExcel: {}, SourceTypePPT: {},
	SourceTypeMarkdown: {}, SourceTypeText: {}, SourceTypeHTML: {}, SourceTypeWiki: {},
	SourceTypeConfluence: {}, SourceTypeNotion: {}, SourceTypeWeb: {},
}

func (s SourceType) Valid() bool {
	_, ok := knownSourceTypes[s]
	return ok
}

// SourceTypeFromExt guesses the format from a file extension such as ".md".
func SourceTypeFromExt(ext string) SourceType {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "pdf":
		return SourceTypePDF
	case "docx", "doc":
		return SourceTypeWord
	case "xlsx", "xls", "csv":
		return SourceTypeExcel
	case "pptx", "ppt":
		return SourceTypePPT
	case "md", "markdown":
		return SourceTypeMarkdown
	case "html", "htm":
		return SourceTypeHTML
	default:
		return SourceTypeText
	}
}

type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusIndexed    DocumentStatus = "indexed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

type PermissionLevel string

const (
	PermissionPublic     PermissionLevel = "public"
	PermissionDepartment PermissionLevel = "department"
	PermissionPrivate    PermissionLevel = "private"
)

func (p PermissionLevel) Valid() bool {
	switch p {
	case PermissionPublic, PermissionDepartment, PermissionPrivate:
		return true
	}
	return false
}

// Metadata keys the ingestion and answer paths agree on.
const (
	MetaOriginalHTML     = "original_html"
	MetaHasImages        = "has_images"
	MetaExtractionReport = "extraction_report"
)

type Document struct {
	ID              string            `gorm:"primaryKey;size:36" json:"id"`
	Title           string            `gorm:"size:500;not null" json:"title"`
	SourceType      SourceType        `gorm:"size:32;not null;index" json:"source_type"`
	FilePath        string            `gorm:"size:1000" json:"file_path,omitempty"`
	FileSize        int64             `json:"file_size"`
	SourceURL       string            `gorm:"size:1000" json:"source_url,omitempty"`
	OwnerID         uint              `gorm:"not null;index" json:"owner_id"`
	DepartmentID    string            `gorm:"size:64;index" json:"department_id,omitempty"`
	PermissionLevel PermissionLevel   `gorm:"size:32;not null;default:department;index" json:"permission_level"`
	Status          DocumentStatus    `gorm:"size:32;not null;default:pending;index" json:"status"`
	ChunkCount      int               `gorm:"not null;default:0" json:"chunk_count"`
	ErrorMessage    string            `gorm:"type:text" json:"error_message,omitempty"`
	Metadata        datatypes.JSONMap `json:"metadata,omitempty"`
	IndexedAt       *time.Time        `json:"indexed_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// MetaString returns a string metadata entry or "".
func (d *Document) MetaString(key string) string {
	if d == nil || d.Metadata == nil {
		return ""
	}
	s, _ := d.Metadata[key].(string)
	return s
}

func (d *Document) MetaBool(key string) bool {
	if d == nil || d.Metadata == nil {
		return false
	}
	b, _ := d.Metadata[key].(bool)
	return b
}
