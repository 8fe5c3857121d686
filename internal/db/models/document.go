package models

import (
	"time"
)

type DocumentStatus string

const (
	DocumentDraft  DocumentStatus = "DRAFT"
	DocumentSigned DocumentStatus = "SIGNED"
)

// Document holds the canonical bytes a signature commits to. The content
// is treated as an opaque blob; format conversion happens before upload.
type Document struct {
	ID          string `gorm:"primaryKey"`
	Name        string `gorm:"size:255;not null"`
	Content     []byte `gorm:"not null"`
	ContentHash string `gorm:"size:64;not null;index"`
	PageCount   int
	OwnerID     uint           `gorm:"index"`
	Status      DocumentStatus `gorm:"size:20;not null;default:'DRAFT'"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Document) TableName() string {
	return "user_documents"
}
