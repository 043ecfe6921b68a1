package models

import (
	"time"

	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

// Document is the durable document row owned by the document service.
// The collaboration layer only reads OwnerID and Content.
type Document struct {
	ID        string         `json:"id" gorm:"type:char(27);primaryKey"`
	OwnerID   string         `json:"owner_id" gorm:"type:varchar(64);not null;index"`
	Title     string         `json:"title" gorm:"type:text;not null"`
	Content   string         `json:"content" gorm:"type:text;not null"`
	CreatedAt time.Time      `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"column:deleted_at;index"`
}

// BeforeCreate hook generates KSUID before inserting
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = ksuid.New().String()
	}
	return nil
}

// Permission is the access level granted by a share.
type Permission string

const (
	PermissionView  Permission = "view"
	PermissionEdit  Permission = "edit"
	PermissionAdmin Permission = "admin"
)

// rank orders permissions view < edit < admin. Unknown values rank lowest.
func (p Permission) rank() int {
	switch p {
	case PermissionView:
		return 1
	case PermissionEdit:
		return 2
	case PermissionAdmin:
		return 3
	default:
		return 0
	}
}

// Valid reports whether p is one of the known levels.
func (p Permission) Valid() bool {
	return p.rank() > 0
}

// AtLeast reports whether p grants at least the access of other.
func (p Permission) AtLeast(other Permission) bool {
	return p.Valid() && p.rank() >= other.rank()
}

// CanView reports whether p allows reading the document.
func (p Permission) CanView() bool {
	return p.AtLeast(PermissionView)
}

// CanEdit reports whether p allows changing the document body.
func (p Permission) CanEdit() bool {
	return p.AtLeast(PermissionEdit)
}

// DocumentShare grants a non-owner user access to a document.
type DocumentShare struct {
	ID         string     `json:"id" gorm:"type:char(27);primaryKey"`
	DocumentID string     `json:"document_id" gorm:"type:char(27);not null;uniqueIndex:idx_share_doc_user"`
	UserID     string     `json:"user_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_share_doc_user"`
	Permission Permission `json:"permission" gorm:"type:varchar(16);not null;default:'view'"`
	CreatedAt  time.Time  `json:"created_at" gorm:"column:created_at;autoCreateTime"`

	Document *Document `gorm:"foreignKey:DocumentID;references:ID" json:"-"`
}

// BeforeCreate generates KSUID
func (s *DocumentShare) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = ksuid.New().String()
	}
	return nil
}

// TableName override
func (DocumentShare) TableName() string {
	return "document_shares"
}
