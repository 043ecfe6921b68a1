package repository

import (
	"context"
	"errors"
	"fmt"

	"docsync/internal/middleware"
	"docsync/internal/models"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// ErrDocumentNotFound is returned when no live (non-deleted) document has the id.
var ErrDocumentNotFound = errors.New("document not found")

// DocumentRepositoryImpl reads documents and their share lists using GORM.
// The services package declares the interface it needs.
type DocumentRepositoryImpl struct {
	db *gorm.DB
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *gorm.DB) *DocumentRepositoryImpl {
	return &DocumentRepositoryImpl{db: db}
}

// GetByID retrieves a document by its KSUID.
// Soft-deleted documents are excluded and reported as ErrDocumentNotFound.
func (r *DocumentRepositoryImpl) GetByID(ctx context.Context, id string) (*models.Document, error) {
	ctx, span := middleware.StartSpan(ctx, "Repository.GetDocument",
		attribute.String("document.id", id),
	)
	defer span.End()

	var doc models.Document

	err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	return &doc, nil
}

// GetShares returns every share granted on a document.
func (r *DocumentRepositoryImpl) GetShares(ctx context.Context, documentID string) ([]models.DocumentShare, error) {
	ctx, span := middleware.StartSpan(ctx, "Repository.GetShares",
		attribute.String("document.id", documentID),
	)
	defer span.End()

	var shares []models.DocumentShare

	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at ASC").
		Find(&shares).Error
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return nil, fmt.Errorf("failed to get document shares: %w", err)
	}

	return shares, nil
}
