package services

import (
	"context"

	"docsync/internal/models"
)

// Interfaces live with their consumer: the repository package returns
// concrete types and this package states only what it calls.

// DocumentReader is the read side of the external document store that
// authorization needs. GetByID returns an error wrapping
// repository.ErrDocumentNotFound for unknown or deleted documents.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*models.Document, error)
}

// ShareReader lists the shares granted on a document.
type ShareReader interface {
	GetShares(ctx context.Context, documentID string) ([]models.DocumentShare, error)
}
