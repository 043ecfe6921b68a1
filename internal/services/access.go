package services

import (
	"context"
	"errors"
	"fmt"

	"docsync/internal/middleware"
	"docsync/internal/models"
	"docsync/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// Access is the outcome of an authorization check for one user on one document.
type Access struct {
	Exists     bool
	IsOwner    bool
	CanView    bool
	CanEdit    bool
	Permission models.Permission // empty for owners and users without a share

	// Content is the document body read during the check. It seeds a new
	// collaboration session so the join does not read the document twice.
	Content string
}

// AccessResolver decides read/write access from document ownership and the
// document's share list.
type AccessResolver struct {
	docs   DocumentReader
	shares ShareReader
}

// NewAccessResolver creates a resolver. shares may be a cached reader.
func NewAccessResolver(docs DocumentReader, shares ShareReader) *AccessResolver {
	return &AccessResolver{docs: docs, shares: shares}
}

// ResolveAccess looks up the owner first and only consults the share list
// for non-owners. A missing document is reported through Access.Exists, not
// as an error; errors mean the store could not be read.
func (r *AccessResolver) ResolveAccess(ctx context.Context, documentID, userID string) (Access, error) {
	ctx, span := middleware.StartSpan(ctx, "Access.Resolve",
		attribute.String("document.id", documentID),
		attribute.String("user.id", userID),
	)
	defer span.End()

	doc, err := r.docs.GetByID(ctx, documentID)
	if errors.Is(err, repository.ErrDocumentNotFound) {
		return Access{}, nil
	}
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return Access{}, fmt.Errorf("failed to resolve access: %w", err)
	}

	access := Access{Exists: true, Content: doc.Content}

	if doc.OwnerID == userID {
		access.IsOwner = true
		access.CanView = true
		access.CanEdit = true
		return access, nil
	}

	shares, err := r.shares.GetShares(ctx, documentID)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return Access{}, fmt.Errorf("failed to resolve access: %w", err)
	}

	for _, share := range shares {
		if share.UserID != userID {
			continue
		}
		access.Permission = share.Permission
		access.CanView = share.Permission.CanView()
		access.CanEdit = share.Permission.CanEdit()
		break
	}

	middleware.AddSpanEvent(ctx, "access_resolved",
		attribute.Bool("can_view", access.CanView),
		attribute.Bool("can_edit", access.CanEdit),
	)

	return access, nil
}
