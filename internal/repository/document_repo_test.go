package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"docsync/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupMockDB(t *testing.T) (*DocumentRepositoryImpl, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	return NewDocumentRepository(gdb), mock
}

func TestGetByID(t *testing.T) {
	query := regexp.QuoteMeta(`SELECT * FROM "documents" WHERE id = $1 AND "documents"."deleted_at" IS NULL ORDER BY "documents"."id" LIMIT $2`)

	tests := []struct {
		name      string
		setupMock func(sqlmock.Sqlmock)
		wantErr   error
		wantOwner string
	}{
		{
			name: "found",
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"id", "owner_id", "title", "content", "created_at", "updated_at", "deleted_at"}).
					AddRow("doc1", "alice", "Notes", "<p>hi</p>", time.Now(), time.Now(), nil)
				mock.ExpectQuery(query).WithArgs("doc1", 1).WillReturnRows(rows)
			},
			wantOwner: "alice",
		},
		{
			name: "not found",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(query).WithArgs("doc1", 1).WillReturnRows(sqlmock.NewRows([]string{"id"}))
			},
			wantErr: ErrDocumentNotFound,
		},
		{
			name: "database error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(query).WithArgs("doc1", 1).WillReturnError(errors.New("connection refused"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := setupMockDB(t)
			tt.setupMock(mock)

			doc, err := repo.GetByID(context.Background(), "doc1")

			switch {
			case tt.wantOwner != "":
				require.NoError(t, err)
				assert.Equal(t, tt.wantOwner, doc.OwnerID)
				assert.Equal(t, "<p>hi</p>", doc.Content)
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			default:
				require.Error(t, err)
				assert.NotErrorIs(t, err, ErrDocumentNotFound)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGetShares(t *testing.T) {
	repo, mock := setupMockDB(t)

	rows := sqlmock.NewRows([]string{"id", "document_id", "user_id", "permission", "created_at"}).
		AddRow("s1", "doc1", "bob", "view", time.Now()).
		AddRow("s2", "doc1", "carol", "edit", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "document_shares" WHERE document_id = $1 ORDER BY created_at ASC`)).
		WithArgs("doc1").
		WillReturnRows(rows)

	shares, err := repo.GetShares(context.Background(), "doc1")
	require.NoError(t, err)
	require.Len(t, shares, 2)
	assert.Equal(t, "bob", shares[0].UserID)
	assert.Equal(t, models.PermissionView, shares[0].Permission)
	assert.Equal(t, models.PermissionEdit, shares[1].Permission)
	assert.NoError(t, mock.ExpectationsWereMet())
}
