package users

import (
	"context"

	"github.com/wiresaver/backend/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	UpdateTwoFactor(ctx context.Context, id int64, secret *string, enabled bool) error
	UpdateLastLogin(ctx context.Context, id int64) error
	DeleteByUsername(ctx context.Context, username string) error
}
