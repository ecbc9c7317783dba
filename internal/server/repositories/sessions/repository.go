package sessions

import (
	"context"
	"time"

	"github.com/wiresaver/backend/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, userID int64, token string, validity time.Duration) error
	Find(ctx context.Context, token string) (*models.Session, error)
	Delete(ctx context.Context, token string) error
	Replace(ctx context.Context, oldToken, newToken string, validity time.Duration) (bool, error)
	DeleteExpired(ctx context.Context) (int64, error)
}
