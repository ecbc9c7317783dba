package repomanager

import (
	"context"
	"database/sql"

	"github.com/wiresaver/backend/internal/dbx"
	"github.com/wiresaver/backend/internal/server/repositories/sessions"
	"github.com/wiresaver/backend/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Sessions(db dbx.DBTX) sessions.Repository
}
