// Command adminctl creates an admin account interactively against the
// configured database. It goes through the same validation as the signup
// endpoint, so it honors the password policy and rejects duplicates.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/wiresaver/backend/internal/logging"
	"github.com/wiresaver/backend/internal/prompt"
	"github.com/wiresaver/backend/internal/server/config"
	"github.com/wiresaver/backend/internal/server/repositories/repomanager"
	"github.com/wiresaver/backend/internal/server/services"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("%v", err)
	}
}

func run() error {
	ctx := context.Background()
	cfg := config.LoadConfig()

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	defer db.Close()

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	rm := repomanager.NewPostgresRepositoryManager()

	if err := rm.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}

	svc := services.NewAuthService(db, rm, cfg, logger)

	in := bufio.NewReader(os.Stdin)
	out := os.Stdout

	username, err := prompt.GetSimpleText(in, "Username", out)
	if err != nil {
		return err
	}
	firstName, err := prompt.GetSimpleText(in, "First name", out)
	if err != nil {
		return err
	}
	lastName, err := prompt.GetSimpleText(in, "Last name", out)
	if err != nil {
		return err
	}
	email, err := prompt.GetSimpleText(in, "Email", out)
	if err != nil {
		return err
	}
	role, err := prompt.GetSimpleText(in, "Role (super_admin/admin)", out)
	if err != nil {
		return err
	}

	password, err := prompt.GetPassword("Enter password: ", out)
	if err != nil {
		return err
	}
	confirm, err := prompt.GetPassword("Confirm password: ", out)
	if err != nil {
		return err
	}

	user, err := svc.Signup(ctx, &services.SignupRequest{
		Username:        username,
		Password:        string(password),
		ConfirmPassword: string(confirm),
		FirstName:       firstName,
		LastName:        lastName,
		Email:           email,
		Role:            role,
		SecretPhrase:    cfg.SignupSecretPhrase,
	})
	if err != nil {
		return fmt.Errorf("error creating account: %w", err)
	}

	fmt.Fprintf(out, "Created account %q (id %d)\n", user.Username, user.ID)
	return nil
}
