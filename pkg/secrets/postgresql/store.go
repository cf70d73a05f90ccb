// Package postgresql stores account secrets in PostgreSQL, encrypted at rest
// with pgcrypto.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/taskpipe/pkg/persistence/sqlbase"
	"github.com/dukex/taskpipe/pkg/secrets"
	_ "github.com/lib/pq"
)

const migrationsTable = "secret_schema_migrations"

// ErrMissingPassphrase indicates the store was configured without an encryption key.
var ErrMissingPassphrase = errors.New("secret encryption passphrase is required")

// Store implements secrets.Store on an account_secrets table.
type Store struct {
	db         *sql.DB
	logger     *slog.Logger
	passphrase string
}

// NewStore connects to databaseURL and brings the secret schema up to date.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL, passphrase string) (*Store, error) {
	if passphrase == "" {
		return nil, ErrMissingPassphrase
	}

	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger = logger.With("module", "postgresql_secret_store")

	err = sqlbase.NewMigrationManager(logger, database, migrationsTable, migrations()).RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: database, logger: logger, passphrase: passphrase}, nil
}

func migrations() map[int]string {
	return map[int]string{
		1: `CREATE EXTENSION IF NOT EXISTS pgcrypto;`,
		2: `
			CREATE TABLE IF NOT EXISTS account_secrets (
				account_id TEXT NOT NULL,
				name TEXT NOT NULL,
				value BYTEA NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (account_id, name)
			);
		`,
	}
}

func (s *Store) Fetch(ctx context.Context, accountID string) (secrets.Bundle, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, pgp_sym_decrypt(value, $2) FROM account_secrets WHERE account_id = $1`,
		accountID, s.passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to query secrets for account %s: %w", accountID, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	bundle := secrets.Bundle{}

	for rows.Next() {
		var name, value string

		err := rows.Scan(&name, &value)
		if err != nil {
			return nil, fmt.Errorf("failed to scan secret row: %w", err)
		}

		bundle[name] = value
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets for account %s: %w", accountID, err)
	}

	return bundle, nil
}

func (s *Store) Put(ctx context.Context, accountID, name, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO account_secrets (account_id, name, value)
		VALUES ($1, $2, pgp_sym_encrypt($3, $4))
		ON CONFLICT (account_id, name)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, accountID, name, value, s.passphrase)
	if err != nil {
		return fmt.Errorf("failed to save secret %s: %w", name, err)
	}

	s.logger.DebugContext(ctx, "Secret saved", "account_id", accountID, "name", name)

	return nil
}

func (s *Store) Delete(ctx context.Context, accountID, name string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM account_secrets WHERE account_id = $1 AND name = $2`, accountID, name)
	if err != nil {
		return fmt.Errorf("failed to delete secret %s: %w", name, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %s/%s", secrets.ErrSecretNotFound, accountID, name)
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	return nil
}
