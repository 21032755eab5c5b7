// Command migrate-tokens encrypts OAuth token rows that were stored before
// ENCRYPTION_KEY was configured. Rows with encryption_version=0 (plaintext)
// are rewritten as version=1 (AES-256-GCM).
//
// Usage:
//
//	migrate-tokens [--dry-run]
//
// Environment:
//
//	DB_DSN          Database connection string (required)
//	ENCRYPTION_KEY  Base64-encoded 32-byte key (required)
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/deedzorg/twitchconnect/crypto"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		slog.Error("DB_DSN environment variable is required")
		os.Exit(1)
	}
	encryptionKey := os.Getenv("ENCRYPTION_KEY")
	if encryptionKey == "" {
		slog.Error("ENCRYPTION_KEY environment variable is required for migration")
		os.Exit(1)
	}

	encryptor, err := crypto.NewAESEncryptor(encryptionKey)
	if err != nil {
		slog.Error("failed to initialize encryptor", slog.Any("err", err))
		os.Exit(1)
	}

	database, err := sql.Open("pgx", dsn)
	if err != nil {
		slog.Error("failed to connect to database", slog.Any("err", err))
		os.Exit(1)
	}
	defer database.Close()

	ctx := context.Background()
	if err := database.PingContext(ctx); err != nil {
		slog.Error("failed to ping database", slog.Any("err", err))
		os.Exit(1)
	}

	if err := migrateTokens(ctx, database, encryptor, *dryRun); err != nil {
		slog.Error("migration failed", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("migration completed successfully")
}

type tokenRow struct {
	Provider     string
	AccessToken  string
	RefreshToken string
}

func migrateTokens(ctx context.Context, database *sql.DB, encryptor crypto.Encryptor, dryRun bool) error {
	rows, err := database.QueryContext(ctx,
		`SELECT provider, access_token, refresh_token FROM oauth_tokens WHERE encryption_version = 0 ORDER BY provider`)
	if err != nil {
		return fmt.Errorf("failed to query plaintext tokens: %w", err)
	}
	defer rows.Close()

	var tokens []tokenRow
	for rows.Next() {
		var t tokenRow
		if err := rows.Scan(&t.Provider, &t.AccessToken, &t.RefreshToken); err != nil {
			return fmt.Errorf("failed to scan token row: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating token rows: %w", err)
	}

	if len(tokens) == 0 {
		slog.Info("no plaintext tokens found to migrate")
		return nil
	}
	slog.Info("found plaintext tokens to migrate", slog.Int("count", len(tokens)), slog.Bool("dry_run", dryRun))

	errorCount := 0
	for _, token := range tokens {
		logger := slog.With(slog.String("provider", token.Provider))
		if dryRun {
			logger.Info("would migrate token (dry-run)")
			continue
		}
		if err := migrateToken(ctx, database, encryptor, token); err != nil {
			logger.Error("failed to migrate token", slog.Any("err", err))
			errorCount++
			continue
		}
		logger.Info("migrated token")
	}

	if errorCount > 0 {
		return fmt.Errorf("migration completed with %d errors", errorCount)
	}
	return nil
}

func migrateToken(ctx context.Context, database *sql.DB, encryptor crypto.Encryptor, token tokenRow) error {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is best effort

	encryptedAccess, err := crypto.EncryptString(encryptor, token.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	encryptedRefresh, err := crypto.EncryptString(encryptor, token.RefreshToken)
	if err != nil {
		return fmt.Errorf("encrypt refresh token: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE oauth_tokens
		 SET access_token = $1, refresh_token = $2, encryption_version = 1,
		     encryption_key_id = 'default', updated_at = NOW()
		 WHERE provider = $3 AND encryption_version = 0`,
		encryptedAccess, encryptedRefresh, token.Provider)
	if err != nil {
		return fmt.Errorf("update token: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected != 1 {
		return fmt.Errorf("expected 1 row updated, got %d (token may have been modified concurrently)", rowsAffected)
	}
	return tx.Commit()
}
