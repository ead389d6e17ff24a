package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/BradenHooton/keygate/internal/database"
	"github.com/BradenHooton/keygate/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AccountRepository reads account records from PostgreSQL
type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{pool: db.Pool}
}

// rowScanner interface for scanning account rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanAccountRow decodes the token_config JSONB column into a TokenConfig
func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var (
		account    models.Account
		method     string
		tokenBytes []byte
	)

	if err := scanner.Scan(&account.UserID, &method, &tokenBytes); err != nil {
		return nil, database.MapPostgresError(err)
	}
	account.AuthMethod = models.ParseAuthMethod(method)

	if len(tokenBytes) > 0 && string(tokenBytes) != "null" {
		var token models.TokenConfig
		if err := json.Unmarshal(tokenBytes, &token); err != nil {
			return nil, fmt.Errorf("account %s: invalid token_config: %w", account.UserID, err)
		}
		account.Token = &token
	}

	return &account, nil
}

// ListIdentifiers returns every stored user id, in a stable order
func (r *AccountRepository) ListIdentifiers(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM accounts ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return ids, nil
}

// Load returns models.ErrNotFound when no record exists for userID
func (r *AccountRepository) Load(ctx context.Context, userID string) (*models.Account, error) {
	query := `SELECT user_id, auth_method, token_config FROM accounts WHERE user_id = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, userID))
}

// Save inserts or replaces an account record
func (r *AccountRepository) Save(ctx context.Context, account *models.Account) error {
	var tokenBytes []byte
	if account.Token != nil {
		b, err := json.Marshal(account.Token)
		if err != nil {
			return fmt.Errorf("failed to encode token config: %w", err)
		}
		tokenBytes = b
	}

	query := `
		INSERT INTO accounts (user_id, auth_method, token_config)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET auth_method = EXCLUDED.auth_method,
		    token_config = EXCLUDED.token_config,
		    updated_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query, account.UserID, string(account.AuthMethod), tokenBytes)
	return database.MapPostgresError(err)
}

// Delete removes an account record
func (r *AccountRepository) Delete(ctx context.Context, userID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE user_id = $1`, userID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
