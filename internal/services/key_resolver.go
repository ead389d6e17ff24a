package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/keygate/internal/models"
)

// KeyIndexNamespace scopes key index entries written by the OTP login flow
const KeyIndexNamespace = "yubikey"

// AccountStore enumerates and loads account records
type AccountStore interface {
	ListIdentifiers(ctx context.Context) ([]string, error)
	Load(ctx context.Context, userID string) (*models.Account, error)
}

// KeyIndexCache maps a key id to the user id that owns it
type KeyIndexCache interface {
	Get(ctx context.Context, namespace, keyID string) (string, bool, error)
	Set(ctx context.Context, namespace, keyID, userID string) error
}

// KeyResolver finds which account a token OTP belongs to.
// It answers "who claims this key id", not "is this OTP valid".
type KeyResolver struct {
	store  AccountStore
	cache  KeyIndexCache
	logger *slog.Logger
}

func NewKeyResolver(store AccountStore, cache KeyIndexCache, logger *slog.Logger) *KeyResolver {
	return &KeyResolver{
		store:  store,
		cache:  cache,
		logger: logger,
	}
}

// Resolve returns the user id whose token configuration lists the OTP's key id.
// It returns models.ErrNoKeyMatch when no account claims it.
func (r *KeyResolver) Resolve(ctx context.Context, otp string) (string, error) {
	keyID, ok := models.KeyIDFromOTP(otp)
	if !ok {
		return "", models.ErrNoKeyMatch
	}

	userID, found, err := r.cache.Get(ctx, KeyIndexNamespace, keyID)
	if err != nil {
		r.logger.Warn("key index read failed, scanning accounts",
			slog.String("key_id", keyID),
			slog.Any("error", err))
	} else if found {
		return userID, nil
	}

	userID, err = r.scan(ctx, keyID)
	if err != nil {
		return "", err
	}

	if err := r.cache.Set(ctx, KeyIndexNamespace, keyID, userID); err != nil {
		r.logger.Warn("key index write failed",
			slog.String("key_id", keyID),
			slog.String("user_id", userID),
			slog.Any("error", err))
	}
	return userID, nil
}

// scan walks the store until the first token account that lists keyID
func (r *KeyResolver) scan(ctx context.Context, keyID string) (string, error) {
	ids, err := r.store.ListIdentifiers(ctx)
	if err != nil {
		return "", fmt.Errorf("list accounts: %w", err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		account, err := r.store.Load(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("load account %s: %w", id, err)
		}

		if !account.UsesToken() || account.Token == nil {
			continue
		}
		if account.Token.KeyIDs.Contains(keyID) {
			return account.UserID, nil
		}
	}

	return "", models.ErrNoKeyMatch
}
