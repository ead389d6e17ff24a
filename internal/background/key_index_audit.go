package background

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/keygate/internal/models"
	pkglogger "github.com/BradenHooton/keygate/pkg/logger"
	"github.com/samber/lo"
)

// AccountSource enumerates and loads account records
type AccountSource interface {
	ListIdentifiers(ctx context.Context) ([]string, error)
	Load(ctx context.Context, userID string) (*models.Account, error)
}

// KeyConflict is a key id listed by more than one token account.
// Login resolves it to the first claimant in store order.
type KeyConflict struct {
	KeyID   string
	UserIDs []string
}

// ConfigGap is a token account that cannot complete a login
type ConfigGap struct {
	UserID  string
	Missing []string
}

// AuditReport is the result of one pass over the account store
type AuditReport struct {
	Scanned   int
	Conflicts []KeyConflict
	Gaps      []ConfigGap
}

type keyClaim struct {
	keyID  string
	userID string
}

// KeyIndexAuditor periodically scans token accounts for key ids claimed by
// several users and for incomplete token configuration, and reports them
// through the audit log.
type KeyIndexAuditor struct {
	store       AccountSource
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	interval    time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
}

func NewKeyIndexAuditor(
	store AccountSource,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
	interval time.Duration,
) *KeyIndexAuditor {
	return &KeyIndexAuditor{
		store:       store,
		logger:      logger,
		auditLogger: auditLogger,
		interval:    interval,
		stopCh:      make(chan struct{}),
	}
}

// Start runs an audit immediately and then on every tick until stopped.
// A non-positive interval disables the auditor.
func (a *KeyIndexAuditor) Start(ctx context.Context) {
	if a.interval <= 0 {
		a.logger.Info("key index auditor disabled")
		return
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.runAudit(ctx)

	for {
		select {
		case <-ticker.C:
			a.runAudit(ctx)
		case <-a.stopCh:
			a.logger.Info("key index auditor stopped")
			return
		case <-ctx.Done():
			a.logger.Info("key index auditor context cancelled")
			return
		}
	}
}

// Stop signals the auditor to stop. Safe to call more than once.
func (a *KeyIndexAuditor) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
}

func (a *KeyIndexAuditor) runAudit(ctx context.Context) {
	auditCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	report, err := a.Audit(auditCtx)
	if err != nil {
		a.logger.Error("key index audit failed", slog.Any("error", err))
		return
	}

	for _, c := range report.Conflicts {
		a.auditLogger.LogConfigFinding(pkglogger.EventKeyIndexConflict, c.UserIDs[0], map[string]string{
			"key_id":   c.KeyID,
			"user_ids": strings.Join(c.UserIDs, ","),
		})
	}
	for _, g := range report.Gaps {
		a.auditLogger.LogConfigFinding(pkglogger.EventTokenConfigGap, g.UserID, map[string]string{
			"missing": strings.Join(g.Missing, ","),
		})
	}

	a.logger.Info("key index audit completed",
		slog.Int("accounts_scanned", report.Scanned),
		slog.Int("conflicts", len(report.Conflicts)),
		slog.Int("incomplete", len(report.Gaps)))
}

// Audit scans every account once. Records that vanish mid-scan are skipped.
func (a *KeyIndexAuditor) Audit(ctx context.Context) (*AuditReport, error) {
	ids, err := a.store.ListIdentifiers(ctx)
	if err != nil {
		return nil, err
	}

	report := &AuditReport{}
	var claims []keyClaim

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		account, err := a.store.Load(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		report.Scanned++

		if !account.UsesToken() {
			continue
		}
		if missing := account.Token.MissingFields(); len(missing) > 0 {
			report.Gaps = append(report.Gaps, ConfigGap{UserID: account.UserID, Missing: missing})
		}
		if account.Token == nil {
			continue
		}
		for _, keyID := range account.Token.KeyIDs {
			claims = append(claims, keyClaim{keyID: keyID, userID: account.UserID})
		}
	}

	byKey := lo.GroupBy(claims, func(c keyClaim) string { return c.keyID })
	for keyID, group := range byKey {
		owners := lo.Uniq(lo.Map(group, func(c keyClaim, _ int) string { return c.userID }))
		if len(owners) > 1 {
			report.Conflicts = append(report.Conflicts, KeyConflict{KeyID: keyID, UserIDs: owners})
		}
	}
	sort.Slice(report.Conflicts, func(i, j int) bool {
		return report.Conflicts[i].KeyID < report.Conflicts[j].KeyID
	})

	return report, nil
}
