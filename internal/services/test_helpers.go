package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/BradenHooton/keygate/internal/models"
	"github.com/BradenHooton/keygate/internal/yubico"
	pkglogger "github.com/BradenHooton/keygate/pkg/logger"
)

// MockAccountStore implements AccountStore for testing.
// Without ListIdentifiersFunc/LoadFunc it serves Accounts.
type MockAccountStore struct {
	Accounts            map[string]*models.Account
	ListIdentifiersFunc func(ctx context.Context) ([]string, error)
	LoadFunc            func(ctx context.Context, userID string) (*models.Account, error)

	mu        sync.Mutex
	listCalls int
	loads     []string
}

func (m *MockAccountStore) ListIdentifiers(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	m.listCalls++
	m.mu.Unlock()

	if m.ListIdentifiersFunc != nil {
		return m.ListIdentifiersFunc(ctx)
	}
	ids := make([]string, 0, len(m.Accounts))
	for id := range m.Accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MockAccountStore) Load(ctx context.Context, userID string) (*models.Account, error) {
	m.mu.Lock()
	m.loads = append(m.loads, userID)
	m.mu.Unlock()

	if m.LoadFunc != nil {
		return m.LoadFunc(ctx, userID)
	}
	if a, ok := m.Accounts[userID]; ok {
		return a, nil
	}
	return nil, models.ErrNotFound
}

// ListCalls returns how many times ListIdentifiers ran
func (m *MockAccountStore) ListCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

// Loads returns the user ids passed to Load, in call order
func (m *MockAccountStore) Loads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.loads...)
}

// MockKeyIndexCache implements KeyIndexCache for testing
type MockKeyIndexCache struct {
	GetFunc func(ctx context.Context, namespace, keyID string) (string, bool, error)
	SetFunc func(ctx context.Context, namespace, keyID, userID string) error

	mu      sync.Mutex
	entries map[string]string
	gets    int
	sets    int
}

func (m *MockKeyIndexCache) Get(ctx context.Context, namespace, keyID string) (string, bool, error) {
	m.mu.Lock()
	m.gets++
	m.mu.Unlock()

	if m.GetFunc != nil {
		return m.GetFunc(ctx, namespace, keyID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	userID, ok := m.entries[namespace+":"+keyID]
	return userID, ok, nil
}

func (m *MockKeyIndexCache) Set(ctx context.Context, namespace, keyID, userID string) error {
	m.mu.Lock()
	m.sets++
	m.mu.Unlock()

	if m.SetFunc != nil {
		return m.SetFunc(ctx, namespace, keyID, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[string]string)
	}
	m.entries[namespace+":"+keyID] = userID
	return nil
}

// Calls returns the number of Get and Set calls
func (m *MockKeyIndexCache) Calls() (gets, sets int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets, m.sets
}

// Entry returns the cached user id for keyID in the login namespace
func (m *MockKeyIndexCache) Entry(keyID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	userID, ok := m.entries[KeyIndexNamespace+":"+keyID]
	return userID, ok
}

// MockVerificationClient implements VerificationClient for testing.
// OnVerify, when set, runs before VerifyRemoteFunc so tests can record ordering.
type MockVerificationClient struct {
	VerifyRemoteFunc func(ctx context.Context, otp string, req yubico.VerifyRequest) error
	OnVerify         func()

	mu       sync.Mutex
	otps     []string
	requests []yubico.VerifyRequest
}

func (m *MockVerificationClient) VerifyRemote(ctx context.Context, otp string, req yubico.VerifyRequest) error {
	m.mu.Lock()
	m.otps = append(m.otps, otp)
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.OnVerify != nil {
		m.OnVerify()
	}
	if m.VerifyRemoteFunc != nil {
		return m.VerifyRemoteFunc(ctx, otp, req)
	}
	return nil
}

// OTPs returns every OTP sent to the authority, in call order
func (m *MockVerificationClient) OTPs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.otps...)
}

// Requests returns every request sent to the authority
func (m *MockVerificationClient) Requests() []yubico.VerifyRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]yubico.VerifyRequest(nil), m.requests...)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAuditLogger() *pkglogger.AuditLogger {
	return pkglogger.NewAuditLogger(newTestLogger())
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

// tokenAccount builds a complete token account listing keyIDs
func tokenAccount(userID string, keyIDs ...string) *models.Account {
	return &models.Account{
		UserID:     userID,
		AuthMethod: models.AuthMethodToken,
		Token: &models.TokenConfig{
			ClientID:           strPtr("1234"),
			ClientSecret:       strPtr("c2VjcmV0LWtleQ=="),
			UseSecureTransport: boolPtr(true),
			KeyIDs:             models.NewKeyIDSet(keyIDs...),
		},
	}
}
