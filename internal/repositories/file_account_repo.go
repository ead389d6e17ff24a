package repositories

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BradenHooton/keygate/internal/models"
	"gopkg.in/yaml.v3"
)

// IdentityFileExt is the suffix of account files in the identities directory
const IdentityFileExt = ".identity"

// identityDocument is the on-disk layout of a <uid>.identity file.
// Only the fields the OTP login flow reads are decoded.
type identityDocument struct {
	AuthMethod string              `yaml:"auth_method"`
	Yubikey    *models.TokenConfig `yaml:"yubikey"`
}

// FileAccountRepository reads account records from a directory of identity files
type FileAccountRepository struct {
	dir string
}

func NewFileAccountRepository(dir string) *FileAccountRepository {
	return &FileAccountRepository{dir: dir}
}

// ListIdentifiers returns the uid of every <uid>.identity file in the directory.
// Symlinks are followed; anything that does not resolve to a regular file is skipped.
func (r *FileAccountRepository) ListIdentifiers(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read identities directory: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := entry.Name()
		uid, ok := strings.CutSuffix(name, IdentityFileExt)
		if !ok || uid == "" || strings.HasPrefix(name, ".") {
			continue
		}

		info, err := os.Stat(filepath.Join(r.dir, name))
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		ids = append(ids, uid)
	}

	sort.Strings(ids)
	return ids, nil
}

// Load returns models.ErrNotFound when no identity file exists for userID
func (r *FileAccountRepository) Load(ctx context.Context, userID string) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validUserID(userID) {
		return nil, models.ErrNotFound
	}

	data, err := os.ReadFile(filepath.Join(r.dir, userID+IdentityFileExt))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read identity %s: %w", userID, err)
	}

	var doc identityDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse identity %s: %w", userID, err)
	}

	return &models.Account{
		UserID:     userID,
		AuthMethod: models.ParseAuthMethod(doc.AuthMethod),
		Token:      doc.Yubikey,
	}, nil
}

// validUserID rejects ids that would escape the identities directory
func validUserID(userID string) bool {
	return userID != "" &&
		userID != "." && userID != ".." &&
		!strings.ContainsAny(userID, `/\`) &&
		!strings.ContainsRune(userID, 0)
}
