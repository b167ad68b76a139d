package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/kagi/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// UserStore persists vault owners.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// SessionStore persists browser sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, s *models.Session) error
	// FindActiveSession returns the session with the given token whose expiry
	// is after now, or ErrNotFound.
	FindActiveSession(ctx context.Context, token string, now time.Time) (*models.Session, error)
	DeleteSession(ctx context.Context, token string) error
}

// AccessKeyStore persists access key records.
type AccessKeyStore interface {
	CreateAccessKey(ctx context.Context, key *models.AccessKey) error
	// FindActiveAccessKey returns the record with the given hash that has no
	// expiry or expires after now, or ErrNotFound.
	FindActiveAccessKey(ctx context.Context, hash string, now time.Time) (*models.AccessKey, error)
	TouchAccessKey(ctx context.Context, id uuid.UUID, at time.Time) error
	ListAccessKeys(ctx context.Context, userID string) ([]*models.AccessKey, error)
	DeleteAccessKey(ctx context.Context, id uuid.UUID, userID string) error
}

// CategoryStore persists key categories.
type CategoryStore interface {
	ListCategories(ctx context.Context, userID, search string) ([]*models.Category, error)
	GetCategory(ctx context.Context, id uuid.UUID, userID string) (*models.Category, error)
	CreateCategory(ctx context.Context, c *models.Category) error
	UpdateCategory(ctx context.Context, id uuid.UUID, userID string, upd models.CategoryUpdate) (*models.Category, error)
	DeleteCategory(ctx context.Context, id uuid.UUID, userID string) error
}

// EntryStore persists key entries. Ownership is enforced through the parent
// category.
type EntryStore interface {
	ListEntries(ctx context.Context, filter models.EntryFilter) ([]*models.Entry, error)
	// GetEntry returns the entry with its Category summary populated.
	GetEntry(ctx context.Context, id uuid.UUID, userID string) (*models.Entry, error)
	CreateEntry(ctx context.Context, e *models.Entry) error
	UpdateEntry(ctx context.Context, id uuid.UUID, userID string, upd models.EntryUpdate) (*models.Entry, error)
	DeleteEntry(ctx context.Context, id uuid.UUID, userID string) error
}

// TwoFactorStore persists 2FA recovery code sets.
type TwoFactorStore interface {
	ListTwoFactor(ctx context.Context, userID, search string) ([]*models.TwoFactorSet, error)
	GetTwoFactor(ctx context.Context, id uuid.UUID, userID string) (*models.TwoFactorSet, error)
	CreateTwoFactor(ctx context.Context, s *models.TwoFactorSet) error
	UpdateTwoFactor(ctx context.Context, id uuid.UUID, userID string, upd models.TwoFactorUpdate) (*models.TwoFactorSet, error)
	DeleteTwoFactor(ctx context.Context, id uuid.UUID, userID string) error
}

// EnvStore persists env projects and their encrypted dotenv files.
type EnvStore interface {
	ListEnvProjects(ctx context.Context, userID, search string) ([]*models.EnvProject, error)
	GetEnvProject(ctx context.Context, id uuid.UUID, userID string) (*models.EnvProject, error)
	CreateEnvProject(ctx context.Context, p *models.EnvProject) error
	UpdateEnvProject(ctx context.Context, id uuid.UUID, userID string, upd models.EnvProjectUpdate) (*models.EnvProject, error)
	DeleteEnvProject(ctx context.Context, id uuid.UUID, userID string) error

	ListEnvFiles(ctx context.Context, projectID uuid.UUID, userID string) ([]*models.EnvFile, error)
	// SaveEnvFile inserts f, or replaces the content of the project's existing
	// file of the same type. f's ID and timestamps are set from the stored row.
	SaveEnvFile(ctx context.Context, f *models.EnvFile) error
	GetEnvFile(ctx context.Context, projectID, id uuid.UUID, userID string) (*models.EnvFile, error)
	DeleteEnvFile(ctx context.Context, projectID, id uuid.UUID, userID string) error
}

// AccountStore performs owner-wide operations.
type AccountStore interface {
	// WipeVaultData deletes every category (with its entries) and every 2FA
	// set of the owner in one transaction. Access keys, sessions and env
	// projects are kept.
	WipeVaultData(ctx context.Context, userID string) (*models.WipeResult, error)
}

// StatsStore aggregates dashboard statistics.
type StatsStore interface {
	GetStats(ctx context.Context, userID string, now time.Time) (*models.Stats, error)
}

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	UserStore
	SessionStore
	AccessKeyStore
	CategoryStore
	EntryStore
	TwoFactorStore
	EnvStore
	AccountStore
	StatsStore
}
