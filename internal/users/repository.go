package users

import "context"

// RepositoryPort defines data access methods for user records.
type RepositoryPort interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	Create(ctx context.Context, user User) (*User, error)
	Update(ctx context.Context, id int64, patch Patch) (*User, error)
	SetPassword(ctx context.Context, id int64, passwordHash string) error
	SetStatus(ctx context.Context, id int64, status Status) error
	SetTwoFactor(ctx context.Context, id int64, secret string, backupCodeHashes []string) error
	ClearTwoFactor(ctx context.Context, id int64) error
	ReplaceBackupCodes(ctx context.Context, id int64, backupCodeHashes []string) error
	List(ctx context.Context) ([]User, error)
}
