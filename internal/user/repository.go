package user

import (
	"context"
	"database/sql"

	"cipher-chat/internal/db"
	"cipher-chat/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrNotFound  = errors.New("account not found")
	ErrDuplicate = errors.New("email or unique code already taken")
)

type Repository struct {
	db *db.Database
}

func NewRepository(database *db.Database) *Repository {
	return &Repository{db: database}
}

// CreateAccount inserts the account and its profile in one transaction, so no
// account ever exists without a unique code.
func (r *Repository) CreateAccount(ctx context.Context, acc *models.Account, p *models.Profile) error {
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		q := r.db.Rebind("INSERT INTO accounts (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)")
		if _, err := tx.ExecContext(ctx, q, acc.ID, acc.Email, acc.PasswordHash, acc.CreatedAt); err != nil {
			return errors.Wrap(err, "userRepo.CreateAccount.InsertAccount")
		}

		q = r.db.Rebind("INSERT INTO profiles (account_id, unique_code, display_name, created_at) VALUES (?, ?, ?, ?)")
		if _, err := tx.ExecContext(ctx, q, p.AccountID, p.UniqueCode, p.DisplayName, p.CreatedAt); err != nil {
			return errors.Wrap(err, "userRepo.CreateAccount.InsertProfile")
		}
		return nil
	})
	if db.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *Repository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	q := r.db.Rebind("SELECT EXISTS(SELECT 1 FROM accounts WHERE email = ?)")
	if err := r.db.Conn.QueryRowContext(ctx, q, email).Scan(&exists); err != nil {
		return false, errors.Wrap(err, "userRepo.EmailExists.Scan")
	}
	return exists, nil
}

func (r *Repository) GetAccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	acc := &models.Account{}
	q := r.db.Rebind("SELECT id, email, password_hash, created_at FROM accounts WHERE id = ?")
	err := r.db.Conn.QueryRowContext(ctx, q, id).Scan(&acc.ID, &acc.Email, &acc.PasswordHash, &acc.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "userRepo.GetAccountByID.Scan")
	}
	return acc, nil
}

func (r *Repository) GetProfileByAccountID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	return r.getProfile(ctx, "account_id", id)
}

// GetProfileByCode matches the stored upper-case code exactly; callers
// normalize first.
func (r *Repository) GetProfileByCode(ctx context.Context, code string) (*models.Profile, error) {
	return r.getProfile(ctx, "unique_code", code)
}

func (r *Repository) getProfile(ctx context.Context, column string, value any) (*models.Profile, error) {
	p := &models.Profile{}
	q := r.db.Rebind("SELECT account_id, unique_code, display_name, created_at FROM profiles WHERE " + column + " = ?")
	err := r.db.Conn.QueryRowContext(ctx, q, value).Scan(&p.AccountID, &p.UniqueCode, &p.DisplayName, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "userRepo.getProfile.Scan")
	}
	return p, nil
}
