package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/chepyr/go-todo-tree/internal/models"
	"github.com/google/uuid"
)

// defines methods for user db operations
type UserRepositoryInterface interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	MarkEmailVerified(ctx context.Context, id uuid.UUID, at time.Time) error
}

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, name, email, password_hash, email_verified_at, created_at, updated_at`

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var verifiedAt sql.NullTime
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &verifiedAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		user.EmailVerifiedAt = &t
	}
	return user, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (` + userColumns + `)
	 VALUES ($1, $2, $3, $4, $5, $6, $7)`

	var verifiedAt sql.NullTime
	if user.EmailVerifiedAt != nil {
		verifiedAt = sql.NullTime{Time: *user.EmailVerifiedAt, Valid: true}
	}
	_, err := r.db.ExecContext(
		ctx, query, user.ID, user.Name, user.Email, user.PasswordHash, verifiedAt,
		user.CreatedAt, user.UpdatedAt)
	return err
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) MarkEmailVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE users SET email_verified_at = $1, updated_at = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, at, at, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}
