package db

import (
	"context"
	"database/sql"

	"github.com/chepyr/go-todo-tree/internal/models"
	"github.com/google/uuid"
)

type TokenRepositoryInterface interface {
	Create(ctx context.Context, token *models.AccessToken) error
	Exists(ctx context.Context, id, userID uuid.UUID) (bool, error)
	DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

type TokenRepository struct {
	db *sql.DB
}

func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Create(ctx context.Context, token *models.AccessToken) error {
	query := `INSERT INTO access_tokens (id, user_id, name, created_at, expires_at)
	 VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query,
		token.ID, token.UserID, token.Name, token.CreatedAt, token.ExpiresAt)
	return err
}

func (r *TokenRepository) Exists(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM access_tokens WHERE id = $1 AND user_id = $2)`
	err := r.db.QueryRowContext(ctx, query, id, userID).Scan(&exists)
	return exists, err
}

// DeleteByUser revokes every token issued to the user.
func (r *TokenRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM access_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
