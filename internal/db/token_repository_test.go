package db

import (
	"context"
	"testing"
	"time"

	"github.com/chepyr/go-todo-tree/internal/models"
	"github.com/google/uuid"
)

func TestTokenRepository_CreateExistsDelete(t *testing.T) {
	dbx := setupTestDB(t)
	repo := NewTokenRepository(dbx)
	ctx := context.Background()

	userID := uuid.New()
	now := time.Now().UTC()
	tokens := []*models.AccessToken{
		{ID: uuid.New(), UserID: userID, Name: "auth-token", CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
		{ID: uuid.New(), UserID: userID, Name: "web", CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
	}
	for _, tok := range tokens {
		if err := repo.Create(ctx, tok); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	ok, err := repo.Exists(ctx, tokens[0].ID, userID)
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v; want true", ok, err)
	}
	ok, err = repo.Exists(ctx, tokens[0].ID, uuid.New())
	if err != nil || ok {
		t.Fatalf("Exists for other user = %v, %v; want false", ok, err)
	}

	n, err := repo.DeleteByUser(ctx, userID)
	if err != nil {
		t.Fatalf("DeleteByUser: %v", err)
	}
	if n != 2 {
		t.Errorf("DeleteByUser removed %d tokens, want 2", n)
	}
	ok, err = repo.Exists(ctx, tokens[1].ID, userID)
	if err != nil || ok {
		t.Fatalf("Exists after revoke = %v, %v; want false", ok, err)
	}
}
