package auth

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/chepyr/go-todo-tree/internal/models"
)

type Mailer interface {
	SendVerification(ctx context.Context, user *models.User, link string) error
}

// LogMailer writes verification links to the log instead of sending mail.
type LogMailer struct {
	Logger *log.Logger
}

func (m LogMailer) SendVerification(ctx context.Context, user *models.User, link string) error {
	logger := m.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Info("verification link", "email", user.Email, "link", link)
	return nil
}
