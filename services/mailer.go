package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Mailer 发送账号验证邮件
type Mailer interface {
	SendVerification(ctx context.Context, email, username, link string) error
}

// LogMailer 不真正发送邮件，只把验证链接写入日志
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger.With("component", "mailer")}
}

func (m *LogMailer) SendVerification(ctx context.Context, email, username, link string) error {
	m.logger.InfoContext(ctx, "verification mail", "to", email, "username", username, "link", link)
	return nil
}

func verificationLink(publicURL, token string) string {
	return fmt.Sprintf("%s/api/auth/verify/%s", strings.TrimRight(publicURL, "/"), token)
}
