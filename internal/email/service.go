package email

import (
	"fmt"

	gomail "gopkg.in/gomail.v2"

	"github.com/serviceyard/marketplace-api/internal/config"
	"github.com/serviceyard/marketplace-api/pkg/logger"
)

// Service sends mail over SMTP.
type Service struct {
	dialer *gomail.Dialer
	from   string
	logger *logger.Logger
}

func NewService(cfg config.EmailConfig, logger *logger.Logger) *Service {
	return &Service{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		logger: logger,
	}
}

func (s *Service) Send(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	s.logger.Debug("email sent", map[string]interface{}{"to": to, "subject": subject})
	return nil
}
