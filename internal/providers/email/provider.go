package email

import (
	"context"

	"go.uber.org/zap"
)

// Provider delivers hiker and guide notifications.
type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
	SendTemplate(ctx context.Context, to []string, templateName string, data interface{}) error
}

// DiscardProvider renders templates but never delivers them. It is used when
// no SMTP host is configured so template errors still surface in logs.
type DiscardProvider struct {
	log *zap.Logger
}

func NewDiscard(log *zap.Logger) *DiscardProvider {
	return &DiscardProvider{log: log}
}

func (p *DiscardProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	p.log.Debug("email discarded", zap.Int("recipients", len(to)), zap.String("subject", subject))
	return nil
}

func (p *DiscardProvider) SendTemplate(ctx context.Context, to []string, templateName string, data interface{}) error {
	subject, body, err := Render(templateName, data)
	if err != nil {
		return err
	}
	return p.Send(ctx, to, subject, body)
}
