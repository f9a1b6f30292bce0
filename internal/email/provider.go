// Package email provides email provider interface.
package email

import (
	"context"
	"fmt"
)

type Provider interface {
	SendEmail(ctx context.Context, email *Email) error
}

type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Config struct {
	Provider string
	APIKey   string
	From     string
}

// NewProvider builds the configured provider. An empty provider name yields a
// noop sender so order processing never depends on email being configured.
func NewProvider(config Config) (Provider, error) {
	switch config.Provider {
	case "":
		return NoopProvider{}, nil
	case "resend":
		return NewResendProvider(config.APIKey, config.From), nil
	default:
		return nil, fmt.Errorf("EMAIL_PROVIDER must be 'resend' or unset")
	}
}

// NoopProvider silently drops outgoing mail.
type NoopProvider struct{}

func (NoopProvider) SendEmail(ctx context.Context, email *Email) error {
	_ = ctx
	_ = email
	return nil
}
