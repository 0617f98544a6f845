package mailer_test

import (
	"testing"

	"github.com/carnetapp/carnetd/internal/config"
	"github.com/carnetapp/carnetd/internal/services/mailer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSMTPConfig() *config.SMTPConfig {
	return &config.SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "testuser",
		Password: "testpass",
		From:     "noreply@example.com",
		FromName: "Carnet Service",
		TLS:      true,
	}
}

func TestNew(t *testing.T) {
	m, err := mailer.New(validSMTPConfig())

	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestNew_MissingHost(t *testing.T) {
	cfg := validSMTPConfig()
	cfg.Host = ""

	_, err := mailer.New(cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "SMTP host is required")
}

func TestNew_MissingFrom(t *testing.T) {
	cfg := validSMTPConfig()
	cfg.From = ""

	_, err := mailer.New(cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "SMTP from address is required")
}
