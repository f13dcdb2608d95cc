package mail

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wechange-eg/cosinnus-notifications/internal/config"
)

func newTestSender() *SMTPSender {
	return NewSMTPSender(config.MailConfig{
		Host:        "smtp.example.org",
		Port:        587,
		Username:    "portal",
		Password:    "secret",
		FromAddress: "noreply@example.org",
		FromName:    "Example Portal",
	})
}

func TestNewSMTPSender_DialerConfig(t *testing.T) {
	s := newTestSender()
	require.Equal(t, "smtp.example.org", s.dialer.Host)
	require.Equal(t, 587, s.dialer.Port)
	require.Equal(t, "portal", s.dialer.Username)
	require.Equal(t, "secret", s.dialer.Password)
}

func TestCompose_PlainText(t *testing.T) {
	s := newTestSender()
	buf, err := s.compose(Message{
		To:      "anna@example.org",
		Subject: "Neue Nachricht",
		Body:    "Hallo Anna",
	})
	require.NoError(t, err)

	raw := buf.String()
	require.Contains(t, raw, "anna@example.org")
	require.Contains(t, raw, "Example Portal")
	require.Contains(t, raw, "Subject: Neue Nachricht")
	require.Contains(t, raw, "text/plain")
	require.Contains(t, raw, "Hallo Anna")
}

func TestCompose_HTML(t *testing.T) {
	s := newTestSender()
	buf, err := s.compose(Message{
		To:      "anna@example.org",
		Subject: "Digest",
		Body:    "<p>Hallo</p>",
		HTML:    true,
	})
	require.NoError(t, err)

	raw := buf.String()
	require.Contains(t, raw, "text/html")
	require.NotContains(t, raw, "text/plain")
}
