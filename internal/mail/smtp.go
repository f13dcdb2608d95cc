package mail

import (
	"bytes"
	"context"
	"fmt"
	"time"

	gomail "github.com/emersion/go-message/mail"
	mailv2 "gopkg.in/mail.v2"

	"github.com/wechange-eg/cosinnus-notifications/internal/config"
)

// SMTPSender composes MIME messages and delivers them over SMTP.
type SMTPSender struct {
	cfg    config.MailConfig
	dialer *mailv2.Dialer
}

func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	return &SMTPSender{
		cfg:    cfg,
		dialer: mailv2.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

var _ Sender = (*SMTPSender)(nil)

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	raw, err := s.compose(msg)
	if err != nil {
		return fmt.Errorf("compose mail to %s: %w", msg.To, err)
	}

	sc, err := s.dialer.Dial()
	if err != nil {
		return fmt.Errorf("dial smtp %s:%d: %w", s.cfg.Host, s.cfg.Port, err)
	}
	defer sc.Close()

	if err := sc.Send(s.cfg.FromAddress, []string{msg.To}, raw); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	return nil
}

func (s *SMTPSender) compose(msg Message) (*bytes.Buffer, error) {
	var buf bytes.Buffer

	var h gomail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*gomail.Address{{Name: s.cfg.FromName, Address: s.cfg.FromAddress}})
	h.SetAddressList("To", []*gomail.Address{{Address: msg.To}})
	h.SetSubject(msg.Subject)

	mw, err := gomail.CreateWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	tw, err := mw.CreateInline()
	if err != nil {
		return nil, err
	}

	var th gomail.InlineHeader
	contentType := "text/plain"
	if msg.HTML {
		contentType = "text/html"
	}
	th.SetContentType(contentType, map[string]string{"charset": "utf-8"})

	w, err := tw.CreatePart(th)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write([]byte(msg.Body)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}
