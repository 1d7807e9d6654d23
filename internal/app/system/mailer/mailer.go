// internal/app/system/mailer/mailer.go
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Email is one outbound message. HTMLBody is optional.
type Email struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Config holds SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	SiteName string
	BaseURL  string
}

// Enabled reports whether an SMTP host is configured.
func (c Config) Enabled() bool {
	return c.Host != ""
}

// sendFunc matches smtp.SendMail so tests can capture messages.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends email over SMTP.
type Mailer struct {
	cfg  Config
	log  *zap.Logger
	send sendFunc
}

var errNoRecipient = errors.New("mailer: recipient is required")

// New creates a Mailer.
func New(cfg Config, logger *zap.Logger) *Mailer {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &Mailer{cfg: cfg, log: logger, send: smtp.SendMail}
}

// Config returns the mailer's configuration.
func (m *Mailer) Config() Config {
	return m.cfg
}

// Send delivers e. The context bounds how long Send waits; the SMTP
// exchange itself is not interruptible once started.
func (m *Mailer) Send(ctx context.Context, e Email) error {
	if e.To == "" {
		return errNoRecipient
	}
	msg, err := m.build(e)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	done := make(chan error, 1)
	start := time.Now()
	go func() {
		done <- m.send(addr, auth, m.cfg.From, []string{e.To}, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		m.log.Debug("email sent",
			zap.String("subject", e.Subject),
			zap.Duration("took", time.Since(start)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mailer) build(e Email) ([]byte, error) {
	from := mail.Address{Name: m.cfg.FromName, Address: m.cfg.From}
	to := mail.Address{Address: e.To}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from.String())
	fmt.Fprintf(&buf, "To: %s\r\n", to.String())
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", e.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")

	if e.HTMLBody == "" {
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		buf.WriteString(e.TextBody)
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", mw.Boundary())
	for _, part := range []struct {
		ctype string
		body  string
	}{
		{"text/plain; charset=utf-8", e.TextBody},
		{"text/html; charset=utf-8", e.HTMLBody},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {part.ctype}})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(part.body)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
