package notifier

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EmailConfig holds SMTP settings. Port 465 uses implicit TLS; any other
// port upgrades with STARTTLS when the server offers it.
type EmailConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string // "Name <addr>" or a bare address
	Recipients []string
}

// Validate checks that the configuration is complete and every address parses.
func (c *EmailConfig) Validate() error {
	if c.Host == "" {
		return errors.New("SMTP host is required")
	}
	if c.Port == 0 {
		return errors.New("SMTP port is required")
	}
	if c.From == "" {
		return errors.New("from address is required")
	}
	if _, err := mail.ParseAddress(c.From); err != nil {
		return fmt.Errorf("invalid from address %q: %w", c.From, err)
	}
	if len(c.Recipients) == 0 {
		return errors.New("at least one recipient is required")
	}
	for _, r := range c.Recipients {
		if _, err := mail.ParseAddress(r); err != nil {
			return fmt.Errorf("invalid recipient %q: %w", r, err)
		}
	}
	return nil
}

// EmailNotifier mails each notification as multipart/alternative.
type EmailNotifier struct {
	config    EmailConfig
	from      *mail.Address
	to        []*mail.Address
	templates *Templates
	now       func() time.Time
}

// NewEmailNotifier creates an email notifier.
func NewEmailNotifier(config EmailConfig) (*EmailNotifier, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid email config: %w", err)
	}

	templates, err := LoadTemplates()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	from, _ := mail.ParseAddress(config.From)
	to := make([]*mail.Address, 0, len(config.Recipients))
	for _, r := range config.Recipients {
		addr, _ := mail.ParseAddress(r)
		to = append(to, addr)
	}

	return &EmailNotifier{
		config:    config,
		from:      from,
		to:        to,
		templates: templates,
		now:       time.Now,
	}, nil
}

func (e *EmailNotifier) Name() string { return "email" }

func (e *EmailNotifier) Close() error { return nil }

// Send renders n and delivers it to every recipient in one SMTP transaction.
func (e *EmailNotifier) Send(ctx context.Context, n *Notification) error {
	data := NotificationToTemplateData(n)

	htmlBody, err := e.templates.RenderHTML(&data)
	if err != nil {
		return fmt.Errorf("render HTML: %w", err)
	}
	plainBody, err := e.templates.RenderPlain(&data)
	if err != nil {
		return fmt.Errorf("render plain text: %w", err)
	}

	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(n.Severity)), n.Title)
	msg, err := e.compose(subject, plainBody, htmlBody)
	if err != nil {
		return fmt.Errorf("compose message: %w", err)
	}
	return e.deliver(ctx, msg)
}

// compose builds the RFC 5322 message. The subject is folded onto one line
// and RFC 2047 encoded.
func (e *EmailNotifier) compose(subject, plainBody, htmlBody string) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, part := range []struct{ contentType, text string }{
		{"text/plain; charset=UTF-8", plainBody},
		{"text/html; charset=UTF-8", htmlBody},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.contentType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, err
		}
		qp := quotedprintable.NewWriter(w)
		if _, err := qp.Write([]byte(part.text)); err != nil {
			return nil, err
		}
		if err := qp.Close(); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	to := make([]string, len(e.to))
	for i, a := range e.to {
		to[i] = a.String()
	}
	subject = strings.Join(strings.Fields(subject), " ")

	var msg bytes.Buffer
	header := [][2]string{
		{"From", e.from.String()},
		{"To", strings.Join(to, ", ")},
		{"Subject", mime.QEncoding.Encode("UTF-8", subject)},
		{"Date", e.now().Format(time.RFC1123Z)},
		{"Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), e.domain())},
		{"MIME-Version", "1.0"},
		{"Content-Type", mime.FormatMediaType("multipart/alternative", map[string]string{"boundary": mw.Boundary()})},
	}
	for _, h := range header {
		fmt.Fprintf(&msg, "%s: %s\r\n", h[0], h[1])
	}
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

func (e *EmailNotifier) domain() string {
	if _, d, ok := strings.Cut(e.from.Address, "@"); ok {
		return d
	}
	return "localhost"
}

// deliver runs one SMTP session. Cancelling ctx aborts it mid-conversation.
func (e *EmailNotifier) deliver(ctx context.Context, msg []byte) error {
	conn, err := e.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect to SMTP server: %w", err)
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, e.config.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("SMTP greeting: %w", err)
	}
	defer c.Close()

	if e.config.Port != 465 {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: e.config.Host, MinVersion: tls.VersionTLS12}); err != nil {
				return fmt.Errorf("STARTTLS: %w", err)
			}
		}
	}
	if e.config.Username != "" && e.config.Password != "" {
		if err := c.Auth(smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)); err != nil {
			return fmt.Errorf("SMTP auth: %w", err)
		}
	}

	if err := c.Mail(e.from.Address); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, rcpt := range e.to {
		if err := c.Rcpt(rcpt.Address); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", rcpt.Address, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("end DATA: %w", err)
	}
	return c.Quit()
}

func (e *EmailNotifier) dial(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(e.config.Host, strconv.Itoa(e.config.Port))
	nd := &net.Dialer{Timeout: 30 * time.Second}
	if e.config.Port == 465 {
		td := &tls.Dialer{NetDialer: nd, Config: &tls.Config{ServerName: e.config.Host, MinVersion: tls.VersionTLS12}}
		return td.DialContext(ctx, "tcp", addr)
	}
	return nd.DialContext(ctx, "tcp", addr)
}
