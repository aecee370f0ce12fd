package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.Port > 0 && c.From != ""
}

// sendFunc delivers a built message. Replaced in tests.
type sendFunc func(ctx context.Context, cfg SMTPConfig, to string, msg []byte) error

type Email struct {
	cfg  SMTPConfig
	md   goldmark.Markdown
	send sendFunc
	now  func() time.Time
}

func NewEmail(cfg SMTPConfig) *Email {
	return &Email{
		cfg: cfg,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
		),
		send: sendSMTP,
		now:  time.Now,
	}
}

func (e *Email) Name() string { return ChannelEmail }

func (e *Email) Enabled(r Recipient) bool {
	return e.cfg.Configured() && r.Email != ""
}

func (e *Email) Send(ctx context.Context, r Recipient, m Message) error {
	if r.Email == "" {
		return errors.New("no email address configured")
	}
	if !e.cfg.Configured() {
		return errors.New("email server credentials missing in configuration")
	}
	msg, err := e.build(r.Email, m)
	if err != nil {
		return err
	}
	return e.send(ctx, e.cfg, r.Email, msg)
}

// build renders a multipart message: text and HTML alternatives plus the
// screenshot as an attachment when it can be read.
func (e *Email) build(to string, m Message) ([]byte, error) {
	var htmlBody bytes.Buffer
	if err := e.md.Convert([]byte(m.Body), &htmlBody); err != nil {
		return nil, fmt.Errorf("render email body: %w", err)
	}

	var h mail.Header
	h.SetDate(e.now())
	h.SetAddressList("From", []*mail.Address{{Address: e.cfg.From}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject(m.Subject)

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create mail writer: %w", err)
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("create inline part: %w", err)
	}
	if err := writeInline(tw, "text/plain", m.Body); err != nil {
		return nil, err
	}
	if err := writeInline(tw, "text/html", htmlBody.String()); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close inline part: %w", err)
	}

	if m.Screenshot != "" {
		if data, err := os.ReadFile(m.Screenshot); err == nil {
			var ah mail.AttachmentHeader
			ah.Set("Content-Type", "image/png")
			ah.SetFilename(filepath.Base(m.Screenshot))
			w, err := mw.CreateAttachment(ah)
			if err != nil {
				return nil, fmt.Errorf("create attachment: %w", err)
			}
			if _, err := w.Write(data); err != nil {
				return nil, fmt.Errorf("write attachment: %w", err)
			}
			if err := w.Close(); err != nil {
				return nil, fmt.Errorf("close attachment: %w", err)
			}
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close mail writer: %w", err)
	}
	return buf.Bytes(), nil
}

func writeInline(tw *mail.InlineWriter, contentType, body string) error {
	var ih mail.InlineHeader
	ih.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	ih.Set("Content-Transfer-Encoding", "quoted-printable")
	w, err := tw.CreatePart(ih)
	if err != nil {
		return fmt.Errorf("create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return fmt.Errorf("write %s part: %w", contentType, err)
	}
	return w.Close()
}

// sendSMTP uses implicit TLS on port 465 and STARTTLS elsewhere.
func sendSMTP(ctx context.Context, cfg SMTPConfig, to string, msg []byte) error {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	dialer := &net.Dialer{Timeout: 15 * time.Second}
	tlsCfg := &tls.Config{ServerName: cfg.Host}

	var (
		conn net.Conn
		err  error
	)
	if cfg.Port == 465 {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsCfg}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to email server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if cfg.Port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsCfg); err != nil {
				return fmt.Errorf("failed to start TLS: %w", err)
			}
		}
	}
	if cfg.User != "" {
		if err := client.Auth(smtp.PlainAuth("", cfg.User, cfg.Pass, cfg.Host)); err != nil {
			return fmt.Errorf("email authentication failed: %w", err)
		}
	}
	if err := client.Mail(cfg.From); err != nil {
		return fmt.Errorf("email sender refused: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("email recipient refused: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("start data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}
	return client.Quit()
}
