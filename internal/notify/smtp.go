package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/google/uuid"

	"github.com/sungwon/dining-concierge/internal/config"
	"github.com/sungwon/dining-concierge/internal/metrics"
	"github.com/sungwon/dining-concierge/internal/upstream"
)

const smtpService = "smtp"

// SMTP sends email through an SMTP relay, upgrading with STARTTLS when the
// relay offers it and authenticating with AUTH PLAIN when credentials are
// configured.
type SMTP struct {
	addr     string
	from     string
	username string
	password string
	// tlsConfig is used for STARTTLS. Nil derives one from the relay host.
	tlsConfig *tls.Config
	now       func() time.Time
}

// NewSMTP creates an SMTP sender for cfg.SMTPAddr.
func NewSMTP(cfg config.NotifyConfig) *SMTP {
	return &SMTP{
		addr:     cfg.SMTPAddr,
		from:     cfg.Sender,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		now:      time.Now,
	}
}

// Send delivers msg in a single SMTP transaction.
func (s *SMTP) Send(ctx context.Context, msg Message) (rcpt Receipt, err error) {
	start := time.Now()
	defer func() { metrics.ObserveUpstream(smtpService, start, err) }()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return Receipt{}, upstream.Transient(smtpService, "dial", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c := gosmtp.NewClient(conn)
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(s.tlsConfigFor()); err != nil {
			return Receipt{}, classifySMTPError("starttls", err)
		}
	}

	if s.username != "" {
		if err := c.Auth(sasl.NewPlainClient("", s.username, s.password)); err != nil {
			return Receipt{}, classifySMTPError("auth", err)
		}
	}

	messageID := uuid.NewString() + "@" + hostOf(s.from)
	body := s.buildMessage(msg, messageID)
	if err := c.SendMail(s.from, []string{msg.To}, strings.NewReader(body)); err != nil {
		return Receipt{}, classifySMTPError("send", err)
	}

	// The message is accepted once DATA completes; a failed QUIT does not
	// change that.
	_ = c.Quit()

	return Receipt{Provider: smtpService, MessageID: messageID}, nil
}

func (s *SMTP) tlsConfigFor() *tls.Config {
	if s.tlsConfig != nil {
		return s.tlsConfig
	}
	host, _, err := net.SplitHostPort(s.addr)
	if err != nil {
		host = s.addr
	}
	return &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
}

// buildMessage renders msg as an RFC 5322 plain-text message.
func (s *SMTP) buildMessage(msg Message, messageID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", (&mail.Address{Address: s.from}).String())
	fmt.Fprintf(&b, "To: %s\r\n", (&mail.Address{Address: msg.To}).String())
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", s.now().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: <%s>\r\n", messageID)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.String()
}

// classifySMTPError maps SMTP reply codes onto the upstream taxonomy: 5xx is
// permanent, 4xx and connection failures are transient.
func classifySMTPError(op string, err error) *upstream.Error {
	var smtpErr *gosmtp.SMTPError
	if errors.As(err, &smtpErr) {
		e := upstream.Transient(smtpService, op, err)
		e.StatusCode = smtpErr.Code
		if smtpErr.Code >= 500 {
			e.Kind = upstream.KindPermanent
		}
		return e
	}
	return upstream.Transient(smtpService, op, err)
}

func hostOf(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 {
		return addr[i+1:]
	}
	return "localhost"
}
