package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/sercop/facilitador-api/internal/config"
	"github.com/sercop/facilitador-api/internal/logging"
)

const (
	subjectVerification = "Código de Verificación - SERCOP"
	subjectResend       = "Nuevo Código de Verificación"
)

// envelope is a fully rendered message ready for delivery.
type envelope struct {
	from string
	to   string
	msg  []byte
}

// Service mails verification codes over SMTP. Deliveries go through a circuit
// breaker so an unreachable relay fails fast instead of holding requests for
// the whole timeout.
type Service struct {
	cfg     config.EmailConfig
	breaker *gobreaker.CircuitBreaker
	send    func(ctx context.Context, env envelope) error
}

func NewService(cfg config.EmailConfig, logger *logging.Logger) *Service {
	s := &Service{cfg: cfg}
	s.send = s.sendSMTP
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return s
}

// SendVerificationCode mails the code issued at registration.
func (s *Service) SendVerificationCode(ctx context.Context, toEmail, code string) error {
	return s.deliverCode(ctx, toEmail, subjectVerification, "Verifica tu correo electrónico", code)
}

// ResendVerificationCode mails a replacement code.
func (s *Service) ResendVerificationCode(ctx context.Context, toEmail, code string) error {
	return s.deliverCode(ctx, toEmail, subjectResend, "Tu nuevo código de verificación", code)
}

func (s *Service) deliverCode(ctx context.Context, toEmail, subject, heading, code string) error {
	logger := logging.GetLoggerFromContext(ctx)

	body, err := renderCodeEmail(heading, code)
	if err != nil {
		logger.Error("failed to render email template", "error", err)
		return fmt.Errorf("render template: %w", err)
	}

	env := envelope{
		from: s.cfg.FromAddress,
		to:   toEmail,
		msg:  buildMessage(s.cfg.FromAddress, toEmail, subject, body),
	}

	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.send(ctx, env)
	})
	if err != nil {
		logger.Error("failed to send verification email", "email", toEmail, "error", err)
		return fmt.Errorf("send email: %w", err)
	}

	logger.Info("verification email sent", "email", toEmail)
	return nil
}

func buildMessage(from, to, subject, body string) []byte {
	return []byte(fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n"+
			"%s\r\n",
		from, to, mime.QEncoding.Encode("UTF-8", subject), body,
	))
}

// sendSMTP delivers env honouring ctx for dialing and as the I/O deadline.
// SMTPSecure selects implicit TLS; otherwise STARTTLS is used when offered.
func (s *Service) sendSMTP(ctx context.Context, env envelope) error {
	if strings.ContainsAny(env.to, "\r\n") {
		return fmt.Errorf("invalid recipient address")
	}

	host := s.cfg.SMTPHost
	addr := s.cfg.Address()
	tlsConfig := &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}

	var (
		conn net.Conn
		err  error
	)
	if s.cfg.SMTPSecure {
		dialer := &tls.Dialer{Config: tlsConfig}
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	} else {
		var dialer net.Dialer
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if !s.cfg.SMTPSecure {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}

	if s.cfg.SMTPUser != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", s.cfg.SMTPUser, s.cfg.SMTPPassword, host)); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}

	if err := c.Mail(env.from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(env.to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(env.msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}

	return c.Quit()
}
