package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"syscall"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

// MailTransport is the only boundary the delivery retry logic talks to.
// Implementations return an error the ClassifyError function understands.
type MailTransport interface {
	Send(ctx context.Context, to, subject, html string) error
	Name() string
}

// ErrNotConfigured is returned when the provider credentials are missing
var ErrNotConfigured = errors.New("email provider not configured")

// DeliveryErrorClass says what the delivery engine should do with a failure
type DeliveryErrorClass int

const (
	ClassNone DeliveryErrorClass = iota
	ClassRetryable
	ClassPermanent
	ClassNotConfigured
)

func (c DeliveryErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassRetryable:
		return "retryable"
	case ClassPermanent:
		return "permanent"
	case ClassNotConfigured:
		return "not_configured"
	}
	return "unknown"
}

// StatusError is a provider reply with a non-2xx HTTP status
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %v", e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// DeliveryError carries a classification decided by the transport itself,
// for protocols whose failures are not HTTP statuses.
type DeliveryError struct {
	Class DeliveryErrorClass
	Err   error
}

func (e *DeliveryError) Error() string {
	return e.Err.Error()
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// ClassifyError decides whether a send failure is worth retrying. 429 and 5xx
// replies and connection level failures (reset, refused, timeout, DNS) are
// retryable; other 4xx replies and unknown errors are permanent.
func ClassifyError(err error) DeliveryErrorClass {
	if err == nil {
		return ClassNone
	}
	if errors.Is(err, ErrNotConfigured) {
		return ClassNotConfigured
	}

	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Class
	}

	var se *StatusError
	if errors.As(err, &se) {
		if se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500 {
			return ClassRetryable
		}
		return ClassPermanent
	}

	if errors.Is(err, context.Canceled) {
		return ClassPermanent
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassRetryable
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) ||
		errors.Is(err, context.DeadlineExceeded) {
		return ClassRetryable
	}
	return ClassPermanent
}

// ResendTransport sends through the Resend HTTP API
type ResendTransport struct {
	APIKey  string
	From    string
	Timeout time.Duration
	// Base is the HTTP transport underneath the resend client. Nil means
	// http.DefaultTransport.
	Base http.RoundTripper
}

func NewResendTransport(apiKey, fromName, fromEmail string) *ResendTransport {
	return &ResendTransport{
		APIKey:  apiKey,
		From:    formatFrom(fromName, fromEmail),
		Timeout: 15 * time.Second,
	}
}

func (t *ResendTransport) Name() string {
	return "resend"
}

func (t *ResendTransport) Send(ctx context.Context, to, subject, html string) error {
	if t.APIKey == "" {
		return ErrNotConfigured
	}

	// A client per send so the recorded status belongs to this request only.
	recorder := &statusRecorder{next: t.Base}
	client := resend.NewCustomClient(&http.Client{Transport: recorder, Timeout: t.Timeout}, t.APIKey)

	_, err := client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    t.From,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	})
	if err == nil {
		return nil
	}
	if recorder.status >= 300 {
		return &StatusError{StatusCode: recorder.status, Err: err}
	}
	if recorder.status == 0 && !errors.Is(err, context.Canceled) {
		// never got a response: connection level failure
		return &DeliveryError{Class: ClassRetryable, Err: fmt.Errorf("resend: %w", err)}
	}
	return fmt.Errorf("resend: %w", err)
}

// statusRecorder remembers the status code of the last response it carried
type statusRecorder struct {
	next   http.RoundTripper
	status int
}

func (r *statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	next := r.next
	if next == nil {
		next = http.DefaultTransport
	}
	resp, err := next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	r.status = resp.StatusCode
	return resp, nil
}

// SMTPTransport sends through an SMTP relay
type SMTPTransport struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func NewSMTPTransport(host string, port int, username, password, fromName, fromEmail string) *SMTPTransport {
	return &SMTPTransport{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     formatFrom(fromName, fromEmail),
	}
}

func (t *SMTPTransport) Name() string {
	return "smtp"
}

func (t *SMTPTransport) Send(ctx context.Context, to, subject, html string) error {
	if t.Host == "" {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", t.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", html)

	d := gomail.NewDialer(t.Host, t.Port, t.Username, t.Password)
	if err := d.DialAndSend(m); err != nil {
		return classifySMTPError(err)
	}
	return nil
}

// classifySMTPError maps SMTP reply codes: 4xx is a temporary refusal worth
// retrying, 5xx is final.
func classifySMTPError(err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		class := ClassPermanent
		if tpErr.Code >= 400 && tpErr.Code < 500 {
			class = ClassRetryable
		}
		return &DeliveryError{Class: class, Err: fmt.Errorf("smtp: %w", err)}
	}
	return fmt.Errorf("smtp: %w", err)
}

// ConsoleTransport logs emails instead of sending them (EMAIL_TEST_MODE)
type ConsoleTransport struct {
	Log zerolog.Logger
}

func (t *ConsoleTransport) Name() string {
	return "console"
}

func (t *ConsoleTransport) Send(ctx context.Context, to, subject, html string) error {
	t.Log.Info().
		Str("to", to).
		Str("subject", subject).
		Str("html", truncate(html, 500)).
		Msg("email logged (test mode, not sent)")
	return nil
}

func formatFrom(name, email string) string {
	if strings.TrimSpace(name) == "" {
		return email
	}
	return fmt.Sprintf("%s <%s>", name, email)
}

// truncate truncates a string to a maximum length
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
