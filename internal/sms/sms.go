// Package sms is the guaranteed-delivery text-message channel used when chat
// UI automation fails. It wraps the Twilio API for direct sends and falls
// back to opening the platform's message composer when no Twilio credentials
// are configured or the carrier rejects the send.
package sms

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/ortholink/callbridge/internal/models"
)

// TextSender sends a plain text message directly.
type TextSender interface {
	SendTextMessage(ctx context.Context, to string, body string) error
}

// ComposerOpener opens a pre-filled message-composition surface.
type ComposerOpener interface {
	OpenComposer(ctx context.Context, uri string) error
}

// Opts holds configuration options for the Twilio SMS client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// Option defines a configuration option for the Twilio SMS client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the sending number in E.164 format.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// Client wraps the Twilio REST API for direct SMS delivery.
type Client struct {
	client *twilio.RestClient
	from   string
}

// NewClient creates a Twilio SMS client, falling back to the
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_SMS_FROM environment
// variables for unset options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_SMS_FROM")
	}

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("from number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Client{client: client, from: cfg.FromNumber}, nil
}

// SendTextMessage sends an SMS via the Twilio API.
func (c *Client) SendTextMessage(ctx context.Context, to string, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(c.from)
	params.SetBody(body)

	_, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("SMS send failed", "to", to, "error", err)
		return fmt.Errorf("failed to send SMS to %s: %w", to, err)
	}
	slog.Debug("SMS sent", "to", to)
	return nil
}

// ExecOpener opens composer URIs through the desktop's URI handler.
type ExecOpener struct{}

// OpenComposer hands the URI to xdg-open.
func (ExecOpener) OpenComposer(ctx context.Context, uri string) error {
	cmd := exec.CommandContext(ctx, "xdg-open", uri)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open composer: %w", err)
	}
	// The handler owns the surface from here; don't wait on it.
	go func() { _ = cmd.Wait() }()
	return nil
}

// Service composes direct sending and the composer fallback. It satisfies
// the automation package's fallback interface.
type Service struct {
	sender TextSender
	opener ComposerOpener
}

// NewService creates the fallback channel. sender may be nil when no Twilio
// credentials are configured; every delivery then goes through the composer.
func NewService(sender TextSender, opener ComposerOpener) *Service {
	if opener == nil {
		opener = ExecOpener{}
	}
	return &Service{sender: sender, opener: opener}
}

// CanSendDirect reports whether direct SMS delivery is configured.
func (s *Service) CanSendDirect() bool {
	return s.sender != nil
}

// SendDirectMessage sends the message as an SMS to the canonical phone
// number.
func (s *Service) SendDirectMessage(ctx context.Context, phone, message string) error {
	if s.sender == nil {
		return fmt.Errorf("no direct SMS sender configured")
	}
	to, err := E164(phone)
	if err != nil {
		return err
	}
	return s.sender.SendTextMessage(ctx, to, message)
}

// OpenMessageComposer opens a pre-filled sms: composer for the recipient.
func (s *Service) OpenMessageComposer(ctx context.Context, phone, message string) error {
	to, err := E164(phone)
	if err != nil {
		return err
	}
	uri := ComposerURI(to, message)
	if err := s.opener.OpenComposer(ctx, uri); err != nil {
		return err
	}
	slog.Info("SMS composer opened", "to", to)
	return nil
}

// ComposerURI builds the sms: deep link with a pre-filled body.
func ComposerURI(to, body string) string {
	return fmt.Sprintf("sms:%s?body=%s", to, url.QueryEscape(body))
}

// E164 converts a canonical national number to E.164 form. Numbers already
// carrying a plus sign pass through unchanged.
func E164(phone string) (string, error) {
	if strings.HasPrefix(phone, "+") {
		return phone, nil
	}
	canonical, err := models.CanonicalizePhone(phone)
	if err != nil {
		return "", err
	}
	if len(canonical) == models.NationalNumberDigits {
		return "+" + models.CountryPrefix + canonical, nil
	}
	return "+" + canonical, nil
}
