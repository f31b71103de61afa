// Package notify delivers out-of-band notification events to human leaders.
//
// This file implements SMS delivery through the Twilio API.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/haventree/shepherd/internal/models"
)

// smsSender is the minimal Twilio surface used here. Satisfied by the real
// REST client and by test mocks.
type smsSender interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// restClientSender adapts *twilio.RestClient to smsSender.
type restClientSender struct {
	client *twilio.RestClient
}

func (r *restClientSender) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	return r.client.Api.CreateMessage(params)
}

// RecipientResolver maps a notification to the phone numbers it should reach.
// A crisis broadcast resolves to every active leader's number.
type RecipientResolver func(ctx context.Context, n models.Notification) ([]string, error)

// Opts holds configuration options for the Twilio notifier.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	Resolver   RecipientResolver
}

// Option defines a configuration option for the Twilio notifier.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the sending phone number.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// WithRecipientResolver sets the notification-to-phone-numbers resolver.
func WithRecipientResolver(r RecipientResolver) Option {
	return func(o *Opts) { o.Resolver = r }
}

// TwilioNotifier delivers notification events as SMS messages.
type TwilioNotifier struct {
	sender   smsSender
	from     string
	resolver RecipientResolver
}

// NewTwilioNotifier creates a Twilio-backed notifier. Credentials fall back to
// the TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, and TWILIO_FROM_NUMBER
// environment variables.
func NewTwilioNotifier(opts ...Option) (*TwilioNotifier, error) {
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
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio notifier config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromNumber_set", cfg.FromNumber != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("from number must be provided")
	}
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("recipient resolver must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &TwilioNotifier{
		sender:   &restClientSender{client: client},
		from:     cfg.FromNumber,
		resolver: cfg.Resolver,
	}, nil
}

// Notify resolves the event to phone numbers and sends one SMS per recipient.
// Delivery failures are logged per recipient; the first error is returned
// after all sends were attempted.
func (t *TwilioNotifier) Notify(ctx context.Context, n models.Notification) error {
	recipients, err := t.resolver(ctx, n)
	if err != nil {
		slog.Error("TwilioNotifier.Notify: resolver failed", "error", err, "type", n.Type)
		return fmt.Errorf("failed to resolve recipients: %w", err)
	}
	if len(recipients) == 0 {
		slog.Debug("TwilioNotifier.Notify: no recipients", "type", n.Type, "leaderID", n.LeaderID)
		return nil
	}

	var firstErr error
	for _, to := range recipients {
		params := &twilioApi.CreateMessageParams{}
		params.SetTo(to)
		params.SetFrom(t.from)
		params.SetBody(n.Message)
		if _, err := t.sender.CreateMessage(params); err != nil {
			slog.Error("TwilioNotifier.Notify: send failed", "to", to, "type", n.Type, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to send notification to %s: %w", to, err)
			}
			continue
		}
		slog.Debug("TwilioNotifier.Notify: sent", "to", to, "type", n.Type)
	}
	return firstErr
}

// Stop is a no-op for the Twilio notifier.
func (t *TwilioNotifier) Stop() error { return nil }
