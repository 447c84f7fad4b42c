package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/verdantclimate/verdant-backend/pkg/config"
	"github.com/verdantclimate/verdant-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"

	// MetadataEmailedKey marks a payment whose receipt has already been sent.
	MetadataEmailedKey = "emailed"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// SessionLine is one display line sent to the hosted payment page.
type SessionLine struct {
	Name            string
	Description     string
	UnitAmountCents int64
	Quantity        int64
}

// CreateSessionInput carries everything needed to open a hosted checkout.
type CreateSessionInput struct {
	ReturnURL        string
	Currency         string
	CustomerEmail    string
	ClientReference  string
	Metadata         map[string]string
	Lines            []SessionLine
	TotalAmountCents int64
}

// Session is the gateway session view the rest of the platform consumes.
type Session struct {
	ID              string
	URL             string
	ClientSecret    string
	Status          string
	PaymentStatus   string
	AmountTotal     int64
	Currency        string
	Metadata        map[string]string
	CustomerID      string
	CustomerEmail   string
	CustomerName    string
	ClientReference string
	PaymentIntentID string
	IntentMetadata  map[string]string
	Created         time.Time
}

// ListSessionsInput bounds a single page of the gateway session scan.
type ListSessionsInput struct {
	Limit         int64
	StartingAfter string
}

// Gateway is the payment-provider surface used by checkout, orders and
// the leaderboard. Implemented by Client; mocked in service tests.
type Gateway interface {
	CreateSession(ctx context.Context, in CreateSessionInput) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	MarkReceiptEmailed(ctx context.Context, paymentIntentID string) error
	ListSessions(ctx context.Context, in ListSessionsInput) ([]*Session, bool, error)
	VerifyWebhook(payload []byte, signature string) (stripe.Event, error)
}

// Client wraps Stripe's API client plus env-specific metadata.
type Client struct {
	api           *client.API
	environment   string
	signingSecret string
}

var _ Gateway = (*Client)(nil)

// NewClient initializes Stripe once with the configured secrets and env.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	signingSecret := strings.TrimSpace(cfg.WebhookSecret)
	if signingSecret == "" {
		return nil, errSecretRequired
	}

	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	api := client.New(apiKey, nil)

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("stripe client initialized (%s)", env))
	}

	return &Client{
		api:           api,
		environment:   env,
		signingSecret: signingSecret,
	}, nil
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// CreateSession opens an embedded-mode checkout session with the cart
// mirrored into both session and payment-intent metadata.
func (c *Client) CreateSession(ctx context.Context, in CreateSessionInput) (*Session, error) {
	if c == nil || c.api == nil {
		return nil, errors.New("stripe client not initialized")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:      stripe.String(string(stripe.CheckoutSessionModePayment)),
		UIMode:    stripe.String(string(stripe.CheckoutSessionUIModeEmbedded)),
		ReturnURL: stripe.String(in.ReturnURL),
	}
	params.Context = ctx

	if email := strings.TrimSpace(in.CustomerEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	if ref := strings.TrimSpace(in.ClientReference); ref != "" {
		params.ClientReferenceID = stripe.String(ref)
	}
	if len(in.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(in.Metadata))
		for k, v := range in.Metadata {
			params.Metadata[k] = v
		}
	}

	currency := strings.ToLower(strings.TrimSpace(in.Currency))
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(in.Lines))
	for _, line := range in.Lines {
		qty := line.Quantity
		if qty < 1 {
			qty = 1
		}
		item := &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(qty),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(line.UnitAmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(line.Name),
				},
			},
		}
		if line.Description != "" {
			item.PriceData.ProductData.Description = stripe.String(line.Description)
		}
		lineItems = append(lineItems, item)
	}
	params.LineItems = lineItems

	params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{}
	if len(in.Metadata) > 0 {
		params.PaymentIntentData.Metadata = make(map[string]string, len(in.Metadata))
		for k, v := range in.Metadata {
			params.PaymentIntentData.Metadata[k] = v
		}
	}

	session, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return fromStripeSession(session), nil
}

// GetSession retrieves a session with its payment intent expanded so the
// receipt-emailed marker is visible to callers.
func (c *Client) GetSession(ctx context.Context, id string) (*Session, error) {
	if c == nil || c.api == nil {
		return nil, errors.New("stripe client not initialized")
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")
	params.AddExpand("line_items")

	session, err := c.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: retrieve checkout session: %w", err)
	}
	return fromStripeSession(session), nil
}

// MarkReceiptEmailed flips the emailed marker on the payment intent.
// Checkout sessions are immutable after creation, so the durable flag
// lives on the intent the session resolves to.
func (c *Client) MarkReceiptEmailed(ctx context.Context, paymentIntentID string) error {
	if c == nil || c.api == nil {
		return errors.New("stripe client not initialized")
	}
	if strings.TrimSpace(paymentIntentID) == "" {
		return errors.New("stripe: payment intent id is required")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddMetadata(MetadataEmailedKey, "1")

	if _, err := c.api.PaymentIntents.Update(paymentIntentID, params); err != nil {
		return fmt.Errorf("stripe: mark receipt emailed: %w", err)
	}
	return nil
}

// ListSessions fetches exactly one page of checkout sessions, newest first.
// Callers drive the cursor; auto-pagination is disabled so scans stay bounded.
func (c *Client) ListSessions(ctx context.Context, in ListSessionsInput) ([]*Session, bool, error) {
	if c == nil || c.api == nil {
		return nil, false, errors.New("stripe client not initialized")
	}
	limit := in.Limit
	if limit <= 0 {
		limit = 100
	}
	params := &stripe.CheckoutSessionListParams{}
	params.Context = ctx
	params.Limit = stripe.Int64(limit)
	params.Single = true
	if in.StartingAfter != "" {
		params.StartingAfter = stripe.String(in.StartingAfter)
	}

	iter := c.api.CheckoutSessions.List(params)
	sessions := make([]*Session, 0, limit)
	for iter.Next() {
		sessions = append(sessions, fromStripeSession(iter.CheckoutSession()))
	}
	if err := iter.Err(); err != nil {
		return nil, false, fmt.Errorf("stripe: list checkout sessions: %w", err)
	}
	hasMore := false
	if meta := iter.Meta(); meta != nil {
		hasMore = meta.HasMore
	}
	return sessions, hasMore, nil
}

// VerifyWebhook validates the signature and decodes the event payload.
func (c *Client) VerifyWebhook(payload []byte, signature string) (stripe.Event, error) {
	if c == nil {
		return stripe.Event{}, errors.New("stripe client not initialized")
	}
	event, err := webhook.ConstructEvent(payload, signature, c.signingSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("stripe: verify webhook signature: %w", err)
	}
	return event, nil
}

func fromStripeSession(s *stripe.CheckoutSession) *Session {
	if s == nil {
		return nil
	}
	out := &Session{
		ID:              s.ID,
		URL:             s.URL,
		ClientSecret:    s.ClientSecret,
		Status:          string(s.Status),
		PaymentStatus:   string(s.PaymentStatus),
		AmountTotal:     s.AmountTotal,
		Currency:        strings.ToLower(string(s.Currency)),
		Metadata:        s.Metadata,
		ClientReference: s.ClientReferenceID,
		Created:         time.Unix(s.Created, 0).UTC(),
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.CustomerDetails != nil {
		out.CustomerEmail = s.CustomerDetails.Email
		out.CustomerName = s.CustomerDetails.Name
	}
	if out.CustomerEmail == "" {
		out.CustomerEmail = s.CustomerEmail
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
		out.IntentMetadata = s.PaymentIntent.Metadata
	}
	return out
}

// ReceiptEmailed reports whether the session's payment already carries
// the emailed marker.
func (s *Session) ReceiptEmailed() bool {
	if s == nil {
		return false
	}
	if s.IntentMetadata != nil && s.IntentMetadata[MetadataEmailedKey] == "1" {
		return true
	}
	return s.Metadata != nil && s.Metadata[MetadataEmailedKey] == "1"
}

// Paid reports whether payment was collected. A no_payment_required session
// completes without collecting money and must not confirm an order.
func (s *Session) Paid() bool {
	if s == nil {
		return false
	}
	return stripe.CheckoutSessionPaymentStatus(s.PaymentStatus) == stripe.CheckoutSessionPaymentStatusPaid
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a test secret key (sk_test/rk_test)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a live secret key (sk_live/rk_live)", liveEnv)
	default:
		return errInvalidStripeEnv
	}
}
