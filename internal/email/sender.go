package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sethvargo/go-retry"

	"github.com/verdantclimate/verdant-backend/pkg/config"
	pkgerrors "github.com/verdantclimate/verdant-backend/pkg/errors"
	"github.com/verdantclimate/verdant-backend/pkg/logger"
)

type mailClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// Sender delivers receipt emails.
type Sender interface {
	SendReceipt(ctx context.Context, to string, receipt Receipt) error
}

type sender struct {
	client      mailClient
	from        *mail.Email
	maxRetries  uint64
	backoffBase time.Duration
	timeout     time.Duration
	logg        *logger.Logger
}

// NewSender builds the SendGrid-backed receipt sender.
func NewSender(cfg config.SendgridConfig, logg *logger.Logger) (Sender, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeMissingConfig, "sendgrid api key is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &sender{
		client:      sendgrid.NewSendClient(cfg.APIKey),
		from:        mail.NewEmail(cfg.FromName, cfg.DefaultFrom),
		maxRetries:  cfg.MaxRetries,
		backoffBase: 500 * time.Millisecond,
		timeout:     cfg.Timeout,
		logg:        logg,
	}, nil
}

// SendReceipt renders and delivers the receipt, retrying transport failures
// with exponential backoff before surfacing an EmailError.
func (s *sender) SendReceipt(ctx context.Context, to string, receipt Receipt) error {
	address := strings.TrimSpace(to)
	if address == "" {
		return pkgerrors.New(pkgerrors.CodeEmail, "no recipient address for receipt")
	}

	html, err := receipt.Render()
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeEmail, err, "rendering receipt")
	}

	subject := fmt.Sprintf("Your Verdant Climate receipt for order %s", receipt.OrderReference)
	msg := mail.NewSingleEmail(
		s.from,
		subject,
		mail.NewEmail(receipt.BuyerName, address),
		"Thank you for your order. This receipt is best viewed in HTML.",
		html,
	)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	base := s.backoffBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	backoff := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(base))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, sendErr := s.client.SendWithContext(ctx, msg)
		if sendErr != nil {
			return retry.RetryableError(sendErr)
		}
		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("sendgrid returned %d", resp.StatusCode))
		}
		if resp.StatusCode >= 300 {
			// client-side rejection, retrying will not help
			return fmt.Errorf("sendgrid rejected message with %d: %s", resp.StatusCode, resp.Body)
		}
		return nil
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeEmail, err, "sending receipt email")
	}

	s.logg.Info(s.logg.WithOrderReference(ctx, receipt.OrderReference), "receipt email sent")
	return nil
}
