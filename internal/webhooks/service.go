package webhooks

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v78"

	"github.com/verdantclimate/verdant-backend/internal/orders"
	pkgerrors "github.com/verdantclimate/verdant-backend/pkg/errors"
	"github.com/verdantclimate/verdant-backend/pkg/logger"
	"github.com/verdantclimate/verdant-backend/pkg/metrics"
)

type orderVerifier interface {
	Verify(ctx context.Context, sessionID string) (*orders.VerifyResult, error)
}

type ServiceParams struct {
	Orders  orderVerifier
	Logger  *logger.Logger
	Metrics *metrics.StoreMetrics
}

// Service routes verified gateway events into the order pipeline. The
// checkout.session.completed path reuses the same confirmation flow the
// verify endpoint runs, so a webhook and a browser poll converge on one
// persisted order.
type Service struct {
	orders  orderVerifier
	logg    *logger.Logger
	metrics *metrics.StoreMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		orders:  params.Orders,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	s.metrics.IncWebhookEvent(string(event.Type))

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode checkout session event")
		}
		if session.ID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "checkout session id missing")
		}
		result, err := s.orders.Verify(ctx, session.ID)
		if err != nil {
			return err
		}
		logCtx := s.logg.WithFields(s.logg.WithSessionID(ctx, session.ID), map[string]any{
			"paid":           result.Paid,
			"payment_status": result.PaymentStatus,
		})
		s.logg.Info(logCtx, "webhook confirmed checkout session")
		return nil
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed,
		stripe.EventTypeCheckoutSessionExpired:
		s.logg.Info(s.logg.WithField(ctx, "event_type", string(event.Type)), "checkout session did not complete")
		return nil
	default:
		return nil
	}
}
