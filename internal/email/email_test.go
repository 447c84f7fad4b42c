package email

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/verdantclimate/verdant-backend/internal/pricing"
	pkgerrors "github.com/verdantclimate/verdant-backend/pkg/errors"
	"github.com/verdantclimate/verdant-backend/pkg/logger"
)

func testReceipt() Receipt {
	return Receipt{
		OrderReference: "ref-123",
		BuyerName:      "Ada Lovelace",
		BuyerEmail:     "ada@example.com",
		Currency:       "eur",
		Lines: []pricing.LineItem{
			{Name: "Carbon offset (premium)", UnitAmountCents: 2000, Quantity: 5},
			{Name: "Printed gift card", UnitAmountCents: 490, Quantity: 1},
		},
		TotalCents: 10490,
	}
}

func TestReceiptRender(t *testing.T) {
	html, err := testReceipt().Render()
	require.NoError(t, err)

	assert.Contains(t, html, "ref-123")
	assert.Contains(t, html, "Carbon offset (premium)")
	assert.Contains(t, html, "100.00 EUR")
	assert.Contains(t, html, "104.90 EUR")
	assert.Contains(t, html, "Ada Lovelace")
}

func TestReceiptRenderEscapesHTML(t *testing.T) {
	r := testReceipt()
	r.BuyerName = `<script>alert("x")</script>`
	html, err := r.Render()
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
}

func TestFormatAmountLocaleSeparators(t *testing.T) {
	assert.Equal(t, "1,234,567.89 EUR", FormatAmount(123456789, "eur", language.English))
	assert.Equal(t, "1.234.567,89 EUR", FormatAmount(123456789, "eur", language.German))
}

type fakeMailClient struct {
	responses   []*rest.Response
	errs        []error
	calls       int
	lastSubject string
}

func (f *fakeMailClient) SendWithContext(_ context.Context, msg *mail.SGMailV3) (*rest.Response, error) {
	f.lastSubject = msg.Subject
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return &rest.Response{StatusCode: 202}, nil
}

func newTestSender(client mailClient) *sender {
	return &sender{
		client:      client,
		from:        mail.NewEmail("Verdant Climate", "receipts@verdant.earth"),
		maxRetries:  3,
		backoffBase: time.Millisecond,
		timeout:     time.Second,
		logg:        logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	}
}

func TestSendReceiptSuccess(t *testing.T) {
	client := &fakeMailClient{}
	s := newTestSender(client)

	err := s.SendReceipt(context.Background(), "ada@example.com", testReceipt())
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)
	assert.Equal(t, "Your Verdant Climate receipt for order ref-123", client.lastSubject)
}

func TestSendReceiptRetriesServerErrors(t *testing.T) {
	client := &fakeMailClient{responses: []*rest.Response{
		{StatusCode: 503},
		{StatusCode: 202},
	}}
	s := newTestSender(client)

	err := s.SendReceipt(context.Background(), "ada@example.com", testReceipt())
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls)
}

func TestSendReceiptPermanentRejectionNotRetried(t *testing.T) {
	client := &fakeMailClient{responses: []*rest.Response{
		{StatusCode: 400, Body: "bad payload"},
	}}
	s := newTestSender(client)

	err := s.SendReceipt(context.Background(), "ada@example.com", testReceipt())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeEmail, pkgerrors.As(err).Code())
	assert.Equal(t, 1, client.calls)
}

func TestSendReceiptGivesUpAfterMaxRetries(t *testing.T) {
	client := &fakeMailClient{errs: []error{
		fmt.Errorf("dial timeout"),
		fmt.Errorf("dial timeout"),
		fmt.Errorf("dial timeout"),
		fmt.Errorf("dial timeout"),
	}}
	s := newTestSender(client)

	err := s.SendReceipt(context.Background(), "ada@example.com", testReceipt())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeEmail, pkgerrors.As(err).Code())
	// initial attempt + 3 retries
	assert.Equal(t, 4, client.calls)
}

func TestSendReceiptRequiresRecipient(t *testing.T) {
	s := newTestSender(&fakeMailClient{})
	err := s.SendReceipt(context.Background(), "  ", testReceipt())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeEmail, pkgerrors.As(err).Code())
}
