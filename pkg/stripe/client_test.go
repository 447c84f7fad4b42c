package stripe

import (
	"testing"

	stripelib "github.com/stripe/stripe-go/v78"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAPIKey(t *testing.T) {
	require.NoError(t, validateAPIKey(testEnv, "sk_test_abc"))
	require.NoError(t, validateAPIKey(testEnv, "rk_test_abc"))
	require.Error(t, validateAPIKey(testEnv, "sk_live_abc"))

	require.NoError(t, validateAPIKey(liveEnv, "sk_live_abc"))
	require.Error(t, validateAPIKey(liveEnv, "sk_test_abc"))
}

func TestNormalizeEnv(t *testing.T) {
	env, err := normalizeEnv("")
	require.NoError(t, err)
	assert.Equal(t, testEnv, env)

	env, err = normalizeEnv("  Live ")
	require.NoError(t, err)
	assert.Equal(t, liveEnv, env)

	_, err = normalizeEnv("staging")
	require.Error(t, err)
}

func TestSessionPaid(t *testing.T) {
	paid := &Session{PaymentStatus: string(stripelib.CheckoutSessionPaymentStatusPaid)}
	assert.True(t, paid.Paid())

	free := &Session{PaymentStatus: string(stripelib.CheckoutSessionPaymentStatusNoPaymentRequired)}
	assert.False(t, free.Paid())

	unpaid := &Session{PaymentStatus: string(stripelib.CheckoutSessionPaymentStatusUnpaid)}
	assert.False(t, unpaid.Paid())

	var nilSession *Session
	assert.False(t, nilSession.Paid())
}

func TestSessionReceiptEmailed(t *testing.T) {
	assert.False(t, (&Session{}).ReceiptEmailed())
	assert.False(t, (&Session{Metadata: map[string]string{MetadataEmailedKey: "0"}}).ReceiptEmailed())
	assert.True(t, (&Session{Metadata: map[string]string{MetadataEmailedKey: "1"}}).ReceiptEmailed())
	assert.True(t, (&Session{IntentMetadata: map[string]string{MetadataEmailedKey: "1"}}).ReceiptEmailed())
}
