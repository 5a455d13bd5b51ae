package payment

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTimestampFormat(t *testing.T) {
	now := time.Date(2026, 7, 30, 13, 4, 5, 0, time.UTC)
	assert.Equal(t, "20260730130405", generateTimestamp(now))
}

func TestGeneratePasswordIsDeterministic(t *testing.T) {
	p1 := generatePassword("174379", "passkey", "20260730130405")
	p2 := generatePassword("174379", "passkey", "20260730130405")
	assert.Equal(t, p1, p2)
	assert.NotEmpty(t, p1)
}

func TestDecodePaymentCallback_SuccessWithAllItems(t *testing.T) {
	raw := []byte(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "m-1",
				"CheckoutRequestID": "c-1",
				"ResultCode": 0,
				"ResultDesc": "The service request is processed successfully.",
				"CallbackMetadata": {
					"Item": [
						{"Name": "Amount", "Value": 100},
						{"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
						{"Name": "TransactionDate", "Value": 20260730130405},
						{"Name": "PhoneNumber", "Value": 254712345678}
					]
				}
			}
		}
	}`)

	cb, err := DecodePaymentCallback(raw)
	require.NoError(t, err)
	assert.True(t, cb.Succeeded())
	assert.Equal(t, "c-1", cb.CheckoutRequestID)
	assert.True(t, cb.Amount.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "NLJ7RT61SV", cb.MpesaReceiptNumber)
	assert.Equal(t, "254712345678", cb.PhoneNumber)
}

func TestDecodePaymentCallback_FailureHasNoMetadata(t *testing.T) {
	raw := []byte(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "m-2",
				"CheckoutRequestID": "c-2",
				"ResultCode": 1032,
				"ResultDesc": "Request cancelled by user"
			}
		}
	}`)

	cb, err := DecodePaymentCallback(raw)
	require.NoError(t, err)
	assert.False(t, cb.Succeeded())
	assert.Equal(t, 1032, cb.ResultCode)
	assert.True(t, cb.Amount.IsZero())
}

func TestDecodePaymentCallback_ToleratesPartialMetadata(t *testing.T) {
	raw := []byte(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "m-3",
				"CheckoutRequestID": "c-3",
				"ResultCode": 0,
				"ResultDesc": "ok",
				"CallbackMetadata": {
					"Item": [
						{"Name": "Amount", "Value": 50}
					]
				}
			}
		}
	}`)

	cb, err := DecodePaymentCallback(raw)
	require.NoError(t, err)
	assert.True(t, cb.Amount.Equal(decimal.NewFromInt(50)))
	assert.Empty(t, cb.MpesaReceiptNumber)
	assert.Empty(t, cb.PhoneNumber)
}

func TestDecodeReversalCallback_Success(t *testing.T) {
	raw := []byte(`{
		"Result": {
			"ConversationID": "conv-1",
			"OriginatorConversationID": "orig-1",
			"ResultCode": 0,
			"ResultDesc": "The service request has been accepted successfully",
			"ResultParameters": {
				"ResultParameter": [
					{"Key": "TransactionID", "Value": "LKXXXX1234"},
					{"Key": "DebitAccountBalance", "Value": "Working Account|KES|..."}
				]
			}
		}
	}`)

	rc, err := DecodeReversalCallback(raw)
	require.NoError(t, err)
	assert.True(t, rc.Succeeded())
	assert.Equal(t, "LKXXXX1234", rc.TransactionID)
}

func TestDecodeReversalCallback_TimeoutHasNoParameters(t *testing.T) {
	raw := []byte(`{
		"Result": {
			"ConversationID": "conv-2",
			"OriginatorConversationID": "orig-2",
			"ResultCode": 1,
			"ResultDesc": "Timeout"
		}
	}`)

	rc, err := DecodeReversalCallback(raw)
	require.NoError(t, err)
	assert.False(t, rc.Succeeded())
	assert.Empty(t, rc.TransactionID)
}
