package payment

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// PaymentCallback is the decoded shape of the rail's STK payment
// notification. The rail only includes CallbackMetadata.Item entries when the
// payment succeeded, and the set of items present is not guaranteed. The
// decoder below tolerates any subset being missing rather than panicking.
type PaymentCallback struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string

	Amount            decimal.Decimal
	MpesaReceiptNumber string
	TransactionDate    string
	PhoneNumber        string
}

// DecodePaymentCallback parses the rail's STK callback envelope:
//
//	{"Body":{"stkCallback":{"MerchantRequestID":"...","CheckoutRequestID":"...",
//	  "ResultCode":0,"ResultDesc":"...",
//	  "CallbackMetadata":{"Item":[{"Name":"Amount","Value":1},...]}}}}
func DecodePaymentCallback(raw []byte) (PaymentCallback, error) {
	var envelope struct {
		Body struct {
			StkCallback struct {
				MerchantRequestID string `json:"MerchantRequestID"`
				CheckoutRequestID string `json:"CheckoutRequestID"`
				ResultCode        int    `json:"ResultCode"`
				ResultDesc        string `json:"ResultDesc"`
				CallbackMetadata  struct {
					Item []struct {
						Name  string `json:"Name"`
						Value any    `json:"Value"`
					} `json:"Item"`
				} `json:"CallbackMetadata"`
			} `json:"stkCallback"`
		} `json:"Body"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return PaymentCallback{}, fmt.Errorf("payment: decode callback envelope: %w", err)
	}

	cb := envelope.Body.StkCallback
	out := PaymentCallback{
		MerchantRequestID: cb.MerchantRequestID,
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        cb.ResultCode,
		ResultDesc:        cb.ResultDesc,
	}

	for _, item := range cb.CallbackMetadata.Item {
		switch item.Name {
		case "Amount":
			out.Amount = toDecimal(item.Value)
		case "MpesaReceiptNumber":
			out.MpesaReceiptNumber, _ = item.Value.(string)
		case "TransactionDate":
			out.TransactionDate = toDisplayString(item.Value)
		case "PhoneNumber":
			out.PhoneNumber = toDisplayString(item.Value)
		}
	}
	return out, nil
}

// Succeeded reports whether the rail confirmed the payment.
func (c PaymentCallback) Succeeded() bool { return c.ResultCode == 0 }

// ReversalCallback is the decoded shape of a reversal result or timeout
// notification. Both share the same envelope; ResultCode distinguishes
// success from failure. A timeout notification is handled separately from a
// failed result (REVERSAL_TIMED_OUT rather than REVERSAL_FAILED_CONFIRMATION).
type ReversalCallback struct {
	ConversationID           string
	OriginatorConversationID string
	ResultCode               int
	ResultDesc               string
	TransactionID            string
}

// DecodeReversalCallback parses the rail's result/timeout envelope:
//
//	{"Result":{"ConversationID":"...","OriginatorConversationID":"...",
//	  "ResultCode":0,"ResultDesc":"...",
//	  "ResultParameters":{"ResultParameter":[{"Key":"TransactionID","Value":"..."}]}}}
func DecodeReversalCallback(raw []byte) (ReversalCallback, error) {
	var envelope struct {
		Result struct {
			ConversationID           string `json:"ConversationID"`
			OriginatorConversationID string `json:"OriginatorConversationID"`
			ResultCode               int    `json:"ResultCode"`
			ResultDesc               string `json:"ResultDesc"`
			ResultParameters         struct {
				ResultParameter []struct {
					Key   string `json:"Key"`
					Value any    `json:"Value"`
				} `json:"ResultParameter"`
			} `json:"ResultParameters"`
		} `json:"Result"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return ReversalCallback{}, fmt.Errorf("payment: decode reversal callback: %w", err)
	}

	out := ReversalCallback{
		ConversationID:           envelope.Result.ConversationID,
		OriginatorConversationID: envelope.Result.OriginatorConversationID,
		ResultCode:               envelope.Result.ResultCode,
		ResultDesc:               envelope.Result.ResultDesc,
	}
	for _, p := range envelope.Result.ResultParameters.ResultParameter {
		if p.Key == "TransactionID" {
			out.TransactionID = toDisplayString(p.Value)
		}
	}
	return out, nil
}

// Succeeded reports whether the rail confirmed the reversal.
func (c ReversalCallback) Succeeded() bool { return c.ResultCode == 0 }

func toDecimal(v any) decimal.Decimal {
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t)
	case string:
		d, err := decimal.NewFromString(t)
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

func toDisplayString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return decimal.NewFromFloat(t).String()
	default:
		if t == nil {
			return ""
		}
		return fmt.Sprintf("%v", t)
	}
}
