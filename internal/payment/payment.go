// Package payment is the client for the push-to-pay payment rail: it
// initiates STK-style push requests, submits reversal requests signed with an
// RSA-encrypted security credential, and decodes the rail's three callback
// shapes.
package payment

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/daima/airtime-gateway/internal/httpclient"
)

// Config holds the rail credentials and URLs the client needs. It is
// populated once by cmd/server from environment variables and injected; the
// client never reads the environment itself.
type Config struct {
	ConsumerKey    string
	ConsumerSecret string
	BusinessCode   string
	PassKey        string
	BaseURL        string // e.g. https://sandbox.safaricom.co.ke

	CallbackURL         string
	ReversalResultURL   string
	ReversalTimeoutURL  string

	Initiator              string // username of the rail operator submitting the reversal
	InitiatorPassword      string // raw initiator password, never logged; encrypted per-request
	SecurityCredentialCert []byte // PEM-encoded public certificate used to encrypt InitiatorPassword
}

// Client is the payment rail client.
type Client struct {
	cfg  Config
	http *httpclient.Client
	log  zerolog.Logger
}

func New(cfg Config, httpClient *http.Client, log zerolog.Logger) *Client {
	return &Client{
		cfg: cfg,
		http: &httpclient.Client{
			HTTP:    httpClient,
			BaseURL: cfg.BaseURL,
			Log:     log.With().Str("component", "payment").Logger(),
		},
		log: log.With().Str("component", "payment").Logger(),
	}
}

// generateTimestamp returns the current time in the rail's "YYYYMMDDHHMMSS" format.
func generateTimestamp(now time.Time) string {
	return now.Format("20060102150405")
}

// generatePassword base64-encodes shortcode+passkey+timestamp.
func generatePassword(shortcode, passkey, timestamp string) string {
	plain := shortcode + passkey + timestamp
	return base64.StdEncoding.EncodeToString([]byte(plain))
}

// PushRequest is what the caller supplies to initiate a push-to-pay charge.
type PushRequest struct {
	PayerMSISDN      string // national form, e.g. 0712345678
	Amount           decimal.Decimal
	AccountReference string // destination MSISDN
	TransactionDesc  string
}

// PushResult is the rail's synchronous acknowledgement of a push request.
type PushResult struct {
	MerchantRequestID string
	CheckoutRequestID string // the canonical request-id used as the store key
	ResponseCode      string
	ResponseDesc      string
}

// Push posts an STK-style push request to the rail. The destination phone
// must already be in national "0XXXXXXXXX" form.
func (c *Client) Push(ctx context.Context, token string, req PushRequest) (PushResult, error) {
	now := time.Now()
	timestamp := generateTimestamp(now)
	password := generatePassword(c.cfg.BusinessCode, c.cfg.PassKey, timestamp)

	body := map[string]any{
		"BusinessShortCode": c.cfg.BusinessCode,
		"Password":          password,
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            req.Amount.StringFixed(0),
		"PartyA":            req.PayerMSISDN,
		"PartyB":            c.cfg.BusinessCode,
		"PhoneNumber":       req.PayerMSISDN,
		"CallBackURL":       c.cfg.CallbackURL,
		"AccountReference":  req.AccountReference,
		"TransactionDesc":   req.TransactionDesc,
	}

	resp, err := c.http.DoJSON(ctx, http.MethodPost, "/mpesa/stkpush/v1/processrequest", body, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if err != nil {
		return PushResult{}, fmt.Errorf("payment: push request: %w", err)
	}

	var decoded struct {
		MerchantRequestID   string `json:"MerchantRequestID"`
		CheckoutRequestID   string `json:"CheckoutRequestID"`
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
		ErrorMessage        string `json:"errorMessage"`
	}
	if err := decodeJSON(resp.Body, &decoded); err != nil {
		return PushResult{}, fmt.Errorf("payment: decode push response: %w", err)
	}
	if decoded.ResponseCode != "0" {
		msg := decoded.ErrorMessage
		if msg == "" {
			msg = decoded.ResponseDescription
		}
		return PushResult{}, fmt.Errorf("payment: push rejected: %s", msg)
	}

	return PushResult{
		MerchantRequestID: decoded.MerchantRequestID,
		CheckoutRequestID: decoded.CheckoutRequestID,
		ResponseCode:      decoded.ResponseCode,
		ResponseDesc:      decoded.ResponseDescription,
	}, nil
}

// ReversalRequest is what the caller supplies to reverse a confirmed payment.
type ReversalRequest struct {
	OriginalRequestID string // TransactionID on the rail's side
	Amount            decimal.Decimal
	Remarks           string
	Occasion          string
}

// ReversalResult is the rail's synchronous acknowledgement of a reversal submission.
type ReversalResult struct {
	ConversationID           string
	OriginatorConversationID string
	ResponseCode             string
	ResponseDesc             string
	Accepted                 bool
}

// Reverse posts a TransactionReversal command, signing the security
// credential with RSA against the loaded certificate (internal/payment/security.go).
func (c *Client) Reverse(ctx context.Context, token string, req ReversalRequest) (ReversalResult, error) {
	securityCredential, err := EncryptSecurityCredential(c.cfg.SecurityCredentialCert, c.cfg.InitiatorPassword)
	if err != nil {
		return ReversalResult{}, fmt.Errorf("payment: sign security credential: %w", err)
	}

	body := map[string]any{
		"Initiator":              c.cfg.Initiator,
		"SecurityCredential":     securityCredential,
		"CommandID":              "TransactionReversal",
		"TransactionID":          req.OriginalRequestID,
		"Amount":                 req.Amount.StringFixed(0),
		"ReceiverParty":          c.cfg.BusinessCode,
		"RecieverIdentifierType": "11",
		"ResultURL":              c.cfg.ReversalResultURL,
		"QueueTimeOutURL":        c.cfg.ReversalTimeoutURL,
		"Remarks":                req.Remarks,
		"Occasion":               req.Occasion,
	}

	resp, err := c.http.DoJSON(ctx, http.MethodPost, "/mpesa/reversal/v1/request", body, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if err != nil {
		return ReversalResult{}, fmt.Errorf("payment: reversal request: %w", err)
	}

	var decoded struct {
		ConversationID           string `json:"ConversationID"`
		OriginatorConversationID string `json:"OriginatorConversationID"`
		ResponseCode             string `json:"ResponseCode"`
		ResponseDescription      string `json:"ResponseDescription"`
	}
	if err := decodeJSON(resp.Body, &decoded); err != nil {
		return ReversalResult{}, fmt.Errorf("payment: decode reversal response: %w", err)
	}

	return ReversalResult{
		ConversationID:           decoded.ConversationID,
		OriginatorConversationID: decoded.OriginatorConversationID,
		ResponseCode:             decoded.ResponseCode,
		ResponseDesc:             decoded.ResponseDescription,
		Accepted:                 decoded.ResponseCode == "0",
	}, nil
}
