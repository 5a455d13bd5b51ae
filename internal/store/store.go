// Package store is the durable transaction store: six logical collections
// (requests, transactions, sales, errors, reconciliations, bonus history)
// keyed by the payment rail's request id for O(1) callback matching.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/daima/airtime-gateway/internal/bonus"
	"github.com/daima/airtime-gateway/internal/carrier"
)

// Status is a lifecycle engine state. It lives here, not in
// internal/lifecycle, so the store can persist and query it without a cycle.
type Status string

const (
	StatusPushInitiated               Status = "PUSH_INITIATED"
	StatusMpesaPaymentFailed          Status = "MPESA_PAYMENT_FAILED"
	StatusReceivedPendingFulfillment  Status = "RECEIVED_PENDING_FULFILLMENT"
	StatusFulfillmentInProgress       Status = "FULFILLMENT_IN_PROGRESS"
	StatusCompletedAndFulfilled       Status = "COMPLETED_AND_FULFILLED"
	StatusReceivedFulfillmentFailed   Status = "RECEIVED_FULFILLMENT_FAILED"
	StatusReversalPendingConfirmation Status = "REVERSAL_PENDING_CONFIRMATION"
	StatusReversalInitiationFailed    Status = "REVERSAL_INITIATION_FAILED"
	StatusReversedSuccessfully        Status = "REVERSED_SUCCESSFULLY"
	StatusReversalFailedConfirmation  Status = "REVERSAL_FAILED_CONFIRMATION"
	StatusReversalTimedOut            Status = "REVERSAL_TIMED_OUT"
	StatusCriticalFulfillmentError    Status = "CRITICAL_FULFILLMENT_ERROR"
)

// ErrStatePrecondition is returned when a transition's expected pre-state
// does not match the persisted state. This is the idempotency guard that lets
// a duplicate callback delivery be treated as a no-op.
var ErrStatePrecondition = errors.New("store: transaction is not in the expected state")

// ErrNotFound is returned when a lookup by request-id finds nothing.
var ErrNotFound = errors.New("store: not found")

// Request is the frozen record of an initiation.
type Request struct {
	RequestID          string
	PayerMSISDN        string
	DestinationMSISDN  string
	Carrier            carrier.Carrier
	RequestedAmount    decimal.Decimal
	InitiatedAt        time.Time
	PayloadSnapshot    string
}

// Transaction is the mutable lifecycle record keyed by request id.
type Transaction struct {
	RequestID            string
	Status               Status
	PaymentReceipt       string
	AmountReceived       decimal.Decimal
	FulfillmentStatus    string
	ProviderUsed         string
	FallbackAttempted    bool
	ReconciliationNeeded bool
	LastUpdated          time.Time
}

// Sale is the completed-dispatch record. It is written only after a
// successful dispatch; a confirmed payment whose dispatch fails (and is then
// reversed or marked CRITICAL_FULFILLMENT_ERROR) has no Sale.
type Sale struct {
	RequestID        string
	OriginalAmount   decimal.Decimal
	Bonus            decimal.Decimal
	DispatchedAmount decimal.Decimal
	Carrier          carrier.Carrier
	ProviderUsed     string
	DispatchResult   string
	BonusPercentage  decimal.Decimal
	CompletedAt      time.Time
}

// ErrorKind is the top-level error taxonomy.
type ErrorKind string

const (
	ErrorKindSTKPushInitiation       ErrorKind = "STK_PUSH_INITIATION_ERROR"
	ErrorKindSTKCallback             ErrorKind = "STK_CALLBACK_ERROR"
	ErrorKindSTKPayment              ErrorKind = "STK_PAYMENT_ERROR"
	ErrorKindAirtimeFulfillment      ErrorKind = "AIRTIME_FULFILLMENT_ERROR"
	ErrorKindFloatReconciliation     ErrorKind = "FLOAT_RECONCILIATION_WARNING"
	ErrorKindAnalyticsNotification  ErrorKind = "ANALYTICS_NOTIFICATION_ERROR"
	ErrorKindCriticalFulfillment    ErrorKind = "CRITICAL_FULFILLMENT_ERROR"
)

// ErrorSubKind further classifies ErrorKindAirtimeFulfillment entries.
type ErrorSubKind string

const (
	SubKindInvalidAmountRange    ErrorSubKind = "INVALID_AMOUNT_RANGE"
	SubKindUnknownCarrier        ErrorSubKind = "UNKNOWN_CARRIER"
	SubKindAirtimeDispatchFailed ErrorSubKind = "AIRTIME_DISPATCH_FAILED"
	SubKindRuntimeException      ErrorSubKind = "RUNTIME_EXCEPTION"
)

// ErrorLogEntry is one row in the errors collection.
type ErrorLogEntry struct {
	ID         string
	Kind       ErrorKind
	SubKind    ErrorSubKind
	RequestID  string
	RawContext string
	Timestamp  time.Time
}

// ReversalPending is a reconciliation record created once a reversal request
// has been submitted to the rail and is awaiting its result callback. The
// rail assigns ConversationID at submission time and echoes it back in the
// async result/timeout callback; it is the only thing that callback carries
// to correlate back to RequestID, since the rail's conversation-id space is
// distinct from the STK CheckoutRequestID space our own requests are keyed by.
type ReversalPending struct {
	RequestID           string
	ConversationID      string
	OriginalAmount      decimal.Decimal
	PayerMSISDN         string
	ReversalRequestData string
	InitiatedAt         time.Time
}

// ReversalFailed is a terminal reconciliation record for a reversal that the
// rail rejected outright, timed out, or confirmed as failed.
type ReversalFailed struct {
	ID             string
	RequestID      string
	Reason         string
	OriginalAmount decimal.Decimal
	Timestamp      time.Time
}

// Store is the pgx-backed implementation of every collection the gateway
// needs. *MemStore (memory.go) implements the identical method set for tests.
type Store struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

func New(pool *pgxpool.Pool, log zerolog.Logger) *Store {
	return &Store{pool: pool, log: log.With().Str("component", "store").Logger()}
}

// CreateRequestAndTransaction inserts the frozen Request alongside its
// initial PUSH_INITIATED Transaction in a single transaction, since the two
// must always exist together.
func (s *Store) CreateRequestAndTransaction(ctx context.Context, req Request) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO requests (request_id, payer_msisdn, destination_msisdn, carrier, requested_amount, initiated_at, payload_snapshot)
			VALUES ($1, $2, $3, $4, $5, now(), $6)`,
			req.RequestID, req.PayerMSISDN, req.DestinationMSISDN, req.Carrier, req.RequestedAmount, req.PayloadSnapshot)
		if err != nil {
			return fmt.Errorf("store: insert request: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO transactions (request_id, status, last_updated)
			VALUES ($1, $2, now())`,
			req.RequestID, StatusPushInitiated)
		if err != nil {
			return fmt.Errorf("store: insert transaction: %w", err)
		}
		return nil
	})
}

// GetRequest returns the frozen Request record for requestID.
func (s *Store) GetRequest(ctx context.Context, requestID string) (Request, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT request_id, payer_msisdn, destination_msisdn, carrier, requested_amount, initiated_at, payload_snapshot
		FROM requests WHERE request_id = $1`, requestID)

	var r Request
	err := row.Scan(&r.RequestID, &r.PayerMSISDN, &r.DestinationMSISDN, &r.Carrier, &r.RequestedAmount, &r.InitiatedAt, &r.PayloadSnapshot)
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, ErrNotFound
	}
	if err != nil {
		return Request{}, fmt.Errorf("store: read request: %w", err)
	}
	return r, nil
}

// GetTransaction returns the current transaction record for requestID.
func (s *Store) GetTransaction(ctx context.Context, requestID string) (Transaction, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT request_id, status, payment_receipt, amount_received, fulfillment_status,
		       provider_used, fallback_attempted, reconciliation_needed, last_updated
		FROM transactions WHERE request_id = $1`, requestID)

	var t Transaction
	var paymentReceipt, fulfillmentStatus, providerUsed *string
	var amountReceived *decimal.Decimal
	err := row.Scan(&t.RequestID, &t.Status, &paymentReceipt, &amountReceived, &fulfillmentStatus,
		&providerUsed, &t.FallbackAttempted, &t.ReconciliationNeeded, &t.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrNotFound
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("store: read transaction: %w", err)
	}
	if paymentReceipt != nil {
		t.PaymentReceipt = *paymentReceipt
	}
	if fulfillmentStatus != nil {
		t.FulfillmentStatus = *fulfillmentStatus
	}
	if providerUsed != nil {
		t.ProviderUsed = *providerUsed
	}
	if amountReceived != nil {
		t.AmountReceived = *amountReceived
	}
	return t, nil
}

// TransitionTransaction reads the transaction row FOR UPDATE, verifies it is
// in expectedStatus (the idempotency gate that makes a duplicate callback a
// no-op), lets mutate apply the next state, and persists it, all inside one
// transaction so concurrent duplicate callbacks serialize on the row lock
// instead of racing.
func (s *Store) TransitionTransaction(ctx context.Context, requestID string, expectedStatus Status, mutate func(*Transaction)) (Transaction, error) {
	var result Transaction
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT request_id, status, payment_receipt, amount_received, fulfillment_status,
			       provider_used, fallback_attempted, reconciliation_needed, last_updated
			FROM transactions WHERE request_id = $1 FOR UPDATE`, requestID)

		var t Transaction
		var paymentReceipt, fulfillmentStatus, providerUsed *string
		var amountReceived *decimal.Decimal
		err := row.Scan(&t.RequestID, &t.Status, &paymentReceipt, &amountReceived, &fulfillmentStatus,
			&providerUsed, &t.FallbackAttempted, &t.ReconciliationNeeded, &t.LastUpdated)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("store: read transaction for update: %w", err)
		}
		if paymentReceipt != nil {
			t.PaymentReceipt = *paymentReceipt
		}
		if fulfillmentStatus != nil {
			t.FulfillmentStatus = *fulfillmentStatus
		}
		if providerUsed != nil {
			t.ProviderUsed = *providerUsed
		}
		if amountReceived != nil {
			t.AmountReceived = *amountReceived
		}

		if t.Status != expectedStatus {
			return ErrStatePrecondition
		}

		mutate(&t)

		_, err = tx.Exec(ctx, `
			UPDATE transactions SET
				status = $1, payment_receipt = $2, amount_received = $3, fulfillment_status = $4,
				provider_used = $5, fallback_attempted = $6, reconciliation_needed = $7, last_updated = now()
			WHERE request_id = $8`,
			t.Status, t.PaymentReceipt, t.AmountReceived, t.FulfillmentStatus,
			t.ProviderUsed, t.FallbackAttempted, t.ReconciliationNeeded, requestID)
		if err != nil {
			return fmt.Errorf("store: write transaction: %w", err)
		}
		result = t
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	return result, nil
}

// CreateSale inserts the Sale record for a confirmed-and-dispatched payment.
func (s *Store) CreateSale(ctx context.Context, sale Sale) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sales (request_id, original_amount, bonus, dispatched_amount, carrier, provider_used, dispatch_result, bonus_percentage, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`,
		sale.RequestID, sale.OriginalAmount, sale.Bonus, sale.DispatchedAmount,
		sale.Carrier, sale.ProviderUsed, sale.DispatchResult, sale.BonusPercentage)
	if err != nil {
		return fmt.Errorf("store: insert sale: %w", err)
	}
	return nil
}

// GetSale returns the Sale record for requestID.
func (s *Store) GetSale(ctx context.Context, requestID string) (Sale, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT request_id, original_amount, bonus, dispatched_amount, carrier, provider_used, dispatch_result, bonus_percentage, completed_at
		FROM sales WHERE request_id = $1`, requestID)

	var sale Sale
	err := row.Scan(&sale.RequestID, &sale.OriginalAmount, &sale.Bonus, &sale.DispatchedAmount,
		&sale.Carrier, &sale.ProviderUsed, &sale.DispatchResult, &sale.BonusPercentage, &sale.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, ErrNotFound
	}
	if err != nil {
		return Sale{}, fmt.Errorf("store: read sale: %w", err)
	}
	return sale, nil
}

// LogError inserts an entry into the errors collection. A failure here is
// logged but never fatal to the caller.
func (s *Store) LogError(ctx context.Context, entry ErrorLogEntry) error {
	entry.ID = uuid.NewString()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO error_log (id, kind, sub_kind, request_id, raw_context, "timestamp")
		VALUES ($1, $2, $3, $4, $5, now())`,
		entry.ID, entry.Kind, entry.SubKind, entry.RequestID, entry.RawContext)
	if err != nil {
		s.log.Error().Err(err).Str("kind", string(entry.Kind)).Msg("failed to write error log entry")
		return fmt.Errorf("store: insert error log entry: %w", err)
	}
	return nil
}

// CreateReversalPending inserts a pending-reversal reconciliation record.
func (s *Store) CreateReversalPending(ctx context.Context, r ReversalPending) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reversal_pending (request_id, conversation_id, original_amount, payer_msisdn, reversal_request_data, initiated_at)
		VALUES ($1, $2, $3, $4, $5, now())`,
		r.RequestID, r.ConversationID, r.OriginalAmount, r.PayerMSISDN, r.ReversalRequestData)
	if err != nil {
		return fmt.Errorf("store: insert reversal pending: %w", err)
	}
	return nil
}

// ResolveReversalPending removes the pending-reversal record. The lifecycle
// engine calls it when the rail confirms the reversal succeeded; failed and
// timed-out reversals keep their pending record.
func (s *Store) ResolveReversalPending(ctx context.Context, requestID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM reversal_pending WHERE request_id = $1`, requestID)
	if err != nil {
		return fmt.Errorf("store: resolve reversal pending: %w", err)
	}
	return nil
}

// FindPendingReversalByConversationID resolves the rail's conversation id
// (echoed back in the reversal result/timeout callback) to the originating
// RequestID and full pending record.
func (s *Store) FindPendingReversalByConversationID(ctx context.Context, conversationID string) (ReversalPending, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT request_id, conversation_id, original_amount, payer_msisdn, reversal_request_data, initiated_at
		FROM reversal_pending WHERE conversation_id = $1`, conversationID)

	var r ReversalPending
	err := row.Scan(&r.RequestID, &r.ConversationID, &r.OriginalAmount, &r.PayerMSISDN, &r.ReversalRequestData, &r.InitiatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ReversalPending{}, ErrNotFound
	}
	if err != nil {
		return ReversalPending{}, fmt.Errorf("store: find pending reversal by conversation id: %w", err)
	}
	return r, nil
}

// ListPendingReversals returns every outstanding pending-reversal record, for
// the reconciliation dashboard.
func (s *Store) ListPendingReversals(ctx context.Context) ([]ReversalPending, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT request_id, conversation_id, original_amount, payer_msisdn, reversal_request_data, initiated_at
		FROM reversal_pending ORDER BY initiated_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list pending reversals: %w", err)
	}
	defer rows.Close()

	var out []ReversalPending
	for rows.Next() {
		var r ReversalPending
		if err := rows.Scan(&r.RequestID, &r.ConversationID, &r.OriginalAmount, &r.PayerMSISDN, &r.ReversalRequestData, &r.InitiatedAt); err != nil {
			return nil, fmt.Errorf("store: scan pending reversal: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateReversalFailed inserts a terminal failed-reconciliation record.
func (s *Store) CreateReversalFailed(ctx context.Context, r ReversalFailed) error {
	r.ID = uuid.NewString()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reversal_failed (id, request_id, reason, original_amount, "timestamp")
		VALUES ($1, $2, $3, $4, now())`,
		r.ID, r.RequestID, r.Reason, r.OriginalAmount)
	if err != nil {
		return fmt.Errorf("store: insert reversal failed: %w", err)
	}
	return nil
}

// bonusSettingsRow is the on-disk shape of the bonus-settings singleton: a
// JSON-encoded map keeps the schema stable as carriers are added.
type bonusSettingsRow struct {
	PercentageByTelco map[carrier.Carrier]string `json:"percentage_by_telco"`
}

// CurrentSettings implements internal/bonus.SettingsStore.
func (s *Store) CurrentSettings(ctx context.Context) (bonus.Settings, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT settings FROM bonus_settings WHERE id = 1`).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return bonus.Settings{PercentageByTelco: map[carrier.Carrier]decimal.Decimal{}}, nil
	}
	if err != nil {
		return bonus.Settings{}, fmt.Errorf("store: read bonus settings: %w", err)
	}

	var row bonusSettingsRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return bonus.Settings{}, fmt.Errorf("store: decode bonus settings: %w", err)
	}

	settings := bonus.Settings{PercentageByTelco: map[carrier.Carrier]decimal.Decimal{}}
	for telco, pct := range row.PercentageByTelco {
		d, err := decimal.NewFromString(pct)
		if err != nil {
			continue
		}
		settings.PercentageByTelco[telco] = d
	}
	return settings, nil
}

// UpdateSettings implements internal/bonus.SettingsStore, writing the new
// singleton row and a history entry for every telco whose percentage changed.
func (s *Store) UpdateSettings(ctx context.Context, next bonus.Settings, actor string) ([]bonus.History, error) {
	var history []bonus.History

	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		current, err := s.readSettingsTx(ctx, tx)
		if err != nil {
			return err
		}

		for telco, newPct := range next.PercentageByTelco {
			oldPct, existed := current.PercentageByTelco[telco]
			if !existed {
				oldPct = decimal.Zero
			}
			if oldPct.Equal(newPct) {
				continue
			}
			entry := bonus.History{
				ID:        uuid.NewString(),
				Telco:     telco,
				OldPct:    oldPct,
				NewPct:    newPct,
				Actor:     actor,
				Timestamp: time.Now(),
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO bonus_history (id, telco, old_pct, new_pct, actor, "timestamp")
				VALUES ($1, $2, $3, $4, $5, now())`,
				entry.ID, telco, oldPct, newPct, actor)
			if err != nil {
				return fmt.Errorf("store: insert bonus history: %w", err)
			}
			history = append(history, entry)
		}

		row := bonusSettingsRow{PercentageByTelco: map[carrier.Carrier]string{}}
		for telco, pct := range next.PercentageByTelco {
			row.PercentageByTelco[telco] = pct.String()
		}
		encoded, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("store: encode bonus settings: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO bonus_settings (id, settings) VALUES (1, $1)
			ON CONFLICT (id) DO UPDATE SET settings = $1`, encoded)
		if err != nil {
			return fmt.Errorf("store: write bonus settings: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}

// ListBonusHistory returns every bonus-percentage change, newest first, for
// the bonus-settings history read endpoint.
func (s *Store) ListBonusHistory(ctx context.Context) ([]bonus.History, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, telco, old_pct, new_pct, actor, "timestamp"
		FROM bonus_history ORDER BY "timestamp" DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list bonus history: %w", err)
	}
	defer rows.Close()

	var out []bonus.History
	for rows.Next() {
		var h bonus.History
		if err := rows.Scan(&h.ID, &h.Telco, &h.OldPct, &h.NewPct, &h.Actor, &h.Timestamp); err != nil {
			return nil, fmt.Errorf("store: scan bonus history: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ListReconciliationNeeded returns every transaction flagged
// ReconciliationNeeded: the terminal states a human operator must follow up
// on manually.
func (s *Store) ListReconciliationNeeded(ctx context.Context) ([]Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT request_id, status, payment_receipt, amount_received, fulfillment_status,
		       provider_used, fallback_attempted, reconciliation_needed, last_updated
		FROM transactions WHERE reconciliation_needed = true ORDER BY last_updated ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list reconciliation-needed transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		var paymentReceipt, fulfillmentStatus, providerUsed *string
		var amountReceived *decimal.Decimal
		if err := rows.Scan(&t.RequestID, &t.Status, &paymentReceipt, &amountReceived, &fulfillmentStatus,
			&providerUsed, &t.FallbackAttempted, &t.ReconciliationNeeded, &t.LastUpdated); err != nil {
			return nil, fmt.Errorf("store: scan reconciliation-needed transaction: %w", err)
		}
		if paymentReceipt != nil {
			t.PaymentReceipt = *paymentReceipt
		}
		if fulfillmentStatus != nil {
			t.FulfillmentStatus = *fulfillmentStatus
		}
		if providerUsed != nil {
			t.ProviderUsed = *providerUsed
		}
		if amountReceived != nil {
			t.AmountReceived = *amountReceived
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) readSettingsTx(ctx context.Context, tx pgx.Tx) (bonus.Settings, error) {
	var raw []byte
	err := tx.QueryRow(ctx, `SELECT settings FROM bonus_settings WHERE id = 1`).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return bonus.Settings{PercentageByTelco: map[carrier.Carrier]decimal.Decimal{}}, nil
	}
	if err != nil {
		return bonus.Settings{}, fmt.Errorf("store: read bonus settings for update: %w", err)
	}
	var row bonusSettingsRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return bonus.Settings{}, fmt.Errorf("store: decode bonus settings for update: %w", err)
	}
	settings := bonus.Settings{PercentageByTelco: map[carrier.Carrier]decimal.Decimal{}}
	for telco, pct := range row.PercentageByTelco {
		d, err := decimal.NewFromString(pct)
		if err != nil {
			continue
		}
		settings.PercentageByTelco[telco] = d
	}
	return settings, nil
}

// FetchPIN implements internal/creds.PINFetcher, reading the raw dealer
// service PIN from its singleton row.
func (s *Store) FetchPIN(ctx context.Context) (string, error) {
	var pin string
	err := s.pool.QueryRow(ctx, `SELECT raw_pin FROM dealer_config WHERE id = 1`).Scan(&pin)
	if err != nil {
		return "", fmt.Errorf("store: read dealer pin: %w", err)
	}
	return pin, nil
}
