// Package charge implements the fiat-intake state machine (C6): one attempt
// to turn external provider funds into a wallet top-up, gated so the
// backing Transaction is driven to committed exactly once. It is grounded
// on the same CAS-on-status shape as wallet and transaction, generalized to
// a row with a provider-facing waiting state and a stateless,
// read-time-only expiry render.
package charge

import (
	"context"
	"fmt"
	"time"

	"github.com/decred/slog"
	"github.com/walletbase/ledgercore/currency"
	"github.com/walletbase/ledgercore/id"
	"github.com/walletbase/ledgercore/ledgererr"
	"github.com/walletbase/ledgercore/store"
	"github.com/walletbase/ledgercore/transaction"
)

// Table is the logical table name charge rows are persisted under, keyed
// by (uid, id).
const Table = "charge"

// DefaultProviderWindow is how long a freshly saved charge stays live
// before a reader renders it Expired.
const DefaultProviderWindow = 24 * time.Hour

// DefaultRetries bounds the final 2->3 status update Complete retries in
// isolation after the backing transaction has already committed.
const DefaultRetries = transaction.DefaultRetries

// Status is a charge's position in its intake state machine.
type Status int8

const (
	StatusInitialized       Status = 0
	StatusAwaitingProvider  Status = 1
	StatusProviderConfirmed Status = 2
	StatusLedgerCommitted   Status = 3
	StatusExpired           Status = -2
	// -1 is a reserved failure sentinel; Update refuses to set it.
)

// updateWhitelist is the exact set of columns Update may write, mirroring
// the original model's hardcoded valid_fields list.
var updateWhitelist = map[string]bool{
	"status":          true,
	"currency":        true,
	"amount":          true,
	"amount_refunded": true,
	"charge_id":       true,
	"charge_payload":  true,
	"txn":             true,
	"txn_refunded":    true,
	"failure_code":    true,
	"failure_msg":     true,
}

// Charge is one fiat top-up attempt.
type Charge struct {
	UID            id.ID
	ID             id.ID
	Status         Status
	UpdatedAt      int64 // unix milliseconds
	ExpireAt       int64 // unix milliseconds; 0 means no expiry
	Quantity       int64 // amount in wallet units credited on completion
	Currency       string
	Amount         int64 // provider-facing amount, in the currency's minor unit
	AmountRefunded int64
	Provider       string
	ChargeID       string // provider-assigned reference
	ChargePayload  []byte
	Txn            *id.ID
	TxnRefunded    *id.ID
	FailureCode    string
	FailureMsg     string
}

func toRow(c *Charge) store.Row {
	row := store.Row{
		"uid":             c.UID,
		"id":              c.ID,
		"status":          int8(c.Status),
		"updated_at":      c.UpdatedAt,
		"expire_at":       c.ExpireAt,
		"quantity":        c.Quantity,
		"currency":        c.Currency,
		"amount":          c.Amount,
		"amount_refunded": c.AmountRefunded,
		"provider":        c.Provider,
		"charge_id":       c.ChargeID,
		"charge_payload":  c.ChargePayload,
		"txn":             id.Sys,
		"txn_refunded":    id.Sys,
		"failure_code":    c.FailureCode,
		"failure_msg":     c.FailureMsg,
	}
	if c.Txn != nil {
		row["txn"] = *c.Txn
	}
	if c.TxnRefunded != nil {
		row["txn_refunded"] = *c.TxnRefunded
	}
	return row
}

func fromRow(r store.Row) *Charge {
	c := &Charge{}
	if v, ok := r["uid"].(id.ID); ok {
		c.UID = v
	}
	if v, ok := r["id"].(id.ID); ok {
		c.ID = v
	}
	if v, ok := r["status"].(int8); ok {
		c.Status = Status(v)
	}
	if v, ok := r["updated_at"].(int64); ok {
		c.UpdatedAt = v
	}
	if v, ok := r["expire_at"].(int64); ok {
		c.ExpireAt = v
	}
	if v, ok := r["quantity"].(int64); ok {
		c.Quantity = v
	}
	if v, ok := r["currency"].(string); ok {
		c.Currency = v
	}
	if v, ok := r["amount"].(int64); ok {
		c.Amount = v
	}
	if v, ok := r["amount_refunded"].(int64); ok {
		c.AmountRefunded = v
	}
	if v, ok := r["provider"].(string); ok {
		c.Provider = v
	}
	if v, ok := r["charge_id"].(string); ok {
		c.ChargeID = v
	}
	if v, ok := r["charge_payload"].([]byte); ok {
		c.ChargePayload = v
	}
	if v, ok := r["txn"].(id.ID); ok && !id.IsSys(v) {
		cp := v
		c.Txn = &cp
	}
	if v, ok := r["txn_refunded"].(id.ID); ok && !id.IsSys(v) {
		cp := v
		c.TxnRefunded = &cp
	}
	if v, ok := r["failure_code"].(string); ok {
		c.FailureCode = v
	}
	if v, ok := r["failure_msg"].(string); ok {
		c.FailureMsg = v
	}
	return c
}

// Store drives the charge state machine, delegating the ledger-side
// finalization to a transaction.Store.
type Store struct {
	db     store.Store
	txns   *transaction.Store
	window time.Duration
}

// New returns a Store bound to db and txns, expiring freshly saved charges
// after window (DefaultProviderWindow if zero).
func New(db store.Store, txns *transaction.Store, window time.Duration) *Store {
	if window == 0 {
		window = DefaultProviderWindow
	}
	return &Store{db: db, txns: txns, window: window}
}

func (s *Store) key(uid, chargeID id.ID) store.Row {
	return store.Row{"uid": uid, "id": chargeID}
}

// Save inserts a new charge in status Initialized or AwaitingProvider,
// allocating its id and stamping its provider-window expiry.
func (s *Store) Save(ctx context.Context, c *Charge) (*Charge, error) {
	if c.Status != StatusInitialized && c.Status != StatusAwaitingProvider {
		return nil, ledgererr.New(ledgererr.InvalidArgument, "invalid initial charge status %d", c.Status)
	}
	c.ID = id.New()
	now := time.Now().UnixMilli()
	c.UpdatedAt = now
	c.ExpireAt = now + s.window.Milliseconds()

	applied, err := s.db.InsertIfAbsent(ctx, Table, toRow(c))
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ledgererr.New(ledgererr.StatusConflict, "charge %s already exists", c.ID)
	}
	return c, nil
}

// Update performs a single whitelisted-column CAS write, guarded by
// expectedStatus, and always stamps updated_at to now. status=-1 may never
// be written through this path.
func (s *Store) Update(ctx context.Context, uid, chargeID id.ID, cols map[string]interface{}, expectedStatus Status) (bool, error) {
	for field := range cols {
		if !updateWhitelist[field] {
			return false, ledgererr.New(ledgererr.InvalidArgument, "invalid charge field %q", field)
		}
	}
	if v, ok := cols["status"]; ok {
		if st, ok := v.(int8); ok && Status(st) == -1 {
			return false, ledgererr.New(ledgererr.InvalidArgument, "status -1 is reserved and may not be written")
		}
	}

	set := make(store.Row, len(cols)+1)
	for k, v := range cols {
		set[k] = v
	}
	set["updated_at"] = time.Now().UnixMilli()

	return s.db.UpdateIf(ctx, Table, s.key(uid, chargeID), set,
		store.Predicate{Column: "status", Equals: int8(expectedStatus)})
}

// readRow loads the stored row without applying read-time expiry.
func (s *Store) readRow(ctx context.Context, uid, chargeID id.ID) (*Charge, error) {
	row, err := s.db.Get(ctx, Table, s.key(uid, chargeID), nil)
	if err != nil {
		return nil, err
	}
	return fromRow(row), nil
}

// renderExpiry applies the stateless read-time expiry rule: a charge sitting
// in {Initialized, AwaitingProvider} past its expire_at renders as Expired
// to the reader without writing anything. An actual status write is left to
// an external sweeper.
func renderExpiry(c *Charge) *Charge {
	if (c.Status == StatusInitialized || c.Status == StatusAwaitingProvider) &&
		c.ExpireAt > 0 && c.ExpireAt <= time.Now().UnixMilli() {
		rendered := *c
		rendered.Status = StatusExpired
		rendered.FailureMsg = "checkout.expired"
		return &rendered
	}
	return c
}

// Get loads the charge keyed by (uid, chargeID), applying read-time expiry.
func (s *Store) Get(ctx context.Context, uid, chargeID id.ID) (*Charge, error) {
	c, err := s.readRow(ctx, uid, chargeID)
	if err != nil {
		return nil, err
	}
	return renderExpiry(c), nil
}

// List returns up to pageSize charges for uid, newest first, optionally
// narrowed to one status (applied after read-time expiry rendering, so a
// status filter for Expired also matches charges that are only
// stale-but-not-yet-swept).
func (s *Store) List(ctx context.Context, uid id.ID, status *Status, pageSize int, token id.ID) ([]*Charge, error) {
	rows, err := s.db.Range(ctx, Table, store.Row{"uid": uid}, "id", token, pageSize, nil)
	if err != nil {
		return nil, err
	}
	out := make([]*Charge, 0, len(rows))
	for _, r := range rows {
		c := renderExpiry(fromRow(r))
		if status != nil && c.Status != *status {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Complete drives a confirmed charge to LedgerCommitted: it CAS-moves
// AwaitingProvider to ProviderConfirmed with the provider's final
// currency/amount/payload, prepares a Topup transaction for Quantity wallet
// units and stamps its id onto the charge, then commits it and CAS-moves
// ProviderConfirmed to LedgerCommitted. gotChargeRef must match the
// charge's own stored provider reference, or the call is rejected outright
// — this is the only defense against completing the wrong charge on a
// provider webhook replay with a stale reference. A repeat call against a
// charge already sitting at ProviderConfirmed with its transaction id
// stamped resumes from the commit/finalize step rather than preparing a
// second transaction.
func (s *Store) Complete(ctx context.Context, uid, chargeID id.ID, gotChargeRef, currencyCode string, amount int64, payload []byte) (*Charge, error) {
	c, err := s.readRow(ctx, uid, chargeID)
	if err != nil {
		return nil, err
	}
	if c.ChargeID != gotChargeRef {
		return nil, ledgererr.New(ledgererr.InvalidArgument,
			"charge_id mismatch for charge %s: expected %s, got %s", chargeID, c.ChargeID, gotChargeRef)
	}

	cur, ok := currency.Lookup(currencyCode)
	if !ok {
		return nil, ledgererr.New(ledgererr.InvalidArgument, "unknown currency %q", currencyCode)
	}
	if !cur.InBounds(amount) {
		return nil, ledgererr.New(ledgererr.InvalidArgument,
			"amount %d is out of bounds for %s", amount, cur.Alpha3)
	}

	applied, err := s.Update(ctx, uid, chargeID, map[string]interface{}{
		"status":         int8(StatusProviderConfirmed),
		"currency":       currencyCode,
		"amount":         amount,
		"charge_payload": payload,
	}, StatusAwaitingProvider)
	if err != nil {
		return nil, err
	}
	if !applied {
		existing, err := s.readRow(ctx, uid, chargeID)
		if err != nil {
			return nil, err
		}
		switch {
		case existing.Status == StatusProviderConfirmed && existing.Txn != nil:
			// The topup transaction was already prepared and stamped on a
			// prior attempt (and possibly committed); what remains is its
			// commit and the final 2->3 update. Resume from there instead of
			// preparing a second transaction for the same charge.
			return s.finalize(ctx, uid, chargeID, *existing.Txn)
		case existing.Status >= StatusProviderConfirmed:
			return existing, nil // already advanced: idempotent
		default:
			return nil, ledgererr.New(ledgererr.StatusConflict,
				"charge %s not awaiting provider confirmation (status=%d)", chargeID, existing.Status)
		}
	}

	txn, err := s.txns.Prepare(ctx, id.Sys, uid, nil, transaction.KindTopup, c.Quantity,
		fmt.Sprintf("%s.topup", c.Provider), payload)
	if err != nil {
		return nil, err
	}

	// Stamp the charge with its finalizing transaction id while still at
	// ProviderConfirmed, before ever committing it, so a retry landing at
	// any later point resumes via the existing.Txn branch above instead of
	// preparing a second transaction for the same charge.
	if stamped, err := s.Update(ctx, uid, chargeID, map[string]interface{}{
		"txn": txn.ID,
	}, StatusProviderConfirmed); err != nil {
		return nil, err
	} else if !stamped {
		log.Warnf("charge %s: txn stamp CAS lost the race before committing %s", chargeID, txn.ID)
	}

	return s.finalize(ctx, uid, chargeID, txn.ID)
}

// finalize commits txnID's transaction (a no-op if already committed) and
// drives the charge from ProviderConfirmed to LedgerCommitted. The ledger
// side is authoritative once Commit succeeds, so only the charge's own 2->3
// status update is retried in isolation rather than treating a failure here
// as a failure of the whole Complete call.
func (s *Store) finalize(ctx context.Context, uid, chargeID, txnID id.ID) (*Charge, error) {
	if err := s.txns.Commit(ctx, id.Sys, txnID); err != nil {
		return nil, err
	}

	var finalized bool
	for attempt := 0; attempt < DefaultRetries; attempt++ {
		ok, err := s.Update(ctx, uid, chargeID, map[string]interface{}{
			"status": int8(StatusLedgerCommitted),
			"txn":    txnID,
		}, StatusProviderConfirmed)
		if err == nil && ok {
			finalized = true
			break
		}
	}
	if !finalized {
		if existing, err := s.readRow(ctx, uid, chargeID); err == nil && existing.Status == StatusLedgerCommitted {
			return existing, nil // a concurrent call already finished it
		}
		log.Errorf("charge %s: ledger committed txn %s but final status update did not apply after %d attempts",
			chargeID, txnID, DefaultRetries)
	}

	return s.readRow(ctx, uid, chargeID)
}

var log = slog.Disabled

// UseLogger sets the subsystem logger used by this package.
func UseLogger(logger slog.Logger) {
	log = logger
}
