// Package credit implements the append-only per-user credit side-ledger
// (C4): a mirror of selected transactions that atomically bumps the
// wallet's monotonically non-decreasing credits counter.
package credit

import (
	"context"
	"fmt"

	"github.com/decred/slog"
	"github.com/walletbase/ledgercore/id"
	"github.com/walletbase/ledgercore/ledgererr"
	"github.com/walletbase/ledgercore/store"
	"github.com/walletbase/ledgercore/wallet"
	"golang.org/x/sync/errgroup"
)

// Table is the logical table name credit rows are persisted under.
const Table = "credit"

// Kind classifies why a credit row was appended.
type Kind string

// The current (post-migration) kind set. See the package doc on
// migrateKind for the older labels this system still reads.
const (
	KindAward  Kind = "award"  // bootstraps a user's credits counter
	KindPayout Kind = "payout" // a Spend/Sponsor/Subscribe deduction on the payer
	KindIncome Kind = "income" // a Sponsor/Subscribe addition on the payee/sub-payee
)

// Legacy kind labels from the prior revision of this system, accepted on
// read and normalized to the current set, but never written.
const (
	legacyKindInit        Kind = "init"
	legacyKindExpenditure Kind = "expenditure"
)

// migrateKind maps a possibly-legacy stored kind label to its current
// equivalent, for reads only.
func migrateKind(k Kind) Kind {
	switch k {
	case legacyKindInit:
		return KindAward
	case legacyKindExpenditure:
		return KindPayout
	default:
		return k
	}
}

// Credit is one append-only ledger entry.
type Credit struct {
	UID         id.ID
	Txn         id.ID
	Kind        Kind
	Amount      int64
	Description string
}

func toRow(c Credit) store.Row {
	return store.Row{
		"uid":         c.UID,
		"txn":         c.Txn,
		"kind":        string(c.Kind),
		"amount":      c.Amount,
		"description": c.Description,
	}
}

func fromRow(r store.Row) Credit {
	c := Credit{}
	if v, ok := r["uid"].(id.ID); ok {
		c.UID = v
	}
	if v, ok := r["txn"].(id.ID); ok {
		c.Txn = v
	}
	if v, ok := r["kind"].(string); ok {
		c.Kind = migrateKind(Kind(v))
	}
	if v, ok := r["amount"].(int64); ok {
		c.Amount = v
	}
	if v, ok := r["description"].(string); ok {
		c.Description = v
	}
	return c
}

// Ledger persists Credit rows and keeps each wallet's credits counter in
// sync with them.
type Ledger struct {
	db      store.Store
	wallets *wallet.Store
}

// New returns a Ledger bound to db, using wallets to read/bump the
// per-wallet credits counter.
func New(db store.Store, wallets *wallet.Store) *Ledger {
	return &Ledger{db: db, wallets: wallets}
}

// Save appends c and bumps the payee wallet's credits counter, per the
// bootstrap rule decided in the design spec's open questions: any first
// Award credit bootstraps a wallet's credits counter from zero; any other
// kind is silently skipped while credits == 0, since credits only track
// users who are already active. uid == SYS_ID is always a no-op — the
// system wallet never accrues credits.
func (l *Ledger) Save(ctx context.Context, c Credit) error {
	if c.Amount <= 0 {
		return ledgererr.New(ledgererr.InvalidArgument, "invalid credit amount %d", c.Amount)
	}
	if id.IsSys(c.UID) {
		return nil
	}

	w, err := l.wallets.Get(ctx, c.UID)
	if err != nil {
		return err
	}
	if w.Credits == 0 && c.Kind != KindAward {
		return nil
	}

	applied, err := l.db.InsertIfAbsent(ctx, Table, toRow(c))
	if err != nil {
		return err
	}
	if !applied {
		// A row for (uid, txn) already exists: idempotent no-op.
		log.Infof("credit %s/%s already recorded, skipping counter bump", c.UID, c.Txn)
		return nil
	}

	return l.wallets.BumpCredits(ctx, c.UID, c.Amount)
}

// SaveAll saves every credit in list, possibly concurrently, and returns an
// aggregate error naming every failing entry if any sub-save failed.
func (l *Ledger) SaveAll(ctx context.Context, list []Credit) error {
	errs := make([]error, len(list))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range list {
		i, c := i, c
		g.Go(func() error {
			errs[i] = l.Save(gctx, c)
			return nil
		})
	}
	_ = g.Wait() // sub-saves record their own failures; errgroup's own error is unused by design

	var failed []string
	for i, err := range errs {
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s/%s: %v", list[i].UID, list[i].Txn, err))
		}
	}
	if len(failed) > 0 {
		return ledgererr.New(ledgererr.StoreUnavailable, "save_all: %d of %d credits failed: %v",
			len(failed), len(list), failed)
	}
	return nil
}

// List returns up to pageSize credit rows for uid, newest first, optionally
// narrowed to one kind, starting strictly after token (the id.Max sentinel
// seeds an unbounded scan from the newest row).
func (l *Ledger) List(ctx context.Context, uid id.ID, kind Kind, pageSize int, token id.ID) ([]Credit, error) {
	var secondary func(store.Row) bool
	if kind != "" {
		secondary = func(r store.Row) bool {
			v, _ := r["kind"].(string)
			return migrateKind(Kind(v)) == kind
		}
	}

	rows, err := l.db.Range(ctx, Table, store.Row{"uid": uid}, "txn", token, pageSize, secondary)
	if err != nil {
		return nil, err
	}
	out := make([]Credit, len(rows))
	for i, r := range rows {
		out[i] = fromRow(r)
	}
	return out, nil
}

var log = slog.Disabled

// UseLogger sets the subsystem logger used by this package.
func UseLogger(logger slog.Logger) {
	log = logger
}
