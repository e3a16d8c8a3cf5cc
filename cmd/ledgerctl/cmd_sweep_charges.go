package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli"

	"github.com/walletbase/ledgercore/charge"
	"github.com/walletbase/ledgercore/id"
)

var sweepChargesCommand = cli.Command{
	Name:      "sweep-charges",
	Category:  "Reconciliation",
	Usage:     "Persist the expired status for a user's charges past their provider window.",
	ArgsUsage: "--uid <uid>",
	Flags: []cli.Flag{
		etcdEndpointFlag, etcdPrefixFlag, mackeyFlag,
		cli.StringFlag{Name: "uid", Usage: "wallet uid whose charges should be swept"},
		cli.IntFlag{Name: "pagesize", Value: 100, Usage: "charges fetched per page"},
	},
	Action: actionDecorator(sweepCharges),
}

// sweepCharges persists the read-time-only expiry charge.Get/List already
// render: a charge sitting in Initialized or AwaitingProvider past its
// expire_at reads back as Expired without anyone having written that, so an
// operator sweep is what actually moves the row, trying both possible
// prior statuses since the in-memory render has already overwritten which
// one it was.
func sweepCharges(c *cli.Context) error {
	uid, err := parseID(c.String("uid"))
	if err != nil {
		return fmt.Errorf("invalid uid: %w", err)
	}

	db, _, txns, err := openStores(c)
	if err != nil {
		return err
	}
	charges := charge.New(db, txns, 0)

	ctx := context.Background()
	token := id.Max
	swept := 0
	for {
		page, err := charges.List(ctx, uid, nil, c.Int("pagesize"), token)
		if err != nil {
			return fmt.Errorf("list charges for %s: %w", uid, err)
		}
		if len(page) == 0 {
			break
		}
		for _, ch := range page {
			if ch.Status != charge.StatusExpired {
				continue
			}
			for _, prior := range []charge.Status{charge.StatusAwaitingProvider, charge.StatusInitialized} {
				ok, err := charges.Update(ctx, uid, ch.ID,
					map[string]interface{}{"status": int8(charge.StatusExpired)}, prior)
				if err != nil {
					return fmt.Errorf("sweep charge %s: %w", ch.ID, err)
				}
				if ok {
					swept++
					break
				}
			}
			token = ch.ID
		}
		if len(page) < c.Int("pagesize") {
			break
		}
	}

	fmt.Printf("swept %d expired charge(s) for %s\n", swept, uid)
	return nil
}
