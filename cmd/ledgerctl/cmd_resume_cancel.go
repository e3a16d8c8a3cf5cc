package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli"
)

var resumeCancelCommand = cli.Command{
	Name:      "resume-cancel",
	Category:  "Reconciliation",
	Usage:     "Re-invoke Cancel on a transaction stuck at status=cancelling.",
	ArgsUsage: "--uid <payer-uid> --txn <txn-id>",
	Flags: []cli.Flag{
		etcdEndpointFlag, etcdPrefixFlag, mackeyFlag,
		cli.StringFlag{Name: "uid", Usage: "payer wallet uid"},
		cli.StringFlag{Name: "txn", Usage: "transaction id"},
	},
	Action: actionDecorator(resumeCancel),
}

func resumeCancel(c *cli.Context) error {
	uid, err := parseID(c.String("uid"))
	if err != nil {
		return fmt.Errorf("invalid uid: %w", err)
	}
	txnID, err := parseID(c.String("txn"))
	if err != nil {
		return fmt.Errorf("invalid txn: %w", err)
	}

	_, _, txns, err := openStores(c)
	if err != nil {
		return err
	}

	if err := txns.Cancel(context.Background(), uid, txnID); err != nil {
		return fmt.Errorf("resume-cancel %s: %w", txnID, err)
	}
	fmt.Printf("transaction %s cancelled\n", txnID)
	return nil
}
