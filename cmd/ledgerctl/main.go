// Command ledgerctl is the ledger core's operator CLI, grounded on
// dcrlncli's command-per-file structure: one urfave/cli.Command per
// reconciliation task an external operator runs by hand against rows an
// automated sub-task loop left stuck.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "ledgerctl"
	app.Usage = "operator tooling for the ledger core"
	app.Commands = []cli.Command{
		sweepChargesCommand,
		resumeCommitCommand,
		resumeCancelCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "[ledgerctl] %v\n", err)
		os.Exit(1)
	}
}

// actionDecorator mirrors dcrlncli's own actionDecorator: it lets a command
// Action return an error without every command re-wiring its own
// error-to-exit-code plumbing.
func actionDecorator(f func(*cli.Context) error) func(*cli.Context) error {
	return func(c *cli.Context) error {
		if err := f(c); err != nil {
			return err
		}
		return nil
	}
}
