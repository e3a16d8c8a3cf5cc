// Package ledgercore wires together the wallet, transaction, credit, and
// charge stores behind a single set of startup-time subsystem loggers, the
// same shape dcrlnd's own root log.go uses to fan a single rotating log
// file out to one decred/slog logger per package.
package ledgercore

import (
	"github.com/decred/slog"

	"github.com/walletbase/ledgercore/build"
	"github.com/walletbase/ledgercore/charge"
	"github.com/walletbase/ledgercore/credit"
	"github.com/walletbase/ledgercore/transaction"
	"github.com/walletbase/ledgercore/wallet"
)

// replaceableLogger lets a package-level logger var be swapped out once the
// root rotating log writer is ready, without callers holding a stale copy.
type replaceableLogger struct {
	slog.Logger
	subsystem string
}

var (
	pkgLoggers []*replaceableLogger

	addPkgLogger = func(subsystem string) *replaceableLogger {
		l := &replaceableLogger{
			Logger:    build.NewSubLogger(subsystem, nil),
			subsystem: subsystem,
		}
		pkgLoggers = append(pkgLoggers, l)
		return l
	}

	// wltLog and txnLog are referenced directly from this package (the
	// future server/API layer); the rest are wired straight into their
	// own packages by SetupLoggers.
	wltLog = addPkgLogger("WLLT")
	txnLog = addPkgLogger("TRXN")
)

// SetupLoggers initializes every package-level subsystem logger, routing
// all of them through root.
func SetupLoggers(root *build.RotatingLogWriter) {
	for _, l := range pkgLoggers {
		l.Logger = build.NewSubLogger(l.subsystem, root.GenSubLogger)
		SetSubLogger(root, l.subsystem, l.Logger)
	}

	wallet.UseLogger(wltLog.Logger)
	transaction.UseLogger(txnLog.Logger)

	AddSubLogger(root, "CRDT", credit.UseLogger)
	AddSubLogger(root, "CHRG", charge.UseLogger)
}

// AddSubLogger creates and registers the logger for one or more subsystems
// sharing a single underlying logger instance.
func AddSubLogger(root *build.RotatingLogWriter, subsystem string, useLoggers ...func(slog.Logger)) {
	logger := build.NewSubLogger(subsystem, root.GenSubLogger)
	SetSubLogger(root, subsystem, logger, useLoggers...)
}

// SetSubLogger registers logger as the active logger for subsystem.
func SetSubLogger(root *build.RotatingLogWriter, subsystem string, logger slog.Logger, useLoggers ...func(slog.Logger)) {
	root.RegisterSubLogger(subsystem, logger)
	for _, useLogger := range useLoggers {
		useLogger(logger)
	}
}
