// Package main runs a small bank account entity against a journal whose store
// is configured from the environment.
//
// Run it more than once with a durable backend (such as JOURNAL_STORE=bolt)
// to watch the account's balance restored from its history on each start.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dogmatiq/journal"
	"github.com/dogmatiq/journal/store/storeconfig"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// newContext returns a cancelable context that is canceled when the process
// receives a SIGTERM or SIGINT.
func newContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	ctx, cancel := newContext()
	defer cancel()

	if err := run(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Println(err)
			os.Exit(1)
		}
	}
}

func run(ctx context.Context) error {
	cfg, err := storeconfig.Load()
	if err != nil {
		return err
	}

	f, err := cfg.Factory()
	if err != nil {
		return err
	}

	if cfg.Backend == storeconfig.SQL {
		if err := createSchema(ctx, cfg); err != nil {
			return err
		}
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync() // nolint:errcheck

	j := journal.New(
		journal.WithStore(f),
		journal.WithEventTypes(Deposited{}),
		journal.WithZapLogger(logger),
	)

	if err := j.Start(ctx); err != nil {
		return err
	}
	defer j.Stop() // nolint:errcheck

	acct := &Account{
		ID:        journal.NewIdentity(),
		AccountID: "account-123",
	}

	if err := j.OnAdmission(ctx, acct); err != nil {
		return err
	}
	defer j.OnResignation(acct.Identity())

	logger.Sugar().Infof("restored balance is %d", acct.Balance)

	if err := j.Emit(ctx, acct, Deposited{Amount: 100}); err != nil {
		return err
	}

	logger.Sugar().Infof("balance after deposit is %d", acct.Balance)

	return nil
}
