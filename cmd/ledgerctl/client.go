package main

import (
	"fmt"
	"os"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"github.com/urfave/cli"

	"github.com/walletbase/ledgercore/charge"
	"github.com/walletbase/ledgercore/checksum"
	"github.com/walletbase/ledgercore/credit"
	"github.com/walletbase/ledgercore/id"
	"github.com/walletbase/ledgercore/store"
	"github.com/walletbase/ledgercore/store/etcdstore"
	"github.com/walletbase/ledgercore/transaction"
	"github.com/walletbase/ledgercore/wallet"
)

var etcdEndpointFlag = cli.StringSliceFlag{
	Name:  "etcd",
	Usage: "etcd endpoint (may be repeated)",
}

var etcdPrefixFlag = cli.StringFlag{
	Name:  "prefix",
	Usage: "key prefix this deployment's rows are namespaced under",
	Value: "ledgercore",
}

var mackeyFlag = cli.StringFlag{
	Name:  "mackeypath",
	Usage: "path to the 32-byte HMAC secret the wallet checksum chain uses",
}

func dial(c *cli.Context) (*etcdstore.Store, error) {
	endpoints := c.StringSlice("etcd")
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("at least one --etcd endpoint is required")
	}
	cl, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("dial etcd: %w", err)
	}
	db := etcdstore.New(cl, c.String("prefix"))
	db.Register(wallet.Table, "uid")
	db.Register(transaction.Table, "uid", "id")
	db.Register(transaction.TableByPayee, "payee", "id")
	db.Register(transaction.TableBySubPayee, "sub_payee", "id")
	db.Register(credit.Table, "uid", "txn")
	db.Register(charge.Table, "uid", "id")
	return db, nil
}

func loadChain(path string) (*checksum.Chain, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mac key: %w", err)
	}
	return checksum.NewChain(key), nil
}

func parseID(s string) (id.ID, error) {
	return id.FromString(s)
}

func openStores(c *cli.Context) (store.Store, *wallet.Store, *transaction.Store, error) {
	db, err := dial(c)
	if err != nil {
		return nil, nil, nil, err
	}
	chain, err := loadChain(c.String("mackeypath"))
	if err != nil {
		return nil, nil, nil, err
	}
	wallets := wallet.New(db, chain)
	return db, wallets, transaction.New(db, wallets), nil
}
