// Command rebalancer keeps a dHEDGE fund at its target weights.
// It reads the fund composition from a node, plans exchanges and submits
// them through the manager account.
//
// Usage:
//
//	rebalancer --config rebalancer.yaml
//	rebalancer --endpoint http://127.0.0.1:8545 --pool 0x... --weights sUSD=0.5,sETH=0.5
//	rebalancer setup [path]   (interactive config wizard)
//	rebalancer history [--dir ./wal/runs] [--after N]
//
// Optional environment variables:
//
//	DHEDGE_PRIVATE_KEY       sign transactions locally with this key
//	DHEDGE_ACCOUNT_PASSWORD  unlock the manager account on the node
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/dhedge-rebalancer/config"
	"github.com/vadiminshakov/dhedge-rebalancer/internal"
	"github.com/vadiminshakov/dhedge-rebalancer/internal/clients"
	"github.com/vadiminshakov/dhedge-rebalancer/internal/domain"
	"github.com/vadiminshakov/dhedge-rebalancer/internal/logger"
	"github.com/vadiminshakov/dhedge-rebalancer/internal/setup"
	"github.com/vadiminshakov/dhedge-rebalancer/internal/storage/runs"
)

const (
	defaultConfigPath = "rebalancer.yaml"
	defaultHistoryDir = "./wal/runs"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		path := defaultConfigPath
		if len(os.Args) > 2 {
			path = os.Args[2]
		}
		if err := setup.RunTUI(path); err != nil {
			log.Fatal(err)
		}
		return
	}

	if len(os.Args) > 1 && os.Args[1] == "history" {
		if err := history(os.Args[2:]); err != nil && !errors.Is(err, flag.ErrHelp) {
			log.Fatal(err)
		}
		return
	}

	conf, err := config.Get(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatal(err)
	}

	l, err := logger.New(conf.Log)
	if err != nil {
		log.Fatal(err)
	}

	for _, w := range conf.Warnings() {
		l.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, l, conf)
	stop()
	_ = l.Sync()
	os.Exit(code)
}

func run(ctx context.Context, l *zap.Logger, conf config.Config) int {
	dialCtx, cancel := context.WithTimeout(ctx, conf.Timeout)
	client, err := clients.NewFundClient(dialCtx, l, clients.FundOptions{
		Endpoint:   conf.Endpoint,
		Pool:       conf.Pool,
		Manager:    conf.Manager,
		Password:   conf.Password,
		PrivateKey: conf.PrivateKey,
		Batching:   conf.Batching,
		GasLimit:   conf.GasLimit,
	})
	cancel()
	if err != nil {
		logFailure(l, err)
		return 1
	}
	defer client.Close()

	l.Info("connected",
		zap.String("endpoint", conf.Endpoint),
		zap.String("pool", client.Pool().Hex()),
		zap.String("manager", client.Manager().Hex()))

	opts := []internal.Option{internal.WithConfirm(setup.Confirm)}
	if conf.HistoryDir != "" {
		store, err := runs.NewWALStore(conf.HistoryDir)
		if err != nil {
			l.Error("failed to open run history", zap.Error(err))
			return 1
		}
		defer func() {
			if err := store.Close(); err != nil {
				l.Error("failed to close run history", zap.Error(err))
			}
		}()
		opts = append(opts, internal.WithHistory(store))
	}

	r := internal.NewRebalancer(l, conf, client, opts...)
	if err := r.Loop(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		return 1
	}
	return 0
}

func history(args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	dir := fs.String("dir", defaultHistoryDir, "directory of the run history WAL")
	after := fs.Uint64("after", 0, "print runs stored after this index")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := runs.NewWALStore(*dir)
	if err != nil {
		return err
	}
	defer store.Close()

	return internal.PrintHistory(os.Stdout, store, *after)
}

func logFailure(l *zap.Logger, err error) {
	kind, _ := domain.KindOf(err)
	l.Error("failed to connect to the fund",
		zap.String("stage", domain.StageOf(err)),
		zap.String("kind", string(kind)),
		zap.Error(err))
}
