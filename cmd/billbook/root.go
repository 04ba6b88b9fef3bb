package main

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xraph/billbook"
	"github.com/xraph/billbook/cache/redis"
	"github.com/xraph/billbook/export"
	"github.com/xraph/billbook/store/backend"
)

var version = "0.1.0"

// app carries what every subcommand needs once PersistentPreRunE ran.
type app struct {
	cfgFile   string
	exportDir string
	cfg       *config
	logger    *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "billbook",
		Short: "Operate a multi-branch invoice ledger",
		Long: `billbook manages the invoice ledger of a multi-branch retail business:
branch numbering, accounting export to Tally and sales reports.

Configuration is read from billbook.yaml (or --config) and BILLBOOK_*
environment variables; a .env file in the working directory is loaded first.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(viper.New(), a.cfgFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = cfg.logger()
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default ./billbook.yaml)")

	root.AddCommand(
		newMigrateCmd(a),
		newBranchCmd(a),
		newExportCmd(a),
		newExportStatusCmd(a),
		newReportCmd(a),
	)
	return root
}

// engine opens the configured store and builds a started engine. The
// returned func stops it.
func (a *app) engine(ctx context.Context) (*billbook.Engine, func(), error) {
	driver := backend.Normalize(a.cfg.Store.Driver)

	db, err := backend.Open(ctx, driver, a.cfg.Store.DSN)
	if err != nil {
		return nil, nil, err
	}
	s, err := backend.New(driver, db)
	if err != nil {
		return nil, nil, err
	}

	loc, err := a.cfg.location()
	if err != nil {
		return nil, nil, err
	}

	dir := a.cfg.Export.Dir
	if a.exportDir != "" {
		dir = a.exportDir
	}
	var sink export.Sink = export.NewFileSink(dir)
	if a.cfg.Export.Retries > 1 {
		sink = export.NewRetrySink(sink, a.cfg.Export.Retries)
	}

	opts := []billbook.Option{
		billbook.WithLogger(a.logger),
		billbook.WithLocation(loc),
		billbook.WithCurrency(a.cfg.Currency),
		billbook.WithSink(sink),
		billbook.WithDeliveryTimeout(a.cfg.Export.Timeout),
	}

	var rdb *goredis.Client
	if a.cfg.Redis.Addr != "" {
		rdb = goredis.NewClient(&goredis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		opts = append(opts, billbook.WithBranchCache(redis.New(rdb, a.cfg.Redis.TTL)))
	}

	eng := billbook.New(s, opts...)
	if err := eng.Start(ctx); err != nil {
		_ = s.Close()
		return nil, nil, fmt.Errorf("start engine: %w", err)
	}

	stop := func() {
		if err := eng.Stop(); err != nil {
			a.logger.Warn("engine stop", "error", err)
		}
		if rdb != nil {
			_ = rdb.Close()
		}
	}
	return eng, stop, nil
}
