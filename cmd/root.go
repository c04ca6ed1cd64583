// Package cmd is the admin CLI (SPEC_FULL.md §8): a cobra command tree
// wrapping the Request Handler and Scheduler Loop, grounded on
// itsddvn-goclaw/cmd's one-subcommand-per-concern layout (cron_cmd.go,
// config_cmd.go) and error-reporting convention
// (fmt.Fprintf(os.Stderr, "Error: %s\n", err); os.Exit(1)).
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opsdash/scheduler/internal/broker"
	"github.com/opsdash/scheduler/internal/config"
	"github.com/opsdash/scheduler/internal/handler"
	"github.com/opsdash/scheduler/internal/lease"
	"github.com/opsdash/scheduler/internal/mailer"
	"github.com/opsdash/scheduler/internal/runtimectx"
	"github.com/opsdash/scheduler/internal/store/pg"

	"github.com/redis/go-redis/v9"
)

var configPath string

// Execute runs the root command, matching the teacher's cmd.Execute() entry
// point shape.
func Execute() {
	root := &cobra.Command{
		Use:   "scheduler",
		Short: "Cron-driven job scheduler",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")

	root.AddCommand(runCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(jobCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// newHandler wires a runtimectx.Context from config and returns a Request
// Handler over it, along with a close func the caller must defer.
func newHandler(ctx context.Context) (*handler.Handler, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	st, err := pg.Open(cfg.Postgres.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	leaseStore := lease.NewRedisStore(redisClient)

	mail := mailer.NewSMTPMailer(mailer.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})

	// The worker process that actually executes dispatched commands is an
	// external collaborator outside this engine's scope (spec.md §1); this
	// binary only has the submit/poll contract to talk to, so it wires the
	// in-memory adapter until a real broker transport is deployed alongside it.
	rt := runtimectx.New(st, leaseStore, broker.NewInProcess(), mail)
	rt.LeaseTTL = cfg.Scheduler.LeaseTTL
	rt.PollInterval = cfg.Scheduler.PollInterval

	closeFn := func() {
		_ = rt.Close()
		_ = redisClient.Close()
	}
	return handler.New(rt), closeFn, nil
}
