package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/opsdash/scheduler/internal/broker"
	"github.com/opsdash/scheduler/internal/config"
	"github.com/opsdash/scheduler/internal/jobcache"
	"github.com/opsdash/scheduler/internal/lease"
	"github.com/opsdash/scheduler/internal/mailer"
	"github.com/opsdash/scheduler/internal/runtimectx"
	"github.com/opsdash/scheduler/internal/scheduler"
	"github.com/opsdash/scheduler/internal/store/pg"
	"github.com/opsdash/scheduler/internal/tracing"

	"github.com/redis/go-redis/v9"
)

// exitBusy matches spec.md §4.4's "exit with code BUSY" requirement for a
// second scheduler instance losing the lease race.
const exitBusy = 75

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the scheduler loop",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runScheduler(cmd.Context()); err != nil {
				if errors.Is(err, scheduler.ErrBusy) {
					fmt.Fprintln(os.Stderr, "another instance already holds the scheduler lease")
					os.Exit(exitBusy)
				}
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
		},
	}
}

func runScheduler(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := pg.Open(cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	mail := mailer.NewSMTPMailer(mailer.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})

	limitedBroker := broker.NewRateLimited(broker.NewInProcess(), cfg.Scheduler.BrokerRPS, cfg.Scheduler.BrokerBurst)

	rt := runtimectx.New(st, lease.NewRedisStore(redisClient), limitedBroker, mail)
	rt.LeaseTTL = cfg.Scheduler.LeaseTTL
	rt.PollInterval = cfg.Scheduler.PollInterval
	rt.JobCache = jobcache.New(cfg.Scheduler.JobCacheSize)
	defer rt.Close()

	tp := tracing.New("opsdash-scheduler")
	otel.SetTracerProvider(tp.TracerProvider())
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	watcher, err := config.NewWatcher(configPath, cfg)
	if err != nil {
		slog.Warn("config hot-reload disabled", "error", err)
	} else {
		watcher.OnChange(func(_, next *config.Config) {
			rt.LeaseTTL = next.Scheduler.LeaseTTL
			rt.PollInterval = next.Scheduler.PollInterval
		})
		if err := watcher.Start(); err != nil {
			slog.Warn("config hot-reload failed to start", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	sched := scheduler.New(rt)

	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return sched.Run(sigCtx)
}
