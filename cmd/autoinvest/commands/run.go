package commands

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/autoinvest/internal/api"
	"github.com/wonny/autoinvest/internal/api/handlers"
	"github.com/wonny/autoinvest/internal/contracts"
	"github.com/wonny/autoinvest/internal/engine"
	"github.com/wonny/autoinvest/internal/notify"
	"github.com/wonny/autoinvest/internal/schedule"
	"github.com/wonny/autoinvest/internal/scheduler"
	"github.com/wonny/autoinvest/internal/scheduler/jobs"
	"github.com/wonny/autoinvest/internal/store"
	"github.com/wonny/autoinvest/internal/t212"
	"github.com/wonny/autoinvest/pkg/httputil"
)

// runCmd starts the daemon: the reconcile loop, the Telegram command
// bot and the status API.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the auto-invest daemon",
	Long: `Starts the reconcile loop (once per minute), the Telegram command
bot and the status HTTP API.

The daemon exits when the broker session expires; the supervisor is
expected to restart it after the login helper refreshes the session.

Example:
  go run ./cmd/autoinvest run`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	st := store.NewPostgres(db.Pool)
	httpClient := httputil.New(log)

	metadata := t212.NewMetadataClient(cfg.T212, httpClient, log)
	equity, err := t212.NewEquityClient(cfg.T212, httpClient, log)
	if err != nil {
		return err
	}

	telegram := notify.NewTelegram(cfg.Telegram, httpClient, st, log)
	builder := schedule.NewBuilder(cfg.Invest.WeeklyAmount, cfg.Invest.Period,
		rand.New(rand.NewSource(time.Now().UnixNano())))
	eng := engine.New(st, metadata, equity, telegram, builder, cfg.Invest, cfg.T212.Mode, log)

	fatal := make(chan error, 1)
	sched := scheduler.New(log)
	if err := sched.AddJob(jobs.NewReconcileJob(eng, telegram, fatal, log)); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bot := notify.NewBot(telegram, st, cfg.Invest.Timezone, log)
	go bot.Run(ctx)

	var server *api.Server
	if cfg.API.Enabled {
		router := api.NewRouter(handlers.NewStatusHandler(st, db, log), log)
		server = api.New(cfg.API, log, router)
		go func() {
			if err := server.Start(); err != nil {
				log.WithError(err).Error("Status API server stopped")
			}
		}()
	}

	sched.Start()
	log.WithField("mode", cfg.T212.Mode).Info("Auto-invest daemon started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("Shutting down")
	case err := <-fatal:
		if errors.Is(err, contracts.ErrSessionExpired) {
			// Exit cleanly so the supervisor restarts us once the login
			// helper has refreshed the session.
			log.Warn("Broker session expired, exiting for session refresh")
		} else {
			log.WithError(err).Error("Fatal engine error, exiting")
			runErr = err
		}
	}

	cancel()
	sched.Stop()
	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("Failed to shut down status API")
		}
	}

	return runErr
}
