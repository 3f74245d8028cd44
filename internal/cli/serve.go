package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/library-loans/internal/config"
	"github.com/iliyamo/library-loans/internal/router"
	"github.com/iliyamo/library-loans/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = rt.log.Sync() }()
		return rt.serve(cmd.Context())
	},
}

func (r *runtime) serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := r.openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	policy, err := service.ParseReturnPolicy(r.cfg.ReturnPolicy)
	if err != nil {
		return err
	}
	var publisher service.EventPublisher = service.NopPublisher{}
	if r.cfg.EventsEnabled {
		amqpPub := service.NewAMQPPublisher(r.cfg.RabbitMQURL)
		defer func() { _ = amqpPub.Close() }()
		publisher = amqpPub
	}
	ledger := service.NewLedger(db,
		service.WithReturnPolicy(policy),
		service.WithPublisher(publisher),
		service.WithLogger(r.log.Named("ledger")),
	)

	rdb := config.NewRedisClient(ctx)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	} else {
		r.log.Warn("redis unavailable, cache and rate limit disabled")
	}

	e := router.New(router.Deps{
		Cfg:       r.cfg,
		Cache:     config.LoadCacheConfig(),
		RateLimit: config.LoadRateLimitConfig(),
		DB:        db,
		Ledger:    ledger,
		Redis:     rdb,
		Log:       r.log.Named("http"),
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + r.cfg.Port
		r.log.Info("starting HTTP server",
			zap.String("address", addr),
			zap.String("env", r.cfg.Env),
			zap.String("driver", r.cfg.DBDriver),
			zap.String("return_policy", string(policy)))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	r.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		r.log.Error("HTTP server shutdown error", zap.Error(err))
		return err
	}
	r.log.Info("server stopped")
	return nil
}
