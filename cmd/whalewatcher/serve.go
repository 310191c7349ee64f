package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"whalewatcher/internal/adapters/httpapi"
	"whalewatcher/internal/blob"
	"whalewatcher/internal/config"
	"whalewatcher/internal/core"
	eventsredis "whalewatcher/internal/infra/events/redis"
	"whalewatcher/internal/infra/metrics"
	"whalewatcher/internal/infra/tracing"
	"whalewatcher/internal/logging"
	"whalewatcher/internal/seed"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

// app holds everything serve wires together.
type app struct {
	handler http.Handler
	service *core.Service
	logger  *zap.Logger
	closers []func(context.Context) error
}

func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("shutdown step failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func buildApp(ctx context.Context, cfg config.Config, traceOut io.Writer) (*app, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "whalewatcher")
	if err != nil {
		return nil, err
	}
	a := &app{logger: logger}
	fail := func(err error) (*app, error) {
		a.close(ctx)
		return nil, err
	}

	store, err := core.OpenPersistentStore(cfg.Storage, core.NewDefaultRulesEngine())
	if err != nil {
		return fail(fmt.Errorf("open store: %w", err))
	}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, func(context.Context) error { return c.Close() })
	}

	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return fail(fmt.Errorf("open blob store: %w", err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metrics.NewRecorder(reg)
	if err != nil {
		return fail(err)
	}

	opts := append(cfg.ServiceOptions(),
		core.WithLogger(logging.NewAdapter(logger)),
		core.WithMetricsRecorder(recorder),
		core.WithBlobStore(blobs),
	)
	if cfg.Store.Seed {
		snap, err := seed.Load()
		if err != nil {
			return fail(err)
		}
		opts = append(opts, core.WithSeed(snap))
	}
	if cfg.Tracing.Enabled {
		tp, err := tracing.NewStdoutProvider(traceOut)
		if err != nil {
			return fail(err)
		}
		a.closers = append(a.closers, tp.Shutdown)
		opts = append(opts, core.WithTracer(tracing.New(tp)))
	}
	if cfg.Redis.Addr != "" {
		client := eventsredis.NewClient(eventsredis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		pub := eventsredis.NewPublisher(client, cfg.Redis.Stream, cfg.Redis.MaxLen)
		if err := pub.Ping(ctx); err != nil {
			logger.Warn("redis unreachable, events will be dropped until it recovers", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		opts = append(opts, core.WithEventPublisher(pub))
	}

	a.service = core.NewService(store, opts...)
	if _, err := a.service.EnsureSeeded(ctx); err != nil {
		return fail(fmt.Errorf("seed store: %w", err))
	}
	a.handler = httpapi.NewRouter(a.service, httpapi.Options{
		Logger:  logger,
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	return a, nil
}

func serve(ctx context.Context, cfg config.Config, traceOut io.Writer) error {
	a, err := buildApp(ctx, cfg, traceOut)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", zap.String("addr", cfg.HTTP.Addr),
			zap.String("storage", string(cfg.Storage.Driver)), zap.String("blob", string(cfg.Blob.Driver)))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err = srv.Shutdown(shutdownCtx)
		a.close(shutdownCtx)
		return err
	}
	a.close(context.Background())
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
