package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/tinoosan/fota/internal/device"
	"github.com/tinoosan/fota/internal/fetch"
	"github.com/tinoosan/fota/internal/history"
	"github.com/tinoosan/fota/internal/metrics"
	"github.com/tinoosan/fota/internal/recorder"
	"github.com/tinoosan/fota/internal/router"
	"github.com/tinoosan/fota/internal/sink"
	"github.com/tinoosan/fota/internal/stream"
	"github.com/tinoosan/fota/internal/updatecfg"
	"github.com/tinoosan/fota/internal/updater"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the update loop and the control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, v)
		},
	}
}

func run(ctx context.Context, v *viper.Viper) error {
	logger, closer, err := newLogger(v)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()
	logger = logger.With("operation_id", uuid.NewString())

	cfg := updatecfg.Load(v)
	svc := updatecfg.LoadService(v)
	metrics.Register()

	identity, err := device.Identity(svc.Interface, svc.DeviceID)
	if err != nil {
		return err
	}

	var repo history.Repo
	if svc.DatabaseURL != "" {
		pg, err := history.NewPostgresRepo(ctx, svc.DatabaseURL)
		if err != nil {
			return err
		}
		defer func() { _ = pg.Close() }()
		repo = pg
		logger.Info("history stored in postgres")
	} else {
		repo = history.NewInMemoryRepo(svc.HistorySize)
	}

	events := make(chan updater.Event, 64)
	rec := recorder.New(logger, repo, events)
	rec.Run()
	defer rec.Stop()

	hub := stream.NewHub(logger)
	defer hub.Close()

	engine := updater.New(updater.Options{
		Config:    cfg,
		Identity:  identity,
		Link:      device.NewLink(logger, svc.Interface),
		Sink:      sink.NewFile(logger, svc.SinkPath),
		Restarter: device.NewCommandRestarter(logger, svc.RestartCommand),
		Fetcher:   fetch.NewClient(fetch.DefaultOptions()),
		Reporter:  updater.MultiReporter{updater.NewChanReporter(events), hub},
		Logger:    logger,
	})
	if err := engine.Begin(ctx); err != nil {
		return err
	}
	defer engine.Stop()

	g, gctx := errgroup.WithContext(ctx)
	if svc.Listen != "" {
		server := &http.Server{
			Addr:              svc.Listen,
			Handler:           router.New(logger, engine, repo, hub, svc.APIToken),
			IdleTimeout:       120 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("starting control API", "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-gctx.Done():
			case <-engine.Done():
			}
			hub.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-engine.Done():
			logger.Info("update loop exited", "phase", engine.Phase())
		}
		return nil
	})

	err = g.Wait()
	if ctx.Err() != nil {
		logger.Info("received terminate, graceful shutdown")
	}
	return err
}
