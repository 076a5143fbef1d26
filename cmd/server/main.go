package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teamdiff/draft-backend/internal/catalog"
	"github.com/teamdiff/draft-backend/internal/config"
	"github.com/teamdiff/draft-backend/internal/httpapi"
	"github.com/teamdiff/draft-backend/internal/registry"
	"github.com/teamdiff/draft-backend/internal/room"
	"github.com/teamdiff/draft-backend/internal/store"
)

func main() {
	cfg := config.Load()

	var log *zap.Logger
	var err error
	if cfg.LogDev {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// One fetch at startup; an empty catalog only degrades timeout
	// auto-picks, it does not stop the server.
	champions, err := catalog.Load(ctx, nil, cfg.ChampionURL)
	if err != nil {
		log.Error("champion catalog load failed, continuing with empty catalog", zap.Error(err))
	} else {
		log.Info("champion catalog loaded", zap.Int("champions", len(champions)))
	}

	var recorder store.Recorder = store.Noop{}
	if cfg.DatabaseURL != "" {
		pg, err := store.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Error("match-record store unavailable, series results will not be persisted", zap.Error(err))
		} else {
			log.Info("match-record store connected")
			recorder = pg
		}
	}

	reg := registry.New(ctx, room.Config{
		TurnTimeout:     cfg.TurnTimeout,
		GraceDisconnect: cfg.GraceDisconnect,
		GraceLeave:      cfg.GraceLeave,
	}, registry.Deps{
		Catalog:  champions,
		Recorder: recorder,
		Log:      log,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpapi.SetupRoutes(reg, cfg.WSOrigins, log),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
