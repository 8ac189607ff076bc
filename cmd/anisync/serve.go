package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/Guilhem-Bonnet/anisync/internal/adapters/httpapi"
	"github.com/Guilhem-Bonnet/anisync/internal/app"
	"github.com/Guilhem-Bonnet/anisync/internal/buildinfo"
	"github.com/Guilhem-Bonnet/anisync/internal/domain"
	"github.com/Guilhem-Bonnet/anisync/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "API locale, synchro périodique et listener OAuth",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := setup(ctx, true)
		if err != nil {
			return err
		}
		defer s.Close()

		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			s.cfg.Addr = addr
		}
		return serve(ctx, s)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Adresse d'écoute de l'API (défaut: addr de la config)")
	rootCmd.AddCommand(serveCmd)
}

func serve(parent context.Context, s *services) error {
	logger := s.logger
	logger.Info().Interface("build", buildinfo.Current()).Str("db", s.cfg.DBPath()).Bool("offline", s.engine.Offline()).Msg("starting")

	ctx, stop := context.WithCancel(parent)
	defer stop()

	cb, err := httpapi.NewCallbackServer(logging.Component(logger, "callback"), s.auth, s.cfg.RedirectURI)
	if err != nil {
		return err
	}
	cb.OnLogin = func(ctx context.Context, _ domain.Credential) {
		if _, err := s.engine.RefreshViewer(ctx); err != nil {
			logger.Warn().Err(err).Msg("viewer refresh after login failed")
			return
		}
		if _, err := s.engine.SyncAll(ctx); err != nil && !errors.Is(err, app.ErrSyncInProgress) {
			logger.Warn().Err(err).Msg("initial sync after login failed")
		}
	}
	if err := cb.Start(); err != nil {
		return err
	}

	scheduler := app.NewSyncScheduler(logging.Component(logger, "scheduler"), s.engine)
	scheduler.SyncInterval = s.cfg.SyncInterval
	scheduler.RetryInterval = s.cfg.RetryInterval
	scheduler.SignedIn = func() bool { return s.auth.State() != app.AuthUnauthenticated }
	go scheduler.Run(ctx)

	api := httpapi.NewServer(logger, s.engine, s.auth, s.bus)
	httpServer := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", s.cfg.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server crashed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	s.engine.CancelSync()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	_ = cb.Shutdown(shutdownCtx)
	logger.Info().Msg("bye")
	return nil
}
