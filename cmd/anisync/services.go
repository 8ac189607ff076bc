package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Guilhem-Bonnet/anisync/internal/adapters/anilist"
	"github.com/Guilhem-Bonnet/anisync/internal/adapters/credfile"
	"github.com/Guilhem-Bonnet/anisync/internal/adapters/memorybus"
	"github.com/Guilhem-Bonnet/anisync/internal/adapters/sqlite"
	"github.com/Guilhem-Bonnet/anisync/internal/app"
	"github.com/Guilhem-Bonnet/anisync/internal/buildinfo"
	"github.com/Guilhem-Bonnet/anisync/internal/config"
	"github.com/Guilhem-Bonnet/anisync/internal/logging"
	"github.com/Guilhem-Bonnet/anisync/internal/ports"
)

// services regroupe les composants partagés par toutes les commandes.
type services struct {
	cfg    config.Config
	logger zerolog.Logger
	db     *sqlite.DB
	bus    *memorybus.Bus
	auth   *app.AuthSession
	engine *app.SyncEngine

	logCloser io.Closer
}

func setup(ctx context.Context, console bool) (*services, error) {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: configPath})
	if err != nil {
		return nil, err
	}
	if forceOffline {
		cfg.OfflineMode = true
	}

	logger, closer, err := logging.New(logging.Options{
		App:     "anisync",
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		Console: console || verbose,
	})
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	log.Logger = logger

	db, err := sqlite.Open(ctx, cfg.DBPath())
	if err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("open cache %s: %w", cfg.DBPath(), err)
	}

	var store ports.TokenStore
	switch cfg.TokenStore {
	case "sqlite":
		store = sqlite.NewCredentialsRepository(db.SQL)
	default:
		store = credfile.New(cfg.CredentialPath())
	}

	auth := app.NewAuthSession(logging.Component(logger, "auth"), store, app.AuthConfig{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURI:  cfg.RedirectURI,
		AuthURL:      cfg.AuthURL,
		TokenURL:     cfg.TokenURL,
	})
	if err := auth.Restore(ctx); err != nil {
		logger.Warn().Err(err).Msg("credential restore failed")
	}

	catalog := anilist.New(auth,
		anilist.WithEndpoint(cfg.GraphQLEndpoint),
		anilist.WithLogger(logging.Component(logger, "anilist")),
		anilist.WithUserAgent("anisync/"+buildinfo.Current().Version),
	)

	bus := memorybus.New()
	engine := app.NewSyncEngine(logging.Component(logger, "sync"), app.SyncEngineDeps{
		Media:     sqlite.NewMediaRepository(db.SQL),
		Entries:   sqlite.NewListEntriesRepository(db.SQL),
		Conflicts: sqlite.NewConflictsRepository(db.SQL),
		Meta:      sqlite.NewMetaRepository(db.SQL),
		Catalog:   catalog,
		Bus:       bus,
		Auth:      auth,
	}, app.SyncEngineConfig{
		CacheTTL:        cfg.CacheTTL(),
		OfflineMode:     cfg.OfflineMode,
		PushConcurrency: cfg.PushConcurrency,
	})

	return &services{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		bus:       bus,
		auth:      auth,
		engine:    engine,
		logCloser: closer,
	}, nil
}

func (rt *services) Close() {
	_ = rt.db.Close()
	_ = rt.logCloser.Close()
}

// withServices ouvre les composants le temps d'une commande.
func withServices(cmd *cobra.Command, fn func(ctx context.Context, rt *services) error) error {
	ctx := cmd.Context()
	rt, err := setup(ctx, false)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}
