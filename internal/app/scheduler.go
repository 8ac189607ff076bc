package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// syncer est la partie du SyncEngine pilotée par le scheduler.
type syncer interface {
	Offline() bool
	SyncAll(ctx context.Context) (SyncReport, error)
	PushPending(ctx context.Context) (PushReport, error)
}

// SyncScheduler déclenche une synchro complète à intervalle régulier et,
// entre deux, retente les pushs en attente dont le backoff est échu.
type SyncScheduler struct {
	logger zerolog.Logger
	engine syncer

	SyncInterval  time.Duration
	RetryInterval time.Duration
	// SyncOnStart lance une passe complète dès le démarrage.
	SyncOnStart bool
	// SignedIn, si renseigné, suspend les passes tant qu'il renvoie false:
	// sans credential chaque passe échouerait sur une reconnexion requise.
	SignedIn func() bool
}

func NewSyncScheduler(logger zerolog.Logger, engine syncer) *SyncScheduler {
	return &SyncScheduler{
		logger:        logger,
		engine:        engine,
		SyncInterval:  15 * time.Minute,
		RetryInterval: 5 * time.Second,
		SyncOnStart:   true,
	}
}

func (sch *SyncScheduler) Run(ctx context.Context) {
	syncEvery := sch.SyncInterval
	if syncEvery <= 0 {
		syncEvery = 15 * time.Minute
	}
	retryEvery := sch.RetryInterval
	if retryEvery <= 0 {
		retryEvery = 5 * time.Second
	}
	syncTicker := time.NewTicker(syncEvery)
	defer syncTicker.Stop()
	retryTicker := time.NewTicker(retryEvery)
	defer retryTicker.Stop()

	if sch.SyncOnStart {
		sch.syncTick(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			sch.logger.Info().Msg("sync scheduler stopped")
			return
		case <-syncTicker.C:
			sch.syncTick(ctx)
		case <-retryTicker.C:
			sch.retryTick(ctx)
		}
	}
}

func (sch *SyncScheduler) idle() bool {
	if sch.engine == nil || sch.engine.Offline() {
		return true
	}
	return sch.SignedIn != nil && !sch.SignedIn()
}

func (sch *SyncScheduler) syncTick(ctx context.Context) {
	if sch.idle() {
		return
	}
	report, err := sch.engine.SyncAll(ctx)
	switch {
	case err == nil:
		sch.logger.Debug().Str("pass_id", report.PassID).Msg("scheduled sync done")
	case errors.Is(err, ErrSyncInProgress), errors.Is(err, ErrOffline), errors.Is(err, context.Canceled):
	default:
		sch.logger.Warn().Err(err).Str("pass_id", report.PassID).Msg("scheduled sync failed")
	}
}

func (sch *SyncScheduler) retryTick(ctx context.Context) {
	if sch.idle() {
		return
	}
	if _, err := sch.engine.PushPending(ctx); err != nil && !errors.Is(err, ErrOffline) && !errors.Is(err, context.Canceled) {
		sch.logger.Warn().Err(err).Msg("scheduled push failed")
	}
}
