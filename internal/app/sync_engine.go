package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Guilhem-Bonnet/anisync/internal/domain"
	"github.com/Guilhem-Bonnet/anisync/internal/ports"
	"github.com/Guilhem-Bonnet/anisync/internal/validation"
)

var (
	ErrOffline        = errors.New("offline mode")
	ErrNotConflicted  = errors.New("list entry is not conflicted")
	ErrSyncInProgress = errors.New("a sync is already running")
)

const (
	DefaultCacheTTL = 24 * time.Hour

	metaViewer   = "viewer"
	metaLastPull = "last_pull"
	metaLastSync = "last_sync"
)

type SyncEngineConfig struct {
	CacheTTL        time.Duration
	OfflineMode     bool
	PushConcurrency int
	Policy          *RetryPolicy
}

type SyncEngineDeps struct {
	Media     ports.MediaRepository
	Entries   ports.ListEntryRepository
	Conflicts ports.ConflictRepository
	Meta      ports.MetaRepository
	Catalog   ports.CatalogClient
	Bus       ports.EventBus
	// Auth est optionnel: utilisé par Logout.
	Auth interface {
		Logout(ctx context.Context) error
	}
}

// SyncEngine sert les lectures depuis le cache, applique les écritures
// localement puis les pousse, et réconcilie la liste avec le serveur.
type SyncEngine struct {
	logger    zerolog.Logger
	media     ports.MediaRepository
	entries   ports.ListEntryRepository
	conflicts ports.ConflictRepository
	meta      ports.MetaRepository
	catalog   ports.CatalogClient
	bus       ports.EventBus
	auth      interface{ Logout(ctx context.Context) error }

	validate *validation.Validator
	policy   *RetryPolicy
	locks    *entryLocks
	ttl      time.Duration
	workers  int
	offline  atomic.Bool

	Now func() time.Time

	backoffMu sync.Mutex
	backoff   map[int64]backoffState

	syncMu     sync.Mutex
	syncCancel context.CancelFunc
}

type backoffState struct {
	attempts int
	next     time.Time
}

func NewSyncEngine(logger zerolog.Logger, deps SyncEngineDeps, cfg SyncEngineConfig) *SyncEngine {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	workers := cfg.PushConcurrency
	if workers <= 0 {
		workers = 1
	}
	policy := cfg.Policy
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	if policy.Rand == nil {
		policy.Rand = rand.Float64
	}
	e := &SyncEngine{
		logger:    logger,
		media:     deps.Media,
		entries:   deps.Entries,
		conflicts: deps.Conflicts,
		meta:      deps.Meta,
		catalog:   deps.Catalog,
		bus:       deps.Bus,
		auth:      deps.Auth,
		validate:  validation.New(),
		policy:    policy,
		locks:     newEntryLocks(),
		ttl:       ttl,
		workers:   workers,
		Now:       func() time.Time { return time.Now().UTC() },
		backoff:   make(map[int64]backoffState),
	}
	e.offline.Store(cfg.OfflineMode)
	return e
}

func (e *SyncEngine) Offline() bool { return e.offline.Load() }

func (e *SyncEngine) SetOffline(v bool) {
	if e.offline.Swap(v) != v {
		e.logger.Info().Bool("offline", v).Msg("offline mode changed")
	}
}

// authNotifier émet au plus un auth.required par passe.
type authNotifier struct {
	once sync.Once
	bus  ports.EventBus
}

func (n *authNotifier) check(err error) {
	if !ports.RequiresReauth(err) {
		return
	}
	n.once.Do(func() {
		publish(n.bus, ports.TopicAuthRequired, AuthRequiredEvent{Reason: err.Error()})
	})
}

// ---- Lectures ----

// ViewMedia sert la fiche en cache si elle est fraîche, sinon la récupère.
// Une copie périmée est servie en cas d'échec réseau ou hors ligne.
func (e *SyncEngine) ViewMedia(ctx context.Context, id int) (domain.Media, error) {
	cached, err := retryIO(ctx, func() (domain.Media, error) { return e.media.Get(ctx, id) })
	have := err == nil
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		e.logger.Warn().Err(err).Int("media_id", id).Msg("media cache read failed")
	}
	if have && !cached.Stale(e.Now(), e.ttl) {
		return cached, nil
	}

	if e.Offline() {
		if have {
			publish(e.bus, ports.TopicMediaReady, MediaReadyEvent{MediaID: id, Stale: true})
			return cached, nil
		}
		return domain.Media{}, ports.ErrNotFound
	}

	fresh, err := e.catalog.FetchMedia(ctx, id)
	if err != nil {
		if have && !errors.Is(err, context.Canceled) {
			e.logger.Warn().Err(err).Int("media_id", id).Msg("media refresh failed, serving stale copy")
			publish(e.bus, ports.TopicMediaReady, MediaReadyEvent{MediaID: id, Stale: true})
			return cached, nil
		}
		return domain.Media{}, err
	}

	if err := retryIOErr(ctx, func() error { return e.media.Put(context.WithoutCancel(ctx), fresh) }); err != nil {
		e.logger.Warn().Err(err).Int("media_id", id).Msg("media cache write failed")
	}
	publish(e.bus, ports.TopicMediaReady, MediaReadyEvent{MediaID: id})
	return fresh, nil
}

// SearchMedia interroge le catalogue et retombe sur les titres en cache
// hors ligne ou si le serveur est injoignable.
func (e *SyncEngine) SearchMedia(ctx context.Context, q string, page, perPage int) ([]domain.Media, error) {
	if e.Offline() {
		return e.media.Search(ctx, q, perPage)
	}
	res, err := e.catalog.SearchMedia(ctx, q, page, perPage)
	if err != nil {
		if errors.Is(err, ports.ErrNetwork) || errors.Is(err, ports.ErrServerError) || errors.Is(err, ports.ErrRateLimited) {
			e.logger.Warn().Err(err).Msg("search failed, using cached titles")
			return e.media.Search(ctx, q, perPage)
		}
		return nil, err
	}
	for _, m := range res {
		if err := e.media.Put(context.WithoutCancel(ctx), m); err != nil {
			e.logger.Warn().Err(err).Int("media_id", m.ID).Msg("media cache write failed")
		}
	}
	return res, nil
}

func (e *SyncEngine) FetchUserProfile(ctx context.Context, name string) (domain.UserProfile, error) {
	if e.Offline() {
		return domain.UserProfile{}, ErrOffline
	}
	return e.catalog.FetchUserProfile(ctx, name)
}

func (e *SyncEngine) ListEntries(ctx context.Context) ([]domain.ListEntry, error) {
	return retryIO(ctx, func() ([]domain.ListEntry, error) { return e.entries.List(ctx) })
}

func (e *SyncEngine) ListEntry(ctx context.Context, localID int64) (domain.ListEntry, error) {
	return retryIO(ctx, func() (domain.ListEntry, error) { return e.entries.Get(ctx, localID) })
}

type ConflictView struct {
	Conflict domain.Conflict
	Local    domain.ListEntry
}

func (e *SyncEngine) Conflicts(ctx context.Context) ([]ConflictView, error) {
	list, err := retryIO(ctx, func() ([]domain.Conflict, error) { return e.conflicts.List(ctx) })
	if err != nil {
		return nil, err
	}
	out := make([]ConflictView, 0, len(list))
	for _, c := range list {
		local, err := e.entries.Get(ctx, c.LocalID)
		if err != nil {
			return nil, err
		}
		out = append(out, ConflictView{Conflict: c, Local: local})
	}
	return out, nil
}

// Viewer renvoie l'utilisateur connecté, mis en cache dans meta.
func (e *SyncEngine) Viewer(ctx context.Context) (domain.Viewer, error) {
	if raw, err := e.meta.Get(ctx, metaViewer); err == nil {
		var v domain.Viewer
		if json.Unmarshal(raw, &v) == nil && v.ID > 0 {
			return v, nil
		}
	}
	if e.Offline() {
		return domain.Viewer{}, ErrOffline
	}
	return e.RefreshViewer(ctx)
}

// RefreshViewer interroge le serveur (après une connexion par exemple).
func (e *SyncEngine) RefreshViewer(ctx context.Context) (domain.Viewer, error) {
	v, err := e.catalog.Viewer(ctx)
	if err != nil {
		return domain.Viewer{}, err
	}
	if b, err := json.Marshal(v); err == nil {
		if err := e.meta.Put(context.WithoutCancel(ctx), metaViewer, b); err != nil {
			e.logger.Warn().Err(err).Msg("viewer cache write failed")
		}
	}
	return v, nil
}

// ---- Écritures ----

type SetListEntryRequest struct {
	MediaID    int      `json:"mediaId" validate:"required,gt=0"`
	Status     string   `json:"status,omitempty" validate:"omitempty,oneof=CURRENT PLANNING COMPLETED DROPPED PAUSED REPEATING"`
	Score      *float64 `json:"score,omitempty" validate:"omitempty,gte=0,lte=10"`
	ClearScore bool     `json:"clearScore,omitempty"`
	Progress   *int     `json:"progress,omitempty" validate:"omitempty,gte=0"`
}

// SetListEntry applique l'édition localement (DIRTY) puis tente un push.
// L'échec du push n'est pas une erreur: l'entrée reste en attente.
func (e *SyncEngine) SetListEntry(ctx context.Context, req SetListEntryRequest) (domain.ListEntry, error) {
	if err := e.validate.Validate(req); err != nil {
		return domain.ListEntry{}, err
	}
	if req.Progress != nil {
		if m, err := e.media.Get(ctx, req.MediaID); err == nil {
			if limit := m.MaxProgress(); limit > 0 && *req.Progress > limit {
				return domain.ListEntry{}, &validation.Error{Fields: map[string]string{
					"progress": fmt.Sprintf("must not exceed %d", limit),
				}}
			}
		}
	}

	unlock := e.locks.Lock(req.MediaID)
	defer unlock()

	commit := context.WithoutCancel(ctx)
	cur, err := retryIO(ctx, func() (domain.ListEntry, error) { return e.entries.GetByMediaID(ctx, req.MediaID) })
	exists := err == nil
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return domain.ListEntry{}, err
	}
	if !exists {
		cur = domain.ListEntry{MediaID: req.MediaID}
	}

	next := cur
	if req.Status != "" {
		next.Status = domain.ListStatus(req.Status)
	}
	switch {
	case req.ClearScore:
		next.Score = nil
	case req.Score != nil:
		v := *req.Score
		next.Score = &v
	}
	if req.Progress != nil {
		next.Progress = *req.Progress
	}
	if !exists && next.Status == "" {
		return domain.ListEntry{}, &validation.Error{Fields: map[string]string{"status": "is required for a new entry"}}
	}
	if exists && next.SameContent(cur) {
		return cur, nil
	}

	next.UpdatedAtLocal = e.Now()
	if cur.SyncState != domain.SyncConflicted {
		next.SyncState = domain.SyncDirty
	}
	saved, err := retryIO(commit, func() (domain.ListEntry, error) { return e.entries.Upsert(commit, next) })
	if err != nil {
		return domain.ListEntry{}, err
	}
	e.clearBackoff(saved.LocalID)
	dto := ToListEntryDTO(saved)
	publish(e.bus, ports.TopicListUpdated, ListUpdatedEvent{Source: "local", Entry: &dto})
	e.logger.Info().Int64("local_id", saved.LocalID).Int("media_id", saved.MediaID).Str("sync_state", string(saved.SyncState)).Msg("list entry saved")

	if saved.SyncState != domain.SyncDirty || e.Offline() {
		return saved, nil
	}
	notifier := &authNotifier{bus: e.bus}
	viewer, err := e.Viewer(ctx)
	if err != nil {
		notifier.check(err)
		e.logger.Debug().Err(err).Msg("immediate push skipped")
		return saved, nil
	}
	out, _, err := e.pushLocked(ctx, e.logger, viewer.ID, saved.LocalID)
	if err != nil {
		notifier.check(err)
		e.logger.Debug().Err(err).Int64("local_id", saved.LocalID).Msg("immediate push aborted")
		return saved, nil
	}
	return out, nil
}

// ---- Push ----

type pushOutcome string

const (
	outcomeSkipped    pushOutcome = "skipped"
	outcomePushed     pushOutcome = "pushed"
	outcomeConflicted pushOutcome = "conflicted"
	outcomeDeferred   pushOutcome = "deferred"
)

type PushReport struct {
	PassID     string `json:"passId"`
	Attempted  int    `json:"attempted"`
	Pushed     int    `json:"pushed"`
	Conflicted int    `json:"conflicted"`
	Deferred   int    `json:"deferred"`
	Waiting    int    `json:"waiting"`
}

// PushPending pousse chaque entrée DIRTY dont le backoff est échu.
func (e *SyncEngine) PushPending(ctx context.Context) (PushReport, error) {
	return e.pushPending(ctx, xid.New().String(), &authNotifier{bus: e.bus})
}

func (e *SyncEngine) pushPending(ctx context.Context, passID string, notifier *authNotifier) (PushReport, error) {
	report := PushReport{PassID: passID}
	if e.Offline() {
		return report, ErrOffline
	}
	log := e.logger.With().Str("pass_id", passID).Logger()

	dirty, err := retryIO(ctx, func() ([]domain.ListEntry, error) { return e.entries.ListByState(ctx, domain.SyncDirty) })
	if err != nil {
		return report, err
	}
	if len(dirty) == 0 {
		return report, nil
	}

	viewer, err := e.Viewer(ctx)
	if err != nil {
		notifier.check(err)
		return report, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	now := e.Now()
	for _, entry := range dirty {
		if !e.due(entry.LocalID, now) {
			report.Waiting++
			continue
		}
		if gctx.Err() != nil {
			break
		}
		entry := entry
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			unlock := e.locks.Lock(entry.MediaID)
			defer unlock()

			_, outcome, err := e.pushLocked(gctx, log, viewer.ID, entry.LocalID)
			mu.Lock()
			switch outcome {
			case outcomePushed:
				report.Attempted++
				report.Pushed++
			case outcomeConflicted:
				report.Attempted++
				report.Conflicted++
			case outcomeDeferred:
				report.Attempted++
				report.Deferred++
			}
			mu.Unlock()
			if err != nil {
				notifier.check(err)
				return err
			}
			return nil
		})
	}

	err = g.Wait()
	log.Info().
		Int("pushed", report.Pushed).
		Int("conflicted", report.Conflicted).
		Int("deferred", report.Deferred).
		Int("waiting", report.Waiting).
		Err(err).
		Msg("push pass done")
	if err != nil {
		return report, err
	}
	return report, ctx.Err()
}

// pushLocked pousse une entrée DIRTY; l'appelant tient le verrou de l'entrée.
// Une erreur n'est renvoyée que lorsque la passe doit s'arrêter.
func (e *SyncEngine) pushLocked(ctx context.Context, log zerolog.Logger, userID int, localID int64) (domain.ListEntry, pushOutcome, error) {
	commit := context.WithoutCancel(ctx)

	entry, err := retryIO(ctx, func() (domain.ListEntry, error) { return e.entries.Get(ctx, localID) })
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return domain.ListEntry{}, outcomeSkipped, nil
		}
		return domain.ListEntry{}, outcomeSkipped, err
	}
	if entry.SyncState != domain.SyncDirty {
		return entry, outcomeSkipped, nil
	}
	log = log.With().Int64("local_id", entry.LocalID).Int("media_id", entry.MediaID).Logger()

	pushed := e.clampProgress(ctx, entry)
	if pushed.Progress != entry.Progress {
		// La borne a été apprise après l'édition: le cache suit ce qui part.
		saved, err := retryIO(ctx, func() (domain.ListEntry, error) { return e.entries.Upsert(commit, pushed) })
		if err != nil {
			log.Error().Err(err).Msg("progress clamp write failed")
			return entry, outcomeDeferred, nil
		}
		log.Info().Int("from", entry.Progress).Int("to", saved.Progress).Msg("progress clamped to media length")
		entry, pushed = saved, saved
	}

	remote, err := e.catalog.FetchListEntry(ctx, userID, entry.MediaID)
	switch {
	case err == nil:
		if pushed.SameContent(remote) {
			// Déjà à jour côté serveur: on ne fait que relier les identifiants.
			return e.commitClean(commit, log, entry.LocalID, remote.RemoteID, remote.UpdatedAtRemote)
		}
		if remoteDiverged(entry, remote) {
			return e.commitConflict(commit, log, entry, domain.Conflict{
				LocalID:    entry.LocalID,
				Reason:     domain.ConflictRemoteNewer,
				Remote:     &remote,
				Message:    "remote entry changed since last sync",
				DetectedAt: e.Now(),
			})
		}
		if !pushed.HasRemoteID() {
			pushed.RemoteID = remote.RemoteID
		}
	case errors.Is(err, ports.ErrAPINotFound):
		if entry.HasRemoteID() {
			return e.commitConflict(commit, log, entry, domain.Conflict{
				LocalID:    entry.LocalID,
				Reason:     domain.ConflictNotFound,
				Message:    "remote entry was deleted",
				DetectedAt: e.Now(),
			})
		}
	default:
		return e.handlePushError(commit, log, entry, err)
	}

	res, err := e.catalog.PushListEntry(ctx, pushed)
	if err != nil {
		return e.handlePushError(commit, log, entry, err)
	}
	return e.commitClean(commit, log, entry.LocalID, res.RemoteID, res.UpdatedAtRemote)
}

// remoteDiverged: la version serveur n'est pas celle sur laquelle l'édition
// locale s'appuie. Les horodatages serveur font foi; l'heure locale n'est
// comparée que lorsque la version serveur diffère de la base connue.
func remoteDiverged(local, remote domain.ListEntry) bool {
	if remote.UpdatedAtRemote.After(local.UpdatedAtRemote) {
		return true
	}
	return !remote.UpdatedAtRemote.Equal(local.UpdatedAtRemote) && remote.UpdatedAtRemote.After(local.UpdatedAtLocal)
}

func (e *SyncEngine) clampProgress(ctx context.Context, entry domain.ListEntry) domain.ListEntry {
	m, err := e.media.Get(ctx, entry.MediaID)
	if err != nil {
		return entry
	}
	if limit := m.MaxProgress(); limit > 0 && entry.Progress > limit {
		entry.Progress = limit
	}
	return entry
}

func (e *SyncEngine) commitClean(ctx context.Context, log zerolog.Logger, localID int64, remoteID int, at time.Time) (domain.ListEntry, pushOutcome, error) {
	clean, err := retryIO(ctx, func() (domain.ListEntry, error) { return e.entries.MarkClean(ctx, localID, remoteID, at) })
	if err != nil {
		log.Error().Err(err).Msg("mark clean failed")
		return domain.ListEntry{}, outcomeDeferred, nil
	}
	e.clearBackoff(localID)
	dto := ToListEntryDTO(clean)
	publish(e.bus, ports.TopicListUpdated, ListUpdatedEvent{Source: "push", Entry: &dto})
	log.Info().Int("remote_id", remoteID).Msg("list entry pushed")
	return clean, outcomePushed, nil
}

func (e *SyncEngine) commitConflict(ctx context.Context, log zerolog.Logger, entry domain.ListEntry, c domain.Conflict) (domain.ListEntry, pushOutcome, error) {
	out, err := retryIO(ctx, func() (domain.ListEntry, error) { return e.entries.MarkConflicted(ctx, entry.LocalID, c) })
	if err != nil {
		log.Error().Err(err).Msg("mark conflicted failed")
		return entry, outcomeDeferred, nil
	}
	e.clearBackoff(entry.LocalID)
	dto := ToListEntryDTO(out)
	publish(e.bus, ports.TopicListUpdated, ListUpdatedEvent{Source: "push", Entry: &dto})
	log.Warn().Str("reason", string(c.Reason)).Str("message", c.Message).Msg("list entry conflicted")
	return out, outcomeConflicted, nil
}

func (e *SyncEngine) handlePushError(ctx context.Context, log zerolog.Logger, entry domain.ListEntry, err error) (domain.ListEntry, pushOutcome, error) {
	attempt := e.attempts(entry.LocalID) + 1
	d := e.policy.Decide(err, attempt)
	switch d.Action {
	case RetryAbort:
		return entry, outcomeSkipped, err
	case RetryConflict:
		reason := domain.ConflictValidation
		if d.Kind == ports.APINotFound {
			reason = domain.ConflictNotFound
		}
		return e.commitConflict(ctx, log, entry, domain.Conflict{
			LocalID:    entry.LocalID,
			Reason:     reason,
			Message:    err.Error(),
			DetectedAt: e.Now(),
		})
	default:
		e.scheduleRetry(entry.LocalID, attempt, d)
		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", d.Delay).Msg("push failed, will retry")
		if d.Exhausted {
			publish(e.bus, ports.TopicSyncError, SyncErrorEvent{
				LocalID:  entry.LocalID,
				MediaID:  entry.MediaID,
				Kind:     string(d.Kind),
				Attempts: attempt,
				Message:  err.Error(),
			})
		}
		return entry, outcomeDeferred, nil
	}
}

func (e *SyncEngine) due(localID int64, now time.Time) bool {
	e.backoffMu.Lock()
	defer e.backoffMu.Unlock()
	st, ok := e.backoff[localID]
	return !ok || !now.Before(st.next)
}

func (e *SyncEngine) attempts(localID int64) int {
	e.backoffMu.Lock()
	defer e.backoffMu.Unlock()
	return e.backoff[localID].attempts
}

// scheduleRetry mémorise l'échéance. Une fois les tentatives épuisées, le
// compteur repart de zéro mais l'attente suivante reste au plafond.
func (e *SyncEngine) scheduleRetry(localID int64, attempt int, d RetryDecision) {
	e.backoffMu.Lock()
	defer e.backoffMu.Unlock()
	next := attempt
	if d.Exhausted {
		next = 0
	}
	e.backoff[localID] = backoffState{attempts: next, next: e.Now().Add(d.Delay)}
}

func (e *SyncEngine) clearBackoff(localID int64) {
	e.backoffMu.Lock()
	defer e.backoffMu.Unlock()
	delete(e.backoff, localID)
}

// ---- Pull ----

type PullReport struct {
	Remote     int `json:"remote"`
	Inserted   int `json:"inserted"`
	Updated    int `json:"updated"`
	Conflicted int `json:"conflicted"`
	Deleted    int `json:"deleted"`
	Unchanged  int `json:"unchanged"`
}

// PullList récupère la liste distante et la fusionne dans le cache.
func (e *SyncEngine) PullList(ctx context.Context) (PullReport, error) {
	return e.pullList(ctx, e.logger.With().Str("pass_id", xid.New().String()).Logger(), &authNotifier{bus: e.bus})
}

func (e *SyncEngine) pullList(ctx context.Context, log zerolog.Logger, notifier *authNotifier) (PullReport, error) {
	var report PullReport
	if e.Offline() {
		return report, ErrOffline
	}
	viewer, err := e.Viewer(ctx)
	if err != nil {
		notifier.check(err)
		return report, err
	}
	remote, err := e.catalog.FetchList(ctx, viewer.ID)
	if err != nil {
		notifier.check(err)
		return report, err
	}
	report.Remote = len(remote)
	commit := context.WithoutCancel(ctx)

	seen := make(map[int]bool, len(remote))
	for _, r := range remote {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		seen[r.Entry.RemoteID] = true
		if r.Media.ID > 0 {
			if err := e.media.Put(commit, r.Media); err != nil {
				log.Warn().Err(err).Int("media_id", r.Media.ID).Msg("media summary write failed")
			}
		}
		if err := e.reconcile(commit, log, r.Entry, &report); err != nil {
			return report, err
		}
	}

	// Les entrées CLEAN absentes du serveur y ont été supprimées.
	local, err := retryIO(ctx, func() ([]domain.ListEntry, error) { return e.entries.ListByState(ctx, domain.SyncClean) })
	if err != nil {
		return report, err
	}
	for _, l := range local {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !l.HasRemoteID() || seen[l.RemoteID] {
			continue
		}
		if err := e.deleteVanished(commit, l); err != nil {
			return report, err
		}
		report.Deleted++
	}

	e.putMetaTime(commit, metaLastPull)
	publish(e.bus, ports.TopicListUpdated, ListUpdatedEvent{Source: "pull", Pull: &report})
	log.Info().
		Int("remote", report.Remote).
		Int("inserted", report.Inserted).
		Int("updated", report.Updated).
		Int("conflicted", report.Conflicted).
		Int("deleted", report.Deleted).
		Msg("pull done")
	return report, nil
}

func (e *SyncEngine) reconcile(ctx context.Context, log zerolog.Logger, r domain.ListEntry, report *PullReport) error {
	unlock := e.locks.Lock(r.MediaID)
	defer unlock()

	local, err := retryIO(ctx, func() (domain.ListEntry, error) { return e.entries.GetByMediaID(ctx, r.MediaID) })
	switch {
	case errors.Is(err, ports.ErrNotFound):
		r.LocalID = 0
		r.SyncState = domain.SyncClean
		if _, err := retryIO(ctx, func() (domain.ListEntry, error) { return e.entries.Upsert(ctx, r) }); err != nil {
			return err
		}
		report.Inserted++
		return nil
	case err != nil:
		return err
	}

	switch local.SyncState {
	case domain.SyncClean:
		if !r.UpdatedAtRemote.After(local.UpdatedAtRemote) && local.RemoteID == r.RemoteID {
			report.Unchanged++
			return nil
		}
		next := r
		next.LocalID = local.LocalID
		next.UpdatedAtLocal = local.UpdatedAtLocal
		next.SyncState = domain.SyncClean
		if _, err := retryIO(ctx, func() (domain.ListEntry, error) { return e.entries.Upsert(ctx, next) }); err != nil {
			return err
		}
		report.Updated++
	case domain.SyncDirty:
		if !r.UpdatedAtRemote.After(local.UpdatedAtRemote) {
			report.Unchanged++
			return nil
		}
		if local.SameContent(r) {
			if _, err := retryIO(ctx, func() (domain.ListEntry, error) {
				return e.entries.MarkClean(ctx, local.LocalID, r.RemoteID, r.UpdatedAtRemote)
			}); err != nil {
				return err
			}
			e.clearBackoff(local.LocalID)
			report.Updated++
			return nil
		}
		snapshot := r
		if _, err := retryIO(ctx, func() (domain.ListEntry, error) {
			return e.entries.MarkConflicted(ctx, local.LocalID, domain.Conflict{
				LocalID:    local.LocalID,
				Reason:     domain.ConflictRemoteNewer,
				Remote:     &snapshot,
				Message:    "remote entry changed while a local edit was pending",
				DetectedAt: e.Now(),
			})
		}); err != nil {
			return err
		}
		e.clearBackoff(local.LocalID)
		report.Conflicted++
		log.Warn().Int64("local_id", local.LocalID).Int("media_id", local.MediaID).Msg("pull detected a conflict")
	default:
		report.Unchanged++
	}
	return nil
}

func (e *SyncEngine) deleteVanished(ctx context.Context, l domain.ListEntry) error {
	unlock := e.locks.Lock(l.MediaID)
	defer unlock()
	// Relue sous verrou: une édition a pu la rendre DIRTY entre-temps.
	cur, err := e.entries.Get(ctx, l.LocalID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil
		}
		return err
	}
	if cur.SyncState != domain.SyncClean {
		return nil
	}
	return retryIOErr(ctx, func() error { return e.entries.Delete(ctx, l.LocalID) })
}

// ---- Synchro complète ----

type SyncReport struct {
	PassID string     `json:"passId"`
	Pull   PullReport `json:"pull"`
	Push   PushReport `json:"push"`
}

// SyncAll enchaîne pull puis push. La passe entière est annulable via
// CancelSync; chaque écriture d'entrée entamée va à son terme.
func (e *SyncEngine) SyncAll(ctx context.Context) (SyncReport, error) {
	passID := xid.New().String()
	report := SyncReport{PassID: passID}
	if e.Offline() {
		return report, ErrOffline
	}

	e.syncMu.Lock()
	if e.syncCancel != nil {
		e.syncMu.Unlock()
		return report, ErrSyncInProgress
	}
	ctx, cancel := context.WithCancel(ctx)
	e.syncCancel = cancel
	e.syncMu.Unlock()
	defer func() {
		e.syncMu.Lock()
		e.syncCancel = nil
		e.syncMu.Unlock()
		cancel()
	}()

	log := e.logger.With().Str("pass_id", passID).Logger()
	notifier := &authNotifier{bus: e.bus}

	pull, err := e.pullList(ctx, log, notifier)
	report.Pull = pull
	if err != nil {
		return report, err
	}
	push, err := e.pushPending(ctx, passID, notifier)
	report.Push = push
	if err != nil {
		return report, err
	}
	e.putMetaTime(context.WithoutCancel(ctx), metaLastSync)
	return report, nil
}

// CancelSync annule la passe SyncAll en cours, s'il y en a une.
func (e *SyncEngine) CancelSync() bool {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()
	if e.syncCancel == nil {
		return false
	}
	e.syncCancel()
	return true
}

// Logout annule la synchro en cours, efface le credential et le viewer.
// Le cache (fiches et liste) est conservé.
func (e *SyncEngine) Logout(ctx context.Context) error {
	e.CancelSync()
	if e.auth != nil {
		if err := e.auth.Logout(ctx); err != nil {
			return err
		}
	}
	if err := e.meta.Delete(ctx, metaViewer); err != nil {
		e.logger.Warn().Err(err).Msg("viewer cache clear failed")
	}
	return nil
}

type SyncStatus struct {
	Offline    bool       `json:"offline"`
	Dirty      int        `json:"dirty"`
	Conflicted int        `json:"conflicted"`
	LastPull   *time.Time `json:"lastPull,omitempty"`
	LastSync   *time.Time `json:"lastSync,omitempty"`
	Syncing    bool       `json:"syncing"`
}

func (e *SyncEngine) Status(ctx context.Context) (SyncStatus, error) {
	st := SyncStatus{Offline: e.Offline()}
	dirty, err := e.entries.ListByState(ctx, domain.SyncDirty)
	if err != nil {
		return st, err
	}
	conflicted, err := e.entries.ListByState(ctx, domain.SyncConflicted)
	if err != nil {
		return st, err
	}
	st.Dirty, st.Conflicted = len(dirty), len(conflicted)
	st.LastPull = e.metaTime(ctx, metaLastPull)
	st.LastSync = e.metaTime(ctx, metaLastSync)
	e.syncMu.Lock()
	st.Syncing = e.syncCancel != nil
	e.syncMu.Unlock()
	return st, nil
}

func (e *SyncEngine) putMetaTime(ctx context.Context, key string) {
	b, _ := json.Marshal(e.Now())
	if err := e.meta.Put(ctx, key, b); err != nil {
		e.logger.Warn().Err(err).Str("key", key).Msg("meta write failed")
	}
}

func (e *SyncEngine) metaTime(ctx context.Context, key string) *time.Time {
	raw, err := e.meta.Get(ctx, key)
	if err != nil {
		return nil
	}
	var t time.Time
	if json.Unmarshal(raw, &t) != nil {
		return nil
	}
	return &t
}

// ---- Résolution ----

type ResolveResult struct {
	Entry   *domain.ListEntry
	Deleted bool
}

// ForceResolveConflict sort une entrée de CONFLICTED selon le choix explicite
// de l'utilisateur.
func (e *SyncEngine) ForceResolveConflict(ctx context.Context, localID int64, choice domain.ConflictChoice) (ResolveResult, error) {
	if !choice.Valid() {
		return ResolveResult{}, &validation.Error{Fields: map[string]string{"choice": "must be one of: keep-local adopt-remote"}}
	}
	entry, err := retryIO(ctx, func() (domain.ListEntry, error) { return e.entries.Get(ctx, localID) })
	if err != nil {
		return ResolveResult{}, err
	}

	unlock := e.locks.Lock(entry.MediaID)
	defer unlock()

	entry, err = e.entries.Get(ctx, localID)
	if err != nil {
		return ResolveResult{}, err
	}
	if entry.SyncState != domain.SyncConflicted {
		return ResolveResult{}, ErrNotConflicted
	}

	var snapshot *domain.ListEntry
	c, err := e.conflicts.Get(ctx, localID)
	switch {
	case err == nil:
		snapshot = c.Remote
	case errors.Is(err, ports.ErrNotFound):
	default:
		return ResolveResult{}, err
	}

	// Sans instantané, on interroge le serveur si possible.
	var viewer domain.Viewer
	remoteKnown := snapshot != nil
	remoteGone := c.Reason == domain.ConflictNotFound && snapshot == nil
	if snapshot == nil && !e.Offline() {
		viewer, err = e.Viewer(ctx)
		if err != nil {
			return ResolveResult{}, err
		}
		r, err := e.catalog.FetchListEntry(ctx, viewer.ID, entry.MediaID)
		switch {
		case err == nil:
			snapshot, remoteKnown, remoteGone = &r, true, false
		case errors.Is(err, ports.ErrAPINotFound):
			remoteKnown, remoteGone = true, true
		default:
			return ResolveResult{}, err
		}
	}

	commit := context.WithoutCancel(ctx)
	log := e.logger.With().Int64("local_id", localID).Int("media_id", entry.MediaID).Str("choice", string(choice)).Logger()

	switch choice {
	case domain.AdoptRemote:
		if !remoteKnown {
			return ResolveResult{}, ErrOffline
		}
		if remoteGone {
			if err := retryIOErr(commit, func() error { return e.entries.DeleteResolved(commit, localID) }); err != nil {
				return ResolveResult{}, err
			}
			e.clearBackoff(localID)
			publish(e.bus, ports.TopicListUpdated, ListUpdatedEvent{Source: "resolve"})
			log.Info().Msg("conflict resolved, local entry removed")
			return ResolveResult{Deleted: true}, nil
		}
		next := *snapshot
		next.LocalID = localID
		next.MediaID = entry.MediaID
		next.UpdatedAtLocal = entry.UpdatedAtLocal
		next.SyncState = domain.SyncClean
		out, err := retryIO(commit, func() (domain.ListEntry, error) { return e.entries.Upsert(commit, next) })
		if err != nil {
			return ResolveResult{}, err
		}
		e.clearBackoff(localID)
		dto := ToListEntryDTO(out)
		publish(e.bus, ports.TopicListUpdated, ListUpdatedEvent{Source: "resolve", Entry: &dto})
		log.Info().Msg("conflict resolved with remote version")
		return ResolveResult{Entry: &out}, nil

	default: // KeepLocal
		next := entry
		next.UpdatedAtLocal = e.Now()
		next.SyncState = domain.SyncDirty
		switch {
		case snapshot != nil:
			// La version serveur vue devient la base: le push passera le garde-fou.
			next.UpdatedAtRemote = snapshot.UpdatedAtRemote
			if snapshot.HasRemoteID() {
				next.RemoteID = snapshot.RemoteID
			}
		case remoteGone:
			next.RemoteID = 0
			next.UpdatedAtRemote = time.Time{}
		}
		out, err := retryIO(commit, func() (domain.ListEntry, error) { return e.entries.Upsert(commit, next) })
		if err != nil {
			return ResolveResult{}, err
		}
		e.clearBackoff(localID)
		dto := ToListEntryDTO(out)
		publish(e.bus, ports.TopicListUpdated, ListUpdatedEvent{Source: "resolve", Entry: &dto})
		log.Info().Msg("conflict resolved with local version")

		if e.Offline() {
			return ResolveResult{Entry: &out}, nil
		}
		if viewer.ID == 0 {
			if viewer, err = e.Viewer(ctx); err != nil {
				return ResolveResult{Entry: &out}, nil
			}
		}
		pushed, _, err := e.pushLocked(ctx, log, viewer.ID, localID)
		if err != nil {
			(&authNotifier{bus: e.bus}).check(err)
			return ResolveResult{Entry: &out}, nil
		}
		return ResolveResult{Entry: &pushed}, nil
	}
}
