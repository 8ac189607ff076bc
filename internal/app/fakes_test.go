package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/anisync/internal/adapters/memorybus"
	"github.com/Guilhem-Bonnet/anisync/internal/adapters/sqlite"
	"github.com/Guilhem-Bonnet/anisync/internal/domain"
	"github.com/Guilhem-Bonnet/anisync/internal/ports"
)

// fakeCatalog simule le serveur: une liste par media id et une horloge
// serveur qui avance d'une seconde à chaque écriture.
type fakeCatalog struct {
	mu sync.Mutex

	viewer  domain.Viewer
	media   map[int]domain.Media
	entries map[int]domain.ListEntry
	nextID  int
	clock   time.Time
	// now date les fiches renvoyées (horloge du client).
	now func() time.Time

	// pushErrs est consommé dans l'ordre; allErr s'applique à tout appel.
	pushErrs   []error
	allErr     error
	mediaErr   error
	pushes     int
	lastPush   domain.ListEntry
	fetchCalls int
	mediaCalls int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		viewer:  domain.Viewer{ID: 7, Name: "tester"},
		media:   map[int]domain.Media{},
		entries: map[int]domain.ListEntry{},
		nextID:  1000,
		clock:   time.Unix(1_800_000_000, 0).UTC(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (f *fakeCatalog) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

// remoteEdit simule une modification faite depuis un autre client.
func (f *fakeCatalog) remoteEdit(mediaID int, mutate func(e *domain.ListEntry)) domain.ListEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[mediaID]
	if !ok {
		f.nextID++
		e = domain.ListEntry{MediaID: mediaID, RemoteID: f.nextID, Status: domain.ListPlanning}
	}
	mutate(&e)
	e.SyncState = domain.SyncClean
	e.UpdatedAtRemote = f.tick()
	f.entries[mediaID] = e
	return e
}

func (f *fakeCatalog) remoteDelete(mediaID int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, mediaID)
}

func (f *fakeCatalog) remote(mediaID int) (domain.ListEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[mediaID]
	return e, ok
}

func (f *fakeCatalog) counts() (pushes, fetches, media int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushes, f.fetchCalls, f.mediaCalls
}

func (f *fakeCatalog) lastPushed() domain.ListEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastPush
}

func (f *fakeCatalog) setAllErr(err error) {
	f.mu.Lock()
	f.allErr = err
	f.mu.Unlock()
}

func (f *fakeCatalog) queuePushErrs(errs ...error) {
	f.mu.Lock()
	f.pushErrs = append(f.pushErrs, errs...)
	f.mu.Unlock()
}

func (f *fakeCatalog) Viewer(ctx context.Context) (domain.Viewer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.allErr != nil {
		return domain.Viewer{}, f.allErr
	}
	return f.viewer, nil
}

func (f *fakeCatalog) FetchMedia(ctx context.Context, id int) (domain.Media, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mediaCalls++
	if f.allErr != nil {
		return domain.Media{}, f.allErr
	}
	if f.mediaErr != nil {
		return domain.Media{}, f.mediaErr
	}
	m, ok := f.media[id]
	if !ok {
		return domain.Media{}, &ports.APIError{Kind: ports.APINotFound, Status: 404}
	}
	m.LastFetchedAt = f.now()
	return m, nil
}

func (f *fakeCatalog) SearchMedia(ctx context.Context, q string, page, perPage int) ([]domain.Media, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.allErr != nil {
		return nil, f.allErr
	}
	var out []domain.Media
	for _, m := range f.media {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeCatalog) FetchUserProfile(ctx context.Context, name string) (domain.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.allErr != nil {
		return domain.UserProfile{}, f.allErr
	}
	return domain.UserProfile{ID: f.viewer.ID, Name: name}, nil
}

func (f *fakeCatalog) FetchList(ctx context.Context, userID int) ([]ports.RemoteListEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.allErr != nil {
		return nil, f.allErr
	}
	out := make([]ports.RemoteListEntry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, ports.RemoteListEntry{
			Entry: e,
			Media: domain.Media{ID: e.MediaID, Title: domain.MediaTitle{Romaji: "summary"}},
		})
	}
	return out, nil
}

func (f *fakeCatalog) FetchListEntry(ctx context.Context, userID, mediaID int) (domain.ListEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.allErr != nil {
		return domain.ListEntry{}, f.allErr
	}
	e, ok := f.entries[mediaID]
	if !ok {
		return domain.ListEntry{}, &ports.APIError{Kind: ports.APINotFound, Status: 404}
	}
	return e, nil
}

func (f *fakeCatalog) PushListEntry(ctx context.Context, entry domain.ListEntry) (domain.PushResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes++
	if f.allErr != nil {
		return domain.PushResult{}, f.allErr
	}
	if len(f.pushErrs) > 0 {
		err := f.pushErrs[0]
		f.pushErrs = f.pushErrs[1:]
		if err != nil {
			return domain.PushResult{}, err
		}
	}
	f.lastPush = entry
	cur, ok := f.entries[entry.MediaID]
	if !ok {
		f.nextID++
		cur = domain.ListEntry{MediaID: entry.MediaID, RemoteID: f.nextID}
	}
	// Tous les champs visibles sont écrits (contrat de PushListEntry):
	// un Score nil efface la note, comme scoreRaw=0 côté AniList.
	cur.Status = entry.Status
	cur.Progress = entry.Progress
	cur.Score = nil
	if entry.Score != nil {
		v := *entry.Score
		cur.Score = &v
	}
	cur.SyncState = domain.SyncClean
	cur.UpdatedAtRemote = f.tick()
	f.entries[entry.MediaID] = cur
	return domain.PushResult{RemoteID: cur.RemoteID, UpdatedAtRemote: cur.UpdatedAtRemote}, nil
}

var _ ports.CatalogClient = (*fakeCatalog)(nil)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	engine  *SyncEngine
	catalog *fakeCatalog
	entries *sqlite.ListEntriesRepository
	media   *sqlite.MediaRepository
	meta    *sqlite.MetaRepository
	bus     *memorybus.Bus
	events  <-chan ports.Event
	clock   *testClock
}

func newTestEnv(t *testing.T, cfg SyncEngineConfig) *testEnv {
	t.Helper()
	db, err := sqlite.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	bus := memorybus.New()
	events, cancel := bus.Subscribe()
	t.Cleanup(cancel)

	if cfg.Policy == nil {
		cfg.Policy = DefaultRetryPolicy()
		// Gigue neutre: les délais deviennent déterministes.
		cfg.Policy.Rand = func() float64 { return 0.5 }
	}

	env := &testEnv{
		catalog: newFakeCatalog(),
		entries: sqlite.NewListEntriesRepository(db.SQL),
		media:   sqlite.NewMediaRepository(db.SQL),
		meta:    sqlite.NewMetaRepository(db.SQL),
		bus:     bus,
		events:  events,
		clock:   &testClock{t: time.Date(2027, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	env.engine = NewSyncEngine(zerolog.Nop(), SyncEngineDeps{
		Media:     env.media,
		Entries:   env.entries,
		Conflicts: sqlite.NewConflictsRepository(db.SQL),
		Meta:      env.meta,
		Catalog:   env.catalog,
		Bus:       bus,
	}, cfg)
	env.engine.Now = env.clock.Now
	env.catalog.now = env.clock.Now
	return env
}

// drain renvoie le nombre d'événements reçus par topic depuis le dernier appel.
func (env *testEnv) drain() map[string]int {
	got := map[string]int{}
	for {
		select {
		case ev := <-env.events:
			got[ev.Topic]++
		default:
			return got
		}
	}
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
