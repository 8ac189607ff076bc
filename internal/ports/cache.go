package ports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Guilhem-Bonnet/anisync/internal/domain"
)

type MediaRepository interface {
	Get(ctx context.Context, id int) (domain.Media, error)
	// Put n'écrase une fiche existante que si LastFetchedAt est plus récent.
	Put(ctx context.Context, media domain.Media) error
	Search(ctx context.Context, query string, limit int) ([]domain.Media, error)
}

// ListEntryRepository est le seul écrivain des lignes list_entries. Chaque
// méthode est une transaction.
type ListEntryRepository interface {
	List(ctx context.Context) ([]domain.ListEntry, error)
	ListByState(ctx context.Context, state domain.SyncState) ([]domain.ListEntry, error)
	Get(ctx context.Context, localID int64) (domain.ListEntry, error)
	GetByMediaID(ctx context.Context, mediaID int) (domain.ListEntry, error)
	// Upsert insère (LocalID == 0, clé naturelle media_id) ou remplace l'entrée
	// et renvoie la ligne persistée.
	Upsert(ctx context.Context, entry domain.ListEntry) (domain.ListEntry, error)
	MarkDirty(ctx context.Context, localID int64, at time.Time) (domain.ListEntry, error)
	MarkClean(ctx context.Context, localID int64, remoteID int, updatedAtRemote time.Time) (domain.ListEntry, error)
	// MarkConflicted enregistre le conflit dans la même transaction.
	MarkConflicted(ctx context.Context, localID int64, conflict domain.Conflict) (domain.ListEntry, error)
	// Delete renvoie ErrConflictPending pour une entrée CONFLICTED.
	Delete(ctx context.Context, localID int64) error
	// DeleteResolved supprime sans condition; réservé à la résolution d'un
	// conflit dont l'entrée n'existe plus côté serveur.
	DeleteResolved(ctx context.Context, localID int64) error
}

type ConflictRepository interface {
	Get(ctx context.Context, localID int64) (domain.Conflict, error)
	List(ctx context.Context) ([]domain.Conflict, error)
}

// MetaRepository stocke de petites valeurs JSON (viewer, dernière synchro).
type MetaRepository interface {
	Get(ctx context.Context, key string) (json.RawMessage, error)
	Put(ctx context.Context, key string, value json.RawMessage) error
	Delete(ctx context.Context, key string) error
}
