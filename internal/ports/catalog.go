package ports

import (
	"context"

	"github.com/Guilhem-Bonnet/anisync/internal/domain"
)

// CatalogClient parle à l'API GraphQL. Les erreurs sont des *APIError
// (ou *AuthError quand la session exige une reconnexion).
type CatalogClient interface {
	Viewer(ctx context.Context) (domain.Viewer, error)
	FetchMedia(ctx context.Context, id int) (domain.Media, error)
	SearchMedia(ctx context.Context, query string, page, perPage int) ([]domain.Media, error)
	FetchUserProfile(ctx context.Context, name string) (domain.UserProfile, error)
	// FetchList renvoie les entrées CLEAN avec leurs médias résumés.
	FetchList(ctx context.Context, userID int) ([]RemoteListEntry, error)
	// FetchListEntry renvoie ErrAPINotFound si aucune entrée n'existe.
	FetchListEntry(ctx context.Context, userID, mediaID int) (domain.ListEntry, error)
	// PushListEntry écrit tous les champs visibles: un Score nil efface la note.
	PushListEntry(ctx context.Context, entry domain.ListEntry) (domain.PushResult, error)
}

type RemoteListEntry struct {
	Entry domain.ListEntry
	Media domain.Media
}
