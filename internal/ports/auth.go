package ports

import (
	"context"

	"github.com/Guilhem-Bonnet/anisync/internal/domain"
)

// TokenStore persiste l'unique Credential. Load relit le support à chaque
// appel et renvoie (nil, nil) quand il n'y a rien.
type TokenStore interface {
	Load(ctx context.Context) (*domain.Credential, error)
	Save(ctx context.Context, cred domain.Credential) error
	Clear(ctx context.Context) error
}

// Authorizer fournit un Credential valide à chaque appel sortant.
type Authorizer interface {
	AuthorizedRequest(ctx context.Context, fn func(ctx context.Context, cred domain.Credential) error) error
}
