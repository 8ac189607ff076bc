package app

import (
	"context"
	"errors"
	"time"

	"github.com/Guilhem-Bonnet/anisync/internal/ports"
)

const ioRetryDelay = 50 * time.Millisecond

// retryIO relance fn une seule fois après un échec d'E/S du stockage local
// (base occupée, disque momentanément indisponible).
func retryIO[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	v, err := fn()
	if err == nil || !errors.Is(err, ports.ErrIOFailure) {
		return v, err
	}
	t := time.NewTimer(ioRetryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return v, err
	case <-t.C:
	}
	return fn()
}

func retryIOErr(ctx context.Context, fn func() error) error {
	_, err := retryIO(ctx, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}
