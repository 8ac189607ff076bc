package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/Guilhem-Bonnet/anisync/internal/domain"
)

func TestCredentialsRepository_SaveLoadClear(t *testing.T) {
	ctx := context.Background()
	repo := NewCredentialsRepository(openTestDB(t).SQL)

	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load(empty): %v", err)
	}
	if got != nil {
		t.Fatalf("want nil credential, got %+v", got)
	}

	exp := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := repo.Save(ctx, domain.Credential{AccessToken: "a1", RefreshToken: "r1", TokenType: "Bearer", ExpiresAt: exp}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := repo.Save(ctx, domain.Credential{AccessToken: "a2", RefreshToken: "r2", ExpiresAt: exp.Add(time.Hour)}); err != nil {
		t.Fatalf("Save(replace): %v", err)
	}

	got, err = repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || got.AccessToken != "a2" || got.RefreshToken != "r2" || !got.ExpiresAt.Equal(exp.Add(time.Hour)) {
		t.Fatalf("unexpected credential: %+v", got)
	}

	if err := repo.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	got, err = repo.Load(ctx)
	if err != nil || got != nil {
		t.Fatalf("after Clear: want (nil, nil), got (%+v, %v)", got, err)
	}
}

func TestCredentialsRepository_RejectsEmptyToken(t *testing.T) {
	repo := NewCredentialsRepository(openTestDB(t).SQL)
	if err := repo.Save(context.Background(), domain.Credential{}); err == nil {
		t.Fatalf("expected error for empty access token")
	}
}
