package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Guilhem-Bonnet/anisync/internal/domain"
	"github.com/Guilhem-Bonnet/anisync/internal/ports"
)

func TestMediaRepository_PutGet(t *testing.T) {
	ctx := context.Background()
	repo := NewMediaRepository(openTestDB(t).SQL)

	if _, err := repo.Get(ctx, 1); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("Get(missing): want ErrNotFound, got %v", err)
	}

	fetched := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m := domain.Media{
		ID:            1,
		Type:          "ANIME",
		Title:         domain.MediaTitle{Romaji: "Cowboy Bebop", Native: "カウボーイビバップ"},
		Episodes:      26,
		Genres:        []string{"Action", "Sci-Fi"},
		StartDate:     domain.FuzzyDate{Year: 1998, Month: 4, Day: 3},
		CoverImage:    domain.CoverImage{Large: "https://img/large.png"},
		Tags:          []domain.Tag{{Name: "Space", Rank: 90}},
		Studios:       []domain.StudioRef{{ID: 14, Name: "Sunrise", IsMain: true}},
		Characters:    []domain.CharacterRef{{ID: 1, Name: "Spike Spiegel", Role: "MAIN"}},
		LastFetchedAt: fetched,
	}
	if err := repo.Put(ctx, m); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := repo.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title.Romaji != "Cowboy Bebop" || got.Episodes != 26 {
		t.Fatalf("unexpected media: %+v", got)
	}
	if len(got.Genres) != 2 || got.StartDate.Year != 1998 || got.Studios[0].Name != "Sunrise" || got.Characters[0].Role != "MAIN" {
		t.Fatalf("json columns not round-tripped: %+v", got)
	}
	if !got.LastFetchedAt.Equal(fetched) {
		t.Fatalf("LastFetchedAt: want %v, got %v", fetched, got.LastFetchedAt)
	}
}

func TestMediaRepository_PutKeepsNewerCopy(t *testing.T) {
	ctx := context.Background()
	repo := NewMediaRepository(openTestDB(t).SQL)

	newer := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	if err := repo.Put(ctx, domain.Media{ID: 5, Title: domain.MediaTitle{Romaji: "new"}, LastFetchedAt: newer}); err != nil {
		t.Fatalf("Put(newer): %v", err)
	}
	// Plus ancienne: ignorée.
	if err := repo.Put(ctx, domain.Media{ID: 5, Title: domain.MediaTitle{Romaji: "old"}, LastFetchedAt: newer.Add(-time.Hour)}); err != nil {
		t.Fatalf("Put(older): %v", err)
	}
	// Résumé sans date: ignoré aussi.
	if err := repo.Put(ctx, domain.Media{ID: 5, Title: domain.MediaTitle{Romaji: "summary"}}); err != nil {
		t.Fatalf("Put(summary): %v", err)
	}

	got, err := repo.Get(ctx, 5)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title.Romaji != "new" {
		t.Fatalf("want newest copy kept, got %q", got.Title.Romaji)
	}

	// Sub-second ordering must hold too.
	if err := repo.Put(ctx, domain.Media{ID: 5, Title: domain.MediaTitle{Romaji: "newest"}, LastFetchedAt: newer.Add(500 * time.Millisecond)}); err != nil {
		t.Fatalf("Put(newest): %v", err)
	}
	got, _ = repo.Get(ctx, 5)
	if got.Title.Romaji != "newest" {
		t.Fatalf("want sub-second newer copy, got %q", got.Title.Romaji)
	}
}

func TestMediaRepository_SummaryInsertedWhenAbsent(t *testing.T) {
	ctx := context.Background()
	repo := NewMediaRepository(openTestDB(t).SQL)

	if err := repo.Put(ctx, domain.Media{ID: 9, Title: domain.MediaTitle{English: "Summary"}}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := repo.Get(ctx, 9)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Stale(time.Now(), 24*time.Hour) {
		t.Fatalf("summary should always be stale")
	}
}

func TestMediaRepository_Search(t *testing.T) {
	ctx := context.Background()
	repo := NewMediaRepository(openTestDB(t).SQL)

	now := time.Now().UTC()
	for _, m := range []domain.Media{
		{ID: 1, Title: domain.MediaTitle{Romaji: "Shingeki no Kyojin", English: "Attack on Titan"}, AverageScore: 85, LastFetchedAt: now},
		{ID: 2, Title: domain.MediaTitle{Romaji: "Kimetsu no Yaiba", English: "Demon Slayer"}, AverageScore: 83, LastFetchedAt: now},
		{ID: 3, Title: domain.MediaTitle{Romaji: "100%_literal"}, LastFetchedAt: now},
	} {
		if err := repo.Put(ctx, m); err != nil {
			t.Fatalf("Put(%d): %v", m.ID, err)
		}
	}

	got, err := repo.Search(ctx, "titan", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("want [1], got %+v", got)
	}

	got, err = repo.Search(ctx, "NO", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 || got[0].ID != 1 {
		t.Fatalf("want two results ordered by score, got %+v", got)
	}

	got, _ = repo.Search(ctx, "%_", 10)
	if len(got) != 1 || got[0].ID != 3 {
		t.Fatalf("LIKE wildcards must be escaped, got %+v", got)
	}

	got, _ = repo.Search(ctx, "   ", 10)
	if len(got) != 0 {
		t.Fatalf("blank query should return nothing, got %+v", got)
	}
}
