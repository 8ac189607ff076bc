package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/Guilhem-Bonnet/anisync/internal/domain"
	"github.com/Guilhem-Bonnet/anisync/internal/ports"
)

type MediaRepository struct {
	db *sql.DB
}

func NewMediaRepository(db *sql.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

const mediaColumns = `id, type, title_romaji, title_english, title_native, description, episodes, chapters, duration,
	average_score, status, format, season, season_year, banner_image,
	genres_json, dates_json, cover_json, tags_json, studios_json, characters_json, last_fetched_at`

type mediaDates struct {
	Start domain.FuzzyDate `json:"start"`
	End   domain.FuzzyDate `json:"end"`
}

func (r *MediaRepository) Get(ctx context.Context, id int) (domain.Media, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM media WHERE id = ?`, id)
	m, err := scanMedia(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Media{}, ports.ErrNotFound
		}
		return domain.Media{}, mapErr("media get", err)
	}
	return m, nil
}

// Put insère la fiche, ou remplace l'existante seulement si la nouvelle a été
// récupérée plus tard. Un résumé (LastFetchedAt nul) ne remplace jamais rien.
func (r *MediaRepository) Put(ctx context.Context, m domain.Media) error {
	if m.ID <= 0 {
		return errors.New("media id is required")
	}
	genres, err := json.Marshal(nonNil(m.Genres))
	if err != nil {
		return err
	}
	dates, err := json.Marshal(mediaDates{Start: m.StartDate, End: m.EndDate})
	if err != nil {
		return err
	}
	cover, err := json.Marshal(m.CoverImage)
	if err != nil {
		return err
	}
	tags, err := json.Marshal(nonNil(m.Tags))
	if err != nil {
		return err
	}
	studios, err := json.Marshal(nonNil(m.Studios))
	if err != nil {
		return err
	}
	characters, err := json.Marshal(nonNil(m.Characters))
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO media(`+mediaColumns+`)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			title_romaji = excluded.title_romaji,
			title_english = excluded.title_english,
			title_native = excluded.title_native,
			description = excluded.description,
			episodes = excluded.episodes,
			chapters = excluded.chapters,
			duration = excluded.duration,
			average_score = excluded.average_score,
			status = excluded.status,
			format = excluded.format,
			season = excluded.season,
			season_year = excluded.season_year,
			banner_image = excluded.banner_image,
			genres_json = excluded.genres_json,
			dates_json = excluded.dates_json,
			cover_json = excluded.cover_json,
			tags_json = excluded.tags_json,
			studios_json = excluded.studios_json,
			characters_json = excluded.characters_json,
			last_fetched_at = excluded.last_fetched_at
		WHERE excluded.last_fetched_at > media.last_fetched_at
	`, m.ID, m.Type, m.Title.Romaji, m.Title.English, m.Title.Native, m.Description, m.Episodes, m.Chapters, m.Duration,
		m.AverageScore, m.Status, m.Format, m.Season, m.SeasonYear, m.BannerImage,
		genres, dates, cover, tags, studios, characters, formatTime(m.LastFetchedAt))
	return mapErr("media put", err)
}

// Search cherche dans les titres en cache; sert de repli hors ligne.
func (r *MediaRepository) Search(ctx context.Context, query string, limit int) ([]domain.Media, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	q := strings.TrimSpace(query)
	if q == "" {
		return []domain.Media{}, nil
	}
	pattern := "%" + escapeLike(strings.ToLower(q)) + "%"
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+mediaColumns+` FROM media
		WHERE lower(title_romaji) LIKE ? ESCAPE '\'
		   OR lower(title_english) LIKE ? ESCAPE '\'
		   OR lower(title_native) LIKE ? ESCAPE '\'
		ORDER BY average_score DESC, id ASC
		LIMIT ?
	`, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, mapErr("media search", err)
	}
	defer rows.Close()

	out := []domain.Media{}
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, mapErr("media search", err)
		}
		out = append(out, m)
	}
	return out, mapErr("media search", rows.Err())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMedia(s rowScanner) (domain.Media, error) {
	var m domain.Media
	var genres, dates, cover, tags, studios, characters []byte
	var fetchedAt string
	err := s.Scan(&m.ID, &m.Type, &m.Title.Romaji, &m.Title.English, &m.Title.Native, &m.Description,
		&m.Episodes, &m.Chapters, &m.Duration, &m.AverageScore, &m.Status, &m.Format, &m.Season, &m.SeasonYear,
		&m.BannerImage, &genres, &dates, &cover, &tags, &studios, &characters, &fetchedAt)
	if err != nil {
		return domain.Media{}, err
	}

	var d mediaDates
	for _, c := range []struct {
		raw []byte
		dst any
	}{
		{genres, &m.Genres},
		{dates, &d},
		{cover, &m.CoverImage},
		{tags, &m.Tags},
		{studios, &m.Studios},
		{characters, &m.Characters},
	} {
		if len(c.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(c.raw, c.dst); err != nil {
			return domain.Media{}, &ports.CacheError{Kind: ports.CacheCorrupt, Op: "media decode", Err: err}
		}
	}
	m.StartDate, m.EndDate = d.Start, d.End

	m.LastFetchedAt, err = parseTime(fetchedAt)
	if err != nil {
		return domain.Media{}, err
	}
	return m, nil
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
