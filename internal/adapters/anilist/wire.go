package anilist

import (
	"math"
	"time"

	"github.com/Guilhem-Bonnet/anisync/internal/domain"
	"github.com/Guilhem-Bonnet/anisync/internal/ports"
)

// Formes JSON des réponses. Les champs inconnus sont ignorés; les champs
// marqués required font échouer la réponse en Validation.

type wireTitle struct {
	Romaji  string `json:"romaji"`
	English string `json:"english"`
	Native  string `json:"native"`
}

type wireDate struct {
	Year  *int `json:"year"`
	Month *int `json:"month"`
	Day   *int `json:"day"`
}

type wireImage struct {
	Large  string `json:"large"`
	Medium string `json:"medium"`
}

type wireMedia struct {
	ID           int       `json:"id" validate:"required"`
	Type         string    `json:"type"`
	Title        wireTitle `json:"title"`
	Description  string    `json:"description"`
	Episodes     *int      `json:"episodes"`
	Chapters     *int      `json:"chapters"`
	Duration     *int      `json:"duration"`
	Genres       []string  `json:"genres"`
	AverageScore *float64  `json:"averageScore"`
	Status       string    `json:"status"`
	Format       string    `json:"format"`
	Season       string    `json:"season"`
	SeasonYear   *int      `json:"seasonYear"`
	StartDate    wireDate  `json:"startDate"`
	EndDate      wireDate  `json:"endDate"`
	CoverImage   wireImage `json:"coverImage"`
	BannerImage  string    `json:"bannerImage"`
	Tags         []struct {
		Name string `json:"name" validate:"required"`
		Rank int    `json:"rank"`
	} `json:"tags" validate:"dive"`
	Studios struct {
		Edges []struct {
			IsMain bool `json:"isMain"`
			Node   struct {
				ID   int    `json:"id" validate:"required"`
				Name string `json:"name"`
			} `json:"node"`
		} `json:"edges" validate:"dive"`
	} `json:"studios"`
	Characters struct {
		Edges []struct {
			Role string `json:"role"`
			Node struct {
				ID   int `json:"id" validate:"required"`
				Name struct {
					Full string `json:"full"`
				} `json:"name"`
				Image wireImage `json:"image"`
			} `json:"node"`
		} `json:"edges" validate:"dive"`
	} `json:"characters"`
}

func (w wireMedia) toDomain(fetchedAt time.Time) domain.Media {
	m := domain.Media{
		ID:            w.ID,
		Type:          w.Type,
		Title:         domain.MediaTitle(w.Title),
		Description:   w.Description,
		Episodes:      deref(w.Episodes),
		Chapters:      deref(w.Chapters),
		Duration:      deref(w.Duration),
		Genres:        w.Genres,
		Status:        w.Status,
		Format:        w.Format,
		Season:        w.Season,
		SeasonYear:    deref(w.SeasonYear),
		StartDate:     w.StartDate.toDomain(),
		EndDate:       w.EndDate.toDomain(),
		CoverImage:    domain.CoverImage(w.CoverImage),
		BannerImage:   w.BannerImage,
		LastFetchedAt: fetchedAt,
	}
	if w.AverageScore != nil {
		m.AverageScore = *w.AverageScore
	}
	for _, t := range w.Tags {
		m.Tags = append(m.Tags, domain.Tag{Name: t.Name, Rank: t.Rank})
	}
	for _, e := range w.Studios.Edges {
		m.Studios = append(m.Studios, domain.StudioRef{ID: e.Node.ID, Name: e.Node.Name, IsMain: e.IsMain})
	}
	for _, e := range w.Characters.Edges {
		m.Characters = append(m.Characters, domain.CharacterRef{
			ID:    e.Node.ID,
			Name:  e.Node.Name.Full,
			Role:  e.Role,
			Image: firstNonEmpty(e.Node.Image.Medium, e.Node.Image.Large),
		})
	}
	return m
}

func (d wireDate) toDomain() domain.FuzzyDate {
	return domain.FuzzyDate{Year: deref(d.Year), Month: deref(d.Month), Day: deref(d.Day)}
}

type wireListEntry struct {
	ID        int      `json:"id" validate:"required"`
	MediaID   int      `json:"mediaId" validate:"required"`
	Status    string   `json:"status" validate:"required,oneof=CURRENT PLANNING COMPLETED DROPPED PAUSED REPEATING"`
	Score     *float64 `json:"score"`
	Progress  *int     `json:"progress"`
	UpdatedAt int64    `json:"updatedAt"`
}

// toDomain renvoie la version serveur, donc CLEAN. Un score de 0 signifie
// "non noté" côté AniList.
func (w wireListEntry) toDomain() domain.ListEntry {
	e := domain.ListEntry{
		MediaID:         w.MediaID,
		RemoteID:        w.ID,
		Status:          domain.ListStatus(w.Status),
		Progress:        deref(w.Progress),
		UpdatedAtRemote: time.Unix(w.UpdatedAt, 0).UTC(),
		SyncState:       domain.SyncClean,
	}
	if w.Score != nil && *w.Score > 0 {
		v := *w.Score
		e.Score = &v
	}
	if e.Progress < 0 {
		e.Progress = 0
	}
	return e
}

type wireListEntryWithMedia struct {
	wireListEntry
	Media wireMedia `json:"media"`
}

type wireUser struct {
	ID          int       `json:"id" validate:"required"`
	Name        string    `json:"name" validate:"required"`
	About       string    `json:"about"`
	Avatar      wireImage `json:"avatar"`
	BannerImage string    `json:"bannerImage"`
	Statistics  struct {
		Anime wireStats `json:"anime"`
		Manga wireStats `json:"manga"`
	} `json:"statistics"`
	Favourites struct {
		Characters struct {
			Nodes []struct {
				ID   int `json:"id" validate:"required"`
				Name struct {
					Full string `json:"full"`
				} `json:"name"`
				Image wireImage `json:"image"`
			} `json:"nodes" validate:"dive"`
		} `json:"characters"`
	} `json:"favourites"`
}

type wireStats struct {
	Count           int     `json:"count"`
	MeanScore       float64 `json:"meanScore"`
	MinutesWatched  int     `json:"minutesWatched"`
	EpisodesWatched int     `json:"episodesWatched"`
	ChaptersRead    int     `json:"chaptersRead"`
}

func (w wireUser) toDomain() domain.UserProfile {
	p := domain.UserProfile{
		ID:          w.ID,
		Name:        w.Name,
		About:       w.About,
		Avatar:      domain.CoverImage(w.Avatar),
		BannerImage: w.BannerImage,
		AnimeStats:  domain.ListStats(w.Statistics.Anime),
		MangaStats:  domain.ListStats(w.Statistics.Manga),
	}
	for _, n := range w.Favourites.Characters.Nodes {
		p.FavouriteCharacters = append(p.FavouriteCharacters, domain.CharacterRef{
			ID:    n.ID,
			Name:  n.Name.Full,
			Image: firstNonEmpty(n.Image.Medium, n.Image.Large),
		})
	}
	return p
}

// Enveloppes data{...} par opération.

type viewerData struct {
	Viewer *struct {
		ID   int    `json:"id" validate:"required"`
		Name string `json:"name" validate:"required"`
	} `json:"Viewer" validate:"required"`
}

type mediaData struct {
	Media *wireMedia `json:"Media" validate:"required"`
}

type searchData struct {
	Page struct {
		Media []wireMedia `json:"media" validate:"dive"`
	} `json:"Page"`
}

type userData struct {
	User *wireUser `json:"User" validate:"required"`
}

type wireCollection struct {
	Lists []struct {
		Entries []wireListEntryWithMedia `json:"entries" validate:"dive"`
	} `json:"lists" validate:"dive"`
}

type listCollectionData struct {
	Anime *wireCollection `json:"anime"`
	Manga *wireCollection `json:"manga"`
}

type listEntryData struct {
	MediaList *wireListEntry `json:"MediaList" validate:"required"`
}

type saveEntryData struct {
	SaveMediaListEntry *wireListEntry `json:"SaveMediaListEntry" validate:"required"`
}

func collectEntries(cols ...*wireCollection) []ports.RemoteListEntry {
	out := []ports.RemoteListEntry{}
	seen := map[int]bool{}
	for _, col := range cols {
		if col == nil {
			continue
		}
		for _, l := range col.Lists {
			for _, e := range l.Entries {
				// Une entrée peut apparaître dans plusieurs listes personnalisées.
				if seen[e.ID] {
					continue
				}
				seen[e.ID] = true
				out = append(out, ports.RemoteListEntry{
					Entry: e.wireListEntry.toDomain(),
					Media: e.Media.toDomain(time.Time{}),
				})
			}
		}
	}
	return out
}

// scoreRaw convertit un score sur 10 en échelle 0..100, indépendante du
// format de notation choisi par l'utilisateur.
func scoreRaw(v float64) int {
	return int(math.Round(math.Max(0, math.Min(10, v)) * 10))
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
