package app

import (
	"time"

	"github.com/Guilhem-Bonnet/anisync/internal/domain"
)

type ListEntryDTO struct {
	LocalID         int64             `json:"localId"`
	MediaID         int               `json:"mediaId"`
	RemoteID        int               `json:"remoteId,omitempty"`
	Status          domain.ListStatus `json:"status"`
	Score           *float64          `json:"score,omitempty"`
	Progress        int               `json:"progress"`
	UpdatedAtLocal  *time.Time        `json:"updatedAtLocal,omitempty"`
	UpdatedAtRemote *time.Time        `json:"updatedAtRemote,omitempty"`
	SyncState       domain.SyncState  `json:"syncState"`
}

func ToListEntryDTO(e domain.ListEntry) ListEntryDTO {
	return ListEntryDTO{
		LocalID:         e.LocalID,
		MediaID:         e.MediaID,
		RemoteID:        e.RemoteID,
		Status:          e.Status,
		Score:           e.Score,
		Progress:        e.Progress,
		UpdatedAtLocal:  timePtr(e.UpdatedAtLocal),
		UpdatedAtRemote: timePtr(e.UpdatedAtRemote),
		SyncState:       e.SyncState,
	}
}

func ToListEntryDTOs(entries []domain.ListEntry) []ListEntryDTO {
	out := make([]ListEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, ToListEntryDTO(e))
	}
	return out
}

type MediaDTO struct {
	ID            int                   `json:"id"`
	Type          string                `json:"type,omitempty"`
	Title         domain.MediaTitle     `json:"title"`
	DisplayTitle  string                `json:"displayTitle"`
	Description   string                `json:"description,omitempty"`
	Episodes      int                   `json:"episodes,omitempty"`
	Chapters      int                   `json:"chapters,omitempty"`
	Duration      int                   `json:"duration,omitempty"`
	Genres        []string              `json:"genres,omitempty"`
	AverageScore  float64               `json:"averageScore,omitempty"`
	Status        string                `json:"status,omitempty"`
	Format        string                `json:"format,omitempty"`
	Season        string                `json:"season,omitempty"`
	SeasonYear    int                   `json:"seasonYear,omitempty"`
	StartDate     domain.FuzzyDate      `json:"startDate"`
	EndDate       domain.FuzzyDate      `json:"endDate"`
	CoverImage    domain.CoverImage     `json:"coverImage"`
	BannerImage   string                `json:"bannerImage,omitempty"`
	Tags          []domain.Tag          `json:"tags,omitempty"`
	Studios       []domain.StudioRef    `json:"studios,omitempty"`
	Characters    []domain.CharacterRef `json:"characters,omitempty"`
	LastFetchedAt *time.Time            `json:"lastFetchedAt,omitempty"`
}

func ToMediaDTO(m domain.Media) MediaDTO {
	return MediaDTO{
		ID:            m.ID,
		Type:          m.Type,
		Title:         m.Title,
		DisplayTitle:  m.Title.Display(),
		Description:   m.Description,
		Episodes:      m.Episodes,
		Chapters:      m.Chapters,
		Duration:      m.Duration,
		Genres:        m.Genres,
		AverageScore:  m.AverageScore,
		Status:        m.Status,
		Format:        m.Format,
		Season:        m.Season,
		SeasonYear:    m.SeasonYear,
		StartDate:     m.StartDate,
		EndDate:       m.EndDate,
		CoverImage:    m.CoverImage,
		BannerImage:   m.BannerImage,
		Tags:          m.Tags,
		Studios:       m.Studios,
		Characters:    m.Characters,
		LastFetchedAt: timePtr(m.LastFetchedAt),
	}
}

type ConflictDTO struct {
	LocalID    int64                 `json:"localId"`
	Reason     domain.ConflictReason `json:"reason"`
	Local      *ListEntryDTO         `json:"local,omitempty"`
	Remote     *ListEntryDTO         `json:"remote,omitempty"`
	Message    string                `json:"message,omitempty"`
	DetectedAt time.Time             `json:"detectedAt"`
}

func ToConflictDTO(c domain.Conflict, local *domain.ListEntry) ConflictDTO {
	dto := ConflictDTO{
		LocalID:    c.LocalID,
		Reason:     c.Reason,
		Message:    c.Message,
		DetectedAt: c.DetectedAt,
	}
	if local != nil {
		l := ToListEntryDTO(*local)
		dto.Local = &l
	}
	if c.Remote != nil {
		r := ToListEntryDTO(*c.Remote)
		dto.Remote = &r
	}
	return dto
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func ToConflictDTOs(views []ConflictView) []ConflictDTO {
	out := make([]ConflictDTO, 0, len(views))
	for _, v := range views {
		local := v.Local
		out = append(out, ToConflictDTO(v.Conflict, &local))
	}
	return out
}

func ToMediaDTOs(media []domain.Media) []MediaDTO {
	out := make([]MediaDTO, 0, len(media))
	for _, m := range media {
		out = append(out, ToMediaDTO(m))
	}
	return out
}
