package domain

import (
	"strings"
	"time"
)

type MediaTitle struct {
	Romaji  string `json:"romaji,omitempty"`
	English string `json:"english,omitempty"`
	Native  string `json:"native,omitempty"`
}

// Display renvoie le premier titre non vide (english > romaji > native).
func (t MediaTitle) Display() string {
	for _, v := range []string{t.English, t.Romaji, t.Native} {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

type FuzzyDate struct {
	Year  int `json:"year,omitempty"`
	Month int `json:"month,omitempty"`
	Day   int `json:"day,omitempty"`
}

type CoverImage struct {
	Large  string `json:"large,omitempty"`
	Medium string `json:"medium,omitempty"`
}

type Tag struct {
	Name string `json:"name"`
	Rank int    `json:"rank,omitempty"`
}

type StudioRef struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	IsMain bool   `json:"isMain,omitempty"`
}

type CharacterRef struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Role  string `json:"role,omitempty"`
	Image string `json:"image,omitempty"`
}

// Media est une fiche du catalogue. Jamais modifiée localement: seule une
// nouvelle récupération complète la remplace.
type Media struct {
	ID           int
	Type         string
	Title        MediaTitle
	Description  string
	Episodes     int // 0 = inconnu
	Chapters     int
	Duration     int
	Genres       []string
	AverageScore float64
	Status       string
	Format       string
	Season       string
	SeasonYear   int
	StartDate    FuzzyDate
	EndDate      FuzzyDate
	CoverImage   CoverImage
	BannerImage  string
	Tags         []Tag
	Studios      []StudioRef
	Characters   []CharacterRef

	// LastFetchedAt à zéro signifie "résumé seulement" (ex: embarqué dans la
	// liste) et donc toujours périmé.
	LastFetchedAt time.Time
}

// Stale indique si la fiche doit être rafraîchie pour un TTL donné.
func (m Media) Stale(now time.Time, ttl time.Duration) bool {
	if m.LastFetchedAt.IsZero() {
		return true
	}
	return now.Sub(m.LastFetchedAt) >= ttl
}

// MaxProgress renvoie la borne de progression connue (0 = pas de borne).
func (m Media) MaxProgress() int {
	if m.Episodes > 0 {
		return m.Episodes
	}
	return m.Chapters
}
