package domain

type Viewer struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type ListStats struct {
	Count           int     `json:"count"`
	MeanScore       float64 `json:"meanScore"`
	MinutesWatched  int     `json:"minutesWatched,omitempty"`
	EpisodesWatched int     `json:"episodesWatched,omitempty"`
	ChaptersRead    int     `json:"chaptersRead,omitempty"`
}

type UserProfile struct {
	ID                  int            `json:"id"`
	Name                string         `json:"name"`
	About               string         `json:"about,omitempty"`
	Avatar              CoverImage     `json:"avatar"`
	BannerImage         string         `json:"bannerImage,omitempty"`
	AnimeStats          ListStats      `json:"animeStats"`
	MangaStats          ListStats      `json:"mangaStats"`
	FavouriteCharacters []CharacterRef `json:"favouriteCharacters,omitempty"`
}
