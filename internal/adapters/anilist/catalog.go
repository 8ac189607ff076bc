package anilist

import (
	"context"
	"strings"
	"time"

	"github.com/Guilhem-Bonnet/anisync/internal/domain"
	"github.com/Guilhem-Bonnet/anisync/internal/ports"
)

const mediaFields = `
	id type
	title { romaji english native }
	description(asHtml: false)
	episodes chapters duration genres averageScore status format season seasonYear
	startDate { year month day }
	endDate { year month day }
	coverImage { large medium }
	bannerImage
	tags { name rank }
	studios { edges { isMain node { id name } } }
	characters(perPage: 25, sort: [ROLE, RELEVANCE]) { edges { role node { id name { full } image { medium large } } } }
`

const summaryFields = `
	id type
	title { romaji english native }
	episodes chapters format status
	coverImage { large medium }
`

const listEntryFields = `id mediaId status score(format: POINT_10_DECIMAL) progress updatedAt`

const (
	viewerQuery = `query { Viewer { id name } }`

	mediaQuery = `query($id: Int) { Media(id: $id) {` + mediaFields + `} }`

	searchQuery = `query($search: String, $page: Int, $perPage: Int) {
		Page(page: $page, perPage: $perPage) {
			media(search: $search, sort: [SEARCH_MATCH, POPULARITY_DESC]) {` + mediaFields + `}
		}
	}`

	userQuery = `query($name: String) {
		User(name: $name) {
			id name about(asHtml: false)
			avatar { large medium }
			bannerImage
			statistics {
				anime { count meanScore minutesWatched episodesWatched }
				manga { count meanScore chaptersRead }
			}
			favourites { characters(perPage: 10) { nodes { id name { full } image { medium large } } } }
		}
	}`

	listQuery = `query($userId: Int) {
		anime: MediaListCollection(userId: $userId, type: ANIME) {
			lists { entries { ` + listEntryFields + ` media {` + summaryFields + `} } }
		}
		manga: MediaListCollection(userId: $userId, type: MANGA) {
			lists { entries { ` + listEntryFields + ` media {` + summaryFields + `} } }
		}
	}`

	listEntryQuery = `query($userId: Int, $mediaId: Int) {
		MediaList(userId: $userId, mediaId: $mediaId) { ` + listEntryFields + ` }
	}`

	saveEntryMutation = `mutation($id: Int, $mediaId: Int, $status: MediaListStatus, $scoreRaw: Int, $progress: Int) {
		SaveMediaListEntry(id: $id, mediaId: $mediaId, status: $status, scoreRaw: $scoreRaw, progress: $progress) { ` + listEntryFields + ` }
	}`
)

func (c *Client) Viewer(ctx context.Context) (domain.Viewer, error) {
	var out viewerData
	if err := query(ctx, c, "viewer", graphQLRequest{Query: viewerQuery}, &out); err != nil {
		return domain.Viewer{}, wrapOp("viewer", err)
	}
	return domain.Viewer{ID: out.Viewer.ID, Name: out.Viewer.Name}, nil
}

func (c *Client) FetchMedia(ctx context.Context, id int) (domain.Media, error) {
	if id <= 0 {
		return domain.Media{}, &ports.APIError{Kind: ports.APIValidation, Message: "media id must be positive"}
	}
	var out mediaData
	req := graphQLRequest{Query: mediaQuery, Variables: map[string]any{"id": id}}
	if err := query(ctx, c, "media", req, &out); err != nil {
		return domain.Media{}, wrapOp("media", err)
	}
	return out.Media.toDomain(time.Now().UTC()), nil
}

func (c *Client) SearchMedia(ctx context.Context, q string, page, perPage int) ([]domain.Media, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []domain.Media{}, nil
	}
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 || perPage > 50 {
		perPage = 25
	}
	var out searchData
	req := graphQLRequest{Query: searchQuery, Variables: map[string]any{"search": q, "page": page, "perPage": perPage}}
	if err := query(ctx, c, "search", req, &out); err != nil {
		return nil, wrapOp("search", err)
	}
	now := time.Now().UTC()
	res := make([]domain.Media, 0, len(out.Page.Media))
	for _, m := range out.Page.Media {
		res = append(res, m.toDomain(now))
	}
	return res, nil
}

func (c *Client) FetchUserProfile(ctx context.Context, name string) (domain.UserProfile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.UserProfile{}, &ports.APIError{Kind: ports.APIValidation, Message: "user name is required"}
	}
	var out userData
	req := graphQLRequest{Query: userQuery, Variables: map[string]any{"name": name}}
	if err := query(ctx, c, "user", req, &out); err != nil {
		return domain.UserProfile{}, wrapOp("user", err)
	}
	return out.User.toDomain(), nil
}

func (c *Client) FetchList(ctx context.Context, userID int) ([]ports.RemoteListEntry, error) {
	if userID <= 0 {
		return nil, &ports.APIError{Kind: ports.APIValidation, Message: "user id must be positive"}
	}
	var out listCollectionData
	req := graphQLRequest{Query: listQuery, Variables: map[string]any{"userId": userID}}
	if err := query(ctx, c, "list", req, &out); err != nil {
		return nil, wrapOp("list", err)
	}
	return collectEntries(out.Anime, out.Manga), nil
}

func (c *Client) FetchListEntry(ctx context.Context, userID, mediaID int) (domain.ListEntry, error) {
	var out listEntryData
	req := graphQLRequest{Query: listEntryQuery, Variables: map[string]any{"userId": userID, "mediaId": mediaID}}
	if err := query(ctx, c, "list entry", req, &out); err != nil {
		return domain.ListEntry{}, wrapOp("list entry", err)
	}
	return out.MediaList.toDomain(), nil
}

// PushListEntry envoie status, score et progression. Sans RemoteID, le
// serveur crée l'entrée (clé naturelle mediaId). scoreRaw part toujours: le
// serveur garde les champs absents, et 0 efface la note.
func (c *Client) PushListEntry(ctx context.Context, entry domain.ListEntry) (domain.PushResult, error) {
	if entry.MediaID <= 0 || !entry.Status.Valid() || entry.Progress < 0 {
		return domain.PushResult{}, &ports.APIError{Kind: ports.APIValidation, Message: "invalid list entry"}
	}
	vars := map[string]any{
		"mediaId":  entry.MediaID,
		"status":   string(entry.Status),
		"progress": entry.Progress,
		"scoreRaw": 0,
	}
	if entry.HasRemoteID() {
		vars["id"] = entry.RemoteID
	}
	if entry.Score != nil {
		vars["scoreRaw"] = scoreRaw(*entry.Score)
	}

	var out saveEntryData
	if err := query(ctx, c, "save entry", graphQLRequest{Query: saveEntryMutation, Variables: vars}, &out); err != nil {
		return domain.PushResult{}, wrapOp("save entry", err)
	}
	saved := out.SaveMediaListEntry.toDomain()
	if saved.MediaID != entry.MediaID {
		return domain.PushResult{}, &ports.APIError{Kind: ports.APIValidation, Message: "server saved a different media"}
	}
	return domain.PushResult{RemoteID: saved.RemoteID, UpdatedAtRemote: saved.UpdatedAtRemote}, nil
}

var _ ports.CatalogClient = (*Client)(nil)
