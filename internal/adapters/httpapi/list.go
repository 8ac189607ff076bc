package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Guilhem-Bonnet/anisync/internal/app"
	"github.com/Guilhem-Bonnet/anisync/internal/domain"
	"github.com/Guilhem-Bonnet/anisync/internal/httpjson"
)

type ListHandler struct {
	engine *app.SyncEngine
}

func NewListHandler(engine *app.SyncEngine) *ListHandler {
	return &ListHandler{engine: engine}
}

func (h *ListHandler) Routes(r chi.Router) {
	r.Get("/media/{id}", h.media)
	r.Get("/search", h.search)
	r.Get("/profile/{name}", h.profile)
	r.Route("/list", func(r chi.Router) {
		r.Get("/", h.list)
		// PUT prend un media id, resolve un local id.
		r.Put("/{id}", h.set)
		r.Post("/{id}/resolve", h.resolve)
	})
	r.Get("/conflicts", h.conflicts)
}

func pathInt(r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func (h *ListHandler) media(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(r, "id")
	if !ok {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid media id")
		return
	}
	m, err := h.engine.ViewMedia(r.Context(), int(id))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, app.ToMediaDTO(m))
}

func (h *ListHandler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("q") == "" {
		httpjson.WriteError(w, http.StatusBadRequest, "missing q")
		return
	}
	page, _ := strconv.Atoi(q.Get("page"))
	if page <= 0 {
		page = 1
	}
	perPage, _ := strconv.Atoi(q.Get("perPage"))
	if perPage <= 0 || perPage > 50 {
		perPage = 20
	}
	res, err := h.engine.SearchMedia(r.Context(), q.Get("q"), page, perPage)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, app.ToMediaDTOs(res))
}

func (h *ListHandler) profile(w http.ResponseWriter, r *http.Request) {
	p, err := h.engine.FetchUserProfile(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, p)
}

func (h *ListHandler) list(w http.ResponseWriter, r *http.Request) {
	entries, err := h.engine.ListEntries(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if state := r.URL.Query().Get("state"); state != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if string(e.SyncState) == state {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	httpjson.Write(w, http.StatusOK, app.ToListEntryDTOs(entries))
}

type setListEntryBody struct {
	Status     string   `json:"status,omitempty"`
	Score      *float64 `json:"score,omitempty"`
	ClearScore bool     `json:"clearScore,omitempty"`
	Progress   *int     `json:"progress,omitempty"`
}

func (h *ListHandler) set(w http.ResponseWriter, r *http.Request) {
	mediaID, ok := pathInt(r, "id")
	if !ok {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid media id")
		return
	}
	var body setListEntryBody
	if !decodeJSON(w, r, &body) {
		return
	}
	entry, err := h.engine.SetListEntry(r.Context(), app.SetListEntryRequest{
		MediaID:    int(mediaID),
		Status:     body.Status,
		Score:      body.Score,
		ClearScore: body.ClearScore,
		Progress:   body.Progress,
	})
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, app.ToListEntryDTO(entry))
}

type resolveBody struct {
	Choice string `json:"choice"`
}

type resolveResponse struct {
	Entry   *app.ListEntryDTO `json:"entry,omitempty"`
	Deleted bool              `json:"deleted"`
}

func (h *ListHandler) resolve(w http.ResponseWriter, r *http.Request) {
	localID, ok := pathInt(r, "id")
	if !ok {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid local id")
		return
	}
	var body resolveBody
	if !decodeJSON(w, r, &body) {
		return
	}
	res, err := h.engine.ForceResolveConflict(r.Context(), localID, domain.ConflictChoice(body.Choice))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	out := resolveResponse{Deleted: res.Deleted}
	if res.Entry != nil {
		dto := app.ToListEntryDTO(*res.Entry)
		out.Entry = &dto
	}
	httpjson.Write(w, http.StatusOK, out)
}

func (h *ListHandler) conflicts(w http.ResponseWriter, r *http.Request) {
	views, err := h.engine.Conflicts(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, app.ToConflictDTOs(views))
}
