package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Guilhem-Bonnet/anisync/internal/app"
	"github.com/Guilhem-Bonnet/anisync/internal/httpjson"
)

type SyncHandler struct {
	engine *app.SyncEngine
}

func NewSyncHandler(engine *app.SyncEngine) *SyncHandler {
	return &SyncHandler{engine: engine}
}

func (h *SyncHandler) Routes(r chi.Router) {
	r.Route("/sync", func(r chi.Router) {
		r.Post("/", h.sync)
		r.Get("/", h.status)
		r.Post("/cancel", h.cancel)
		r.Put("/offline", h.offline)
	})
}

func (h *SyncHandler) sync(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.SyncAll(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, report)
}

func (h *SyncHandler) status(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.Status(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, st)
}

func (h *SyncHandler) cancel(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, map[string]bool{"canceled": h.engine.CancelSync()})
}

type offlineBody struct {
	Offline bool `json:"offline"`
}

func (h *SyncHandler) offline(w http.ResponseWriter, r *http.Request) {
	var body offlineBody
	if !decodeJSON(w, r, &body) {
		return
	}
	h.engine.SetOffline(body.Offline)
	httpjson.Write(w, http.StatusOK, body)
}
