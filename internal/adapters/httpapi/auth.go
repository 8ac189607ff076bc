package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Guilhem-Bonnet/anisync/internal/app"
	"github.com/Guilhem-Bonnet/anisync/internal/httpjson"
)

type AuthHandler struct {
	auth   *app.AuthSession
	engine *app.SyncEngine
}

func NewAuthHandler(auth *app.AuthSession, engine *app.SyncEngine) *AuthHandler {
	return &AuthHandler{auth: auth, engine: engine}
}

func (h *AuthHandler) Routes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Get("/status", h.status)
		r.Post("/login", h.login)
		r.Post("/logout", h.logout)
	})
}

func (h *AuthHandler) status(w http.ResponseWriter, r *http.Request) {
	st, err := h.auth.Status(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, st)
}

// login renvoie l'URL d'autorisation; la redirection arrive sur le
// CallbackServer.
func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	u, err := h.auth.BeginAuthorization()
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]string{"authorizeUrl": u})
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	var err error
	if h.engine != nil {
		err = h.engine.Logout(r.Context())
	} else {
		err = h.auth.Logout(r.Context())
	}
	if err != nil {
		writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
