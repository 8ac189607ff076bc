package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/Guilhem-Bonnet/anisync/internal/app"
	"github.com/Guilhem-Bonnet/anisync/internal/ports"
)

type Server struct {
	logger zerolog.Logger
	engine *app.SyncEngine
	auth   *app.AuthSession
	bus    ports.EventBus
}

func NewServer(logger zerolog.Logger, engine *app.SyncEngine, auth *app.AuthSession, bus ports.EventBus) *Server {
	return &Server{logger: logger, engine: engine, auth: auth, bus: bus}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.RequestIDHandler("request_id", "Request-Id"))
	r.Use(hlog.RemoteAddrHandler("remote_ip"))
	r.Use(hlog.UserAgentHandler("user_agent"))
	r.Use(hlog.AccessHandler(accessLogFn))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/version", s.handleVersion)
		r.Get("/openapi.json", s.handleOpenAPI)
		// SSE: pas de timeout sur ce flux.
		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(defaultRequestTimeout))
			if s.engine != nil {
				NewListHandler(s.engine).Routes(r)
				NewSyncHandler(s.engine).Routes(r)
			}
			if s.auth != nil {
				NewAuthHandler(s.auth, s.engine).Routes(r)
			}
		})
	})

	return r
}
