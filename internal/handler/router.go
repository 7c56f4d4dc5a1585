package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	chatHandler "github.com/harborchat/companion/internal/handler/chat"
	personaHandler "github.com/harborchat/companion/internal/handler/persona"
	wsHandler "github.com/harborchat/companion/internal/handler/ws"
	middlewarePkg "github.com/harborchat/companion/internal/middleware"
	personaModel "github.com/harborchat/companion/internal/model/persona"
	"github.com/harborchat/companion/internal/service/conversation"
)

// NewRouter wires HTTP routes to core services. tester may be nil when the
// remote completion path is disabled.
func NewRouter(personas personaModel.Store, conv *conversation.Service, tester chatHandler.ConnectionTester, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Route("/api", func(api chi.Router) {
		personaHandler.New(personas, conv, log).RegisterRoutes(api)
		chatHandler.New(conv, tester).RegisterRoutes(api)
		wsHandler.New(conv, log).RegisterRoutes(api)
	})

	return r
}
