package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/teamdiff/draft-backend/internal/registry"
	"github.com/teamdiff/draft-backend/internal/ws"
)

func SetupRoutes(reg *registry.Registry, origins []string, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(reg, origins, log))
	r.Get("/rooms/{roomID}", RoomSnapshot(reg))
	return r
}
