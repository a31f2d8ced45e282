package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/z-tavern/widget/internal/handler/stub"
	"github.com/zhouzirui/z-tavern/widget/internal/handler/widget"
	middlewarePkg "github.com/zhouzirui/z-tavern/widget/internal/middleware"
	widgetService "github.com/zhouzirui/z-tavern/widget/internal/service/widget"
	"github.com/zhouzirui/z-tavern/widget/pkg/utils"
)

// NewRouter wires the widget gateway routes.
func NewRouter(manager *widgetService.Manager, client widget.ClientConfig) http.Handler {
	r := newBaseRouter()

	widgetHandler := widget.New(manager, client)
	r.Route("/widget", widgetHandler.RegisterRoutes)

	return r
}

// NewStubRouter wires the stand-in backend under /api.
func NewStubRouter(stubHandler *stub.Handler) http.Handler {
	r := newBaseRouter()
	r.Route("/api", stubHandler.RegisterRoutes)
	return r
}

func newBaseRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}
