package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	consoleHandler "github.com/zhouzirui/advisor-console/internal/handler/console"
	"github.com/zhouzirui/advisor-console/internal/handler/socket"
	"github.com/zhouzirui/advisor-console/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/advisor-console/internal/middleware"
	consoleService "github.com/zhouzirui/advisor-console/internal/service/console"
)

// Options tunes the router.
type Options struct {
	AllowedOrigins []string
	// Heartbeat is the SSE keepalive interval; zero uses the stream default.
	Heartbeat time.Duration
}

// NewRouter wires the console API around ctrl.
func NewRouter(ctrl *consoleService.Controller, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(opts.AllowedOrigins))
	r.Use(middleware.Heartbeat("/ping"))

	consoleH := consoleHandler.New(ctrl)
	streamH := stream.New(ctrl, opts.Heartbeat)
	socketH := socket.NewWebSocketHandler(ctrl, originChecker(opts.AllowedOrigins))

	r.Route("/api", func(api chi.Router) {
		consoleH.RegisterRoutes(api)
		streamH.RegisterRoutes(api)
		socketH.RegisterRoutes(api)
	})

	return r
}

// originChecker mirrors the CORS allow list for WebSocket upgrades. Requests
// without an Origin header come from non-browser clients and are accepted.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return nil
		}
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
