package main

import (
	"net/http"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	zlog "github.com/rs/zerolog/log"

	apiconnect "github.com/osa030/mediasync/internal/api/connect"
	"github.com/osa030/mediasync/internal/api/ws"
	"github.com/osa030/mediasync/internal/app/dispatch"
	"github.com/osa030/mediasync/internal/app/notification"
	"github.com/osa030/mediasync/internal/infra/config"
)

// newRouter mounts the Connect service, the WebSocket bridge and the
// health check. Subscriptions end when done is closed.
func newRouter(
	cfg *config.Config,
	dispatcher *dispatch.Dispatcher,
	notifications *notification.Manager,
	done <-chan struct{},
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	var opts []connect.HandlerOption
	if cfg.Server.Token != "" {
		opts = append(opts, connect.WithInterceptors(apiconnect.NewTokenInterceptor(cfg.Server.Token)))
	} else {
		zlog.Warn().Msg("server.token is empty, bridge is unauthenticated")
	}
	bridgeService := apiconnect.NewBridgeService(dispatcher, notifications, done)
	path, handler := apiconnect.NewBridgeServiceHandler(bridgeService, opts...)
	r.Mount(path, handler)

	r.With(ws.RequireToken(cfg.Server.Token)).
		Get("/ws", ws.NewBridge(dispatcher, notifications, done).ServeHTTP)

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zlog.Debug().Msgf("http: %s %s request_id=%s", r.Method, r.URL.Path, middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r)
	})
}
