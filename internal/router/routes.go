package router

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	v1 "github.com/tinoosan/fota/api/v1"
	"github.com/tinoosan/fota/internal/auth"
	"github.com/tinoosan/fota/internal/history"
)

// New sets up the control API routes and middleware. events serves the
// websocket event stream; it may be nil.
func New(logger *slog.Logger, upd v1.Updater, hist history.Reader, events http.Handler, token string) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Error("write healthz response", "err", err)
		}
	}).Methods("GET")
	r.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !upd.IsRunning() {
			http.Error(w, "updater not running", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	h := v1.NewUpdateHandler(logger, upd, hist)

	r.Use(v1.RequestID)
	r.Use(h.Log)
	r.Use(auth.Middleware(token))

	api := r.PathPrefix("/v1").Subrouter()

	get := api.Methods("GET").Subrouter()
	get.HandleFunc("/status", h.GetStatus)
	get.HandleFunc("/history", h.GetHistory)
	get.HandleFunc("/history/{id}", h.GetAttempt)
	if events != nil {
		get.Handle("/events", events)
	}

	post := api.Methods("POST").Subrouter()
	post.HandleFunc("/check", h.PostCheck)

	return r
}
