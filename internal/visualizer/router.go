// Package visualizer serves a browser view of the voice loop: a pulsing
// circle driven by audio levels, plus the current state and last error.
package visualizer

import (
	"embed"
	"encoding/json"
	"io/fs"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

//go:embed static
var staticFiles embed.FS

// Status is reported by /healthz.
type Status struct {
	State         string `json:"state"`
	Running       bool   `json:"running"`
	Clients       int64  `json:"clients"`
	Turns         int    `json:"turns"`
	EventsDropped uint64 `json:"events_dropped"`
}

// StatusFunc returns the current loop status.
type StatusFunc func() Status

// Controller starts and stops the voice loop.
type Controller interface {
	Start()
	Stop()
}

// NewRouter wires the page, the event stream and the health check. When ctl
// is not nil, POST /control accepts {"action": "start"} or {"action": "stop"}.
func NewRouter(hub *Hub, status StatusFunc, ctl Controller) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(withSentryRecovery)

	static, _ := fs.Sub(staticFiles, "static")
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.ServeFileFS(w, req, static, "index.html")
	})
	r.Get("/ws", hub.ServeWS)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		st := status()
		st.Clients = hub.ActiveCount()
		writeJSON(w, http.StatusOK, st)
	})
	if ctl != nil {
		r.Post("/control", handleControl(ctl, status))
	}

	return r
}

func handleControl(ctl Controller, status StatusFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Action string `json:"action"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, 1024)).Decode(&body); err != nil {
			http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
			return
		}

		switch body.Action {
		case "start":
			ctl.Start()
		case "stop":
			ctl.Stop()
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": `action must be "start" or "stop"`,
			})
			return
		}
		writeJSON(w, http.StatusOK, status())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}
