// Package status serves the service's health, refresh status, metrics and
// the exported artifacts over HTTP.
package status

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/snapetech/vodka-export/internal/metrics"
	"github.com/snapetech/vodka-export/internal/publish"
	"github.com/snapetech/vodka-export/internal/refresh"
	"github.com/snapetech/vodka-export/internal/state"
)

// Scheduler is the part of the refresh worker the server reports on.
type Scheduler interface {
	Status() refresh.Status
	Trigger()
}

// Server is the status HTTP server. Any field but Addr may be nil.
type Server struct {
	Addr      string
	Scheduler Scheduler
	History   state.Store
	Metrics   *metrics.Metrics
	Publisher *publish.Publisher
	// Artifacts maps a public file name to its path on the publisher's filesystem.
	Artifacts map[string]string
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.serveHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.serveStatus).Methods(http.MethodGet)
	r.HandleFunc("/refresh", s.serveRefresh).Methods(http.MethodPost)
	r.HandleFunc("/files/{name}", s.serveArtifact).Methods(http.MethodGet, http.MethodHead)
	if s.Metrics != nil {
		r.Handle("/metrics", s.Metrics.Handler()).Methods(http.MethodGet)
	}
	return logRequests(r)
}

// Run listens on Addr until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.Addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("status: listening on %s", s.Addr)
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("status: shutdown: %v", err)
		}
		<-serverErr
		return nil
	}
}

// Returns 200 while the worker is alive, 503 once it has stopped or paused.
func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	label := "idle"
	if s.Scheduler != nil {
		label = s.Scheduler.Status().Label()
	}
	code := http.StatusOK
	if label == "stopped" || label == "paused" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": label})
}

type cycleView struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Started    time.Time `json:"started"`
	Finished   time.Time `json:"finished"`
	OK         bool      `json:"ok"`
	Error      string    `json:"error,omitempty"`
	Channels   int       `json:"channels"`
	Programmes int       `json:"programmes"`
}

type statusView struct {
	State      string      `json:"state"`
	Failures   int         `json:"failures"`
	Runs       int         `json:"runs"`
	LastUpdate *time.Time  `json:"last_update,omitempty"`
	NextRun    *time.Time  `json:"next_run,omitempty"`
	LastError  string      `json:"last_error,omitempty"`
	Cycles     []cycleView `json:"cycles"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// serveStatus reports the scheduler and the most recent cycles (?n=, default 10).
func (s *Server) serveStatus(w http.ResponseWriter, r *http.Request) {
	n := 10
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			http.Error(w, "bad n", http.StatusBadRequest)
			return
		}
		n = parsed
	}
	view := statusView{State: "idle", Cycles: []cycleView{}}
	if s.Scheduler != nil {
		st := s.Scheduler.Status()
		view.State = st.Label()
		view.Failures = st.Failures
		view.Runs = st.Runs
		view.LastUpdate = timePtr(st.LastUpdate)
		view.NextRun = timePtr(st.NextRun)
		view.LastError = st.LastError
	}
	if s.History != nil {
		cycles, err := s.History.RecentCycles(r.Context(), n)
		if err != nil {
			log.Printf("status: recent cycles: %v", err)
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}
		for _, c := range cycles {
			view.Cycles = append(view.Cycles, cycleView{
				ID: c.ID, Kind: c.Kind, Started: c.Started, Finished: c.Finished,
				OK: c.OK, Error: c.Error, Channels: c.Channels, Programmes: c.Programmes,
			})
		}
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) serveRefresh(w http.ResponseWriter, r *http.Request) {
	if s.Scheduler == nil {
		http.Error(w, "scheduler not running", http.StatusServiceUnavailable)
		return
	}
	s.Scheduler.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

// serveArtifact streams a published file. Only names listed in Artifacts are served.
func (s *Server) serveArtifact(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	p, ok := s.Artifacts[name]
	if !ok || s.Publisher == nil {
		http.NotFound(w, r)
		return
	}
	f, err := s.Publisher.FS.Open(p)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	switch path.Ext(name) {
	case ".xml":
		w.Header().Set("Content-Type", "application/xml")
	case ".m3u", ".m3u8":
		w.Header().Set("Content-Type", "audio/x-mpegurl")
	default:
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	if info, err := f.Stat(); err == nil {
		w.Header().Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	}
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, f); err != nil {
		log.Printf("status: send %s: %v", name, err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *loggingResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(lw, r)
		if r.URL.Path == "/metrics" || r.URL.Path == "/healthz" {
			return
		}
		log.Printf("status: %s %s %d %s", r.Method, r.URL.Path, lw.status, time.Since(start).Round(time.Millisecond))
	})
}
