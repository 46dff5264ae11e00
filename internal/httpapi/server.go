// Package httpapi is the thin HTTP framing around the gateway and admin
// surfaces (spec.md §1: transport details are explicitly out of the
// core's scope, so this package only translates requests/responses and
// never makes domain decisions itself). Routing follows the teacher's
// net/http ServeMux "METHOD /path" pattern (pkg/connector/provisioning.go).
package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentkernel/gateway/internal/admin"
	"github.com/agentkernel/gateway/internal/gateway"
)

// Server wires the gateway and admin surfaces onto an http.Handler.
type Server struct {
	gw    *gateway.Gateway
	admin *admin.Admin
	log   zerolog.Logger
	mux   *http.ServeMux
}

// New builds a Server with every route registered.
func New(gw *gateway.Gateway, adminSurface *admin.Admin, log zerolog.Logger) *Server {
	s := &Server{
		gw:    gw,
		admin: adminSurface,
		log:   log.With().Str("component", "httpapi.Server").Logger(),
		mux:   http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("GET /admin/identity", s.handleIdentityLookup)
	s.mux.HandleFunc("POST /admin/identity/tier", s.handleTierUpdate)
	s.mux.HandleFunc("GET /admin/stats", s.handleStats)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.NewString()
	w.Header().Set("X-Request-Id", requestID)
	reqLog := s.log.With().Str("request_id", requestID).Logger()

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	defer func() {
		if rerr := recover(); rerr != nil {
			reqLog.Error().Interface("panic", rerr).Str("path", r.URL.Path).Msg("panic recovered in handler")
			writeError(rec, http.StatusInternalServerError, "internal error")
		}
		reqLog.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("request handled")
	}()
	s.mux.ServeHTTP(rec, r)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
