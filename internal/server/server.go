// Package server implements the cfrealip-server HTTP endpoints.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abczzz13/cfrealip"
	"github.com/abczzz13/cfrealip/cfhttp"
	"github.com/abczzz13/cfrealip/internal/logger"
	"github.com/abczzz13/cfrealip/rangesource"
)

// RangeRefresher is the part of *rangesource.Source the handlers need.
type RangeRefresher interface {
	Refresh(ctx context.Context) (*cfrealip.RangeSet, error)
	Ranges() *cfrealip.RangeSet
}

// Server routes requests to the demo endpoints.
type Server struct {
	resolver  *cfrealip.Resolver
	refresher RangeRefresher
	gatherer  prom.Gatherer
	cfOptions []cfhttp.Option
}

// New creates a Server. A nil gatherer falls back to prom.DefaultGatherer.
func New(resolver *cfrealip.Resolver, refresher RangeRefresher, gatherer prom.Gatherer, opts ...cfhttp.Option) *Server {
	if gatherer == nil {
		gatherer = prom.DefaultGatherer
	}

	return &Server{
		resolver:  resolver,
		refresher: refresher,
		gatherer:  gatherer,
		cfOptions: opts,
	}
}

// Handler returns the routed handler. Only / and /check run behind the
// Cloudflare middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(logger.WithLoggingHTTPMiddleware)

	r.Group(func(r chi.Router) {
		r.Use(cfhttp.Middleware(s.resolver, s.cfOptions...))
		r.Get("/", s.handleIndex)
		r.Get("/check", s.handleCheck)
	})

	r.Get("/ranges", s.handleRanges)
	r.Get("/update-ranges", s.handleUpdateRanges)
	r.Post("/update-ranges", s.handleUpdateRanges)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return r
}

type headersView struct {
	CFConnectingIP string `json:"cf-connecting-ip,omitempty"`
	TrueClientIP   string `json:"true-client-ip,omitempty"`
	XForwardedFor  string `json:"x-forwarded-for,omitempty"`
}

type indexResponse struct {
	Message             string      `json:"message"`
	RealIP              *string     `json:"realIp"`
	SocketRemoteAddress string      `json:"socketRemoteAddress"`
	Trusted             bool        `json:"trusted"`
	Source              string      `json:"source,omitempty"`
	Headers             headersView `json:"headers"`
}

type checkResponse struct {
	IsFromCloudflare bool    `json:"isFromCloudflare"`
	RealIP           *string `json:"realIp"`
	TrustedIP        *string `json:"trustedIp"`
	SocketIP         *string `json:"socketIp"`
}

type updateResponse struct {
	Message   string `json:"message"`
	IPv4Count int    `json:"ipv4Count"`
	IPv6Count int    `json:"ipv6Count"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	result, _ := cfhttp.Resolution(r)

	writeJSON(w, http.StatusOK, indexResponse{
		Message:             "Cloudflare Real IP",
		RealIP:              addrString(result.IP.IsValid(), result.IP.String()),
		SocketRemoteAddress: socketAddress(r, result),
		Trusted:             result.Trusted,
		Source:              result.Source,
		Headers: headersView{
			CFConnectingIP: r.Header.Get(cfrealip.HeaderCFConnectingIP),
			TrueClientIP:   r.Header.Get(cfrealip.HeaderTrueClientIP),
			XForwardedFor:  r.Header.Get(cfrealip.HeaderXForwardedFor),
		},
	})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	result, _ := cfhttp.Resolution(r)

	writeJSON(w, http.StatusOK, checkResponse{
		IsFromCloudflare: result.Trusted,
		RealIP:           addrString(result.BestGuess.IsValid(), result.BestGuess.String()),
		TrustedIP:        addrString(result.Valid(), result.IP.String()),
		SocketIP:         addrString(result.Peer.IsValid(), result.Peer.String()),
	})
}

func (s *Server) handleRanges(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rangesource.SnapshotOf(s.refresher.Ranges()))
}

func (s *Server) handleUpdateRanges(w http.ResponseWriter, r *http.Request) {
	set, err := s.refresher.Refresh(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "Failed to update ranges",
			Message: err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, updateResponse{
		Message:   "Cloudflare IP ranges updated",
		IPv4Count: len(set.V4()),
		IPv6Count: len(set.V6()),
	})
}

// socketAddress reports the direct peer even when RemoteAddr was rewritten.
func socketAddress(r *http.Request, result cfrealip.Resolution) string {
	if result.Peer.IsValid() {
		return result.Peer.String()
	}
	return r.RemoteAddr
}

func addrString(ok bool, s string) *string {
	if !ok {
		return nil
	}
	return &s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		logger.Log.Errorw("failed to encode response", "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		logger.Log.Warnw("failed to write response", "err", err)
	}
}
