// Package gateway is the HTTP proxy in front of the storage backend. Every
// request runs through the filter chain; requests no filter terminates are
// forwarded to the backend unchanged.
package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/trashgate/trashgate/pkg/gateway/data"
	"github.com/trashgate/trashgate/pkg/gateway/filter"
	"github.com/trashgate/trashgate/pkg/logger"
)

// Server proxies requests to the backend after running the filter chain.
type Server struct {
	chain     *filter.Chain
	forwarder filter.Forwarder

	metricsRequest         *prometheus.CounterVec
	metricsRequestDuration *prometheus.HistogramVec
}

func NewServer(chain *filter.Chain, forwarder filter.Forwarder) *Server {
	return &Server{
		chain:     chain,
		forwarder: forwarder,
		metricsRequest: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trashgate_requests_total",
			Help: "Requests handled by the gateway",
		}, []string{"method", "status"}),
		metricsRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trashgate_request_duration_seconds",
			Help:    "Request handling duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Metrics returns the server's collectors for registration.
func (s *Server) Metrics() []prometheus.Collector {
	return []prometheus.Collector{s.metricsRequest, s.metricsRequestDuration}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	wrapped := &wrappedResponseRecorder{ResponseWriter: w}

	d := data.NewData(r.Context(), r)
	d.ResponseWriter = wrapped

	defer func() {
		// A client that went away mid-request is not a server error worth counting
		status := wrapped.statusCode
		if errors.Is(r.Context().Err(), context.Canceled) {
			status = 0
		}
		s.metricsRequest.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
		s.metricsRequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	}()

	filterType, ended, err := s.chain.Run(d)
	if err != nil {
		logger.Ctx(r.Context()).Error().Err(err).
			Str("filter", filterType).
			Str("path", r.URL.Path).
			Msg("filter chain error")
		if !wrapped.wroteHeader {
			http.Error(wrapped, "internal error", http.StatusInternalServerError)
		}
		return
	}
	if ended {
		return
	}

	s.forward(d, wrapped)
}

// forward passes the request to the backend and streams the response back.
func (s *Server) forward(d *data.Data, w http.ResponseWriter) {
	resp, err := s.forwarder.Forward(d.Ctx, d.Req)
	if err != nil {
		logger.Ctx(d.Ctx).Error().Err(err).
			Str("method", d.Req.Method).
			Str("path", d.Req.URL.Path).
			Msg("backend forward failed")
		http.Error(w, "backend unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	header := w.Header()
	for name, values := range resp.Header {
		if name == "Connection" || name == "Transfer-Encoding" {
			continue
		}
		header[name] = values
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		logger.Ctx(d.Ctx).Warn().Err(err).Msg("error streaming backend response")
	}
}

type wrappedResponseRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (w *wrappedResponseRecorder) WriteHeader(code int) {
	if !w.wroteHeader {
		w.statusCode = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *wrappedResponseRecorder) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.statusCode = http.StatusOK
		w.wroteHeader = true
	}
	return w.ResponseWriter.Write(b)
}
