package inbound

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-hookrelay/core"
	glog "github.com/goliatone/go-logger/glog"
)

const DefaultMaxBodyBytes int64 = 1 << 20

const (
	healthPath  = "/healthz"
	webhookPath = "/{provider}/webhook"
)

type ServerOptions struct {
	MaxBodyBytes int64
	Logger       core.Logger
	Now          func() time.Time
}

// Server adapts the dispatcher to net/http. Routes:
//
//	POST /{provider}/webhook
//	GET  /healthz
type Server struct {
	dispatcher   *Dispatcher
	maxBodyBytes int64
	logger       core.Logger
	now          func() time.Time
}

func NewServer(dispatcher *Dispatcher, opts ServerOptions) *Server {
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Server{
		dispatcher:   dispatcher,
		maxBodyBytes: maxBody,
		logger:       glog.Ensure(opts.Logger),
		now:          now,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+healthPath, s.handleHealth)
	mux.HandleFunc("POST "+webhookPath, s.handleWebhook)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startedAt := s.now()
	providerID := r.PathValue("provider")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeText(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeText(w, http.StatusBadRequest, "Unable to read request body")
		return
	}

	result, err := s.dispatcher.Dispatch(r.Context(), core.InboundRequest{
		ProviderID: providerID,
		Surface:    SurfaceWebhook,
		Headers:    flattenHeaders(r.Header),
		Body:       body,
		Metadata: map[string]any{
			"remote_addr": r.RemoteAddr,
		},
	})

	status := result.StatusCode
	text := result.Body
	if status == 0 {
		status = statusFor(err)
		text = http.StatusText(status)
	}

	fields := []any{
		"provider_id", providerID,
		"status", status,
		"duration_ms", s.now().Sub(startedAt).Milliseconds(),
	}
	if outcome, ok := result.Metadata["outcome"]; ok {
		fields = append(fields, "outcome", outcome)
	}
	if err != nil {
		fields = append(fields, "error", err)
	}
	switch {
	case status >= http.StatusInternalServerError:
		s.logger.Error("webhook request failed", fields...)
	case status >= http.StatusBadRequest:
		s.logger.Warn("webhook request rejected", fields...)
	default:
		s.logger.Debug("webhook request handled", fields...)
	}

	writeText(w, status, text)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		flat[key] = strings.Join(values, ",")
	}
	return flat
}
