// Package http serves resources over JSON-RPC 2.0.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/artpar/resrun/adapters/metrics"
	"github.com/artpar/resrun/adapters/remote"
	"github.com/artpar/resrun/core/definition"
	"github.com/artpar/resrun/core/errs"
	"github.com/artpar/resrun/core/resource"
	"github.com/artpar/resrun/core/value"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// maxBodySize bounds a request body.
const maxBodySize = 4 << 20

// VersionResponse represents the version endpoint response.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// Handler serves one resource as a JSON-RPC endpoint. Every visible
// callable property of the resource is a method.
type Handler struct {
	root   *resource.Resource
	logger zerolog.Logger
	mu     sync.Mutex
}

// NewHandler creates a JSON-RPC handler for root.
func NewHandler(root *resource.Resource, logger zerolog.Logger) *Handler {
	return &Handler{root: root, logger: logger}
}

// request is a server side envelope. ID stays raw so an absent id can be
// told apart from a null one.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	ID      json.RawMessage `json:"id"`
	Params  json.RawMessage `json:"params"`
}

func (r request) isNotification() bool {
	return len(r.ID) == 0
}

// ServeHTTP handles single and batch requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeJSON(w, errorResponse(nil, remote.CodeParseError, "read body: "+err.Error(), nil))
		return
	}
	body = bytes.TrimSpace(body)

	if len(body) > 0 && body[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(body, &batch); err != nil {
			writeJSON(w, errorResponse(nil, remote.CodeParseError, "parse error", nil))
			return
		}
		if len(batch) == 0 {
			writeJSON(w, errorResponse(nil, remote.CodeInvalidRequest, "empty batch", nil))
			return
		}
		var out []remote.Response
		for _, raw := range batch {
			if resp, ok := h.handle(r.Context(), raw); ok {
				out = append(out, resp)
			}
		}
		if len(out) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, out)
		return
	}

	resp, ok := h.handle(r.Context(), body)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, resp)
}

// handle answers one request. It reports false for notifications.
func (h *Handler) handle(ctx context.Context, raw json.RawMessage) (remote.Response, bool) {
	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return errorResponse(nil, remote.CodeParseError, "parse error", nil), true
		}
		return errorResponse(nil, remote.CodeInvalidRequest, "invalid request: "+err.Error(), nil), true
	}
	id := rawID(req.ID)
	if req.JSONRPC != remote.Version || req.Method == "" {
		return errorResponse(id, remote.CodeInvalidRequest, "invalid request", nil), true
	}

	start := time.Now()
	data, err := h.exec(ctx, req)

	event := h.logger.Debug()
	if err != nil {
		event = h.logger.Warn().Err(err)
	}
	event.Str("method", req.Method).
		Dur("duration", time.Since(start)).
		Msg("rpc request handled")

	if req.isNotification() {
		return remote.Response{}, false
	}
	if err != nil {
		return rpcError(id, err), true
	}
	return remote.Response{JSONRPC: remote.Version, Result: data, ID: id}, true
}

// exec calls req and encodes the result under the handler's lock, since
// methods may write to the shared root resource.
func (h *Handler) exec(ctx context.Context, req request) (json.RawMessage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	result, err := h.call(ctx, req)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, &remote.RPCError{Code: remote.CodeInternalError, Message: "encode result: " + err.Error()}
	}
	return data, nil
}

// call runs the named method of the root resource.
func (h *Handler) call(ctx context.Context, req request) (any, error) {
	if req.Method == remote.MethodsMethod {
		return h.Methods()
	}

	method, err := h.root.GetChild(req.Method)
	if err != nil {
		return nil, err
	}
	if method == nil || !method.IsCallable() || method.IsHidden() {
		return nil, &remote.RPCError{Code: remote.CodeMethodNotFound, Message: "method not found: " + req.Method}
	}

	in, err := decodeParams(req.Params)
	if err != nil {
		return nil, &remote.RPCError{Code: remote.CodeInvalidParams, Message: err.Error()}
	}
	return method.Invoke(ctx, in, resource.WithParent(h.root))
}

// Methods lists the visible callable properties of the root resource.
func (h *Handler) Methods() ([]string, error) {
	methods := []string{}
	for _, k := range h.root.Keys() {
		child, err := h.root.GetChild(k)
		if err != nil {
			if errors.Is(err, errs.ErrAmbiguousProperty) {
				continue
			}
			return nil, err
		}
		if child != nil && child.IsCallable() && !child.IsHidden() {
			methods = append(methods, k)
		}
	}
	return methods, nil
}

// decodeParams accepts a positional array, an object with "arguments" and
// "options", or any other object as options.
func decodeParams(raw json.RawMessage) (resource.Input, error) {
	in := resource.Input{Arguments: []any{}, Options: value.NewOrderedMap()}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return in, nil
	}

	decoded, err := definition.Parse(raw)
	if err != nil {
		return in, err
	}
	switch t := decoded.(type) {
	case []any:
		in.Arguments = t
		return in, nil
	case *value.OrderedMap:
		args, hasArgs := t.Get("arguments")
		opts, hasOpts := t.Get("options")
		if !hasArgs && !hasOpts {
			in.Options = t
			return in, nil
		}
		if args != nil {
			list, ok := args.([]any)
			if !ok {
				return in, errors.New("arguments must be an array")
			}
			in.Arguments = list
		}
		if opts != nil {
			m, ok := opts.(*value.OrderedMap)
			if !ok {
				return in, errors.New("options must be an object")
			}
			in.Options = m
		}
		return in, nil
	}
	return in, errors.New("params must be an array or an object")
}

func rawID(id json.RawMessage) any {
	if len(id) == 0 {
		return nil
	}
	return id
}

// rpcError maps a failure to a JSON-RPC error object.
func rpcError(id any, err error) remote.Response {
	var rpcErr *remote.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code != 0 {
		return remote.Response{JSONRPC: remote.Version, Error: rpcErr, ID: id}
	}

	code := errs.CodeOf(err)
	switch code {
	case errs.CodeArity, errs.CodeUnknownParameter, errs.CodeParse, errs.CodeTypeMismatch:
		return errorResponse(id, remote.CodeInvalidParams, err.Error(), string(code))
	case "":
		return errorResponse(id, remote.CodeInternalError, err.Error(), nil)
	}
	return errorResponse(id, remote.CodeInternalError, err.Error(), string(code))
}

func errorResponse(id any, code int, msg string, data any) remote.Response {
	return remote.Response{
		JSONRPC: remote.Version,
		Error:   &remote.RPCError{Code: code, Message: msg, Data: data},
		ID:      id,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	checker HealthChecker
}

// HealthChecker reports whether a dependency can serve traffic.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// NewHealthHandler creates a new health handler. checker may be nil.
func NewHealthHandler(checker HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// Liveness returns a simple liveness check.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// Readiness checks the configured dependency.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if h.checker != nil {
		if err := h.checker.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]any{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// VersionHandler returns the service version.
func VersionHandler(service, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, VersionResponse{Version: version, Service: service})
	}
}

// RouterConfig holds optional configuration for the router.
type RouterConfig struct {
	// Path is where the JSON-RPC endpoint is mounted. Defaults to "/".
	Path string

	Service string
	Version string

	Metrics        *metrics.Collector
	MetricsHandler http.Handler // Optional metrics exporter handler (for /metrics endpoint)
	MetricsPath    string

	// Timeout bounds each request. Defaults to 60s.
	Timeout time.Duration
}

// NewRouter creates the HTTP router serving handler.
func NewRouter(handler http.Handler, health *HealthHandler, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if health == nil {
		health = NewHealthHandler(nil)
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Timeout))

	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics, cfg.MetricsPath))
	}

	r.Get("/health", health.Liveness)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Get("/version", VersionHandler(cfg.Service, cfg.Version))

	if cfg.MetricsHandler != nil {
		r.Handle(cfg.MetricsPath, cfg.MetricsHandler)
	} else if cfg.Metrics != nil {
		r.Handle(cfg.MetricsPath, promhttp.Handler())
	}

	r.Handle(cfg.Path, handler)
	return r
}

// NewMetricsMiddleware creates middleware that records request metrics.
func NewMetricsMiddleware(m *metrics.Collector, metricsPath string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipInstrumentation(r.URL.Path, metricsPath) {
				next.ServeHTTP(w, r)
				return
			}

			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			m.RequestDuration.WithLabelValues(r.Method, statusLabel(ww.Status())).
				Observe(time.Since(start).Seconds())
		})
	}
}

// statusLabel returns a string label for the status code.
func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}

// NewLoggingMiddleware creates a new logging middleware.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if skipInstrumentation(r.URL.Path, "/metrics") {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

func skipInstrumentation(path, metricsPath string) bool {
	return strings.HasPrefix(path, "/health") || path == metricsPath
}
