package http

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"budget/internal/core"
	"budget/internal/log"
	"budget/internal/metrics"
	"budget/internal/middleware/ratelimit"
	"budget/internal/middleware/security"
	"budget/internal/middleware/trace"
	"budget/internal/services"
	appweb "budget/web"
)

// Pinger reports whether the ledger backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps wires the server to the services it renders. Metrics and Ready may be
// nil.
type Deps struct {
	Entries   *services.EntryService
	Dashboard *services.DashboardService
	Settings  *services.SettingsService
	Metrics   *metrics.Metrics
	Logger    *log.Logger
	Ready     Pinger

	// RequestTimeout bounds every backend call made for one request.
	RequestTimeout time.Duration
	// WritesPerMinute caps POST/DELETE requests per client IP.
	WritesPerMinute int
}

type Server struct {
	http.Server
	templates *template.Template

	entries   *services.EntryService
	dashboard *services.DashboardService
	settings  *services.SettingsService
	ready     Pinger

	logger     *log.Logger
	structured *log.StructuredLogger
	limiter    *ratelimit.Limiter
	detector   *security.Detector
	timeout    time.Duration
	started    time.Time

	shutdownOnce sync.Once
}

// NewServer parses the embedded templates and configures routes, returning a
// ready-to-run http.Server.
func NewServer(addr string, deps Deps) (*Server, error) {
	if deps.Logger == nil {
		deps.Logger = log.New(log.DefaultConfig())
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 15 * time.Second
	}
	logger := deps.Logger.WithComponent(log.ComponentHTTP)

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		templates:  t,
		entries:    deps.Entries,
		dashboard:  deps.Dashboard,
		settings:   deps.Settings,
		ready:      deps.Ready,
		logger:     logger,
		structured: log.NewStructuredLogger(deps.Logger),
		limiter:    ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.WritesPerMinute}),
		detector:   security.NewDetector(),
		timeout:    deps.RequestTimeout,
		started:    time.Now(),
	}

	tracer := trace.NewMiddleware(deps.Logger, s.detector.ClientIP, deps.Metrics)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.limiter.Middleware(s.detector.ClientIP, s.onRateLimit, http.MethodPost, http.MethodDelete)

	route := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, tracer.Wrap(pattern, headers.Middleware(s.flagSuspicious(limit(h)))))
	}

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	route("/", s.handleIndex)
	route("/ui/dashboard", s.handleDashboardPartial)
	route("/ui/calculator", s.handleCalculator)
	route("/settings", s.handleSaveSettings)
	route("/entries", s.handleCreateEntry)
	route("/entries/update", s.handleUpdateEntry)
	route("/entries/delete", s.handleDeleteEntry)

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.Handle("/metrics", deps.Metrics.Handler())

	return s, nil
}

// Shutdown stops the rate limiter cleanup and the HTTP server. It is safe to
// call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ClientIP(r),
		log.FieldPath, r.URL.Path)
	w.Header().Set("Retry-After", "60")
	NewHTMXResponse().
		Status(http.StatusTooManyRequests).
		TriggerErrorNotification("Too many changes, please wait a minute").
		Write(w)
}

// flagSuspicious logs requests that look like scans. They are still served.
func (s *Server) flagSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.Suspicious(r) {
			s.logger.WithComponent(log.ComponentSecurity).WarnContext(r.Context(), "Suspicious request",
				log.FieldClientIP, s.detector.ClientIP(r),
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.Header.Get("User-Agent"))
		}
		next.ServeHTTP(w, r)
	})
}

var templateFuncs = template.FuncMap{
	"money": core.FormatMoney,
}
