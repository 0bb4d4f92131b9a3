package relay

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-audit-connector/internal/callctx"
)

type RelayServer struct {
	router *chi.Mux
	logger *zap.Logger

	eventHandler *EventHandler // /v1/events
	probeHandler *ProbeHandler // /v1/probe, nil — роут выключен
	gatherer     prometheus.Gatherer
}

// NewRelayServer инициализирует роутер relay со всеми зависимостями
func NewRelayServer(
	logger *zap.Logger,
	eventH *EventHandler,
	probeH *ProbeHandler,
	gatherer prometheus.Gatherer,
) *RelayServer {
	s := &RelayServer{
		router:       chi.NewRouter(),
		logger:       logger.Named("relay-api"),
		eventHandler: eventH,
		probeHandler: probeH,
		gatherer:     gatherer,
	}

	s.routes()
	return s
}

func (s *RelayServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware ---
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(callctx.Middleware) // X-Request-ID, X-Session-ID и прочие заголовки клиента

	// --- 2. Служебные роуты ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	// --- 3. Прием событий аудита ---
	r.Route("/v1/events", func(r chi.Router) {
		r.Post("/", s.eventHandler.Send)
		r.Post("/extended", s.eventHandler.SendExtended)
		r.Post("/merged", s.eventHandler.SendMerged)
	})

	if s.probeHandler == nil {
		s.logger.Debug("probe endpoint disabled")
		return
	}
	r.Get("/v1/probe", s.probeHandler.Probe)
	s.logger.Info("probe endpoint enabled", zap.Strings("allowed_hosts", s.probeHandler.AllowedHosts()))
}

// ServeHTTP позволяет использовать RelayServer как стандартный http.Handler
func (s *RelayServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
