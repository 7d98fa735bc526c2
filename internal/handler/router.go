package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/zhouzirui/boardroom/internal/handler/chat"
	"github.com/zhouzirui/boardroom/internal/handler/persona"
	"github.com/zhouzirui/boardroom/internal/handler/session"
	"github.com/zhouzirui/boardroom/internal/handler/ws"
	personaModel "github.com/zhouzirui/boardroom/internal/model/persona"
	"github.com/zhouzirui/boardroom/pkg/utils"
)

// Board is everything the HTTP surface needs from the boardroom service.
type Board interface {
	chat.Boardroom
	session.Sessions
}

// Dependencies 为路由所需的全部服务。
type Dependencies struct {
	Personas       personaModel.Store
	Board          Board
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", utils.SessionHeader},
		ExposedHeaders: []string{utils.SessionHeader},
		MaxAge:         300,
	}).Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(api chi.Router) {
		persona.New(deps.Personas).RegisterRoutes(api)
		session.New(deps.Board, logger).RegisterRoutes(api)
		chat.New(deps.Board, logger).RegisterRoutes(api)
		ws.New(deps.Board, origins, logger).RegisterRoutes(api)
	})

	return r
}

// requestLogger 用 zap 记录每个请求；流式请求在连接结束时记录一次。
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Debug("http request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("elapsed", time.Since(start)),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
