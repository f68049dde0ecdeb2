package app

import (
	"html/template"
	"net/http"
	"path/filepath"
	"time"

	"geoquiz/internal/app/observability"
	"geoquiz/internal/platform/logger"
	"geoquiz/internal/report"
	"geoquiz/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Deps struct {
	Log       *logger.Logger
	Sessions  *session.Service
	Reports   *report.Service
	Collector *observability.Collector
}

// LoadTemplates parses the layout and page templates under dir.
func LoadTemplates(dir string) (*template.Template, error) {
	tmpl, err := template.New("geoquiz").Funcs(template.FuncMap{
		"inc": func(i int) int { return i + 1 },
	}).ParseGlob(filepath.Join(dir, "layout", "*.html"))
	if err != nil {
		return nil, err
	}
	return tmpl.ParseGlob(filepath.Join(dir, "pages", "*.html"))
}

func NewRouter(cfg Config, deps Deps) http.Handler {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	collector := deps.Collector
	if collector == nil {
		collector = observability.NewCollector(log, session.CookieName)
	}
	secure := cfg.AppEnv == "production"

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(collector.Middleware)
	r.Use(middleware.Timeout(60 * time.Second))

	tmpl := template.Must(LoadTemplates(cfg.TemplatesDir))

	sessionHandler := session.NewHandler(deps.Sessions, tmpl, log, session.HandlerConfig{
		SecureCookie: secure,
		CSRFToken:    CSRFToken,
	})
	reportHandler := report.NewHandler(deps.Reports, sessionHandler)
	limiter := NewIPRateLimiter(cfg.RateLimitPerMinute, time.Minute)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", collector.MetricsHandler)

	r.Group(func(web chi.Router) {
		web.Use(CSRFCookieMiddleware(secure))
		web.Use(RateLimitMiddleware(limiter))
		web.Use(CSRFMiddleware(cfg.CSRFEnforced))

		web.Get("/", sessionHandler.Show)
		web.Post("/intake", sessionHandler.SubmitIntake)
		web.Post("/quiz/confirm", sessionHandler.ConfirmAnswer)
		web.Post("/quiz/next", sessionHandler.NextQuestion)
		web.Post("/survey", sessionHandler.SubmitSurvey)
		web.Post("/restart", sessionHandler.Restart)
		web.Get("/report", reportHandler.Download)
	})

	r.Route("/api/v1", func(api chi.Router) {
		if len(cfg.CORSOrigins) > 0 {
			api.Use(cors.Handler(cors.Options{
				AllowedOrigins:   cfg.CORSOrigins,
				AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
				AllowedHeaders:   []string{"Content-Type", csrfHeaderName},
				AllowCredentials: true,
				MaxAge:           300,
			}))
		}
		api.Use(RateLimitMiddleware(limiter))
		api.Use(CSRFMiddleware(cfg.CSRFEnforced))

		api.Get("/session", sessionHandler.APIGet)
		api.Post("/session/actions", sessionHandler.APIAction)
		api.Get("/session/report", reportHandler.Download)
	})

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDir))))

	return r
}
