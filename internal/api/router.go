package api

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/voicenote/whisper-api/internal/api/handlers"
	"github.com/voicenote/whisper-api/internal/api/middleware"
	"github.com/voicenote/whisper-api/internal/auth"
	"github.com/voicenote/whisper-api/internal/config"
	"github.com/voicenote/whisper-api/internal/db"
	"github.com/voicenote/whisper-api/internal/db/models"
	"github.com/voicenote/whisper-api/internal/ffmpeg"
	"github.com/voicenote/whisper-api/internal/gpu"
	"github.com/voicenote/whisper-api/internal/job"
	"github.com/voicenote/whisper-api/internal/storage"
	"github.com/voicenote/whisper-api/internal/transcribe"
)

const maxJSONBody = 1 << 20

// Deps are the services the router wires into handlers. Optional parts are
// nil when their feature is off.
type Deps struct {
	Config  *config.Config
	Logger  *log.Logger
	Service *transcribe.Service
	Store   *storage.TempStore
	GPU     *gpu.GPUInfo
	FFmpeg  *ffmpeg.Tools

	DB          *db.Database            // db_path
	JWT         *auth.JWTService        // auth_enabled
	Jobs        *job.JobQueue           // jobs_enabled; registered here, started by the caller
	RateLimiter *middleware.RateLimiter // rate_limit
}

func NewRouter(d Deps) *chi.Mux {
	cfg := d.Config
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(middleware.Logger(d.Logger.WithPrefix("http")))
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// An untyped nil keeps history off without a database.
	var history handlers.HistoryStore
	if d.DB != nil {
		history = d.DB
	}

	// Handlers
	transcribeHandler := handlers.NewTranscribeHandler(d.Service, d.Store, history,
		cfg.MaxUploadBytes, cfg.ValidateAudio, d.Logger.WithPrefix("transcribe"))
	healthHandler := handlers.NewHealthHandler(d.Service, d.GPU, d.FFmpeg)

	var jobHandler *handlers.JobHandler
	if d.Jobs != nil {
		jobHandler = handlers.NewJobHandler(d.Jobs, d.Service, d.Store, history,
			cfg.MaxUploadBytes, cfg.ValidateAudio, d.Logger.WithPrefix("jobs"))
		d.Jobs.RegisterHandler(job.JobTranscribe, jobHandler.Run)
		d.Jobs.OnFinish(jobHandler.Cleanup)
	}

	// protect wraps a route group in auth when it is enabled.
	protect := func(r chi.Router) {
		if d.JWT != nil {
			r.Use(middleware.AuthMiddleware(d.JWT))
		}
	}
	// upload routes: rate limit, then refuse oversized bodies by Content-Length
	var limited []func(http.Handler) http.Handler
	if d.RateLimiter != nil {
		limited = append(limited, d.RateLimiter.Handler)
	}
	limited = append(limited, middleware.MaxBodySize(cfg.MaxUploadBytes))

	r.Group(func(r chi.Router) {
		protect(r)
		r.Use(limited...)
		r.Post("/transcribe", transcribeHandler.Transcribe)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.Health)

		if d.JWT != nil {
			authHandler := handlers.NewAuthHandler(d.DB, d.JWT)
			r.With(middleware.MaxBodySize(maxJSONBody)).Post("/auth/login", authHandler.Login)
			r.With(middleware.AuthMiddleware(d.JWT)).Get("/auth/me", authHandler.Me)
		}

		if jobHandler != nil {
			r.Route("/jobs", func(r chi.Router) {
				protect(r)
				r.With(limited...).Post("/", jobHandler.CreateJob)
				r.Get("/", jobHandler.ListJobs)
				r.Get("/{id}", jobHandler.GetJob)
				r.Delete("/{id}", jobHandler.CancelJob)
			})
		}

		if d.DB != nil {
			historyHandler := handlers.NewTranscriptionHandler(d.DB)
			r.Route("/transcriptions", func(r chi.Router) {
				protect(r)
				r.Get("/", historyHandler.List)
				r.Get("/{id}", historyHandler.Get)
				if d.JWT != nil {
					r.With(middleware.RequireRole(models.RoleAdmin)).Delete("/{id}", historyHandler.Delete)
				} else {
					r.Delete("/{id}", historyHandler.Delete)
				}
			})
		}
	})

	return r
}
