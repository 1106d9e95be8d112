package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	apiMiddleware "github.com/phrazzld/clientflow/internal/api/middleware"
	"github.com/phrazzld/clientflow/internal/api/shared"
	"github.com/phrazzld/clientflow/internal/metrics"
)

// RouterDeps are the collaborators the HTTP surface is built from.
type RouterDeps struct {
	Auth          *AuthHandler
	Tasks         *TaskHandler
	Notifications *NotificationHandler
	Stream        *StreamHandler
	Authenticator apiMiddleware.Authenticator
	Sessions      apiMiddleware.SessionLookup

	// Files serves locally stored blobs under /files. Nil disables the route.
	Files http.Handler
	// HealthCheck reports backend health for /health. Nil always reports ok.
	HealthCheck func(ctx context.Context) error

	AuthRateLimit float64
	AuthRateBurst int
	Logger        *slog.Logger
}

// NewRouter wires every route and middleware.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(apiMiddleware.Trace(d.Logger))
	r.Use(metrics.Middleware)

	authMiddleware := apiMiddleware.NewAuthMiddleware(d.Authenticator, d.Sessions)
	limiter := apiMiddleware.NewRateLimiter(d.AuthRateLimit, d.AuthRateBurst)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(limiter.Handler)
			r.Post("/auth/signup", d.Auth.SignUp)
			r.Post("/auth/signin", d.Auth.SignIn)
		})

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Post("/auth/signout", d.Auth.SignOut)

			r.Get("/tasks", d.Tasks.ListTasks)
			r.Post("/tasks", d.Tasks.CreateTask)
			r.Get("/tasks/stream", d.Stream.Stream)
			r.Get("/tasks/{id}", d.Tasks.GetTask)
			r.Post("/tasks/{id}/submit-review", d.Tasks.SubmitForReview)
			r.Post("/tasks/{id}/approve", d.Tasks.Approve)
			r.Post("/tasks/{id}/request-changes", d.Tasks.RequestChanges)
			r.Delete("/tasks/{id}", d.Tasks.DeleteTask)

			r.Get("/uploads", d.Tasks.ListUploads)
			r.Post("/uploads", d.Tasks.StageUploads)
			r.Delete("/uploads", d.Tasks.ClearUploads)
			r.Delete("/uploads/{kind}/{index}", d.Tasks.RemoveUpload)

			r.Get("/notifications", d.Notifications.List)
			r.Delete("/notifications", d.Notifications.Clear)

			r.With(apiMiddleware.RequireAdmin).Get("/summary", d.Tasks.Summary)
		})
	})

	if d.Files != nil {
		r.Handle("/files/*", http.StripPrefix("/files", d.Files))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if d.HealthCheck != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := d.HealthCheck(ctx); err != nil {
				shared.RespondWithErrorAndLog(w, r, http.StatusServiceUnavailable, "unhealthy", err)
				return
			}
		}
		shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	return r
}
