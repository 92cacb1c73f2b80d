package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"quiz-progress-service/internal/app"
	"quiz-progress-service/internal/config"
)

// NewRouter mounts the REST routes and the study stream behind auth.
func NewRouter(service *app.ProgressService, auth *Authenticator) http.Handler {
	h := NewHandler(service)
	ws := NewWSHandler(service)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Get("/ws/study", ws.ServeWS)

		r.Route("/v1", func(r chi.Router) {
			r.Post("/profile", h.SyncProfile)

			r.Route("/admin/subjects", func(r chi.Router) {
				r.Get("/", h.ListSubjects)
				r.Get("/pending", h.ListPendingSubjects)
				r.Get("/search", h.SearchSubjects)
				r.Post("/{id}/approve", h.ApproveSubject)
				r.Put("/{id}/subscription", h.UpdateSubscription)
			})

			r.Route("/subjects/{id}", func(r chi.Router) {
				r.Get("/", h.Profile)
				r.Delete("/", h.DeleteAllData)
				r.Get("/stats", h.Stats)
				r.Post("/reset", h.ResetStatistics)
				r.Post("/attempts", h.SubmitAttempt)
				r.Get("/questions/incorrect", h.IncorrectQuestions)
				r.Get("/questions/{questionID}", h.QuestionState)
				r.Post("/sessions", h.SaveSession)
				r.Get("/sessions", h.ListSessions)
			})
		})
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := config.ContextWithFields(r.Context(), logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
		})
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))
		config.WithContext(ctx).WithFields(logrus.Fields{
			"status":   ww.Status(),
			"duration": time.Since(start).String(),
		}).Info("request served")
	})
}
