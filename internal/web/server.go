// Package web serves the browser chat UI and a small JSON API over the
// session manager.
package web

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"pdfchat/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// Sessions is the subset of session.Manager the server needs.
type Sessions interface {
	Get(id string) *session.Session
	Reset(id string)
}

type Options struct {
	Title        string
	CookieName   string
	MaxUploadMB  int
	AnswerSuffix string
}

type Server struct {
	sessions Sessions
	opts     Options
	log      *zap.Logger
	page     *template.Template
}

func NewServer(sessions Sessions, opts Options, log *zap.Logger) *Server {
	if opts.Title == "" {
		opts.Title = "PDF Chat"
	}
	if opts.CookieName == "" {
		opts.CookieName = "pdfchat_session"
	}
	if opts.MaxUploadMB <= 0 {
		opts.MaxUploadMB = 32
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		sessions: sessions,
		opts:     opts,
		log:      log.Named("web"),
		page:     template.Must(template.ParseFS(templateFS, "templates/index.html")),
	}
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.withSession)

		r.Get("/", s.index)
		r.Post("/upload", s.upload)
		r.Post("/ask", s.ask)
		r.Post("/reset", s.reset)

		r.Route("/api", func(r chi.Router) {
			r.Get("/session", s.apiSession)
			r.Delete("/session", s.apiReset)
			r.Post("/document", s.apiDocument)
			r.Post("/ask", s.apiAsk)
		})
	})
	return r
}

type ctxKey struct{}

// withSession resolves the session cookie, issuing a new id when the
// cookie is missing or malformed.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(s.opts.CookieName); err == nil {
			if _, perr := uuid.Parse(c.Value); perr == nil {
				id = c.Value
			}
		}
		if id == "" {
			id = session.NewID()
			http.SetCookie(w, &http.Cookie{
				Name:     s.opts.CookieName,
				Value:    id,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
				Secure:   r.TLS != nil,
			})
		}
		sess := s.sessions.Get(id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, sess)))
	})
}

func sessionFrom(r *http.Request) *session.Session {
	return r.Context().Value(ctxKey{}).(*session.Session)
}

// requestLogger logs one line per request with zap.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("elapsed", time.Since(start)),
					zap.String("request_id", chimiddleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
