// Package dashboard serves the instructor dashboard over HTTP. It holds one
// session per bearer token, forwards that token to the LMS, and keeps the
// session's navigation shell, subject trees and notifications in memory.
package dashboard

import (
	"context"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/p-n-ai/pai-instructor/internal/activity"
	"github.com/p-n-ai/pai-instructor/internal/lms"
	"github.com/p-n-ai/pai-instructor/internal/notify"
	"github.com/p-n-ai/pai-instructor/internal/prefs"
)

const readyTimeout = 2 * time.Second

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

// Option configures a Server.
type Option func(*Server)

// WithHTTPClient sets the client used for LMS requests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Server) { s.httpClient = c }
}

// WithPrefs sets the backing preference store shared by all sessions.
func WithPrefs(store prefs.Store) Option {
	return func(s *Server) { s.prefs = store }
}

// WithActivity sets the audit log.
func WithActivity(logger activity.Logger) Option {
	return func(s *Server) { s.activity = logger }
}

// WithHub sets the notification hub.
func WithHub(hub *notify.Hub) Option {
	return func(s *Server) { s.hub = hub }
}

// WithReadiness adds a named dependency check to /readyz.
func WithReadiness(name string, check Check) Option {
	return func(s *Server) {
		s.checks = append(s.checks, namedCheck{name: name, check: check})
	}
}

type namedCheck struct {
	name  string
	check Check
}

// Server is the dashboard backend.
type Server struct {
	lmsURL     string
	httpClient *http.Client
	prefs      prefs.Store
	activity   activity.Logger
	hub        *notify.Hub
	checks     []namedCheck

	mu       sync.Mutex
	sessions map[string]*session
}

// New creates a server talking to the LMS at lmsURL.
func New(lmsURL string, opts ...Option) *Server {
	s := &Server{
		lmsURL:     strings.TrimRight(lmsURL, "/"),
		httpClient: http.DefaultClient,
		prefs:      prefs.NewMemoryStore(),
		activity:   activity.Nop{},
		sessions:   make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hub == nil {
		s.hub = notify.NewHub()
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("PUT /api/dashboard/session", s.authed(s.handlePutSession))
	mux.HandleFunc("DELETE /api/dashboard/session", s.authed(s.handleDeleteSession))
	mux.HandleFunc("GET /api/dashboard/preferences", s.authed(s.handleGetPreferences))
	mux.HandleFunc("PUT /api/dashboard/preferences", s.authed(s.handlePutPreferences))

	mux.HandleFunc("GET /api/dashboard/nav", s.authed(s.handleNav))
	mux.HandleFunc("POST /api/dashboard/nav", s.authed(s.handleNavigate))
	mux.HandleFunc("DELETE /api/dashboard/nav/banner", s.authed(s.handleDismissBanner))
	mux.HandleFunc("POST /api/dashboard/nav/{direction}", s.authed(s.handleNavMove))
	mux.HandleFunc("POST /api/dashboard/nav/{level}/{id}", s.authed(s.handleNavSelect))

	mux.HandleFunc("GET /api/dashboard/instructors", s.authed(s.handleListInstructors))
	mux.HandleFunc("GET /api/dashboard/subjects/{id}/instructors", s.authed(s.handleSubjectInstructors))
	mux.HandleFunc("DELETE /api/dashboard/subjects/{id}/instructors/{iid}", s.authed(s.handleRemoveInstructor))

	mux.HandleFunc("GET /api/dashboard/subjects/{id}/tree", s.authed(s.handleTree))
	mux.HandleFunc("PUT /api/dashboard/subjects/{id}/collapse", s.authed(s.handleCollapse))
	mux.HandleFunc("POST /api/dashboard/subjects/{id}/big-lessons", s.authed(s.handleCreateBigLesson))
	mux.HandleFunc("PUT /api/dashboard/subjects/{id}/big-lessons/{bid}", s.authed(s.handleRenameBigLesson))
	mux.HandleFunc("DELETE /api/dashboard/subjects/{id}/big-lessons/{bid}", s.authed(s.handleDeleteBigLesson))
	mux.HandleFunc("PUT /api/dashboard/subjects/{id}/big-lessons/{bid}/mode", s.authed(s.handleBigLessonMode))
	mux.HandleFunc("POST /api/dashboard/subjects/{id}/big-lessons/{bid}/lessons", s.authed(s.handleCreateLesson))
	mux.HandleFunc("PUT /api/dashboard/subjects/{id}/big-lessons/{bid}/lessons/{lid}", s.authed(s.handleUpdateLesson))
	mux.HandleFunc("DELETE /api/dashboard/subjects/{id}/big-lessons/{bid}/lessons/{lid}", s.authed(s.handleDeleteLesson))
	mux.HandleFunc("PUT /api/dashboard/subjects/{id}/big-lessons/{bid}/lessons/{lid}/mode", s.authed(s.handleLessonMode))
	mux.HandleFunc("GET /api/dashboard/subjects/{id}/big-lessons/{bid}/attachments", s.authed(s.handleListAttachments))
	mux.HandleFunc("POST /api/dashboard/subjects/{id}/big-lessons/{bid}/attachments", s.authed(s.handleUploadAttachment))
	mux.HandleFunc("DELETE /api/dashboard/subjects/{id}/big-lessons/{bid}/attachments/{aid}", s.authed(s.handleDeleteAttachment))

	mux.HandleFunc("POST /api/dashboard/quizzes/{kind}/{ownerID}", s.authed(s.handleCreateQuiz))
	mux.HandleFunc("PUT /api/dashboard/quizzes/{kind}/{ownerID}", s.authed(s.handleSelectQuiz))
	mux.HandleFunc("DELETE /api/dashboard/quizzes/{kind}/{ownerID}", s.authed(s.handleDetachQuiz))
	mux.HandleFunc("GET /api/dashboard/quizzes/{kind}/{ownerID}/picker", s.authed(s.handleQuizPicker))
	mux.HandleFunc("GET /api/dashboard/quizzes/{kind}/{ownerID}/questions", s.authed(s.handleGetQuiz))
	mux.HandleFunc("POST /api/dashboard/quizzes/{kind}/{ownerID}/questions", s.authed(s.handleAddQuestion))
	mux.HandleFunc("DELETE /api/dashboard/quizzes/{kind}/{ownerID}/questions/{qid}", s.authed(s.handleDeleteQuestion))

	mux.HandleFunc("POST /api/dashboard/question-bank/questions", s.authed(s.handleBankSubmit))
	mux.HandleFunc("POST /api/dashboard/question-bank/import", s.authed(s.handleBankImport))
	mux.HandleFunc("GET /api/dashboard/question-bank/quizzes/{id}/export", s.authed(s.handleBankExport))

	mux.HandleFunc("GET /api/dashboard/notifications", s.authed(s.handleNotifications))
	mux.HandleFunc("DELETE /api/dashboard/notifications/{id}", s.authed(s.handleDismiss))
	mux.HandleFunc("GET /ws/notifications", s.authed(s.handleNotificationStream))
	return mux
}

// Close drops every session and stops their in-flight work.
func (s *Server) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*session)
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.close()
	}
}

// SessionID derives the session key of a bearer token. The token itself is
// never used as a storage key.
func SessionID(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:16])
}

func (s *Server) session(token string) *session {
	id := SessionID(token)
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		client := lms.NewClient(
			lms.WithBaseURL(s.lmsURL),
			lms.WithHTTPClient(s.httpClient),
			lms.WithTokenSource(lms.StaticToken(token)),
		)
		sess = newSession(id, client, prefs.Scoped(s.prefs, id), s.hub.Queue(id), s.activity)
		s.sessions[id] = sess
	}
	return sess
}

func (s *Server) dropSession(token string) {
	id := SessionID(token)
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		sess.close()
	}
	s.hub.Drop(id)
}

// bearerToken reads the token from the Authorization header, or from the
// access_token query parameter for WebSocket upgrades.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok {
			return ""
		}
		return strings.TrimSpace(token)
	}
	if r.URL.Path == "/ws/notifications" {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session, token string)

func (s *Server) authed(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing bearer token"})
			return
		}
		next(w, r, s.session(token), token)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	for _, c := range s.checks {
		if err := c.check(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"check":  c.name,
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
