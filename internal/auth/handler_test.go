package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/fieldbase/fieldbase/internal/auth"
	"github.com/fieldbase/fieldbase/internal/shared"
	_ "github.com/fieldbase/fieldbase/testing"
)

type stubRepo struct {
	user     *auth.User
	sessions map[string]auth.SessionRecord
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || !strings.EqualFold(s.user.Email, email) {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, rec auth.SessionRecord) error {
	if s.sessions == nil {
		s.sessions = make(map[string]auth.SessionRecord)
	}
	s.sessions[rec.ID] = rec
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

type harness struct {
	router   http.Handler
	sessions *shared.SessionManager
	mr       *miniredis.Miniredis
}

// sessionScope mimics the application session middleware: load before the
// handler, commit once the handler is done.
func sessionScope(sm *shared.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sm.Load(r.Context(), r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			rec := httptest.NewRecorder()
			next.ServeHTTP(rec, r.WithContext(shared.ContextWithSession(r.Context(), sess)))
			_ = sm.Commit(r.Context(), w, sess)
			for k, v := range rec.Header() {
				w.Header()[k] = v
			}
			w.WriteHeader(rec.Code)
			_, _ = w.Write(rec.Body.Bytes())
		})
	}
}

func newHarness(t *testing.T, repo auth.Repository) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sm := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)
	h := auth.NewHandler(nil, auth.NewService(repo), sm, shared.NewCSRFManager("csrfsecret"))

	r := chi.NewRouter()
	r.Use(sessionScope(sm))
	r.Route("/api/auth", h.MountRoutes)
	return &harness{router: r, sessions: sm, mr: mr}
}

func hashed(t *testing.T, password string) string {
	t.Helper()
	out, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(out)
}

// csrf opens an anonymous session and returns its cookie and token.
func (h *harness) csrf(t *testing.T) (*http.Cookie, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/csrf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Token string `json:"csrf_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return sessionCookie(t, rec), body.Token
}

func (h *harness) loginWith(cookie *http.Cookie, token, email, password string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"`+email+`","password":"`+password+`"}`))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(shared.CSRFHeader, token)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *harness) login(t *testing.T, email, password string) *httptest.ResponseRecorder {
	t.Helper()
	cookie, token := h.csrf(t)
	return h.loginWith(cookie, token, email, password)
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "test_session" {
			return c
		}
	}
	t.Fatalf("session cookie not set")
	return nil
}

func TestLoginSuccessRotatesSession(t *testing.T) {
	repo := &stubRepo{user: &auth.User{ID: 7, Email: "foreman@fieldbase.test", PasswordHash: hashed(t, "correct-horse"), IsActive: true}}
	h := newHarness(t, repo)

	anonymous, token := h.csrf(t)

	rec := h.loginWith(anonymous, token, "Foreman@fieldbase.test", "correct-horse")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		ID        int64  `json:"id"`
		CSRFToken string `json:"csrf_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 7, body.ID)
	assert.NotEmpty(t, body.CSRFToken)

	authed := sessionCookie(t, rec)
	assert.NotEqual(t, anonymous.Value, authed.Value, "login must rotate the session id")
	assert.False(t, h.mr.Exists("session:"+anonymous.Value))
	assert.True(t, h.mr.Exists("session:"+authed.Value))
	assert.Contains(t, repo.sessions, authed.Value)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(authed)
	sess, err := h.sessions.Load(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "7", sess.User())
}

func TestLoginRequiresCSRFToken(t *testing.T) {
	h := newHarness(t, &stubRepo{user: &auth.User{ID: 7, Email: "foreman@fieldbase.test", PasswordHash: hashed(t, "correct-horse"), IsActive: true}})

	rec := h.loginWith(nil, "", "foreman@fieldbase.test", "correct-horse")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"Missing or invalid CSRF token","code":"CSRF_INVALID"}`, rec.Body.String())

	cookie, _ := h.csrf(t)
	rec = h.loginWith(cookie, "forged", "foreman@fieldbase.test", "correct-horse")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), shared.CodeCSRFInvalid)
}

func TestLoginInvalidCredentials(t *testing.T) {
	h := newHarness(t, &stubRepo{user: &auth.User{ID: 1, Email: "user@fieldbase.test", PasswordHash: hashed(t, "correctpass"), IsActive: true}})

	rec := h.login(t, "user@fieldbase.test", "wrongpass")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid email or password","code":"INVALID_CREDENTIALS"}`, rec.Body.String())

	rec = h.login(t, "nobody@fieldbase.test", "correctpass")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginInactiveAccount(t *testing.T) {
	h := newHarness(t, &stubRepo{user: &auth.User{ID: 2, Email: "gone@fieldbase.test", PasswordHash: hashed(t, "correctpass")}})

	rec := h.login(t, "gone@fieldbase.test", "correctpass")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), auth.CodeAccountInactive)
}

func TestLoginValidation(t *testing.T) {
	h := newHarness(t, &stubRepo{})

	rec := h.login(t, "not-an-email", "short")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestLogoutDestroysSession(t *testing.T) {
	repo := &stubRepo{user: &auth.User{ID: 7, Email: "foreman@fieldbase.test", PasswordHash: hashed(t, "correct-horse"), IsActive: true}}
	h := newHarness(t, repo)

	cookie := sessionCookie(t, h.login(t, "foreman@fieldbase.test", "correct-horse"))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, h.mr.Exists("session:"+cookie.Value))
	assert.Empty(t, repo.sessions)
}
