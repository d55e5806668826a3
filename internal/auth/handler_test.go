package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/aquaflow/portal/internal/auth"
	"github.com/aquaflow/portal/internal/rbac"
	"github.com/aquaflow/portal/internal/shared"
	_ "github.com/aquaflow/portal/internal/testing/testenv"
)

type stubRepo struct {
	profiles map[uuid.UUID]auth.Profile
	sessions map[string]uuid.UUID
}

func newStubRepo(profiles ...auth.Profile) *stubRepo {
	repo := &stubRepo{profiles: make(map[uuid.UUID]auth.Profile), sessions: make(map[string]uuid.UUID)}
	for _, p := range profiles {
		repo.profiles[p.ID] = p
	}
	return repo
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (auth.Profile, error) {
	for _, p := range s.profiles {
		if p.Email == email {
			return p, nil
		}
	}
	return auth.Profile{}, shared.ErrNotFound
}

func (s *stubRepo) FindByID(ctx context.Context, id uuid.UUID) (auth.Profile, error) {
	p, ok := s.profiles[id]
	if !ok {
		return auth.Profile{}, shared.ErrNotFound
	}
	return p, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, profileID uuid.UUID, expiresAt time.Time, ip, ua string) error {
	s.sessions[id] = profileID
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

func profile(t *testing.T, email string, role shared.Role, active bool) auth.Profile {
	t.Helper()
	hash, err := auth.HashPassword("correct horse")
	require.NoError(t, err)
	return auth.Profile{ID: uuid.New(), Email: email, FullName: email, Role: role, PasswordHash: hash, IsActive: active}
}

type harness struct {
	handler  http.Handler
	sessions *shared.SessionManager
	repo     *stubRepo
	tokens   *auth.Tokens
}

func newHarness(t *testing.T, profiles ...auth.Profile) harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(client, "portal_session", time.Hour, false)
	repo := newStubRepo(profiles...)
	service := auth.NewService(repo)
	tokens := auth.NewTokens("token-secret", "portal", time.Hour)
	mw := rbac.Middleware{Actors: service, Tokens: tokens}
	h := auth.NewHandler(nil, service, tokens, sessions, shared.NewCSRFManager("csrf-secret"), mw)

	routes := chi.NewRouter()
	routes.Route("/auth", h.MountRoutes)
	server := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		sess, err := sessions.Load(req.Context(), req)
		require.NoError(t, err)
		ctx := shared.ContextWithSession(req.Context(), sess)
		rec := httptest.NewRecorder()
		mw.Authenticate(routes).ServeHTTP(rec, req.WithContext(ctx))
		require.NoError(t, sessions.Commit(ctx, w, sess))
		for k, v := range rec.Header() {
			w.Header()[k] = v
		}
		w.WriteHeader(rec.Code)
		_, _ = w.Write(rec.Body.Bytes())
	})
	return harness{handler: server, sessions: sessions, repo: repo, tokens: tokens}
}

func (h harness) do(t *testing.T, method, path string, body any, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

type loginResult struct {
	Profile   auth.Profile `json:"profile"`
	CSRFToken string       `json:"csrf_token"`
	Token     string       `json:"token"`
}

func TestLoginIssuesSessionAndToken(t *testing.T) {
	admin := profile(t, "admin@aquaflow.test", shared.RoleAdmin, true)
	h := newHarness(t, admin)

	rec := h.do(t, http.MethodPost, "/auth/login", map[string]string{"email": admin.Email, "password": "correct horse"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out loginResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, admin.ID, out.Profile.ID)
	require.NotEmpty(t, out.CSRFToken)
	require.NotEmpty(t, out.Token)
	require.Len(t, h.repo.sessions, 1)

	id, err := h.tokens.Verify(out.Token)
	require.NoError(t, err)
	require.Equal(t, admin.ID, id)

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	me := h.do(t, http.MethodGet, "/auth/me", nil, func(r *http.Request) { r.AddCookie(cookies[0]) })
	require.Equal(t, http.StatusOK, me.Code, me.Body.String())

	bearer := h.do(t, http.MethodGet, "/auth/me", nil, func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+out.Token) })
	require.Equal(t, http.StatusOK, bearer.Code)
}

func TestLoginInvalidCredentials(t *testing.T) {
	clerk := profile(t, "clerk@aquaflow.test", shared.RoleClerk, true)
	inactive := profile(t, "gone@aquaflow.test", shared.RoleStaff, false)
	h := newHarness(t, clerk, inactive)

	rec := h.do(t, http.MethodPost, "/auth/login", map[string]string{"email": clerk.Email, "password": "wrong password"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "nobody@aquaflow.test", "password": "correct horse"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/auth/login", map[string]string{"email": inactive.Email, "password": "correct horse"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "not-an-email", "password": "correct horse"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, h.repo.sessions)
}

func TestMeRequiresAuthentication(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/auth/me", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeactivatedProfileLosesTokenAccess(t *testing.T) {
	staff := profile(t, "staff@aquaflow.test", shared.RoleStaff, true)
	h := newHarness(t, staff)
	token, _, err := h.tokens.Issue(staff)
	require.NoError(t, err)

	staff.IsActive = false
	h.repo.profiles[staff.ID] = staff
	rec := h.do(t, http.MethodGet, "/auth/me", nil, func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) })
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTokensRejectForeignAndExpired(t *testing.T) {
	p := profile(t, "a@aquaflow.test", shared.RoleAdmin, true)
	short := auth.NewTokens("token-secret", "portal", time.Second)
	token, _, err := short.Issue(p)
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)
	_, err = short.Verify(token)
	require.Error(t, err)

	other := auth.NewTokens("other-secret", "portal", time.Hour)
	token, _, err = other.Issue(p)
	require.NoError(t, err)
	_, err = auth.NewTokens("token-secret", "portal", time.Hour).Verify(token)
	require.Error(t, err)

	_, _, err = auth.NewTokens("", "portal", time.Hour).Issue(p)
	require.Error(t, err)
}
