package newsletter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alshekh/portfolio/internal/shared"
)

type countingRecorder struct {
	outcomes []string
}

func (c *countingRecorder) RecordSubscription(outcome string) {
	c.outcomes = append(c.outcomes, outcome)
}

func newTestRouter(repo *mockRepository, recorder OutcomeRecorder) http.Handler {
	handler := NewHandler(nil, newTestManager(repo, nil), recorder)
	r := chi.NewRouter()
	r.Route("/newsletter", handler.MountRoutes)
	r.Route("/api/newsletter", handler.MountAPIRoutes)
	return r
}

func postJSON(t *testing.T, router http.Handler, body string) (*httptest.ResponseRecorder, subscribeResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/newsletter/subscribe", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	var resp subscribeResponse
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	}
	return rr, resp
}

func TestSubscribeJSONOutcomes(t *testing.T) {
	repo := newMockRepository()
	repo.seed("old@example.com", false, fixedNow.AddDate(-1, 0, 0))
	recorder := &countingRecorder{}
	router := newTestRouter(repo, recorder)

	rr, resp := postJSON(t, router, `{"email":"new@example.com"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, "created", resp.Status)
	assert.Equal(t, MessageCreated, resp.Message)

	rr, resp = postJSON(t, router, `{"email":"new@example.com"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "already_active", resp.Status)
	assert.Equal(t, MessageAlreadyActive, resp.Message)

	rr, resp = postJSON(t, router, `{"email":"old@example.com"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "reactivated", resp.Status)
	assert.Equal(t, MessageReactivated, resp.Message)

	assert.Equal(t, []string{"created", "already_active", "reactivated"}, recorder.outcomes)
}

func TestSubscribeJSONValidationError(t *testing.T) {
	repo := newMockRepository()
	router := newTestRouter(repo, nil)

	rr, resp := postJSON(t, router, `{"email":"bad-email"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.False(t, resp.Success)
	require.Contains(t, resp.Errors, "email")
	assert.Equal(t, "The email field must be a valid email address.", resp.Errors["email"][0])
	assert.Empty(t, repo.records)
}

func TestSubscribeJSONPersistenceErrorIsGeneric(t *testing.T) {
	repo := newMockRepository()
	repo.findError = errors.New("dial tcp 10.1.2.3:5432: connection refused")
	router := newTestRouter(repo, nil)

	rr, resp := postJSON(t, router, `{"email":"new@example.com"}`)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, MessageFailure, resp.Message)
	assert.Empty(t, resp.Errors)
}

func TestSubscribeJSONMalformedBody(t *testing.T) {
	router := newTestRouter(newMockRepository(), nil)

	rr, _ := postJSON(t, router, `{"email":`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestSubscribeFormRedirectsWithFlash(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sessions := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)

	cases := []struct {
		name    string
		email   string
		kind    string
		message string
	}{
		{name: "created", email: "new@example.com", kind: shared.FlashSuccess, message: MessageCreated},
		{name: "invalid", email: "bad-email", kind: shared.FlashError, message: "The email field must be a valid email address."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(newMockRepository(), nil)

			form := url.Values{"email": {tc.email}}
			req := httptest.NewRequest(http.MethodPost, "/newsletter/subscribe", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			sess, err := sessions.Load(context.Background(), req)
			require.NoError(t, err)
			req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusSeeOther, rr.Code)
			assert.Equal(t, FormRedirect, rr.Header().Get("Location"))
			flash := sess.PopFlash()
			require.NotNil(t, flash)
			assert.Equal(t, tc.kind, flash.Kind)
			assert.Equal(t, tc.message, flash.Message)
		})
	}
}

func TestSubscribeFormPersistenceFailure(t *testing.T) {
	repo := newMockRepository()
	repo.insertError = errors.New("disk full")
	router := newTestRouter(repo, nil)

	form := url.Values{"email": {"new@example.com"}}
	req := httptest.NewRequest(http.MethodPost, "/newsletter/subscribe", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	sess := &shared.Session{ID: "s1"}
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	flash := sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, shared.FlashError, flash.Kind)
	assert.Equal(t, MessageFailure, flash.Message)
}
