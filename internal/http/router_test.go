package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"anonuplift/internal/auth"
	"anonuplift/internal/captcha"
	"anonuplift/internal/config"
	"anonuplift/internal/guard"
	mw "anonuplift/internal/http/middleware"
	"anonuplift/internal/logging"
	"anonuplift/internal/message"
	"anonuplift/internal/owner"
	"anonuplift/internal/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOwners struct {
	mu           sync.Mutex
	owners       map[string]*owner.Owner
	reservations map[string]string
}

func newFakeOwners() *fakeOwners {
	return &fakeOwners{owners: map[string]*owner.Owner{}, reservations: map[string]string{}}
}

func (f *fakeOwners) IsAvailable(_ context.Context, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, taken := f.reservations[username]
	return !taken, nil
}

func (f *fakeOwners) Reserve(_ context.Context, username, ownerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if holder, ok := f.reservations[username]; ok {
		if holder == ownerID {
			return nil
		}
		return owner.ErrUsernameTaken
	}
	o := f.owners[ownerID]
	if o == nil {
		o = &owner.Owner{ID: ownerID}
		f.owners[ownerID] = o
	}
	if o.Username != nil {
		return owner.ErrUsernameAlreadySet
	}
	f.reservations[username] = ownerID
	o.Username = &username
	return nil
}

func (f *fakeOwners) EnsureOwner(_ context.Context, id owner.Identity) (*owner.Owner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.owners[id.OwnerID]; ok {
		return o, nil
	}
	email := id.Email
	o := &owner.Owner{ID: id.OwnerID, Email: &email}
	f.owners[id.OwnerID] = o
	return o, nil
}

func (f *fakeOwners) GetOwner(_ context.Context, id string) (*owner.Owner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.owners[id]
	if !ok {
		return nil, owner.ErrNotFound
	}
	return o, nil
}

func (f *fakeOwners) Resolve(_ context.Context, username string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.reservations[username]
	if !ok {
		return "", owner.ErrNotFound
	}
	return id, nil
}

type memMessages struct {
	mu   sync.Mutex
	rows []*message.Message
}

func (s *memMessages) Create(_ context.Context, m *message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.rows = append(s.rows, &cp)
	return nil
}

func (s *memMessages) ListForRecipient(_ context.Context, recipientID string, f message.InboxFilter) ([]message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []message.Message
	for i := len(s.rows) - 1; i >= 0; i-- {
		m := s.rows[i]
		if m.RecipientID != recipientID || m.Deleted {
			continue
		}
		if f.Reported != nil && *f.Reported != m.Reported {
			continue
		}
		out = append(out, *m)
	}
	return out, nil
}

func (s *memMessages) Get(_ context.Context, id string) (*message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.rows {
		if m.ID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, message.ErrNotFound
}

func (s *memMessages) UpdateFlags(_ context.Context, id string, p message.FlagPatch, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.rows {
		if m.ID != id {
			continue
		}
		if p.Deleted != nil {
			m.Deleted = *p.Deleted
		}
		if p.Reported != nil {
			m.Reported = *p.Reported
		}
		m.UpdatedAt = at
		return nil
	}
	return message.ErrNotFound
}

func (s *memMessages) Stats(ctx context.Context, recipientID string) (message.Stats, error) {
	rows, _ := s.ListForRecipient(ctx, recipientID, message.InboxFilter{})
	st := message.Stats{ByCategory: map[message.Category]int64{}}
	for _, m := range rows {
		st.Total++
		st.ByCategory[m.Category]++
	}
	return st, nil
}

type fakeJobs struct{ repairs []string }

func (j *fakeJobs) EnqueueRepair(_ context.Context, username string) (uint64, error) {
	j.repairs = append(j.repairs, username)
	return uint64(len(j.repairs)), nil
}

func (j *fakeJobs) EnqueueBackfill(context.Context) (uint64, error) { return 99, nil }

type fakeVerifier map[string]auth.Identity

func (v fakeVerifier) VerifyIDToken(_ context.Context, raw string) (auth.Identity, error) {
	id, ok := v[raw]
	if !ok {
		return auth.Identity{}, errors.New("bad token")
	}
	return id, nil
}

type testServer struct {
	t       *testing.T
	h       http.Handler
	owners  *fakeOwners
	jobs    *fakeJobs
	jwt     *auth.JWT
	msgs    *memMessages
	limiter *ratelimit.Limiter
}

func newTestServer(t *testing.T, verifier auth.IDTokenVerifier) *testServer {
	t.Helper()
	return newTestServerWith(t, verifier, func(*config.Config) {})
}

func newTestServerWith(t *testing.T, verifier auth.IDTokenVerifier, edit func(*config.Config)) *testServer {
	t.Helper()
	log := logging.Discard()
	cfg := config.Config{
		AdminToken:        "admin-secret",
		OIDCIssuerURL:     "https://issuer.example.com",
		UsernameMinLength: 3,
		UsernameMaxLength: 20,
	}
	edit(&cfg)

	ts := &testServer{
		t:       t,
		owners:  newFakeOwners(),
		jobs:    &fakeJobs{},
		jwt:     auth.NewJWT("test-secret", time.Hour),
		msgs:    &memMessages{},
		limiter: ratelimit.New(nil, ratelimit.Policy{Max: 2, Window: time.Hour}, log),
	}
	svc := &message.Service{
		Store:      ts.msgs,
		Recipients: ts.owners,
		Captcha:    captcha.Disabled{},
		Guard:      guard.New(guard.DefaultTerms, log),
		Limiter:    ts.limiter,
		Hasher:     message.NewHasher("test-salt"),
		Log:        log,
	}
	ts.h = NewRouter(cfg, Deps{
		Owners:   ts.owners,
		Resolver: ts.owners,
		Messages: svc,
		Jobs:     ts.jobs,
		JWT:      ts.jwt,
		Verifier: verifier,
		Throttle: mw.NewThrottle(100, 100),
		Log:      log,
	})
	return ts
}

func (ts *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "203.0.113.9:51000"
	req.Header.Set("User-Agent", "test-agent")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	ts.h.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) login(ownerID, username string) string {
	ts.t.Helper()
	tok, err := ts.jwt.Sign(ownerID, ownerID+"@example.com")
	require.NoError(ts.t, err)
	if username != "" {
		rr := ts.do(http.MethodPost, "/username", tok, map[string]string{"username": username})
		require.Equal(ts.t, http.StatusOK, rr.Code, rr.Body.String())
	}
	return tok
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	rr := ts.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}

func TestSignin(t *testing.T) {
	ts := newTestServer(t, fakeVerifier{
		"good": {Subject: "uid-1", Email: "alice@example.com", EmailVerified: true},
	})

	rr := ts.do(http.MethodPost, "/auth/signin", "", map[string]string{"idToken": "bad"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = ts.do(http.MethodPost, "/auth/signin", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ts.do(http.MethodPost, "/auth/signin", "", map[string]string{"idToken": "good"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decode(t, rr)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "uid-1", body["owner"].(map[string]any)["uid"])

	token := body["token"].(string)
	rr = ts.do(http.MethodGet, "/me", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	me := decode(t, rr)["owner"].(map[string]any)
	assert.Equal(t, "alice@example.com", me["email"])
	assert.Nil(t, me["username"])
}

func TestSignin_NotConfigured(t *testing.T) {
	ts := newTestServer(t, nil)
	rr := ts.do(http.MethodPost, "/auth/signin", "", map[string]string{"idToken": "x"})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "signin_unavailable", decode(t, rr)["reason"])
}

func TestUsernameFlow(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := ts.do(http.MethodGet, "/username/check?username=Alice", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_username", decode(t, rr)["reason"])

	rr = ts.do(http.MethodGet, "/username/check?username=alice123", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decode(t, rr)["available"])

	rr = ts.do(http.MethodPost, "/username", "", map[string]string{"username": "alice123"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, false, decode(t, rr)["success"])

	ts.login("u1", "alice123")

	rr = ts.do(http.MethodGet, "/username/check?username=alice123", "", nil)
	assert.Equal(t, false, decode(t, rr)["available"])

	other := ts.login("u2", "")
	rr = ts.do(http.MethodPost, "/username", other, map[string]string{"username": "alice123"})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "username_taken", decode(t, rr)["reason"])

	rr = ts.do(http.MethodGet, "/users/alice123", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "u1", decode(t, rr)["data"].(map[string]any)["uid"])

	rr = ts.do(http.MethodGet, "/users/nobody", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "user_not_found", decode(t, rr)["reason"])
}

func TestSubmitAndInbox(t *testing.T) {
	ts := newTestServer(t, nil)
	alice := ts.login("u1", "alice123")

	rr := ts.do(http.MethodPost, "/messages/alice123", "", map[string]string{
		"category": "compliment", "body": "You are amazing and kind",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	id := decode(t, rr)["messageId"].(string)
	assert.NotEmpty(t, id)

	rr = ts.do(http.MethodPost, "/messages/alice123", "", map[string]string{
		"category": "compliment", "body": "You are stupid",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "profanity", decode(t, rr)["reason"])

	rr = ts.do(http.MethodPost, "/messages/nobody", "", map[string]string{
		"category": "compliment", "body": "hello",
	})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.do(http.MethodPost, "/messages/alice123", "", map[string]string{
		"category": "poem", "body": "hello",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_category", decode(t, rr)["reason"])

	rr = ts.do(http.MethodGet, "/messages", alice, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.EqualValues(t, 1, body["count"])
	msg := body["messages"].([]any)[0].(map[string]any)
	assert.Equal(t, "You are amazing and kind", msg["content"])
	assert.NotContains(t, msg, "ipHash")
	assert.NotContains(t, msg, "IPHash")
	assert.NotContains(t, rr.Body.String(), "203.0.113.9")

	rr = ts.do(http.MethodGet, "/messages/stats", alice, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 1, decode(t, rr)["stats"].(map[string]any)["total"])

	rr = ts.do(http.MethodGet, "/messages/fetch/"+id, alice, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, id, decode(t, rr)["message"].(map[string]any)["id"])

	rr = ts.do(http.MethodGet, "/messages?reported=maybe", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ts.do(http.MethodGet, "/messages", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestUpdateOwnership(t *testing.T) {
	ts := newTestServer(t, nil)
	alice := ts.login("u1", "alice123")
	bob := ts.login("u2", "bob456")

	rr := ts.do(http.MethodPost, "/messages/alice123", "", map[string]string{
		"category": "gratitude", "body": "thanks for everything",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	id := decode(t, rr)["messageId"].(string)

	rr = ts.do(http.MethodPatch, "/messages", bob, map[string]any{"messageId": id, "deleted": true})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.do(http.MethodGet, "/messages/fetch/"+id, bob, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.do(http.MethodPatch, "/messages", alice, map[string]any{"messageId": "missing", "deleted": true})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	for i := 0; i < 2; i++ {
		rr = ts.do(http.MethodPatch, "/messages", alice, map[string]any{"messageId": id, "deleted": true})
		assert.Equal(t, http.StatusOK, rr.Code)
	}

	rr = ts.do(http.MethodGet, "/messages/fetch/"+id, alice, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.do(http.MethodGet, "/messages", alice, nil)
	assert.EqualValues(t, 0, decode(t, rr)["count"])
}

func TestSubmit_RateLimited(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.login("u1", "alice123")

	send := func() *httptest.ResponseRecorder {
		return ts.do(http.MethodPost, "/messages/alice123", "", map[string]string{
			"category": "encouragement", "body": "keep going",
		})
	}
	require.Equal(t, http.StatusOK, send().Code)
	require.Equal(t, http.StatusOK, send().Code)

	rr := send()
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "rate_limited", body["reason"])
	reset, ok := body["resetTime"].(float64)
	require.True(t, ok)
	assert.Greater(t, int64(reset), time.Now().UnixMilli())
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	assert.Len(t, ts.msgs.rows, 2)
}

func (ts *testServer) submitFrom(forwardedFor string) int {
	ts.t.Helper()
	body := strings.NewReader(`{"category":"encouragement","body":"keep going"}`)
	req := httptest.NewRequest(http.MethodPost, "/messages/alice123", body)
	req.RemoteAddr = "198.51.100.7:40000"
	req.Header.Set("X-Forwarded-For", forwardedFor)
	rr := httptest.NewRecorder()
	ts.h.ServeHTTP(rr, req)
	return rr.Code
}

func TestSubmit_ForwardedForIgnoredByDefault(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.login("u1", "alice123")

	assert.Equal(t, http.StatusOK, ts.submitFrom("10.0.0.1"))
	assert.Equal(t, http.StatusOK, ts.submitFrom("10.0.0.2"))
	assert.Equal(t, http.StatusTooManyRequests, ts.submitFrom("10.0.0.3"),
		"rotating the header must not reset the limit")
}

func TestSubmit_ForwardedForTrustedBehindProxy(t *testing.T) {
	ts := newTestServerWith(t, nil, func(c *config.Config) { c.TrustProxyHeaders = true })
	ts.login("u1", "alice123")

	assert.Equal(t, http.StatusOK, ts.submitFrom("10.0.0.1"))
	assert.Equal(t, http.StatusOK, ts.submitFrom("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, ts.submitFrom("10.0.0.1"))
	assert.Equal(t, http.StatusOK, ts.submitFrom("10.0.0.2"), "each forwarded client has its own window")
}

func TestAdmin(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := ts.do(http.MethodPost, "/admin/repairs/usernames/alice123", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = ts.do(http.MethodPost, "/admin/repairs/usernames/alice123", "admin-secret", nil)
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.EqualValues(t, 1, decode(t, rr)["jobId"])
	assert.Equal(t, []string{"alice123"}, ts.jobs.repairs)

	rr = ts.do(http.MethodPost, "/admin/repairs/owners", "admin-secret", nil)
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.EqualValues(t, 99, decode(t, rr)["jobId"])
}

func TestThrottle(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.h = NewRouter(config.Config{UsernameMinLength: 3, UsernameMaxLength: 20}, Deps{
		Owners:   ts.owners,
		Resolver: ts.owners,
		JWT:      ts.jwt,
		Throttle: mw.NewThrottle(0.001, 2),
		Log:      logging.Discard(),
	})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/username/check?username=alice123", "", nil).Code)
	}
	rr := ts.do(http.MethodGet, "/username/check?username=alice123", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "throttled", decode(t, rr)["reason"])
}

func TestBadJSON(t *testing.T) {
	ts := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/messages/alice123", strings.NewReader("{"))
	rr := httptest.NewRecorder()
	ts.h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_input", decode(t, rr)["reason"])
}
