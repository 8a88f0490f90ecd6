package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"sanctuary/internal/auth"
	"sanctuary/internal/handlers"
	"sanctuary/internal/metrics"
	mw "sanctuary/internal/middleware"
	"sanctuary/internal/models"
	"sanctuary/internal/payments"
	"sanctuary/internal/services"
	"sanctuary/internal/store"
	"sanctuary/internal/testutil"
)

const webhookSecret = "whsec_router_test"

type stubProvider struct {
	last payments.SessionRequest
	err  error
}

func (p *stubProvider) CreateSession(_ context.Context, req payments.SessionRequest) (*payments.Session, error) {
	p.last = req
	if p.err != nil {
		return nil, p.err
	}
	return &payments.Session{ID: "cs_test_r", URL: "https://checkout.example/cs_test_r"}, nil
}

func (p *stubProvider) GetSession(_ context.Context, id string) (*payments.Session, error) {
	if id != "cs_test_r" {
		return nil, errors.New("no such session")
	}
	return &payments.Session{ID: id, PaymentStatus: "paid", Status: "complete", AmountTotal: 2999, Currency: "usd"}, nil
}

type server struct {
	handler  http.Handler
	provider *stubProvider
	users    *store.UserStore
}

func newServer(t *testing.T, withPayments bool, tweaks ...func(*handlers.Deps)) *server {
	t.Helper()
	conn := testutil.NewSeededDB(t)
	logger := zap.NewNop()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		now = now.Add(time.Second)
		return now
	}

	users := store.NewUserStore(conn, clock)
	journal := store.NewJournalStore(conn, nil, clock)
	tokens := auth.NewTokenAuthority([]byte("router-secret"), "sanctuary", 30*time.Minute)
	collector := metrics.NewCollector(prometheus.NewRegistry())

	provider := &stubProvider{}
	var opts []payments.Option
	if withPayments {
		opts = append(opts,
			payments.WithProvider(provider),
			payments.WithVerifier(payments.NewStripeVerifier(webhookSecret)),
		)
	}
	opts = append(opts, payments.WithRecorder(collector))
	orch := payments.NewOrchestrator(payments.Options{SuccessURL: "https://x/success", CancelURL: "https://x/shop"},
		store.NewProductStore(conn), store.NewFulfillmentStore(conn, clock), users, logger, opts...)

	limiter := mw.NewRateLimiter(1000, logger)
	t.Cleanup(limiter.Stop)

	deps := handlers.Deps{
		Logger:         logger,
		AllowedOrigins: []string{"*"},
		Auth:           handlers.NewAuthHandler(users, auth.NewHasher(bcrypt.MinCost), tokens, collector, logger),
		Users:          handlers.NewUserHandler(),
		Journal:        handlers.NewJournalHandler(journal, services.NewEntrySanitizer(), logger),
		Payments:       handlers.NewPaymentsHandler(orch, logger),
		Health:         handlers.NewHealthHandler(conn, nil),
		Authn:          mw.NewAuthMiddleware(auth.NewResolver(tokens, users)),
		AuthLimiter:    limiter,
	}
	for _, tweak := range tweaks {
		tweak(&deps)
	}
	return &server{handler: handlers.NewRouter(deps), provider: provider, users: users}
}

func (s *server) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), rec.Body.String())
	return out
}

func (s *server) registerAndLogin(t *testing.T, email string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"email": email, "password": "pw123", "first_name": "Ann",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"email": email, "password": "pw123"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[map[string]any](t, rec)["access_token"].(string)
}

func TestEndToEnd_JournalLifecycle(t *testing.T) {
	s := newServer(t, false)

	rec := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"email": "a@x.com", "password": "pw123", "first_name": "Ann",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	registered := decode[map[string]string](t, rec)
	assert.Equal(t, "User created successfully", registered["message"])
	require.NotEmpty(t, registered["user_id"])

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"email": "a@x.com", "password": "pw123"})
	require.Equal(t, http.StatusOK, rec.Code)
	var login struct {
		AccessToken string           `json:"access_token"`
		TokenType   string           `json:"token_type"`
		User        handlers.UserDTO `json:"user"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&login))
	assert.Equal(t, "bearer", login.TokenType)
	assert.Equal(t, registered["user_id"], login.User.ID)
	assert.Equal(t, "Ann", login.User.FirstName)
	assert.False(t, login.User.IsPremium)
	token := login.AccessToken

	rec = s.do(t, http.MethodPost, "/api/journal/entries", token, map[string]any{"title": "Day 1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entryID := decode[map[string]string](t, rec)["entry_id"]
	require.NotEmpty(t, entryID)

	rec = s.do(t, http.MethodGet, "/api/journal/entries/"+entryID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entry := decode[handlers.EntryDTO](t, rec)
	assert.Equal(t, "Day 1", entry.Title)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.False(t, entry.UpdatedAt.IsZero())

	rec = s.do(t, http.MethodDelete, "/api/journal/entries/"+entryID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/journal/entries/"+entryID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Journal entry not found", decode[map[string]string](t, rec)["detail"])
}

func TestRegister(t *testing.T) {
	s := newServer(t, false)
	s.registerAndLogin(t, "a@x.com")

	tests := []struct {
		name   string
		body   any
		status int
		detail string
	}{
		{"duplicate", map[string]any{"email": "a@x.com", "password": "pw", "first_name": "B"}, http.StatusConflict, "Email already registered"},
		{"duplicate other case", map[string]any{"email": "A@X.COM", "password": "pw", "first_name": "B"}, http.StatusConflict, "Email already registered"},
		{"bad email", map[string]any{"email": "nope", "password": "pw", "first_name": "B"}, http.StatusBadRequest, "email must be a valid email address"},
		{"missing first name", map[string]any{"email": "b@x.com", "password": "pw"}, http.StatusBadRequest, "first_name is required"},
		{"password too long", map[string]any{"email": "b@x.com", "password": strings.Repeat("p", 73), "first_name": "B"}, http.StatusBadRequest, "password must be at most 72 characters"},
		{"not json", "{", http.StatusBadRequest, "invalid body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/auth/register", "", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.detail, decode[map[string]string](t, rec)["detail"])
		})
	}
}

func TestLogin_FailuresLookTheSame(t *testing.T) {
	s := newServer(t, false)
	s.registerAndLogin(t, "a@x.com")

	for _, body := range []map[string]any{
		{"email": "a@x.com", "password": "wrong"},
		{"email": "nobody@x.com", "password": "pw123"},
	} {
		rec := s.do(t, http.MethodPost, "/api/auth/login", "", body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
		assert.Equal(t, "Incorrect email or password", decode[map[string]string](t, rec)["detail"])
	}
}

type countingPasswords struct {
	*auth.Hasher
	verified, missing int
}

func (c *countingPasswords) Verify(plaintext, hashed string) bool {
	c.verified++
	return c.Hasher.Verify(plaintext, hashed)
}

func (c *countingPasswords) VerifyMissing(plaintext string) bool {
	c.missing++
	return c.Hasher.VerifyMissing(plaintext)
}

func TestLogin_UnknownEmailStillHashes(t *testing.T) {
	users := store.NewUserStore(testutil.NewDB(t), nil)
	passwords := &countingPasswords{Hasher: auth.NewHasher(bcrypt.MinCost)}
	h := handlers.NewAuthHandler(users, passwords, auth.NewTokenAuthority([]byte("k"), "sanctuary", time.Minute), nil, zap.NewNop())

	hashed, err := passwords.Hash("pw123")
	require.NoError(t, err)
	require.NoError(t, users.Create(context.Background(), &models.User{Email: "a@x.com", PasswordHash: hashed, FirstName: "Ann"}))

	login := func(email string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"`+email+`","password":"wrong"}`))
		rec := httptest.NewRecorder()
		h.Login(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, login("nobody@x.com"))
	assert.Equal(t, 0, passwords.verified)
	assert.Equal(t, 1, passwords.missing)

	assert.Equal(t, http.StatusUnauthorized, login("a@x.com"))
	assert.Equal(t, 1, passwords.verified)
	assert.Equal(t, 1, passwords.missing)
}

func TestRegister_NormalizesEmailBeforeValidation(t *testing.T) {
	s := newServer(t, false)

	rec := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"email": "  B@X.com ", "password": "pw123", "first_name": " Bea ",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	for _, email := range []string{"b@x.com", " B@x.COM"} {
		rec = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"email": email, "password": "pw123"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var login struct {
			User handlers.UserDTO `json:"user"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&login))
		assert.Equal(t, "b@x.com", login.User.Email)
		assert.Equal(t, "Bea", login.User.FirstName)
	}

	rec = s.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"email": "c@x.com", "password": "pw123", "first_name": "   ",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "first_name is required", decode[map[string]string](t, rec)["detail"])
}

func TestMe(t *testing.T) {
	s := newServer(t, false)
	token := s.registerAndLogin(t, "a@x.com")

	rec := s.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[handlers.UserDTO](t, rec)
	assert.Equal(t, "a@x.com", me.Email)
	assert.Nil(t, me.LastName)

	for _, bad := range []string{"", "garbage", token + "x"} {
		rec := s.do(t, http.MethodGet, "/api/auth/me", bad, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, bad)
		assert.Equal(t, "could not validate credentials", decode[map[string]string](t, rec)["detail"])
	}
}

func TestJournal_OwnershipAndOrdering(t *testing.T) {
	s := newServer(t, false)
	alice := s.registerAndLogin(t, "alice@x.com")
	bob := s.registerAndLogin(t, "bob@x.com")

	create := func(token, title string) string {
		rec := s.do(t, http.MethodPost, "/api/journal/entries", token, map[string]any{"title": title, "content": "<p>hi</p><script>x()</script>", "mood": "calm"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		return decode[map[string]string](t, rec)["entry_id"]
	}
	e1 := create(alice, "E1")
	e2 := create(alice, "E2")

	rec := s.do(t, http.MethodGet, "/api/journal/entries", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]handlers.EntryDTO](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, []string{e2, e1}, []string{list[0].ID, list[1].ID})
	assert.Equal(t, "<p>hi</p><script>x()</script>", list[0].Content)
	assert.Equal(t, "calm", *list[0].Mood)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/journal/entries/"+e1, bob, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPut, "/api/journal/entries/"+e1, bob, map[string]any{"title": "mine now"}).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/journal/entries/"+e1, bob, nil).Code)

	rec = s.do(t, http.MethodGet, "/api/journal/entries", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = s.do(t, http.MethodPut, "/api/journal/entries/"+e1, alice, map[string]any{"title": "E1 edited", "content": "new"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/journal/entries/"+e1, alice, nil)
	got := decode[handlers.EntryDTO](t, rec)
	assert.Equal(t, "E1 edited", got.Title)
	assert.Nil(t, got.Mood)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))

	rec = s.do(t, http.MethodGet, "/api/journal/entries?limit=1&offset=1", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[[]handlers.EntryDTO](t, rec)
	require.Len(t, page, 1)
	assert.Equal(t, e1, page[0].ID)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/journal/entries?limit=abc", alice, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/journal/entries", alice, map[string]any{"title": "<b></b>"}).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/journal/entries", "", nil).Code)
}

func TestJournal_ContentRoundTrips(t *testing.T) {
	s := newServer(t, false)
	token := s.registerAndLogin(t, "a@x.com")

	for _, content := range []string{"Tom & Jerry", "a < b and 2 > 1", `she said "hi"`, "I <3 you"} {
		t.Run(content, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/journal/entries", token, map[string]any{"title": "t", "content": content})
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
			id := decode[map[string]string](t, rec)["entry_id"]

			got := decode[handlers.EntryDTO](t, s.do(t, http.MethodGet, "/api/journal/entries/"+id, token, nil))
			assert.Equal(t, content, got.Content)

			rec = s.do(t, http.MethodPut, "/api/journal/entries/"+id, token, map[string]any{"title": got.Title, "content": got.Content})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			got = decode[handlers.EntryDTO](t, s.do(t, http.MethodGet, "/api/journal/entries/"+id, token, nil))
			assert.Equal(t, content, got.Content)
		})
	}
}

func TestAuthRateLimit_IgnoresForwardingHeaders(t *testing.T) {
	limiter := mw.NewRateLimiter(2, nil)
	t.Cleanup(limiter.Stop)
	s := newServer(t, false, func(d *handlers.Deps) { d.AuthLimiter = limiter })

	var codes []int
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"a@x.com","password":"pw"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("1.2.3.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("5.6.7.%d", i))
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{
		http.StatusUnauthorized, http.StatusUnauthorized,
		http.StatusTooManyRequests, http.StatusTooManyRequests, http.StatusTooManyRequests,
	}, codes)
	assert.Equal(t, 1, limiter.ClientCount())
}

func TestAuthRateLimit_TrustedProxy(t *testing.T) {
	limiter := mw.NewRateLimiter(1, nil)
	t.Cleanup(limiter.Stop)
	s := newServer(t, false, func(d *handlers.Deps) {
		d.AuthLimiter = limiter
		d.TrustProxy = true
	})

	steps := []struct {
		ip   string
		code int
	}{
		{"1.2.3.4", http.StatusUnauthorized},
		{"1.2.3.5", http.StatusUnauthorized},
		{"1.2.3.4", http.StatusTooManyRequests},
	}
	for _, step := range steps {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"a@x.com","password":"pw"}`))
		req.Header.Set("X-Real-IP", step.ip)
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		assert.Equal(t, step.code, rec.Code, step.ip)
	}
	assert.Equal(t, 2, limiter.ClientCount())
}

func TestCheckout(t *testing.T) {
	s := newServer(t, true)
	token := s.registerAndLogin(t, "a@x.com")

	rec := s.do(t, http.MethodPost, "/api/payments/checkout/session", "", `["1","unknown"]`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "https://checkout.example/cs_test_r", decode[map[string]string](t, rec)["url"])
	assert.Len(t, s.provider.last.LineItems, 1)
	assert.Empty(t, s.provider.last.ClientReferenceID)

	rec = s.do(t, http.MethodPost, "/api/payments/checkout/session", token, map[string]any{"product_ids": []string{"2"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a@x.com", s.provider.last.CustomerEmail)
	assert.NotEmpty(t, s.provider.last.Metadata["user_id"])

	rec = s.do(t, http.MethodPost, "/api/payments/checkout/session", "", `[]`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s.provider.err = errors.New("stripe: connection reset")
	rec = s.do(t, http.MethodPost, "/api/payments/checkout/session", "", `["1"]`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Unable to create checkout session", decode[map[string]string](t, rec)["detail"])

	rec = s.do(t, http.MethodGet, "/api/payments/checkout/status/cs_test_r", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, payments.Status{PaymentStatus: "paid", Status: "complete", AmountTotal: 2999, Currency: "usd"}, decode[payments.Status](t, rec))

	rec = s.do(t, http.MethodGet, "/api/payments/checkout/status/cs_nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckout_Unconfigured(t *testing.T) {
	s := newServer(t, false)

	assert.Equal(t, http.StatusServiceUnavailable, s.do(t, http.MethodPost, "/api/payments/checkout/session", "", `["1"]`).Code)
	assert.Equal(t, http.StatusServiceUnavailable, s.do(t, http.MethodGet, "/api/payments/checkout/status/cs_1", "", nil).Code)
}

func TestWebhook(t *testing.T) {
	s := newServer(t, true)
	s.registerAndLogin(t, "a@x.com")
	buyer, err := s.users.GetByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)

	payload, err := json.Marshal(map[string]any{
		"id":   "evt_1",
		"type": "checkout.session.completed",
		"data": map[string]any{"object": map[string]any{
			"id":             "cs_test_r",
			"object":         "checkout.session",
			"payment_status": "paid",
			"metadata":       map[string]any{"product_ids": "1", "user_id": buyer.ID},
		}},
	})
	require.NoError(t, err)

	post := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", bytes.NewReader(payload))
		if header != "" {
			req.Header.Set("Stripe-Signature", header)
		}
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		return rec
	}

	rec := post("")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = post("t=1,v1=bad")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid signature", decode[map[string]string](t, rec)["detail"])

	u, err := s.users.GetByID(context.Background(), buyer.ID)
	require.NoError(t, err)
	assert.False(t, u.IsPremium)

	header := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: webhookSecret, Timestamp: time.Now()}).Header
	for i := 0; i < 2; i++ {
		rec = post(header)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "success", decode[map[string]string](t, rec)["status"])
	}

	u, err = s.users.GetByID(context.Background(), buyer.ID)
	require.NoError(t, err)
	assert.True(t, u.IsPremium)
}

func TestHealth(t *testing.T) {
	s := newServer(t, false)

	for _, path := range []string{"/", "/api/"} {
		rec := s.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.NotEmpty(t, decode[map[string]string](t, rec)["message"])
	}

	rec := s.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]any](t, rec)["status"])
}
