package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/adoneabiilesh/mustiapp-sub002/internal/intake"
	"github.com/adoneabiilesh/mustiapp-sub002/internal/models"
	"github.com/adoneabiilesh/mustiapp-sub002/internal/ratelimit"
	"github.com/adoneabiilesh/mustiapp-sub002/internal/security"
	"github.com/adoneabiilesh/mustiapp-sub002/internal/storage"
	"github.com/adoneabiilesh/mustiapp-sub002/internal/validation"
	"github.com/adoneabiilesh/mustiapp-sub002/internal/version"
)

const testAdminToken = "test-admin-token"

// pingStorage wraps a real store and lets tests break Ping.
type pingStorage struct {
	storage.Storage
	pingErr error
}

func (p *pingStorage) Ping(ctx context.Context) error {
	if p.pingErr != nil {
		return p.pingErr
	}
	return p.Storage.Ping(ctx)
}

// MockIntakeService implements intake.ServiceInterface for testing
type MockIntakeService struct {
	mock.Mock
}

func (m *MockIntakeService) Submit(ctx context.Context, sub *intake.Submission) (*intake.Receipt, error) {
	args := m.Called(ctx, sub)
	if r := args.Get(0); r != nil {
		return r.(*intake.Receipt), args.Error(1)
	}
	return nil, args.Error(1)
}

// recordingBackend keeps every dispatched payload.
type recordingBackend struct {
	mu      sync.Mutex
	actions []string
	err     error
}

func (b *recordingBackend) Dispatch(_ context.Context, action string, _ any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.actions = append(b.actions, action)
	return b.err
}

type testServer struct {
	router  *mux.Router
	gate    *security.Gate
	store   *pingStorage
	backend *recordingBackend
}

func testConfig() *models.Config {
	cfg := models.NewDefaultConfig()
	cfg.Security.AdminToken = testAdminToken
	cfg.Security.TrustProxyHeaders = false
	return cfg
}

// newTestServer wires the real gate and intake service over memory storage.
// svc overrides the intake service when non-nil.
func newTestServer(t *testing.T, cfg *models.Config, svc intake.ServiceInterface, opts ...RouteOption) *testServer {
	t.Helper()

	mem, err := storage.NewMemoryStorage(storage.Config{})
	require.NoError(t, err)
	store := &pingStorage{Storage: mem}

	gate := security.NewGate(ratelimit.NewWindowLimiter(store), cfg.Security)
	backend := &recordingBackend{}
	if svc == nil {
		svc = intake.NewService(backend, gate)
	}

	handlers := NewHandlers(svc, gate, WithStorage(store), WithVersion(version.Info{Version: "1.2.3"}))
	return &testServer{
		router:  SetupRoutes(handlers, cfg, opts...),
		gate:    gate,
		store:   store,
		backend: backend,
	}
}

func (ts *testServer) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestNewHandlers(t *testing.T) {
	mockService := &MockIntakeService{}
	handlers := NewHandlers(mockService, nil)

	assert.NotNil(t, handlers)
	assert.Equal(t, mockService, handlers.intakeService)
	assert.Nil(t, handlers.storage)
	assert.False(t, handlers.startedAt.IsZero())
}

func TestHandlers_SignIn_Accepted(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)

	rec := ts.do(http.MethodPost, "/api/v1/auth/signin", `{"email":"  a@b.co ","password":"Secret1!"}`)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	resp := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "accepted", resp["status"])
	assert.Equal(t, "login", resp["action"])
	assert.NotEmpty(t, resp["reference"])
	assert.NotEmpty(t, resp["request_id"])

	data := resp["data"].(map[string]any)
	assert.Equal(t, "a@b.co", data["email"])
	assert.Equal(t, "[REDACTED]", data["password"])

	rl := resp["rate_limit"].(map[string]any)
	assert.Equal(t, float64(5), rl["limit"])
	assert.Equal(t, float64(4), rl["remaining"])

	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, []string{"login"}, ts.backend.actions)

	// A successful sign-in clears the login window
	keys, err := ts.store.Keys(context.Background(), ratelimit.KeyPrefix)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestHandlers_ValidationFailure(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)

	rec := ts.do(http.MethodPost, "/api/v1/auth/signin", `{"email":"not-an-email","password":"x"}`)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeBody[models.ErrorResponse](t, rec)
	assert.Equal(t, models.ErrorCodeValidation, resp.Code)

	details, ok := resp.Details.([]any)
	require.True(t, ok)
	require.NotEmpty(t, details)
	assert.Equal(t, "email", details[0].(map[string]any)["field"])
	assert.Empty(t, ts.backend.actions)

	// The failed attempt still counts
	keys, err := ts.store.Keys(context.Background(), ratelimit.KeyPrefix)
	require.NoError(t, err)
	assert.Equal(t, []string{"rateLimit:192.0.2.1:login"}, keys)
}

func TestHandlers_MalformedBody(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)

	rec := ts.do(http.MethodPost, "/api/v1/orders", `{"items": [`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[models.ErrorResponse](t, rec)
	assert.Equal(t, models.ErrorCodeBadRequest, resp.Code)
	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
}

func TestHandlers_RateLimitExceeded(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	body := `{"email":"a@b.co","password":"weak","full_name":"Al"}`

	for i := 0; i < 3; i++ {
		rec := ts.do(http.MethodPost, "/api/v1/auth/signup", body)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	}

	rec := ts.do(http.MethodPost, "/api/v1/auth/signup", body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	resp := decodeBody[models.ErrorResponse](t, rec)
	assert.Equal(t, models.ErrorCodeRateLimitExceeded, resp.Code)
	assert.Equal(t, "Too many attempts. Please try again in 60 minute(s).", resp.Message)

	// Other actions keep their own window
	rec = ts.do(http.MethodPost, "/api/v1/search", `{"query":"pizza"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestHandlers_SearchDefaultsApplied(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)

	rec := ts.do(http.MethodPost, "/api/v1/search", `{"query":"  sushi  "}`)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	resp := decodeBody[models.AdmissionResponse](t, rec)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "sushi", data["query"])
	assert.Equal(t, float64(validation.DefaultSearchLimit), data["limit"])
}

func TestHandlers_ExemptClient(t *testing.T) {
	cfg := testConfig()
	cfg.Security.ExemptCIDRs = []string{"192.0.2.0/24"}
	ts := newTestServer(t, cfg, nil)

	for i := 0; i < 5; i++ {
		rec := ts.do(http.MethodPost, "/api/v1/refunds", `{}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := ts.do(http.MethodPost, "/api/v1/search", `{"query":"x"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decodeBody[map[string]any](t, rec)
	assert.NotContains(t, resp, "rate_limit")
}

func TestHandlers_BackendFailure(t *testing.T) {
	mockService := &MockIntakeService{}
	mockService.On("Submit", mock.Anything, mock.AnythingOfType("*intake.Submission")).
		Return(nil, intake.NewUnavailableError("backend rejected the request", errors.New("boom")))
	ts := newTestServer(t, testConfig(), mockService)

	rec := ts.do(http.MethodPost, "/api/v1/search", `{"query":"x"}`)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeBody[models.ErrorResponse](t, rec)
	assert.Equal(t, models.ErrorCodeServiceUnavailable, resp.Code)
	assert.Equal(t, "backend rejected the request", resp.Message)
	mockService.AssertExpectations(t)
}

func TestHandlers_UnexpectedServiceError(t *testing.T) {
	mockService := &MockIntakeService{}
	mockService.On("Submit", mock.Anything, mock.Anything).Return(nil, errors.New("unexpected"))
	ts := newTestServer(t, testConfig(), mockService)

	rec := ts.do(http.MethodPost, "/api/v1/search", `{"query":"x"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeBody[models.ErrorResponse](t, rec)
	assert.Equal(t, models.ErrorCodeInternalError, resp.Code)
}

func TestHandlers_SubmissionCarriesAdmission(t *testing.T) {
	mockService := &MockIntakeService{}
	mockService.On("Submit", mock.Anything, mock.MatchedBy(func(sub *intake.Submission) bool {
		data, ok := sub.Payload.(map[string]any)
		return sub.Action == "profile_update" &&
			sub.Schema == validation.ProfileUpdate &&
			sub.Identifier == "192.0.2.1" &&
			sub.RequestID == "req-42" &&
			ok && data["full_name"] == "Ada"
	})).Return(&intake.Receipt{Reference: "ref-1", Action: "profile_update"}, nil)
	ts := newTestServer(t, testConfig(), mockService)

	rec := ts.do(http.MethodPut, "/api/v1/profile", `{"full_name":" Ada "}`, RequestIDHeader, "req-42")

	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decodeBody[models.AdmissionResponse](t, rec)
	assert.Equal(t, "ref-1", resp.Reference)
	assert.Equal(t, "req-42", resp.RequestID)
	assert.Nil(t, resp.Data)
	mockService.AssertExpectations(t)
}

func TestHandlers_Admit_MissingAdmission(t *testing.T) {
	handlers := NewHandlers(&MockIntakeService{}, nil)

	rec := httptest.NewRecorder()
	handlers.Admit(Endpoints[0]).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/signin", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandlers_HealthCheck(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)

	for _, path := range []string{"/health", "/api/v1/health"} {
		rec := ts.do(http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decodeBody[models.HealthCheckResponse](t, rec)
		assert.Equal(t, models.StatusHealthy, resp.Status)
		assert.Equal(t, "1.2.3", resp.Version)
		assert.Equal(t, models.StatusHealthy, resp.Components["storage"].Status)
	}
}

func TestHandlers_HealthCheck_StorageDown(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	ts.store.pingErr = errors.New("connection refused")

	rec := ts.do(http.MethodGet, "/health", "")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeBody[models.HealthCheckResponse](t, rec)
	assert.Equal(t, models.StatusUnhealthy, resp.Status)
	assert.Equal(t, models.StatusUnhealthy, resp.Components["storage"].Status)
}

func TestHandlers_HealthCheck_NoStorage(t *testing.T) {
	handlers := NewHandlers(&MockIntakeService{}, nil)

	rec := httptest.NewRecorder()
	handlers.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[models.HealthCheckResponse](t, rec)
	assert.NotContains(t, resp.Components, "storage")
}

func TestEndpoints_CoverEverySchema(t *testing.T) {
	seen := make(map[validation.Name]bool)
	for _, ep := range Endpoints {
		assert.True(t, strings.HasPrefix(ep.Path, "/"), ep.Path)
		assert.NotEmpty(t, ep.Action)
		seen[ep.Schema] = true
	}
	for _, name := range validation.Names() {
		assert.True(t, seen[name], "schema %s has no endpoint", name)
	}
}

func TestHandlers_RateLimitResetsAfterWindow(t *testing.T) {
	mem, err := storage.NewMemoryStorage(storage.Config{})
	require.NoError(t, err)

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	cfg := testConfig()
	cfg.Security.RateLimits = map[string]models.RateLimitPolicy{"search": {MaxAttempts: 1, Window: time.Minute}}
	gate := security.NewGate(ratelimit.NewWindowLimiter(mem, ratelimit.WithClock(clock)), cfg.Security)
	router := SetupRoutes(NewHandlers(intake.NewService(&recordingBackend{}, gate), gate), cfg)

	post := func() int {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{"query":"x"}`)))
		return rec.Code
	}

	assert.Equal(t, http.StatusAccepted, post())
	assert.Equal(t, http.StatusTooManyRequests, post())

	mu.Lock()
	now = now.Add(time.Minute)
	mu.Unlock()

	assert.Equal(t, http.StatusAccepted, post())
}
