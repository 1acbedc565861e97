package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ieraasyl/PingService/internal/middleware"
	"github.com/ieraasyl/PingService/internal/services"
	"github.com/ieraasyl/PingService/internal/testutil"
	"github.com/ieraasyl/PingService/pkg/cache"
	"github.com/ieraasyl/PingService/pkg/config"
	"github.com/ieraasyl/PingService/pkg/utils"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// testEnv is the full API backed by an in-memory store and miniredis.
type testEnv struct {
	router http.Handler
	store  *testutil.Store
	mr     *miniredis.Miniredis
	jwt    *services.JWTService
}

type envConfig struct {
	jwt        *config.JWTConfig
	rateLimit  int
	trustProxy bool
}

type envOption func(*envConfig)

func withoutRotation() envOption {
	return func(c *envConfig) {
		c.jwt.RotateRefresh = false
		c.jwt.BlacklistAfterRotation = false
	}
}

func withRateLimit(n int) envOption {
	return func(c *envConfig) { c.rateLimit = n }
}

func withTrustedProxy() envOption {
	return func(c *envConfig) { c.trustProxy = true }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	mr, cleanup := testutil.SetupMiniRedis(t)
	t.Cleanup(cleanup)
	redisDB := testutil.NewTestRedisDB(t, mr)

	ec := &envConfig{jwt: &config.JWTConfig{
		Secret:                 []byte("test-secret-key-minimum-32-bytes-long!"),
		AccessExpiry:           15 * time.Minute,
		RefreshExpiry:          24 * time.Hour,
		RotateRefresh:          true,
		BlacklistAfterRotation: true,
	}}
	for _, opt := range opts {
		opt(ec)
	}

	store := testutil.NewStore()
	c := cache.NewCache(redisDB.Client())

	userSvc, err := services.NewUserService(store, nil, services.NewPasswordPolicy(8, bcrypt.MinCost))
	require.NoError(t, err)
	jwtSvc := services.NewJWTService(ec.jwt, redisDB, store)
	sessionSvc := services.NewSessionService(redisDB)
	pingSvc := services.NewPingService(store, c, nil)

	var limiter *middleware.RateLimiter
	if ec.rateLimit > 0 {
		limiter = middleware.NewRateLimiter(redisDB, ec.rateLimit, time.Minute)
	}

	router := NewRouter(Routes{
		Auth:   NewAuthHandler(userSvc, jwtSvc, sessionSvc, utils.CookieOptions{}),
		Pings:  NewPingHandler(pingSvc),
		Health: NewHealthHandler(nil, redisDB),
		Tokens: jwtSvc,

		Limiter:           limiter,
		AllowedOrigins:    []string{"http://localhost:3000"},
		RequestTimeout:    10 * time.Second,
		TrustProxyHeaders: ec.trustProxy,
	})

	return &testEnv{router: router, store: store, mr: mr, jwt: jwtSvc}
}

// do sends an optionally authenticated request through the router.
func (e *testEnv) do(t *testing.T, method, url, token string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	req := testutil.MakeRequest(t, method, url, body)
	if token != "" {
		testutil.SetAuthHeader(req, token)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return testutil.Serve(e.router, req)
}

// register creates an account through the API.
func (e *testEnv) register(t *testing.T, email, name, codeName, password string) {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/auth/register/", "", map[string]string{
		"email":     email,
		"name":      name,
		"code_name": codeName,
		"password":  password,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// session is a logged-in client.
type session struct {
	access  string
	refresh *http.Cookie
	userID  string
}

// login authenticates by code name and returns the access token and cookie.
func (e *testEnv) login(t *testing.T, codeName, password string) session {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/auth/login/", "", map[string]string{
		"code_name": codeName,
		"password":  password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body loginResponse
	testutil.ParseJSONResponse(t, rec, &body)
	cookie := testutil.FindCookie(rec, utils.RefreshCookieName)
	require.NotNil(t, cookie)

	return session{access: body.Access, refresh: cookie, userID: body.User.ID.String()}
}

// agent registers and logs in a user in one step.
func (e *testEnv) agent(t *testing.T, codeName string) session {
	t.Helper()

	e.register(t, codeName+"@mi6.gov", "Agent", codeName, testutil.TestPassword)
	return e.login(t, codeName, testutil.TestPassword)
}
