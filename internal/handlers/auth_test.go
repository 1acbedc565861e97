package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ieraasyl/PingService/internal/models"
	"github.com/ieraasyl/PingService/internal/services"
	"github.com/ieraasyl/PingService/internal/testutil"
	"github.com/ieraasyl/PingService/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock implementations for the failure paths that a real store cannot
// produce on demand.

type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) Register(ctx context.Context, in services.RegisterInput) (*models.User, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) Authenticate(ctx context.Context, in services.LoginInput) (*models.User, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) Current(ctx context.Context, userID uuid.UUID) (*models.PublicUser, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PublicUser), args.Error(1)
}

type MockJWTService struct {
	mock.Mock
}

func (m *MockJWTService) Obtain(ctx context.Context, user *models.User, deviceInfo, ipAddress string) (*services.TokenPair, error) {
	args := m.Called(ctx, user, deviceInfo, ipAddress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.TokenPair), args.Error(1)
}

func (m *MockJWTService) Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.TokenPair), args.Error(1)
}

func (m *MockJWTService) Revoke(ctx context.Context, refreshToken string) error {
	return m.Called(ctx, refreshToken).Error(0)
}

func (m *MockJWTService) RevokeAccess(ctx context.Context, accessToken string) error {
	return m.Called(ctx, accessToken).Error(0)
}

func (m *MockJWTService) RefreshExpiry() time.Duration {
	return 24 * time.Hour
}

func TestRegister(t *testing.T) {
	t.Run("creates the account", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, http.MethodPost, "/auth/register/", "", map[string]string{
			"email":     "bond@mi6.gov",
			"name":      "James Bond",
			"code_name": "007",
			"password":  testutil.TestPassword,
		})

		assert.Equal(t, http.StatusCreated, rec.Code)
		testutil.AssertJSONContentType(t, rec)

		var body map[string]string
		testutil.ParseJSONResponse(t, rec, &body)
		assert.Equal(t, "User created successfully.", body["message"])
		assert.NotContains(t, rec.Body.String(), testutil.TestPassword)

		user, err := env.store.GetUserByCodeName(context.Background(), "007")
		require.NoError(t, err)
		assert.True(t, user.IsActive)
		assert.False(t, user.IsStaff)
		assert.NotEqual(t, testutil.TestPassword, user.PasswordHash)
	})

	t.Run("reports every invalid field", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, http.MethodPost, "/auth/register/", "", map[string]string{
			"email":     "not-an-email",
			"name":      "Agent 47",
			"code_name": "double-oh",
			"password":  "123",
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		apiErr := testutil.ParseError(t, rec)
		assert.Equal(t, "validation_error", apiErr.Error.Code)
		assert.ElementsMatch(t, []string{"email", "name", "code_name", "password"}, keys(apiErr.Error.Details))
		assert.Contains(t, apiErr.Error.Details["password"], "This password is entirely numeric.")
	})

	t.Run("rejects taken email and code name", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "bond@mi6.gov", "James Bond", "007", testutil.TestPassword)

		rec := env.do(t, http.MethodPost, "/auth/register/", "", map[string]string{
			"email":     "bond@MI6.gov",
			"code_name": "007",
			"password":  "anotherGoodSecret",
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		apiErr := testutil.ParseError(t, rec)
		assert.Equal(t, []string{"A user with that email already exists."}, apiErr.Error.Details["email"])
		assert.Equal(t, []string{"A user with that code name already exists."}, apiErr.Error.Details["code_name"])
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, http.MethodPost, "/auth/register/", "", `{"email": `)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "validation_error", testutil.ParseError(t, rec).Error.Code)
	})

	t.Run("rejects a password bcrypt cannot hash", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, http.MethodPost, "/auth/register/", "", map[string]string{
			"email":     "bond@mi6.gov",
			"code_name": "007",
			"password":  strings.Repeat("x9", 40),
		})

		require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		apiErr := testutil.ParseError(t, rec)
		assert.Equal(t, "validation_error", apiErr.Error.Code)
		assert.Equal(t, []string{"This password is too long. It must contain at most 72 bytes."}, apiErr.Error.Details["password"])
	})

	t.Run("rejects an oversized body", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, http.MethodPost, "/auth/register/", "", map[string]string{
			"email":    "bond@mi6.gov",
			"name":     strings.Repeat("a", utils.MaxBodyBytes),
			"password": testutil.TestPassword,
		})

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, utils.CodeTooLarge, testutil.ParseError(t, rec).Error.Code)
	})
}

func TestLogin(t *testing.T) {
	t.Run("by code name sets the refresh cookie only", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "bond@mi6.gov", "James Bond", "007", testutil.TestPassword)

		rec := env.do(t, http.MethodPost, "/auth/login/", "", map[string]string{
			"code_name": "007",
			"password":  testutil.TestPassword,
		})

		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]interface{}
		testutil.ParseJSONResponse(t, rec, &body)
		assert.NotEmpty(t, body["access"])
		assert.NotContains(t, body, "refresh")
		user := body["user"].(map[string]interface{})
		assert.Equal(t, "007", user["code_name"])
		assert.Equal(t, "bond@mi6.gov", user["email"])
		assert.NotContains(t, user, "password")

		cookie := testutil.AssertCookie(t, rec, utils.RefreshCookieName)
		require.NotNil(t, cookie)
		assert.True(t, cookie.HttpOnly)
		assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
		assert.Positive(t, cookie.MaxAge)
		assert.NotContains(t, rec.Body.String(), cookie.Value)
	})

	t.Run("by email", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "bond@mi6.gov", "James Bond", "007", testutil.TestPassword)

		rec := env.do(t, http.MethodPost, "/auth/login/", "", map[string]string{
			"email":    "bond@mi6.gov",
			"password": testutil.TestPassword,
		})

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("wrong password and unknown user look the same", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "bond@mi6.gov", "James Bond", "007", testutil.TestPassword)

		wrong := env.do(t, http.MethodPost, "/auth/login/", "", map[string]string{
			"code_name": "007",
			"password":  "shakenAndStirred",
		})
		unknown := env.do(t, http.MethodPost, "/auth/login/", "", map[string]string{
			"code_name": "006",
			"password":  testutil.TestPassword,
		})

		for _, rec := range []*httptest.ResponseRecorder{wrong, unknown} {
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			apiErr := testutil.ParseError(t, rec)
			assert.Equal(t, "authentication_failed", apiErr.Error.Code)
			assert.Equal(t, "No active account found with the given credentials", apiErr.Error.Message)
			assert.Nil(t, testutil.FindCookie(rec, utils.RefreshCookieName))
		}
	})

	t.Run("inactive user is denied", func(t *testing.T) {
		env := newTestEnv(t)
		s := env.agent(t, "007")
		env.store.DeactivateUser(uuid.MustParse(s.userID))

		rec := env.do(t, http.MethodPost, "/auth/login/", "", map[string]string{
			"code_name": "007",
			"password":  testutil.TestPassword,
		})

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("blank fields", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, http.MethodPost, "/auth/login/", "", map[string]string{})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		apiErr := testutil.ParseError(t, rec)
		assert.ElementsMatch(t, []string{"code_name", "password"}, keys(apiErr.Error.Details))
	})

	t.Run("token failure is a server error", func(t *testing.T) {
		users := new(MockUserService)
		tokens := new(MockJWTService)
		user := testutil.TestUser()
		users.On("Authenticate", mock.Anything, mock.Anything).Return(user, nil)
		tokens.On("Obtain", mock.Anything, user, mock.Anything, mock.Anything).Return(nil, errors.New("redis: connection refused"))

		handler := NewAuthHandler(users, tokens, nil, utils.CookieOptions{})
		req := testutil.MakeRequest(t, http.MethodPost, "/auth/login/", map[string]string{
			"code_name": "007",
			"password":  testutil.TestPassword,
		})
		rec := testutil.Serve(http.HandlerFunc(handler.Login), req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "internal_error", testutil.ParseError(t, rec).Error.Code)
		assert.Nil(t, testutil.FindCookie(rec, utils.RefreshCookieName))
		users.AssertExpectations(t)
		tokens.AssertExpectations(t)
	})
}

func TestRefresh(t *testing.T) {
	t.Run("rotates the cookie", func(t *testing.T) {
		env := newTestEnv(t)
		s := env.agent(t, "007")

		rec := env.do(t, http.MethodPost, "/auth/refresh/", "", nil, s.refresh)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var body map[string]string
		testutil.ParseJSONResponse(t, rec, &body)
		assert.NotEmpty(t, body["access"])
		assert.NotContains(t, body, "refresh")

		rotated := testutil.AssertCookie(t, rec, utils.RefreshCookieName)
		require.NotNil(t, rotated)
		assert.NotEqual(t, s.refresh.Value, rotated.Value)

		me := env.do(t, http.MethodGet, "/auth/current_user/", body["access"], nil)
		assert.Equal(t, http.StatusOK, me.Code)

		again := env.do(t, http.MethodPost, "/auth/refresh/", "", nil, rotated)
		assert.Equal(t, http.StatusOK, again.Code)
	})

	t.Run("a rotated token cannot be reused", func(t *testing.T) {
		env := newTestEnv(t)
		s := env.agent(t, "007")

		first := env.do(t, http.MethodPost, "/auth/refresh/", "", nil, s.refresh)
		require.Equal(t, http.StatusOK, first.Code)

		replay := env.do(t, http.MethodPost, "/auth/refresh/", "", nil, s.refresh)

		assert.Equal(t, http.StatusUnauthorized, replay.Code)
		assert.Equal(t, "authentication_failed", testutil.ParseError(t, replay).Error.Code)
		cleared := testutil.AssertCookie(t, replay, utils.RefreshCookieName)
		require.NotNil(t, cleared)
		assert.Negative(t, cleared.MaxAge)
	})

	t.Run("without rotation the cookie is kept", func(t *testing.T) {
		env := newTestEnv(t, withoutRotation())
		s := env.agent(t, "007")

		for i := 0; i < 2; i++ {
			rec := env.do(t, http.MethodPost, "/auth/refresh/", "", nil, s.refresh)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Nil(t, testutil.FindCookie(rec, utils.RefreshCookieName))
		}
	})

	t.Run("missing cookie", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, http.MethodPost, "/auth/refresh/", "", nil)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "not_authenticated", testutil.ParseError(t, rec).Error.Code)
	})

	t.Run("refresh token in the body is ignored", func(t *testing.T) {
		env := newTestEnv(t)
		s := env.agent(t, "007")

		rec := env.do(t, http.MethodPost, "/auth/refresh/", "", map[string]string{"refresh": s.refresh.Value})

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("access token is not a refresh token", func(t *testing.T) {
		env := newTestEnv(t)
		s := env.agent(t, "007")

		rec := env.do(t, http.MethodPost, "/auth/refresh/", "", nil,
			&http.Cookie{Name: utils.RefreshCookieName, Value: s.access})

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestLogout(t *testing.T) {
	t.Run("revokes the refresh token and deletes the cookie", func(t *testing.T) {
		env := newTestEnv(t)
		s := env.agent(t, "007")

		rec := env.do(t, http.MethodPost, "/auth/logout/", s.access, nil, s.refresh)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Body.String())
		cleared := testutil.AssertCookie(t, rec, utils.RefreshCookieName)
		require.NotNil(t, cleared)
		assert.Negative(t, cleared.MaxAge)
		assert.Empty(t, cleared.Value)

		refresh := env.do(t, http.MethodPost, "/auth/refresh/", "", nil, s.refresh)
		assert.Equal(t, http.StatusUnauthorized, refresh.Code)
	})

	t.Run("without a cookie", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, http.MethodPost, "/auth/logout/", "", nil)

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("twice", func(t *testing.T) {
		env := newTestEnv(t)
		s := env.agent(t, "007")

		assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodPost, "/auth/logout/", "", nil, s.refresh).Code)
		assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodPost, "/auth/logout/", "", nil, s.refresh).Code)
	})

	t.Run("blacklists the bearer access token", func(t *testing.T) {
		env := newTestEnv(t)
		s := env.agent(t, "007")
		other := env.login(t, "007", testutil.TestPassword)

		rec := env.do(t, http.MethodPost, "/auth/logout/", s.access, nil, s.refresh)
		require.Equal(t, http.StatusNoContent, rec.Code)

		assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/auth/current_user/", s.access, nil).Code)
		assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/auth/current_user/", other.access, nil).Code)
	})
}

func TestDeactivatedAccount(t *testing.T) {
	env := newTestEnv(t)
	s := env.agent(t, "007")
	env.store.DeactivateUser(uuid.MustParse(s.userID))

	t.Run("cannot refresh", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/auth/refresh/", "", nil, s.refresh)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("access token stops working", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/pings/", s.access, map[string]float64{
			"latitude":  51.5074,
			"longitude": -0.1278,
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Zero(t, env.store.PingCount())
	})

	t.Run("cannot log in", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/auth/login/", "", map[string]string{
			"code_name": "007",
			"password":  testutil.TestPassword,
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestCurrentUser(t *testing.T) {
	t.Run("returns the public profile", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "bond@mi6.gov", "James Bond", "007", testutil.TestPassword)
		s := env.login(t, "007", testutil.TestPassword)

		rec := env.do(t, http.MethodGet, "/auth/current_user/", s.access, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var user models.PublicUser
		testutil.ParseJSONResponse(t, rec, &user)
		assert.Equal(t, s.userID, user.ID.String())
		assert.Equal(t, "James Bond", user.Name)
		assert.Equal(t, "007", user.CodeName)
	})

	t.Run("requires a bearer token", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, http.MethodGet, "/auth/current_user/", "", nil)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		apiErr := testutil.ParseError(t, rec)
		assert.Equal(t, "not_authenticated", apiErr.Error.Code)
		assert.Equal(t, "Authentication credentials were not provided.", apiErr.Error.Message)
	})

	t.Run("deleted account", func(t *testing.T) {
		env := newTestEnv(t)
		s := env.agent(t, "007")
		env.store.DeleteUser(uuid.MustParse(s.userID))

		rec := env.do(t, http.MethodGet, "/auth/current_user/", s.access, nil)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestSessions(t *testing.T) {
	t.Run("lists sessions and marks the current one", func(t *testing.T) {
		env := newTestEnv(t)
		env.agent(t, "007")
		phone := env.login(t, "007", testutil.TestPassword)

		rec := env.do(t, http.MethodGet, "/auth/sessions/", phone.access, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Sessions []sessionResponse `json:"sessions"`
		}
		testutil.ParseJSONResponse(t, rec, &body)
		require.Len(t, body.Sessions, 2)

		current := 0
		for _, s := range body.Sessions {
			if s.IsCurrent {
				current++
			}
			assert.True(t, s.ExpiresAt.After(s.CreatedAt))
		}
		assert.Equal(t, 1, current)
	})

	t.Run("revoking a session ends its refresh token", func(t *testing.T) {
		env := newTestEnv(t)
		laptop := env.agent(t, "007")
		phone := env.login(t, "007", testutil.TestPassword)

		laptopSession := sessionOf(t, env, laptop)
		rec := env.do(t, http.MethodDelete, "/auth/sessions/"+laptopSession+"/", phone.access, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		refresh := env.do(t, http.MethodPost, "/auth/refresh/", "", nil, laptop.refresh)
		assert.Equal(t, http.StatusUnauthorized, refresh.Code)

		refresh = env.do(t, http.MethodPost, "/auth/refresh/", "", nil, phone.refresh)
		assert.Equal(t, http.StatusOK, refresh.Code)
	})

	t.Run("another user's session is not found", func(t *testing.T) {
		env := newTestEnv(t)
		bond := env.agent(t, "007")
		q := env.agent(t, "Q")

		rec := env.do(t, http.MethodDelete, "/auth/sessions/"+sessionOf(t, env, bond)+"/", q.access, nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not_found", testutil.ParseError(t, rec).Error.Code)
	})

	t.Run("revoke others keeps the current session", func(t *testing.T) {
		env := newTestEnv(t)
		first := env.agent(t, "007")
		second := env.login(t, "007", testutil.TestPassword)
		current := env.login(t, "007", testutil.TestPassword)

		rec := env.do(t, http.MethodPost, "/auth/sessions/revoke-others/", current.access, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			RevokedCount int `json:"revoked_count"`
		}
		testutil.ParseJSONResponse(t, rec, &body)
		assert.Equal(t, 2, body.RevokedCount)

		for _, s := range []session{first, second} {
			assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, "/auth/refresh/", "", nil, s.refresh).Code)
		}
		assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/auth/refresh/", "", nil, current.refresh).Code)
	})
}

func TestAuthRateLimit(t *testing.T) {
	env := newTestEnv(t, withRateLimit(2))

	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodPost, "/auth/login/", "", map[string]string{"code_name": "007", "password": "x"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/auth/login/", "", map[string]string{"code_name": "007", "password": "x"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", testutil.ParseError(t, rec).Error.Code)

	// Other endpoints have their own budget.
	rec = env.do(t, http.MethodPost, "/auth/refresh/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	t.Run("forwarding headers are ignored by default", func(t *testing.T) {
		rec := loginFrom(t, env, "203.0.113.77")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})

	t.Run("behind a trusted proxy each forwarded client has a budget", func(t *testing.T) {
		env := newTestEnv(t, withRateLimit(1), withTrustedProxy())

		assert.Equal(t, http.StatusUnauthorized, loginFrom(t, env, "203.0.113.1").Code)
		assert.Equal(t, http.StatusTooManyRequests, loginFrom(t, env, "203.0.113.1").Code)
		assert.Equal(t, http.StatusUnauthorized, loginFrom(t, env, "203.0.113.2").Code)
	})
}

// loginFrom sends a failing login that claims to be forwarded for ip.
func loginFrom(t *testing.T, env *testEnv, ip string) *httptest.ResponseRecorder {
	t.Helper()

	req := testutil.MakeRequest(t, http.MethodPost, "/auth/login/", map[string]string{"code_name": "007", "password": "x"})
	req.Header.Set("X-Forwarded-For", ip)
	return testutil.Serve(env.router, req)
}

// sessionOf returns the session id of a logged-in client.
func sessionOf(t *testing.T, env *testEnv, s session) string {
	t.Helper()

	claims, err := env.jwt.ValidateAccessToken(context.Background(), s.access)
	require.NoError(t, err)
	return claims.SessionID
}

func keys(m map[string][]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
