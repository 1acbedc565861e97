package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ieraasyl/PingService/internal/database"
	"github.com/ieraasyl/PingService/internal/testutil"
	"github.com/ieraasyl/PingService/pkg/cache"
	"github.com/ieraasyl/PingService/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func setupUserService(t *testing.T) (*UserService, *testutil.Store) {
	t.Helper()

	mr, cleanup := testutil.SetupMiniRedis(t)
	t.Cleanup(cleanup)

	store := testutil.NewStore()
	userCache := cache.NewUserCache(cache.NewCache(testutil.NewTestRedisClient(t, mr)), store, time.Minute)

	svc, err := NewUserService(store, userCache, NewPasswordPolicy(8, bcrypt.MinCost))
	require.NoError(t, err)
	return svc, store
}

func validationDetails(t *testing.T, err error) utils.FieldErrors {
	t.Helper()

	var apiErr *utils.APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
	require.Equal(t, utils.CodeValidation, apiErr.Code)
	return apiErr.Details
}

func bondInput() RegisterInput {
	return RegisterInput{
		Email:    "bond@mi6.gov",
		Password: testutil.TestPassword,
		Name:     "James Bond",
		CodeName: "007",
	}
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("creates an active non-staff user", func(t *testing.T) {
		svc, _ := setupUserService(t)

		user, err := svc.Register(ctx, bondInput())
		require.NoError(t, err)
		assert.Equal(t, "bond@mi6.gov", user.Email)
		assert.Equal(t, "007", user.CodeName)
		assert.True(t, user.IsActive)
		assert.False(t, user.IsStaff)
		assert.False(t, user.IsSuperuser)
		assert.NotEqual(t, testutil.TestPassword, user.PasswordHash)
	})

	t.Run("name and code name are optional", func(t *testing.T) {
		svc, _ := setupUserService(t)

		user, err := svc.Register(ctx, RegisterInput{Email: "q@mi6.gov", Password: "gadgets4days"})
		require.NoError(t, err)
		assert.Empty(t, user.CodeName)

		_, err = svc.Register(ctx, RegisterInput{Email: "r@mi6.gov", Password: "gadgets4days"})
		assert.NoError(t, err, "two users without a code name must not collide")
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		svc, _ := setupUserService(t)
		_, err := svc.Register(ctx, bondInput())
		require.NoError(t, err)

		in := bondInput()
		in.CodeName = "008"
		_, err = svc.Register(ctx, in)
		details := validationDetails(t, err)
		assert.Equal(t, []string{database.MsgEmailTaken}, details["email"])
	})

	t.Run("rejects duplicate code name", func(t *testing.T) {
		svc, _ := setupUserService(t)
		_, err := svc.Register(ctx, bondInput())
		require.NoError(t, err)

		in := bondInput()
		in.Email = "james@mi6.gov"
		_, err = svc.Register(ctx, in)
		details := validationDetails(t, err)
		assert.Equal(t, []string{database.MsgCodeNameTaken}, details["code_name"])
	})

	t.Run("enumerates every invalid field", func(t *testing.T) {
		svc, _ := setupUserService(t)

		_, err := svc.Register(ctx, RegisterInput{
			Email:    "not-an-email",
			Password: "123",
			Name:     "R2-D2",
			CodeName: "double o",
		})
		details := validationDetails(t, err)
		assert.Equal(t, []string{"code_name", "email", "name", "password"}, details.Fields())
		assert.Contains(t, details["password"], "This password is entirely numeric.")
	})

	t.Run("requires email and password", func(t *testing.T) {
		svc, _ := setupUserService(t)

		_, err := svc.Register(ctx, RegisterInput{})
		details := validationDetails(t, err)
		assert.Equal(t, []string{"email", "password"}, details.Fields())
		assert.Equal(t, []string{"This field may not be blank."}, details["email"])
	})

	t.Run("rejects password similar to the user", func(t *testing.T) {
		svc, _ := setupUserService(t)

		in := bondInput()
		in.Email = "moneypenny@mi6.gov"
		in.Password = "moneypenny1"
		_, err := svc.Register(ctx, in)
		details := validationDetails(t, err)
		assert.Contains(t, details["password"], "The password is too similar to the email address.")
	})
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc, store := setupUserService(t)

	bond, err := svc.Register(ctx, bondInput())
	require.NoError(t, err)

	t.Run("by code name", func(t *testing.T) {
		user, err := svc.Authenticate(ctx, LoginInput{CodeName: "007", Password: testutil.TestPassword})
		require.NoError(t, err)
		assert.Equal(t, bond.ID, user.ID)
	})

	t.Run("by email with mixed case domain", func(t *testing.T) {
		user, err := svc.Authenticate(ctx, LoginInput{Email: "bond@MI6.gov", Password: testutil.TestPassword})
		require.NoError(t, err)
		assert.Equal(t, bond.ID, user.ID)
	})

	t.Run("failures are indistinguishable", func(t *testing.T) {
		inputs := []LoginInput{
			{CodeName: "007", Password: "wrong-password"},
			{CodeName: "009", Password: testutil.TestPassword},
			{Password: testutil.TestPassword},
		}
		for _, in := range inputs {
			_, err := svc.Authenticate(ctx, in)
			assert.Equal(t, utils.ErrAuthenticationFailed, err)
		}
	})

	t.Run("inactive user is denied", func(t *testing.T) {
		store.DeactivateUser(bond.ID)
		_, err := svc.Authenticate(ctx, LoginInput{CodeName: "007", Password: testutil.TestPassword})
		assert.Equal(t, utils.ErrAuthenticationFailed, err)
	})
}

func TestCurrent(t *testing.T) {
	ctx := context.Background()
	svc, store := setupUserService(t)

	bond, err := svc.Register(ctx, bondInput())
	require.NoError(t, err)

	profile, err := svc.Current(ctx, bond.ID)
	require.NoError(t, err)
	assert.Equal(t, bond.ID, profile.ID)
	assert.Equal(t, "James Bond", profile.Name)
	assert.Equal(t, "007", profile.CodeName)

	t.Run("served from cache", func(t *testing.T) {
		store.DeleteUser(bond.ID)

		cached, err := svc.Current(ctx, bond.ID)
		require.NoError(t, err)
		assert.Equal(t, bond.Email, cached.Email)
	})
}

func TestCreateSuperuser(t *testing.T) {
	svc, _ := setupUserService(t)

	m, err := svc.CreateSuperuser(context.Background(), RegisterInput{
		Email:    "m@mi6.gov",
		Password: "topSecretM",
		CodeName: "M",
	})
	require.NoError(t, err)
	assert.True(t, m.IsStaff)
	assert.True(t, m.IsSuperuser)
	assert.True(t, m.IsActive)
}

func TestCreateUserSkipsPasswordPolicy(t *testing.T) {
	svc, _ := setupUserService(t)
	ctx := context.Background()

	in := RegisterInput{
		Email:    "moneypenny@mi6.gov",
		Name:     "Eve Moneypenny",
		Password: "moneypennySecure",
		CodeName: "MONEYPENNY",
	}

	_, err := svc.Register(ctx, in)
	require.Error(t, err, "too similar to the code name for self-registration")

	user, err := svc.CreateUser(ctx, in)
	require.NoError(t, err)
	assert.False(t, user.IsStaff)

	_, err = svc.CreateUser(ctx, RegisterInput{Email: "bad", Password: "x"})
	var apiErr *utils.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Details, "email")
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "Bond@mi6.gov", NormalizeEmail("  Bond@MI6.GOV "))
	assert.Equal(t, "no-at-sign", NormalizeEmail("no-at-sign"))
}
