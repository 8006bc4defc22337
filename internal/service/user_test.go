package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/promptlab/promptlab/internal/db/dbtest"
	"github.com/promptlab/promptlab/internal/model"
	"github.com/promptlab/promptlab/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureUser_CreatesOnFirstSight(t *testing.T) {
	conn := dbtest.New(t)
	users := NewUserService(repository.NewUserRepository(conn), "ru")

	user, err := users.EnsureUser(&Identity{UserID: "web-1", Email: " Ada@Example.com ", Name: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.EmailAddress())
	assert.Equal(t, "ru", user.Locale)

	again, err := users.EnsureUser(&Identity{UserID: "web-1"})
	require.NoError(t, err)
	assert.Equal(t, "Ada", again.Name)

	// The email is already taken by web-1, so the second account goes without.
	other, err := users.EnsureUser(&Identity{UserID: "web-2", Email: "ada@example.com"})
	require.NoError(t, err)
	assert.Empty(t, other.EmailAddress())
}

func TestEnsureExternal(t *testing.T) {
	conn := dbtest.New(t)
	users := NewUserService(repository.NewUserRepository(conn), "en")

	first, err := users.EnsureExternal("tg:42", "Bot User")
	require.NoError(t, err)

	second, err := users.EnsureExternal("tg:42", "Renamed")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = users.EnsureExternal(" ", "")
	assert.True(t, IsKind(err, KindInvalidRequest))
}

func TestAuthService(t *testing.T) {
	auth := NewAuthService("secret", "bot-secret", time.Hour, false)

	token, err := auth.GenerateJWT(&model.User{ID: "u1"})
	require.NoError(t, err)

	identity, err := auth.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", identity.UserID)

	other := NewAuthService("other-secret", "", time.Hour, false)
	_, err = other.Authenticate(token)
	assert.Error(t, err)

	subOnly, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u2",
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	identity, err = auth.Authenticate(subOnly)
	require.NoError(t, err)
	assert.Equal(t, "u2", identity.UserID)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "u3",
		"exp":     time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = auth.Authenticate(expired)
	assert.Error(t, err)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = auth.Authenticate(noUser)
	assert.ErrorIs(t, err, ErrMissingUserID)

	assert.NoError(t, auth.VerifyBotToken("bot-secret"))
	assert.ErrorIs(t, auth.VerifyBotToken("nope"), ErrInvalidBotToken)
	assert.ErrorIs(t, other.VerifyBotToken("anything"), ErrBotDisabled)
}
