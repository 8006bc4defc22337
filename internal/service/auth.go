package service

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/promptlab/promptlab/internal/model"
)

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrMissingUserID   = errors.New("token has no user id")
	ErrBotDisabled     = errors.New("bot api token not configured")
	ErrInvalidBotToken = errors.New("invalid bot token")
)

// AuthService verifies tokens issued by the external session provider. It
// never creates sessions itself; GenerateJWT exists for the ops CLI and tests.
type AuthService struct {
	jwtSecret    string
	jwtExpiry    time.Duration
	botToken     string
	isProduction bool
}

func NewAuthService(jwtSecret, botToken string, jwtExpiry time.Duration, isProduction bool) *AuthService {
	return &AuthService{
		jwtSecret:    jwtSecret,
		jwtExpiry:    jwtExpiry,
		botToken:     botToken,
		isProduction: isProduction,
	}
}

func (s *AuthService) GenerateJWT(user *model.User) (string, error) {
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.EmailAddress(),
		"exp":     time.Now().Add(s.jwtExpiry).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func (s *AuthService) VerifyJWT(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// Identity is what a verified token says about its holder.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// Authenticate verifies the token and extracts the user id from the
// "user_id" claim, falling back to "sub".
func (s *AuthService) Authenticate(tokenString string) (*Identity, error) {
	claims, err := s.VerifyJWT(tokenString)
	if err != nil {
		return nil, err
	}

	id := &Identity{}
	id.UserID, _ = claims["user_id"].(string)
	if id.UserID == "" {
		id.UserID, _ = claims["sub"].(string)
	}
	if id.UserID == "" {
		return nil, ErrMissingUserID
	}
	id.Email, _ = claims["email"].(string)
	id.Name, _ = claims["name"].(string)

	return id, nil
}

// VerifyBotToken compares the shared bot secret in constant time.
func (s *AuthService) VerifyBotToken(token string) error {
	if s.botToken == "" {
		return ErrBotDisabled
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.botToken)) != 1 {
		return ErrInvalidBotToken
	}
	return nil
}

func (s *AuthService) ClearJWTCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    "",
		Expires:  time.Unix(0, 0),
		Path:     "/",
		HttpOnly: true,
		Secure:   s.isProduction,
		SameSite: http.SameSiteLaxMode,
	})
}
