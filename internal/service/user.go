package service

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/promptlab/promptlab/internal/model"
	"github.com/promptlab/promptlab/internal/repository"
	"github.com/promptlab/promptlab/internal/validation"
)

type UserService struct {
	userRepository repository.UserRepository
	defaultLocale  string
}

func NewUserService(userRepository repository.UserRepository, defaultLocale string) *UserService {
	return &UserService{
		userRepository: userRepository,
		defaultLocale:  defaultLocale,
	}
}

// EnsureUser returns the user behind a verified web identity, creating the
// local row on first sight.
func (s *UserService) EnsureUser(identity *Identity) (*model.User, error) {
	user, err := s.userRepository.ByID(identity.UserID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user = &model.User{
		ID:        identity.UserID,
		Name:      identity.Name,
		Locale:    s.defaultLocale,
		CreatedAt: time.Now().UTC(),
	}
	email := strings.TrimSpace(strings.ToLower(identity.Email))
	if email != "" && validation.ValidateEmail(email) == nil {
		user.Email = &email
	}

	err = s.userRepository.Create(user)
	if errors.Is(err, repository.ErrDuplicateEmail) {
		// Another request created the row first, or the email belongs to an
		// older account. Either way the id lookup decides.
		if existing, lookupErr := s.userRepository.ByID(identity.UserID); lookupErr == nil {
			return existing, nil
		}
		user.Email = nil
		err = s.userRepository.Create(user)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user created", "user_id", user.ID, "source", "web")
	return user, nil
}

// EnsureExternal maps a chat-bot platform identity to a local user.
func (s *UserService) EnsureExternal(externalID, name string) (*model.User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, invalid("error.invalid_request", errors.New("external user id is required"))
	}

	user, err := s.userRepository.ByExternalID(externalID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user = &model.User{
		ID:         uuid.New().String(),
		ExternalID: &externalID,
		Name:       name,
		Locale:     s.defaultLocale,
		CreatedAt:  time.Now().UTC(),
	}
	err = s.userRepository.Create(user)
	if errors.Is(err, repository.ErrDuplicateEmail) {
		return s.userRepository.ByExternalID(externalID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user created", "user_id", user.ID, "source", "bot")
	return user, nil
}
