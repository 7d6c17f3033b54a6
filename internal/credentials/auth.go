package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wolfeidau/backoffice/internal/models"
)

// AuthState is the persisted subset of a session.
type AuthState struct {
	AccessToken  string
	RefreshToken string
	RestaurantID string
	User         *models.User
	Language     string
}

// LoadAuth reads the persisted session keys. Missing keys yield empty fields;
// any other read or decode failure is returned.
func LoadAuth(ctx context.Context, s Store) (AuthState, error) {
	var state AuthState
	var err error

	if state.AccessToken, err = getOptional(ctx, s, KeyAccessToken); err != nil {
		return AuthState{}, err
	}
	if state.RefreshToken, err = getOptional(ctx, s, KeyRefreshToken); err != nil {
		return AuthState{}, err
	}
	if state.RestaurantID, err = getOptional(ctx, s, KeyRestaurantID); err != nil {
		return AuthState{}, err
	}
	if state.Language, err = getOptional(ctx, s, KeyLanguage); err != nil {
		return AuthState{}, err
	}

	raw, err := getOptional(ctx, s, KeyUser)
	if err != nil {
		return AuthState{}, err
	}
	if raw != "" {
		var user models.User
		if err := json.Unmarshal([]byte(raw), &user); err != nil {
			return AuthState{}, fmt.Errorf("%w: corrupt %s: %v", ErrStorage, KeyUser, err)
		}
		state.User = &user
	}

	return state, nil
}

// SaveAuth persists the session keys. Empty token fields remove their key.
func SaveAuth(ctx context.Context, s Store, state AuthState) error {
	if err := setOrDelete(ctx, s, KeyAccessToken, state.AccessToken); err != nil {
		return err
	}
	if err := setOrDelete(ctx, s, KeyRefreshToken, state.RefreshToken); err != nil {
		return err
	}
	if err := setOrDelete(ctx, s, KeyRestaurantID, state.RestaurantID); err != nil {
		return err
	}
	return SaveUser(ctx, s, state.User)
}

// SaveUser persists the JSON-encoded user record.
func SaveUser(ctx context.Context, s Store, user *models.User) error {
	if user == nil {
		return s.Delete(ctx, KeyUser)
	}

	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	return s.Set(ctx, KeyUser, string(data))
}

// ClearAuth removes every session key. The language preference is kept.
func ClearAuth(ctx context.Context, s Store) error {
	return s.Delete(ctx, AuthKeys...)
}

func getOptional(ctx context.Context, s Store, key string) (string, error) {
	v, err := s.Get(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return "", nil
	}
	return v, err
}

func setOrDelete(ctx context.Context, s Store, key, value string) error {
	if value == "" {
		return s.Delete(ctx, key)
	}
	return s.Set(ctx, key, value)
}
