package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TokenStore persists the session token between invocations.
type TokenStore struct {
	path string
}

func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

func (s *TokenStore) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *TokenStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

func (s *TokenStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}

// Session tracks the authenticated identity for a local client. It is passed
// down explicitly rather than held as ambient global state.
type Session struct {
	api   *Client
	store *TokenStore
	token string
	user  *User
}

func NewSession(api *Client, store *TokenStore) *Session {
	return &Session{api: api, store: store}
}

// Restore revalidates a previously persisted token against the server. A
// rejected token is cleared so the session fails closed.
func (s *Session) Restore(ctx context.Context) (*User, error) {
	token, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, nil
	}

	user, err := s.api.Me(ctx, token)
	if err != nil {
		var apiErr APIError
		if errors.As(err, &apiErr) {
			_ = s.store.Clear()
			return nil, nil
		}
		return nil, err
	}

	s.token = token
	s.user = &user
	return s.user, nil
}

// Login authenticates against the server and persists the returned token.
// Server rejections are surfaced verbatim; nothing is retried.
func (s *Session) Login(ctx context.Context, email, password string) (*User, error) {
	result, err := s.api.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(result.Token); err != nil {
		return nil, err
	}

	user, err := s.api.Me(ctx, result.Token)
	if err != nil {
		return nil, err
	}

	s.token = result.Token
	s.user = &user
	return s.user, nil
}

// Logout clears the persisted token and local identity unconditionally.
func (s *Session) Logout() error {
	s.token = ""
	s.user = nil
	return s.store.Clear()
}

func (s *Session) Authenticated() bool {
	return s.token != ""
}

func (s *Session) Token() string {
	return s.token
}

func (s *Session) User() *User {
	return s.user
}
