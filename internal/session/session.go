// Package session holds the logged-in credential and keeps it in sync with
// persisted storage.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/rickgao/quotedesk/internal/api"
	"github.com/rickgao/quotedesk/internal/model"
	"github.com/rickgao/quotedesk/internal/storage"
)

// ReasonAuthFailed is reported when the server gives no usable reason.
const ReasonAuthFailed = "Authentication failed"

// Authenticator performs the login exchange. *api.Client satisfies it.
type Authenticator interface {
	Login(ctx context.Context, req api.LoginRequest) (*api.LoginResponse, error)
}

// AuthError is returned by Login when no credential was obtained.
type AuthError struct {
	Reason string // server-reported result, or ReasonAuthFailed
	Err    error  // underlying transport/decode error, if any
}

func (e *AuthError) Error() string {
	return e.Reason
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Store owns the current credential.
type Store struct {
	auth   Authenticator
	kv     storage.Store
	logger *slog.Logger

	mu      sync.RWMutex
	cred    *model.Credential
	loading bool
}

// New creates a session store. It reports Loading until Restore has run.
func New(auth Authenticator, kv storage.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		auth:    auth,
		kv:      kv,
		logger:  logger,
		loading: true,
	}
}

// Restore seeds the in-memory credential from storage. A credential is
// restored only when both token and expiry are present.
func (s *Store) Restore(ctx context.Context) (model.Credential, bool) {
	defer s.setLoading(false)

	token, okToken, err := s.kv.Get(ctx, storage.KeyToken)
	if err != nil {
		s.logger.Warn("failed to read stored token", "error", err)
		return model.Credential{}, false
	}
	expiry, okExpiry, err := s.kv.Get(ctx, storage.KeyTokenExpire)
	if err != nil {
		s.logger.Warn("failed to read stored token expiry", "error", err)
		return model.Credential{}, false
	}
	if !okToken || !okExpiry || token == "" || expiry == "" {
		return model.Credential{}, false
	}

	secondary, _, err := s.kv.Get(ctx, storage.KeySecondaryToken)
	if err != nil {
		s.logger.Warn("failed to read stored secondary token", "error", err)
		secondary = ""
	}

	cred := model.Credential{Token: token, Expiry: expiry, SecondaryToken: secondary}

	s.mu.Lock()
	s.cred = &cred
	s.mu.Unlock()

	s.logger.Info("session restored", "expires", expiry, "has_secondary", secondary != "")
	return cred, true
}

// Login exchanges identifier and secret for a credential, then stores and
// persists it. Failures are *AuthError.
func (s *Store) Login(ctx context.Context, identifier, secret string) (model.Credential, error) {
	s.setLoading(true)
	defer s.setLoading(false)

	resp, err := s.auth.Login(ctx, api.LoginRequest{
		Email:     identifier,
		Password:  secret,
		WantToken: true,
	})
	if err != nil {
		authErr := &AuthError{Reason: reasonFor(err), Err: err}
		s.logger.Warn("login failed", "reason", authErr.Reason, "error", err)
		return model.Credential{}, authErr
	}
	if !resp.OK() {
		reason := resp.Result
		if reason == "" || reason == "OK" {
			reason = ReasonAuthFailed
		}
		s.logger.Warn("login rejected", "reason", reason)
		return model.Credential{}, &AuthError{Reason: reason}
	}

	cred := model.Credential{
		Token:          resp.AcsToken,
		Expiry:         resp.AcsTokenExpire,
		SecondaryToken: resp.UtipToken,
	}

	s.mu.Lock()
	s.cred = &cred
	s.mu.Unlock()

	if err := s.persist(ctx, cred); err != nil {
		s.logger.Error("failed to persist credential", "error", err)
	}

	s.logger.Info("logged in", "expires", cred.Expiry, "has_secondary", cred.SecondaryToken != "")
	return cred, nil
}

func (s *Store) persist(ctx context.Context, cred model.Credential) error {
	errs := []error{
		s.kv.Set(ctx, storage.KeyToken, cred.Token),
		s.kv.Set(ctx, storage.KeyTokenExpire, cred.Expiry),
	}
	if cred.SecondaryToken != "" {
		errs = append(errs, s.kv.Set(ctx, storage.KeySecondaryToken, cred.SecondaryToken))
	} else {
		// A stale secondary token from an earlier session must not outlive this login.
		errs = append(errs, s.kv.Delete(ctx, storage.KeySecondaryToken))
	}
	return errors.Join(errs...)
}

// Logout clears the credential and every credential-scoped cache. The
// in-memory credential is cleared even when storage fails.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.cred = nil
	s.mu.Unlock()

	if err := s.kv.Delete(ctx, storage.SessionKeys...); err != nil {
		s.logger.Error("failed to clear session storage", "error", err)
		return err
	}

	s.logger.Info("logged out")
	return nil
}

// Credential returns the current credential, if any.
func (s *Store) Credential() (model.Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return model.Credential{}, false
	}
	return *s.cred, true
}

// Loading reports whether a restore or login is in progress.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *Store) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

func reasonFor(err error) string {
	var apiErr *api.APIError
	switch {
	case errors.As(err, &apiErr):
		if r := apiErr.Result(); r != "" {
			return r
		}
		return ReasonAuthFailed
	case errors.Is(err, api.ErrMalformedResponse):
		return ReasonAuthFailed
	default:
		return err.Error()
	}
}
