package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/ravikeerthi7606/edustream/internal/models"
)

// Well-known keys under which the signed-in state is persisted.
const (
	UserKey  = "lms_user"
	TokenKey = "lms_token"
)

var (
	// ErrInvalidIdentity indicates an identity without an id or with a role outside the closed set.
	ErrInvalidIdentity = errors.New("session: invalid identity")
	// ErrEmptyCredential indicates an attempt to save an identity without a bearer token.
	ErrEmptyCredential = errors.New("session: empty credential")
)

// Store persists the signed-in identity together with its bearer credential.
// Load never fails: missing, partial or malformed state is reported as absent.
type Store interface {
	Save(ctx context.Context, identity models.Identity, credential string) error
	Load(ctx context.Context) (models.Identity, string, bool)
	Clear(ctx context.Context) error
}

// Backend is the key-value persistence underneath a Store. WriteAll replaces
// every key atomically; ReadAll returns whatever keys are present.
type Backend interface {
	ReadAll(ctx context.Context) (map[string]string, error)
	WriteAll(ctx context.Context, values map[string]string) error
	DeleteAll(ctx context.Context) error
}

// KVStore implements Store on top of a key-value Backend.
type KVStore struct {
	backend Backend
	logger  *slog.Logger
}

// New returns a Store that encodes the session into the backend's two well-known keys.
func New(backend Backend, logger *slog.Logger) *KVStore {
	if backend == nil {
		panic("session: backend must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KVStore{backend: backend, logger: logger.With(slog.String("component", "session_store"))}
}

// Save persists identity and credential as a single write.
func (s *KVStore) Save(ctx context.Context, identity models.Identity, credential string) error {
	if !identity.Valid() {
		return ErrInvalidIdentity
	}
	if strings.TrimSpace(credential) == "" {
		return ErrEmptyCredential
	}

	encoded, err := json.Marshal(identity)
	if err != nil {
		return err
	}

	return s.backend.WriteAll(ctx, map[string]string{
		UserKey:  string(encoded),
		TokenKey: credential,
	})
}

// Load returns the last saved pair. Anything short of a complete, decodable
// pair is cleared and reported as absent.
func (s *KVStore) Load(ctx context.Context) (models.Identity, string, bool) {
	values, err := s.backend.ReadAll(ctx)
	if err != nil {
		s.logger.Warn("read session state failed", "error", err)
		s.discard(ctx)
		return models.Identity{}, "", false
	}
	if len(values) == 0 {
		return models.Identity{}, "", false
	}

	rawUser, hasUser := values[UserKey]
	token, hasToken := values[TokenKey]
	if !hasUser || !hasToken || strings.TrimSpace(token) == "" {
		s.logger.Warn("discarding partial session state", "hasUser", hasUser, "hasToken", hasToken)
		s.discard(ctx)
		return models.Identity{}, "", false
	}

	var identity models.Identity
	if err := json.Unmarshal([]byte(rawUser), &identity); err != nil || !identity.Valid() {
		s.logger.Warn("discarding malformed session identity", "error", err)
		s.discard(ctx)
		return models.Identity{}, "", false
	}

	return identity, token, true
}

// Clear removes both keys.
func (s *KVStore) Clear(ctx context.Context) error {
	return s.backend.DeleteAll(ctx)
}

// Credential returns the stored bearer token when a complete session exists.
func (s *KVStore) Credential(ctx context.Context) (string, bool) {
	_, token, ok := s.Load(ctx)
	return token, ok
}

func (s *KVStore) discard(ctx context.Context) {
	if err := s.backend.DeleteAll(ctx); err != nil {
		s.logger.Warn("clear session state failed", "error", err)
	}
}
