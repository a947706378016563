package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ravikeerthi7606/edustream/internal/api"
	"github.com/ravikeerthi7606/edustream/internal/logging"
	"github.com/ravikeerthi7606/edustream/internal/models"
	"github.com/ravikeerthi7606/edustream/internal/session"
)

var (
	// ErrInvalidRole indicates a role outside the platform's closed set.
	ErrInvalidRole = errors.New("auth: role must be student or teacher")
	// ErrInvalidIdentity indicates the server returned a user that cannot be stored.
	ErrInvalidIdentity = errors.New("auth: server returned an invalid identity")
	// ErrMissingCredential indicates the server accepted the request but issued no token.
	ErrMissingCredential = errors.New("auth: server returned no access token")
	// ErrNotSignedIn indicates an operation that requires a stored session.
	ErrNotSignedIn = errors.New("auth: not signed in")
)

// Gateway is the subset of the API client used by Session.
type Gateway interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Post(ctx context.Context, path string, body, out any) error
}

// Session signs users in and out and keeps the session store current.
type Session struct {
	gateway Gateway
	store   session.Store
	logger  *slog.Logger
}

// NewSession wires the auth flows to the gateway and the session store.
func NewSession(gateway Gateway, store session.Store, logger *slog.Logger) *Session {
	if gateway == nil {
		panic("auth: gateway must not be nil")
	}
	if store == nil {
		panic("auth: session store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{gateway: gateway, store: store, logger: logger.With(slog.String("component", "auth_session"))}
}

type loginRequest struct {
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
}

type registerRequest struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
}

// Login authenticates with email, password and role and stores the result.
func (s *Session) Login(ctx context.Context, email, password string, role models.Role) (identity models.Identity, err error) {
	if !role.Valid() {
		return models.Identity{}, ErrInvalidRole
	}

	ctx, span := s.startSpan(ctx, "auth.login", slog.String("role", string(role)))
	defer func() {
		span.Fail(err)
		span.End()
	}()

	req := loginRequest{Email: strings.TrimSpace(email), Password: password, Role: role}
	return s.authenticate(ctx, "/auth/login", req)
}

// Register creates an account and signs it in.
func (s *Session) Register(ctx context.Context, name, email, password string, role models.Role) (identity models.Identity, err error) {
	if !role.Valid() {
		return models.Identity{}, ErrInvalidRole
	}

	ctx, span := s.startSpan(ctx, "auth.register", slog.String("role", string(role)))
	defer func() {
		span.Fail(err)
		span.End()
	}()

	req := registerRequest{Name: strings.TrimSpace(name), Email: strings.TrimSpace(email), Password: password, Role: role}
	return s.authenticate(ctx, "/auth/register", req)
}

// Logout forgets the stored session. It never fails; storage errors are logged.
func (s *Session) Logout(ctx context.Context) {
	if err := s.store.Clear(ctx); err != nil {
		s.logger.Warn("clear session failed", slog.String("error", err.Error()))
	}
}

// Current returns the signed-in identity, if any.
func (s *Session) Current(ctx context.Context) (models.Identity, bool) {
	identity, _, ok := s.store.Load(ctx)
	return identity, ok
}

// Refresh re-reads the signed-in identity from the server and stores it with
// the existing credential. A rejected credential signs the user out.
func (s *Session) Refresh(ctx context.Context) (identity models.Identity, err error) {
	_, credential, ok := s.store.Load(ctx)
	if !ok {
		return models.Identity{}, ErrNotSignedIn
	}

	ctx, span := s.startSpan(ctx, "auth.me")
	defer func() {
		span.Fail(err)
		span.End()
	}()

	if err := s.gateway.Get(ctx, "/auth/me", nil, &identity); err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			s.Logout(ctx)
		}
		return models.Identity{}, err
	}
	if !identity.Valid() {
		return models.Identity{}, ErrInvalidIdentity
	}
	if err := s.store.Save(ctx, identity, credential); err != nil {
		return models.Identity{}, fmt.Errorf("save session: %w", err)
	}
	return identity, nil
}

func (s *Session) authenticate(ctx context.Context, path string, body any) (models.Identity, error) {
	var resp models.AuthResponse
	if err := s.gateway.Post(ctx, path, body, &resp); err != nil {
		return models.Identity{}, err
	}
	if strings.TrimSpace(resp.AccessToken) == "" {
		return models.Identity{}, ErrMissingCredential
	}
	if !resp.User.Valid() {
		return models.Identity{}, ErrInvalidIdentity
	}

	if err := s.store.Save(ctx, resp.User, resp.AccessToken); err != nil {
		return models.Identity{}, fmt.Errorf("save session: %w", err)
	}

	logging.FromContext(ctx).Info("signed in", slog.String("user_id", resp.User.ID))
	return resp.User, nil
}

func (s *Session) startSpan(ctx context.Context, name string, attrs ...slog.Attr) (context.Context, *logging.Span) {
	if logging.FromContext(ctx) == slog.Default() {
		ctx = logging.WithLogger(ctx, s.logger)
	}
	return logging.StartSpan(ctx, name, attrs...)
}
