package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/api"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logger"
)

// API is the part of the transport the session needs.
type API interface {
	Get(ctx context.Context, path string, out any, opts ...api.RequestOption) error
	Post(ctx context.Context, path string, body, out any, opts ...api.RequestOption) error
}

// Listener is called after every session change with the new state.
type Listener func(ctx context.Context, s domain.Session)

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithOAuth configures the Google sign-in redirect flow.
func WithOAuth(apiBaseURL, redirectURL string) Option {
	return func(m *Manager) {
		m.apiBaseURL = strings.TrimRight(apiBaseURL, "/")
		m.oauthRedirect = redirectURL
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager owns the process-wide authentication state. It is the only thing
// allowed to change it.
type Manager struct {
	api           API
	store         TokenStore
	logger        *slog.Logger
	apiBaseURL    string
	oauthRedirect string
	now           func() time.Time

	mu        sync.RWMutex
	state     domain.Session
	listeners []Listener
}

func NewManager(client API, store TokenStore, opts ...Option) *Manager {
	if store == nil {
		store = &MemoryStore{}
	}
	m := &Manager{
		api:    client,
		store:  store,
		logger: logger.Nop(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Token implements api.Authenticator.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.AccessToken
}

// Current returns a copy of the session.
func (m *Manager) Current() domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := domain.Session{AccessToken: m.state.AccessToken}
	if m.state.User != nil {
		u := *m.state.User
		s.User = &u
	}
	return s
}

func (m *Manager) IsAuthenticated() bool {
	return m.Token() != ""
}

func (m *Manager) OnChange(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

type credentialsReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupReq struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type authResp struct {
	Token       string       `json:"token"`
	AccessToken string       `json:"accessToken"`
	User        *domain.User `json:"user"`
}

func (r authResp) token() string {
	if r.Token != "" {
		return r.Token
	}
	return r.AccessToken
}

func (m *Manager) Login(ctx context.Context, email, password string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, &domain.ValidationError{Field: "credentials", Reason: "email and password are required"}
	}

	var resp authResp
	if err := m.api.Post(ctx, "/api/auth/login", credentialsReq{Email: email, Password: password}, &resp, api.WithoutAuth()); err != nil {
		return nil, authError(err)
	}
	return m.establish(ctx, resp)
}

func (m *Manager) Signup(ctx context.Context, name, email, password, confirmPassword string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	switch {
	case strings.TrimSpace(name) == "":
		return nil, &domain.ValidationError{Field: "name", Reason: "required"}
	case email == "":
		return nil, &domain.ValidationError{Field: "email", Reason: "required"}
	case password == "":
		return nil, &domain.ValidationError{Field: "password", Reason: "required"}
	case password != confirmPassword:
		return nil, &domain.ValidationError{Field: "confirmPassword", Reason: "passwords do not match"}
	}

	req := signupReq{Name: strings.TrimSpace(name), Email: email, Password: password, ConfirmPassword: confirmPassword}
	var resp authResp
	if err := m.api.Post(ctx, "/api/auth/signup", req, &resp, api.WithoutAuth()); err != nil {
		return nil, authError(err)
	}
	return m.establish(ctx, resp)
}

// Logout always succeeds. The backend is told on a best-effort basis.
func (m *Manager) Logout(ctx context.Context) {
	old := m.Token()
	m.set(ctx, "", nil)
	if old == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := m.api.Post(ctx, "/api/auth/logout", nil, nil, api.WithoutAuth(), api.WithHeader("Authorization", "Bearer "+old)); err != nil {
		logger.FromContext(ctx, m.logger).DebugContext(ctx, "server logout failed", "error", err)
	}
}

// Invalidate implements api.Authenticator: the backend rejected the token.
func (m *Manager) Invalidate(ctx context.Context) {
	if !m.IsAuthenticated() {
		return
	}
	logger.FromContext(ctx, m.logger).WarnContext(ctx, "session invalidated by backend")
	m.set(ctx, "", nil)
}

// RefreshAuth adopts a token handed over by an external identity provider
// round trip and loads the identity behind it.
func (m *Manager) RefreshAuth(ctx context.Context, token string) (*domain.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, &domain.ValidationError{Field: "token", Reason: "required"}
	}
	if expired(token, m.now()) {
		m.set(ctx, "", nil)
		return nil, domain.ErrUnauthenticated
	}
	user, err := m.fetchIdentity(ctx, token)
	if err != nil {
		m.set(ctx, "", nil)
		return nil, err
	}
	m.set(ctx, token, user)
	return copyUser(user), nil
}

// Restore re-validates a persisted token on startup. It reports whether a
// session was established. A transport failure keeps the stored token for
// the next attempt.
func (m *Manager) Restore(ctx context.Context) (bool, error) {
	token, err := m.store.Load(ctx)
	if err != nil {
		return false, err
	}
	if token == "" {
		return false, nil
	}
	log := logger.FromContext(ctx, m.logger)
	if expired(token, m.now()) {
		log.InfoContext(ctx, "stored token expired")
		if err := m.store.Clear(ctx); err != nil {
			log.WarnContext(ctx, "clear token store failed", "error", err)
		}
		return false, nil
	}
	user, err := m.fetchIdentity(ctx, token)
	if errors.Is(err, domain.ErrUnauthenticated) {
		if err := m.store.Clear(ctx); err != nil {
			log.WarnContext(ctx, "clear token store failed", "error", err)
		}
		return false, nil
	}
	if err != nil {
		return false, err
	}
	m.set(ctx, token, user)
	return true, nil
}

func (m *Manager) SendVerificationMail(ctx context.Context) error {
	if !m.IsAuthenticated() {
		return domain.ErrUnauthenticated
	}
	return m.api.Post(ctx, "/api/auth/send-verification", nil, nil)
}

func (m *Manager) VerifyMail(ctx context.Context, otp string) error {
	otp = strings.TrimSpace(otp)
	if otp == "" {
		return &domain.ValidationError{Field: "otp", Reason: "required"}
	}
	if !m.IsAuthenticated() {
		return domain.ErrUnauthenticated
	}
	if err := m.api.Post(ctx, "/api/auth/verify-email", map[string]string{"otp": otp}, nil); err != nil {
		return err
	}

	m.mu.Lock()
	if m.state.User == nil {
		m.mu.Unlock()
		return domain.ErrUnauthenticated
	}
	u := *m.state.User
	u.Verified = true
	m.state.User = &u
	m.mu.Unlock()
	m.notify(ctx)
	return nil
}

func (m *Manager) ForgotPassword(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return &domain.ValidationError{Field: "email", Reason: "required"}
	}
	return m.api.Post(ctx, "/api/auth/forgot-password", map[string]string{"email": email}, nil, api.WithoutAuth())
}

func (m *Manager) ResetPassword(ctx context.Context, resetToken, password, confirmPassword string) error {
	if err := checkNewPassword(password, confirmPassword); err != nil {
		return err
	}
	body := map[string]string{"token": resetToken, "password": password}
	return m.api.Post(ctx, "/api/auth/reset-password", body, nil, api.WithoutAuth())
}

func (m *Manager) ChangePassword(ctx context.Context, current, next, confirm string) error {
	if current == "" {
		return &domain.ValidationError{Field: "currentPassword", Reason: "required"}
	}
	if err := checkNewPassword(next, confirm); err != nil {
		return err
	}
	if !m.IsAuthenticated() {
		return domain.ErrUnauthenticated
	}
	body := map[string]string{"currentPassword": current, "newPassword": next}
	return m.api.Post(ctx, "/api/auth/change-password", body, nil)
}

// GoogleLoginURL is where the UI sends the user to start Google sign-in.
// The provider redirects back to the configured URL with ?token=...
func (m *Manager) GoogleLoginURL() (string, error) {
	if m.apiBaseURL == "" {
		return "", &domain.ValidationError{Field: "oauth", Reason: "not configured"}
	}
	u, err := url.Parse(m.apiBaseURL + "/api/auth/google")
	if err != nil {
		return "", err
	}
	if m.oauthRedirect != "" {
		q := u.Query()
		q.Set("redirect", m.oauthRedirect)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// TokenFromCallback extracts the token from an OAuth redirect URL.
func TokenFromCallback(callback string) (string, error) {
	u, err := url.Parse(callback)
	if err != nil {
		return "", &domain.ValidationError{Field: "callback", Reason: "malformed URL"}
	}
	if msg := u.Query().Get("error"); msg != "" {
		return "", &domain.AuthError{Reason: domain.AuthRejected, Message: msg}
	}
	token := u.Query().Get("token")
	if token == "" {
		return "", &domain.ValidationError{Field: "callback", Reason: "no token in URL"}
	}
	return token, nil
}

func (m *Manager) establish(ctx context.Context, resp authResp) (*domain.User, error) {
	token := resp.token()
	if token == "" {
		return nil, &domain.ServerRejectedError{StatusCode: http.StatusBadGateway, Message: "login response carried no token"}
	}
	user := resp.User
	if user == nil {
		var err error
		if user, err = m.fetchIdentity(ctx, token); err != nil {
			return nil, err
		}
	}
	m.set(ctx, token, user)
	return copyUser(user), nil
}

func (m *Manager) fetchIdentity(ctx context.Context, token string) (*domain.User, error) {
	var user domain.User
	err := m.api.Get(ctx, "/api/auth/me", &user, api.WithoutAuth(), api.WithHeader("Authorization", "Bearer "+token))
	if err != nil {
		var rejected *domain.ServerRejectedError
		if errors.As(err, &rejected) && rejected.StatusCode == http.StatusUnauthorized {
			return nil, domain.ErrUnauthenticated
		}
		return nil, err
	}
	if user.ID == "" {
		if c, ok := parseClaims(token); ok {
			user.ID = c.Subject
			if user.Role == "" {
				user.Role = domain.Role(c.Role)
			}
		}
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	return &user, nil
}

// set replaces the state, persists the token and notifies listeners.
func (m *Manager) set(ctx context.Context, token string, user *domain.User) {
	if token == "" || user == nil {
		token, user = "", nil
	}
	m.mu.Lock()
	m.state = domain.Session{AccessToken: token, User: copyUser(user)}
	m.mu.Unlock()

	log := logger.FromContext(ctx, m.logger)
	if token == "" {
		if err := m.store.Clear(ctx); err != nil {
			log.WarnContext(ctx, "clear token store failed", "error", err)
		}
	} else if err := m.store.Save(ctx, token); err != nil {
		log.WarnContext(ctx, "persist token failed", "error", err)
	}
	m.notify(ctx)
}

func (m *Manager) notify(ctx context.Context) {
	m.mu.RLock()
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.RUnlock()
	current := m.Current()
	for _, l := range listeners {
		l(ctx, current)
	}
}

func authError(err error) error {
	var (
		rejected  *domain.ServerRejectedError
		transport *domain.TransportError
	)
	switch {
	case errors.As(err, &rejected):
		return &domain.AuthError{Reason: authReason(rejected.StatusCode, rejected.Code), Message: rejected.Message}
	case errors.As(err, &transport):
		// a bare status without a message still tells the reasons apart
		switch transport.StatusCode {
		case http.StatusUnauthorized, http.StatusLocked, http.StatusForbidden:
			return &domain.AuthError{Reason: authReason(transport.StatusCode, "")}
		}
	}
	return err
}

func authReason(status int, code string) domain.AuthReason {
	switch {
	case status == http.StatusUnauthorized || strings.EqualFold(code, "INVALID_CREDENTIALS"):
		return domain.AuthInvalidCredentials
	case status == http.StatusLocked || strings.EqualFold(code, "ACCOUNT_LOCKED"):
		return domain.AuthAccountLocked
	case status == http.StatusForbidden || strings.EqualFold(code, "EMAIL_NOT_VERIFIED"):
		return domain.AuthEmailUnverified
	}
	return domain.AuthRejected
}

func checkNewPassword(password, confirm string) error {
	if password == "" {
		return &domain.ValidationError{Field: "password", Reason: "required"}
	}
	if password != confirm {
		return &domain.ValidationError{Field: "confirmPassword", Reason: "passwords do not match"}
	}
	return nil
}

func copyUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
