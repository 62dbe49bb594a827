package session

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_cart/storefront/internal/api"
	"github.com/fjod/go_cart/storefront/internal/api/apitest"
	"github.com/fjod/go_cart/storefront/internal/domain"
)

var alice = apitest.Account{
	User:     domain.User{ID: "u-alice", Name: "Alice", Email: "alice@example.com", Role: domain.RoleUser},
	Password: "secret",
}

type fixture struct {
	srv     *apitest.Server
	client  *api.Client
	store   *MemoryStore
	manager *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddAccount(alice)

	client, err := api.NewClient(api.Options{BaseURL: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	store := &MemoryStore{}
	m := NewManager(client, store, WithOAuth(srv.URL, "http://localhost:3000/auth/callback"))
	client.SetAuthenticator(m)
	return &fixture{srv: srv, client: client, store: store, manager: m}
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var changes []domain.Session
	f.manager.OnChange(func(_ context.Context, s domain.Session) { changes = append(changes, s) })

	user, err := f.manager.Login(ctx, "  Alice@Example.com ", "secret")
	require.NoError(t, err)
	assert.Equal(t, "u-alice", user.ID)
	assert.True(t, f.manager.IsAuthenticated())

	stored, _ := f.store.Load(ctx)
	assert.Equal(t, f.manager.Token(), stored)

	require.Len(t, changes, 1)
	assert.True(t, changes[0].IsAuthenticated())
	assert.Equal(t, "alice@example.com", changes[0].User.Email)

	req, ok := f.srv.LastRequest(http.MethodPost, "/api/auth/login")
	require.True(t, ok)
	assert.Empty(t, req.Authorization)
}

func TestLogin_FailureReasons(t *testing.T) {
	f := newFixture(t)
	f.srv.AddAccount(apitest.Account{User: domain.User{ID: "u-bob", Email: "bob@example.com"}, Password: "pw", Locked: true})
	f.srv.AddAccount(apitest.Account{User: domain.User{ID: "u-carol", Email: "carol@example.com"}, Password: "pw", RequireVerified: true})

	tests := []struct {
		name    string
		email   string
		pass    string
		reason  domain.AuthReason
		message string
	}{
		{"wrong password", "alice@example.com", "nope", domain.AuthInvalidCredentials, "Invalid email or password"},
		{"unknown account", "who@example.com", "pw", domain.AuthInvalidCredentials, "Invalid email or password"},
		{"locked", "bob@example.com", "pw", domain.AuthAccountLocked, "Account locked after too many attempts"},
		{"unverified", "carol@example.com", "pw", domain.AuthEmailUnverified, "Please verify your email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.manager.Login(context.Background(), tt.email, tt.pass)
			var authErr *domain.AuthError
			require.ErrorAs(t, err, &authErr)
			assert.Equal(t, tt.reason, authErr.Reason)
			assert.Equal(t, tt.message, authErr.Error())
			assert.False(t, f.manager.IsAuthenticated())
		})
	}
}

func TestLogin_BareStatusStillHasReason(t *testing.T) {
	tests := []struct {
		status int
		reason domain.AuthReason
	}{
		{http.StatusUnauthorized, domain.AuthInvalidCredentials},
		{http.StatusLocked, domain.AuthAccountLocked},
		{http.StatusForbidden, domain.AuthEmailUnverified},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			f := newFixture(t)
			f.srv.FailNext(http.MethodPost, "/api/auth/login", tt.status, "")

			_, err := f.manager.Login(context.Background(), alice.User.Email, alice.Password)
			var authErr *domain.AuthError
			require.ErrorAs(t, err, &authErr)
			assert.Equal(t, tt.reason, authErr.Reason)
			assert.NotContains(t, domain.UserMessage(err), "try again")
			assert.False(t, f.manager.IsAuthenticated())
		})
	}

	f := newFixture(t)
	f.srv.FailNext(http.MethodPost, "/api/auth/login", http.StatusBadGateway, "")
	_, err := f.manager.Login(context.Background(), alice.User.Email, alice.Password)
	var transport *domain.TransportError
	require.ErrorAs(t, err, &transport)
}

func TestLogin_EmptyCredentialsNoNetwork(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.Login(context.Background(), "", "secret")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Zero(t, f.srv.CountRequests(http.MethodPost, "/api/auth/login"))
}

func TestSignup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Signup(ctx, "Dan", "dan@example.com", "pw1", "pw2")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "confirmPassword", verr.Field)
	assert.Zero(t, f.srv.CountRequests(http.MethodPost, "/api/auth/signup"))

	user, err := f.manager.Signup(ctx, "Dan", "dan@example.com", "pw1", "pw1")
	require.NoError(t, err)
	assert.Equal(t, "dan@example.com", user.Email)
	assert.True(t, f.manager.IsAuthenticated())

	f.manager.Logout(ctx)
	_, err = f.manager.Signup(ctx, "Dan", "dan@example.com", "pw1", "pw1")
	var authErr *domain.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "Email already registered", authErr.Error())
}

func TestLogout_ClearsEvenWhenServerFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.manager.Login(ctx, alice.User.Email, alice.Password)
	require.NoError(t, err)
	token := f.manager.Token()

	f.srv.FailNext(http.MethodPost, "/api/auth/logout", http.StatusInternalServerError, "")
	f.manager.Logout(ctx)

	assert.False(t, f.manager.IsAuthenticated())
	assert.Nil(t, f.manager.Current().User)
	stored, _ := f.store.Load(ctx)
	assert.Empty(t, stored)

	req, ok := f.srv.LastRequest(http.MethodPost, "/api/auth/logout")
	require.True(t, ok)
	assert.Equal(t, "Bearer "+token, req.Authorization)
}

func TestLogout_WhenLoggedOutIsNoop(t *testing.T) {
	f := newFixture(t)
	f.manager.Logout(context.Background())
	assert.Zero(t, f.srv.CountRequests(http.MethodPost, "/api/auth/logout"))
}

func TestInvalidate_OnBackend401(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.manager.Login(ctx, alice.User.Email, alice.Password)
	require.NoError(t, err)

	f.srv.RevokeTokens()
	err = f.manager.SendVerificationMail(ctx)
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
	assert.False(t, f.manager.IsAuthenticated())
}

func TestRefreshAuth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := f.srv.IssueToken(alice.User.Email)

	user, err := f.manager.RefreshAuth(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.Name)
	assert.Equal(t, token, f.manager.Token())

	stored, _ := f.store.Load(ctx)
	assert.Equal(t, token, stored)
}

func TestRefreshAuth_InvalidTokenClearsState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.manager.Login(ctx, alice.User.Email, alice.Password)
	require.NoError(t, err)

	_, err = f.manager.RefreshAuth(ctx, "garbage")
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
	assert.False(t, f.manager.IsAuthenticated())
}

func TestRefreshAuth_ExpiredTokenSkipsNetwork(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.RefreshAuth(context.Background(), f.srv.IssueExpiredToken(alice.User.Email))
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
	assert.Zero(t, f.srv.CountRequests(http.MethodGet, "/api/auth/me"))
}

func TestRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.manager.Restore(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "nothing stored")

	require.NoError(t, f.store.Save(ctx, f.srv.IssueToken(alice.User.Email)))
	ok, err = f.manager.Restore(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "u-alice", f.manager.Current().User.ID)
}

func TestRestore_RevokedTokenIsDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Save(ctx, f.srv.IssueToken(alice.User.Email)))
	f.srv.RevokeTokens()

	ok, err := f.manager.Restore(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	stored, _ := f.store.Load(ctx)
	assert.Empty(t, stored)
}

func TestRestore_TransportErrorKeepsToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := f.srv.IssueToken(alice.User.Email)
	require.NoError(t, f.store.Save(ctx, token))
	f.srv.FailNext(http.MethodGet, "/api/auth/me", http.StatusBadGateway, "")

	ok, err := f.manager.Restore(ctx)
	var terr *domain.TransportError
	require.ErrorAs(t, err, &terr)
	assert.False(t, ok)
	stored, _ := f.store.Load(ctx)
	assert.Equal(t, token, stored)
}

func TestVerifyMail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.ErrorIs(t, f.manager.VerifyMail(ctx, "123456"), domain.ErrUnauthenticated)

	_, err := f.manager.Login(ctx, alice.User.Email, alice.Password)
	require.NoError(t, err)
	require.NoError(t, f.manager.SendVerificationMail(ctx))

	err = f.manager.VerifyMail(ctx, "000000")
	var rejected *domain.ServerRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "Invalid or expired code", rejected.Message)
	assert.False(t, f.manager.Current().User.Verified)

	require.NoError(t, f.manager.VerifyMail(ctx, "123456"))
	assert.True(t, f.manager.Current().User.Verified)
}

func TestPasswordFlows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.manager.ForgotPassword(ctx, alice.User.Email))

	err := f.manager.ResetPassword(ctx, "reset-ok", "a", "b")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)

	err = f.manager.ResetPassword(ctx, "stale", "new", "new")
	var rejected *domain.ServerRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "Reset link expired", rejected.Message)
	require.NoError(t, f.manager.ResetPassword(ctx, "reset-ok", "new", "new"))

	require.ErrorIs(t, f.manager.ChangePassword(ctx, "secret", "next", "next"), domain.ErrUnauthenticated)
	_, err = f.manager.Login(ctx, alice.User.Email, alice.Password)
	require.NoError(t, err)
	require.NoError(t, f.manager.ChangePassword(ctx, "secret", "next", "next"))

	f.manager.Logout(ctx)
	_, err = f.manager.Login(ctx, alice.User.Email, "next")
	require.NoError(t, err)
}

func TestGoogleLoginURL(t *testing.T) {
	f := newFixture(t)
	u, err := f.manager.GoogleLoginURL()
	require.NoError(t, err)
	assert.Equal(t, f.srv.URL+"/api/auth/google?redirect=http%3A%2F%2Flocalhost%3A3000%2Fauth%2Fcallback", u)

	_, err = NewManager(f.client, nil).GoogleLoginURL()
	require.Error(t, err)
}

func TestTokenFromCallback(t *testing.T) {
	token, err := TokenFromCallback("http://localhost:3000/auth/callback?token=abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	_, err = TokenFromCallback("http://localhost:3000/auth/callback?error=access_denied")
	var authErr *domain.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "access_denied", authErr.Message)

	_, err = TokenFromCallback("http://localhost:3000/auth/callback")
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrUnauthenticated))
}

type failingStore struct{ MemoryStore }

func (*failingStore) Save(context.Context, string) error { return errors.New("disk full") }

func TestLogin_StoreFailureKeepsSession(t *testing.T) {
	f := newFixture(t)
	m := NewManager(f.client, &failingStore{})
	f.client.SetAuthenticator(m)

	_, err := m.Login(context.Background(), alice.User.Email, alice.Password)
	require.NoError(t, err)
	assert.True(t, m.IsAuthenticated())
}
