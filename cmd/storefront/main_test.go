package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/fjod/go_cart/storefront/internal/api/apitest"
	"github.com/fjod/go_cart/storefront/internal/domain"
)

type harness struct {
	t       *testing.T
	backend *apitest.Server
	codes   []int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend := apitest.NewServer()
	t.Cleanup(backend.Close)
	backend.AddAccount(apitest.Account{User: domain.User{ID: "u1", Name: "Mia", Email: "mia@example.com"}, Password: "pw"})
	backend.AddCatalog(domain.CatalogEntity{ID: "v1", Kind: domain.ItemTypeVenue, Name: "Lake Hall", Price: 500})

	t.Setenv("STOREFRONT_API_BASE_URL", backend.URL)
	t.Setenv("STOREFRONT_TOKEN_FILE", filepath.Join(t.TempDir(), "token"))
	t.Setenv("STOREFRONT_LOG_LEVEL", "error")

	h := &harness{t: t, backend: backend}
	prev := cli.OsExiter
	cli.OsExiter = func(code int) { h.codes = append(h.codes, code) }
	t.Cleanup(func() { cli.OsExiter = prev })
	return h
}

// run executes one CLI invocation, as a separate process would.
func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	app := newCLI()
	app.Writer = &out
	app.ErrWriter = &errOut
	argv := append([]string{"storefront", "--env-file", filepath.Join(h.t.TempDir(), "missing.env")}, args...)
	err := app.RunContext(context.Background(), argv)
	return out.String(), err
}

func TestCLI_ShoppingFlow(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("login", "--email", "mia@example.com", "--password", "pw")
	require.NoError(t, err)
	assert.Contains(t, out, "signed in as mia@example.com")

	out, err = h.run("whoami")
	require.NoError(t, err, "session is restored from the token file")
	var user domain.User
	require.NoError(t, json.Unmarshal([]byte(out), &user))
	assert.Equal(t, "Mia", user.Name)

	out, err = h.run("cart", "add", "venues", "v1", "--from", "2026-10-01", "--till", "2026-10-02")
	require.NoError(t, err)
	assert.Contains(t, out, "1 item(s), total 500.00")

	out, err = h.run("cart", "qty", "venue:v1", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "3 item(s), total 1500.00")

	out, err = h.run("checkout")
	require.NoError(t, err)
	var order domain.Order
	require.NoError(t, json.Unmarshal([]byte(out), &order))
	assert.Equal(t, domain.OrderStatusDraft, order.Status)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "2026-10-01", order.Items[0].BookedFrom)

	h.backend.SetOrderStatus(order.ID, domain.OrderStatusConfirmed)
	_, err = h.run("finalize", order.ID)
	require.NoError(t, err)
	assert.Empty(t, h.backend.Cart("mia@example.com"))

	out, err = h.run("logout")
	require.NoError(t, err)
	assert.Contains(t, out, "signed out")

	_, err = h.run("cart", "show")
	require.Error(t, err)
	assert.Contains(t, h.codes, 3)
}

func TestCLI_LoginFailureExitCode(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("login", "--email", "mia@example.com", "--password", "nope")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "Invalid email or password"))
	assert.Equal(t, []int{1}, h.codes)
}

func TestCLI_CatalogSearch(t *testing.T) {
	h := newHarness(t)
	out, err := h.run("catalog", "search", "lake")
	require.NoError(t, err)
	var found map[string][]domain.CatalogEntity
	require.NoError(t, json.Unmarshal([]byte(out), &found))
	assert.Len(t, found["venue"], 1)
}
