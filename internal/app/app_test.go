package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"rpworld/backend/internal/app"
	"rpworld/backend/internal/apperr"
	"rpworld/backend/internal/config"
	"rpworld/backend/internal/models"
	"rpworld/backend/internal/permission"
	"rpworld/backend/internal/session"
	"rpworld/backend/internal/storage/storagetest"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newApp(t *testing.T) *app.App {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := storagetest.New(t)
	cfg := &config.Config{RuntimeSecret: "test", PayrollInterval: config.DefaultPayrollInterval}

	a, err := app.New(cfg, store.DB, nil, nil, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, a.Load(context.Background()))
	return a
}

func TestApp_CommandRoundTrip(t *testing.T) {
	a := newApp(t)
	ctx := context.Background()

	anna, err := a.Sessions.Login(ctx, "anna", "Anna_Lee")
	require.NoError(t, err)
	_, err = a.Sessions.Login(ctx, "bob", "Bob_Smith")
	require.NoError(t, err)

	r := a.Commands.Execute(ctx, anna.ID, "/pay Bob_Smith 100")
	require.Equal(t, session.StyleSuccess, r.Style, r.Text)

	r = a.Commands.Execute(ctx, anna.ID, "/balance")
	assert.Equal(t, "Cash: $4900, bank: $0.", r.Text)
}

func TestApp_BannedCharacterCannotLogIn(t *testing.T) {
	a := newApp(t)
	ctx := context.Background()

	staff, err := a.Sessions.Login(ctx, "staff", "Sam_Admin")
	require.NoError(t, err)
	require.NoError(t, a.Permissions.SetLevel(ctx, staff.ID, 3, permission.Ladder(3), 0))
	bob, err := a.Sessions.Login(ctx, "bob", "Bob_Smith")
	require.NoError(t, err)

	_, err = a.Moderation.Ban(ctx, staff.ID, bob.ID, "cheating", 0)
	require.NoError(t, err)

	_, online := a.Sessions.Get(bob.ID)
	assert.False(t, online, "ban disconnects the target")

	_, err = a.Sessions.Login(ctx, "bob", "Bob_Smith")
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
	assert.Contains(t, apperr.UserMessage(err), "cheating")
}

func TestApp_LoadSurvivesMissingGrants(t *testing.T) {
	a := newApp(t)
	ctx := context.Background()

	staff, err := a.Sessions.Login(ctx, "staff", "Sam_Admin")
	require.NoError(t, err)
	require.NoError(t, a.Permissions.SetLevel(ctx, staff.ID, 10, permission.Ladder(10), 0))
	require.True(t, a.Permissions.HasPermission(staff.ID, permission.Ban))

	require.NoError(t, a.Store.DB.Migrator().DropTable(&models.AdminGrant{}))

	require.NoError(t, a.Load(ctx))
	assert.False(t, a.Permissions.HasPermission(staff.ID, permission.Ban))
	assert.Equal(t, 0, a.Permissions.Level(staff.ID))
}

func TestApp_Router(t *testing.T) {
	a := newApp(t)
	r := a.Router()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
