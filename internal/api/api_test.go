package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-service/internal/auth"
	"notification-service/internal/db"
	"notification-service/internal/hub"
	"notification-service/internal/logging"
	"notification-service/internal/models"
	"notification-service/internal/notification"
)

type fakeStore struct {
	templates     map[string]models.Template
	prefs         map[int]models.Preference
	notifications []models.Notification
	err           error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		templates: map[string]models.Template{},
		prefs:     map[int]models.Preference{},
	}
}

func (f *fakeStore) GetTemplateByName(_ context.Context, name string) (models.Template, error) {
	if f.err != nil {
		return models.Template{}, f.err
	}
	t, ok := f.templates[name]
	if !ok {
		return models.Template{}, db.ErrTemplateNotFound
	}
	return t, nil
}

func (f *fakeStore) CreateTemplate(_ context.Context, t *models.Template) error {
	if f.err != nil {
		return f.err
	}
	t.ID = len(f.templates) + 1
	f.templates[t.Name] = *t
	return nil
}

func (f *fakeStore) UpdateTemplate(_ context.Context, t *models.Template) error {
	f.templates[t.Name] = *t
	return f.err
}

func (f *fakeStore) DeleteTemplate(_ context.Context, name string) error {
	if _, ok := f.templates[name]; !ok {
		return db.ErrTemplateNotFound
	}
	delete(f.templates, name)
	return nil
}

func (f *fakeStore) ListTemplates(_ context.Context, _, _ int) ([]models.Template, error) {
	out := make([]models.Template, 0, len(f.templates))
	for _, t := range f.templates {
		out = append(out, t)
	}
	return out, f.err
}

func (f *fakeStore) GetPreferenceByUserID(_ context.Context, userID int) (models.Preference, error) {
	if f.err != nil {
		return models.Preference{}, f.err
	}
	p, ok := f.prefs[userID]
	if !ok {
		return models.Preference{}, db.ErrPreferenceNotFound
	}
	return p, nil
}

func (f *fakeStore) UpsertPreference(_ context.Context, p *models.Preference) error {
	f.prefs[p.UserID] = *p
	return f.err
}

func (f *fakeStore) GetNotificationsByRecipient(_ context.Context, recipientID, _, _ int) ([]models.Notification, error) {
	var out []models.Notification
	for _, n := range f.notifications {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	return out, f.err
}

func (f *fakeStore) GetAllNotifications(_ context.Context, _, _ int) ([]models.Notification, error) {
	return f.notifications, f.err
}

type fakeBulker struct {
	req    notification.BulkRequest
	result notification.BulkResult
	err    error
}

func (f *fakeBulker) ProcessBulkNotification(_ context.Context, req notification.BulkRequest) (notification.BulkResult, error) {
	f.req = req
	return f.result, f.err
}

type apiFixture struct {
	router   *gin.Engine
	store    *fakeStore
	bulker   *fakeBulker
	hub      *hub.Hub
	verifier *auth.HMACVerifier
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	verifier, err := auth.NewHMACVerifier("test-secret")
	require.NoError(t, err)

	store := newFakeStore()
	bulker := &fakeBulker{}
	h := hub.New(logging.NewNop(), time.Minute, 10)
	handler := NewHandler(store, bulker, h, logging.NewNop())

	return &apiFixture{
		router:   NewRouter(handler, verifier, "/api/v1"),
		store:    store,
		bulker:   bulker,
		hub:      h,
		verifier: verifier,
	}
}

func (f *apiFixture) token(t *testing.T, userID int, roles ...string) string {
	t.Helper()
	tok, err := f.verifier.SignToken(auth.Identity{UserID: userID, Roles: roles}, time.Minute)
	require.NoError(t, err)
	return tok
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestHealthNeedsNoAuth(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRequired(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/notifications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/notifications", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTokenViaQueryParam(t *testing.T) {
	f := newAPIFixture(t)
	tok := f.token(t, 7)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications?token="+tok, nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetPreferencesDefaultsWhenMissing(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/users/7/preferences", f.token(t, 7), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var pref models.Preference
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pref))
	assert.Equal(t, 7, pref.UserID)
	assert.True(t, pref.EmailEnabled)
	assert.True(t, pref.SSEEnabled)
	assert.True(t, pref.PushEnabled)
}

func TestPreferencesSelfOrAdminOnly(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/users/9/preferences", f.token(t, 7), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/users/9/preferences", f.token(t, 1, "admin"), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPutPreferencesPartialUpdate(t *testing.T) {
	f := newAPIFixture(t)
	disabled := false

	w := f.do(t, http.MethodPut, "/api/v1/users/7/preferences", f.token(t, 7),
		preferenceRequest{EmailEnabled: &disabled})
	require.Equal(t, http.StatusOK, w.Code)

	saved := f.store.prefs[7]
	assert.False(t, saved.EmailEnabled)
	assert.True(t, saved.SSEEnabled, "untouched flag keeps its default")
	assert.True(t, saved.PushEnabled)
}

func TestTemplatesAdminOnly(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/templates", f.token(t, 7), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/templates", f.token(t, 1, "admin"), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTemplateCRUD(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.token(t, 1, "admin")

	w := f.do(t, http.MethodPost, "/api/v1/templates", admin, templateRequest{
		Name:    "welcome_user",
		Subject: "Welcome {{userName}}",
		Body:    "<p>Hello {{userName}}</p>",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/templates/welcome_user", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tmpl models.Template
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tmpl))
	assert.Equal(t, "Welcome {{userName}}", tmpl.Subject)

	w = f.do(t, http.MethodPut, "/api/v1/templates/welcome_user", admin, templateRequest{
		Name: "welcome_user",
		Body: "<p>updated</p>",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<p>updated</p>", f.store.templates["welcome_user"].Body)

	w = f.do(t, http.MethodDelete, "/api/v1/templates/welcome_user", admin, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/templates/welcome_user", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListNotificationsScopedToCaller(t *testing.T) {
	f := newAPIFixture(t)
	f.store.notifications = []models.Notification{
		{ID: 1, RecipientID: 7},
		{ID: 2, RecipientID: 9},
	}

	w := f.do(t, http.MethodGet, "/api/v1/notifications", f.token(t, 7), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var records []models.Notification
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, 7, records[0].RecipientID)

	w = f.do(t, http.MethodGet, "/api/v1/notifications", f.token(t, 1, "admin"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	assert.Len(t, records, 2)

	w = f.do(t, http.MethodGet, "/api/v1/notifications?userId=9", f.token(t, 7), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSendBulk(t *testing.T) {
	f := newAPIFixture(t)
	f.bulker.result = notification.BulkResult{BatchID: "b-1", Total: 3, Success: 2, Failed: 1}

	w := f.do(t, http.MethodPost, "/api/v1/notifications/bulk", f.token(t, 1, "admin"),
		notification.BulkRequest{Type: "assessment.published", UserIDs: []int{1, 2, 3}})
	require.Equal(t, http.StatusOK, w.Code)

	var result notification.BulkResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, "assessment.published", f.bulker.req.Type)

	w = f.do(t, http.MethodPost, "/api/v1/notifications/bulk", f.token(t, 7), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/notifications/bulk", f.token(t, 1, "admin"),
		notification.BulkRequest{Type: "assessment.published"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConnectionStatus(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/ws/status/7", f.token(t, 7), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["connected"])

	w = f.do(t, http.MethodGet, "/api/v1/ws/status/9", f.token(t, 7), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHubStatsAdminOnly(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/ws/stats", f.token(t, 7), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/ws/stats", f.token(t, 1, "admin"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(0), body["activeUsers"])
}
