package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"attendance_tracker_bot/internal/app"
	"attendance_tracker_bot/internal/app/session"
	"attendance_tracker_bot/internal/domain/batch"
	"attendance_tracker_bot/internal/domain/report"
	"attendance_tracker_bot/internal/infra/logger"
	"attendance_tracker_bot/internal/infra/memstore"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	batches   batch.Repository
	connected map[string]bool
	selectErr error
	digestErr error
	roles     map[string]batch.Role
	settings  [2]bool
}

func (f *fakeSessions) Start(context.Context, string) (session.State, error) {
	return session.StateAwaitingChallenge, nil
}

func (f *fakeSessions) IsConnected(id string) bool { return f.connected[id] }

func (f *fakeSessions) Logout(_ context.Context, id string) error {
	if !f.connected[id] {
		return app.ErrNotConnected
	}
	return nil
}

func (f *fakeSessions) SelectGroup(_ context.Context, id, groupID string) (*batch.Batch, error) {
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	return &batch.Batch{CoordinatorID: id, GroupID: groupID}, nil
}

func (f *fakeSessions) UpdateSettings(_ context.Context, id string, tracking, sharing bool) (*batch.Batch, error) {
	f.settings = [2]bool{tracking, sharing}
	return &batch.Batch{CoordinatorID: id, IsTrackingEnabled: tracking, IsSharingEnabled: sharing}, nil
}

func (f *fakeSessions) SetParticipantRole(_ context.Context, id, pid string, role batch.Role) (*batch.Batch, error) {
	if f.roles == nil {
		f.roles = map[string]batch.Role{}
	}
	f.roles[pid] = role
	return &batch.Batch{CoordinatorID: id}, nil
}

func (f *fakeSessions) SendDigest(context.Context, string) error { return f.digestErr }

func (f *fakeSessions) Batch(ctx context.Context, id string) (*batch.Batch, error) {
	if !f.connected[id] {
		return nil, app.ErrNotConnected
	}
	return f.batches.GetByCoordinator(ctx, id)
}

type nopDashboards struct{}

func (nopDashboards) ServeWS(w http.ResponseWriter, _ *http.Request, _ string) {
	w.WriteHeader(http.StatusTeapot)
}

type testServer struct {
	*Server
	sessions *fakeSessions
	store    *memstore.DB
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	store := memstore.New()
	sessions := &fakeSessions{batches: store.Batches(), connected: map[string]bool{"91": true, "93": true}}
	srv := NewServer(&Options{
		Sessions:   sessions,
		Dashboards: nopDashboards{},
		Reports:    store.Reports(),
		Logger:     logger.Discard(),
	})
	return testServer{Server: srv, sessions: sessions, store: store}
}

func (ts testServer) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/healthz", nil).Code)

	ts.opts.Health = func(context.Context) error { return errors.New("db down") }
	assert.Equal(t, http.StatusServiceUnavailable, ts.do(http.MethodGet, "/healthz", nil).Code)
}

func TestSessionRoutes(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/sessions/91", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), session.StateAwaitingChallenge.String())

	rec = ts.do(http.MethodGet, "/api/sessions/91", nil)
	assert.JSONEq(t, `{"coordinatorId":"91","connected":true}`, rec.Body.String())

	assert.Equal(t, http.StatusAccepted, ts.do(http.MethodDelete, "/api/sessions/91", nil).Code)
	assert.Equal(t, http.StatusPreconditionFailed, ts.do(http.MethodDelete, "/api/sessions/92", nil).Code)
}

func TestSelectGroup(t *testing.T) {
	tests := []struct {
		name     string
		body     interface{}
		err      error
		wantCode int
	}{
		{"ok", groupRequest{GroupID: "120@g.us"}, nil, http.StatusOK},
		{"missing group", groupRequest{}, nil, http.StatusBadRequest},
		{"not a group address", groupRequest{GroupID: "91@s.whatsapp.net"}, nil, http.StatusBadRequest},
		{"conflict", groupRequest{GroupID: "120@g.us"}, batch.ErrGroupConflict, http.StatusConflict},
		{"not connected", groupRequest{GroupID: "120@g.us"}, app.ErrNotConnected, http.StatusPreconditionFailed},
		{"unexpected", groupRequest{GroupID: "120@g.us"}, errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.sessions.selectErr = tt.err
			rec := ts.do(http.MethodPut, "/api/batches/91/group", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}
}

func TestSettingsAndRoles(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPatch, "/api/batches/91/settings", map[string]bool{"isTrackingEnabled": false, "isSharingEnabled": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, [2]bool{false, true}, ts.sessions.settings)

	rec = ts.do(http.MethodPatch, "/api/batches/91/settings", map[string]bool{"isTrackingEnabled": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "isSharingEnabled")

	rec = ts.do(http.MethodPut, "/api/batches/91/participants/912@s.whatsapp.net/role", roleRequest{Role: "trainer"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, batch.RoleTrainer, ts.sessions.roles["912@s.whatsapp.net"])

	rec = ts.do(http.MethodPut, "/api/batches/91/participants/912@s.whatsapp.net/role", roleRequest{Role: "admin"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDigestRoute(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusAccepted, ts.do(http.MethodPost, "/api/batches/91/digest", nil).Code)

	ts.sessions.digestErr = app.ErrNoGroupSelected
	assert.Equal(t, http.StatusPreconditionFailed, ts.do(http.MethodPost, "/api/batches/91/digest", nil).Code)
}

func TestExportRoute(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	b, err := ts.store.Batches().SelectGroup(ctx, "91", batch.GroupSelection{
		GroupID:      "120@g.us",
		BatchName:    "Batch 7",
		Participants: []batch.Participant{{ID: "912@s.whatsapp.net", Name: "Asha", PhoneNumber: "912", Role: batch.RoleStudent}},
	})
	require.NoError(t, err)
	r, err := ts.store.Reports().SetTaskType(ctx, b.ID, "2024-03-01", report.TaskAudio)
	require.NoError(t, err)
	_, _, err = ts.store.Reports().AppendEntry(ctx, r.ID, report.NewEntry{
		ParticipantID: "912@s.whatsapp.net", Name: "Asha", PhoneNumber: "912", StartedAt: time.Now(),
	})
	require.NoError(t, err)

	rec := ts.do(http.MethodGet, "/api/batches/91/reports/2024-03-01/export", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "attendance_2024-03-01.xlsx")
	assert.NotEmpty(t, rec.Body.Bytes())

	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/batches/91/reports/2024-03-02/export", nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/batches/91/reports/yesterday/export", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/batches/93/reports/2024-03-01/export", nil).Code)
}

func TestExportRoute_RequiresLiveSession(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	_, err := ts.store.Batches().SelectGroup(ctx, "77", batch.GroupSelection{GroupID: "130@g.us", BatchName: "Batch 8"})
	require.NoError(t, err)

	rec := ts.do(http.MethodGet, "/api/batches/77/reports/2024-03-01/export", nil)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Empty(t, rec.Header().Get(echo.HeaderContentDisposition))
}

func TestDashboardRoute(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusTeapot, ts.do(http.MethodGet, "/ws/91", nil).Code)
}
