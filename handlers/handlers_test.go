package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fleetserver/auth"
	"fleetserver/broker"
	"fleetserver/connection"
	"fleetserver/models"
	"fleetserver/protocol"
)

var secret = []byte("handler-secret")

type fakeAudit struct {
	records []models.RoomRecord
	err     error
	limit   int
}

func (f *fakeAudit) Recent(_ context.Context, limit int) ([]models.RoomRecord, error) {
	f.limit = limit
	return f.records, f.err
}

func newServer(t *testing.T, audit AuditReader) (*broker.Broker, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	b := broker.New(zap.NewNop())
	router := NewRouter(b, RouterConfig{Audit: audit, JWTSecret: secret}, zap.NewNop())
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return b, srv
}

func getJSON(t *testing.T, url, token string, out interface{}) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func dialManager(t *testing.T, srv *httptest.Server) *connection.Manager {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := connection.DialWebSocket(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws")
	require.NoError(t, err)
	m := connection.NewManager(conn, protocol.Relayed, zap.NewNop())
	t.Cleanup(func() { m.Close() })
	return m
}

func TestRoomsOverWebSocket(t *testing.T) {
	b, srv := newServer(t, nil)

	var health struct {
		Status string `json:"status"`
		Rooms  int    `json:"rooms"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/healthz", "", &health))
	assert.Equal(t, "ok", health.Status)
	assert.Zero(t, health.Rooms)

	host := dialManager(t, srv)
	require.NoError(t, host.CreateRoom("Alpha"))

	var rooms struct {
		Rooms []string `json:"rooms"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/rooms", "", &rooms))
	assert.Equal(t, []string{"Alpha"}, rooms.Rooms)

	guest := dialManager(t, srv)
	require.NoError(t, guest.JoinRoom("Alpha"))
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/rooms", "", &rooms))
	assert.Empty(t, rooms.Rooms)
	assert.Equal(t, 2, b.Connections())
}

func TestAdminRooms(t *testing.T) {
	audit := &fakeAudit{records: []models.RoomRecord{{Name: "Alpha", State: models.RoomClosed}}}
	_, srv := newServer(t, audit)

	assert.Equal(t, http.StatusUnauthorized, getJSON(t, srv.URL+"/admin/rooms", "", nil))

	token, err := auth.GenerateToken(secret, "ops", time.Hour)
	require.NoError(t, err)

	var body struct {
		Operator string              `json:"operator"`
		Rooms    []broker.RoomInfo   `json:"rooms"`
		Audit    []models.RoomRecord `json:"audit"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/admin/rooms?limit=5", token, &body))
	assert.Equal(t, "ops", body.Operator)
	assert.Empty(t, body.Rooms)
	require.Len(t, body.Audit, 1)
	assert.Equal(t, "Alpha", body.Audit[0].Name)
	assert.Equal(t, 5, audit.limit)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/admin/rooms?limit=x", token, nil))

	audit.err = errors.New("db down")
	assert.Equal(t, http.StatusInternalServerError, getJSON(t, srv.URL+"/admin/rooms", token, nil))
}
