package utils

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"fleetserver/broker"
	"fleetserver/connection"
)

type fakePurger struct {
	before time.Time
	n      int64
	err    error
}

func (f *fakePurger) PurgeClosed(_ context.Context, before time.Time) (int64, error) {
	f.before = before
	return f.n, f.err
}

func TestPurgeClosed(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	cutoff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	p := &fakePurger{n: 4}
	purgeClosed(context.Background(), p, cutoff, zap.New(core))
	assert.Equal(t, cutoff, p.before)
	done := logs.FilterMessage("クローズ済みの部屋の削除完了").All()
	require.Len(t, done, 1)
	assert.EqualValues(t, 4, done[0].ContextMap()["rooms_deleted"])

	purgeClosed(context.Background(), &fakePurger{err: errors.New("db down")}, cutoff, zap.New(core))
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestReportGauges(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	b := broker.New(zap.NewNop())
	conn, other := net.Pipe()
	defer conn.Close()
	defer other.Close()
	require.NoError(t, b.Registry().Create("Alpha", broker.NewPeer("h", connection.NewLineConn(conn))))

	reportGauges(b, zap.New(core))
	entries := logs.FilterMessage("ブローカーの状態").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.EqualValues(t, 1, fields["rooms"])
	assert.EqualValues(t, 1, fields["open_rooms"])
	assert.EqualValues(t, 0, fields["connections"])
}

func TestCronCleaner(t *testing.T) {
	c, err := CronCleaner(broker.New(zap.NewNop()), &fakePurger{}, time.Hour, zap.NewNop())
	require.NoError(t, err)
	defer c.Stop()
	assert.Len(t, c.Entries(), 2)

	c2, err := CronCleaner(broker.New(zap.NewNop()), nil, time.Hour, zap.NewNop())
	require.NoError(t, err)
	defer c2.Stop()
	assert.Len(t, c2.Entries(), 1)
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	r.Use(RequestLogger(zap.New(core)))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusTeapot, "pong") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "/ping", entries[0].ContextMap()["path"])
	assert.EqualValues(t, http.StatusTeapot, entries[0].ContextMap()["status"])
}
