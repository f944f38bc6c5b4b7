package monitoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_TrackOperation(t *testing.T) {
	m := NewMonitor(nil)
	before := testutil.ToFloat64(raceOperations.WithLabelValues("join", "success"))

	m.TrackOperation("join", "success")
	m.TrackOperation("join", "success")

	after := testutil.ToFloat64(raceOperations.WithLabelValues("join", "success"))
	assert.Equal(t, before+2, after)
}

func TestMonitor_TrackCountdownAndStart(t *testing.T) {
	m := NewMonitor(nil)
	autoBefore := testutil.ToFloat64(countdowns.WithLabelValues("auto"))
	startedBefore := testutil.ToFloat64(racesStarted)

	m.TrackCountdown("auto")
	m.TrackRaceStarted()

	assert.Equal(t, autoBefore+1, testutil.ToFloat64(countdowns.WithLabelValues("auto")))
	assert.Equal(t, startedBefore+1, testutil.ToFloat64(racesStarted))
}

func TestMonitor_SetActiveSessions(t *testing.T) {
	m := NewMonitor(nil)

	m.SetActiveSessions(7)

	assert.Equal(t, float64(7), testutil.ToFloat64(activeSessions))
}

func TestMonitor_NilIsNoop(t *testing.T) {
	var m *Monitor

	assert.NotPanics(t, func() {
		m.TrackOperation("join", "success")
		m.TrackCountdown("manual")
		m.TrackRaceStarted()
		m.TrackFinish(time.Second)
		m.SetActiveSessions(1)
		m.Run(context.Background(), time.Second)
	})
}

func TestMonitor_CountCachedRosters(t *testing.T) {
	db, mock := redismock.NewClientMock()
	m := NewMonitor(db)

	mock.ExpectScan(0, rosterKeyPattern, 100).SetVal([]string{"race:roster:a", "race:roster:b"}, 42)
	mock.ExpectScan(42, rosterKeyPattern, 100).SetVal([]string{"race:roster:c"}, 0)

	n, err := m.CountCachedRosters(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMonitor_CountCachedRostersError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	m := NewMonitor(db)

	mock.ExpectScan(0, rosterKeyPattern, 100).SetErr(errors.New("redis down"))

	_, err := m.CountCachedRosters(context.Background())

	assert.Error(t, err)
}

func TestHandler_ServesMetrics(t *testing.T) {
	NewMonitor(nil).TrackOperation("leave", "success")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "race_operations_total")
}
